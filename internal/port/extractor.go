package port

import "doccatalog/internal/domain"

// Extractor turns the raw bytes of a document into text pages.
type Extractor interface {
	Extract(path string, data []byte) ([]domain.Page, error)
}
