package port

import "doccatalog/internal/domain"

// Chunker splits document text into segments for embedding. docID seeds
// the chunk ids so they are stable across runs.
type Chunker interface {
	Chunk(docID, content string) []domain.Chunk
}
