// Package extract pulls plain text out of document files. PDFs are read
// page by page; everything else must already be UTF-8 text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"doccatalog/internal/domain"
	"doccatalog/internal/port"
)

// ErrNotText is returned for non-PDF files that are not valid UTF-8.
var ErrNotText = errors.New("file is not valid UTF-8 text")

// Auto picks the extractor from the file extension.
type Auto struct {
	text Text
	pdf  PDF
}

var _ port.Extractor = (*Auto)(nil)

func New() *Auto {
	return &Auto{}
}

func (a *Auto) Extract(path string, data []byte) ([]domain.Page, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return a.pdf.Extract(path, data)
	}
	return a.text.Extract(path, data)
}

// Text passes UTF-8 files through as a single unnumbered page.
type Text struct{}

func (Text) Extract(_ string, data []byte) ([]domain.Page, error) {
	if !utf8.Valid(data) {
		return nil, ErrNotText
	}
	return []domain.Page{{Number: -1, Text: string(data)}}, nil
}

// PDF extracts the text of every page. Pages without text are dropped, so
// page numbers may have gaps.
type PDF struct{}

func (PDF) Extract(_ string, data []byte) (pages []domain.Page, err error) {
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i - 1, Text: text})
	}
	return pages, nil
}
