// Package index provides the flat (brute-force) vector index used as the
// catalog's index backend.
//
// A FlatIndex is immutable once built: Merge returns a new index, so handles
// can be shared between goroutines and cached without locking.
package index

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"doccatalog/internal/domain"
	"doccatalog/internal/port"
)

// FileName is the name of the index file inside a collection directory.
const FileName = "index.bin"

var (
	// ErrEmptyBuild is returned when Build is called without chunks.
	ErrEmptyBuild = errors.New("cannot build an index from zero chunks")

	// ErrForeignHandle is returned for handles not produced by FlatBackend.
	ErrForeignHandle = errors.New("handle was not produced by the flat backend")
)

// ErrDimensionMismatch indicates vectors of different dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

type entry struct {
	id       string
	text     string
	vector   []float32
	metadata domain.Metadata
}

// FlatIndex holds vectors in insertion order.
type FlatIndex struct {
	dim     int
	entries []entry
}

func (ix *FlatIndex) Len() int       { return len(ix.entries) }
func (ix *FlatIndex) Dimension() int { return ix.dim }

// FlatBackend implements port.IndexBackend with cosine similarity search.
type FlatBackend struct {
	compression Compression
}

// NewFlatBackend creates a backend that writes index files with c.
func NewFlatBackend(c Compression) *FlatBackend {
	return &FlatBackend{compression: c}
}

var _ port.IndexBackend = (*FlatBackend)(nil)

func (b *FlatBackend) Build(chunks []domain.EmbeddedChunk) (port.IndexHandle, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyBuild
	}
	dim := len(chunks[0].Vector)
	if dim == 0 {
		return nil, errors.New("first chunk has an empty vector")
	}

	ix := &FlatIndex{dim: dim, entries: make([]entry, len(chunks))}
	for i, c := range chunks {
		if len(c.Vector) != dim {
			return nil, &ErrDimensionMismatch{Expected: dim, Actual: len(c.Vector)}
		}
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("chunk-%d", i)
		}
		vec := make([]float32, dim)
		copy(vec, c.Vector)
		ix.entries[i] = entry{id: id, text: c.Text, vector: vec, metadata: c.Metadata.Clone()}
	}
	return ix, nil
}

// Search finds the k nearest vectors to the query using cosine similarity.
// Ties keep insertion order.
func (b *FlatBackend) Search(h port.IndexHandle, query []float32, k int) ([]domain.SearchResult, error) {
	ix, err := flat(h)
	if err != nil {
		return nil, err
	}
	if k <= 0 || len(ix.entries) == 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, &ErrDimensionMismatch{Expected: ix.dim, Actual: len(query)}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(ix.entries))
	for i, e := range ix.entries {
		scores[i] = scored{idx: i, score: cosineSimilarity(query, e.vector)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]domain.SearchResult, k)
	for i := 0; i < k; i++ {
		e := ix.entries[scores[i].idx]
		results[i] = domain.SearchResult{
			ChunkID:  e.id,
			Text:     e.text,
			Score:    scores[i].score,
			Metadata: e.metadata.Clone(),
		}
	}
	return results, nil
}

func (b *FlatBackend) Merge(a, c port.IndexHandle) (port.IndexHandle, error) {
	left, err := flat(a)
	if err != nil {
		return nil, err
	}
	right, err := flat(c)
	if err != nil {
		return nil, err
	}

	dim := left.dim
	switch {
	case dim == 0:
		dim = right.dim
	case right.dim != 0 && right.dim != dim:
		return nil, &ErrDimensionMismatch{Expected: dim, Actual: right.dim}
	}

	// Entries are never mutated, so the merged index can share them.
	merged := &FlatIndex{dim: dim, entries: make([]entry, 0, len(left.entries)+len(right.entries))}
	merged.entries = append(merged.entries, left.entries...)
	merged.entries = append(merged.entries, right.entries...)
	return merged, nil
}

// Persist writes the index file into dir, creating dir if needed, and
// syncs it before returning.
func (b *FlatBackend) Persist(h port.IndexHandle, dir string) error {
	ix, err := flat(h)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, FileName))
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := encodeIndex(f, ix, b.compression); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync index file: %w", err)
	}
	return f.Close()
}

func (b *FlatBackend) Load(dir string) (port.IndexHandle, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ix, err := decodeIndex(f)
	if err != nil {
		return nil, err
	}
	return ix, nil
}

func flat(h port.IndexHandle) (*FlatIndex, error) {
	ix, ok := h.(*FlatIndex)
	if !ok || ix == nil {
		return nil, ErrForeignHandle
	}
	return ix, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
