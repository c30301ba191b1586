package port

import "doccatalog/internal/domain"

// IndexHandle is an opaque, loaded vector index.
type IndexHandle interface {
	// Len returns the number of vectors held by the index.
	Len() int

	// Dimension returns the vector dimensionality, or 0 for an empty index.
	Dimension() int
}

// IndexBackend builds, searches, merges and persists vector indices.
// Handles are only valid with the backend that produced them.
type IndexBackend interface {
	// Build creates an index from embedded chunks.
	Build(chunks []domain.EmbeddedChunk) (IndexHandle, error)

	// Search returns up to k results nearest to query, best first.
	Search(h IndexHandle, query []float32, k int) ([]domain.SearchResult, error)

	// Merge returns a new index holding the vectors of a and b.
	// Neither input is modified.
	Merge(a, b IndexHandle) (IndexHandle, error)

	// Persist writes everything needed to reload h into dir.
	Persist(h IndexHandle, dir string) error

	// Load reads an index previously written by Persist.
	// Returns an error wrapping os.ErrNotExist if dir holds no index.
	Load(dir string) (IndexHandle, error)
}
