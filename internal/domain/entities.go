package domain

import "time"

// Identity is the content-derived key of a document.
type Identity string

// EmbeddedChunk is a text segment of a document together with its vector.
type EmbeddedChunk struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata Metadata
}

// Chunk is a text segment produced by a chunker, before embedding.
type Chunk struct {
	ID        string
	Index     int
	StartWord int
	EndWord   int
	Text      string
}

type SearchResult struct {
	ChunkID  string   `json:"chunk_id"`
	Text     string   `json:"text"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// SourcedResult is a search hit tagged with the document it came from.
type SourcedResult struct {
	Result   SearchResult `json:"result"`
	Filename string       `json:"source_document"`
	Identity Identity     `json:"file_hash"`
}

// CollectionRecord is the catalog entry of one document's persisted index.
type CollectionRecord struct {
	Identity     Identity   `json:"file_hash"`
	Filename     string     `json:"filename"`
	SourcePath   string     `json:"file_path"`
	CollectionID string     `json:"collection_id"`
	Path         string     `json:"collection_path"`
	CreatedAt    time.Time  `json:"added_at"`
	ChunkCount   int        `json:"chunk_count"`
	VectorCount  int        `json:"vector_count"`
	Dimension    int        `json:"vector_dimension"`
	Metadata     Metadata   `json:"metadata"`
	AccessCount  int        `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed"`
}

type CatalogStats struct {
	TotalDocuments int        `json:"total_documents"`
	TotalVectors   int        `json:"total_vectors"`
	LastUpdated    *time.Time `json:"last_updated"`
}

// CollectionRef is the reverse entry from a collection id to its document.
type CollectionRef struct {
	Identity  Identity  `json:"file_hash"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// CatalogSnapshot is the full serializable state of a catalog.
type CatalogSnapshot struct {
	CreatedAt   time.Time                     `json:"created_at"`
	Documents   map[Identity]CollectionRecord `json:"documents"`
	Collections map[string]CollectionRef      `json:"collections"`
	Stats       CatalogStats                  `json:"stats"`
}

// CatalogExport is what the manager hands out for backup or inspection.
type CatalogExport struct {
	ExportedAt        time.Time       `json:"exported_at"`
	Metadata          CatalogSnapshot `json:"metadata"`
	ActiveCollections []string        `json:"active_collections"`
}

// SimilarDocument is one entry of the heuristic document ranking.
type SimilarDocument struct {
	Identity Identity `json:"file_hash"`
	Filename string   `json:"filename"`
	Score    float64  `json:"similarity_score"`
}

// Inconsistency describes catalog/storage drift found by verification.
type Inconsistency struct {
	CollectionID string   `json:"collection_id"`
	Identity     Identity `json:"file_hash,omitempty"`
	Reason       string   `json:"reason"`
}

// Page is one unit of extracted document text. Number is zero-based, or -1
// for formats without pages.
type Page struct {
	Number int
	Text   string
}
