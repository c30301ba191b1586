package port

import "doccatalog/internal/domain"

// Catalog is the durable registry of collection records and aggregate stats.
//
// Every mutating call must be committed before it returns, and a read that
// follows a successful mutation must observe it.
type Catalog interface {
	// Lookup returns the record for id and whether it exists.
	Lookup(id domain.Identity) (domain.CollectionRecord, bool, error)

	// Insert adds rec. Fails with domain.ErrDuplicateIdentity if the identity
	// or the collection id is already catalogued.
	Insert(rec domain.CollectionRecord) error

	// RecordAccess bumps the access counter of id. Unknown ids are ignored.
	RecordAccess(id domain.Identity) error

	// Delete removes the record for id and reports whether one existed.
	Delete(id domain.Identity) (bool, error)

	Stats() (domain.CatalogStats, error)

	// All returns every record ordered by identity.
	All() ([]domain.CollectionRecord, error)

	// Snapshot returns the full catalog state.
	Snapshot() (domain.CatalogSnapshot, error)

	// Restore replaces the catalog state with snap.
	Restore(snap domain.CatalogSnapshot) error

	Close() error
}

// CollectionStore owns one directory per collection under a root directory.
type CollectionStore interface {
	// Persist writes h for collectionID and returns the collection path.
	// A partially written collection is never visible.
	Persist(collectionID string, h IndexHandle) (string, error)

	// Load returns the index of collectionID, or an error matching
	// domain.ErrNotFound if none is on disk.
	Load(collectionID string) (IndexHandle, error)

	// Remove deletes the collection. Removing a missing collection is not
	// an error.
	Remove(collectionID string) error

	// ListPresent returns the collection ids currently on disk.
	ListPresent() (map[string]struct{}, error)

	// Path returns where collectionID lives on disk.
	Path(collectionID string) string
}
