package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"doccatalog/internal/domain"
	"doccatalog/internal/port"
)

var (
	bucketDocuments   = []byte("documents")
	bucketCollections = []byte("collections")
	bucketMeta        = []byte("meta")
	keyStats          = []byte("stats")
	keyCreatedAt      = []byte("created_at")
)

// BoltCatalog is the durable catalog. Each mutation is a single bbolt
// read-write transaction, so records and stats change together and the
// commit is fsync'd before the call returns. bbolt admits one writer at a
// time and holds an exclusive file lock, so concurrent read-modify-write
// cycles cannot lose updates.
type BoltCatalog struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ port.Catalog = (*BoltCatalog)(nil)

// NewBoltCatalog opens (or creates) the catalog file at path. Opening a
// catalog already held by another process fails after a short timeout.
func NewBoltCatalog(path string) (*BoltCatalog, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	c := &BoltCatalog{db: db, now: time.Now}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocuments, bucketCollections, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(keyCreatedAt) == nil {
			data, err := json.Marshal(c.now().UTC())
			if err != nil {
				return err
			}
			return meta.Put(keyCreatedAt, data)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

func (c *BoltCatalog) Lookup(id domain.Identity) (domain.CollectionRecord, bool, error) {
	var (
		rec   domain.CollectionRecord
		found bool
	)
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return domain.CollectionRecord{}, false, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return rec, found, nil
}

func (c *BoltCatalog) Insert(rec domain.CollectionRecord) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		colls := tx.Bucket(bucketCollections)

		if docs.Get([]byte(rec.Identity)) != nil {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateIdentity, rec.Identity)
		}
		if colls.Get([]byte(rec.CollectionID)) != nil {
			return fmt.Errorf("%w: collection %s already catalogued", domain.ErrDuplicateIdentity, rec.CollectionID)
		}

		if err := putJSON(docs, []byte(rec.Identity), rec); err != nil {
			return err
		}
		ref := domain.CollectionRef{Identity: rec.Identity, Path: rec.Path, CreatedAt: rec.CreatedAt}
		if err := putJSON(colls, []byte(rec.CollectionID), ref); err != nil {
			return err
		}

		return c.updateStats(tx, 1, rec.VectorCount)
	})
}

func (c *BoltCatalog) RecordAccess(id domain.Identity) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		data := docs.Get([]byte(id))
		if data == nil {
			return nil
		}
		var rec domain.CollectionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		now := c.now().UTC()
		rec.AccessCount++
		rec.LastAccessed = &now
		return putJSON(docs, []byte(id), rec)
	})
}

func (c *BoltCatalog) Delete(id domain.Identity) (bool, error) {
	var existed bool
	err := c.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		data := docs.Get([]byte(id))
		if data == nil {
			return nil
		}
		var rec domain.CollectionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if err := docs.Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketCollections).Delete([]byte(rec.CollectionID)); err != nil {
			return err
		}
		existed = true
		return c.updateStats(tx, -1, -rec.VectorCount)
	})
	return existed, err
}

func (c *BoltCatalog) Stats() (domain.CatalogStats, error) {
	var stats domain.CatalogStats
	err := c.db.View(func(tx *bbolt.Tx) error {
		var err error
		stats, err = readStats(tx)
		return err
	})
	return stats, err
}

func (c *BoltCatalog) All() ([]domain.CollectionRecord, error) {
	var recs []domain.CollectionRecord
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var rec domain.CollectionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

func (c *BoltCatalog) Snapshot() (domain.CatalogSnapshot, error) {
	snap := domain.CatalogSnapshot{
		Documents:   make(map[domain.Identity]domain.CollectionRecord),
		Collections: make(map[string]domain.CollectionRef),
	}
	err := c.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if data := meta.Get(keyCreatedAt); data != nil {
			if err := json.Unmarshal(data, &snap.CreatedAt); err != nil {
				return err
			}
		}
		err := tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var rec domain.CollectionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			snap.Documents[domain.Identity(k)] = rec
			return nil
		})
		if err != nil {
			return err
		}
		err = tx.Bucket(bucketCollections).ForEach(func(k, v []byte) error {
			var ref domain.CollectionRef
			if err := json.Unmarshal(v, &ref); err != nil {
				return err
			}
			snap.Collections[string(k)] = ref
			return nil
		})
		if err != nil {
			return err
		}
		snap.Stats, err = readStats(tx)
		return err
	})
	return snap, err
}

// Restore replaces the catalog contents with snap. The collection index and
// stats are derived from the snapshot's documents rather than trusted.
func (c *BoltCatalog) Restore(snap domain.CatalogSnapshot) error {
	seen := make(map[string]domain.Identity, len(snap.Documents))
	for id, rec := range snap.Documents {
		if rec.Identity != id {
			return fmt.Errorf("snapshot record keyed %s has identity %s", id, rec.Identity)
		}
		if other, dup := seen[rec.CollectionID]; dup {
			return fmt.Errorf("%w: collection %s claimed by %s and %s", domain.ErrDuplicateIdentity, rec.CollectionID, other, id)
		}
		seen[rec.CollectionID] = id
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketDocuments, bucketCollections} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		docs := tx.Bucket(bucketDocuments)
		colls := tx.Bucket(bucketCollections)
		for id, rec := range snap.Documents {
			if err := putJSON(docs, []byte(id), rec); err != nil {
				return err
			}
			ref := domain.CollectionRef{Identity: id, Path: rec.Path, CreatedAt: rec.CreatedAt}
			if err := putJSON(colls, []byte(rec.CollectionID), ref); err != nil {
				return err
			}
		}
		if !snap.CreatedAt.IsZero() {
			if err := putJSON(tx.Bucket(bucketMeta), keyCreatedAt, snap.CreatedAt); err != nil {
				return err
			}
		}
		return c.rebuildStats(tx)
	})
}

func (c *BoltCatalog) Close() error {
	return c.db.Close()
}

func (c *BoltCatalog) updateStats(tx *bbolt.Tx, docs, vectors int) error {
	stats, err := readStats(tx)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	stats.TotalDocuments += docs
	stats.TotalVectors += vectors
	stats.LastUpdated = &now
	return putJSON(tx.Bucket(bucketMeta), keyStats, stats)
}

// rebuildStats recomputes the aggregate counters from the documents bucket.
func (c *BoltCatalog) rebuildStats(tx *bbolt.Tx) error {
	var stats domain.CatalogStats
	err := tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
		var rec domain.CollectionRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("corrupt record %s: %w", k, err)
		}
		stats.TotalDocuments++
		stats.TotalVectors += rec.VectorCount
		return nil
	})
	if err != nil {
		return err
	}
	now := c.now().UTC()
	stats.LastUpdated = &now
	return putJSON(tx.Bucket(bucketMeta), keyStats, stats)
}

func readStats(tx *bbolt.Tx) (domain.CatalogStats, error) {
	var stats domain.CatalogStats
	data := tx.Bucket(bucketMeta).Get(keyStats)
	if data == nil {
		return stats, nil
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("corrupt stats: %w", err)
	}
	return stats, nil
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
