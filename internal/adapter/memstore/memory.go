package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"doccatalog/internal/domain"
	"doccatalog/internal/port"
)

// MemoryCatalog is a non-durable port.Catalog, for tests and dry runs.
type MemoryCatalog struct {
	mu          sync.RWMutex
	createdAt   time.Time
	docs        map[domain.Identity]domain.CollectionRecord
	collections map[string]domain.Identity
	stats       domain.CatalogStats
	now         func() time.Time
}

var _ port.Catalog = (*MemoryCatalog)(nil)

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		createdAt:   time.Now().UTC(),
		docs:        make(map[domain.Identity]domain.CollectionRecord),
		collections: make(map[string]domain.Identity),
		now:         time.Now,
	}
}

// SetClock replaces the clock used for access and stats timestamps.
func (s *MemoryCatalog) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryCatalog) Lookup(id domain.Identity) (domain.CollectionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[id]
	if !ok {
		return domain.CollectionRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *MemoryCatalog) Insert(rec domain.CollectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[rec.Identity]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateIdentity, rec.Identity)
	}
	if _, ok := s.collections[rec.CollectionID]; ok {
		return fmt.Errorf("%w: collection %s already catalogued", domain.ErrDuplicateIdentity, rec.CollectionID)
	}
	s.docs[rec.Identity] = cloneRecord(rec)
	s.collections[rec.CollectionID] = rec.Identity
	s.bump(1, rec.VectorCount)
	return nil
}

func (s *MemoryCatalog) RecordAccess(id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return nil
	}
	now := s.now().UTC()
	rec.AccessCount++
	rec.LastAccessed = &now
	s.docs[id] = rec
	return nil
}

func (s *MemoryCatalog) Delete(id domain.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return false, nil
	}
	delete(s.docs, id)
	delete(s.collections, rec.CollectionID)
	s.bump(-1, -rec.VectorCount)
	return true, nil
}

func (s *MemoryCatalog) Stats() (domain.CatalogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

func (s *MemoryCatalog) All() ([]domain.CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]domain.CollectionRecord, 0, len(s.docs))
	for _, rec := range s.docs {
		recs = append(recs, cloneRecord(rec))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Identity < recs[j].Identity })
	return recs, nil
}

func (s *MemoryCatalog) Snapshot() (domain.CatalogSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := domain.CatalogSnapshot{
		CreatedAt:   s.createdAt,
		Documents:   make(map[domain.Identity]domain.CollectionRecord, len(s.docs)),
		Collections: make(map[string]domain.CollectionRef, len(s.collections)),
		Stats:       s.stats,
	}
	for id, rec := range s.docs {
		snap.Documents[id] = cloneRecord(rec)
		snap.Collections[rec.CollectionID] = domain.CollectionRef{Identity: id, Path: rec.Path, CreatedAt: rec.CreatedAt}
	}
	return snap, nil
}

func (s *MemoryCatalog) Restore(snap domain.CatalogSnapshot) error {
	docs := make(map[domain.Identity]domain.CollectionRecord, len(snap.Documents))
	collections := make(map[string]domain.Identity, len(snap.Documents))
	var stats domain.CatalogStats
	for id, rec := range snap.Documents {
		if rec.Identity != id {
			return fmt.Errorf("snapshot record keyed %s has identity %s", id, rec.Identity)
		}
		if _, dup := collections[rec.CollectionID]; dup {
			return fmt.Errorf("%w: collection %s", domain.ErrDuplicateIdentity, rec.CollectionID)
		}
		docs[id] = cloneRecord(rec)
		collections[rec.CollectionID] = id
		stats.TotalDocuments++
		stats.TotalVectors += rec.VectorCount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	stats.LastUpdated = &now
	s.docs, s.collections, s.stats = docs, collections, stats
	if !snap.CreatedAt.IsZero() {
		s.createdAt = snap.CreatedAt
	}
	return nil
}

func (s *MemoryCatalog) Close() error {
	return nil
}

func (s *MemoryCatalog) bump(docs, vectors int) {
	now := s.now().UTC()
	s.stats.TotalDocuments += docs
	s.stats.TotalVectors += vectors
	s.stats.LastUpdated = &now
}

func cloneRecord(rec domain.CollectionRecord) domain.CollectionRecord {
	rec.Metadata = rec.Metadata.Clone()
	if rec.LastAccessed != nil {
		t := *rec.LastAccessed
		rec.LastAccessed = &t
	}
	return rec
}
