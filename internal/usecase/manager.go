package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"doccatalog/internal/adapter/cache"
	"doccatalog/internal/domain"
	"doccatalog/internal/logger"
	"doccatalog/internal/port"
)

// SimilarityOptions tunes DocumentSimilarity.
type SimilarityOptions struct {
	VectorTolerance int
	TimeWindow      time.Duration
	Threshold       float64
}

// ManagerOptions configures a CatalogManager.
type ManagerOptions struct {
	CacheSize  int
	StagingTTL time.Duration
	Similarity SimilarityOptions
	// SearchConcurrency bounds the SearchAll fan-out. 0 means 8.
	SearchConcurrency int
	Logger            *slog.Logger
	Now               func() time.Time
}

// DefaultManagerOptions returns the options used when none are configured.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		StagingTTL: time.Hour,
		Similarity: SimilarityOptions{
			VectorTolerance: 100,
			TimeWindow:      24 * time.Hour,
			Threshold:       0.5,
		},
		SearchConcurrency: 8,
	}
}

// stagingSweeper is implemented by stores that stage writes on disk.
type stagingSweeper interface {
	SweepStaging(olderThan time.Duration) (int, error)
}

// CatalogManager decides whether a document already has an index, owns the
// on-disk lifecycle of per-document indices and keeps the catalog and its
// statistics in step with storage.
type CatalogManager struct {
	catalog port.Catalog
	store   port.CollectionStore
	backend port.IndexBackend
	cache   *cache.IndexCache
	loads   singleflight.Group

	// in-flight adds, identity -> collection id, and in-flight deletes
	mu       sync.Mutex
	inflight map[domain.Identity]string
	deleting map[string]int

	opts ManagerOptions
	log  *slog.Logger
	now  func() time.Time
}

// NewCatalogManager creates a manager over the given catalog, store and
// backend. The store must have been built on the same backend.
func NewCatalogManager(
	catalog port.Catalog,
	store port.CollectionStore,
	backend port.IndexBackend,
	opts ManagerOptions,
) *CatalogManager {
	def := DefaultManagerOptions()
	if opts.Similarity.VectorTolerance <= 0 {
		opts.Similarity.VectorTolerance = def.Similarity.VectorTolerance
	}
	if opts.Similarity.TimeWindow <= 0 {
		opts.Similarity.TimeWindow = def.Similarity.TimeWindow
	}
	if opts.Similarity.Threshold <= 0 {
		opts.Similarity.Threshold = def.Similarity.Threshold
	}
	if opts.SearchConcurrency <= 0 {
		opts.SearchConcurrency = def.SearchConcurrency
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &CatalogManager{
		catalog:  catalog,
		store:    store,
		backend:  backend,
		cache:    cache.NewIndexCache(opts.CacheSize),
		inflight: make(map[domain.Identity]string),
		deleting: make(map[string]int),
		opts:     opts,
		log:      log,
		now:      now,
	}
}

// HasDocument reports whether id is catalogued. Ingestion must call it
// before AddDocument.
func (m *CatalogManager) HasDocument(id domain.Identity) (bool, error) {
	_, ok, err := m.catalog.Lookup(id)
	if err != nil {
		return false, domain.NewError(nil, "has_document", id, "", err)
	}
	return ok, nil
}

// DocumentInfo returns the catalog record of id.
func (m *CatalogManager) DocumentInfo(id domain.Identity) (domain.CollectionRecord, bool, error) {
	rec, ok, err := m.catalog.Lookup(id)
	if err != nil {
		return domain.CollectionRecord{}, false, domain.NewError(nil, "document_info", id, "", err)
	}
	return rec, ok, nil
}

// Documents returns every catalogued record ordered by identity.
func (m *CatalogManager) Documents() ([]domain.CollectionRecord, error) {
	recs, err := m.catalog.All()
	if err != nil {
		return nil, domain.NewError(nil, "documents", "", "", err)
	}
	return recs, nil
}

func (m *CatalogManager) Stats() (domain.CatalogStats, error) {
	stats, err := m.catalog.Stats()
	if err != nil {
		return domain.CatalogStats{}, domain.NewError(nil, "stats", "", "", err)
	}
	return stats, nil
}

// AddDocument builds and persists an index for chunks and catalogues it.
// Adding an identity that is already catalogued fails with
// domain.ErrDuplicateIdentity. On failure nothing is left in the catalog
// and no collection directory is left on disk.
func (m *CatalogManager) AddDocument(
	id domain.Identity,
	chunks []domain.EmbeddedChunk,
	filename, sourcePath string,
	metadata domain.Metadata,
) (string, error) {
	const op = "add_document"

	cid := CollectionID(id, filename)
	if err := m.beginAdd(id, cid); err != nil {
		return "", domain.NewError(domain.ErrDuplicateIdentity, op, id, cid, err)
	}
	defer m.endAdd(id)

	_, exists, err := m.catalog.Lookup(id)
	if err != nil {
		return "", domain.NewError(nil, op, id, cid, err)
	}
	if exists {
		return "", domain.NewError(domain.ErrDuplicateIdentity, op, id, cid, nil)
	}

	h, err := m.backend.Build(chunks)
	if err != nil {
		return "", domain.NewError(domain.ErrBackend, op, id, cid, err)
	}

	dir, err := m.store.Persist(cid, h)
	if err != nil {
		return "", domain.NewError(nil, op, id, cid, err)
	}

	rec := domain.CollectionRecord{
		Identity:     id,
		Filename:     filename,
		SourcePath:   sourcePath,
		CollectionID: cid,
		Path:         dir,
		CreatedAt:    m.now().UTC(),
		ChunkCount:   len(chunks),
		VectorCount:  h.Len(),
		Dimension:    h.Dimension(),
		Metadata:     metadata.Clone(),
	}
	if err := m.catalog.Insert(rec); err != nil {
		if rmErr := m.store.Remove(cid); rmErr != nil {
			m.log.Warn("failed to remove collection after catalog insert failure",
				"identity", id, "collection", cid, "error", rmErr)
			return "", domain.NewError(domain.KindOf(err), op, id, cid, errors.Join(err, rmErr))
		}
		m.log.Warn("rolled back persisted collection", "identity", id, "collection", cid, "error", err)
		return "", domain.NewError(nil, op, id, cid, err)
	}

	m.cache.Put(cid, h)
	m.log.Info("document added", "identity", id, "collection", cid,
		"chunks", rec.ChunkCount, "vectors", rec.VectorCount)
	return cid, nil
}

// LoadDocument returns the index of id, or nil if id is not catalogued.
// A record whose collection is missing on disk is reported as
// domain.ErrCatalogInconsistency, unless the document is being deleted
// through this manager, in which case it is treated as unknown.
func (m *CatalogManager) LoadDocument(id domain.Identity) (port.IndexHandle, error) {
	const op = "load_document"

	gen := m.cache.Generation()
	rec, ok, err := m.catalog.Lookup(id)
	if err != nil {
		return nil, domain.NewError(nil, op, id, "", err)
	}
	if !ok {
		return nil, nil
	}
	cid := rec.CollectionID

	h, hit := m.cache.Get(cid)
	if hit {
		m.log.Debug("index cache hit", "identity", id, "collection", cid)
	} else {
		m.log.Debug("index cache miss", "identity", id, "collection", cid)
		v, err, _ := m.loads.Do(cid, func() (any, error) {
			if h, ok := m.cache.Get(cid); ok {
				return h, nil
			}
			h, err := m.store.Load(cid)
			if err != nil {
				return nil, err
			}
			m.cache.PutIfGeneration(cid, h, gen)
			return h, nil
		})
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NewError(nil, op, id, cid, err)
			}
			// deleted concurrently: not an inconsistency
			if m.isDeleting(cid) {
				return nil, nil
			}
			if _, still, lerr := m.catalog.Lookup(id); lerr == nil && !still {
				return nil, nil
			}
			return nil, domain.NewError(domain.ErrCatalogInconsistency, op, id, cid,
				fmt.Errorf("catalog record exists but collection is missing: %w", err))
		}
		h = v.(port.IndexHandle)
	}

	if err := m.catalog.RecordAccess(id); err != nil {
		m.log.Warn("failed to record access", "identity", id, "error", err)
	}
	return h, nil
}

// SearchDocument searches the index of id. Unknown documents yield no
// results and no error.
func (m *CatalogManager) SearchDocument(id domain.Identity, query []float32, k int) ([]domain.SearchResult, error) {
	h, err := m.LoadDocument(id)
	if err != nil || h == nil {
		return nil, err
	}
	results, err := m.backend.Search(h, query, k)
	if err != nil {
		rec, _, _ := m.catalog.Lookup(id)
		return nil, domain.NewError(domain.ErrBackend, "search_document", id, rec.CollectionID, err)
	}
	return results, nil
}

// PerDocumentK is how many results SearchAll asks each document for.
func PerDocumentK(k int) int {
	return max(1, k/2)
}

// SearchAll searches every catalogued document with PerDocumentK(k),
// concatenates the hits in catalog order and keeps the first k. This is an
// approximate top-k: scores from different documents are not re-ranked
// against each other.
func (m *CatalogManager) SearchAll(query []float32, k int) ([]domain.SourcedResult, error) {
	if k <= 0 {
		return nil, nil
	}
	recs, err := m.catalog.All()
	if err != nil {
		return nil, domain.NewError(nil, "search_all", "", "", err)
	}

	perDoc := PerDocumentK(k)
	parts := make([][]domain.SourcedResult, len(recs))

	var g errgroup.Group
	g.SetLimit(m.opts.SearchConcurrency)
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			results, err := m.SearchDocument(rec.Identity, query, perDoc)
			if err != nil {
				return err
			}
			tagged := make([]domain.SourcedResult, len(results))
			for j, r := range results {
				tagged[j] = domain.SourcedResult{Result: r, Filename: rec.Filename, Identity: rec.Identity}
			}
			parts[i] = tagged
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.SourcedResult
	for _, p := range parts {
		out = append(out, p...)
		if len(out) >= k {
			return out[:k], nil
		}
	}
	return out, nil
}

// CreateCombinedIndex merges the indices of ids, or of every catalogued
// document when ids is empty, into a new ephemeral index. It returns nil
// when the selection is empty or its first document is unknown. Later
// unknown documents are skipped. Cached indices are never modified.
func (m *CatalogManager) CreateCombinedIndex(ids ...domain.Identity) (port.IndexHandle, error) {
	const op = "create_combined_index"

	if len(ids) == 0 {
		recs, err := m.catalog.All()
		if err != nil {
			return nil, domain.NewError(nil, op, "", "", err)
		}
		for _, r := range recs {
			ids = append(ids, r.Identity)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	combined, err := m.LoadDocument(ids[0])
	if err != nil || combined == nil {
		return nil, err
	}
	for _, id := range ids[1:] {
		h, err := m.LoadDocument(id)
		if err != nil {
			return nil, err
		}
		if h == nil {
			m.log.Debug("skipping unknown document in combined index", "identity", id)
			continue
		}
		combined, err = m.backend.Merge(combined, h)
		if err != nil {
			return nil, domain.NewError(domain.ErrBackend, op, id, "", err)
		}
	}
	return combined, nil
}

// DeleteDocument removes the collection of id from disk, then its catalog
// record, then its cached index. If the collection cannot be removed the
// catalog is left untouched.
func (m *CatalogManager) DeleteDocument(id domain.Identity) (bool, error) {
	const op = "delete_document"

	rec, ok, err := m.catalog.Lookup(id)
	if err != nil {
		return false, domain.NewError(nil, op, id, "", err)
	}
	if !ok {
		return false, nil
	}
	m.beginDelete(rec.CollectionID)
	defer m.endDelete(rec.CollectionID)

	if err := m.store.Remove(rec.CollectionID); err != nil {
		return false, domain.NewError(domain.ErrStorage, op, id, rec.CollectionID, err)
	}
	deleted, err := m.catalog.Delete(id)
	if err != nil {
		return false, domain.NewError(nil, op, id, rec.CollectionID, err)
	}
	m.cache.Evict(rec.CollectionID)
	if deleted {
		m.log.Info("document deleted", "identity", id, "collection", rec.CollectionID, "vectors", rec.VectorCount)
	}
	return deleted, nil
}

// CleanupOrphans removes collection directories that have no catalog record
// and returns their ids in sorted order. Collections of adds still in
// progress are left alone.
func (m *CatalogManager) CleanupOrphans() ([]string, error) {
	const op = "cleanup_orphans"

	orphans, err := m.orphans()
	if err != nil {
		return nil, domain.NewError(nil, op, "", "", err)
	}

	var removed []string
	var errs []error
	for _, cid := range orphans {
		if err := m.store.Remove(cid); err != nil {
			errs = append(errs, domain.NewError(domain.ErrStorage, op, "", cid, err))
			continue
		}
		m.log.Info("removed orphaned collection", "collection", cid)
		removed = append(removed, cid)
	}

	if sw, ok := m.store.(stagingSweeper); ok && m.opts.StagingTTL > 0 {
		n, err := sw.SweepStaging(m.opts.StagingTTL)
		if err != nil {
			errs = append(errs, domain.NewError(domain.ErrStorage, op, "", "", err))
		}
		if n > 0 {
			m.log.Info("removed stale staging directories", "count", n)
		}
	}
	return removed, errors.Join(errs...)
}

// orphans lists collections on disk, then the in-flight adds, then the
// catalog. Anything persisted after the listing is simply not seen, and
// anything persisted before it is either in flight or catalogued.
func (m *CatalogManager) orphans() ([]string, error) {
	present, err := m.store.ListPresent()
	if err != nil {
		return nil, err
	}
	busy := m.inflightCollections()
	recs, err := m.catalog.All()
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		delete(present, r.CollectionID)
	}
	out := make([]string, 0, len(present))
	for cid := range present {
		if _, ok := busy[cid]; ok {
			continue
		}
		out = append(out, cid)
	}
	sort.Strings(out)
	return out, nil
}

// Verify reports drift between the catalog and storage without repairing
// anything.
func (m *CatalogManager) Verify() ([]domain.Inconsistency, error) {
	const op = "verify"

	present, err := m.store.ListPresent()
	if err != nil {
		return nil, domain.NewError(nil, op, "", "", err)
	}
	busy := m.inflightCollections()
	recs, err := m.catalog.All()
	if err != nil {
		return nil, domain.NewError(nil, op, "", "", err)
	}

	var out []domain.Inconsistency
	for _, r := range recs {
		if _, ok := present[r.CollectionID]; ok {
			delete(present, r.CollectionID)
			continue
		}
		out = append(out, domain.Inconsistency{
			CollectionID: r.CollectionID,
			Identity:     r.Identity,
			Reason:       "catalog record has no collection on disk",
		})
	}
	orphans := make([]string, 0, len(present))
	for cid := range present {
		if _, ok := busy[cid]; !ok {
			orphans = append(orphans, cid)
		}
	}
	sort.Strings(orphans)
	for _, cid := range orphans {
		out = append(out, domain.Inconsistency{CollectionID: cid, Reason: "collection on disk has no catalog record"})
	}
	return out, nil
}

// DocumentSimilarity ranks other documents by a coarse heuristic: both
// documents have been accessed (+0.3), their vector counts are within the
// tolerance (+0.4) and they were added within the time window (+0.3).
// Documents scoring above the threshold are returned best first. This says
// nothing about content.
func (m *CatalogManager) DocumentSimilarity(id domain.Identity, topK int) ([]domain.SimilarDocument, error) {
	const op = "document_similarity"

	cur, ok, err := m.catalog.Lookup(id)
	if err != nil {
		return nil, domain.NewError(nil, op, id, "", err)
	}
	if !ok {
		return nil, nil
	}
	recs, err := m.catalog.All()
	if err != nil {
		return nil, domain.NewError(nil, op, id, "", err)
	}

	sim := m.opts.Similarity
	var out []domain.SimilarDocument
	for _, r := range recs {
		if r.Identity == id {
			continue
		}
		score := 0.0
		if r.AccessCount > 0 && cur.AccessCount > 0 {
			score += 0.3
		}
		if abs(r.VectorCount-cur.VectorCount) < sim.VectorTolerance {
			score += 0.4
		}
		if d := r.CreatedAt.Sub(cur.CreatedAt); d < sim.TimeWindow && d > -sim.TimeWindow {
			score += 0.3
		}
		if score > sim.Threshold {
			out = append(out, domain.SimilarDocument{Identity: r.Identity, Filename: r.Filename, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Filename < out[j].Filename
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Export returns the catalog snapshot and the ids of the cached indices.
func (m *CatalogManager) Export() (domain.CatalogExport, error) {
	snap, err := m.catalog.Snapshot()
	if err != nil {
		return domain.CatalogExport{}, domain.NewError(nil, "export", "", "", err)
	}
	return domain.CatalogExport{
		ExportedAt:        m.now().UTC(),
		Metadata:          snap,
		ActiveCollections: m.cache.Keys(),
	}, nil
}

// Import replaces the catalog with snap and drops every cached index.
// Collections are not checked; run Verify afterwards.
func (m *CatalogManager) Import(snap domain.CatalogSnapshot) error {
	if err := m.catalog.Restore(snap); err != nil {
		return domain.NewError(nil, "import", "", "", err)
	}
	m.cache.Clear()
	m.log.Info("catalog imported", "documents", len(snap.Documents))
	return nil
}

// CachedCollections returns the ids of the indices currently held open.
func (m *CatalogManager) CachedCollections() []string {
	return m.cache.Keys()
}

func (m *CatalogManager) beginAdd(id domain.Identity, cid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[id]; busy {
		return fmt.Errorf("document %s is already being added", id)
	}
	m.inflight[id] = cid
	return nil
}

func (m *CatalogManager) endAdd(id domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
}

func (m *CatalogManager) beginDelete(cid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleting[cid]++
}

func (m *CatalogManager) endDelete(cid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleting[cid]--; m.deleting[cid] <= 0 {
		delete(m.deleting, cid)
	}
}

func (m *CatalogManager) isDeleting(cid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleting[cid] > 0
}

func (m *CatalogManager) inflightCollections() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.inflight))
	for _, cid := range m.inflight {
		out[cid] = struct{}{}
	}
	return out
}

// CollectionID derives the collection id of a document from its identity
// and a sanitized form of its file name.
func CollectionID(id domain.Identity, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return '_'
		case r == ':' || unicode.IsControl(r):
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		name = "document"
	}
	return string(id) + "_" + name
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
