package cli

import (
	"fmt"
	"path/filepath"

	"doccatalog/config"
	"doccatalog/internal/adapter/collection"
	"doccatalog/internal/adapter/embedding"
	"doccatalog/internal/adapter/index"
	"doccatalog/internal/adapter/store"
	"doccatalog/internal/port"
	"doccatalog/internal/usecase"
)

// app wires the catalog components for one command invocation.
type app struct {
	cfg     *config.Config
	dir     string
	catalog *store.BoltCatalog
	store   *collection.LocalStore
	backend *index.FlatBackend
	manager *usecase.CatalogManager

	// set when the catalog was built with another embedding configuration
	embeddingChanged string
}

func openApp() (*app, error) {
	cfg := GetConfig()

	dir := cfg.Catalog.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(GetRootDir(), dir)
	}
	if err := config.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	compression, err := index.ParseCompression(cfg.Catalog.Compression)
	if err != nil {
		return nil, err
	}
	backend := index.NewFlatBackend(compression)

	cat, err := store.NewBoltCatalog(config.CatalogPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	a := &app{cfg: cfg, dir: dir, catalog: cat, backend: backend}
	if err := a.checkSchema(); err != nil {
		cat.Close()
		return nil, err
	}

	a.store, err = collection.NewLocalStore(dir, backend)
	if err != nil {
		cat.Close()
		return nil, err
	}

	a.manager = usecase.NewCatalogManager(cat, a.store, backend, usecase.ManagerOptions{
		CacheSize:  cfg.Catalog.CacheSize,
		StagingTTL: cfg.Catalog.StagingTTL,
		Similarity: usecase.SimilarityOptions{
			VectorTolerance: cfg.Similarity.VectorTolerance,
			TimeWindow:      cfg.Similarity.TimeWindow,
			Threshold:       cfg.Similarity.Threshold,
		},
		Logger: log,
	})
	return a, nil
}

func (a *app) checkSchema() error {
	res, err := a.catalog.CheckMigration(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to check catalog schema: %w", err)
	}
	if res.Incompatible {
		return fmt.Errorf("cannot open catalog: %s", res.Reason)
	}

	if res.EmbeddingChanged {
		stats, err := a.catalog.Stats()
		if err != nil {
			return err
		}
		if stats.TotalDocuments > 0 {
			a.embeddingChanged = res.Reason
			log.Warn("catalog embedding configuration differs", "reason", res.Reason)
			return nil
		}
	} else if !res.NeedsMigration {
		return nil
	}

	log.Info("updating catalog schema", "from", res.OldVersion, "to", res.NewVersion)
	if err := a.catalog.Migrate(a.cfg); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// embedder returns the configured embedder, refusing when the catalog's
// vectors came from a different model.
func (a *app) embedder() (port.Embedder, error) {
	if a.embeddingChanged != "" {
		return nil, fmt.Errorf("%s; restore the previous embedding settings or start a new catalog", a.embeddingChanged)
	}
	e, err := embedding.New(a.cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return e, nil
}

func (a *app) Close() error {
	return a.catalog.Close()
}
