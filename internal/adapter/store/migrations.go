package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"doccatalog/config"
)

// CurrentSchemaVersion is the current catalog schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo stores schema version and the embedding configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// GetSchemaInfo retrieves the current schema info from the catalog.
func (c *BoltCatalog) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 1
			}
		}
		if hashData := b.Get(keyConfigHash); hashData != nil {
			info.ConfigHash = string(hashData)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the catalog.
func (c *BoltCatalog) SetSchemaInfo(info *SchemaInfo) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}

		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash hashes the configuration that determines what vectors
// look like. Indices built under a different hash are not comparable with
// new query vectors.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		Dimension int    `json:"dimension"`
	}{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration   bool
	EmbeddingChanged bool
	Incompatible     bool
	OldVersion       int
	NewVersion       int
	Reason           string
}

// CheckMigration checks whether the catalog needs a schema upgrade and
// whether it was built with a different embedding configuration.
func (c *BoltCatalog) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	info, err := c.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.Incompatible = true
		result.Reason = fmt.Sprintf("catalog created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	if info.ConfigHash != "" && info.ConfigHash != ComputeConfigHash(cfg) {
		result.EmbeddingChanged = true
		result.Reason = "embedding configuration changed since the catalog was built"
	}

	return result, nil
}

// Migrate performs any necessary schema migrations and records the current
// embedding configuration hash.
func (c *BoltCatalog) Migrate(cfg *config.Config) error {
	info, err := c.GetSchemaInfo()
	if err != nil {
		return err
	}
	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("catalog schema v%d is newer than supported v%d", info.Version, CurrentSchemaVersion)
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := c.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	return c.SetSchemaInfo(&SchemaInfo{
		Version:    CurrentSchemaVersion,
		ConfigHash: ComputeConfigHash(cfg),
	})
}

// runMigration runs a specific version migration.
func (c *BoltCatalog) runMigration(from, to int) error {
	switch {
	case from == 0 && to == 1:
		return nil
	case from == 1 && to == 2:
		// v1 catalogs could carry drifted counters; recompute them.
		return c.db.Update(c.rebuildStats)
	default:
		return nil
	}
}
