package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the document catalog.
type Config struct {
	Catalog    CatalogConfig    `yaml:"catalog"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Search     SearchConfig     `yaml:"search"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CatalogConfig holds storage configuration.
type CatalogConfig struct {
	Dir         string        `yaml:"dir"`
	CacheSize   int           `yaml:"cache_size"`  // open indices kept in memory, 0 = unbounded
	Compression string        `yaml:"compression"` // "none", "zstd", "lz4"
	StagingTTL  time.Duration `yaml:"staging_ttl"`
}

// IngestConfig holds document discovery and chunking configuration.
type IngestConfig struct {
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	ChunkWords   int      `yaml:"chunk_words"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
}

// SearchConfig holds query configuration.
type SearchConfig struct {
	TopK int `yaml:"top_k"`
}

// SimilarityConfig holds the document similarity heuristic parameters.
type SimilarityConfig struct {
	VectorTolerance int           `yaml:"vector_tolerance"`
	TimeWindow      time.Duration `yaml:"time_window"`
	Threshold       float64       `yaml:"threshold"`
	TopK            int           `yaml:"top_k"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`    // "openai", "ollama", "hash"
	Model     string `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Dir:         "vector_database",
			CacheSize:   0,
			Compression: "zstd",
			StagingTTL:  time.Hour,
		},
		Ingest: IngestConfig{
			Includes:     []string{"**/*.pdf", "**/*.txt", "**/*.md", "**/*.rst", "**/*.csv", "**/*.json", "**/*.html"},
			Excludes:     []string{"**/.git/**", "**/node_modules/**", "**/vector_database/**", "**/.doccatalog/**"},
			ChunkWords:   200,
			ChunkOverlap: 20,
			MaxFileBytes: 10 << 20,
		},
		Search: SearchConfig{
			TopK: 5,
		},
		Similarity: SimilarityConfig{
			VectorTolerance: 100,
			TimeWindow:      24 * time.Hour,
			Threshold:       0.5,
			TopK:            5,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			BaseURL:   "https://api.openai.com/v1",
			Dimension: 1536,
			BatchSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for doccatalog.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "doccatalog.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".doccatalog", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CatalogPath returns the path to the catalog database inside a catalog root.
func CatalogPath(dir string) string {
	return filepath.Join(dir, "catalog.db")
}

// EnsureDir ensures the catalog root exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
