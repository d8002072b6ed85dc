package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ragcore/internal/domain"
)

// Config holds all configuration for ragcore.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Cache     CacheConfig     `yaml:"cache"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkConfig holds segmentation configuration. Sizes are in characters.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`    // "hash", "openai", "ollama"
	Model      string `yaml:"model"`       // empty selects the provider default
	APIKeyEnv  string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL    string `yaml:"base_url"`
	Dimension  int    `yaml:"dimension"` // 0 = model default (384 for hash)
	BatchSize  int    `yaml:"batch_size"`
	MaxRetries int    `yaml:"max_retries"`

	// RequestsPerSecond throttles remote providers (0 = unlimited).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// StoreConfig selects the passage store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "bolt", "sqlite", "memory"
	Path    string `yaml:"path"`    // relative paths are resolved against the project dir
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK              int     `yaml:"top_k"`
	MinScoreThreshold float64 `yaml:"min_score_threshold"` // Filter results below this score (0 = disabled)
}

// CacheConfig holds query cache configuration.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// IngestConfig holds ingestion configuration.
type IngestConfig struct {
	Includes           []string `yaml:"includes"`
	Excludes           []string `yaml:"excludes"`
	Workers            int      `yaml:"workers"`
	SerializeDocuments bool     `yaml:"serialize_documents"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunk: ChunkConfig{
			Size:    1000,
			Overlap: 100,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			APIKeyEnv:  "OPENAI_API_KEY",
			BatchSize:  100,
			MaxRetries: 2,
			Burst:      1,
		},
		Store: StoreConfig{
			Backend: "bolt",
		},
		Retrieve: RetrieveConfig{
			TopK: 3,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 100,
			TTLSeconds: 300,
		},
		Ingest: IngestConfig{
			Includes:           []string{"**/*.txt", "**/*.md", "**/*.markdown", "**/*.rst", "**/*.pdf"},
			Excludes:           []string{"**/.git/**", "**/node_modules/**", "**/vendor/**", ".ragcore/**"},
			Workers:            4,
			SerializeDocuments: true,
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
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrInvalidConfiguration, path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for ragcore.yaml).
func LoadFromDir(dir string) (*Config, error) {
	// Try ragcore.yaml in the directory
	path := filepath.Join(dir, "ragcore.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Try .ragcore/config.yaml
	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Return defaults
	return DefaultConfig(), nil
}

// ApplyEnv overrides fields from RAGCORE_* environment variables.
func (c *Config) ApplyEnv() error {
	ints := map[string]*int{
		"RAGCORE_CHUNK_SIZE":    &c.Chunk.Size,
		"RAGCORE_CHUNK_OVERLAP": &c.Chunk.Overlap,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", domain.ErrInvalidConfiguration, name, v)
		}
		*dst = n
	}

	strs := map[string]*string{
		"RAGCORE_EMBEDDING_PROVIDER": &c.Embedding.Provider,
		"RAGCORE_EMBEDDING_MODEL":    &c.Embedding.Model,
		"RAGCORE_STORE_BACKEND":      &c.Store.Backend,
		"RAGCORE_STORE_PATH":         &c.Store.Path,
		"RAGCORE_LOG_LEVEL":          &c.Logging.Level,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	return nil
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	var problems []string

	if c.Chunk.Size <= 0 {
		problems = append(problems, fmt.Sprintf("chunk.size must be positive, got %d", c.Chunk.Size))
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		problems = append(problems, fmt.Sprintf("chunk.overlap must be in [0, chunk.size), got %d", c.Chunk.Overlap))
	}

	switch c.Embedding.Provider {
	case "hash", "openai", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 0 {
		problems = append(problems, fmt.Sprintf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		problems = append(problems, "embedding.requests_per_second must not be negative")
	}

	switch c.Store.Backend {
	case "bolt", "sqlite", "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown store.backend %q", c.Store.Backend))
	}

	if c.Retrieve.TopK <= 0 {
		problems = append(problems, fmt.Sprintf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK))
	}
	if c.Retrieve.MinScoreThreshold < 0 || c.Retrieve.MinScoreThreshold > 1 {
		problems = append(problems, "retrieve.min_score_threshold must be within [0, 1]")
	}
	if c.Ingest.Workers <= 0 {
		problems = append(problems, fmt.Sprintf("ingest.workers must be positive, got %d", c.Ingest.Workers))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown logging.format %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DataDirName is the per-project directory holding config and stores.
const DataDirName = ".ragcore"

// StorePath returns the store file for the configured backend.
func (c *Config) StorePath(dir string) string {
	path := c.Store.Path
	if path == "" {
		name := "passages.db"
		if c.Store.Backend == "sqlite" {
			name = "passages.sqlite"
		}
		path = filepath.Join(DataDirName, name)
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// EnsureStoreDir creates the directory holding the store file.
func (c *Config) EnsureStoreDir(dir string) error {
	return os.MkdirAll(filepath.Dir(c.StorePath(dir)), 0755)
}
