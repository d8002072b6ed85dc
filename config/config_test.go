package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ragcore/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunk.Size != 1000 {
		t.Errorf("expected Chunk.Size=1000, got %d", cfg.Chunk.Size)
	}
	if cfg.Chunk.Overlap != 100 {
		t.Errorf("expected Chunk.Overlap=100, got %d", cfg.Chunk.Overlap)
	}
	if cfg.Retrieve.TopK != 3 {
		t.Errorf("expected TopK=3, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Store.Backend != "bolt" {
		t.Errorf("expected bolt backend, got %q", cfg.Store.Backend)
	}
	if !cfg.Ingest.SerializeDocuments {
		t.Error("expected document serialization to be on by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ragcore.yaml")

	content := `
chunk:
  size: 256
  overlap: 32
retrieve:
  top_k: 10
store:
  backend: sqlite
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunk.Size != 256 || cfg.Chunk.Overlap != 32 {
		t.Errorf("expected chunk 256/32, got %d/%d", cfg.Chunk.Size, cfg.Chunk.Overlap)
	}
	if cfg.Retrieve.TopK != 10 {
		t.Errorf("expected TopK=10, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Cache.MaxEntries != 100 {
		t.Errorf("unset fields should keep defaults, got MaxEntries=%d", cfg.Cache.MaxEntries)
	}
	if got, want := cfg.StorePath("/proj"), filepath.Join("/proj", ".ragcore", "passages.sqlite"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "ragcore.yaml")
	if err := os.WriteFile(configPath, []byte("chunk: [not, a, map"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(configPath)
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, DataDirName), 0755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, ".ragcore", "config.yaml")

	content := `
ingest:
  workers: 8
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ingest.Workers != 8 {
		t.Errorf("expected Workers=8, got %d", cfg.Ingest.Workers)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RAGCORE_CHUNK_SIZE", "500")
	t.Setenv("RAGCORE_CHUNK_OVERLAP", "50")
	t.Setenv("RAGCORE_STORE_BACKEND", "memory")
	t.Setenv("RAGCORE_LOG_LEVEL", "debug")
	t.Setenv("RAGCORE_EMBEDDING_PROVIDER", "")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}

	if cfg.Chunk.Size != 500 || cfg.Chunk.Overlap != 50 {
		t.Errorf("expected chunk 500/50, got %d/%d", cfg.Chunk.Size, cfg.Chunk.Overlap)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Store.Backend)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
	if cfg.Embedding.Provider != "hash" {
		t.Errorf("empty variable should not override, got %q", cfg.Embedding.Provider)
	}

	t.Setenv("RAGCORE_CHUNK_SIZE", "big")
	if err := cfg.ApplyEnv(); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Chunk.Size = 0 }},
		{"overlap equals size", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }},
		{"negative overlap", func(c *Config) { c.Chunk.Overlap = -1 }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "voyage" }},
		{"negative dimension", func(c *Config) { c.Embedding.Dimension = -1 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"zero top_k", func(c *Config) { c.Retrieve.TopK = 0 }},
		{"min score out of range", func(c *Config) { c.Retrieve.MinScoreThreshold = 2 }},
		{"negative min score", func(c *Config) { c.Retrieve.MinScoreThreshold = -0.5 }},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.StorePath("/home/user/project"), filepath.Join("/home/user/project", ".ragcore", "passages.db"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	cfg.Store.Path = "/var/lib/ragcore/store.db"
	if got := cfg.StorePath("/home/user/project"); got != "/var/lib/ragcore/store.db" {
		t.Errorf("absolute path should be kept, got %s", got)
	}
}

func TestEnsureStoreDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store.Path = filepath.Join("nested", "deeper", "passages.db")

	if err := cfg.EnsureStoreDir(tmpDir); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(tmpDir, "nested", "deeper"))
	if err != nil {
		t.Fatalf("store directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
}
