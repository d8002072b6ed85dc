package app

import (
	"fmt"

	"ragcore/config"
	"ragcore/internal/adapter/embedding"
	"ragcore/internal/adapter/memstore"
	"ragcore/internal/adapter/sqlitestore"
	"ragcore/internal/adapter/store"
	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// StoreFactory opens the passage store for a project directory.
type StoreFactory func(cfg *config.Config, dir string) (port.IndexStore, error)

// EmbedderFactory builds the configured embedder.
type EmbedderFactory func(cfg *config.Config) (port.Embedder, error)

// OpenStore opens the configured backend.
func OpenStore(cfg *config.Config, dir string) (port.IndexStore, error) {
	switch cfg.Store.Backend {
	case "memory":
		return memstore.NewMemoryStore(), nil
	case "sqlite":
		return sqlitestore.NewStore(cfg.StorePath(dir))
	case "bolt":
		if err := cfg.EnsureStoreDir(dir); err != nil {
			return nil, fmt.Errorf("%w: creating data directory: %v", domain.ErrStorageUnavailable, err)
		}
		return store.NewBoltPassageStore(cfg.StorePath(dir))
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", domain.ErrInvalidConfiguration, cfg.Store.Backend)
	}
}

// NewEmbedder builds the configured embedder, rate limited when requested.
func NewEmbedder(cfg *config.Config) (port.Embedder, error) {
	ec := cfg.Embedding

	var (
		e   port.Embedder
		err error
	)
	switch ec.Provider {
	case "hash":
		return embedding.NewHashEmbedder(ec.Dimension), nil
	case "openai":
		e, err = embedding.NewOpenAICompatibleEmbedder(ec.APIKeyEnv, openAIConfig(ec))
	case "ollama":
		e, err = embedding.NewOllamaEmbedder(openAIConfig(ec))
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidConfiguration, ec.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	if ec.RequestsPerSecond > 0 {
		e = embedding.NewRateLimitedEmbedder(e, ec.RequestsPerSecond, ec.Burst)
	}
	return e, nil
}

func openAIConfig(ec config.EmbeddingConfig) embedding.OpenAIConfig {
	return embedding.OpenAIConfig{
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimension:  ec.Dimension,
		BatchSize:  ec.BatchSize,
		MaxRetries: ec.MaxRetries,
	}
}
