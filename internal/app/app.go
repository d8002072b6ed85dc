// Package app wires the configured adapters into the ingest and query
// operations and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"ragcore/config"
	"ragcore/internal/adapter/cache"
	"ragcore/internal/adapter/chunker"
	"ragcore/internal/adapter/extract"
	"ragcore/internal/adapter/fs"
	"ragcore/internal/adapter/retriever"
	"ragcore/internal/domain"
	"ragcore/internal/port"
	"ragcore/internal/usecase"
)

type App struct {
	cfg     *config.Config
	dir     string
	logger  *slog.Logger
	rebuild bool

	newStore    StoreFactory
	newEmbedder EmbedderFactory

	mu  sync.Mutex
	svc *services
}

// services are created together on first use and live until Close.
type services struct {
	store     port.IndexStore
	embedder  port.Embedder
	extractor *extract.Registry
	ingest    *usecase.IngestUseCase
	batch     *usecase.BatchIngestUseCase
	search    cache.Searcher
}

type Option func(*App)

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRebuild clears a store built by a different embedder instead of refusing it.
func WithRebuild(rebuild bool) Option {
	return func(a *App) { a.rebuild = rebuild }
}

func WithStoreFactory(f StoreFactory) Option {
	return func(a *App) { a.newStore = f }
}

func WithEmbedderFactory(f EmbedderFactory) Option {
	return func(a *App) { a.newEmbedder = f }
}

// New validates cfg and returns an App for the project in dir. Nothing is
// opened until the first operation.
func New(cfg *config.Config, dir string, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		cfg:         cfg,
		dir:         dir,
		logger:      slog.New(slog.DiscardHandler),
		newStore:    OpenStore,
		newEmbedder: NewEmbedder,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// services initializes the store and embedder exactly once. A failed attempt
// leaves nothing behind, so the next call tries again.
func (a *App) services(ctx context.Context) (*services, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.svc != nil {
		return a.svc, nil
	}

	c, err := chunker.NewWindowChunker(a.cfg.Chunk.Size, a.cfg.Chunk.Overlap)
	if err != nil {
		return nil, err
	}

	embedder, err := a.newEmbedder(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	st, err := a.newStore(a.cfg, a.dir)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidConfiguration) && !errors.Is(err, domain.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		}
		return nil, fmt.Errorf("opening store: %w", err)
	}

	schema, err := usecase.EnsureFingerprint(ctx, st, embedder, a.rebuild)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.logger.Debug("store ready",
		"backend", a.cfg.Store.Backend,
		"fingerprint", schema.Fingerprint.String(),
		"rebuilt", schema.Rebuilt,
	)

	ingestOpts := []usecase.IngestOption{
		usecase.WithDocumentSerialization(a.cfg.Ingest.SerializeDocuments),
		usecase.WithLogger(a.logger),
	}

	var search cache.Searcher = usecase.NewRetrieveUseCase(
		embedder,
		retriever.NewScanEngine(st),
		a.cfg.Retrieve.MinScoreThreshold,
		a.logger,
	)
	if a.cfg.Cache.Enabled {
		qc := cache.NewQueryCache(a.cfg.Cache.MaxEntries, a.cfg.CacheTTL())
		search = cache.NewCachedSearcher(search, qc, embedder.ModelName())
		ingestOpts = append(ingestOpts, usecase.WithCacheInvalidator(qc))
	}

	ingest := usecase.NewIngestUseCase(st, c, embedder, ingestOpts...)
	registry := extract.NewRegistry()

	a.svc = &services{
		store:     st,
		embedder:  embedder,
		extractor: registry,
		ingest:    ingest,
		search:    search,
		batch: usecase.NewBatchIngestUseCase(
			ingest,
			fs.NewWalker(a.cfg.Ingest.Includes, a.cfg.Ingest.Excludes),
			registry,
			a.cfg.Ingest.Workers,
			a.logger,
		),
	}
	return a.svc, nil
}

// Ingest replaces the passages of documentID with the chunks of text.
func (a *App) Ingest(ctx context.Context, documentID, text string) (int, error) {
	svc, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	return svc.ingest.Ingest(ctx, documentID, text)
}

// Query returns the topK passages most similar to queryText, best first.
func (a *App) Query(ctx context.Context, queryText string, topK int) ([]domain.ScoredPassage, error) {
	svc, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	return svc.search.Search(ctx, queryText, topK)
}

func (a *App) Remove(ctx context.Context, documentID string) (int, error) {
	svc, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	return svc.ingest.Remove(ctx, documentID)
}

// IngestFile extracts the text of the file at path and ingests it. An empty
// documentID defaults to the file name.
func (a *App) IngestFile(ctx context.Context, path, documentID string) (int, error) {
	svc, err := a.services(ctx)
	if err != nil {
		return 0, err
	}
	if documentID == "" {
		documentID = filepath.Base(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	text, err := svc.extractor.Extract(path, data)
	if err != nil {
		return 0, &domain.IngestError{
			DocumentID: documentID,
			Stage:      domain.StageExtracted,
			Reason:     domain.ErrInvalidArgument,
			Err:        err,
		}
	}
	return svc.ingest.Ingest(ctx, documentID, text)
}

func (a *App) IngestDirectory(ctx context.Context, root string, progress usecase.Progress) (*usecase.BatchResult, error) {
	svc, err := a.services(ctx)
	if err != nil {
		return nil, err
	}
	return svc.batch.IngestDirectory(ctx, root, progress)
}

// Status counts what is stored.
func (a *App) Status(ctx context.Context) (domain.StoreStatus, error) {
	var status domain.StoreStatus
	svc, err := a.services(ctx)
	if err != nil {
		return status, err
	}

	docs := make(map[string]struct{})
	err = svc.store.Scan(ctx, func(p domain.Passage) error {
		status.Passages++
		docs[p.DocumentID] = struct{}{}
		return nil
	})
	if err != nil {
		return status, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	status.Documents = len(docs)

	fp, ok, err := svc.store.EmbeddingFingerprint(ctx)
	if err != nil {
		return status, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	if ok {
		status.Fingerprint = &fp
	}
	return status, nil
}

// Close releases the store. The App may be used again afterwards; it reopens lazily.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.svc == nil {
		return nil
	}
	err := a.svc.store.Close()
	a.svc = nil
	return err
}
