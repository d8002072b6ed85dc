package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragcore/internal/adapter/retriever"
	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// IngestUseCase replaces the passages of one document at a time.
type IngestUseCase struct {
	store       port.PassageStore
	chunker     port.Chunker
	embedder    port.Embedder
	invalidator port.CacheInvalidator
	locks       *keyedMutex
	logger      *slog.Logger
}

type IngestOption func(*IngestUseCase)

// WithCacheInvalidator registers a cache to invalidate whenever passages change.
func WithCacheInvalidator(inv port.CacheInvalidator) IngestOption {
	return func(u *IngestUseCase) { u.invalidator = inv }
}

// WithDocumentSerialization makes concurrent ingestions of the same document
// id run one after another. Without it their delete and insert steps may
// interleave.
func WithDocumentSerialization(enabled bool) IngestOption {
	return func(u *IngestUseCase) {
		if enabled {
			u.locks = newKeyedMutex()
		} else {
			u.locks = nil
		}
	}
}

func WithLogger(logger *slog.Logger) IngestOption {
	return func(u *IngestUseCase) {
		if logger != nil {
			u.logger = logger
		}
	}
}

func NewIngestUseCase(store port.PassageStore, chunker port.Chunker, embedder port.Embedder, opts ...IngestOption) *IngestUseCase {
	u := &IngestUseCase{
		store:    store,
		chunker:  chunker,
		embedder: embedder,
		locks:    newKeyedMutex(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// run tracks one pass through the ingestion state machine.
type run struct {
	documentID string
	stage      domain.Stage
	mutated    bool
	logger     *slog.Logger
}

func (r *run) advance(to domain.Stage) {
	r.logger.Debug("ingest stage", "from", r.stage, "to", to)
	r.stage = to
}

func (r *run) fail(ctx context.Context, reason, err error) error {
	if ctx.Err() != nil {
		reason = domain.ErrCancelled
	}
	e := &domain.IngestError{
		DocumentID: r.documentID,
		Stage:      r.stage,
		Reason:     reason,
		Err:        err,
		Mutated:    r.mutated,
	}
	r.logger.Warn("ingest failed", "stage", r.stage, "reason", reason, "mutated", r.mutated, "error", err)
	return e
}

// Ingest chunks and embeds text and makes it the document's only content in
// the store. It returns the number of passages written.
//
// Text that is empty or only whitespace fails with ErrEmptyContent before
// chunking and leaves any stored version of the document in place; use Remove
// to drop a document.
//
// Until embedding has succeeded the store is untouched. Once the delete step
// has run a failure may leave the document with none or some of its passages;
// IngestError.Mutated reports this and the caller should retry.
func (u *IngestUseCase) Ingest(ctx context.Context, documentID, text string) (int, error) {
	r := &run{
		documentID: documentID,
		stage:      domain.StageExtracted,
		logger:     u.logger.With("run_id", uuid.NewString(), "document_id", documentID),
	}
	start := time.Now()

	if err := domain.ValidateDocumentID(documentID); err != nil {
		return 0, r.fail(ctx, domain.ErrInvalidArgument, err)
	}

	if u.locks != nil {
		unlock := u.locks.Lock(documentID)
		defer unlock()
	}

	if ctx.Err() != nil {
		return 0, r.fail(ctx, domain.ErrCancelled, ctx.Err())
	}
	if strings.TrimSpace(text) == "" {
		return 0, r.fail(ctx, domain.ErrEmptyContent, nil)
	}

	chunks := u.chunker.Chunk(text)
	if len(chunks) == 0 {
		return 0, r.fail(ctx, domain.ErrEmptyContent, nil)
	}
	r.advance(domain.StageChunked)

	if ctx.Err() != nil {
		return 0, r.fail(ctx, domain.ErrCancelled, ctx.Err())
	}
	vectors, err := u.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, r.fail(ctx, domain.ErrEmbeddingFailed, err)
	}
	if err := u.checkEmbeddings(len(chunks), vectors); err != nil {
		return 0, r.fail(ctx, domain.ErrEmbeddingFailed, err)
	}
	r.advance(domain.StageEmbedded)

	if ctx.Err() != nil {
		return 0, r.fail(ctx, domain.ErrCancelled, ctx.Err())
	}
	r.mutated = true
	u.invalidate()
	removed, err := u.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, r.fail(ctx, domain.ErrStorageUnavailable, err)
	}
	r.advance(domain.StageReplaced)

	if ctx.Err() != nil {
		return 0, r.fail(ctx, domain.ErrCancelled, ctx.Err())
	}
	passages := make([]domain.Passage, len(chunks))
	for i, chunk := range chunks {
		passages[i] = domain.Passage{
			DocumentID: documentID,
			Ordinal:    i,
			Text:       chunk,
			Vector:     vectors[i],
		}
	}
	if err := u.store.InsertBatch(ctx, passages); err != nil {
		u.invalidate()
		return 0, r.fail(ctx, domain.ErrWriteFailed, err)
	}
	r.advance(domain.StageStored)

	// queries that ran while the insert was in flight must not be cached
	u.invalidate()
	r.advance(domain.StageDone)

	r.logger.Info("document ingested",
		"passages", len(passages),
		"replaced", removed,
		"duration", time.Since(start),
	)
	return len(passages), nil
}

func (u *IngestUseCase) checkEmbeddings(want int, vectors [][]float32) error {
	if len(vectors) != want {
		return fmt.Errorf("embedder returned %d vectors for %d passages", len(vectors), want)
	}
	dimension := u.embedder.Dimension()
	for i, vec := range vectors {
		if len(vec) == 0 || (dimension > 0 && len(vec) != dimension) {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(vec), dimension)
		}
		if !retriever.Finite(vec) {
			return fmt.Errorf("vector %d has non-finite components", i)
		}
	}
	return nil
}

// Remove deletes every passage of the document and returns how many there were.
func (u *IngestUseCase) Remove(ctx context.Context, documentID string) (int, error) {
	if err := domain.ValidateDocumentID(documentID); err != nil {
		return 0, err
	}

	if u.locks != nil {
		unlock := u.locks.Lock(documentID)
		defer unlock()
	}

	u.invalidate()
	removed, err := u.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("remove %q: %w: %w", documentID, domain.ErrCancelled, err)
		}
		return 0, fmt.Errorf("remove %q: %w: %w", documentID, domain.ErrStorageUnavailable, err)
	}
	u.invalidate()

	u.logger.Info("document removed", "document_id", documentID, "passages", removed)
	return removed, nil
}

func (u *IngestUseCase) invalidate() {
	if u.invalidator != nil {
		u.invalidator.Invalidate()
	}
}
