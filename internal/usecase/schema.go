package usecase

import (
	"context"
	"fmt"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// SchemaResult describes what EnsureFingerprint did.
type SchemaResult struct {
	Fingerprint domain.EmbeddingFingerprint
	Recorded    bool // the store had no fingerprint and now has one
	Rebuilt     bool // the store was cleared
}

// EnsureFingerprint makes sure the vectors in store were produced by
// embedder. An empty store adopts the embedder's fingerprint. A store built by
// a different model or dimension is refused unless rebuild is set, in which
// case it is cleared and adopts the new fingerprint. A matching store is never
// cleared.
func EnsureFingerprint(ctx context.Context, store port.SchemaStore, embedder port.Embedder, rebuild bool) (SchemaResult, error) {
	want := domain.EmbeddingFingerprint{Model: embedder.ModelName(), Dimension: embedder.Dimension()}
	result := SchemaResult{Fingerprint: want}

	got, ok, err := store.EmbeddingFingerprint(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: reading embedding fingerprint: %w", domain.ErrStorageUnavailable, err)
	}
	if ok && got == want {
		return result, nil
	}
	if ok {
		if !rebuild {
			return result, fmt.Errorf("%w: store was built with embedder %s but %s is configured; re-ingest with --rebuild",
				domain.ErrInvalidConfiguration, got, want)
		}
		if err := store.Clear(ctx); err != nil {
			return result, fmt.Errorf("%w: clearing store: %w", domain.ErrStorageUnavailable, err)
		}
		result.Rebuilt = true
	}

	if err := store.SetEmbeddingFingerprint(ctx, want); err != nil {
		return result, fmt.Errorf("%w: recording embedding fingerprint: %w", domain.ErrStorageUnavailable, err)
	}
	result.Recorded = true
	return result, nil
}
