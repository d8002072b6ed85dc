package port

import (
	"context"

	"ragcore/internal/domain"
)

// RetrievalEngine ranks stored passages against a query vector.
type RetrievalEngine interface {
	// Retrieve returns at most k passages ordered by descending cosine similarity.
	Retrieve(ctx context.Context, query []float32, k int) ([]domain.ScoredPassage, error)
}

// CacheInvalidator is notified whenever the passage set may have changed.
type CacheInvalidator interface {
	Invalidate()
}
