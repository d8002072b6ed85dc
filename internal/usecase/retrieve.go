package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// RetrieveUseCase answers text queries: it embeds the query with the same
// embedder used for ingestion and ranks stored passages against it.
type RetrieveUseCase struct {
	embedder          port.Embedder
	engine            port.RetrievalEngine
	minScoreThreshold float64 // Filter results below this score (0 = disabled)
	logger            *slog.Logger
}

func NewRetrieveUseCase(
	embedder port.Embedder,
	engine port.RetrievalEngine,
	minScoreThreshold float64,
	logger *slog.Logger,
) *RetrieveUseCase {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RetrieveUseCase{
		embedder:          embedder,
		engine:            engine,
		minScoreThreshold: minScoreThreshold,
		logger:            logger,
	}
}

// Search returns at most k passages, best first.
func (u *RetrieveUseCase) Search(ctx context.Context, query string, k int) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return nil, &domain.RetrievalError{
			Reason: domain.ErrInvalidArgument,
			Err:    fmt.Errorf("top_k must be positive, got %d", k),
		}
	}
	if strings.TrimSpace(query) == "" {
		return nil, &domain.RetrievalError{
			Reason: domain.ErrInvalidArgument,
			Err:    errors.New("query text is empty"),
		}
	}

	start := time.Now()
	vectors, err := u.embedder.Embed(ctx, []string{query})
	if err != nil {
		reason := domain.ErrEmbeddingFailed
		if ctx.Err() != nil {
			reason = domain.ErrCancelled
		}
		return nil, &domain.RetrievalError{Reason: reason, Err: err}
	}
	if len(vectors) != 1 {
		return nil, &domain.RetrievalError{
			Reason: domain.ErrEmbeddingFailed,
			Err:    fmt.Errorf("embedder returned %d vectors for one query", len(vectors)),
		}
	}
	if d := u.embedder.Dimension(); d > 0 && len(vectors[0]) != d {
		return nil, &domain.RetrievalError{
			Reason: domain.ErrEmbeddingFailed,
			Err:    fmt.Errorf("query vector has dimension %d, want %d", len(vectors[0]), d),
		}
	}

	results, err := u.engine.Retrieve(ctx, vectors[0], k)
	if err != nil {
		return nil, err
	}

	if u.minScoreThreshold > 0 {
		results = u.filterByThreshold(results)
	}

	u.logger.Debug("query answered", "k", k, "results", len(results), "duration", time.Since(start))
	return results, nil
}

// filterByThreshold removes results below the minimum score threshold.
func (u *RetrieveUseCase) filterByThreshold(results []domain.ScoredPassage) []domain.ScoredPassage {
	filtered := make([]domain.ScoredPassage, 0, len(results))
	for _, r := range results {
		if r.Score >= u.minScoreThreshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
