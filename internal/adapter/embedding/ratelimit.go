package embedding

import (
	"context"

	"golang.org/x/time/rate"

	"ragcore/internal/port"
)

var _ port.Embedder = (*RateLimitedEmbedder)(nil)

// RateLimitedEmbedder throttles calls to a remote embedder with a token bucket.
// One Embed call consumes one token regardless of how many texts it carries.
type RateLimitedEmbedder struct {
	next    port.Embedder
	limiter *rate.Limiter
}

func NewRateLimitedEmbedder(next port.Embedder, requestsPerSecond float64, burst int) *RateLimitedEmbedder {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (e *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.next.Embed(ctx, texts)
}

func (e *RateLimitedEmbedder) Dimension() int {
	return e.next.Dimension()
}

func (e *RateLimitedEmbedder) ModelName() string {
	return e.next.ModelName()
}
