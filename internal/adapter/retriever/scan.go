package retriever

import (
	"container/heap"
	"context"
	"errors"
	"fmt"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

var _ port.RetrievalEngine = (*ScanEngine)(nil)

// ScanEngine scores every stored passage against the query vector. A query
// sees the store as of its scan; there is no derived index to go stale.
type ScanEngine struct {
	store port.PassageStore
}

func NewScanEngine(store port.PassageStore) *ScanEngine {
	return &ScanEngine{store: store}
}

type candidate struct {
	passage domain.Passage
	score   float64
	seq     int
}

// worse orders candidates so that the heap root is the one to evict first:
// the lowest score, and among equal scores the latest in scan order.
func worse(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.seq > b.seq
}

type topK []candidate

func (h topK) Len() int           { return len(h) }
func (h topK) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h topK) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *topK) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *topK) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

type dimensionError struct {
	passage string
	got     int
	want    int
}

func (e *dimensionError) Error() string {
	return fmt.Sprintf("query has dimension %d, passage %s has %d", e.want, e.passage, e.got)
}

// Retrieve returns the k passages most similar to query, best first. Equal
// scores keep ascending (document id, ordinal) order.
func (e *ScanEngine) Retrieve(ctx context.Context, query []float32, k int) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return nil, &domain.RetrievalError{
			Reason: domain.ErrInvalidArgument,
			Err:    fmt.Errorf("k must be positive, got %d", k),
		}
	}
	if len(query) == 0 || !Finite(query) {
		return nil, &domain.RetrievalError{
			Reason: domain.ErrInvalidArgument,
			Err:    errors.New("query vector is empty or not finite"),
		}
	}

	h := make(topK, 0, min(k, 64))
	seq := 0
	err := e.store.Scan(ctx, func(p domain.Passage) error {
		if len(p.Vector) != len(query) {
			return &dimensionError{passage: p.Key(), got: len(p.Vector), want: len(query)}
		}
		c := candidate{passage: p, score: CosineSimilarity(query, p.Vector), seq: seq}
		seq++

		if h.Len() < k {
			heap.Push(&h, c)
		} else if worse(h[0], c) {
			h[0] = c
			heap.Fix(&h, 0)
		}
		return nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	results := make([]domain.ScoredPassage, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		c := heap.Pop(&h).(candidate)
		results[i] = domain.ScoredPassage{
			DocumentID: c.passage.DocumentID,
			Ordinal:    c.passage.Ordinal,
			Score:      c.score,
			Text:       c.passage.Text,
		}
	}
	return results, nil
}

func classify(ctx context.Context, err error) error {
	var dimErr *dimensionError
	switch {
	case errors.As(err, &dimErr):
		return &domain.RetrievalError{Reason: domain.ErrInvalidArgument, Err: err}
	case ctx.Err() != nil:
		return &domain.RetrievalError{Reason: domain.ErrCancelled, Err: err}
	default:
		return &domain.RetrievalError{Reason: domain.ErrRetrievalFailed, Err: err}
	}
}
