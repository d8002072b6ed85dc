package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ragcore/internal/adapter/chunker"
	"ragcore/internal/adapter/embedding"
	"ragcore/internal/adapter/memstore"
	"ragcore/internal/domain"
)

// fakeEmbedder delegates to a hash embedder unless a hook overrides the result.
type fakeEmbedder struct {
	inner *embedding.HashEmbedder
	hook  func(ctx context.Context, texts []string) ([][]float32, error)
	mu    sync.Mutex
	calls int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{inner: embedding.NewHashEmbedder(16)}
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.hook != nil {
		return e.hook(ctx, texts)
	}
	return e.inner.Embed(ctx, texts)
}

func (e *fakeEmbedder) Dimension() int    { return e.inner.Dimension() }
func (e *fakeEmbedder) ModelName() string { return "fake" }

// faultyStore injects failures into a memory store.
type faultyStore struct {
	*memstore.MemoryStore
	deleteErr error
	insertErr error
	onDelete  func()
}

func (s *faultyStore) DeleteByDocument(ctx context.Context, id string) (int, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	n, err := s.MemoryStore.DeleteByDocument(ctx, id)
	if s.onDelete != nil {
		s.onDelete()
	}
	return n, err
}

func (s *faultyStore) InsertBatch(ctx context.Context, passages []domain.Passage) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.MemoryStore.InsertBatch(ctx, passages)
}

type countingInvalidator struct {
	mu sync.Mutex
	n  int
}

func (c *countingInvalidator) Invalidate() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newChunker(t *testing.T, size, overlap int) *chunker.WindowChunker {
	t.Helper()
	c, err := chunker.NewWindowChunker(size, overlap)
	require.NoError(t, err)
	return c
}

func snapshot(t *testing.T, s interface {
	Scan(context.Context, func(domain.Passage) error) error
}) []domain.Passage {
	t.Helper()
	var out []domain.Passage
	require.NoError(t, s.Scan(context.Background(), func(p domain.Passage) error {
		out = append(out, p)
		return nil
	}))
	return out
}

func texts(passages []domain.Passage) []string {
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Text
	}
	return out
}

var errBoom = errors.New("boom")
