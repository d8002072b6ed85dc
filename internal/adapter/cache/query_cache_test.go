package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/domain"
)

func results(docs ...string) []domain.ScoredPassage {
	out := make([]domain.ScoredPassage, len(docs))
	for i, d := range docs {
		out[i] = domain.ScoredPassage{DocumentID: d, Score: 1 / float64(i+1)}
	}
	return out
}

func TestQueryCacheHitAndKeying(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	require.True(t, c.Put(c.Generation(), "m", "hello", 3, results("a")))

	got, ok := c.Get("m", "hello", 3)
	require.True(t, ok)
	assert.Equal(t, results("a"), got)

	_, ok = c.Get("m", "hello", 4)
	assert.False(t, ok, "k is part of the key")
	_, ok = c.Get("other", "hello", 3)
	assert.False(t, ok, "model is part of the key")
}

func TestQueryCacheTTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(c.Generation(), "m", "q", 1, results("a"))
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("m", "q", 1)
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestQueryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	gen := c.Generation()
	c.Put(gen, "m", "one", 1, results("1"))
	c.Put(gen, "m", "two", 1, results("2"))

	_, ok := c.Get("m", "one", 1)
	require.True(t, ok)

	c.Put(gen, "m", "three", 1, results("3"))
	assert.Equal(t, 2, c.Size())

	_, ok = c.Get("m", "two", 1)
	assert.False(t, ok)
	_, ok = c.Get("m", "one", 1)
	assert.True(t, ok)
}

func TestQueryCacheInvalidateDropsStalePut(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	gen := c.Generation()
	c.Put(gen, "m", "q", 1, results("a"))

	c.Invalidate()
	_, ok := c.Get("m", "q", 1)
	assert.False(t, ok)

	assert.False(t, c.Put(gen, "m", "q", 1, results("stale")))
	_, ok = c.Get("m", "q", 1)
	assert.False(t, ok)
}

func TestQueryCacheReturnsCopies(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put(c.Generation(), "m", "q", 1, results("a"))

	got, _ := c.Get("m", "q", 1)
	got[0].DocumentID = "mutated"

	again, _ := c.Get("m", "q", 1)
	assert.Equal(t, "a", again[0].DocumentID)
}

type countingSearcher struct {
	calls  int
	err    error
	during func()
}

func (s *countingSearcher) Search(ctx context.Context, query string, k int) ([]domain.ScoredPassage, error) {
	s.calls++
	if s.during != nil {
		s.during()
	}
	if s.err != nil {
		return nil, s.err
	}
	return results(query), nil
}

func TestCachedSearcher(t *testing.T) {
	inner := &countingSearcher{}
	c := NewQueryCache(10, time.Minute)
	s := NewCachedSearcher(inner, c, "m")
	ctx := context.Background()

	first, err := s.Search(ctx, "q", 2)
	require.NoError(t, err)
	second, err := s.Search(ctx, "q", 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	c.Invalidate()
	_, err = s.Search(ctx, "q", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedSearcherDoesNotCacheAcrossInvalidation(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	inner := &countingSearcher{}
	inner.during = func() { c.Invalidate() }
	s := NewCachedSearcher(inner, c, "m")

	_, err := s.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Zero(t, c.Size())
}

func TestCachedSearcherDoesNotCacheErrors(t *testing.T) {
	inner := &countingSearcher{err: errors.New("boom")}
	c := NewQueryCache(10, time.Minute)
	s := NewCachedSearcher(inner, c, "m")

	_, err := s.Search(context.Background(), "q", 1)
	require.Error(t, err)
	_, err = s.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
