// Package storetest holds the behaviour every port.IndexStore must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// Factory returns an empty, open store. The store is closed by the suite.
type Factory func(t *testing.T) port.IndexStore

func passage(doc string, ordinal int, text string, vec ...float32) domain.Passage {
	return domain.Passage{DocumentID: doc, Ordinal: ordinal, Text: text, Vector: vec}
}

func collect(t *testing.T, s port.PassageStore) []domain.Passage {
	t.Helper()
	var out []domain.Passage
	require.NoError(t, s.Scan(context.Background(), func(p domain.Passage) error {
		out = append(out, p)
		return nil
	}))
	return out
}

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	open := func(t *testing.T) port.IndexStore {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("scan of empty store", func(t *testing.T) {
		s := open(t)
		assert.Empty(t, collect(t, s))
	})

	t.Run("scan is ordered by document then ordinal", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{
			passage("b", 1, "b1", 1, 0),
			passage("a", 10, "a10", 0, 1),
			passage("b", 0, "b0", 1, 1),
			passage("a", 2, "a2", 0.5, 0.5),
			passage("ab", 0, "ab0", 1, 2),
		}))

		var keys []string
		for _, p := range collect(t, s) {
			keys = append(keys, p.Key())
		}
		assert.Equal(t, []string{"a#2", "a#10", "ab#0", "b#0", "b#1"}, keys)
	})

	t.Run("round trip keeps text and vector", func(t *testing.T) {
		s := open(t)
		want := passage("doc", 3, "héllo wörld", 0.25, -1.5, 3)
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{want}))

		got := collect(t, s)
		require.Len(t, got, 1)
		assert.Equal(t, want, got[0])
	})

	t.Run("insert overwrites same key", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{passage("doc", 0, "old", 1, 0)}))
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{passage("doc", 0, "new", 0, 1)}))

		got := collect(t, s)
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].Text)
		assert.Equal(t, []float32{0, 1}, got[0].Vector)
	})

	t.Run("delete by document", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{
			passage("doc", 0, "d0", 1, 0),
			passage("doc", 1, "d1", 1, 0),
			passage("doc", 256, "d256", 1, 0),
			passage("doc2", 0, "other", 0, 1),
			passage("do", 0, "prefix", 0, 1),
		}))

		n, err := s.DeleteByDocument(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		var docs []string
		for _, p := range collect(t, s) {
			docs = append(docs, p.DocumentID)
		}
		assert.Equal(t, []string{"do", "doc2"}, docs)
	})

	t.Run("delete unknown document", func(t *testing.T) {
		s := open(t)
		n, err := s.DeleteByDocument(ctx, "missing")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("rejects invalid passages", func(t *testing.T) {
		cases := map[string]domain.Passage{
			"empty text":       passage("doc", 0, "", 1, 0),
			"empty vector":     passage("doc", 0, "text"),
			"empty document":   passage("", 0, "text", 1, 0),
			"negative ordinal": passage("doc", -1, "text", 1, 0),
		}
		for name, p := range cases {
			t.Run(name, func(t *testing.T) {
				s := open(t)
				err := s.InsertBatch(ctx, []domain.Passage{p})
				assert.ErrorIs(t, err, domain.ErrWriteFailed)
			})
		}
	})

	t.Run("rejects dimension mismatch", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{passage("a", 0, "a", 1, 0, 0)}))

		err := s.InsertBatch(ctx, []domain.Passage{passage("b", 0, "b", 1, 0)})
		assert.ErrorIs(t, err, domain.ErrWriteFailed)

		err = s.InsertBatch(ctx, []domain.Passage{
			passage("c", 0, "c", 1, 2, 3),
			passage("c", 1, "c", 1, 2),
		})
		assert.ErrorIs(t, err, domain.ErrWriteFailed)
	})

	t.Run("scan stops on callback error", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{
			passage("a", 0, "a", 1), passage("b", 0, "b", 1), passage("c", 0, "c", 1),
		}))

		stop := errors.New("stop")
		seen := 0
		err := s.Scan(ctx, func(domain.Passage) error {
			seen++
			if seen == 2 {
				return stop
			}
			return nil
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 2, seen)
	})

	t.Run("scan honours cancellation", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{passage("a", 0, "a", 1)}))

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := s.Scan(cctx, func(domain.Passage) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("fingerprint", func(t *testing.T) {
		s := open(t)
		_, ok, err := s.EmbeddingFingerprint(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		fp := domain.EmbeddingFingerprint{Model: "text-embedding-3-small", Dimension: 1536}
		require.NoError(t, s.SetEmbeddingFingerprint(ctx, fp))

		got, ok, err := s.EmbeddingFingerprint(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, fp, got)
	})

	t.Run("clear removes passages and fingerprint", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{passage("a", 0, "a", 1, 0)}))
		require.NoError(t, s.SetEmbeddingFingerprint(ctx, domain.EmbeddingFingerprint{Model: "m", Dimension: 2}))

		require.NoError(t, s.Clear(ctx))
		assert.Empty(t, collect(t, s))
		_, ok, err := s.EmbeddingFingerprint(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		// the dimension is forgotten as well
		require.NoError(t, s.InsertBatch(ctx, []domain.Passage{passage("a", 0, "a", 1, 0, 0)}))
	})

	t.Run("concurrent writers on distinct documents", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				doc := fmt.Sprintf("doc-%d", i)
				batch := []domain.Passage{passage(doc, 0, "x", 1, 0), passage(doc, 1, "y", 0, 1)}
				assert.NoError(t, s.InsertBatch(ctx, batch))
			}(i)
		}
		wg.Wait()
		assert.Len(t, collect(t, s), 16)
	})

	t.Run("closed store is unavailable", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Close())

		err := s.Scan(ctx, func(domain.Passage) error { return nil })
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		_, err = s.DeleteByDocument(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		err = s.InsertBatch(ctx, []domain.Passage{passage("a", 0, "a", 1)})
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		_, _, err = s.EmbeddingFingerprint(ctx)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		err = s.SetEmbeddingFingerprint(ctx, domain.EmbeddingFingerprint{Model: "m", Dimension: 1})
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.ErrorIs(t, s.Clear(ctx), domain.ErrStorageUnavailable)
	})
}
