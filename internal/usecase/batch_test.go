package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/adapter/extract"
	"ragcore/internal/adapter/fs"
	"ragcore/internal/adapter/memstore"
	"ragcore/internal/domain"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestBatchIngestDirectory(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.txt":           "first document",
		"notes/b.md":      "second document",
		"notes/deep/c.md": "third document",
		"empty.txt":       "   ",
		"logo.png":        "\x89PNG",
	})

	store := memstore.NewMemoryStore()
	ingest := NewIngestUseCase(store, newChunker(t, 50, 5), newFakeEmbedder())
	batch := NewBatchIngestUseCase(ingest, fs.NewWalker(nil, nil), extract.NewRegistry(), 3, nil)

	var mu sync.Mutex
	var calls []int
	result, err := batch.IngestDirectory(context.Background(), root, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 4, total)
		calls = append(calls, done)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.FilesIngested)
	assert.Equal(t, 1, result.FilesSkipped)
	assert.Equal(t, 1, result.FilesFailed)
	assert.Equal(t, 3, result.Passages)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "empty.txt", result.Errors[0].DocumentID)
	assert.ErrorIs(t, result.Failed(), domain.ErrEmptyContent)

	sort.Ints(calls)
	assert.Equal(t, []int{1, 2, 3, 4}, calls)

	var ids []string
	for _, p := range snapshot(t, store) {
		ids = append(ids, p.DocumentID)
	}
	assert.Equal(t, []string{"a.txt", "notes/b.md", "notes/deep/c.md"}, ids)
}

func TestBatchIngestMissingDirectory(t *testing.T) {
	ingest := NewIngestUseCase(memstore.NewMemoryStore(), newChunker(t, 50, 5), newFakeEmbedder())
	batch := NewBatchIngestUseCase(ingest, fs.NewWalker(nil, nil), extract.NewRegistry(), 2, nil)

	_, err := batch.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestBatchIngestCancelled(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "one", "b.txt": "two"})
	ingest := NewIngestUseCase(memstore.NewMemoryStore(), newChunker(t, 50, 5), newFakeEmbedder())
	batch := NewBatchIngestUseCase(ingest, fs.NewWalker(nil, nil), extract.NewRegistry(), 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := batch.IngestDirectory(ctx, root, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchResultFailedIsNilWithoutErrors(t *testing.T) {
	assert.NoError(t, (&BatchResult{}).Failed())
}
