package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/config"
	"ragcore/internal/domain"
)

// run executes the root command with fresh flag state.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, rootDir, verbose = "", "", false
	ingestID, ingestRebuild = "", false
	queryText, queryTopK, queryJSON = "", 0, false
	statusJSON = false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return out.String(), err
}

func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Chunk.Size = 40
	cfg.Chunk.Overlap = 5
	cfg.Cache.Enabled = false
	cfg.Ingest.Includes = []string{"**/*"}
	require.NoError(t, cfg.Save(filepath.Join(dir, "ragcore.yaml")))

	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "refunds.md"),
		[]byte("Refunds are issued within fourteen days of a return."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "shipping.txt"),
		[]byte("Shipping takes three to five business days."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "image.png"), []byte{0x89, 'P', 'N', 'G'}, 0644))
	return dir
}

func TestIngestQueryRemove(t *testing.T) {
	dir := setupProject(t)

	out, err := run(t, "ingest", filepath.Join(dir, "docs"), "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Files ingested: 2")
	assert.Contains(t, out, "Files skipped:  1")

	out, err = run(t, "query", "-q", "Refunds are issued within fourteen days", "-k", "1", "--json", "--dir", dir)
	require.NoError(t, err)
	var results []domain.ScoredPassage
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "refunds.md", results[0].DocumentID)

	out, err = run(t, "status", "--json", "--dir", dir)
	require.NoError(t, err)
	var status domain.StoreStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 2, status.Documents)
	require.NotNil(t, status.Fingerprint)

	out, err = run(t, "remove", "refunds.md", "missing", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed refunds.md")
	assert.Contains(t, out, "missing: not found")

	out, err = run(t, "query", "-q", "refunds", "--dir", dir)
	require.NoError(t, err)
	assert.NotContains(t, out, "refunds.md#")
}

func TestIngestSingleFileWithID(t *testing.T) {
	dir := setupProject(t)

	out, err := run(t, "ingest", filepath.Join(dir, "docs", "shipping.txt"), "--id", "ship", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested")

	out, err = run(t, "query", "-q", "shipping", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ship#0")
}

func TestIngestIDNeedsSingleFile(t *testing.T) {
	dir := setupProject(t)
	docs := filepath.Join(dir, "docs")

	_, err := run(t, "ingest", filepath.Join(docs, "refunds.md"), filepath.Join(docs, "shipping.txt"), "--id", "x", "--dir", dir)
	assert.Error(t, err)

	_, err = run(t, "ingest", docs, "--id", "x", "--dir", dir)
	assert.Error(t, err)
}

func TestIngestUnsupportedFileFails(t *testing.T) {
	dir := setupProject(t)

	out, err := run(t, "ingest", filepath.Join(dir, "docs", "image.png"), "--dir", dir)
	assert.Error(t, err)
	assert.Contains(t, out, "image.png")
}

func TestQueryRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragcore.yaml"),
		[]byte("chunk:\n  size: 10\n  overlap: 10\n"), 0644))

	_, err := run(t, "query", "-q", "x", "--dir", dir)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "<1s"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}
