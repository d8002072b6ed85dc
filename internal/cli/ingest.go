package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ragcore/internal/app"
)

var (
	ingestID      string
	ingestRebuild bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir>...",
	Short: "Ingest documents",
	Long: `Ingest files or directories. Each document replaces any passages previously
stored under the same id. Files inside a directory are identified by their
path relative to that directory; a single file defaults to its file name.

Examples:
  ragcore ingest docs/                  # Ingest every supported file under docs/
  ragcore ingest report.pdf --id q3     # Ingest one file under an explicit id
  ragcore ingest docs/ --rebuild        # Start over after changing the embedding model`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document id (single file only)")
	ingestCmd.Flags().BoolVar(&ingestRebuild, "rebuild", false, "clear a store built with a different embedding model")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestID != "" && len(args) != 1 {
		return fmt.Errorf("--id requires exactly one file")
	}

	a, err := newApp(app.WithRebuild(ingestRebuild))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	failed := 0

	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("path does not exist: %w", err)
		}

		if !info.IsDir() {
			n, err := a.IngestFile(ctx, path, ingestID)
			if err != nil {
				fmt.Fprintf(out, "  - %s: %v\n", arg, err)
				failed++
				continue
			}
			fmt.Fprintf(out, "Ingested %s (%d passages)\n", arg, n)
			continue
		}

		if ingestID != "" {
			return fmt.Errorf("--id cannot be used with a directory")
		}

		fmt.Fprintf(out, "Scanning %s...\n", path)
		result, err := a.IngestDirectory(ctx, path, newProgress(cmd))
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}

		fmt.Fprintf(out, "\nIngestion complete:\n")
		fmt.Fprintf(out, "  Files ingested: %d\n", result.FilesIngested)
		fmt.Fprintf(out, "  Files skipped:  %d (unsupported)\n", result.FilesSkipped)
		fmt.Fprintf(out, "  Passages:       %d\n", result.Passages)

		if len(result.Errors) > 0 {
			fmt.Fprintf(out, "\nWarnings:\n")
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  - %s\n", e)
			}
			failed += result.FilesFailed
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d document(s) failed to ingest", failed)
	}
	return nil
}

// newProgress returns a progress callback drawing a bar on stderr once the
// total is known.
func newProgress(cmd *cobra.Command) func(done, total int) {
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	return func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}

		_ = bar.Set(done)

		if done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
