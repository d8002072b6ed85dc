package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"ragcore/internal/port"
)

// Ingester is the single-document ingestion step used by batch ingestion.
type Ingester interface {
	Ingest(ctx context.Context, documentID, text string) (int, error)
}

// BatchIngestUseCase ingests every supported file below a directory.
type BatchIngestUseCase struct {
	ingester  Ingester
	walker    port.FileWalker
	extractor port.Extractor
	workers   int
	logger    *slog.Logger
}

func NewBatchIngestUseCase(
	ingester Ingester,
	walker port.FileWalker,
	extractor port.Extractor,
	workers int,
	logger *slog.Logger,
) *BatchIngestUseCase {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BatchIngestUseCase{
		ingester:  ingester,
		walker:    walker,
		extractor: extractor,
		workers:   workers,
		logger:    logger,
	}
}

// BatchResult contains the results of a directory ingestion.
type BatchResult struct {
	FilesIngested int
	FilesSkipped  int
	FilesFailed   int
	Passages      int
	Errors        []FileError
}

type FileError struct {
	DocumentID string
	Err        error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.DocumentID, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// Progress is called after each file with the number of files done and the total.
type Progress func(done, total int)

// IngestDirectory walks root and ingests each file under its slash-separated
// path relative to root. A file that fails does not stop the others; its
// error is reported in the result. Only walking errors and cancellation are
// returned as errors.
func (u *BatchIngestUseCase) IngestDirectory(ctx context.Context, root string, progress Progress) (*BatchResult, error) {
	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	result := &BatchResult{}
	if s, ok := u.extractor.(interface{ Supports(name string) bool }); ok {
		supported := files[:0]
		for _, f := range files {
			if s.Supports(f.Path) {
				supported = append(supported, f)
			} else {
				result.FilesSkipped++
			}
		}
		files = supported
	}

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)

	for _, file := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n, err := u.ingestFile(gctx, file)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				result.FilesFailed++
				result.Errors = append(result.Errors, FileError{DocumentID: file.RelPath, Err: err})
				u.logger.Warn("file ingestion failed", "document_id", file.RelPath, "error", err)
			} else {
				result.FilesIngested++
				result.Passages += n
			}
			if progress != nil {
				progress(done, len(files))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (u *BatchIngestUseCase) ingestFile(ctx context.Context, file port.FileInfo) (int, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}
	text, err := u.extractor.Extract(file.Path, data)
	if err != nil {
		return 0, fmt.Errorf("failed to extract text: %w", err)
	}
	return u.ingester.Ingest(ctx, file.RelPath, text)
}

// Failed returns the joined per-file errors, or nil.
func (r *BatchResult) Failed() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}
