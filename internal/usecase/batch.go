package usecase

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"docingest/internal/adapter/fs"
	"docingest/internal/domain"
	"docingest/internal/port"
)

// ProgressFunc is called after each file finishes, successfully or not.
type ProgressFunc func(processed, total int, currentFile string)

// BatchUseCase ingests every matching file under a directory, each file as
// an independent run of the ingest pipeline.
type BatchUseCase struct {
	ingest       *IngestUseCase
	walker       port.FileWalker
	concurrency  int
	maxFileBytes int64
}

func NewBatchUseCase(ingest *IngestUseCase, walker port.FileWalker, concurrency int, maxFileBytes int64) *BatchUseCase {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchUseCase{
		ingest:       ingest,
		walker:       walker,
		concurrency:  concurrency,
		maxFileBytes: maxFileBytes,
	}
}

// BatchRequest carries the fields shared by every file of a batch.
type BatchRequest struct {
	Root     string
	UserID   string
	Category string
}

// FileOutcome is the result of one file.
type FileOutcome struct {
	Path       string
	DocumentID string
	Chunks     int
	Gaps       int
	Err        error
}

type BatchResult struct {
	Outcomes  []FileOutcome
	Succeeded int
	Failed    int
	Chunks    int
}

// Run walks req.Root and ingests files concurrently. A failing file is
// recorded in its outcome and does not stop the others; only cancellation
// of ctx aborts the batch.
func (b *BatchUseCase) Run(ctx context.Context, req BatchRequest, progress ProgressFunc) (*BatchResult, error) {
	files, err := b.walker.Walk(req.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	outcomes := make([]FileOutcome, len(files))
	var (
		mu        sync.Mutex
		processed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			outcomes[i] = b.ingestFile(gctx, req, file)

			mu.Lock()
			processed++
			done := processed
			mu.Unlock()
			if progress != nil {
				progress(done, len(files), file.RelPath)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
		result.Chunks += o.Chunks
	}
	return result, nil
}

func (b *BatchUseCase) ingestFile(ctx context.Context, req BatchRequest, file port.FileInfo) FileOutcome {
	outcome := FileOutcome{Path: file.RelPath}

	data, err := fs.ReadFile(file.Path, b.maxFileBytes)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	res, err := b.ingest.Ingest(ctx, domain.Upload{
		Filename: file.RelPath,
		Data:     data,
		UserID:   req.UserID,
		Category: req.Category,
	})
	if err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.DocumentID = res.DocumentID
	outcome.Chunks = res.Chunks
	outcome.Gaps = len(res.Report.Gaps)
	return outcome
}
