package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/salvage/internal/model"
	"github.com/nao1215/salvage/internal/scanner"
)

// BatchProcessor recovers from multiple sources concurrently.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding
// batch functionality to Pipeline because:
// 1. It keeps the Pipeline focused on single-run execution
// 2. Per-source pipelines isolate run state (recovery directory, state
//    machine) while a shared catalog, passed to the factory's pipelines
//    via WithCatalog, still deduplicates content across sources
// 3. It allows different batch strategies (e.g., rate limiting, retries)
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each source.
	// We use a factory so each run gets fresh run state; sharing a
	// catalog or store across runs is the factory's choice.
	pipelineFactory func() (*Pipeline, error)

	// concurrency is the maximum number of concurrent runs.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed run reports in source order.
	// Access is synchronized via mutex.
	results []*model.RunReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
// Default is 4 if not specified; recovery is disk-bound, so modest
// parallelism is usually the sweet spot.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each source to create a
// fresh pipeline instance. This ensures run state doesn't leak between
// sources and allows per-source customization if needed.
func NewBatchProcessor(pipelineFactory func() (*Pipeline, error), opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     4,
		results:         make([]*model.RunReport, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch recovers from multiple sources concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// Returns one report per source, in source order, even for sources that
// failed; failures are recorded on the report. The error return
// indicates the batch was cancelled or a pipeline could not be
// constructed at all, which is configuration trouble that would fail
// every remaining source the same way.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, sources []scanner.Source) ([]*model.RunReport, error) {
	bp.logger.Info("starting batch recovery",
		"total_sources", len(sources),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Pre-allocate results slice to maintain order
	bp.results = make([]*model.RunReport, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, src := range sources {
		g.Go(func() error {
			// Check for cancellation before starting
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			bp.logger.Info("recovering source",
				"source", src.Locator(),
				"index", i+1,
				"total", len(sources),
			)

			p, err := bp.pipelineFactory()
			if err != nil {
				bp.setResult(i, failedReport(src, err))
				return err
			}

			artifacts, report, err := p.Run(gctx, src)
			if err != nil {
				// This source could not start; the others may be fine.
				bp.setResult(i, failedReport(src, err))
				bp.logger.Warn("source recovery failed",
					"source", src.Locator(),
					"error", err,
				)
				return nil
			}

			// Drain the sequence; the report accumulates as it goes.
			for range artifacts {
			}
			bp.setResult(i, report)

			bp.logger.Info("source recovery completed",
				"source", src.Locator(),
				"recovered", report.Stats.Recovered,
				"duplicates", report.Stats.Duplicates,
			)

			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch recovery complete",
		"total_sources", len(sources),
		"elapsed", time.Since(startTime),
	)

	return bp.results, err
}

// setResult stores a report at its source's index.
func (bp *BatchProcessor) setResult(i int, report *model.RunReport) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.results[i] = report
}

// failedReport builds the report for a source whose run never started.
func failedReport(src scanner.Source, err error) *model.RunReport {
	report := model.NewRunReport(src.Locator(), src.Kind)
	report.Error = err
	report.ErrorMessage = err.Error()
	report.Finish()
	return report
}
