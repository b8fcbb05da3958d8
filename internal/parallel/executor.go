// Package parallel runs one operation over a collection of independent
// items under a fixed concurrency ceiling.
package parallel

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ItemFunc executes the operation for a single item.
type ItemFunc func(ctx context.Context, item any) (any, error)

// Executor bounds concurrent item execution. The semaphore enforces
// the ceiling across overlapping Map calls on the same executor.
type Executor struct {
	maxConcurrent int
	sem           *semaphore.Weighted
	logger        *slog.Logger
}

// NewExecutor creates an executor with the given concurrency ceiling.
func NewExecutor(maxConcurrent int, logger *slog.Logger) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		maxConcurrent: maxConcurrent,
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		logger:        logger.With("component", "parallel"),
	}
}

// MaxConcurrent returns the configured ceiling.
func (e *Executor) MaxConcurrent() int {
	return e.maxConcurrent
}

// Map applies fn to every item, at most maxConcurrent at a time, and
// returns results in input order. Items are processed in chunks of the
// ceiling size; each chunk completes before the next starts. The first
// item failure cancels the in-flight chunk, skips all remaining
// chunks, and propagates that error unchanged (fail-fast).
func (e *Executor) Map(ctx context.Context, items []any, fn ItemFunc) ([]any, error) {
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]any, len(items))

	for start := 0; start < len(items); start += e.maxConcurrent {
		end := start + e.maxConcurrent
		if end > len(items) {
			end = len(items)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				if err := e.sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer e.sem.Release(1)

				v, err := fn(gctx, items[i])
				if err != nil {
					return err
				}
				results[i] = v
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			e.logger.Debug("parallel chunk aborted", "chunk_start", start, "error", err)
			return nil, err
		}
	}

	return results, nil
}
