package extractor

import (
	"context"
	"runtime"

	"github.com/leapstack-labs/lineagekit/pkg/core"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of extracting one task in a batch.
type Result struct {
	Task     *core.Task
	Metadata *core.Metadata
	Err      error
}

// BatchOptions configures ExtractAll.
type BatchOptions struct {
	// Concurrency caps parallel extractions. Zero means GOMAXPROCS.
	Concurrency int
}

// ExtractAll extracts every task concurrently. Results keep the order of
// tasks; a task's own failure is reported in its Result.Err. The returned
// error is non-nil only when ctx is cancelled before all tasks ran.
func (r *Extractors) ExtractAll(ctx context.Context, tasks []*core.Task, opts BatchOptions) ([]Result, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, task := range tasks {
		results[i].Task = task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return err
			}
			md, err := r.Extract(task)
			results[i].Metadata = md
			results[i].Err = err
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
