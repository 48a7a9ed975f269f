// Package dispatcher implements a bounded-concurrency worker pool over
// per-function Work Items: an errgroup with a worker limit, with each
// result written into its own pre-indexed output slot so result order
// never depends on completion order.
package dispatcher

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"
)

// ProcessFunc does the full per-item pipeline (cache lookup/execute on hit,
// generate/validate/refactor/store/execute on miss) for one Work Item. It
// must never panic on a recoverable per-item failure - any such failure
// should be reported as a FailureResult instead, so no Work Item failure
// affects any other Work Item.
type ProcessFunc func(ctx context.Context, item model.WorkItem) model.WorkResult

// Options configures a dispatch run.
type Options struct {
	// MaxWorkers bounds concurrently executing Work Items. Zero or
	// negative selects a runtime.NumCPU()-derived default.
	MaxWorkers int
}

func (o Options) workers() int {
	if o.MaxWorkers > 0 {
		return o.MaxWorkers
	}
	w := runtime.NumCPU()
	if w > 12 {
		w = 12
	}
	if w < 2 {
		w = 2
	}
	return w
}

// RunBatch dispatches items across a bounded pool of goroutines, running
// process on each, and returns results in the same order as items
// regardless of completion order. A context cancellation stops new work
// from starting; in-flight items still report whatever result their own
// process call returns (recoverable failures surface as FailureResult; see
// ProcessFunc and safeProcess for the panic-safety contract).
func RunBatch(ctx context.Context, items []model.WorkItem, opts Options, process ProcessFunc) []model.WorkResult {
	results := make([]model.WorkResult, len(items))
	if len(items) == 0 {
		return results
	}

	workers := opts.workers()
	var eg errgroup.Group
	eg.SetLimit(workers)

	logging.Dispatcher("dispatcher: running %d work items across %d workers", len(items), workers)

	for i, item := range items {
		select {
		case <-ctx.Done():
			results[i] = model.FailureResult(model.KindCancelled, ctx.Err().Error())
			continue
		default:
		}

		idx, it := i, item
		eg.Go(func() error {
			if ctx.Err() != nil {
				results[idx] = model.FailureResult(model.KindCancelled, ctx.Err().Error())
				return nil
			}
			results[idx] = safeProcess(ctx, it, process)
			return nil
		})
	}

	eg.Wait()
	return results
}

// safeProcess isolates one Work Item's pipeline so an unexpected panic
// inside process (e.g. a bug in a generator or validator code path) never
// takes down the rest of the batch and never leaves a result slot unset.
func safeProcess(ctx context.Context, item model.WorkItem, process ProcessFunc) (result model.WorkResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryDispatcher).Warn("dispatcher: work item %s panicked: %v", item.Function.Name, r)
			result = model.FailureResult(model.KindExecution, "internal panic during processing")
		}
	}()
	return process(ctx, item)
}
