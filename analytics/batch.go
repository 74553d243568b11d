package analytics

import (
	"context"
	"sync"
	"time"
)

// BatchOptions controls how a slice of requests is executed.
type BatchOptions struct {
	// ContinueOnError keeps executing the remaining requests after a
	// failure. When false, the first failure stops the batch and every
	// unstarted request is reported as skipped.
	ContinueOnError bool

	// Parallelism bounds concurrent executions. Zero or one means
	// sequential. Values above one require ContinueOnError, since
	// skip-after-failure is only meaningful with a defined order.
	Parallelism int

	// Budget bounds the whole batch's wall time. Zero means no bound.
	// When the budget runs out, in-flight executions are cancelled and
	// unstarted requests are skipped.
	Budget time.Duration
}

// ExecuteBatch runs the requests in order and returns one Result per
// request, index-aligned with the input. Individual failures are reported
// through each Result, never as the batch error; the returned error is
// non-nil only for batch-level problems: an empty slice (ErrEmptyBatch)
// or an invalid option combination (*ConfigError).
func (x *Executor) ExecuteBatch(ctx context.Context, requests []Request, opts BatchOptions) ([]Result, error) {
	if len(requests) == 0 {
		return nil, ErrEmptyBatch
	}
	if opts.Parallelism > 1 && !opts.ContinueOnError {
		return nil, &ConfigError{Message: "parallel batches require ContinueOnError"}
	}

	if opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}

	if opts.Parallelism > 1 {
		return x.batchParallel(ctx, requests, opts.Parallelism), nil
	}
	return x.batchSequential(ctx, requests, opts.ContinueOnError), nil
}

func (x *Executor) batchSequential(ctx context.Context, requests []Request, continueOnError bool) []Result {
	results := make([]Result, len(requests))
	stopped := false
	for i, req := range requests {
		if stopped {
			results[i] = x.skipped(req)
			continue
		}
		res, err := x.Execute(ctx, req)
		results[i] = res
		if err != nil && !continueOnError {
			stopped = true
		}
	}
	return results
}

func (x *Executor) batchParallel(ctx context.Context, requests []Request, parallelism int) []Result {
	results := make([]Result, len(requests))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				results[i] = x.skipped(req)
				return
			}
			results[i], _ = x.Execute(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return results
}

// skipped builds the result for a request that was never started.
func (x *Executor) skipped(req Request) Result {
	return Result{
		RunID:   x.newRunID(),
		Request: req,
		Status:  StatusSkipped,
		Phase:   PhaseInit,
	}
}
