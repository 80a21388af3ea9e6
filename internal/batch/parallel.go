package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// itemJob is one dispatched item.
type itemJob struct {
	index int
	item  Item
}

// processFunc handles one item and always returns a result.
type processFunc func(ctx context.Context, index int, item Item) Result

// runParallel processes items on a pool of workers and returns results in
// input order. Jobs are handed out one at a time, so once ctx is done no new
// item is dispatched; those items come back as failures carrying the
// cancellation reason. onResult is called from the calling goroutine only.
func runParallel(ctx context.Context, items []Item, workers int, process processFunc, onResult func(done int, r Result)) []Result {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(items))

	jobs := make(chan itemJob)
	results := make(chan Result, len(items))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go worker(ctx, jobs, results, &wg, process)
	}

	go func() {
		defer close(jobs)
		for i, it := range items {
			select {
			case jobs <- itemJob{index: i, item: it}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]Result, len(items))
	seen := make([]bool, len(items))
	done := 0
	for r := range results {
		ordered[r.Index] = r
		seen[r.Index] = true
		done++
		if onResult != nil {
			onResult(done, r)
		}
	}

	for i, ok := range seen {
		if ok {
			continue
		}
		r := Result{
			Index:   i,
			Input:   items[i].Label(),
			Outcome: OutcomeFailure,
			Message: "not processed: " + context.Cause(ctx).Error(),
		}
		ordered[i] = r
		done++
		if onResult != nil {
			onResult(done, r)
		}
	}
	return ordered
}

// worker processes jobs until the channel closes. A job that was handed out
// is always finished, so every dispatched item yields exactly one result.
func worker(ctx context.Context, jobs <-chan itemJob, results chan<- Result, wg *sync.WaitGroup, process processFunc) {
	defer wg.Done()

	for job := range jobs {
		r := safeProcess(ctx, job, process)
		r.Index = job.index
		results <- r
	}
}

// safeProcess runs process and turns a panic into a failed result.
func safeProcess(ctx context.Context, job itemJob, process processFunc) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Item processing panicked", "input", job.item.Label(), "panic", p)
			r = Result{
				Input:   job.item.Label(),
				Outcome: OutcomeFailure,
				Message: fmt.Sprintf("panic: %v", p),
			}
		}
	}()
	return process(ctx, job.index, job.item)
}
