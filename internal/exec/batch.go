package exec

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BatchResult is the per-item outcome of a batch run. Index refers to the
// item's position in the original input slice.
type BatchResult struct {
	Index int
	Err   error
}

// ProcessBatches partitions items into consecutive groups of at most
// batchSize, runs worker on every item of a group concurrently, and sleeps
// pause between groups (skipped after the final group). This throttles
// aggregate load on downstream providers while still parallelizing within
// a bound.
//
// A worker failure (or panic) is captured as that item's result; it never
// stops sibling items or later batches. Context cancellation stops before
// the next batch; items not attempted carry ctx.Err().
func ProcessBatches[T any](ctx context.Context, items []T, batchSize int, pause time.Duration, worker func(ctx context.Context, item T) error) []BatchResult {
	if batchSize <= 0 {
		batchSize = 1
	}
	results := make([]BatchResult, len(items))
	for i := range results {
		results[i].Index = i
	}

	for start := 0; start < len(items); start += batchSize {
		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				results[i].Err = err
			}
			return results
		}

		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx].Err = runWorker(ctx, items[idx], worker)
			}(i)
		}
		wg.Wait()

		if end < len(items) && pause > 0 {
			tmr := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
			case <-tmr.C:
			}
		}
	}
	return results
}

func runWorker[T any](ctx context.Context, item T, worker func(ctx context.Context, item T) error) (err error) {
	// One bad item must not take down its siblings.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return worker(ctx, item)
}
