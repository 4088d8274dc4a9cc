package exec

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when an operation misses its hard deadline.
var ErrTimeout = errors.New("operation timed out")

// WithTimeout races op against a hard deadline. If the deadline fires
// first, the caller gets ErrTimeout while op keeps running in its
// goroutine until it observes the canceled context — there is no forced
// termination, so wrapped operations must be idempotent.
//
// Used at two granularities: an overall deadline around one processor run,
// and a per-operation deadline around each store call.
func WithTimeout(ctx context.Context, d time.Duration, op func(ctx context.Context) error) error {
	if d <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, d)
	// Buffered so the abandoned op can finish and exit without a receiver.
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		cancel()
		return err
	case <-opCtx.Done():
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %s", ErrTimeout, d)
	}
}
