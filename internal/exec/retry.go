package exec

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds retries of a failing operation. The delay before
// attempt n+1 is InitialDelay * 2^(n-1): no jitter, callers that need
// herd protection should add their own.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	return p
}

// Retry runs op up to p.MaxAttempts times, sleeping with exponential
// backoff between attempts. It returns nil on the first success and the
// last error once attempts are exhausted. Backoff sleeps are context-aware;
// a canceled context aborts with ctx.Err().
//
// Errors wrapped with NoRetry abort immediately without further attempts.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			return nr.err
		}
		if attempt >= p.MaxAttempts {
			break
		}

		delay := p.InitialDelay << (attempt - 1)
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return ctx.Err()
		case <-tmr.C:
		}
	}
	return err
}

// NoRetry marks an error as non-retryable so Retry won't waste attempts on
// permanent failures (validation errors, malformed input).
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
