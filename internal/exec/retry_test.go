package exec

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryExhaustion(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	attempts := 0
	var gaps []time.Duration
	last := time.Now()

	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond}, func(ctx context.Context) error {
		now := time.Now()
		if attempts > 0 {
			gaps = append(gaps, now.Sub(last))
		}
		last = now
		attempts++
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the final error", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(gaps) != 2 {
		t.Fatalf("gaps = %d, want 2", len(gaps))
	}
	// Exponential: ~100ms then ~200ms. Generous upper bounds for CI noise.
	if gaps[0] < 100*time.Millisecond || gaps[0] > 180*time.Millisecond {
		t.Fatalf("first gap = %v, want ~100ms", gaps[0])
	}
	if gaps[1] < 200*time.Millisecond || gaps[1] > 320*time.Millisecond {
		t.Fatalf("second gap = %v, want ~200ms", gaps[1])
	}
}

func TestRetrySucceedsMidway(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryNoRetryAbortsImmediately(t *testing.T) {
	t.Parallel()
	bad := errors.New("malformed input")
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return NoRetry(bad)
	})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, bad) {
		t.Fatalf("err = %v, want unwrapped original", err)
	}
}

func TestRetryContextCancelDuringBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second}, func(ctx context.Context) error {
		attempts++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (cancel hit during backoff)", attempts)
	}
}
