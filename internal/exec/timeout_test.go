package exec

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithTimeoutPassesThrough(t *testing.T) {
	t.Parallel()
	err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	boom := errors.New("boom")
	err = WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want op error", err)
	}
}

func TestWithTimeoutExpiry(t *testing.T) {
	t.Parallel()
	var finished atomic.Bool
	release := make(chan struct{})

	start := time.Now()
	err := WithTimeout(context.Background(), 30*time.Millisecond, func(ctx context.Context) error {
		<-release
		finished.Store(true)
		return nil
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("caller waited %v, should stop at the deadline", elapsed)
	}
	// The underlying work is abandoned, not stopped.
	if finished.Load() {
		t.Fatal("op should still be blocked when the caller returns")
	}
	close(release)
}

func TestWithTimeoutZeroDisables(t *testing.T) {
	t.Parallel()
	ran := false
	err := WithTimeout(context.Background(), 0, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("err=%v ran=%v", err, ran)
	}
}

func TestWithTimeoutParentCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := WithTimeout(ctx, time.Minute, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond) // simulate slow unwinding
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWithTimeoutOpPanic(t *testing.T) {
	t.Parallel()
	err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		panic("op exploded")
	})
	if err == nil {
		t.Fatal("panic should surface as an error")
	}
}
