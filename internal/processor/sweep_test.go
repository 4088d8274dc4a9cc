package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"cadence/internal/eventbus"
	"cadence/internal/monitor"
	"cadence/internal/schedule"
	"cadence/pkg/logx"
)

func newSweepProcessor(t *testing.T, st *memStore, now time.Time) *Processor {
	t.Helper()
	p := New(Config{StaleCutoff: 40 * time.Minute}, st, okProvider(),
		monitor.New(monitor.Config{}, logx.Nop()), eventbus.New(), logx.Nop())
	p.now = fixedClock(now)
	return p
}

func TestSweepStaleExpiresOldPendingOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// item a: 1h overdue -> expire; item b: 10m overdue -> keep;
	// item c: 2h overdue but already completed -> keep.
	s := newTestSchedule(t, now, -time.Hour, -10*time.Minute, -2*time.Hour)
	if err := s.Items[2].MarkProcessing(now); err != nil {
		t.Fatal(err)
	}
	if err := s.Items[2].MarkCompleted(now, "ref"); err != nil {
		t.Fatal(err)
	}
	st := newMemStore(s)
	p := newSweepProcessor(t, st, now)

	expired, err := p.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	got := st.get(t, s.ID)
	if got.Items[0].Status != schedule.StatusFailed {
		t.Fatalf("stale item status = %s, want failed", got.Items[0].Status)
	}
	if got.Items[0].FailureMessage == "" {
		t.Fatal("expired item should carry a failure message")
	}
	if got.Items[1].Status != schedule.StatusPending {
		t.Fatalf("fresh item status = %s, want pending", got.Items[1].Status)
	}
	if got.Items[2].Status != schedule.StatusCompleted {
		t.Fatalf("completed item status = %s, want completed", got.Items[2].Status)
	}
}

func TestSweepStaleRecoversStuckProcessingItems(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// item a: picked up 2h ago and never finished -> back to pending;
	// item b: picked up 5m ago -> still within the stuck cutoff, keep.
	s := newTestSchedule(t, now, time.Hour, time.Hour)
	if err := s.Items[0].MarkProcessing(now.Add(-2 * time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.Items[1].MarkProcessing(now.Add(-5 * time.Minute)); err != nil {
		t.Fatal(err)
	}
	st := newMemStore(s)
	p := newSweepProcessor(t, st, now)

	// The regular run never touches non-pending items, so without the
	// sweep these would stay in processing forever.
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := st.get(t, s.ID); got.Items[0].Status != schedule.StatusProcessing {
		t.Fatalf("status after run = %s, want processing", got.Items[0].Status)
	}

	if _, err := p.SweepStale(context.Background()); err != nil {
		t.Fatalf("SweepStale: %v", err)
	}

	got := st.get(t, s.ID)
	if got.Items[0].Status != schedule.StatusPending {
		t.Fatalf("stuck item status = %s, want pending", got.Items[0].Status)
	}
	if !got.Items[0].ProcessingAt.IsZero() {
		t.Fatalf("ProcessingAt = %v, want cleared", got.Items[0].ProcessingAt)
	}
	if got.Items[1].Status != schedule.StatusProcessing {
		t.Fatalf("fresh processing item status = %s, want processing", got.Items[1].Status)
	}
}

func TestSweepStaleNoWriteWhenNothingExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := newTestSchedule(t, now, time.Hour)
	st := newMemStore(s)
	p := newSweepProcessor(t, st, now)

	expired, err := p.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expired = %d, want 0", expired)
	}
	if st.saveCalls != 0 {
		t.Fatalf("saveCalls = %d, want 0 when nothing expired", st.saveCalls)
	}
}

func TestSweepStaleSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	st := newMemStore(newTestSchedule(t, now))
	p := newSweepProcessor(t, st, now)

	if !p.sweepLock.TryAcquire() {
		t.Fatal("could not pre-acquire lock")
	}
	defer p.sweepLock.Release()

	if _, err := p.SweepStale(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
}
