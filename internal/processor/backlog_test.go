package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"cadence/internal/eventbus"
	"cadence/internal/monitor"
	"cadence/internal/provider"
	"cadence/internal/schedule"
	"cadence/pkg/logx"
)

func newBacklogProcessor(t *testing.T, st *memStore, prov provider.Provider, now time.Time) *Processor {
	t.Helper()
	cfg := Config{
		MinPending:        2,
		TargetPending:     5,
		BacklogRetryDelay: 10 * time.Millisecond,
	}
	p := New(cfg, st, prov, monitor.New(monitor.Config{}, logx.Nop()), eventbus.New(), logx.Nop())
	p.now = fixedClock(now)
	return p
}

func TestReplenishBacklogTopsUpLowSchedules(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // a Monday
	low := newTestSchedule(t, now, time.Hour)           // 1 pending, below min of 2
	full := newTestSchedule(t, now, time.Hour, 2*time.Hour, 3*time.Hour)
	st := newMemStore(low, full)
	p := newBacklogProcessor(t, st, okProvider(), now)

	if err := p.ReplenishBacklog(context.Background()); err != nil {
		t.Fatalf("ReplenishBacklog: %v", err)
	}

	got := st.get(t, low.ID)
	if n := got.PendingCount(); n != 5 {
		t.Fatalf("pending = %d, want target 5", n)
	}
	// Appended items follow the weekly Monday 09:00 pattern, strictly after
	// the last already-scheduled item.
	last := now.Add(time.Hour)
	for _, it := range got.Items[1:] {
		if !it.ScheduledFor.After(last) {
			t.Fatalf("occurrence %s not after %s", it.ScheduledFor, last)
		}
		last = it.ScheduledFor
	}

	if got := st.get(t, full.ID); got.PendingCount() != 3 {
		t.Fatalf("full schedule touched: pending = %d, want 3", got.PendingCount())
	}
}

func TestReplenishBacklogToleratesPartialGeneration(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	low := newTestSchedule(t, now, time.Hour)
	st := newMemStore(low)
	prov := provider.Func(func(_ context.Context, topic string, count int) ([]provider.Idea, error) {
		return []provider.Idea{{Description: topic + " only one"}}, errors.New("quota hit")
	})
	p := newBacklogProcessor(t, st, prov, now)

	if err := p.ReplenishBacklog(context.Background()); err != nil {
		t.Fatalf("partial generation should not fail the run: %v", err)
	}
	if n := st.get(t, low.ID).PendingCount(); n != 2 {
		t.Fatalf("pending = %d, want 2 (1 existing + 1 partial)", n)
	}
}

func TestReplenishBacklogDeactivatesExhaustedWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s, err := schedule.New("owner-1", "garden tips", "UTC", weeklyPattern(),
		schedule.ActiveWindow{Start: now.Add(-48 * time.Hour), End: now.Add(time.Hour)}, now)
	if err != nil {
		t.Fatal(err)
	}
	st := newMemStore(s)
	p := newBacklogProcessor(t, st, okProvider(), now)

	if err := p.ReplenishBacklog(context.Background()); err != nil {
		t.Fatalf("ReplenishBacklog: %v", err)
	}
	got := st.get(t, s.ID)
	if got.IsActive {
		t.Fatal("schedule with exhausted active window should be deactivated")
	}
	if len(got.Items) != 0 {
		t.Fatalf("items appended past active window: %d", len(got.Items))
	}
}

func TestReplenishBacklogSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	st := newMemStore(newTestSchedule(t, now))
	p := newBacklogProcessor(t, st, okProvider(), now)

	if !p.backlogLock.TryAcquire() {
		t.Fatal("could not pre-acquire lock")
	}
	defer p.backlogLock.Release()

	if err := p.ReplenishBacklog(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
}
