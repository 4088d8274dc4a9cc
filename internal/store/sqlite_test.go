package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cadence/internal/schedule"
	logx "cadence/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "cadence.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testSchedule(t *testing.T, owner string, now time.Time) *schedule.Schedule {
	t.Helper()
	s, err := schedule.New(owner, "home espresso", "UTC",
		schedule.Pattern{Frequency: schedule.FreqWeekly, Slots: []schedule.Slot{{Day: time.Friday, At: "10:00"}}},
		schedule.ActiveWindow{Start: now.Add(-time.Hour)},
		now,
	)
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s := testSchedule(t, "owner-1", now)
	it, err := schedule.NewItem("grind size basics", []string{"burr vs blade"}, now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	s.AppendItems(now, it)

	if err := st.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.OwnerID != "owner-1" || got.Topic != "home espresso" {
		t.Fatalf("loaded schedule = %+v", got)
	}
	if len(got.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(got.Items))
	}
	if !got.Items[0].ScheduledFor.Equal(now.Add(time.Hour)) {
		t.Fatalf("scheduled_for = %v", got.Items[0].ScheduledFor)
	}
	if got.Items[0].Status != schedule.StatusPending {
		t.Fatalf("status = %s", got.Items[0].Status)
	}

	// Status transitions survive a save/load cycle.
	if err := got.Items[0].MarkProcessing(now); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := st.Save(ctx, got); err != nil {
		t.Fatalf("Save after transition: %v", err)
	}
	again, err := st.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if again.Items[0].Status != schedule.StatusProcessing || again.Items[0].ProcessingAt.IsZero() {
		t.Fatalf("reloaded item = %+v", again.Items[0])
	}
}

func TestSQLiteFindDueSchedules(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	due := testSchedule(t, "owner-due", now)
	dueItem, _ := schedule.NewItem("due now", nil, now, now)
	due.AppendItems(now, dueItem)

	future := testSchedule(t, "owner-future", now)
	futureItem, _ := schedule.NewItem("later", nil, now.Add(2*time.Hour), now)
	future.AppendItems(now, futureItem)

	inactive := testSchedule(t, "owner-inactive", now)
	inactiveItem, _ := schedule.NewItem("due but off", nil, now, now)
	inactive.AppendItems(now, inactiveItem)
	inactive.Deactivate(now)

	for _, s := range []*schedule.Schedule{due, future, inactive} {
		if err := st.Save(ctx, s); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	found, err := st.FindDueSchedules(ctx, now, 5*time.Minute)
	if err != nil {
		t.Fatalf("FindDueSchedules: %v", err)
	}
	if len(found) != 1 || found[0].ID != due.ID {
		ids := make([]string, len(found))
		for i, s := range found {
			ids[i] = s.OwnerID
		}
		t.Fatalf("found = %v, want only owner-due", ids)
	}
}

func TestSQLiteOneActiveSchedulePerOwner(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first := testSchedule(t, "owner-1", now)
	if err := st.Save(ctx, first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	second := testSchedule(t, "owner-1", now)
	if err := st.Save(ctx, second); err == nil {
		t.Fatal("expected unique violation for a second active schedule")
	}

	// After deactivating the first, a new active schedule is allowed.
	first.Deactivate(now)
	if err := st.Save(ctx, first); err != nil {
		t.Fatalf("Save deactivated: %v", err)
	}
	if err := st.Save(ctx, second); err != nil {
		t.Fatalf("Save second after deactivation: %v", err)
	}
}

func TestSQLiteDelete(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s := testSchedule(t, "owner-1", now)
	it, _ := schedule.NewItem("post", nil, now, now)
	s.AppendItems(now, it)
	if err := st.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := st.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Load(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after delete: %v, want ErrNotFound", err)
	}
	if err := st.Delete(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete: %v, want ErrNotFound", err)
	}
}
