package store

import (
	"context"
	"errors"
	"time"

	"cadence/internal/schedule"
)

var (
	ErrNotFound = errors.New("schedule not found")
	ErrDisabled = errors.New("storage disabled")
)

// Store is the persistence API consumed by the processor. Every call is
// expected to be wrapped by the caller's per-operation timeout guard; the
// store itself only honors ctx.
type Store interface {
	// FindDueSchedules returns active schedules that own at least one
	// pending item due at or before now+lead, ordered by creation time.
	FindDueSchedules(ctx context.Context, now time.Time, lead time.Duration) ([]*schedule.Schedule, error)

	// FindActiveSchedules returns every active schedule.
	FindActiveSchedules(ctx context.Context) ([]*schedule.Schedule, error)

	Load(ctx context.Context, id string) (*schedule.Schedule, error)

	// Save upserts the schedule and rewrites its items in one
	// transaction: all item updates within one schedule share a single
	// logical transaction boundary.
	Save(ctx context.Context, s *schedule.Schedule) error

	// Delete hard-deletes the schedule and its items.
	Delete(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// Config configures storage. Path is the SQLite database file.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}
