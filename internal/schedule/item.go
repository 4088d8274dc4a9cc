package schedule

import (
	"fmt"
	"strings"
	"time"
)

// ItemStatus is the lifecycle state of a scheduled item.
//
// Transitions are forward-only:
//
//	pending -> processing -> completed | failed
//
// The single sanctioned backward edge is processing -> pending via
// RecoverStuck, used when an execution died without cleanup.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further processing transition is allowed.
func (s ItemStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the normal-processing edge s -> to exists.
// RecoverStuck intentionally bypasses this check.
func (s ItemStatus) CanTransition(to ItemStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Item is one unit of recurring content work.
//
// ScheduledFor is always UTC. ProcessingAt is zero until the item enters
// processing; it is the reference point for stuck detection.
type Item struct {
	Description  string     `json:"description"`
	KeyPoints    []string   `json:"key_points,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Status       ItemStatus `json:"status"`

	ResultRef      string    `json:"result_ref,omitempty"`
	FailureMessage string    `json:"failure_message,omitempty"`
	ProcessingAt   time.Time `json:"processing_at,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewItem(description string, keyPoints []string, scheduledFor, now time.Time) (Item, error) {
	if strings.TrimSpace(description) == "" {
		return Item{}, fmt.Errorf("item description is required")
	}
	if scheduledFor.IsZero() {
		return Item{}, fmt.Errorf("item scheduled_for is required")
	}
	return Item{
		Description:  description,
		KeyPoints:    keyPoints,
		ScheduledFor: scheduledFor.UTC(),
		Status:       StatusPending,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}, nil
}

// Editable reports whether the owner may edit or (non-force) delete the item.
func (it *Item) Editable() bool { return it.Status == StatusPending }

func (it *Item) MarkProcessing(now time.Time) error {
	if !it.Status.CanTransition(StatusProcessing) {
		return transitionError(it.Status, StatusProcessing)
	}
	it.Status = StatusProcessing
	it.ProcessingAt = now.UTC()
	it.UpdatedAt = now.UTC()
	return nil
}

func (it *Item) MarkCompleted(now time.Time, resultRef string) error {
	if !it.Status.CanTransition(StatusCompleted) {
		return transitionError(it.Status, StatusCompleted)
	}
	it.Status = StatusCompleted
	it.ResultRef = resultRef
	it.FailureMessage = ""
	it.UpdatedAt = now.UTC()
	return nil
}

func (it *Item) MarkFailed(now time.Time, msg string) error {
	if !it.Status.CanTransition(StatusFailed) {
		return transitionError(it.Status, StatusFailed)
	}
	it.Status = StatusFailed
	it.FailureMessage = msg
	it.UpdatedAt = now.UTC()
	return nil
}

// Expire marks a pending item failed without passing through processing.
// Used by the stale-pending sweep for items that missed their window.
func (it *Item) Expire(now time.Time, msg string) error {
	if it.Status != StatusPending {
		return transitionError(it.Status, StatusFailed)
	}
	it.Status = StatusFailed
	it.FailureMessage = msg
	it.UpdatedAt = now.UTC()
	return nil
}

// RecoverStuck resets a processing item back to pending. This is the only
// backward transition and exists solely for stuck-execution recovery.
func (it *Item) RecoverStuck(now time.Time) error {
	if it.Status != StatusProcessing {
		return fmt.Errorf("recover: item is %s, not %s", it.Status, StatusProcessing)
	}
	it.Status = StatusPending
	it.ProcessingAt = time.Time{}
	it.UpdatedAt = now.UTC()
	return nil
}

// Reschedule moves a pending item's due time. ScheduledFor is immutable in
// any other status.
func (it *Item) Reschedule(newAt, now time.Time) error {
	if !it.Editable() {
		return fmt.Errorf("reschedule: item is %s, only %s items may be edited", it.Status, StatusPending)
	}
	if newAt.IsZero() {
		return fmt.Errorf("reschedule: new time is required")
	}
	it.ScheduledFor = newAt.UTC()
	it.UpdatedAt = now.UTC()
	return nil
}

func transitionError(from, to ItemStatus) error {
	return fmt.Errorf("invalid item transition %s -> %s", from, to)
}
