package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActiveWindow bounds item generation in absolute UTC time. A zero End
// means unbounded.
type ActiveWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitzero"`
}

func (w ActiveWindow) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// Schedule owns an ordered collection of items plus the recurrence
// definition used to materialize new ones. At most one active schedule
// exists per owner; deletion is a hard delete.
type Schedule struct {
	ID       string       `json:"id"`
	OwnerID  string       `json:"owner_id"`
	Topic    string       `json:"topic"`
	Timezone string       `json:"timezone"`
	Pattern  Pattern      `json:"pattern"`
	Active   ActiveWindow `json:"active"`
	IsActive bool         `json:"is_active"`

	Items []Item `json:"items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(ownerID, topic, timezone string, p Pattern, active ActiveWindow, now time.Time) (*Schedule, error) {
	s := &Schedule{
		ID:        uuid.NewString(),
		OwnerID:   strings.TrimSpace(ownerID),
		Topic:     strings.TrimSpace(topic),
		Timezone:  strings.TrimSpace(timezone),
		Pattern:   p,
		Active:    active,
		IsActive:  true,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("schedule id is required")
	}
	if s.OwnerID == "" {
		return fmt.Errorf("schedule owner is required")
	}
	if s.Topic == "" {
		return fmt.Errorf("schedule topic is required")
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	if err := s.Pattern.Validate(); err != nil {
		return err
	}
	if s.Active.Start.IsZero() {
		return fmt.Errorf("schedule active window start is required")
	}
	if !s.Active.End.IsZero() && !s.Active.End.After(s.Active.Start) {
		return fmt.Errorf("schedule active window end must be after start")
	}
	for i := range s.Items {
		if !s.Items[i].Status.Valid() {
			return fmt.Errorf("item %d has invalid status %q", i, string(s.Items[i].Status))
		}
	}
	return nil
}

// Location resolves the schedule's IANA timezone.
func (s *Schedule) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return nil, fmt.Errorf("schedule timezone is required")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (s *Schedule) PendingCount() int {
	n := 0
	for i := range s.Items {
		if s.Items[i].Status == StatusPending {
			n++
		}
	}
	return n
}

// DueItems returns the indices of pending items inside the window, in
// array order. Items have no ordering dependency on each other.
func (s *Schedule) DueItems(now time.Time, w Window) []int {
	var due []int
	for i := range s.Items {
		it := &s.Items[i]
		if it.Status != StatusPending {
			continue
		}
		if w.Contains(it.ScheduledFor, now) {
			due = append(due, i)
		}
	}
	return due
}

// LastScheduledAt returns the latest ScheduledFor across items, or zero.
func (s *Schedule) LastScheduledAt() time.Time {
	var last time.Time
	for i := range s.Items {
		if s.Items[i].ScheduledFor.After(last) {
			last = s.Items[i].ScheduledFor
		}
	}
	return last
}

// NextOccurrenceTimes computes up to n future item times: pattern
// occurrences after the later of `after` and the last already-scheduled
// item, clipped to the active window.
func (s *Schedule) NextOccurrenceTimes(after time.Time, n int) ([]time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}
	from := after
	if last := s.LastScheduledAt(); last.After(from) {
		from = last
	}
	if s.Active.Start.After(from) {
		from = s.Active.Start
	}
	occ := s.Pattern.Occurrences(from, n, loc)
	out := occ[:0]
	for _, t := range occ {
		if !s.Active.Contains(t) {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// AppendItems appends pre-built items in order.
func (s *Schedule) AppendItems(now time.Time, items ...Item) {
	s.Items = append(s.Items, items...)
	s.UpdatedAt = now.UTC()
}

// EditItem updates a pending item's content and optionally reschedules it.
// A zero `at` keeps the current due time.
func (s *Schedule) EditItem(i int, description string, keyPoints []string, at, now time.Time) error {
	if i < 0 || i >= len(s.Items) {
		return fmt.Errorf("item index %d out of range", i)
	}
	it := &s.Items[i]
	if !it.Editable() {
		return fmt.Errorf("item %d is %s, only %s items may be edited", i, it.Status, StatusPending)
	}
	if strings.TrimSpace(description) != "" {
		it.Description = description
	}
	if keyPoints != nil {
		it.KeyPoints = keyPoints
	}
	if !at.IsZero() {
		if err := it.Reschedule(at, now); err != nil {
			return err
		}
	}
	it.UpdatedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	return nil
}

// DeleteItem removes item i. Non-force deletion is restricted to pending
// items; force deletion is allowed in any status.
func (s *Schedule) DeleteItem(i int, force bool, now time.Time) error {
	if i < 0 || i >= len(s.Items) {
		return fmt.Errorf("item index %d out of range", i)
	}
	if !force && !s.Items[i].Editable() {
		return fmt.Errorf("item %d is %s, only %s items may be deleted", i, s.Items[i].Status, StatusPending)
	}
	s.Items = append(s.Items[:i], s.Items[i+1:]...)
	s.UpdatedAt = now.UTC()
	return nil
}

// Deactivate excludes the schedule from all further processing.
func (s *Schedule) Deactivate(now time.Time) {
	s.IsActive = false
	s.UpdatedAt = now.UTC()
}
