package schedule

import (
	"fmt"
	"time"
)

// Window is the lead/grace interval around an item's due time during which
// the item is eligible for processing: items become eligible Lead before
// their nominal time and stay eligible until Grace after it.
//
// Both bounds are inclusive. Size the window to the trigger cadence — a
// zero-width window only matches an item due at exactly "now".
type Window struct {
	Lead  time.Duration
	Grace time.Duration
}

func (w Window) Validate() error {
	if w.Lead < 0 {
		return fmt.Errorf("window lead must be non-negative, got %s", w.Lead)
	}
	if w.Grace < 0 {
		return fmt.Errorf("window grace must be non-negative, got %s", w.Grace)
	}
	return nil
}

// Contains reports whether an item due at dueAt is inside the window at now.
func (w Window) Contains(dueAt, now time.Time) bool {
	d := dueAt.Sub(now)
	return d <= w.Lead && d >= -w.Grace
}
