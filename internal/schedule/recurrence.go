package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency buckets how often a schedule posts and constrains how many
// (day, time) slots its pattern must carry.
type Frequency string

const (
	// FreqDaily posts once every day of the week: exactly 7 slots.
	FreqDaily Frequency = "daily"
	// FreqWeekly posts once a week: exactly 1 slot.
	FreqWeekly Frequency = "weekly"
	// FreqCustom allows any slot set between 1 and maxCustomSlots.
	FreqCustom Frequency = "custom"
)

const maxCustomSlots = 28

func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqCustom:
		return true
	}
	return false
}

func (f Frequency) slotBounds() (min, max int) {
	switch f {
	case FreqDaily:
		return 7, 7
	case FreqWeekly:
		return 1, 1
	default:
		return 1, maxCustomSlots
	}
}

// Slot is one recurring posting moment, expressed in the schedule's
// timezone: a weekday plus a wall-clock "HH:MM".
type Slot struct {
	Day time.Weekday `json:"day"`
	At  string       `json:"at"`
}

func (s Slot) key() string { return fmt.Sprintf("%d@%s", s.Day, s.At) }

// Pattern is a schedule's recurrence definition. Validate before use; all
// occurrence math assumes a valid pattern.
type Pattern struct {
	Frequency Frequency `json:"frequency"`
	Slots     []Slot    `json:"slots"`
}

func (p Pattern) Validate() error {
	if !p.Frequency.Valid() {
		return fmt.Errorf("invalid frequency %q", string(p.Frequency))
	}
	min, max := p.Frequency.slotBounds()
	if len(p.Slots) < min || len(p.Slots) > max {
		return fmt.Errorf("frequency %q requires between %d and %d slots, got %d", string(p.Frequency), min, max, len(p.Slots))
	}
	seen := make(map[string]struct{}, len(p.Slots))
	for _, s := range p.Slots {
		if s.Day < time.Sunday || s.Day > time.Saturday {
			return fmt.Errorf("invalid weekday %d", int(s.Day))
		}
		if _, _, err := ParseClock(s.At); err != nil {
			return err
		}
		if _, dup := seen[s.key()]; dup {
			return fmt.Errorf("duplicate slot %s %s", s.Day, s.At)
		}
		seen[s.key()] = struct{}{}
	}
	if p.Frequency == FreqDaily {
		days := map[time.Weekday]struct{}{}
		for _, s := range p.Slots {
			days[s.Day] = struct{}{}
		}
		if len(days) != 7 {
			return fmt.Errorf("daily frequency requires one slot per weekday")
		}
	}
	return nil
}

// Next returns the first occurrence strictly after `after`, interpreted in
// loc and returned in UTC. A valid pattern always has an occurrence within
// the next 8 days.
func (p Pattern) Next(after time.Time, loc *time.Location) time.Time {
	local := after.In(loc)
	var best time.Time
	for offset := 0; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		for _, s := range p.Slots {
			if s.Day != day.Weekday() {
				continue
			}
			h, m, err := ParseClock(s.At)
			if err != nil {
				continue
			}
			cand := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
			if !cand.After(after) {
				continue
			}
			if best.IsZero() || cand.Before(best) {
				best = cand
			}
		}
		if !best.IsZero() {
			// Later days can't beat a hit from an earlier day.
			break
		}
	}
	return best.UTC()
}

// Occurrences returns the next n occurrences strictly after `after`, in
// ascending order, in UTC.
func (p Pattern) Occurrences(after time.Time, n int, loc *time.Location) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	cur := after
	for len(out) < n {
		next := p.Next(cur, loc)
		if next.IsZero() {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out
}

// ParseClock parses a wall-clock "HH:MM" string.
func ParseClock(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
