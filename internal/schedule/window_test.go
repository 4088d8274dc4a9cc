package schedule

import (
	"testing"
	"time"
)

func TestWindowContains(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w := Window{Lead: 5 * time.Minute, Grace: 10 * time.Minute}

	tests := []struct {
		name string
		due  time.Time
		want bool
	}{
		{name: "exactly now", due: now, want: true},
		{name: "inside lead", due: now.Add(3 * time.Minute), want: true},
		{name: "lead boundary inclusive", due: now.Add(5 * time.Minute), want: true},
		{name: "beyond lead", due: now.Add(5*time.Minute + time.Second), want: false},
		{name: "inside grace", due: now.Add(-7 * time.Minute), want: true},
		{name: "grace boundary inclusive", due: now.Add(-10 * time.Minute), want: true},
		{name: "beyond grace", due: now.Add(-10*time.Minute - time.Second), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Contains(tt.due, now); got != tt.want {
				t.Fatalf("Contains(%v) = %v, want %v", tt.due, got, tt.want)
			}
		})
	}
}

func TestWindowZeroWidth(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w := Window{}

	if !w.Contains(now, now) {
		t.Fatal("zero-width window should match an item due exactly now")
	}
	if w.Contains(now.Add(time.Second), now) || w.Contains(now.Add(-time.Second), now) {
		t.Fatal("zero-width window should not match anything off now")
	}
}

func TestWindowValidate(t *testing.T) {
	t.Parallel()
	if err := (Window{Lead: time.Minute, Grace: time.Minute}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Window{Lead: -time.Minute}).Validate(); err == nil {
		t.Fatal("expected error for negative lead")
	}
	if err := (Window{Grace: -time.Minute}).Validate(); err == nil {
		t.Fatal("expected error for negative grace")
	}
}
