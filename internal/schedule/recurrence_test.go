package schedule

import (
	"testing"
	"time"
)

func TestPatternValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		pattern Pattern
		wantErr bool
	}{
		{
			name:    "weekly ok",
			pattern: Pattern{Frequency: FreqWeekly, Slots: []Slot{{Day: time.Monday, At: "09:00"}}},
		},
		{
			name: "custom ok",
			pattern: Pattern{Frequency: FreqCustom, Slots: []Slot{
				{Day: time.Monday, At: "09:00"},
				{Day: time.Thursday, At: "18:30"},
			}},
		},
		{
			name:    "weekly wrong slot count",
			pattern: Pattern{Frequency: FreqWeekly, Slots: []Slot{{Day: time.Monday, At: "09:00"}, {Day: time.Tuesday, At: "09:00"}}},
			wantErr: true,
		},
		{
			name:    "bad clock",
			pattern: Pattern{Frequency: FreqWeekly, Slots: []Slot{{Day: time.Monday, At: "25:00"}}},
			wantErr: true,
		},
		{
			name: "duplicate slot",
			pattern: Pattern{Frequency: FreqCustom, Slots: []Slot{
				{Day: time.Monday, At: "09:00"},
				{Day: time.Monday, At: "09:00"},
			}},
			wantErr: true,
		},
		{
			name:    "unknown frequency",
			pattern: Pattern{Frequency: "hourly", Slots: []Slot{{Day: time.Monday, At: "09:00"}}},
			wantErr: true,
		},
		{
			name: "daily needs all weekdays",
			pattern: Pattern{Frequency: FreqDaily, Slots: []Slot{
				{Day: time.Monday, At: "09:00"}, {Day: time.Monday, At: "10:00"},
				{Day: time.Monday, At: "11:00"}, {Day: time.Monday, At: "12:00"},
				{Day: time.Monday, At: "13:00"}, {Day: time.Monday, At: "14:00"},
				{Day: time.Monday, At: "15:00"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPatternNextRespectsTimezone(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Asia/Jakarta") // UTC+7, no DST
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	p := Pattern{Frequency: FreqWeekly, Slots: []Slot{{Day: time.Monday, At: "09:00"}}}

	// 2026-03-08 is a Sunday. 09:00 Monday in Jakarta is 02:00 UTC.
	after := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	got := p.Next(after, loc)
	want := time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestPatternNextSameDayLaterSlot(t *testing.T) {
	t.Parallel()
	p := Pattern{Frequency: FreqCustom, Slots: []Slot{
		{Day: time.Monday, At: "09:00"},
		{Day: time.Monday, At: "18:00"},
	}}

	// Monday 10:00 UTC: the 18:00 slot is still ahead today.
	after := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	got := p.Next(after, time.UTC)
	want := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestPatternOccurrencesAscending(t *testing.T) {
	t.Parallel()
	p := Pattern{Frequency: FreqCustom, Slots: []Slot{
		{Day: time.Monday, At: "09:00"},
		{Day: time.Thursday, At: "12:00"},
	}}
	after := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC) // Sunday

	occ := p.Occurrences(after, 4, time.UTC)
	if len(occ) != 4 {
		t.Fatalf("got %d occurrences, want 4", len(occ))
	}
	for i := 1; i < len(occ); i++ {
		if !occ[i].After(occ[i-1]) {
			t.Fatalf("occurrences not ascending: %v then %v", occ[i-1], occ[i])
		}
	}
	// Mon 09:00, Thu 12:00, next Mon 09:00, next Thu 12:00.
	if occ[0].Weekday() != time.Monday || occ[1].Weekday() != time.Thursday {
		t.Fatalf("unexpected weekday order: %v %v", occ[0].Weekday(), occ[1].Weekday())
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	h, m, err := ParseClock("23:15")
	if err != nil {
		t.Fatalf("ParseClock error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}

	for _, bad := range []string{"24:00", "12:60", "noon", "9", ""} {
		if _, _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
