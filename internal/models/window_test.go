package models

import (
	"testing"
	"time"
)

func TestTimeWindowIsHalfOpen(t *testing.T) {
	w := TimeWindow{Name: "morning", StartHour: 11, StartMinute: 30, EndHour: 14, EndMinute: 0}

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{11, 29, false},
		{11, 30, true}, // start minute is in-window
		{13, 59, true},
		{14, 0, false}, // end minute is already outside
		{14, 1, false},
		{0, 0, false},
	}

	for _, c := range cases {
		if got := w.Contains(c.hour, c.minute); got != c.want {
			t.Errorf("Contains(%02d:%02d) = %t, want %t", c.hour, c.minute, got, c.want)
		}
	}
}

func TestTimeWindowStartsAt(t *testing.T) {
	w := TimeWindow{StartHour: 17, StartMinute: 30, EndHour: 22}

	if !w.StartsAt(17, 30) {
		t.Error("StartsAt(17:30) should be true")
	}
	if w.StartsAt(17, 31) || w.StartsAt(18, 30) {
		t.Error("StartsAt should only match the exact start minute")
	}
}

func TestTimeWindowOverlaps(t *testing.T) {
	morning := TimeWindow{StartHour: 11, StartMinute: 30, EndHour: 14, EndMinute: 0}
	evening := TimeWindow{StartHour: 17, StartMinute: 30, EndHour: 22, EndMinute: 0}
	lunch := TimeWindow{StartHour: 13, StartMinute: 0, EndHour: 18, EndMinute: 0}

	if morning.Overlaps(evening) {
		t.Error("disjoint windows reported as overlapping")
	}
	if !morning.Overlaps(lunch) || !lunch.Overlaps(evening) {
		t.Error("overlapping windows not detected")
	}

	// Touching boundaries do not overlap: [11:30,14:00) and [14:00,15:00).
	adjacent := TimeWindow{StartHour: 14, StartMinute: 0, EndHour: 15, EndMinute: 0}
	if morning.Overlaps(adjacent) {
		t.Error("adjacent windows reported as overlapping")
	}
}

func TestTimeWindowRemaining(t *testing.T) {
	w := TimeWindow{StartHour: 11, StartMinute: 30, EndHour: 14, EndMinute: 0}
	now := time.Date(2025, 12, 13, 13, 0, 0, 0, time.UTC)

	if got := w.Remaining(now); got != time.Hour {
		t.Errorf("Remaining at 13:00 = %s, want 1h", got)
	}

	past := time.Date(2025, 12, 13, 15, 0, 0, 0, time.UTC)
	if got := w.Remaining(past); got != 0 {
		t.Errorf("Remaining after window end = %s, want 0", got)
	}
}
