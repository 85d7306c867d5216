package markethours

import (
	"testing"
	"time"
)

func et(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", s, Eastern)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		when string
		open bool
	}{
		{"mid-session", "2026-08-28 12:00", true},
		{"at open", "2026-08-28 09:30", true},
		{"before open", "2026-08-28 09:29", false},
		{"at close", "2026-08-28 16:00", false},
		{"saturday", "2026-08-29 12:00", false},
		{"sunday", "2026-08-30 12:00", false},
		{"christmas", "2026-12-25 12:00", false},
		{"thanksgiving", "2026-11-26 12:00", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsMarketOpen(et(t, tc.when)); got != tc.open {
				t.Errorf("IsMarketOpen(%s) = %v, want %v", tc.when, got, tc.open)
			}
		})
	}
}

func TestNextOpen_SkipsWeekend(t *testing.T) {
	// Friday after close rolls to Monday.
	next := NextOpen(et(t, "2026-08-28 17:00"))
	if next.Weekday() != time.Monday {
		t.Errorf("expected Monday open, got %s", next.Weekday())
	}
	if next.Hour() != OpenHour || next.Minute() != OpenMinute {
		t.Errorf("expected 9:30, got %02d:%02d", next.Hour(), next.Minute())
	}
}

func TestNextOpen_SameDayBeforeOpen(t *testing.T) {
	next := NextOpen(et(t, "2026-08-28 08:00"))
	if next.Day() != 28 || next.Hour() != OpenHour {
		t.Errorf("expected same-day open, got %v", next)
	}
}

func TestNextOpen_SkipsHoliday(t *testing.T) {
	// Christmas 2026 is a Friday; the day before is a trading day.
	next := NextOpen(et(t, "2026-12-24 17:00"))
	if next.Month() != time.December || next.Day() != 28 {
		t.Errorf("expected Monday Dec 28 open, got %v", next)
	}
}

func TestTimeUntilOpen(t *testing.T) {
	// 8:00 AM on a trading day, 90 minutes before the bell.
	if got := TimeUntilOpen(et(t, "2026-08-28 08:00")); got != 90*time.Minute {
		t.Errorf("TimeUntilOpen = %v, want 90m", got)
	}
}

func TestCurrentStatus(t *testing.T) {
	open := CurrentStatus(et(t, "2026-08-28 12:00"))
	if !open.Open || open.Closes.IsZero() {
		t.Errorf("expected open status with close time, got %+v", open)
	}

	closed := CurrentStatus(et(t, "2026-08-29 12:00"))
	if closed.Open || closed.NextOpen.IsZero() {
		t.Errorf("expected closed status with next open, got %+v", closed)
	}
}
