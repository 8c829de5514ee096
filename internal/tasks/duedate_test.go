package tasks

import (
	"testing"
	"time"
)

func TestDefaultDueDate(t *testing.T) {
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	now := time.Date(2026, 10, 19, 9, 15, 0, 0, loc)

	tests := []struct {
		category Category
		want     time.Time
	}{
		{CategoryDaily, time.Date(2026, 10, 19, 23, 59, 59, 0, loc)},
		{CategoryWeekly, time.Date(2026, 10, 25, 23, 59, 59, 0, loc)},
		{CategoryMonthly, time.Date(2026, 11, 2, 23, 59, 59, 0, loc)},
		{Category("unknown"), time.Date(2026, 10, 19, 23, 59, 59, 0, loc)},
	}
	for _, tt := range tests {
		got := DefaultDueDate(tt.category, now)
		if !got.Equal(tt.want) {
			t.Errorf("DefaultDueDate(%s) = %v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestDailyDueDateFallsOnCreationDay(t *testing.T) {
	for _, hour := range []int{0, 9, 23} {
		now := time.Date(2026, 10, 19, hour, 59, 0, 0, time.Local)
		start, end := DayBounds(now)
		due := DefaultDueDate(CategoryDaily, now)
		if due.Before(start) || !due.Before(end) {
			t.Errorf("daily due %v outside [%v, %v) for now=%v", due, start, end, now)
		}
	}
}

func TestDayBounds(t *testing.T) {
	now := time.Date(2026, 12, 31, 18, 30, 0, 0, time.UTC)
	start, end := DayBounds(now)
	if !start.Equal(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if !end.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", end)
	}
	if DateString(now) != "2026-12-31" {
		t.Errorf("DateString() = %q", DateString(now))
	}
}
