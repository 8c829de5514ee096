package tasks

import "time"

// horizonDays is how many calendar days a category's due date reaches ahead.
var horizonDays = map[Category]int{
	CategoryDaily:   1,
	CategoryWeekly:  7,
	CategoryMonthly: 15,
}

// DefaultDueDate returns the due date for a new instance of the category created
// at now. The horizon ends at the start of the day N days after now (daily 1,
// weekly 7, monthly 15); the due date is the last second before that boundary,
// in now's location. A daily instance is therefore due at the end of its
// creation day, and weekly and monthly instances end the day before "now + N
// days". Keeping the daily due date on the creation day is what lets the
// same-day dedup query find it.
func DefaultDueDate(category Category, now time.Time) time.Time {
	days, ok := horizonDays[category]
	if !ok {
		days = horizonDays[CategoryDaily]
	}
	start, _ := DayBounds(now)
	return start.AddDate(0, 0, days).Add(-time.Second)
}

// DayBounds returns the start of t's calendar day and the start of the next one.
func DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// DateString formats t's calendar date as YYYY-MM-DD.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}
