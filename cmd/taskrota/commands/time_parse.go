package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcus/taskrota/internal/tasks"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeInput accepts now, today, yesterday, tomorrow, or one of
// timeLayouts. Day keywords and bare dates resolve to midnight in loc.
func parseTimeInput(input string, now time.Time, loc *time.Location) (time.Time, error) {
	value := strings.TrimSpace(strings.ToLower(input))
	now = now.In(loc)

	switch value {
	case "now":
		return now, nil
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	case "yesterday":
		y := now.AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, loc), nil
	case "tomorrow":
		t := now.AddDate(0, 0, 1)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
	}

	for _, layout := range timeLayouts {
		if layout == time.RFC3339 {
			if parsed, err := time.Parse(layout, input); err == nil {
				return parsed.In(loc), nil
			}
			continue
		}
		if parsed, err := time.ParseInLocation(layout, input, loc); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid time %q (use YYYY-MM-DD or RFC3339)", input)
}

// parseDueInput is parseTimeInput for due dates: inputs naming a whole day
// are due at the last second of that day.
func parseDueInput(input string, now time.Time, loc *time.Location) (time.Time, error) {
	t, err := parseTimeInput(input, now, loc)
	if err != nil {
		return time.Time{}, err
	}
	if wholeDay(input) {
		_, next := tasks.DayBounds(t)
		return next.Add(-time.Second), nil
	}
	return t, nil
}

func wholeDay(input string) bool {
	switch strings.TrimSpace(strings.ToLower(input)) {
	case "today", "yesterday", "tomorrow":
		return true
	}
	_, err := time.Parse("2006-01-02", strings.TrimSpace(input))
	return err == nil
}
