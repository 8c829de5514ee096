package tasks

import (
	"fmt"
	"strings"
	"time"
)

// DueFilter narrows a listing by due date relative to now.
type DueFilter string

const (
	DueAll     DueFilter = "all"
	DueOverdue DueFilter = "overdue"
	DueToday   DueFilter = "today"
	DueWeek    DueFilter = "week"
)

// ParseDueFilter validates a due filter name. Empty means all.
func ParseDueFilter(s string) (DueFilter, error) {
	switch d := DueFilter(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DueAll, nil
	case DueAll, DueOverdue, DueToday, DueWeek:
		return d, nil
	}
	return "", fmt.Errorf("invalid due filter %q (use all, overdue, today, week)", s)
}

// Unassigned is the AssignedTo filter value matching instances with no assignee.
const Unassigned = "none"

// Filter selects instances for listing. Zero values match everything.
type Filter struct {
	Category   Category
	Status     Status
	AssignedTo string // user ID, or Unassigned
	Due        DueFilter
	Search     string // case-insensitive match on title or description
}

// Match reports whether inst passes every predicate of f.
func (f Filter) Match(inst Instance, now time.Time) bool {
	if f.Category != "" && inst.Category != f.Category {
		return false
	}
	if f.Status != "" && inst.Status != f.Status {
		return false
	}
	switch f.AssignedTo {
	case "":
	case Unassigned:
		if inst.IsAssigned() {
			return false
		}
	default:
		if inst.AssignedTo != f.AssignedTo {
			return false
		}
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(inst.Title), q) &&
			!strings.Contains(strings.ToLower(inst.Description), q) {
			return false
		}
	}
	return f.matchDue(inst, now)
}

func (f Filter) matchDue(inst Instance, now time.Time) bool {
	today, tomorrow := DayBounds(now)
	due := inst.DueDate.In(now.Location())

	switch f.Due {
	case DueOverdue:
		return due.Before(today) && inst.Status != StatusCompleted
	case DueToday:
		return !due.Before(today) && due.Before(tomorrow)
	case DueWeek:
		return !due.Before(today) && !due.After(today.AddDate(0, 0, 7))
	default:
		return true
	}
}
