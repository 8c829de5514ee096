// Package stats computes aggregate statistics from taskrota data: batch
// history, task outcomes and per-user workload.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/marcus/taskrota/internal/roster"
	"github.com/marcus/taskrota/internal/state"
	"github.com/marcus/taskrota/internal/tasks"
)

// Duration wraps time.Duration for clean JSON serialization as seconds.
type Duration struct {
	time.Duration
}

// MarshalJSON serializes Duration as integer seconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(d.Seconds()))
}

// UnmarshalJSON deserializes Duration from integer seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var secs int64
	if err := json.Unmarshal(b, &secs); err != nil {
		return err
	}
	d.Duration = time.Duration(secs) * time.Second
	return nil
}

// String returns a human-readable duration string.
func (d Duration) String() string {
	dur := d.Duration
	if dur < time.Minute {
		return fmt.Sprintf("%ds", int(dur.Seconds()))
	}
	if dur < time.Hour {
		return fmt.Sprintf("%dm %ds", int(dur.Minutes()), int(dur.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(dur.Hours()), int(dur.Minutes())%60)
}

// Period limits the data a computation looks at.
type Period string

const (
	PeriodAll     Period = "all"
	PeriodLast7d  Period = "last-7d"
	PeriodLast30d Period = "last-30d"
	PeriodToday   Period = "today"
)

// ParsePeriod validates a period name. Empty means all.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodLast7d, PeriodLast30d, PeriodToday:
		return p, nil
	}
	return "", fmt.Errorf("invalid period %q (use all, last-7d, last-30d, today)", s)
}

// cutoff returns the earliest included instant, or the zero time for all.
func (p Period) cutoff(now time.Time) time.Time {
	switch p {
	case PeriodLast7d:
		return now.AddDate(0, 0, -7)
	case PeriodLast30d:
		return now.AddDate(0, 0, -30)
	case PeriodToday:
		start, _ := tasks.DayBounds(now)
		return start
	default:
		return time.Time{}
	}
}

// Result holds all computed statistics, JSON-serializable.
type Result struct {
	Period Period `json:"period"`

	// Batch overview
	TotalRuns      int        `json:"total_runs"`
	ScheduledRuns  int        `json:"scheduled_runs"`
	SuccessfulRuns int        `json:"successful_runs"`
	PartialRuns    int        `json:"partial_runs"`
	FailedRuns     int        `json:"failed_runs"`
	FirstRunAt     *time.Time `json:"first_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	TotalDuration  Duration   `json:"total_duration"`
	AvgRunDuration Duration   `json:"avg_run_duration"`
	TasksCreated   int        `json:"tasks_created"`
	TasksAssigned  int        `json:"tasks_assigned"`

	// Task outcomes
	TotalTasks     int     `json:"total_tasks"`
	Pending        int     `json:"pending"`
	InProgress     int     `json:"in_progress"`
	Completed      int     `json:"completed"`
	Overdue        int     `json:"overdue"`
	Unassigned     int     `json:"unassigned"`
	CompletionRate float64 `json:"completion_rate"`

	// Estimate accuracy over completed tasks that recorded actual minutes
	EstimatedMinutes int     `json:"estimated_minutes"`
	ActualMinutes    int     `json:"actual_minutes"`
	EstimateAccuracy float64 `json:"estimate_accuracy,omitempty"`

	CategoryBreakdown map[tasks.Category]int `json:"category_breakdown,omitempty"`
	Users             []UserStats            `json:"users,omitempty"`
}

// UserStats summarizes one assignee's workload.
type UserStats struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Assigned         int    `json:"assigned"`
	Open             int    `json:"open"`
	Completed        int    `json:"completed"`
	Overdue          int    `json:"overdue"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	ActualMinutes    int    `json:"actual_minutes"`
}

// TaskSource lists task instances.
type TaskSource interface {
	List(ctx context.Context, f tasks.Filter) ([]tasks.Instance, error)
}

// RunSource returns batch history, most recent first.
type RunSource interface {
	GetRunHistory(ctx context.Context, n int) ([]state.RunRecord, error)
}

// UserSource lists roster members.
type UserSource interface {
	List(ctx context.Context) ([]roster.User, error)
}

// Stats computes aggregate statistics from taskrota data sources.
type Stats struct {
	tasks   TaskSource
	runs    RunSource
	users   UserSource
	nowFunc func() time.Time
}

// New creates a Stats instance. Any source may be nil.
func New(taskSrc TaskSource, runSrc RunSource, userSrc UserSource) *Stats {
	return &Stats{
		tasks:   taskSrc,
		runs:    runSrc,
		users:   userSrc,
		nowFunc: time.Now,
	}
}

// InLocation makes "today" and overdue checks use loc.
func (s *Stats) InLocation(loc *time.Location) *Stats {
	if loc != nil {
		s.nowFunc = func() time.Time { return time.Now().In(loc) }
	}
	return s
}

// Compute aggregates all available data for the period into a Result.
func (s *Stats) Compute(ctx context.Context, period Period) (*Result, error) {
	if period == "" {
		period = PeriodAll
	}
	now := s.nowFunc()
	cutoff := period.cutoff(now)

	result := &Result{
		Period:            period,
		CategoryBreakdown: make(map[tasks.Category]int),
	}

	if s.runs != nil {
		runs, err := s.runs.GetRunHistory(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("load run history: %w", err)
		}
		computeFromRuns(result, runs, cutoff)
	}

	if s.tasks != nil {
		insts, err := s.tasks.List(ctx, tasks.Filter{})
		if err != nil {
			return nil, fmt.Errorf("load tasks: %w", err)
		}
		names := map[string]string{}
		if s.users != nil {
			users, err := s.users.List(ctx)
			if err != nil {
				return nil, fmt.Errorf("load users: %w", err)
			}
			for _, u := range users {
				names[u.ID] = u.Name
			}
		}
		computeFromTasks(result, insts, names, cutoff, now)
	}

	return result, nil
}

func computeFromRuns(result *Result, runs []state.RunRecord, cutoff time.Time) {
	for _, r := range runs {
		if r.StartTime.Before(cutoff) {
			continue
		}
		result.TotalRuns++
		result.TasksCreated += r.TasksCreated
		result.TasksAssigned += r.TasksAssigned

		switch r.Status {
		case state.StatusSuccess:
			result.SuccessfulRuns++
		case state.StatusPartial:
			result.PartialRuns++
		case state.StatusFailed:
			result.FailedRuns++
		}
		if r.Source == state.SourceScheduled {
			result.ScheduledRuns++
		}

		if result.FirstRunAt == nil || r.StartTime.Before(*result.FirstRunAt) {
			t := r.StartTime
			result.FirstRunAt = &t
		}
		if result.LastRunAt == nil || r.StartTime.After(*result.LastRunAt) {
			t := r.StartTime
			result.LastRunAt = &t
		}
		if r.EndTime.After(r.StartTime) {
			result.TotalDuration.Duration += r.EndTime.Sub(r.StartTime)
		}
	}

	if result.TotalRuns > 0 {
		result.AvgRunDuration = Duration{result.TotalDuration.Duration / time.Duration(result.TotalRuns)}
	}
}

func computeFromTasks(result *Result, insts []tasks.Instance, names map[string]string, cutoff, now time.Time) {
	overdue := tasks.Filter{Due: tasks.DueOverdue}
	users := make(map[string]*UserStats)

	for _, inst := range insts {
		if inst.CreatedAt.Before(cutoff) {
			continue
		}
		result.TotalTasks++
		result.CategoryBreakdown[inst.Category]++

		isOverdue := overdue.Match(inst, now)
		if isOverdue {
			result.Overdue++
		}
		switch inst.Status {
		case tasks.StatusPending:
			result.Pending++
		case tasks.StatusInProgress:
			result.InProgress++
		case tasks.StatusCompleted:
			result.Completed++
			if inst.ActualMinutes != nil {
				result.EstimatedMinutes += inst.EstimatedMinutes
				result.ActualMinutes += *inst.ActualMinutes
			}
		}

		if !inst.IsAssigned() {
			result.Unassigned++
			continue
		}
		us, ok := users[inst.AssignedTo]
		if !ok {
			name := names[inst.AssignedTo]
			if name == "" {
				// assignee no longer on the roster
				name = inst.AssignedTo
			}
			us = &UserStats{ID: inst.AssignedTo, Name: name}
			users[inst.AssignedTo] = us
		}
		us.Assigned++
		us.EstimatedMinutes += inst.EstimatedMinutes
		if inst.Status == tasks.StatusCompleted {
			us.Completed++
			if inst.ActualMinutes != nil {
				us.ActualMinutes += *inst.ActualMinutes
			}
		} else {
			us.Open++
		}
		if isOverdue {
			us.Overdue++
		}
	}

	if result.TotalTasks > 0 {
		result.CompletionRate = float64(result.Completed) / float64(result.TotalTasks) * 100
	}
	if result.ActualMinutes > 0 {
		result.EstimateAccuracy = float64(result.EstimatedMinutes) / float64(result.ActualMinutes) * 100
	}

	for _, us := range users {
		result.Users = append(result.Users, *us)
	}
	sort.Slice(result.Users, func(i, j int) bool {
		if result.Users[i].Open != result.Users[j].Open {
			return result.Users[i].Open > result.Users[j].Open
		}
		if result.Users[i].Assigned != result.Users[j].Assigned {
			return result.Users[i].Assigned > result.Users[j].Assigned
		}
		return result.Users[i].Name < result.Users[j].Name
	})
}
