package stats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/marcus/taskrota/internal/roster"
	"github.com/marcus/taskrota/internal/state"
	"github.com/marcus/taskrota/internal/tasks"
)

type fakeTasks struct {
	insts []tasks.Instance
	err   error
}

func (f fakeTasks) List(context.Context, tasks.Filter) ([]tasks.Instance, error) {
	return f.insts, f.err
}

type fakeRuns []state.RunRecord

func (f fakeRuns) GetRunHistory(context.Context, int) ([]state.RunRecord, error) {
	return f, nil
}

type fakeUsers []roster.User

func (f fakeUsers) List(context.Context) ([]roster.User, error) {
	return f, nil
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStats(ts TaskSource, rs RunSource, us UserSource) *Stats {
	s := New(ts, rs, us)
	s.nowFunc = func() time.Time { return testNow }
	return s
}

func intPtr(n int) *int { return &n }

// --- Duration type tests ---

func TestDuration_MarshalJSON(t *testing.T) {
	tests := []struct {
		dur  time.Duration
		want string
	}{
		{0, "0"},
		{30 * time.Second, "30"},
		{90 * time.Second, "90"},
		{2*time.Hour + 30*time.Minute, "9000"},
	}
	for _, tt := range tests {
		d := Duration{tt.dur}
		b, err := json.Marshal(d)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.dur, err)
		}
		if string(b) != tt.want {
			t.Errorf("MarshalJSON(%v) = %s, want %s", tt.dur, b, tt.want)
		}
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte("125"), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != 125*time.Second {
		t.Errorf("got %v, want 2m5s", d.Duration)
	}
}

func TestDuration_String(t *testing.T) {
	tests := []struct {
		dur  time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}
	for _, tt := range tests {
		if got := (Duration{tt.dur}).String(); got != tt.want {
			t.Errorf("String(%v) = %q, want %q", tt.dur, got, tt.want)
		}
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{"", PeriodAll, false},
		{"all", PeriodAll, false},
		{"LAST-7D", PeriodLast7d, false},
		{"last-30d", PeriodLast30d, false},
		{"today", PeriodToday, false},
		{"last-night", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePeriod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePeriod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePeriod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Compute tests ---

func TestCompute_Empty(t *testing.T) {
	result, err := newTestStats(nil, nil, nil).Compute(context.Background(), "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if result.Period != PeriodAll {
		t.Errorf("Period = %q, want all", result.Period)
	}
	if result.TotalRuns != 0 || result.TotalTasks != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if result.FirstRunAt != nil || result.LastRunAt != nil {
		t.Error("run range should be nil with no runs")
	}
}

func TestCompute_Runs(t *testing.T) {
	start := testNow.Add(-48 * time.Hour)
	runs := fakeRuns{
		{Source: state.SourceScheduled, StartTime: start.Add(24 * time.Hour), EndTime: start.Add(24*time.Hour + 3*time.Second),
			TasksCreated: 4, TasksAssigned: 4, Status: state.StatusSuccess},
		{Source: state.SourceManual, StartTime: start.Add(time.Hour), EndTime: start.Add(time.Hour + time.Second),
			TasksCreated: 2, TasksAssigned: 1, Status: state.StatusPartial, Failures: 1},
		{Source: state.SourceManual, StartTime: start, EndTime: start, Status: state.StatusFailed},
	}

	result, err := newTestStats(nil, runs, nil).Compute(context.Background(), PeriodAll)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if result.TotalRuns != 3 {
		t.Errorf("TotalRuns = %d, want 3", result.TotalRuns)
	}
	if result.ScheduledRuns != 1 || result.SuccessfulRuns != 1 || result.PartialRuns != 1 || result.FailedRuns != 1 {
		t.Errorf("run breakdown = %+v", result)
	}
	if result.TasksCreated != 6 || result.TasksAssigned != 5 {
		t.Errorf("TasksCreated/Assigned = %d/%d, want 6/5", result.TasksCreated, result.TasksAssigned)
	}
	if result.FirstRunAt == nil || !result.FirstRunAt.Equal(start) {
		t.Errorf("FirstRunAt = %v, want %v", result.FirstRunAt, start)
	}
	if result.LastRunAt == nil || !result.LastRunAt.Equal(start.Add(24*time.Hour)) {
		t.Errorf("LastRunAt = %v", result.LastRunAt)
	}
	if result.TotalDuration.Duration != 4*time.Second {
		t.Errorf("TotalDuration = %v, want 4s", result.TotalDuration.Duration)
	}
	if want := 4 * time.Second / 3; result.AvgRunDuration.Duration != want {
		t.Errorf("AvgRunDuration = %v, want %v", result.AvgRunDuration.Duration, want)
	}
}

func TestCompute_Tasks(t *testing.T) {
	created := testNow.Add(-72 * time.Hour)
	yesterday := testNow.Add(-24 * time.Hour)
	tomorrow := testNow.Add(24 * time.Hour)
	insts := []tasks.Instance{
		{ID: "t1", Category: tasks.CategoryDaily, Status: tasks.StatusCompleted, AssignedTo: "u1",
			EstimatedMinutes: 30, ActualMinutes: intPtr(40), DueDate: yesterday, CreatedAt: created},
		{ID: "t2", Category: tasks.CategoryDaily, Status: tasks.StatusPending, AssignedTo: "u1",
			EstimatedMinutes: 15, DueDate: yesterday, CreatedAt: created},
		{ID: "t3", Category: tasks.CategoryWeekly, Status: tasks.StatusInProgress, AssignedTo: "u2",
			EstimatedMinutes: 60, DueDate: tomorrow, CreatedAt: created},
		{ID: "t4", Category: tasks.CategoryMonthly, Status: tasks.StatusPending,
			EstimatedMinutes: 120, DueDate: tomorrow, CreatedAt: created},
		{ID: "t5", Category: tasks.CategoryDaily, Status: tasks.StatusCompleted, AssignedTo: "gone",
			EstimatedMinutes: 10, DueDate: yesterday, CreatedAt: created},
	}
	users := fakeUsers{{ID: "u1", Name: "Ada"}, {ID: "u2", Name: "Bo"}}

	result, err := newTestStats(fakeTasks{insts: insts}, nil, users).Compute(context.Background(), PeriodAll)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if result.TotalTasks != 5 {
		t.Errorf("TotalTasks = %d, want 5", result.TotalTasks)
	}
	if result.Pending != 2 || result.InProgress != 1 || result.Completed != 2 {
		t.Errorf("status counts = %d/%d/%d, want 2/1/2", result.Pending, result.InProgress, result.Completed)
	}
	// completed tasks are never overdue
	if result.Overdue != 1 {
		t.Errorf("Overdue = %d, want 1", result.Overdue)
	}
	if result.Unassigned != 1 {
		t.Errorf("Unassigned = %d, want 1", result.Unassigned)
	}
	if result.CompletionRate != 40 {
		t.Errorf("CompletionRate = %v, want 40", result.CompletionRate)
	}
	if result.EstimatedMinutes != 30 || result.ActualMinutes != 40 {
		t.Errorf("minutes = %d/%d, want 30/40", result.EstimatedMinutes, result.ActualMinutes)
	}
	if result.EstimateAccuracy != 75 {
		t.Errorf("EstimateAccuracy = %v, want 75", result.EstimateAccuracy)
	}
	if result.CategoryBreakdown[tasks.CategoryDaily] != 3 || result.CategoryBreakdown[tasks.CategoryWeekly] != 1 {
		t.Errorf("CategoryBreakdown = %v", result.CategoryBreakdown)
	}

	if len(result.Users) != 3 {
		t.Fatalf("Users = %+v, want 3 entries", result.Users)
	}
	// sorted by open work, then assigned count, then name
	if result.Users[0].Name != "Ada" || result.Users[1].Name != "Bo" || result.Users[2].Name != "gone" {
		t.Errorf("user order = %s, %s, %s", result.Users[0].Name, result.Users[1].Name, result.Users[2].Name)
	}
	ada := result.Users[0]
	if ada.Assigned != 2 || ada.Open != 1 || ada.Completed != 1 || ada.Overdue != 1 {
		t.Errorf("Ada = %+v", ada)
	}
	if ada.EstimatedMinutes != 45 || ada.ActualMinutes != 40 {
		t.Errorf("Ada minutes = %d/%d, want 45/40", ada.EstimatedMinutes, ada.ActualMinutes)
	}
}

func TestCompute_PeriodFilter(t *testing.T) {
	old := testNow.AddDate(0, 0, -20)
	recent := testNow.AddDate(0, 0, -2)
	insts := []tasks.Instance{
		{ID: "old", Category: tasks.CategoryDaily, Status: tasks.StatusPending, DueDate: testNow, CreatedAt: old},
		{ID: "new", Category: tasks.CategoryDaily, Status: tasks.StatusPending, DueDate: testNow, CreatedAt: recent},
		{ID: "now", Category: tasks.CategoryDaily, Status: tasks.StatusPending, DueDate: testNow, CreatedAt: testNow.Add(-time.Hour)},
	}
	runs := fakeRuns{
		{StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(-time.Hour), Status: state.StatusSuccess},
		{StartTime: recent, EndTime: recent, Status: state.StatusSuccess},
		{StartTime: old, EndTime: old, Status: state.StatusSuccess},
	}
	s := newTestStats(fakeTasks{insts: insts}, runs, nil)

	tests := []struct {
		period    Period
		wantTasks int
		wantRuns  int
	}{
		{PeriodAll, 3, 3},
		{PeriodLast30d, 3, 3},
		{PeriodLast7d, 2, 2},
		{PeriodToday, 1, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			result, err := s.Compute(context.Background(), tt.period)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if result.TotalTasks != tt.wantTasks {
				t.Errorf("TotalTasks = %d, want %d", result.TotalTasks, tt.wantTasks)
			}
			if result.TotalRuns != tt.wantRuns {
				t.Errorf("TotalRuns = %d, want %d", result.TotalRuns, tt.wantRuns)
			}
		})
	}
}

func TestCompute_TaskError(t *testing.T) {
	boom := errors.New("boom")
	_, err := newTestStats(fakeTasks{err: boom}, nil, nil).Compute(context.Background(), PeriodAll)
	if !errors.Is(err, boom) {
		t.Errorf("Compute error = %v, want wrapped boom", err)
	}
}

func TestInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	s := New(nil, nil, nil).InLocation(loc)
	if got := s.nowFunc().Location(); got != loc {
		t.Errorf("nowFunc location = %v, want %v", got, loc)
	}
	if New(nil, nil, nil).InLocation(nil).nowFunc == nil {
		t.Error("nil location should keep the default clock")
	}
}
