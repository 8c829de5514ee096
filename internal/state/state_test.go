package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/taskrota/internal/assign"
	"github.com/marcus/taskrota/internal/db"
	"github.com/marcus/taskrota/internal/scheduler"
)

func TestNewNilDB(t *testing.T) {
	if _, err := New(nil, DefaultSeed()); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestNewSeedsDefaults(t *testing.T) {
	s := newTestState(t)

	if got := s.AutoAssign(); got != assign.DefaultConfig() {
		t.Errorf("AutoAssign() = %+v, want defaults", got)
	}
	if got := s.Schedule(); got != scheduler.DefaultScheduleConfig() {
		t.Errorf("Schedule() = %+v, want defaults", got)
	}
}

func TestZeroSeedFallsBackToDefaults(t *testing.T) {
	database := openTestDB(t, filepath.Join(t.TempDir(), "taskrota.db"))
	s, err := New(database, Seed{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.AutoAssign().Strategy != assign.StrategyDistribute || s.Schedule().TimeOfDay != "09:00" {
		t.Errorf("zero seed gave %+v / %+v", s.AutoAssign(), s.Schedule())
	}
}

func TestSaveValidates(t *testing.T) {
	s := newTestState(t)

	if err := s.SaveAutoAssign(assign.Config{Strategy: "random"}); !errors.Is(err, assign.ErrUnknownStrategy) {
		t.Errorf("SaveAutoAssign() error = %v, want ErrUnknownStrategy", err)
	}
	if err := s.SaveSchedule(scheduler.ScheduleConfig{TimeOfDay: "25:00"}); !errors.Is(err, scheduler.ErrInvalidScheduleTime) {
		t.Errorf("SaveSchedule() error = %v, want ErrInvalidScheduleTime", err)
	}
	if s.AutoAssign() != assign.DefaultConfig() {
		t.Error("rejected config was installed")
	}
}

func TestPersistence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dbPath := filepath.Join(home, "taskrota.db")

	db1, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open db1: %v", err)
	}
	s1, err := New(db1, DefaultSeed())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	auto := assign.Config{Strategy: assign.StrategyLoadBalance, AssignToAllUsers: true}
	sched := scheduler.ScheduleConfig{Enabled: true, TimeOfDay: "07:30", LastRunDate: "2026-10-19"}
	if err := s1.SaveAutoAssign(auto); err != nil {
		t.Fatalf("SaveAutoAssign() error = %v", err)
	}
	if err := s1.SaveSchedule(sched); err != nil {
		t.Fatalf("SaveSchedule() error = %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("close db1: %v", err)
	}

	db2, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open db2: %v", err)
	}
	defer func() { _ = db2.Close() }()

	// The seed only applies to a fresh database.
	s2, err := New(db2, Seed{AutoAssign: assign.DefaultConfig(), Schedule: scheduler.ScheduleConfig{TimeOfDay: "10:00"}})
	if err != nil {
		t.Fatalf("New() second instance error = %v", err)
	}
	if got := s2.AutoAssign(); got != auto {
		t.Errorf("Persistence: AutoAssign() = %+v, want %+v", got, auto)
	}
	if got := s2.Schedule(); got != sched {
		t.Errorf("Persistence: Schedule() = %+v, want %+v", got, sched)
	}
}

func TestReload(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "taskrota.db")
	database := openTestDB(t, dbPath)

	daemon, err := New(database, DefaultSeed())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	cli, err := New(database, DefaultSeed())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := daemon.SaveSchedule(scheduler.ScheduleConfig{Enabled: true, TimeOfDay: "09:00", LastRunDate: "2026-10-19"}); err != nil {
		t.Fatal(err)
	}
	// cli still holds the old snapshot and writes an older LastRunDate.
	if err := cli.SaveSchedule(scheduler.ScheduleConfig{Enabled: false, TimeOfDay: "06:15"}); err != nil {
		t.Fatal(err)
	}

	if err := daemon.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	got := daemon.Schedule()
	if got.Enabled || got.TimeOfDay != "06:15" {
		t.Errorf("Reload() schedule = %+v, want disabled 06:15", got)
	}
	if got.LastRunDate != "2026-10-19" {
		t.Errorf("Reload() moved LastRunDate back to %q", got.LastRunDate)
	}
}

func TestImplementsTriggerStore(t *testing.T) {
	s := newTestState(t)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	trig := scheduler.NewTrigger(s, nopRunner{}, scheduler.WithClock(func() time.Time { return now }), scheduler.WithLocation(time.UTC))

	if err := trig.SetScheduleConfig(scheduler.ScheduleConfig{Enabled: true, TimeOfDay: "09:00"}); err != nil {
		t.Fatalf("SetScheduleConfig() error = %v", err)
	}
	out, err := trig.Tick(context.Background())
	if err != nil || !out.Ran {
		t.Fatalf("Tick() = %+v, %v", out, err)
	}
	if s.Schedule().LastRunDate != "2026-10-19" {
		t.Errorf("LastRunDate = %q", s.Schedule().LastRunDate)
	}
}

type nopRunner struct{}

func (nopRunner) RunDailyAutoAssign(context.Context, assign.Config) (assign.Result, error) {
	return assign.Result{}, nil
}

func TestRunHistory(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		_, err := s.AddRunRecord(ctx, RunRecord{
			ID:           fmt.Sprintf("run-%d", i),
			Source:       SourceManual,
			Strategy:     "round-robin",
			StartTime:    base.Add(time.Duration(i) * time.Minute),
			TasksCreated: i,
			Status:       StatusSuccess,
		})
		if err != nil {
			t.Fatalf("AddRunRecord() error = %v", err)
		}
	}

	runs, err := s.GetRunHistory(ctx, 2)
	if err != nil {
		t.Fatalf("GetRunHistory() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Fatalf("GetRunHistory(2) = %+v", runs)
	}
	if !runs[0].EndTime.Equal(runs[0].StartTime) {
		t.Errorf("EndTime default = %v, want StartTime", runs[0].EndTime)
	}

	all, _ := s.GetRunHistory(ctx, 0)
	if len(all) != 3 {
		t.Errorf("GetRunHistory(0) returned %d, want 3", len(all))
	}
}

func TestRunHistoryIsBounded(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	base := time.Now().Add(-24 * time.Hour)

	for i := 0; i < maxRunHistory+5; i++ {
		if _, err := s.AddRunRecord(ctx, RunRecord{Source: SourceScheduled, StartTime: base.Add(time.Duration(i) * time.Second), Status: StatusSuccess}); err != nil {
			t.Fatalf("AddRunRecord() error = %v", err)
		}
	}
	runs, err := s.GetRunHistory(ctx, 0)
	if err != nil {
		t.Fatalf("GetRunHistory() error = %v", err)
	}
	if len(runs) != maxRunHistory {
		t.Errorf("history has %d runs, want %d", len(runs), maxRunHistory)
	}
}

func TestTodaySummary(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	records := []RunRecord{
		{Source: SourceScheduled, StartTime: now.Add(-6 * time.Hour), TasksCreated: 7, TasksAssigned: 4, Status: StatusSuccess},
		{Source: SourceManual, StartTime: now.Add(-time.Hour), TasksCreated: 2, TasksAssigned: 1, Failures: 1, Status: StatusPartial},
		{Source: SourceManual, StartTime: now.Add(-30 * time.Minute), Status: StatusFailed, Error: "no eligible users"},
		{Source: SourceScheduled, StartTime: now.Add(-24 * time.Hour), TasksCreated: 9, Status: StatusSuccess},
	}
	for _, r := range records {
		if _, err := s.AddRunRecord(ctx, r); err != nil {
			t.Fatalf("AddRunRecord() error = %v", err)
		}
	}

	today, err := s.GetTodayRuns(ctx, time.UTC)
	if err != nil {
		t.Fatalf("GetTodayRuns() error = %v", err)
	}
	if len(today) != 3 {
		t.Fatalf("GetTodayRuns() returned %d, want 3", len(today))
	}
	if today[2].Error != "" || today[0].Error != "no eligible users" {
		t.Errorf("error column round trip: %+v", today)
	}

	sum, err := s.GetTodaySummary(ctx, time.UTC)
	if err != nil {
		t.Fatalf("GetTodaySummary() error = %v", err)
	}
	want := TodaySummary{TotalRuns: 3, SuccessfulRuns: 1, PartialRuns: 1, FailedRuns: 1, ScheduledRuns: 1, TasksCreated: 9, TasksAssigned: 5}
	if sum != want {
		t.Errorf("GetTodaySummary() = %+v, want %+v", sum, want)
	}
}

func TestRecordFromResult(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	res := assign.Result{
		Strategy:      assign.StrategyRoundRobin,
		TasksCreated:  4,
		TasksAssigned: 3,
		StartedAt:     start,
		FinishedAt:    start.Add(time.Second),
	}

	rec := RecordFromResult(SourceScheduled, res, nil)
	if rec.Status != StatusSuccess || rec.Strategy != "round-robin" || rec.TasksCreated != 4 {
		t.Errorf("success record = %+v", rec)
	}

	res.Failures = []*assign.WriteFailure{{Title: "X", Err: errors.New("locked")}}
	if rec := RecordFromResult(SourceManual, res, nil); rec.Status != StatusPartial || rec.Failures != 1 || rec.Error == "" {
		t.Errorf("partial record = %+v", rec)
	}

	if rec := RecordFromResult(SourceManual, assign.Result{}, assign.ErrNoEligibleUsers); rec.Status != StatusFailed || rec.Error != assign.ErrNoEligibleUsers.Error() {
		t.Errorf("failed record = %+v", rec)
	}
}

func openTestDB(t *testing.T, path string) *db.DB {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}

func newTestState(t *testing.T) *State {
	t.Helper()

	database := openTestDB(t, filepath.Join(t.TempDir(), "taskrota.db"))
	s, err := New(database, DefaultSeed())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}
