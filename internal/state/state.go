// Package state holds taskrota's process-wide settings and batch run history.
// Settings are loaded from SQLite at startup, served from memory, and written
// back on every change.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/taskrota/internal/assign"
	"github.com/marcus/taskrota/internal/db"
	"github.com/marcus/taskrota/internal/scheduler"
	"github.com/marcus/taskrota/internal/tasks"
)

const (
	keyAutoAssign = "auto_assign"
	keySchedule   = "schedule"

	// maxRunHistory bounds the assign_runs table.
	maxRunHistory = 100
)

var _ scheduler.ConfigStore = (*State)(nil)

// Seed supplies the settings written the first time a database is used.
type Seed struct {
	AutoAssign assign.Config
	Schedule   scheduler.ScheduleConfig
}

// DefaultSeed returns the built-in settings.
func DefaultSeed() Seed {
	return Seed{
		AutoAssign: assign.DefaultConfig(),
		Schedule:   scheduler.DefaultScheduleConfig(),
	}
}

// State manages persistent taskrota settings.
type State struct {
	mu         sync.RWMutex
	db         *sql.DB
	autoAssign assign.Config
	schedule   scheduler.ScheduleConfig
	now        func() time.Time
}

// New loads settings from the database, writing seed values for any that are
// missing.
func New(database *db.DB, seed Seed) (*State, error) {
	if database == nil || database.SQL() == nil {
		return nil, errors.New("state: db is nil")
	}
	if seed.AutoAssign.Strategy == "" {
		seed.AutoAssign = assign.DefaultConfig()
	}
	if seed.Schedule.TimeOfDay == "" {
		seed.Schedule = scheduler.DefaultScheduleConfig()
	}

	s := &State{db: database.SQL(), now: time.Now}

	if err := s.loadOrSeed(keyAutoAssign, &s.autoAssign, seed.AutoAssign); err != nil {
		return nil, err
	}
	if err := s.loadOrSeed(keySchedule, &s.schedule, seed.Schedule); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) loadOrSeed(key string, dst any, seed any) error {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.put(key, seed); err != nil {
			return err
		}
		raw, err := json.Marshal(seed)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		return json.Unmarshal(raw, dst)
	case err != nil:
		return fmt.Errorf("load setting %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("parse setting %s: %w", key, err)
	}
	return nil
}

func (s *State) put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), db.FormatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return nil
}

// AutoAssign returns a snapshot of the auto-assign config.
func (s *State) AutoAssign() assign.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoAssign
}

// SaveAutoAssign validates, persists and installs cfg.
func (s *State) SaveAutoAssign(cfg assign.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(keyAutoAssign, cfg); err != nil {
		return err
	}
	s.autoAssign = cfg
	return nil
}

// Schedule returns a snapshot of the schedule config.
func (s *State) Schedule() scheduler.ScheduleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedule
}

// SaveSchedule validates, persists and installs cfg.
func (s *State) SaveSchedule(cfg scheduler.ScheduleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(keySchedule, cfg); err != nil {
		return err
	}
	s.schedule = cfg
	return nil
}

// Reload re-reads settings written by another process (for example
// `taskrota schedule set` while the daemon is running).
func (s *State) Reload() error {
	var (
		auto  assign.Config
		sched scheduler.ScheduleConfig
	)
	if err := s.get(keyAutoAssign, &auto); err != nil {
		return err
	}
	if err := s.get(keySchedule, &sched); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoAssign = auto
	// the in-memory LastRunDate may be ahead of a stale row
	if sched.LastRunDate < s.schedule.LastRunDate {
		sched.LastRunDate = s.schedule.LastRunDate
	}
	s.schedule = sched
	return nil
}

func (s *State) get(key string, dst any) error {
	var raw string
	if err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&raw); err != nil {
		return fmt.Errorf("load setting %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("parse setting %s: %w", key, err)
	}
	return nil
}

// Run sources.
const (
	SourceManual    = "manual"
	SourceScheduled = "scheduled"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial" // some creates failed
	StatusFailed  = "failed"
)

// RunRecord is one assignment batch in the history.
type RunRecord struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Strategy      string    `json:"strategy"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	TasksCreated  int       `json:"tasks_created"`
	TasksAssigned int       `json:"tasks_assigned"`
	ExistingToday int       `json:"existing_today"`
	Failures      int       `json:"failures"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
}

// RecordFromResult builds a history record for a finished batch.
func RecordFromResult(source string, res assign.Result, runErr error) RunRecord {
	rec := RunRecord{
		Source:        source,
		Strategy:      string(res.Strategy),
		StartTime:     res.StartedAt,
		EndTime:       res.FinishedAt,
		TasksCreated:  res.TasksCreated,
		TasksAssigned: res.TasksAssigned,
		ExistingToday: res.ExistingToday,
		Failures:      len(res.Failures),
		Status:        StatusSuccess,
	}
	switch {
	case runErr != nil:
		rec.Status = StatusFailed
		rec.Error = runErr.Error()
	case len(res.Failures) > 0:
		rec.Status = StatusPartial
		rec.Error = res.Err().Error()
	}
	return rec
}

// AddRunRecord stores a record and trims history to the most recent runs.
func (s *State) AddRunRecord(ctx context.Context, rec RunRecord) (RunRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now()
	if rec.StartTime.IsZero() {
		rec.StartTime = now
	}
	if rec.EndTime.IsZero() {
		rec.EndTime = rec.StartTime
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assign_runs (id, source, strategy, start_time, end_time, tasks_created,
		 tasks_assigned, existing_today, failures, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Strategy, db.FormatTime(rec.StartTime), db.FormatTime(rec.EndTime),
		rec.TasksCreated, rec.TasksAssigned, rec.ExistingToday, rec.Failures, rec.Status,
		sql.NullString{String: rec.Error, Valid: rec.Error != ""})
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM assign_runs WHERE id NOT IN (
		   SELECT id FROM assign_runs ORDER BY start_time DESC, id DESC LIMIT ?)`,
		maxRunHistory)
	if err != nil {
		return RunRecord{}, fmt.Errorf("trim run history: %w", err)
	}
	return rec, nil
}

// GetRunHistory returns the last n run records, most recent first.
// n <= 0 returns all of them.
func (s *State) GetRunHistory(ctx context.Context, n int) ([]RunRecord, error) {
	if n <= 0 {
		n = maxRunHistory
	}
	return s.queryRuns(ctx, `ORDER BY start_time DESC, id DESC LIMIT ?`, n)
}

// GetTodayRuns returns the runs that started today in loc, most recent first.
func (s *State) GetTodayRuns(ctx context.Context, loc *time.Location) ([]RunRecord, error) {
	if loc == nil {
		loc = time.Local
	}
	start, next := tasks.DayBounds(s.now().In(loc))
	return s.queryRuns(ctx, `WHERE start_time >= ? AND start_time < ? ORDER BY start_time DESC, id DESC`,
		db.FormatTime(start), db.FormatTime(next))
}

func (s *State) queryRuns(ctx context.Context, tail string, args ...any) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, strategy, start_time, end_time, tasks_created, tasks_assigned,
		        existing_today, failures, status, error
		 FROM assign_runs `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			start, end string
			errText    sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Strategy, &start, &end, &rec.TasksCreated,
			&rec.TasksAssigned, &rec.ExistingToday, &rec.Failures, &rec.Status, &errText); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		if rec.StartTime, err = db.ParseTime(start); err != nil {
			return nil, err
		}
		if rec.EndTime, err = db.ParseTime(end); err != nil {
			return nil, err
		}
		rec.Error = errText.String
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run history: %w", err)
	}
	return runs, nil
}

// TodaySummary aggregates today's batches.
type TodaySummary struct {
	TotalRuns      int
	SuccessfulRuns int
	PartialRuns    int
	FailedRuns     int
	ScheduledRuns  int
	TasksCreated   int
	TasksAssigned  int
}

// GetTodaySummary summarizes the runs that started today in loc.
func (s *State) GetTodaySummary(ctx context.Context, loc *time.Location) (TodaySummary, error) {
	runs, err := s.GetTodayRuns(ctx, loc)
	if err != nil {
		return TodaySummary{}, err
	}

	var summary TodaySummary
	for _, run := range runs {
		summary.TotalRuns++
		summary.TasksCreated += run.TasksCreated
		summary.TasksAssigned += run.TasksAssigned

		switch run.Status {
		case StatusSuccess:
			summary.SuccessfulRuns++
		case StatusPartial:
			summary.PartialRuns++
		case StatusFailed:
			summary.FailedRuns++
		}
		if run.Source == SourceScheduled {
			summary.ScheduledRuns++
		}
	}
	return summary, nil
}
