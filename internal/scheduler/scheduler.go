// Package scheduler runs the daily auto-assignment at a configured time of day.
// A cron-driven wake checks once per interval whether the scheduled minute has
// arrived and fires at most one run per calendar date.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/marcus/taskrota/internal/assign"
	"github.com/marcus/taskrota/internal/logging"
	"github.com/marcus/taskrota/internal/tasks"
)

// DefaultInterval is how often the trigger wakes.
const DefaultInterval = 60 * time.Second

// windowMinutes is how far from the scheduled minute a wake still fires.
const windowMinutes = 1

var (
	ErrInvalidScheduleTime = errors.New("invalid schedule time")
	ErrAlreadyRunning      = errors.New("scheduler already running")
	ErrNotRunning          = errors.New("scheduler not running")
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM". A single-digit hour is accepted.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || hh == "" || len(hh) > 2 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q (want HH:MM)", ErrInvalidScheduleTime, s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: hour in %q", ErrInvalidScheduleTime, s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: minute in %q", ErrInvalidScheduleTime, s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// ScheduleConfig is the persisted daily schedule. LastRunDate is the
// YYYY-MM-DD date of the last scheduled run, or empty.
type ScheduleConfig struct {
	Enabled     bool   `json:"enabled"`
	TimeOfDay   string `json:"time_of_day"`
	LastRunDate string `json:"last_run_date,omitempty"`
}

// DefaultScheduleConfig returns a disabled 09:00 schedule that has never run.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{TimeOfDay: "09:00"}
}

// Validate checks TimeOfDay and LastRunDate.
func (c ScheduleConfig) Validate() error {
	if _, err := ParseTimeOfDay(c.TimeOfDay); err != nil {
		return err
	}
	if c.LastRunDate != "" {
		if _, err := time.Parse("2006-01-02", c.LastRunDate); err != nil {
			return fmt.Errorf("invalid last run date %q: %w", c.LastRunDate, err)
		}
	}
	return nil
}

// NextRun returns when the scheduled batch will next fire, as seen at now.
// A window already missed today moves to tomorrow. ok is false when the
// schedule is disabled or its time does not parse.
func (c ScheduleConfig) NextRun(now time.Time) (next time.Time, ok bool) {
	if !c.Enabled {
		return time.Time{}, false
	}
	tod, err := ParseTimeOfDay(c.TimeOfDay)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := now.Date()
	next = time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, now.Location())

	diff := now.Hour()*60 + now.Minute() - tod.Minutes()
	if c.LastRunDate >= tasks.DateString(now) || diff > windowMinutes {
		next = next.AddDate(0, 0, 1)
	}
	return next, true
}

// ConfigStore holds the process-wide schedule and auto-assign settings.
type ConfigStore interface {
	Schedule() ScheduleConfig
	SaveSchedule(cfg ScheduleConfig) error
	AutoAssign() assign.Config
}

// Runner executes one assignment batch.
type Runner interface {
	RunDailyAutoAssign(ctx context.Context, cfg assign.Config) (assign.Result, error)
}

// State is the trigger's view of the current day.
type State int

const (
	StateIdle     State = iota // disabled or outside the window
	StateDueToRun              // inside the window, not yet run today
	StateRanToday              // a scheduled run already happened today
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDueToRun:
		return "due"
	case StateRanToday:
		return "ran-today"
	}
	return "unknown"
}

// Outcome describes one wake.
type Outcome struct {
	State  State
	Date   string
	Ran    bool // this wake invoked the runner
	Result assign.Result
}

// Trigger fires the daily batch from a periodic wake.
type Trigger struct {
	store    ConfigStore
	runner   Runner
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger

	tickMu sync.Mutex // serializes wakes
	cfgMu  sync.Mutex // serializes schedule read-modify-write

	mu      sync.Mutex
	cron    *cron.Cron
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	missed rate.Sometimes
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithInterval sets the wake interval.
func WithInterval(d time.Duration) Option {
	return func(t *Trigger) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithLocation sets the time zone of the scheduled time.
func WithLocation(loc *time.Location) Option {
	return func(t *Trigger) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Trigger) {
		t.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(t *Trigger) {
		t.logger = l
	}
}

// NewTrigger creates a stopped trigger.
func NewTrigger(store ConfigStore, runner Runner, opts ...Option) *Trigger {
	t := &Trigger{
		store:    store,
		runner:   runner,
		interval: DefaultInterval,
		loc:      time.Local,
		now:      time.Now,
		logger:   logging.Component("scheduler"),
		missed:   rate.Sometimes{Interval: time.Hour},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetScheduleConfig returns a snapshot of the schedule.
func (t *Trigger) GetScheduleConfig() ScheduleConfig {
	return t.store.Schedule()
}

// SetScheduleConfig validates and saves cfg. An incoming LastRunDate older
// than the stored one is replaced by the stored one.
func (t *Trigger) SetScheduleConfig(cfg ScheduleConfig) error {
	tod, err := ParseTimeOfDay(cfg.TimeOfDay)
	if err != nil {
		return err
	}
	cfg.TimeOfDay = tod.String()
	if err := cfg.Validate(); err != nil {
		return err
	}

	t.cfgMu.Lock()
	defer t.cfgMu.Unlock()

	current := t.store.Schedule()
	if cfg.LastRunDate < current.LastRunDate {
		cfg.LastRunDate = current.LastRunDate
	}
	if err := t.store.SaveSchedule(cfg); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	t.logger.InfoCtx("schedule updated", map[string]any{
		"enabled": cfg.Enabled,
		"time":    cfg.TimeOfDay,
	})
	return nil
}

// Tick performs one wake. When the schedule is due it runs the batch with the
// stored auto-assign config and records today as run, whatever the outcome
// of the batch. Missed windows are not caught up.
func (t *Trigger) Tick(ctx context.Context) (Outcome, error) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	now := t.now().In(t.loc)
	today := tasks.DateString(now)
	out := Outcome{State: StateIdle, Date: today}

	cfg := t.store.Schedule()
	if !cfg.Enabled {
		return out, nil
	}
	// YYYY-MM-DD compares in date order; a stored date ahead of today
	// (timezone change, clock correction) counts as already run.
	if cfg.LastRunDate >= today {
		out.State = StateRanToday
		return out, nil
	}

	tod, err := ParseTimeOfDay(cfg.TimeOfDay)
	if err != nil {
		return out, err
	}
	diff := now.Hour()*60 + now.Minute() - tod.Minutes()
	if diff < -windowMinutes || diff > windowMinutes {
		if diff > windowMinutes {
			t.missed.Do(func() {
				t.logger.WarnCtx("scheduled assignment window passed without a run", map[string]any{
					"scheduled": tod.String(),
					"date":      today,
				})
			})
		}
		return out, nil
	}

	out.State = StateDueToRun
	autoCfg := t.store.AutoAssign()
	t.logger.InfoCtx("scheduled assignment due", map[string]any{
		"scheduled": tod.String(),
		"strategy":  string(autoCfg.Strategy),
	})

	result, runErr := t.runner.RunDailyAutoAssign(ctx, autoCfg)
	saveErr := t.markRan(today)

	out.State = StateRanToday
	out.Ran = true
	out.Result = result
	if runErr != nil {
		t.logger.Err(runErr).Str("date", today).Msg("scheduled assignment failed")
	} else {
		t.logger.InfoCtx("scheduled assignment finished", map[string]any{
			"tasks_created":  result.TasksCreated,
			"tasks_assigned": result.TasksAssigned,
			"failures":       len(result.Failures),
		})
	}
	return out, errors.Join(runErr, saveErr)
}

// markRan advances LastRunDate to date, keeping the rest of the stored
// schedule as it is now.
func (t *Trigger) markRan(date string) error {
	t.cfgMu.Lock()
	defer t.cfgMu.Unlock()

	cfg := t.store.Schedule()
	if cfg.LastRunDate >= date {
		return nil
	}
	cfg.LastRunDate = date
	if err := t.store.SaveSchedule(cfg); err != nil {
		t.logger.Err(err).Str("date", date).Msg("failed to record scheduled run")
		return fmt.Errorf("record last run date: %w", err)
	}
	return nil
}

// Start begins waking every interval and performs one immediate check.
// Cancelling ctx stops the trigger.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrAlreadyRunning
	}

	clog := cronLogger{l: t.logger}
	c := cron.New(
		cron.WithLocation(t.loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	c.Schedule(cron.Every(t.interval), cron.FuncJob(func() { t.wake(ctx) }))
	c.Start()

	t.cron = c
	t.stopCh = make(chan struct{})
	t.running = true

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.wake(ctx)
	}()

	go func(stop <-chan struct{}) {
		select {
		case <-ctx.Done():
			_ = t.Stop()
		case <-stop:
		}
	}(t.stopCh)

	t.logger.InfoCtx("scheduler started", map[string]any{
		"interval": t.interval.String(),
		"tz":       t.loc.String(),
	})
	return nil
}

// Stop halts the wake loop and waits for an in-flight wake to finish.
func (t *Trigger) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return ErrNotRunning
	}
	c := t.cron
	close(t.stopCh)
	t.cron = nil
	t.running = false
	t.mu.Unlock()

	<-c.Stop().Done()
	t.wg.Wait()
	t.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether the wake loop is active.
func (t *Trigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// NextWake returns the time of the next wake, or zero when stopped.
func (t *Trigger) NextWake() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cron == nil {
		return time.Time{}
	}
	entries := t.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (t *Trigger) wake(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	out, err := t.Tick(ctx)
	if err != nil && !out.Ran {
		t.logger.Err(err).Msg("schedule check failed")
	}
}

// cronLogger adapts the logger to cron.Logger.
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.DebugCtx("cron: "+msg, fields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Err(err).Fields(fields(keysAndValues)).Msg("cron: " + msg)
}

func fields(kv []interface{}) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		m[k] = kv[i+1]
	}
	return m
}
