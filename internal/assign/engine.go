// Package assign implements the daily auto-assignment engine: distribution
// strategies, dedup against today's existing tasks, and batch execution.
package assign

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/marcus/taskrota/internal/logging"
	"github.com/marcus/taskrota/internal/roster"
	"github.com/marcus/taskrota/internal/tasks"
)

// Catalog supplies task templates in stable order.
type Catalog interface {
	ByCategory(category tasks.Category) []tasks.TaskDefinition
}

// Roster supplies the users eligible for assignment in stable order.
type Roster interface {
	Eligible(ctx context.Context) ([]roster.User, error)
}

// Store persists new task instances and answers the today query.
type Store interface {
	Create(ctx context.Context, inst tasks.Instance) (tasks.Instance, error)
	QueryByCategoryAndDate(ctx context.Context, category tasks.Category, day time.Time) ([]tasks.Instance, error)
}

// DueDatePolicy computes the due date of an instance created at now.
type DueDatePolicy func(category tasks.Category, now time.Time) time.Time

// Config controls one batch.
type Config struct {
	Strategy          Strategy `json:"strategy"`
	IncludeUnassigned bool     `json:"include_unassigned"`
	AssignToAllUsers  bool     `json:"assign_to_all_users"`
	SkipExisting      bool     `json:"skip_existing"`
}

// DefaultConfig returns the configuration used until one is saved.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyDistribute,
		IncludeUnassigned: true,
		AssignToAllUsers:  true,
		SkipExisting:      true,
	}
}

// Validate checks the strategy name.
func (c Config) Validate() error {
	_, err := ParseStrategy(string(c.Strategy))
	return err
}

// Plan is the set of instances a batch would create.
type Plan struct {
	Config            Config           `json:"config"`
	Date              string           `json:"date"`
	Users             int              `json:"users"`
	Templates         int              `json:"templates"`
	ExistingToday     int              `json:"existing_today"`
	NeedsConfirmation bool             `json:"needs_confirmation"`
	Instances         []tasks.Instance `json:"instances"`
}

// Assigned is the number of planned instances with an assignee.
func (p Plan) Assigned() int {
	n := 0
	for _, inst := range p.Instances {
		if inst.IsAssigned() {
			n++
		}
	}
	return n
}

// Result summarizes an executed batch.
type Result struct {
	Strategy      Strategy `json:"strategy"`
	TasksCreated  int      `json:"tasks_created"`
	TasksAssigned int      `json:"tasks_assigned"`
	// ExistingToday is how many daily tasks already existed when the batch
	// started. NeedsConfirmation is set when SkipExisting was requested and
	// that number is non-zero; the batch runs regardless.
	ExistingToday     int              `json:"existing_today"`
	NeedsConfirmation bool             `json:"needs_confirmation"`
	Created           []tasks.Instance `json:"created,omitempty"`
	Failures          []*WriteFailure  `json:"-"`
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
}

// Err joins every write failure, or returns nil.
func (r Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Duration is the wall time of the batch.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Engine runs auto-assignment batches. At most one batch runs at a time.
type Engine struct {
	catalog      Catalog
	roster       Roster
	store        Store
	dueDate      DueDatePolicy
	now          func() time.Time
	loc          *time.Location
	logger       *logging.Logger
	eventHandler EventHandler

	running atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLocation sets the time zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithDueDatePolicy replaces tasks.DefaultDueDate.
func WithDueDatePolicy(p DueDatePolicy) Option {
	return func(e *Engine) {
		e.dueDate = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithEventHandler sets an optional callback for batch progress.
func WithEventHandler(h EventHandler) Option {
	return func(e *Engine) {
		e.eventHandler = h
	}
}

// NewEngine creates an engine over its collaborators.
func NewEngine(catalog Catalog, users Roster, store Store, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		roster:  users,
		store:   store,
		dueDate: tasks.DefaultDueDate,
		now:     time.Now,
		loc:     time.Local,
		logger:  logging.Component("assign"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) emit(ev Event) {
	if e.eventHandler != nil {
		ev.Time = e.now()
		e.eventHandler(ev)
	}
}

// Running reports whether a batch is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Preview computes the batch cfg would run now without writing anything.
func (e *Engine) Preview(ctx context.Context, cfg Config) (Plan, error) {
	return e.plan(ctx, cfg, e.now().In(e.loc))
}

// RunDailyAutoAssign creates today's daily task instances according to cfg.
//
// Store failures on individual instances do not stop the batch; they are
// collected in Result.Failures and the returned error is nil. A cancelled
// context stops the batch between creates and returns what was created so far
// together with the context error.
func (e *Engine) RunDailyAutoAssign(ctx context.Context, cfg Config) (Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, ErrBatchInProgress
	}
	defer e.running.Store(false)

	now := e.now().In(e.loc)
	result := Result{Strategy: cfg.Strategy, StartedAt: now}

	plan, err := e.plan(ctx, cfg, now)
	if err != nil {
		result.FinishedAt = e.now().In(e.loc)
		return result, err
	}
	result.ExistingToday = plan.ExistingToday
	result.NeedsConfirmation = plan.NeedsConfirmation

	e.logger.InfoCtx("batch start", map[string]any{
		"strategy":       string(cfg.Strategy),
		"users":          plan.Users,
		"templates":      plan.Templates,
		"existing_today": plan.ExistingToday,
		"planned":        len(plan.Instances),
	})
	e.emit(Event{Type: EventBatchStart, Planned: len(plan.Instances)})

	for _, inst := range plan.Instances {
		if err := ctx.Err(); err != nil {
			result.FinishedAt = e.now().In(e.loc)
			e.logger.WarnCtx("batch cancelled", map[string]any{"tasks_created": result.TasksCreated})
			return result, fmt.Errorf("assignment batch cancelled: %w", err)
		}

		created, err := e.store.Create(ctx, inst)
		if err != nil {
			failure := &WriteFailure{
				TemplateID: inst.TemplateID,
				Title:      inst.Title,
				UserID:     inst.AssignedTo,
				Err:        err,
			}
			result.Failures = append(result.Failures, failure)
			e.logger.Err(err).
				Str("title", inst.Title).
				Str("user_id", inst.AssignedTo).
				Msg("create task failed")
			e.emit(Event{Type: EventWriteFailed, Title: inst.Title, UserID: inst.AssignedTo, Err: err})
			continue
		}

		result.TasksCreated++
		if created.IsAssigned() {
			result.TasksAssigned++
		}
		result.Created = append(result.Created, created)
		e.emit(Event{Type: EventTaskCreated, Title: created.Title, UserID: created.AssignedTo, TaskID: created.ID})
	}

	result.FinishedAt = e.now().In(e.loc)
	e.logger.InfoCtx("batch complete", map[string]any{
		"tasks_created":  result.TasksCreated,
		"tasks_assigned": result.TasksAssigned,
		"failures":       len(result.Failures),
		"duration":       result.Duration().String(),
	})
	e.emit(Event{Type: EventBatchEnd, Created: result.TasksCreated, Assigned: result.TasksAssigned, Failed: len(result.Failures)})
	return result, nil
}

// plan reads the collaborators and decides every instance to create.
func (e *Engine) plan(ctx context.Context, cfg Config, now time.Time) (Plan, error) {
	strategy, err := ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return Plan{}, err
	}
	cfg.Strategy = strategy

	templates := e.catalog.ByCategory(tasks.CategoryDaily)
	users, err := e.roster.Eligible(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("load eligible users: %w", err)
	}
	if len(users) == 0 {
		return Plan{}, ErrNoEligibleUsers
	}

	existing, err := e.store.QueryByCategoryAndDate(ctx, tasks.CategoryDaily, now)
	if err != nil {
		return Plan{}, fmt.Errorf("load today's tasks: %w", err)
	}
	index := NewIndex(existing)

	plan := Plan{
		Config:            cfg,
		Date:              tasks.DateString(now),
		Users:             len(users),
		Templates:         len(templates),
		ExistingToday:     index.Len(),
		NeedsConfirmation: cfg.SkipExisting && index.Len() > 0,
	}
	due := e.dueDate(tasks.CategoryDaily, now)

	if cfg.AssignToAllUsers {
		minLoad := index.MinLoad(users)
		for u, user := range users {
			load := index.Load(user.ID)
			for t, def := range templates {
				if !strategy.ShouldAssign(u, t, len(users), load, minLoad) {
					continue
				}
				if cfg.SkipExisting && index.HasAssigned(def.Title, user.ID) {
					continue
				}
				plan.Instances = append(plan.Instances, tasks.FromDefinition(def, due, user.ID))
			}
		}
	}

	if cfg.IncludeUnassigned {
		for _, def := range templates {
			if cfg.SkipExisting && index.HasTitle(def.Title) {
				continue
			}
			plan.Instances = append(plan.Instances, tasks.FromDefinition(def, due, ""))
		}
	}

	return plan, nil
}
