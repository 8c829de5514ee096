package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/marcus/taskrota/internal/assign"
	"github.com/marcus/taskrota/internal/audit"
	"github.com/marcus/taskrota/internal/config"
	"github.com/marcus/taskrota/internal/db"
	"github.com/marcus/taskrota/internal/logging"
	"github.com/marcus/taskrota/internal/reporting"
	"github.com/marcus/taskrota/internal/roster"
	"github.com/marcus/taskrota/internal/scheduler"
	"github.com/marcus/taskrota/internal/state"
	"github.com/marcus/taskrota/internal/tasks"
)

// isInteractive reports whether stdout is a terminal. Override in tests.
var isInteractive = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// loadConfig is swapped in tests.
var loadConfig = config.Load

// runtime holds everything a command needs to talk to the database.
type runtime struct {
	cfg     *config.Config
	db      *db.DB
	catalog *tasks.CatalogRef
	roster  *roster.Roster
	store   *tasks.Store
	state   *state.State
	engine  *assign.Engine
	reports *reporting.Writer
	audit   *audit.Logger // nil when disabled
}

// openRuntime loads the config, initializes logging and opens the database.
func openRuntime(cmd *cobra.Command, opts ...assign.Option) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	if err := initLogging(cfg); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return newRuntime(cfg, opts...)
}

func initLogging(cfg *config.Config) error {
	return logging.Init(cfg.LogConfig())
}

// newRuntime wires the stores and the engine for cfg.
func newRuntime(cfg *config.Config, opts ...assign.Option) (*runtime, error) {
	catalog, err := tasks.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	rt := &runtime{cfg: cfg, db: database, catalog: tasks.NewCatalogRef(catalog)}
	if rt.roster, err = roster.New(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	if rt.store, err = tasks.NewStore(database, tasks.InLocation(cfg.Location())); err != nil {
		_ = database.Close()
		return nil, err
	}
	rt.state, err = state.New(database, state.Seed{
		AutoAssign: cfg.AssignSeed(),
		Schedule:   cfg.ScheduleSeed(),
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("loading state: %w", err)
	}

	engineOpts := append([]assign.Option{
		assign.WithLocation(cfg.Location()),
		assign.WithLogger(logging.Component("assign")),
	}, opts...)
	rt.engine = assign.NewEngine(rt.catalog, rt.roster, rt.store, engineOpts...)

	if cfg.Reports.Enabled {
		rt.reports = reporting.NewWriter(cfg.Reports.Dir, logging.Get().CurrentLogPath())
	}
	if cfg.Audit.Enabled {
		if rt.audit, err = audit.NewLogger(cfg.Audit.Dir); err != nil {
			_ = database.Close()
			return nil, err
		}
	}
	return rt, nil
}

// Close releases the database and the audit log.
func (rt *runtime) Close() error {
	return errors.Join(rt.audit.Close(), rt.db.Close())
}

// logAudit logs a failed audit write. The change itself already happened, so
// the error is not returned.
func (rt *runtime) logAudit(err error) {
	if err != nil {
		logging.Component("audit").Warnf("audit log: %v", err)
	}
}

// trigger builds the schedule trigger over the persisted settings.
func (rt *runtime) trigger(store scheduler.ConfigStore) *scheduler.Trigger {
	if store == nil {
		store = rt.state
	}
	return scheduler.NewTrigger(store, rt.runner(state.SourceScheduled),
		scheduler.WithLocation(rt.cfg.Location()),
		scheduler.WithInterval(rt.cfg.Schedule.TickInterval),
		scheduler.WithLogger(logging.Component("scheduler")),
	)
}

// runner returns a batch runner that records every batch it runs.
func (rt *runtime) runner(source string) *recordingRunner {
	return &recordingRunner{rt: rt, source: source, log: logging.Component("runner")}
}

// userNames maps user IDs to display names for reports.
func (rt *runtime) userNames(ctx context.Context) map[string]string {
	users, err := rt.roster.List(ctx)
	if err != nil {
		return nil
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names
}

// recordingRunner runs a batch and stores a history record and a report.
type recordingRunner struct {
	rt         *runtime
	source     string
	log        *logging.Logger
	reportPath string
}

// RunDailyAutoAssign implements scheduler.Runner.
func (r *recordingRunner) RunDailyAutoAssign(ctx context.Context, cfg assign.Config) (assign.Result, error) {
	res, runErr := r.rt.engine.RunDailyAutoAssign(ctx, cfg)
	if errors.Is(runErr, assign.ErrBatchInProgress) {
		return res, runErr
	}

	// History and reports must survive a cancelled batch.
	saveCtx := context.WithoutCancel(ctx)
	if _, err := r.rt.state.AddRunRecord(saveCtx, state.RecordFromResult(r.source, res, runErr)); err != nil {
		r.log.Errorf("record run: %v", err)
	}
	r.rt.logAudit(r.rt.audit.LogBatch(r.source, res, runErr))
	if r.rt.reports != nil && !res.StartedAt.IsZero() {
		results := reporting.FromResult(r.source, res, runErr, r.rt.userNames(saveCtx))
		path, err := r.rt.reports.Write(results)
		if err != nil {
			r.log.Warnf("write report: %v", err)
		} else {
			r.reportPath = path
		}
	}
	return res, runErr
}

// confirm asks a yes/no question. Non-interactive sessions answer yes.
func confirm(in io.Reader, prompt string) (bool, error) {
	if !isInteractive() {
		return true, nil
	}
	fmt.Printf("%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		ans := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(ans, "y") || strings.EqualFold(ans, "yes") {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("read stdin: %w", err)
	}
	return false, nil
}
