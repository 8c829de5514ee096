package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/taskrota/internal/tasks"
	"github.com/marcus/taskrota/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"dash"},
	Short:   "Live view of the schedule, today's tasks and recent batches",
	Long: `Open a full-screen dashboard that refreshes on an interval.

Shows whether the daemon is running, when the scheduled batch fires next,
today's tasks with their assignees, and the most recent batches.`,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().Duration("refresh", ui.DefaultRefresh, "Refresh interval")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if !isInteractive() {
		return errors.New("dashboard needs an interactive terminal (try 'taskrota stats' or 'taskrota history')")
	}
	refresh, _ := cmd.Flags().GetDuration("refresh")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return ui.New(rt.snapshot, refresh).Run(ctx)
}

// snapshot loads one dashboard refresh: overdue tasks first, then today's.
// Settings are reloaded so changes made by other processes show up.
func (rt *runtime) snapshot(ctx context.Context) (ui.Snapshot, error) {
	if err := rt.state.Reload(); err != nil {
		return ui.Snapshot{}, fmt.Errorf("reload settings: %w", err)
	}
	loc := rt.cfg.Location()
	now := time.Now().In(loc)

	snap := ui.Snapshot{
		Schedule: rt.state.Schedule(),
		Strategy: string(rt.state.AutoAssign().Strategy),
		Timezone: loc.String(),
		LoadedAt: now,
	}
	if running, pid := isDaemonRunning(); running {
		snap.Daemon = ui.StatusRunning
		snap.DaemonPID = pid
	}
	if next, ok := snap.Schedule.NextRun(now); ok {
		snap.NextRun = next
	}

	var err error
	if snap.Today, err = rt.state.GetTodaySummary(ctx, loc); err != nil {
		return ui.Snapshot{}, err
	}
	if snap.Runs, err = rt.state.GetRunHistory(ctx, 20); err != nil {
		return ui.Snapshot{}, err
	}

	overdue, err := rt.store.List(ctx, tasks.Filter{Due: tasks.DueOverdue})
	if err != nil {
		return ui.Snapshot{}, err
	}
	today, err := rt.store.List(ctx, tasks.Filter{Due: tasks.DueToday})
	if err != nil {
		return ui.Snapshot{}, err
	}
	names := rt.userNames(ctx)
	add := func(insts []tasks.Instance, late bool) {
		for _, inst := range insts {
			item := ui.TaskItem{
				ID:       inst.ID,
				Title:    inst.Title,
				Category: inst.Category,
				Status:   inst.Status,
				Overdue:  late,
			}
			if inst.IsAssigned() {
				item.Assignee = assigneeLabel(inst.AssignedTo, names)
			}
			snap.Tasks = append(snap.Tasks, item)
		}
	}
	add(overdue, true)
	add(today, false)
	return snap, nil
}
