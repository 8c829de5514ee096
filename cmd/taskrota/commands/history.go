package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/taskrota/internal/audit"
	"github.com/marcus/taskrota/internal/reporting"
	"github.com/marcus/taskrota/internal/state"
	"github.com/marcus/taskrota/internal/tasks"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show assignment batch history",
	Long: `Display recent assignment batches, manual and scheduled.

Shows the last N batches (default: 5) or today's summary.`,
	RunE: runHistory,
}

var historyAuditCmd = &cobra.Command{
	Use:   "audit [YYYY-MM-DD]",
	Short: "Show the day's change log",
	Long: `Show every change recorded in the audit log for a day (default today):
batches, task creation, assignment and status changes, roster and settings
changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistoryAudit,
}

var historyReportCmd = &cobra.Command{
	Use:   "report [YYYY-MM-DD]",
	Short: "Print the day's assignment summary from saved reports",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryReport,
}

func init() {
	historyCmd.Flags().IntP("last", "n", 5, "Show last N batches")
	historyCmd.Flags().Bool("today", false, "Show today's summary")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
	historyAuditCmd.Flags().Bool("json", false, "Output as JSON")
	historyCmd.AddCommand(historyReportCmd)
	historyCmd.AddCommand(historyAuditCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	last, _ := cmd.Flags().GetInt("last")
	today, _ := cmd.Flags().GetBool("today")
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx := cmd.Context()
	loc := rt.cfg.Location()
	if today {
		summary, err := rt.state.GetTodaySummary(ctx, loc)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(summary)
		}
		showTodaySummary(summary)
		return nil
	}

	runs, err := rt.state.GetRunHistory(ctx, last)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No batch history found.")
		return nil
	}
	fmt.Printf("Last %d batches:\n\n", len(runs))
	for _, run := range runs {
		printRunRecord(run, loc)
		fmt.Println()
	}
	return nil
}

func showTodaySummary(summary state.TodaySummary) {
	if summary.TotalRuns == 0 {
		fmt.Println("No batches today.")
		return
	}

	fmt.Printf("Today's Assignment Summary\n")
	fmt.Printf("==========================\n\n")
	fmt.Printf("Batches: %d total (%d success, %d partial, %d failed, %d scheduled)\n",
		summary.TotalRuns, summary.SuccessfulRuns, summary.PartialRuns, summary.FailedRuns, summary.ScheduledRuns)
	fmt.Printf("Tasks:   %d created, %d assigned\n", summary.TasksCreated, summary.TasksAssigned)
}

func printRunRecord(run state.RunRecord, loc *time.Location) {
	duration := run.EndTime.Sub(run.StartTime)

	fmt.Printf("[%s] %s (%s)\n", run.StartTime.In(loc).Format("2006-01-02 15:04"), formatStatus(run.Status), run.Source)
	if run.Strategy != "" {
		fmt.Printf("  Strategy: %s\n", run.Strategy)
	}
	fmt.Printf("  Tasks:    %d created, %d assigned\n", run.TasksCreated, run.TasksAssigned)
	if run.ExistingToday > 0 {
		fmt.Printf("  Existing: %d\n", run.ExistingToday)
	}
	if run.Failures > 0 {
		fmt.Printf("  Failures: %d\n", run.Failures)
	}
	if duration > 0 {
		fmt.Printf("  Duration: %s\n", formatDuration(duration))
	}
	if run.Error != "" {
		fmt.Printf("  Error:    %s\n", run.Error)
	}
}

func formatStatus(status string) string {
	switch status {
	case state.StatusSuccess:
		return "SUCCESS"
	case state.StatusFailed:
		return "FAILED"
	case state.StatusPartial:
		return "PARTIAL"
	default:
		return strings.ToUpper(status)
	}
}

func formatDuration(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

// dayArg resolves an optional day argument, defaulting to today in loc.
func dayArg(args []string, loc *time.Location) (string, error) {
	if len(args) == 0 {
		return tasks.DateString(time.Now().In(loc)), nil
	}
	t, err := parseTimeInput(args[0], time.Now(), loc)
	if err != nil {
		return "", err
	}
	return tasks.DateString(t), nil
}

func runHistoryAudit(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// audit files are named by the local calendar day
	date, err := dayArg(args, time.Local)
	if err != nil {
		return err
	}

	events, err := audit.ReadDay(cfg.Audit.Dir, date)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(events)
	}
	if len(events) == 0 {
		fmt.Printf("No changes recorded on %s.\n", date)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tEVENT\tACTION\tACTOR\tTASK\tUSER\tRESULT")
	for _, ev := range events {
		result := ev.Result
		if ev.Error != "" {
			result = strings.TrimSpace(result + " " + truncate(ev.Error, 40))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.Timestamp.In(cfg.Location()).Format("15:04:05"),
			ev.Type, ev.Action, ev.Actor, shortID(ev.TaskID), shortID(ev.UserID), result)
	}
	_ = w.Flush()
	return nil
}

func runHistoryReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	date, err := dayArg(args, cfg.Location())
	if err != nil {
		return err
	}

	w := reporting.NewWriter(cfg.Reports.Dir, "")
	results, err := w.LoadDay(date)
	if err != nil {
		return err
	}
	fmt.Print(reporting.Summarize(date, results).Content)
	return nil
}
