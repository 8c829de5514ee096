package commands

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/taskrota/internal/stats"
	"github.com/marcus/taskrota/internal/tasks"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics",
	Long: `Display aggregate statistics from task and batch data.

Shows batch counts, task outcomes, estimate accuracy and per-user workload.
Use --json for machine-readable output.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().Bool("json", false, "Output as JSON")
	statsCmd.Flags().StringP("period", "p", "all", "Time period: all, last-7d, last-30d, today")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	periodFlag, _ := cmd.Flags().GetString("period")
	period, err := stats.ParsePeriod(periodFlag)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	result, err := stats.New(rt.store, rt.state, rt.roster).
		InLocation(rt.cfg.Location()).
		Compute(cmd.Context(), period)
	if err != nil {
		return fmt.Errorf("computing stats: %w", err)
	}

	if asJSON {
		return printJSON(result)
	}
	renderStats(os.Stdout, result)
	return nil
}

func renderStats(w io.Writer, result *stats.Result) {
	s := newStyles()
	_, _ = fmt.Fprintln(w, s.Title.Render(fmt.Sprintf("Taskrota Stats (%s)", result.Period)))
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, s.Accent.Render("Batches"))
	s.kv(w, "Total", fmt.Sprintf("%d (%d scheduled)", result.TotalRuns, result.ScheduledRuns))
	if result.TotalRuns > 0 {
		s.kv(w, "Outcomes", fmt.Sprintf("%d success, %d partial, %d failed",
			result.SuccessfulRuns, result.PartialRuns, result.FailedRuns))
		s.kv(w, "First batch", result.FirstRunAt.Format("Jan 2, 2006"))
		s.kv(w, "Last batch", result.LastRunAt.Format("Jan 2, 2006"))
		s.kv(w, "Avg duration", result.AvgRunDuration.String())
		s.kv(w, "Created", fmt.Sprintf("%d tasks, %d assigned", result.TasksCreated, result.TasksAssigned))
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, s.Accent.Render("Tasks"))
	s.kv(w, "Total", result.TotalTasks)
	if result.TotalTasks > 0 {
		s.kv(w, "Completed", fmt.Sprintf("%d (%.0f%%)", result.Completed, result.CompletionRate))
		s.kv(w, "In progress", result.InProgress)
		s.kv(w, "Pending", result.Pending)
		overdue := fmt.Sprint(result.Overdue)
		if result.Overdue > 0 {
			overdue = s.Warn.Render(overdue)
		}
		_, _ = fmt.Fprintf(w, "  %s %s\n", s.Label.Render(fmt.Sprintf("%-16s", "Overdue:")), overdue)
		s.kv(w, "Unassigned", result.Unassigned)
		if result.ActualMinutes > 0 {
			s.kv(w, "Estimates", fmt.Sprintf("%dm estimated vs %dm actual (%.0f%%)",
				result.EstimatedMinutes, result.ActualMinutes, result.EstimateAccuracy))
		}
		s.kv(w, "By category", categoryBreakdown(result.CategoryBreakdown))
	}

	if len(result.Users) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, s.Accent.Render("Workload"))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "  USER\tASSIGNED\tOPEN\tDONE\tOVERDUE\tEST\tACTUAL")
		for _, u := range result.Users {
			_, _ = fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%dm\t%dm\n",
				truncate(u.Name, 24), u.Assigned, u.Open, u.Completed, u.Overdue, u.EstimatedMinutes, u.ActualMinutes)
		}
		_ = tw.Flush()
	}
}

func categoryBreakdown(m map[tasks.Category]int) string {
	parts := make([]string, 0, len(m))
	for _, c := range tasks.Categories {
		if n := m[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", c, n))
		}
	}
	// categories outside the known set, if any were stored
	var extra []string
	for c, n := range m {
		switch c {
		case tasks.CategoryDaily, tasks.CategoryWeekly, tasks.CategoryMonthly:
		default:
			extra = append(extra, fmt.Sprintf("%s: %d", c, n))
		}
	}
	sort.Strings(extra)
	parts = append(parts, extra...)
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "  ")
}
