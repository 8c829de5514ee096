package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marcus/taskrota/internal/assign"
	"github.com/marcus/taskrota/internal/state"
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Run and configure daily auto-assignment",
}

var assignRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily assignment batch now",
	Long: `Create today's daily tasks from the catalog and hand them out to every
eligible user using the saved auto-assign settings.

Flags override the saved settings for this run only. When tasks already
exist for today and --skip-existing is on, you are asked to confirm unless
--yes is given or the session is not interactive.

Examples:
  taskrota assign run
  taskrota assign run --strategy round-robin --yes
  taskrota assign run --dry-run`,
	RunE: runAssignRun,
}

var assignConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the saved auto-assign settings",
}

var assignConfigShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved auto-assign settings",
	RunE:  runAssignConfigShow,
}

var assignConfigSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the saved auto-assign settings",
	Long: `Change the saved auto-assign settings. Only the flags you pass are
changed. The scheduled batch uses these settings.

Example:
  taskrota assign config set --strategy load-balance --include-unassigned=false`,
	RunE: runAssignConfigSet,
}

func init() {
	addAssignConfigFlags(assignRunCmd.Flags())
	assignRunCmd.Flags().Bool("dry-run", false, "Show what would be created without writing")
	assignRunCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	assignRunCmd.Flags().Bool("json", false, "Output as JSON")

	addAssignConfigFlags(assignConfigSetCmd.Flags())
	assignConfigShowCmd.Flags().Bool("json", false, "Output as JSON")

	assignConfigCmd.AddCommand(assignConfigShowCmd)
	assignConfigCmd.AddCommand(assignConfigSetCmd)
	assignCmd.AddCommand(assignRunCmd)
	assignCmd.AddCommand(assignConfigCmd)
	rootCmd.AddCommand(assignCmd)
}

func addAssignConfigFlags(fs *pflag.FlagSet) {
	fs.String("strategy", "", "Assignment strategy (distribute, round-robin, load-balance)")
	fs.Bool("include-unassigned", false, "Also create one unassigned copy of each template")
	fs.Bool("all-users", false, "Consider every eligible user")
	fs.Bool("skip-existing", false, "Skip tasks that already exist for today")
}

// applyAssignFlags overlays the flags that were set on cfg.
func applyAssignFlags(fs *pflag.FlagSet, cfg assign.Config) (assign.Config, error) {
	if fs.Changed("strategy") {
		name, _ := fs.GetString("strategy")
		strategy, err := assign.ParseStrategy(name)
		if err != nil {
			return cfg, err
		}
		cfg.Strategy = strategy
	}
	if fs.Changed("include-unassigned") {
		cfg.IncludeUnassigned, _ = fs.GetBool("include-unassigned")
	}
	if fs.Changed("all-users") {
		cfg.AssignToAllUsers, _ = fs.GetBool("all-users")
	}
	if fs.Changed("skip-existing") {
		cfg.SkipExisting, _ = fs.GetBool("skip-existing")
	}
	return cfg, cfg.Validate()
}

// batchOutput is the JSON shape of a finished batch.
type batchOutput struct {
	assign.Result
	Errors []string `json:"errors,omitempty"`
	Report string   `json:"report,omitempty"`
}

func runAssignRun(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	yes, _ := cmd.Flags().GetBool("yes")
	asJSON, _ := cmd.Flags().GetBool("json")

	live := newLiveRenderer(os.Stdout, nil)
	var opts []assign.Option
	if !asJSON {
		opts = append(opts, assign.WithEventHandler(live.HandleEvent))
	}
	rt, err := openRuntime(cmd, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	cfg, err := applyAssignFlags(cmd.Flags(), rt.state.AutoAssign())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\ninterrupt received, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	names := rt.userNames(ctx)
	live.names = names

	if dryRun || (cfg.SkipExisting && !yes && !asJSON) {
		plan, err := rt.engine.Preview(ctx, cfg)
		if err != nil {
			return err
		}
		if dryRun {
			if asJSON {
				return printJSON(plan)
			}
			printPlan(os.Stdout, plan, names)
			return nil
		}
		if plan.NeedsConfirmation {
			msg := fmt.Sprintf("%d daily task(s) already exist for today. Duplicates will be skipped. Continue?", plan.ExistingToday)
			ok, err := confirm(os.Stdin, msg)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}
	}

	runner := rt.runner(state.SourceManual)
	res, runErr := runner.RunDailyAutoAssign(ctx, cfg)

	if asJSON {
		out := batchOutput{Result: res, Report: runner.reportPath}
		for _, f := range res.Failures {
			out.Errors = append(out.Errors, f.Error())
		}
		if runErr != nil {
			out.Errors = append(out.Errors, runErr.Error())
		}
		if err := printJSON(out); err != nil {
			return err
		}
		return runErr
	}

	if runErr != nil && res.StartedAt.IsZero() {
		return runErr
	}
	printResult(os.Stdout, res, runner.reportPath)
	return runErr
}

func runAssignConfigShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	cfg := rt.state.AutoAssign()
	if asJSON {
		return printJSON(cfg)
	}
	printAssignConfig(cfg)
	return nil
}

func runAssignConfigSet(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	cfg, err := applyAssignFlags(cmd.Flags(), rt.state.AutoAssign())
	if err != nil {
		return err
	}
	if err := rt.state.SaveAutoAssign(cfg); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	rt.logAudit(rt.audit.LogAutoAssignChange(cfg))
	printAssignConfig(cfg)
	return nil
}

func printAssignConfig(cfg assign.Config) {
	s := newStyles()
	fmt.Println(s.Title.Render("Auto-assign settings"))
	s.kv(os.Stdout, "Strategy", cfg.Strategy)
	s.kv(os.Stdout, "Unassigned copy", cfg.IncludeUnassigned)
	s.kv(os.Stdout, "All users", cfg.AssignToAllUsers)
	s.kv(os.Stdout, "Skip existing", cfg.SkipExisting)
}
