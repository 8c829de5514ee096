package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcus/taskrota/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the daily assignment schedule",
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the schedule",
	RunE:  runScheduleShow,
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the schedule",
	Long: `Change the time of day of the daily batch or turn it on and off.

Examples:
  taskrota schedule set --time 08:30 --enable
  taskrota schedule set --disable`,
	RunE: runScheduleSet,
}

var scheduleCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the schedule once and run the batch if it is due",
	Long: `Perform a single schedule check, the same one the daemon performs on
every wake. The batch runs only if the schedule is enabled, the current time
is within a minute of the scheduled time and it has not run today.`,
	RunE: runScheduleCheck,
}

func init() {
	scheduleShowCmd.Flags().Bool("json", false, "Output as JSON")
	scheduleSetCmd.Flags().String("time", "", "Time of day (HH:MM, 24h)")
	scheduleSetCmd.Flags().Bool("enable", false, "Enable the daily batch")
	scheduleSetCmd.Flags().Bool("disable", false, "Disable the daily batch")
	scheduleSetCmd.MarkFlagsMutuallyExclusive("enable", "disable")

	scheduleCmd.AddCommand(scheduleShowCmd)
	scheduleCmd.AddCommand(scheduleSetCmd)
	scheduleCmd.AddCommand(scheduleCheckCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	cfg := rt.trigger(nil).GetScheduleConfig()
	if asJSON {
		return printJSON(cfg)
	}
	printSchedule(cfg, rt.cfg.Location().String())
	return nil
}

func runScheduleSet(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	trig := rt.trigger(nil)
	cfg := trig.GetScheduleConfig()
	if cmd.Flags().Changed("time") {
		cfg.TimeOfDay, _ = cmd.Flags().GetString("time")
	}
	if enable, _ := cmd.Flags().GetBool("enable"); enable {
		cfg.Enabled = true
	}
	if disable, _ := cmd.Flags().GetBool("disable"); disable {
		cfg.Enabled = false
	}
	if err := trig.SetScheduleConfig(cfg); err != nil {
		return err
	}
	rt.logAudit(rt.audit.LogScheduleChange(trig.GetScheduleConfig()))
	printSchedule(trig.GetScheduleConfig(), rt.cfg.Location().String())
	if running, _ := isDaemonRunning(); !running && cfg.Enabled {
		fmt.Println(newStyles().Warn.Render("\nThe daemon is not running. Start it with 'taskrota daemon start'."))
	}
	return nil
}

func runScheduleCheck(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	out, err := rt.trigger(nil).Tick(cmd.Context())
	s := newStyles()
	fmt.Printf("%s %s (%s)\n", s.Label.Render("Schedule state:"), s.Accent.Render(out.State.String()), out.Date)
	if out.Ran {
		printResult(os.Stdout, out.Result, "")
	}
	return err
}

func printSchedule(cfg scheduler.ScheduleConfig, tz string) {
	s := newStyles()
	fmt.Println(s.Title.Render("Daily schedule"))
	status := s.Muted.Render("disabled")
	if cfg.Enabled {
		status = s.Success.Render("enabled")
	}
	s.kv(os.Stdout, "Status", status)
	s.kv(os.Stdout, "Time", cfg.TimeOfDay+" "+tz)
	last := cfg.LastRunDate
	if last == "" {
		last = "never"
	}
	s.kv(os.Stdout, "Last run", last)
}
