package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/taskrota/internal/config"
	"github.com/marcus/taskrota/internal/logging"
	"github.com/marcus/taskrota/internal/scheduler"
	"github.com/marcus/taskrota/internal/state"
	"github.com/marcus/taskrota/internal/tasks"
)

const (
	pidFileName = "taskrota.pid"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage background daemon",
	Long:  `Start, stop, or check status of the taskrota background daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start background daemon",
	Long: `Start the taskrota daemon as a background process.

The daemon wakes every schedule.tick_interval (and once right away) and runs
the daily batch when the saved schedule is due. Edits to the config file
reload the task catalog and the log level without a restart.`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop background daemon",
	Long:  `Stop the running taskrota daemon by sending SIGTERM.`,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Long:  `Check if the taskrota daemon is running and show the schedule it follows.`,
	RunE:  runDaemonStatus,
}

var daemonForegroundFlag bool

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForegroundFlag, "foreground", "f", false, "Run in foreground (don't daemonize)")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

// pidFilePath returns the path to the PID file.
func pidFilePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "taskrota", pidFileName)
}

// writePidFile writes the current process PID to the PID file.
func writePidFile() error {
	if err := os.MkdirAll(filepath.Dir(pidFilePath()), 0755); err != nil {
		return fmt.Errorf("creating pid dir: %w", err)
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

// readPidFile reads the PID from the PID file.
func readPidFile() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// removePidFile removes the PID file.
func removePidFile() error {
	return os.Remove(pidFilePath())
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; send signal 0 to check if alive
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// isDaemonRunning checks if the daemon is currently running.
func isDaemonRunning() (bool, int) {
	pid, err := readPidFile()
	if err != nil {
		return false, 0
	}
	return isProcessRunning(pid), pid
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if running, pid := isDaemonRunning(); running {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if daemonForegroundFlag {
		return runDaemonLoop(cfg)
	}

	// Daemonize: start a new process with --foreground flag
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("getting executable: %w", err)
	}

	child := exec.Command(executable, "daemon", "start", "--foreground")
	child.Stdout = nil
	child.Stderr = nil
	child.Stdin = nil
	// Detach from parent process group
	child.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	fmt.Printf("daemon started (pid %d)\n", child.Process.Pid)
	return nil
}

func runDaemonLoop(cfg *config.Config) error {
	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logging.Component("daemon")

	if err := writePidFile(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = removePidFile() }()

	log.Info("daemon starting")

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	if cfg.Watch(func(next *config.Config, err error) { applyReload(rt, next, err, log) }) {
		log.InfoCtx("watching config", map[string]any{"path": cfg.ConfigFileUsed()})
	}

	trig := rt.trigger(&reloadingStore{State: rt.state, log: log})
	if err := trig.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	sched := trig.GetScheduleConfig()
	log.InfoCtx("daemon running", map[string]any{
		"enabled":   sched.Enabled,
		"time":      sched.TimeOfDay,
		"next_wake": trig.NextWake().Format(time.RFC3339),
	})

	<-ctx.Done()

	if err := trig.Stop(); err != nil && err != scheduler.ErrNotRunning {
		log.Errorf("stopping scheduler: %v", err)
	}

	log.Info("daemon stopped")
	return nil
}

// applyReload installs the parts of a reloaded config that can change
// without a restart: the task catalog and the log level.
func applyReload(rt *runtime, next *config.Config, err error, log *logging.Logger) {
	if err != nil {
		log.Warnf("config reload rejected: %v", err)
		return
	}
	catalog, err := tasks.LoadCatalog(next.CatalogPath)
	if err != nil {
		log.Warnf("catalog reload rejected: %v", err)
	} else {
		rt.catalog.Swap(catalog)
		log.InfoCtx("catalog reloaded", map[string]any{"templates": catalog.Len()})
	}
	if err := logging.SetGlobalLevel(next.Logging.Level); err != nil {
		log.Warnf("log level reload rejected: %v", err)
	}
}

// reloadingStore re-reads the settings before each schedule check so that
// changes made by other taskrota processes reach the daemon.
type reloadingStore struct {
	*state.State
	log *logging.Logger
}

// Schedule implements scheduler.ConfigStore.
func (s *reloadingStore) Schedule() scheduler.ScheduleConfig {
	if err := s.Reload(); err != nil {
		s.log.Warnf("reload settings: %v", err)
	}
	return s.State.Schedule()
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	running, pid := isDaemonRunning()
	if !running {
		// Check if PID file exists but process is dead
		if _, err := readPidFile(); err == nil {
			_ = removePidFile()
			fmt.Println("daemon not running (stale pid file removed)")
			return nil
		}
		fmt.Println("daemon not running")
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM: %w", err)
	}

	fmt.Printf("stopping daemon (pid %d)...\n", pid)

	timeout := time.After(10 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-timeout:
			fmt.Println("daemon did not stop, sending SIGKILL")
			_ = process.Signal(syscall.SIGKILL)
			_ = removePidFile()
			return nil
		case <-tick.C:
			if !isProcessRunning(pid) {
				fmt.Println("daemon stopped")
				_ = removePidFile()
				return nil
			}
		}
	}
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	running, pid := isDaemonRunning()

	if !running {
		fmt.Println("Status: not running")
	} else {
		fmt.Printf("Status: running\n")
		fmt.Printf("PID: %d\n", pid)
	}

	rt, err := openRuntime(cmd)
	if err == nil {
		defer func() { _ = rt.Close() }()
		sched := rt.state.Schedule()
		if sched.Enabled {
			fmt.Printf("Schedule: daily at %s (%s)\n", sched.TimeOfDay, rt.cfg.Location())
		} else {
			fmt.Println("Schedule: disabled")
		}
		if sched.LastRunDate != "" {
			fmt.Printf("Last scheduled run: %s\n", sched.LastRunDate)
		}
		fmt.Printf("Check interval: %s\n", rt.cfg.Schedule.TickInterval)
	}

	fmt.Printf("PID file: %s\n", pidFilePath())
	return nil
}
