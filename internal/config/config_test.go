package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/taskrota/internal/assign"
	"github.com/marcus/taskrota/internal/scheduler"
)

func TestValidate_InvalidStrategy(t *testing.T) {
	cfg := &Config{AutoAssign: AutoAssignConfig{Strategy: "random"}}
	if err := Validate(cfg); err != ErrInvalidStrategy {
		t.Errorf("expected ErrInvalidStrategy, got %v", err)
	}
}

func TestValidate_InvalidScheduleTime(t *testing.T) {
	cfg := &Config{Schedule: ScheduleConfig{Time: "25:00"}}
	if err := Validate(cfg); !errors.Is(err, scheduler.ErrInvalidScheduleTime) {
		t.Errorf("expected ErrInvalidScheduleTime, got %v", err)
	}
}

func TestValidate_InvalidTickInterval(t *testing.T) {
	for _, d := range []time.Duration{time.Millisecond, 5 * time.Minute} {
		cfg := &Config{Schedule: ScheduleConfig{TickInterval: d}}
		if err := Validate(cfg); err != ErrInvalidTickInterval {
			t.Errorf("tick %v: expected ErrInvalidTickInterval, got %v", d, err)
		}
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg := &Config{Timezone: "Mars/Olympus"}
	if err := Validate(cfg); !errors.Is(err, ErrInvalidTimezone) {
		t.Errorf("expected ErrInvalidTimezone, got %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "verbose"}}
	if err := Validate(cfg); err != ErrInvalidLogLevel {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Format: "xml"}}
	if err := Validate(cfg); err != ErrInvalidLogFormat {
		t.Errorf("expected ErrInvalidLogFormat, got %v", err)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		Timezone:   "UTC",
		AutoAssign: AutoAssignConfig{Strategy: "load-balance"},
		Schedule:   ScheduleConfig{Time: "07:30", TickInterval: 30 * time.Second},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}
	for _, tc := range tests {
		result := expandPath(tc.input)
		if result != tc.expected {
			t.Errorf("expandPath(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}

func TestLoadFromPaths_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	tmpDir := t.TempDir()

	cfg, err := LoadFromPaths(tmpDir, filepath.Join(tmpDir, "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}

	if cfg.AutoAssign.Strategy != DefaultStrategy {
		t.Errorf("AutoAssign.Strategy = %q, want %q", cfg.AutoAssign.Strategy, DefaultStrategy)
	}
	if !cfg.AutoAssign.IncludeUnassigned || !cfg.AutoAssign.AssignToAllUsers || !cfg.AutoAssign.SkipExisting {
		t.Errorf("AutoAssign flags = %+v, want all true", cfg.AutoAssign)
	}
	if cfg.Schedule.Enabled || cfg.Schedule.Time != DefaultScheduleTime || cfg.Schedule.TickInterval != DefaultTickInterval {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.RetentionDays != DefaultRetentionDays {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.DBPath != filepath.Join(home, ".local", "share", "taskrota", "taskrota.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if !cfg.Reports.Enabled {
		t.Error("Reports.Enabled = false, want true")
	}
	if !cfg.Audit.Enabled || cfg.Audit.Dir != filepath.Join(home, ".local", "share", "taskrota", "audit") {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if cfg.ConfigFileUsed() != "" {
		t.Errorf("ConfigFileUsed() = %q, want empty", cfg.ConfigFileUsed())
	}
	if cfg.Location() != time.Local {
		t.Errorf("Location() = %v, want Local", cfg.Location())
	}
}

func TestLoadFromPaths_WithYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	configContent := `
timezone: UTC
auto_assign:
  strategy: round-robin
  include_unassigned: false
schedule:
  enabled: true
  time: "7:05"
  tick_interval: 30s
logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPaths(tmpDir, filepath.Join(tmpDir, "nonexistent", "global.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}

	if cfg.AutoAssign.Strategy != "round-robin" || cfg.AutoAssign.IncludeUnassigned {
		t.Errorf("AutoAssign = %+v", cfg.AutoAssign)
	}
	if !cfg.AutoAssign.SkipExisting {
		t.Error("unset key lost its default")
	}
	if cfg.Schedule.TickInterval != 30*time.Second {
		t.Errorf("TickInterval = %v, want 30s", cfg.Schedule.TickInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("Location() = %v, want UTC", cfg.Location())
	}
	if cfg.ConfigFileUsed() != configPath {
		t.Errorf("ConfigFileUsed() = %q, want %q", cfg.ConfigFileUsed(), configPath)
	}

	seed := cfg.ScheduleSeed()
	if seed != (scheduler.ScheduleConfig{Enabled: true, TimeOfDay: "07:05"}) {
		t.Errorf("ScheduleSeed() = %+v", seed)
	}
	if got := cfg.AssignSeed(); got != (assign.Config{Strategy: assign.StrategyRoundRobin, AssignToAllUsers: true, SkipExisting: true}) {
		t.Errorf("AssignSeed() = %+v", got)
	}
}

func TestLoadFromPaths_MergeConfigs(t *testing.T) {
	tmpDir := t.TempDir()

	globalDir := filepath.Join(tmpDir, "global")
	if err := os.MkdirAll(globalDir, 0755); err != nil {
		t.Fatal(err)
	}
	globalConfig := filepath.Join(globalDir, ConfigFileName)
	globalContent := `
auto_assign:
  strategy: load-balance
logging:
  level: info
  format: text
`
	if err := os.WriteFile(globalConfig, []byte(globalContent), 0644); err != nil {
		t.Fatal(err)
	}

	localDir := filepath.Join(tmpDir, "local")
	if err := os.MkdirAll(localDir, 0755); err != nil {
		t.Fatal(err)
	}
	localContent := `
logging:
  level: debug
`
	if err := os.WriteFile(filepath.Join(localDir, ConfigFileName), []byte(localContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPaths(localDir, globalConfig)
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug (local override)", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" || cfg.AutoAssign.Strategy != "load-balance" {
		t.Errorf("global values lost: %+v / %+v", cfg.Logging, cfg.AutoAssign)
	}
}

func TestLoadFromPaths_EnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte("auto_assign:\n  strategy: round-robin\nschedule:\n  time: \"08:00\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TASKROTA_AUTO_ASSIGN_STRATEGY", "load-balance")
	t.Setenv("TASKROTA_SCHEDULE_TICK_INTERVAL", "15s")

	cfg, err := LoadFromPaths(tmpDir, "")
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}
	if cfg.AutoAssign.Strategy != "load-balance" {
		t.Errorf("Strategy = %q, want load-balance (env override)", cfg.AutoAssign.Strategy)
	}
	if cfg.Schedule.TickInterval != 15*time.Second {
		t.Errorf("TickInterval = %v, want 15s", cfg.Schedule.TickInterval)
	}
	if cfg.Schedule.Time != "08:00" {
		t.Errorf("Schedule.Time = %q, want 08:00 (from file)", cfg.Schedule.Time)
	}
}

func TestLoadFromPaths_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("logging:\n  level: loud\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromPaths(tmpDir, ""); err != ErrInvalidLogLevel {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}
}

func TestDefaultGlobalPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultGlobalPath(); got != filepath.Join("/xdg", "taskrota", ConfigFileName) {
		t.Errorf("DefaultGlobalPath() = %q", got)
	}

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", home)
	if got := DefaultGlobalPath(); got != filepath.Join(home, ".config", "taskrota", ConfigFileName) {
		t.Errorf("DefaultGlobalPath() = %q", got)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte("logging:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPaths(tmpDir, "")
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}

	reloaded := make(chan *Config, 4)
	if !cfg.Watch(func(next *Config, err error) {
		if err == nil {
			reloaded <- next
		}
	}) {
		t.Fatal("Watch() = false with a config file loaded")
	}

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(configPath, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case next := <-reloaded:
		if next.Logging.Level != "warn" {
			t.Errorf("reloaded level = %q, want warn", next.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func TestWatchWithoutFile(t *testing.T) {
	cfg, err := LoadFromPaths(t.TempDir(), "")
	if err != nil {
		t.Fatalf("LoadFromPaths error: %v", err)
	}
	if cfg.Watch(func(*Config, error) {}) {
		t.Error("Watch() = true without a config file")
	}
}
