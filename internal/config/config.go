// Package config handles loading and validating taskrota configuration.
// Supports YAML config files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/marcus/taskrota/internal/assign"
	"github.com/marcus/taskrota/internal/logging"
	"github.com/marcus/taskrota/internal/scheduler"
)

// ConfigFileName is the file looked up in the global and local directories.
const ConfigFileName = "taskrota.yaml"

// Defaults.
const (
	DefaultStrategy      = "distribute"
	DefaultScheduleTime  = "09:00"
	DefaultTickInterval  = 60 * time.Second
	DefaultTimezone      = "Local"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultRetentionDays = 7
)

// reloadDelay coalesces bursts of file events into one reload.
const reloadDelay = 250 * time.Millisecond

var (
	ErrInvalidStrategy     = errors.New("invalid auto_assign.strategy (use distribute, round-robin, load-balance)")
	ErrInvalidLogLevel     = errors.New("invalid logging.level (use debug, info, warn, error)")
	ErrInvalidLogFormat    = errors.New("invalid logging.format (use json, text)")
	ErrInvalidTimezone     = errors.New("invalid timezone")
	ErrInvalidTickInterval = errors.New("schedule.tick_interval must be between 1s and 1m")
)

// Config holds all taskrota configuration.
type Config struct {
	DBPath      string           `mapstructure:"db_path"`
	CatalogPath string           `mapstructure:"catalog_path"` // empty: built-in catalog
	Timezone    string           `mapstructure:"timezone"`
	AutoAssign  AutoAssignConfig `mapstructure:"auto_assign"`
	Schedule    ScheduleConfig   `mapstructure:"schedule"`
	Reports     ReportsConfig    `mapstructure:"reports"`
	Audit       AuditConfig      `mapstructure:"audit"`
	Logging     LoggingConfig    `mapstructure:"logging"`

	v          *viper.Viper
	localDir   string
	globalPath string
}

// AutoAssignConfig seeds the persisted auto-assign settings on first use.
type AutoAssignConfig struct {
	Strategy          string `mapstructure:"strategy"`
	IncludeUnassigned bool   `mapstructure:"include_unassigned"`
	AssignToAllUsers  bool   `mapstructure:"assign_to_all_users"`
	SkipExisting      bool   `mapstructure:"skip_existing"`
}

// ScheduleConfig seeds the persisted schedule on first use. TickInterval is
// always read from the file.
type ScheduleConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Time         string        `mapstructure:"time"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// ReportsConfig controls per-batch report files.
type ReportsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// AuditConfig controls the append-only change log.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig controls the log output.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// DefaultGlobalPath returns $XDG_CONFIG_HOME/taskrota/taskrota.yaml, falling
// back to ~/.config/taskrota/taskrota.yaml.
func DefaultGlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskrota", ConfigFileName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "taskrota", ConfigFileName)
}

// Load reads the global config and a taskrota.yaml in the working directory.
func Load() (*Config, error) {
	return LoadFromPaths(".", DefaultGlobalPath())
}

// LoadFromPaths reads globalPath, then merges localDir/taskrota.yaml over it.
// Missing files are skipped. TASKROTA_* environment variables override both.
func LoadFromPaths(localDir, globalPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKROTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if globalPath != "" && fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", globalPath, err)
		}
	}
	if localDir != "" {
		local := filepath.Join(localDir, ConfigFileName)
		if fileExists(local) {
			v.SetConfigFile(local)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("reading %s: %w", local, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.v = v
	cfg.localDir = localDir
	cfg.globalPath = globalPath

	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.CatalogPath = expandPath(cfg.CatalogPath)
	cfg.Reports.Dir = expandPath(cfg.Reports.Dir)
	cfg.Audit.Dir = expandPath(cfg.Audit.Dir)
	cfg.Logging.Path = expandPath(cfg.Logging.Path)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "taskrota")

	v.SetDefault("db_path", filepath.Join(dataDir, "taskrota.db"))
	v.SetDefault("catalog_path", "")
	v.SetDefault("timezone", DefaultTimezone)

	v.SetDefault("auto_assign.strategy", DefaultStrategy)
	v.SetDefault("auto_assign.include_unassigned", true)
	v.SetDefault("auto_assign.assign_to_all_users", true)
	v.SetDefault("auto_assign.skip_existing", true)

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.time", DefaultScheduleTime)
	v.SetDefault("schedule.tick_interval", DefaultTickInterval)

	v.SetDefault("reports.enabled", true)
	v.SetDefault("reports.dir", filepath.Join(dataDir, "reports"))

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", filepath.Join(dataDir, "audit"))

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.path", filepath.Join(dataDir, "logs"))
	v.SetDefault("logging.retention_days", DefaultRetentionDays)
}

// Validate checks cfg for invalid values.
func Validate(cfg *Config) error {
	if cfg.AutoAssign.Strategy != "" {
		if _, err := assign.ParseStrategy(cfg.AutoAssign.Strategy); err != nil {
			return ErrInvalidStrategy
		}
	}
	if cfg.Schedule.Time != "" {
		if _, err := scheduler.ParseTimeOfDay(cfg.Schedule.Time); err != nil {
			return err
		}
	}
	if d := cfg.Schedule.TickInterval; d != 0 && (d < time.Second || d > time.Minute) {
		return ErrInvalidTickInterval
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTimezone, cfg.Timezone)
		}
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return ErrInvalidLogFormat
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == DefaultTimezone {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AssignSeed returns the auto-assign settings used for a fresh database.
func (c *Config) AssignSeed() assign.Config {
	strategy := assign.Strategy(c.AutoAssign.Strategy)
	if strategy == "" {
		strategy = assign.StrategyDistribute
	}
	return assign.Config{
		Strategy:          strategy,
		IncludeUnassigned: c.AutoAssign.IncludeUnassigned,
		AssignToAllUsers:  c.AutoAssign.AssignToAllUsers,
		SkipExisting:      c.AutoAssign.SkipExisting,
	}
}

// ScheduleSeed returns the schedule used for a fresh database.
func (c *Config) ScheduleSeed() scheduler.ScheduleConfig {
	cfg := scheduler.ScheduleConfig{Enabled: c.Schedule.Enabled, TimeOfDay: c.Schedule.Time}
	if tod, err := scheduler.ParseTimeOfDay(c.Schedule.Time); err == nil {
		cfg.TimeOfDay = tod.String()
	} else {
		cfg.TimeOfDay = DefaultScheduleTime
	}
	return cfg
}

// LogConfig converts the logging section for logging.Init.
func (c *Config) LogConfig() logging.Config {
	return logging.Config{
		Level:         c.Logging.Level,
		Format:        c.Logging.Format,
		Path:          c.Logging.Path,
		RetentionDays: c.Logging.RetentionDays,
	}
}

// ConfigFileUsed returns the last config file read, or "".
func (c *Config) ConfigFileUsed() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch reloads the configuration when the file in use changes and passes
// the result to fn. It reports false when no file was loaded.
func (c *Config) Watch(fn func(*Config, error)) bool {
	if c.ConfigFileUsed() == "" {
		return false
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) && !e.Has(fsnotify.Rename) {
			return
		}
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDelay, func() {
			fn(LoadFromPaths(c.localDir, c.globalPath))
		})
	})
	c.v.WatchConfig()
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
