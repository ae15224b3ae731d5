// Package config reads and writes greenrt.toml, the runtime's configuration
// file. A project without the file runs with the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/semver"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

// FileName is the configuration file looked up in a project root.
const FileName = "greenrt.toml"

// SchemaVersion is written into new files. Files of any v1.x schema are read.
const SchemaVersion = "v1.0.0"

var ErrInvalidConfig = errors.New("invalid configuration")

// RuntimeConfig is the content of greenrt.toml.
type RuntimeConfig struct {
	SchemaVersion string          `toml:"schema_version"`
	Scheduler     SchedulerConfig `toml:"scheduler"`
	Log           LogConfig       `toml:"log"`
}

// SchedulerConfig holds the constants fixed when a scheduler is constructed.
type SchedulerConfig struct {
	MaxThreads int `toml:"max_threads"`
	StackSize  int `toml:"stack_size"`
	// TimerInterval is a Go duration string such as "50ms". "off" disables
	// preemption.
	TimerInterval string `toml:"timer_interval"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Default returns the configuration used when greenrt.toml is absent.
func Default() *RuntimeConfig {
	return &RuntimeConfig{
		SchemaVersion: SchemaVersion,
		Scheduler: SchedulerConfig{
			MaxThreads:    scheduler.DefaultMaxThreads,
			StackSize:     scheduler.DefaultStackSize,
			TimerInterval: scheduler.DefaultTimerInterval.String(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads greenrt.toml from projectRoot. Fields missing from the
// file keep their defaults; a missing file yields Default().
func LoadConfig(projectRoot string) (*RuntimeConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(filepath.Join(projectRoot, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to projectRoot, creating the directory if needed.
func SaveConfig(projectRoot string, cfg *RuntimeConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(projectRoot, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(projectRoot, FileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetProjectRoot walks up from startDir to the first directory holding
// greenrt.toml.
func GetProjectRoot(startDir string) (string, error) {
	current, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", startDir, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(current, FileName)); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", fmt.Errorf("project root not found (no %s found)", FileName)
}

// Validate checks the schema version and every scheduler constant.
func (c *RuntimeConfig) Validate() error {
	v := c.SchemaVersion
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: schema_version %q is not a semantic version", ErrInvalidConfig, c.SchemaVersion)
	}
	if semver.Major(v) != semver.Major(SchemaVersion) {
		return fmt.Errorf("%w: schema_version %s is not supported (want %s.x)",
			ErrInvalidConfig, c.SchemaVersion, semver.Major(SchemaVersion))
	}
	if c.Scheduler.MaxThreads <= 0 {
		return fmt.Errorf("%w: max_threads must be positive, got %d", ErrInvalidConfig, c.Scheduler.MaxThreads)
	}
	if c.Scheduler.StackSize <= 0 {
		return fmt.Errorf("%w: stack_size must be positive, got %d", ErrInvalidConfig, c.Scheduler.StackSize)
	}
	if _, err := c.Scheduler.Interval(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Interval parses TimerInterval. "off" returns a negative duration, which
// disables the timer.
func (s SchedulerConfig) Interval() (time.Duration, error) {
	if strings.EqualFold(s.TimerInterval, "off") {
		return -1, nil
	}
	d, err := time.ParseDuration(s.TimerInterval)
	if err != nil {
		return 0, fmt.Errorf("%w: timer_interval: %v", ErrInvalidConfig, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: timer_interval must be positive, got %s", ErrInvalidConfig, d)
	}
	return d, nil
}

// SchedulerOptions converts the scheduler section into scheduler.Options. The
// logger, observers and terminate hook are left to the caller.
func (c *RuntimeConfig) SchedulerOptions() (scheduler.Options, error) {
	interval, err := c.Scheduler.Interval()
	if err != nil {
		return scheduler.Options{}, err
	}
	return scheduler.Options{
		MaxThreads:    c.Scheduler.MaxThreads,
		StackSize:     c.Scheduler.StackSize,
		TimerInterval: interval,
	}, nil
}
