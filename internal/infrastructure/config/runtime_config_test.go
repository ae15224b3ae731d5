package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

func TestLoadConfig_NotExists(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() err = %v", err)
	}
	if cfg.Scheduler.MaxThreads != scheduler.DefaultMaxThreads {
		t.Errorf("MaxThreads = %d, want %d", cfg.Scheduler.MaxThreads, scheduler.DefaultMaxThreads)
	}
	if cfg.Scheduler.StackSize != scheduler.DefaultStackSize {
		t.Errorf("StackSize = %d, want %d", cfg.Scheduler.StackSize, scheduler.DefaultStackSize)
	}
	if d, _ := cfg.Scheduler.Interval(); d != scheduler.DefaultTimerInterval {
		t.Errorf("Interval() = %s, want %s", d, scheduler.DefaultTimerInterval)
	}
}

func TestSaveConfig_LoadConfig_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	cfg := Default()
	cfg.Scheduler.MaxThreads = 8
	cfg.Scheduler.TimerInterval = "5ms"
	cfg.Log.Format = "json"
	if err := SaveConfig(dir, cfg); err != nil {
		t.Fatalf("SaveConfig() err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Fatalf("%s was not created: %v", FileName, err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() err = %v", err)
	}
	if loaded.Scheduler.MaxThreads != 8 {
		t.Errorf("MaxThreads = %d, want 8", loaded.Scheduler.MaxThreads)
	}
	if loaded.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", loaded.Log.Format)
	}
	opts, err := loaded.SchedulerOptions()
	if err != nil {
		t.Fatalf("SchedulerOptions() err = %v", err)
	}
	if opts.TimerInterval != 5*time.Millisecond {
		t.Errorf("TimerInterval = %s, want 5ms", opts.TimerInterval)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	content := "schema_version = \"1.2.0\"\n\n[scheduler]\nmax_threads = 4\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() err = %v", err)
	}
	if cfg.Scheduler.MaxThreads != 4 {
		t.Errorf("MaxThreads = %d, want 4", cfg.Scheduler.MaxThreads)
	}
	if cfg.Scheduler.StackSize != scheduler.DefaultStackSize {
		t.Errorf("StackSize = %d, want default", cfg.Scheduler.StackSize)
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[scheduler\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(dir); err == nil {
		t.Error("LoadConfig() err = nil, want parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *RuntimeConfig)
		ok     bool
	}{
		{"defaults", func(c *RuntimeConfig) {}, true},
		{"version without v", func(c *RuntimeConfig) { c.SchemaVersion = "1.3.0" }, true},
		{"timer off", func(c *RuntimeConfig) { c.Scheduler.TimerInterval = "off" }, true},
		{"bad version", func(c *RuntimeConfig) { c.SchemaVersion = "one" }, false},
		{"major 2", func(c *RuntimeConfig) { c.SchemaVersion = "v2.0.0" }, false},
		{"zero threads", func(c *RuntimeConfig) { c.Scheduler.MaxThreads = 0 }, false},
		{"negative stack", func(c *RuntimeConfig) { c.Scheduler.StackSize = -1 }, false},
		{"bad interval", func(c *RuntimeConfig) { c.Scheduler.TimerInterval = "soon" }, false},
		{"zero interval", func(c *RuntimeConfig) { c.Scheduler.TimerInterval = "0s" }, false},
		{"bad format", func(c *RuntimeConfig) { c.Log.Format = "xml" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() err = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestGetProjectRoot(t *testing.T) {
	root := t.TempDir()
	if err := SaveConfig(root, Default()); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	got, err := GetProjectRoot(nested)
	if err != nil {
		t.Fatalf("GetProjectRoot() err = %v", err)
	}
	want, _ := filepath.Abs(root)
	if got != want {
		t.Errorf("GetProjectRoot() = %q, want %q", got, want)
	}

	if _, err := GetProjectRoot(t.TempDir()); err == nil || !strings.Contains(err.Error(), FileName) {
		t.Errorf("GetProjectRoot() without config err = %v", err)
	}
}
