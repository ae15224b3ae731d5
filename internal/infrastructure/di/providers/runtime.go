package providers

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/samber/do"

	"github.com/meetai/greenrt/internal/infrastructure/config"
	"github.com/meetai/greenrt/internal/infrastructure/logging"
	"github.com/meetai/greenrt/internal/modules/runtime"
	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

// Names of the values the caller provides before ProvideRuntimeServices.
const (
	ProjectRootName = "project.root"
	LogOutputName   = "log.output"
)

// ProvideRuntimeServices registers configuration, logging, scheduler options
// and the runtime module with the DI container. The project root and the log
// writer must be provided as named values first.
func ProvideRuntimeServices(container *do.Injector) {
	// Configuration
	do.Provide(container, func(i *do.Injector) (*config.RuntimeConfig, error) {
		root, err := do.InvokeNamed[string](i, ProjectRootName)
		if err != nil {
			return nil, err
		}
		return config.LoadConfig(root)
	})

	// Logging
	do.Provide(container, func(i *do.Injector) (*slog.Logger, error) {
		cfg := do.MustInvoke[*config.RuntimeConfig](i)
		w, err := do.InvokeNamed[io.Writer](i, LogOutputName)
		if err != nil {
			return nil, err
		}
		return logging.New(w, cfg.Log)
	})

	// Scheduler options shared by every run
	do.Provide(container, func(i *do.Injector) (scheduler.Options, error) {
		cfg := do.MustInvoke[*config.RuntimeConfig](i)
		opts, err := cfg.SchedulerOptions()
		if err != nil {
			return scheduler.Options{}, fmt.Errorf("failed to build scheduler options: %w", err)
		}
		opts.Logger = do.MustInvoke[*slog.Logger](i)
		return opts, nil
	})

	// Module
	do.Provide(container, runtime.NewModule)
}
