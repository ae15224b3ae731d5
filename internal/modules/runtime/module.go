// Package runtime wires the green-thread runtime into the application: it
// owns the scheduler options taken from configuration and runs the built-in
// scenarios that exercise the scheduler and the synchronization primitives.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

// Module represents the runtime module
type Module struct {
	// Ports - external interfaces
	runtimeService RuntimeService

	options scheduler.Options
	log     *slog.Logger
}

// RuntimeService defines the runtime operations offered to the CLI
type RuntimeService interface {
	RunScenario(ctx context.Context, cmd RunScenarioCommand) (*ScenarioResult, error)
	ListScenarios() []ScenarioInfo
	Close() error
}

// NewModule creates the runtime module from the DI container
func NewModule(i *do.Injector) (*Module, error) {
	opts, err := do.Invoke[scheduler.Options](i)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scheduler options: %w", err)
	}
	log, err := do.Invoke[*slog.Logger](i)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve logger: %w", err)
	}
	return &Module{
		runtimeService: NewRuntimeService(opts, log),
		options:        opts,
		log:            log,
	}, nil
}

// RuntimeService returns the runtime service interface
func (m *Module) RuntimeService() RuntimeService {
	return m.runtimeService
}

// Options returns the scheduler options every run starts from.
func (m *Module) Options() scheduler.Options {
	return m.options
}

// Validate validates the module configuration
func (m *Module) Validate() error {
	if m.runtimeService == nil {
		return fmt.Errorf("runtime service is not initialized")
	}
	if m.options.MaxThreads <= 0 || m.options.StackSize <= 0 {
		return fmt.Errorf("scheduler options are not initialized")
	}
	return nil
}

// Shutdown implements do.Shutdownable.
func (m *Module) Shutdown() error {
	m.log.Debug("runtime module shutting down")
	return m.runtimeService.Close()
}
