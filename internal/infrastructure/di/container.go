package di

import (
	"fmt"
	"io"

	"github.com/samber/do"

	"github.com/meetai/greenrt/internal/infrastructure/config"
	"github.com/meetai/greenrt/internal/infrastructure/di/providers"
	"github.com/meetai/greenrt/internal/modules/runtime"
)

// Container wraps the do.Injector with additional functionality
type Container struct {
	*do.Injector
}

// NewContainer creates a container for the project at projectRoot. Logs go
// to logOutput.
func NewContainer(projectRoot string, logOutput io.Writer) *Container {
	container := &Container{
		Injector: do.New(),
	}

	do.ProvideNamedValue(container.Injector, providers.ProjectRootName, projectRoot)
	do.ProvideNamedValue(container.Injector, providers.LogOutputName, logOutput)

	// Register all service providers
	providers.ProvideRuntimeServices(container.Injector)

	return container
}

// ListServices returns the names of the registered services
func (c *Container) ListServices() []string {
	return c.Injector.ListProvidedServices()
}

// Validate resolves the configuration and the runtime module so that a
// broken greenrt.toml is reported before any work starts.
func (c *Container) Validate() error {
	if c.Injector == nil {
		return fmt.Errorf("container is not initialized")
	}
	if _, err := do.Invoke[*config.RuntimeConfig](c.Injector); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	m, err := c.RuntimeModule()
	if err != nil {
		return err
	}
	return m.Validate()
}

// Config returns the loaded configuration.
func (c *Container) Config() (*config.RuntimeConfig, error) {
	return do.Invoke[*config.RuntimeConfig](c.Injector)
}

// RuntimeModule gets the runtime module from the container
func (c *Container) RuntimeModule() (*runtime.Module, error) {
	m, err := do.Invoke[*runtime.Module](c.Injector)
	if err != nil {
		return nil, fmt.Errorf("failed to get runtime module: %w", err)
	}
	return m, nil
}

// Shutdown shuts down every invoked service that implements do.Shutdownable
func (c *Container) Shutdown() error {
	return c.Injector.Shutdown()
}
