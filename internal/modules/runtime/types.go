package runtime

import (
	"time"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

// Scenario names accepted by RunScenario.
const (
	ScenarioCounter   = "counter"
	ScenarioFIFO      = "fifo"
	ScenarioSemaphore = "semaphore"
	ScenarioBarrier   = "barrier"
	ScenarioExhaust   = "exhaust"
	ScenarioFairness  = "fairness"
)

// RunScenarioCommand selects a scenario and sizes it. Zero fields take the
// scenario's defaults.
type RunScenarioCommand struct {
	Scenario   string
	Threads    int
	Iterations int
}

// ScenarioResult reports what a scenario observed.
type ScenarioResult struct {
	// RunID identifies the run in log records.
	RunID    string
	Scenario string
	Passed   bool
	// Details are human readable observations, one per line.
	Details  []string
	Stats    scheduler.Stats
	Duration time.Duration
}

// ScenarioInfo describes a scenario for listings.
type ScenarioInfo struct {
	Name        string
	Description string
	Threads     int
	Iterations  int
}
