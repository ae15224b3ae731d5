package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// runtimeService runs every scenario on its own scheduler, built from a copy
// of the configured options.
type runtimeService struct {
	opts scheduler.Options
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewRuntimeService creates the runtime application service.
func NewRuntimeService(opts scheduler.Options, log *slog.Logger) RuntimeService {
	if log == nil {
		log = slog.Default()
	}
	return &runtimeService{opts: opts, log: log.With("component", "runtime")}
}

// ListScenarios returns every scenario with its default sizes.
func (s *runtimeService) ListScenarios() []ScenarioInfo {
	infos := make([]ScenarioInfo, 0, len(scenarios))
	for _, sc := range scenarios {
		infos = append(infos, sc.info)
	}
	return infos
}

// RunScenario runs one scenario on a fresh scheduler whose thread 0 is a new
// goroutine. Every run gets a RunID that tags its log records. Cancelling ctx
// stops the scenario at its next check and makes RunScenario return without
// waiting for it.
//
// A panic in a worker thread ends that thread and fails the result. A broken
// scheduler invariant (deadlock, invalid wake) is not recoverable and still
// aborts the process.
func (s *runtimeService) RunScenario(ctx context.Context, cmd RunScenarioCommand) (*ScenarioResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("run scenario %s: %w", cmd.Scenario, scheduler.ErrClosed)
	}

	sc, ok := lookupScenario(cmd.Scenario)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, cmd.Scenario)
	}
	threads, iterations := cmd.Threads, cmd.Iterations
	if threads < 0 || iterations < 0 {
		return nil, fmt.Errorf("run scenario %s: %w: threads %d, iterations %d",
			sc.info.Name, scheduler.ErrInvalidArgument, threads, iterations)
	}
	if threads == 0 {
		threads = sc.info.Threads
	}
	if iterations == 0 {
		iterations = sc.info.Iterations
	}

	runID := uuid.New().String()
	log := s.log.With("run_id", runID)

	// Written by worker threads while they hold the baton, read by thread 0
	// after it has joined them.
	var panics []*scheduler.PanicError

	opts := s.opts
	opts.Logger = log
	opts.OnPanic = func(err *scheduler.PanicError) { panics = append(panics, err) }
	opts.OnTerminate = func() {}
	if sc.cooperative {
		opts.TimerInterval = -1
	}
	if sc.tableSize != nil {
		opts.MaxThreads = sc.tableSize(threads)
	} else if need := threads + 2; opts.MaxThreads < need {
		// thread 0, the workers and one spare
		opts.MaxThreads = need
	}
	sched, err := scheduler.New(opts)
	if err != nil {
		return nil, fmt.Errorf("run scenario %s: %w", sc.info.Name, err)
	}

	type outcome struct {
		report report
		stats  scheduler.Stats
		err    error
	}
	done := make(chan outcome, 1)
	started := time.Now()
	go func() {
		out := outcome{report: report{passed: true}}
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("scenario %s aborted: %v", sc.info.Name, r)
			}
			for _, p := range panics {
				out.report.check(false, "%v", p)
			}
			out.stats = sched.Stats()
			_ = sched.Shutdown()
			done <- out
		}()
		out.err = sc.run(ctx, sched, threads, iterations, &out.report)
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("run scenario %s: %w", sc.info.Name, ctx.Err())
	}

	res := &ScenarioResult{
		RunID:    runID,
		Scenario: sc.info.Name,
		Passed:   out.err == nil && out.report.passed,
		Details:  out.report.details,
		Stats:    out.stats,
		Duration: time.Since(started),
	}
	log.Info("scenario finished",
		"scenario", res.Scenario,
		"threads", threads,
		"iterations", iterations,
		"passed", res.Passed,
		"dispatches", res.Stats.Dispatches,
		"duration", res.Duration)
	if out.err != nil {
		return res, fmt.Errorf("run scenario %s: %w", sc.info.Name, out.err)
	}
	return res, nil
}

// Close rejects further runs.
func (s *runtimeService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
