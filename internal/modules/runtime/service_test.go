package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() RuntimeService {
	return NewRuntimeService(scheduler.Options{
		MaxThreads:    8,
		StackSize:     4096,
		TimerInterval: time.Millisecond,
	}, discardLogger())
}

func TestRunScenario_AllPass(t *testing.T) {
	svc := newTestService()
	for _, info := range svc.ListScenarios() {
		t.Run(info.Name, func(t *testing.T) {
			cmd := RunScenarioCommand{Scenario: info.Name}
			if info.Name == ScenarioCounter {
				cmd.Iterations = 20000
			}
			res, err := svc.RunScenario(context.Background(), cmd)
			if err != nil {
				t.Fatalf("RunScenario(%s) err = %v", info.Name, err)
			}
			if !res.Passed {
				t.Errorf("RunScenario(%s) failed:\n%v", info.Name, res.Details)
			}
			if len(res.Details) == 0 {
				t.Error("result has no details")
			}
			if res.Stats.Dispatches == 0 {
				t.Error("no dispatch was recorded")
			}
		})
	}
}

func TestRunScenario_Sizes(t *testing.T) {
	svc := newTestService()
	tests := []RunScenarioCommand{
		{Scenario: ScenarioFIFO, Threads: 10},
		{Scenario: ScenarioBarrier, Threads: 7, Iterations: 3},
		{Scenario: ScenarioExhaust, Threads: 2},
		{Scenario: ScenarioFairness, Threads: 2, Iterations: 10},
		{Scenario: ScenarioSemaphore, Threads: 1},
	}
	for _, cmd := range tests {
		res, err := svc.RunScenario(context.Background(), cmd)
		if err != nil {
			t.Errorf("RunScenario(%+v) err = %v", cmd, err)
			continue
		}
		if !res.Passed {
			t.Errorf("RunScenario(%+v) failed:\n%v", cmd, res.Details)
		}
	}
}

func TestRunScenario_Errors(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name string
		cmd  RunScenarioCommand
		want error
	}{
		{"unknown", RunScenarioCommand{Scenario: "nope"}, ErrUnknownScenario},
		{"negative threads", RunScenarioCommand{Scenario: ScenarioFIFO, Threads: -1}, scheduler.ErrInvalidArgument},
		{"exhaust too small", RunScenarioCommand{Scenario: ScenarioExhaust, Threads: 1}, scheduler.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.RunScenario(context.Background(), tt.cmd); !errors.Is(err, tt.want) {
				t.Errorf("RunScenario() err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunScenario_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestService().RunScenario(ctx, RunScenarioCommand{Scenario: ScenarioFIFO}); !errors.Is(err, context.Canceled) {
		t.Errorf("RunScenario() err = %v, want context.Canceled", err)
	}
}

func TestRunScenario_AfterClose(t *testing.T) {
	svc := newTestService()
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}
	if _, err := svc.RunScenario(context.Background(), RunScenarioCommand{Scenario: ScenarioFIFO}); !errors.Is(err, scheduler.ErrClosed) {
		t.Errorf("RunScenario() after Close err = %v, want ErrClosed", err)
	}
}

func TestNewModule(t *testing.T) {
	i := do.New()
	do.ProvideValue(i, scheduler.DefaultOptions())
	do.ProvideValue(i, discardLogger())

	m, err := NewModule(i)
	if err != nil {
		t.Fatalf("NewModule() err = %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate() err = %v", err)
	}
	if got := m.Options().MaxThreads; got != scheduler.DefaultMaxThreads {
		t.Errorf("Options().MaxThreads = %d, want %d", got, scheduler.DefaultMaxThreads)
	}
	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() err = %v", err)
	}
	if _, err := m.RuntimeService().RunScenario(context.Background(), RunScenarioCommand{Scenario: ScenarioFIFO}); !errors.Is(err, scheduler.ErrClosed) {
		t.Errorf("RunScenario() after Shutdown err = %v, want ErrClosed", err)
	}
}

func TestNewModule_MissingDependencies(t *testing.T) {
	if _, err := NewModule(do.New()); err == nil {
		t.Error("NewModule() err = nil without providers")
	}
}

func TestRunScenario_RunIDTagsLogs(t *testing.T) {
	var logs bytes.Buffer
	svc := NewRuntimeService(scheduler.Options{TimerInterval: -1}, slog.New(slog.NewTextHandler(&logs, nil)))

	first, err := svc.RunScenario(context.Background(), RunScenarioCommand{Scenario: ScenarioFIFO})
	if err != nil {
		t.Fatalf("RunScenario() err = %v", err)
	}
	second, err := svc.RunScenario(context.Background(), RunScenarioCommand{Scenario: ScenarioFIFO})
	if err != nil {
		t.Fatalf("RunScenario() err = %v", err)
	}
	if _, err := uuid.Parse(first.RunID); err != nil {
		t.Errorf("RunID %q is not a UUID: %v", first.RunID, err)
	}
	if first.RunID == second.RunID {
		t.Errorf("two runs share RunID %s", first.RunID)
	}
	for _, id := range []string{first.RunID, second.RunID} {
		if !bytes.Contains(logs.Bytes(), []byte("run_id="+id)) {
			t.Errorf("log output has no record for run %s", id)
		}
	}
}

func TestRunScenario_WorkerPanicFailsResult(t *testing.T) {
	saved := scenarios
	t.Cleanup(func() { scenarios = saved })
	scenarios = append(slices.Clone(saved), scenario{
		info: ScenarioInfo{Name: "panic", Threads: 1, Iterations: 1},
		run: func(_ context.Context, s *scheduler.Scheduler, _, _ int, r *report) error {
			id, err := s.Create(func(any) any { panic("worker failed") }, nil)
			if err != nil {
				return err
			}
			v, err := s.Join(id)
			r.check(err == nil, "join of the panicked worker: %v", err)
			_, isPanic := v.(*scheduler.PanicError)
			r.check(isPanic, "worker exit value is %T", v)
			return nil
		},
	})

	res, err := newTestService().RunScenario(context.Background(), RunScenarioCommand{Scenario: "panic"})
	if err != nil {
		t.Fatalf("RunScenario() err = %v", err)
	}
	if res.Passed {
		t.Error("RunScenario() passed although a worker panicked")
	}
	found := false
	for _, line := range res.Details {
		if bytes.Contains([]byte(line), []byte("worker failed")) {
			found = true
		}
	}
	if !found {
		t.Errorf("details do not report the panic: %v", res.Details)
	}
}
