package scheduler

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMaxThreads    = 128
	DefaultStackSize     = 32767
	DefaultTimerInterval = 50 * time.Millisecond
)

// Observer is notified when threads start and exit. Callbacks run on the
// thread itself, outside any masked section, and may use the thread API.
type Observer interface {
	ThreadStarted(id ID)
	ThreadExited(id ID, value any)
}

// Options are fixed when the scheduler is constructed. Zero fields take the
// defaults.
type Options struct {
	// MaxThreads is the capacity of the thread table, thread 0 included.
	MaxThreads int

	// StackSize is the size in bytes of every thread's stack.
	StackSize int

	// TimerInterval is the preemption period. A negative value disables the
	// timer and the scheduler becomes purely cooperative.
	TimerInterval time.Duration

	Logger    *slog.Logger
	Observers []Observer

	// OnTerminate runs when the last thread exits. Nil exits the process.
	OnTerminate func()

	// OnPanic, if set, is called on a thread whose entry panicked. The thread
	// then exits with the *PanicError as its value instead of crashing the
	// process. Broken scheduler invariants are never recovered.
	OnPanic func(err *PanicError)
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		MaxThreads:    DefaultMaxThreads,
		StackSize:     DefaultStackSize,
		TimerInterval: DefaultTimerInterval,
	}
}

func (o Options) withDefaults() (Options, error) {
	if o.MaxThreads < 0 {
		return o, fmt.Errorf("%w: max threads %d", ErrInvalidArgument, o.MaxThreads)
	}
	if o.StackSize < 0 {
		return o, fmt.Errorf("%w: stack size %d", ErrInvalidArgument, o.StackSize)
	}
	if o.MaxThreads == 0 {
		o.MaxThreads = DefaultMaxThreads
	}
	if o.StackSize == 0 {
		o.StackSize = DefaultStackSize
	}
	if o.TimerInterval == 0 {
		o.TimerInterval = DefaultTimerInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o, nil
}
