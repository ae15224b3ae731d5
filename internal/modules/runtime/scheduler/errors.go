package scheduler

import (
	"errors"
	"fmt"
)

// Errors returned by the thread API and the synchronization primitives built on
// it. Callers match them with errors.Is; call sites wrap them with context.
var (
	ErrResourceExhausted = errors.New("no free thread slot")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNoSuchThread      = errors.New("no such thread")
	ErrNotOwner          = errors.New("caller does not own the lock")
	ErrBusy              = errors.New("primitive is busy")
	ErrDestroyed         = errors.New("primitive has been destroyed")
	ErrDeadlock          = errors.New("deadlock: no thread is ready to run")
	ErrClosed            = errors.New("scheduler is shut down")
)

// PanicError is the exit value of a thread whose entry panicked while an
// OnPanic hook was installed.
type PanicError struct {
	Thread ID
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("thread %d panicked: %v", e.Thread, e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
