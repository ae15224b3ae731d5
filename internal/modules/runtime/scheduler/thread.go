package scheduler

import (
	"fmt"

	"github.com/meetai/greenrt/internal/modules/runtime/coroutine"
)

// ID identifies a thread while its slot is occupied.
type ID int

// NoThread is the ID reported where no thread applies.
const NoThread ID = -1

// Status is the scheduling state of a thread control block.
type Status int

const (
	StatusEmpty Status = iota
	StatusReady
	StatusRunning
	StatusBlocked
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusBlocked:
		return "blocked"
	case StatusExited:
		return "exited"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// EntryFunc is the body of a thread. Its return value becomes the thread's
// exit value.
type EntryFunc func(arg any) any

// tcb is a thread control block. An EMPTY block holds no stack and no context.
type tcb struct {
	id        ID
	ctx       *coroutine.Context
	stack     *coroutine.Stack
	status    Status
	exitValue any
	joiner    ID
	detached  bool

	// exiting is set by Exit before the thread's goroutine unwinds, so the
	// trampoline can tell an exit from a panic.
	exiting bool

	// adopted marks the block whose context was captured from the goroutine
	// that first entered the runtime.
	adopted bool

	// masked is the depth of the thread's masked critical sections. It
	// travels with the thread across switches.
	masked int

	dispatches uint64
}

func emptyTCB(id ID) tcb {
	return tcb{id: id, status: StatusEmpty, joiner: NoThread}
}
