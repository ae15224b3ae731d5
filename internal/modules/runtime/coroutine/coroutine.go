// Package coroutine provides the execution contexts the green-thread scheduler
// switches between.
//
// A Context is backed by one goroutine that only executes while it holds the
// baton. Handing the baton to another context is an unbuffered channel send, so
// at most one context runs at a time and every switch is a happens-before edge
// between the outgoing and the incoming context. All of the mechanics of
// suspending and resuming live here; the scheduler above only sees Capture,
// Build, Switch, Restore and Release.
package coroutine

import (
	"errors"
	"runtime"
)

// ErrStackSize is returned when a stack of non-positive size is requested.
var ErrStackSize = errors.New("coroutine: stack size must be positive")

// Context is a saved execution state that can be resumed exactly where it was
// last suspended, or at its entry point if it never ran.
type Context struct {
	resume   chan struct{}
	released chan struct{}

	// finished is closed when a built context's goroutine returns. Captured
	// contexts have no goroutine of their own and leave it nil.
	finished chan struct{}

	stack      *Stack
	started    bool
	isReleased bool
}

// Capture binds a context to the calling goroutine. The caller keeps running;
// the context becomes useful as the "from" side of a later Switch.
func Capture() *Context {
	return &Context{
		resume:   make(chan struct{}),
		released: make(chan struct{}),
		started:  true,
	}
}

// Build creates the initial context of a new thread. Its goroutine starts
// parked and runs entry the first time the context is restored. entry must not
// return while holding the baton unless it handed the baton on first.
func Build(entry func(), stack *Stack) *Context {
	c := &Context{
		resume:   make(chan struct{}),
		released: make(chan struct{}),
		finished: make(chan struct{}),
		stack:    stack,
	}
	go c.run(entry)
	return c
}

func (c *Context) run(entry func()) {
	defer close(c.finished)
	select {
	case <-c.resume:
	case <-c.released:
		return
	}
	c.started = true
	entry()
}

// Stack returns the stack region the context was built with, or nil for a
// captured context.
func (c *Context) Stack() *Stack {
	return c.stack
}

// Started reports whether the context has executed at least once.
func (c *Context) Started() bool {
	return c.started
}

// Suspend parks the calling goroutine until the context is restored. If the
// context is released instead, the goroutine unwinds with runtime.Goexit and
// Suspend never returns.
func (c *Context) Suspend() {
	select {
	case <-c.resume:
	case <-c.released:
		runtime.Goexit()
	}
}

// Switch saves the running context from and resumes to. It returns when from
// is restored again.
func Switch(from, to *Context) {
	Restore(to)
	from.Suspend()
}

// Restore resumes to without saving the caller. The caller must not touch any
// state shared with other contexts afterwards.
func Restore(to *Context) {
	select {
	case to.resume <- struct{}{}:
	case <-to.released:
	}
}

// Release tears a suspended context down. A parked goroutine unwinds through
// runtime.Goexit; for built contexts Release waits until it is gone. Release
// must not be called on the running context.
func (c *Context) Release() {
	if c.isReleased {
		return
	}
	c.isReleased = true
	close(c.released)
	if c.finished != nil {
		<-c.finished
	}
}

// Done is closed once a built context's goroutine has returned. For captured
// contexts it returns nil.
func (c *Context) Done() <-chan struct{} {
	return c.finished
}
