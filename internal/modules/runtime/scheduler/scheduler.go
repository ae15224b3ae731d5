// Package scheduler multiplexes logical threads so that exactly one of them
// executes at a time. Threads are dispatched round robin, preempted by a
// periodic timer at preemption points, and block cooperatively on the
// primitives in threadsync.
//
// All mutation of the thread table and of wait queues happens inside masked
// critical sections (see Mask). Masking defers timer ticks, so a masked
// sequence of mutations is atomic with respect to preemption; it is the only
// mutual exclusion the runtime uses.
//
// The goroutine that first calls into a Scheduler becomes thread 0. From then
// on every call must come from the thread that is currently running.
package scheduler

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/meetai/greenrt/internal/modules/runtime/coroutine"
)

// Scheduler owns the thread table, the running thread and the preemption
// timer.
type Scheduler struct {
	opts Options
	log  *slog.Logger

	table   []tcb
	current ID

	started    bool
	closed     bool
	terminated bool
	failed     bool

	// pending is raised by the timer goroutine and consumed by the running
	// thread at its next preemption point.
	pending       atomic.Bool
	ticksObserved atomic.Uint64

	ticksDelivered uint64
	dispatches     uint64

	timerStop chan struct{}
	timerDone chan struct{}

	// orphans are captured contexts whose slot was reclaimed while their
	// goroutine stayed parked.
	orphans []*coroutine.Context
}

// New constructs a scheduler. No thread exists until the first call into it.
func New(opts Options) (*Scheduler, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	s := &Scheduler{
		opts:    opts,
		log:     opts.Logger.With("component", "scheduler"),
		table:   make([]tcb, opts.MaxThreads),
		current: 0,
	}
	for i := range s.table {
		s.table[i] = emptyTCB(ID(i))
	}
	return s, nil
}

// Options returns the effective options.
func (s *Scheduler) Options() Options {
	return s.opts
}

// ensureStarted adopts the calling goroutine as thread 0 and starts the
// preemption timer on the first call into the runtime.
func (s *Scheduler) ensureStarted() {
	if s.started {
		return
	}
	s.started = true
	t := &s.table[0]
	t.ctx = coroutine.Capture()
	t.status = StatusRunning
	t.adopted = true
	t.dispatches = 1
	s.current = 0
	s.startTimer()
	s.log.Debug("runtime started",
		"max_threads", s.opts.MaxThreads,
		"stack_size", s.opts.StackSize,
		"timer_interval", s.opts.TimerInterval)
	s.notifyStarted(0)
}

// Create registers a new thread running entry(arg) and returns its id. The
// thread becomes ready immediately; Create then yields, so it runs no later
// than its turn in the round robin.
func (s *Scheduler) Create(entry EntryFunc, arg any) (ID, error) {
	if entry == nil {
		return NoThread, fmt.Errorf("create thread: %w: nil entry", ErrInvalidArgument)
	}
	if s.closed {
		return NoThread, fmt.Errorf("create thread: %w", ErrClosed)
	}
	unmask := s.Mask()
	defer unmask()

	id, ok := s.freeSlot()
	if !ok {
		return NoThread, fmt.Errorf("create thread: %w: all %d slots in use", ErrResourceExhausted, len(s.table))
	}
	stack, err := coroutine.NewStack(s.opts.StackSize)
	if err != nil {
		s.fatal(fmt.Errorf("allocate stack for thread %d: %w", id, err))
	}

	t := &s.table[id]
	*t = emptyTCB(id)
	t.stack = stack
	t.status = StatusReady
	// A new thread first runs from inside the dispatch that picked it, so it
	// starts with one level of masking, which the trampoline releases.
	t.masked = 1
	t.ctx = coroutine.Build(s.trampoline(t, entry, arg), stack)
	s.log.Debug("thread created", "thread", id, "creator", s.current)

	s.dispatch()
	return id, nil
}

func (s *Scheduler) trampoline(t *tcb, entry EntryFunc, arg any) func() {
	return func() {
		returned := false
		var value any
		defer func() {
			if s.closed {
				return
			}
			switch {
			case t.exiting:
				value = t.exitValue
			case !returned:
				// Either a panic or a runtime.Goexit from inside entry. recover
				// returns nil for the latter, which then exits like Exit(nil).
				if r := recover(); r != nil {
					value = s.recovered(t, r)
				}
			}
			s.notifyExited(t.id, value)
			s.mask()
			s.retire(t, value)
		}()

		s.unmask()
		s.notifyStarted(t.id)
		value = entry(arg)
		returned = true
	}
}

// recovered turns a panic of thread t into its exit value when an OnPanic
// hook is installed. Without one, or once the scheduler has failed, the panic
// is raised again and takes the process down.
func (s *Scheduler) recovered(t *tcb, r any) any {
	if s.failed || s.opts.OnPanic == nil {
		panic(r)
	}
	perr := &PanicError{Thread: t.id, Value: r}
	s.log.Error("thread panicked", "thread", t.id, "panic", r)
	s.opts.OnPanic(perr)
	return perr
}

// Exit terminates the calling thread with value. It never returns. Deferred
// calls of a created thread run before control leaves it. When no other thread
// can run any more, the runtime terminates.
func (s *Scheduler) Exit(value any) {
	s.ensureStarted()
	t := s.running()
	if !t.adopted {
		t.exitValue = value
		t.exiting = true
		runtime.Goexit()
	}

	// The adopted thread has no trampoline: retire it in place and park its
	// goroutine until Shutdown unwinds it.
	s.notifyExited(t.id, value)
	ctx := t.ctx
	s.mask()
	s.retire(t, value)
	ctx.Suspend()
	s.fatal(fmt.Errorf("exited thread %d was resumed", t.id))
}

// retire marks t EXITED, wakes its joiner and hands control to the next ready
// thread without saving t. It is entered masked and terminates the runtime
// when nothing is left to run.
func (s *Scheduler) retire(t *tcb, value any) {
	t.status = StatusExited
	t.exitValue = value
	if t.joiner != NoThread {
		if j := &s.table[t.joiner]; j.status == StatusBlocked {
			j.status = StatusReady
		}
	}
	s.log.Debug("thread exited", "thread", t.id, "joiner", t.joiner)
	if t.detached {
		s.reclaim(t)
	}
	if !s.anyRunnable() {
		s.terminate()
		return
	}
	next, ok := s.pickNext()
	if !ok {
		s.fatal(fmt.Errorf("thread %d exiting: %w", t.id, ErrDeadlock))
	}
	s.switchTo(t, next)
}

// Self returns the id of the running thread. It is a pure query.
func (s *Scheduler) Self() ID {
	return s.current
}

// Join waits for thread id to exit, reclaims its slot and returns its exit
// value.
func (s *Scheduler) Join(id ID) (any, error) {
	unmask := s.Mask()
	defer unmask()

	if !s.valid(id) || s.table[id].status == StatusEmpty {
		return nil, fmt.Errorf("join thread %d: %w", id, ErrNoSuchThread)
	}
	if id == s.current {
		return nil, fmt.Errorf("join thread %d: %w: thread joins itself", id, ErrDeadlock)
	}
	t := &s.table[id]
	if t.detached {
		return nil, fmt.Errorf("join thread %d: %w: thread is detached", id, ErrInvalidArgument)
	}
	if t.joiner != NoThread {
		return nil, fmt.Errorf("join thread %d: %w: already joined by thread %d", id, ErrInvalidArgument, t.joiner)
	}
	if t.status != StatusExited {
		t.joiner = s.current
		s.Block()
		if t.status != StatusExited {
			s.fatal(fmt.Errorf("joiner of thread %d woken while target is %s", id, t.status))
		}
	}
	value := t.exitValue
	s.reclaim(t)
	return value, nil
}

// Detach marks thread id so that its slot is reclaimed as soon as it exits.
// An already exited thread is reclaimed immediately.
func (s *Scheduler) Detach(id ID) error {
	unmask := s.Mask()
	defer unmask()

	if !s.valid(id) || s.table[id].status == StatusEmpty {
		return fmt.Errorf("detach thread %d: %w", id, ErrNoSuchThread)
	}
	t := &s.table[id]
	if t.joiner != NoThread {
		return fmt.Errorf("detach thread %d: %w: thread %d is joining it", id, ErrInvalidArgument, t.joiner)
	}
	if t.status == StatusExited {
		s.reclaim(t)
		return nil
	}
	t.detached = true
	return nil
}

// Yield gives up the processor to the next ready thread in round-robin order.
func (s *Scheduler) Yield() {
	unmask := s.Mask()
	s.dispatch()
	unmask()
}

// Preempt is a preemption point: it delivers a pending timer tick unless the
// caller is inside a masked section. Long computations call it to stay
// preemptible.
func (s *Scheduler) Preempt() {
	s.ensureStarted()
	if s.running().masked == 0 {
		s.deliverPending()
	}
}

// Status reports the scheduling state of thread id. Unknown ids are EMPTY.
func (s *Scheduler) Status(id ID) Status {
	if !s.valid(id) {
		return StatusEmpty
	}
	return s.table[id].status
}

// Stack returns the stack region of the running thread.
func (s *Scheduler) Stack() *coroutine.Stack {
	s.ensureStarted()
	return s.running().stack
}

// Shutdown stops the preemption timer and unwinds every suspended thread. It
// is called by the running thread, usually thread 0, or from outside the
// runtime once it has terminated. Created threads are unwound one at a time,
// each seen as the running thread while its deferred calls run, so deferred
// Unlock and Post calls release what the thread held. A deferred call that
// would block unwinds the thread instead. An adopted thread other than the
// caller unwinds on its own goroutine without being waited for.
func (s *Scheduler) Shutdown() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.haltTimer()
	caller := s.current
	for i := range s.table {
		t := &s.table[i]
		if t.ctx == nil || (ID(i) == caller && t.status == StatusRunning) {
			continue
		}
		// Deferred calls of the unwound thread run inside Release and must
		// see it as the running thread.
		if !t.adopted {
			s.current = ID(i)
		}
		t.ctx.Release()
	}
	s.current = caller
	for _, ctx := range s.orphans {
		ctx.Release()
	}
	s.orphans = nil
	s.log.Debug("runtime shut down", "dispatches", s.dispatches)
	return nil
}

func (s *Scheduler) running() *tcb {
	return &s.table[s.current]
}

func (s *Scheduler) valid(id ID) bool {
	return id >= 0 && int(id) < len(s.table)
}

func (s *Scheduler) freeSlot() (ID, bool) {
	for i := range s.table {
		if s.table[i].status == StatusEmpty {
			return ID(i), true
		}
	}
	return NoThread, false
}

func (s *Scheduler) anyRunnable() bool {
	for i := range s.table {
		switch s.table[i].status {
		case StatusReady, StatusRunning, StatusBlocked:
			return true
		}
	}
	return false
}

// reclaim frees t's stack and returns the slot to EMPTY.
func (s *Scheduler) reclaim(t *tcb) {
	t.stack.Free()
	if t.adopted && t.ctx != nil {
		s.orphans = append(s.orphans, t.ctx)
	}
	*t = emptyTCB(t.id)
}

func (s *Scheduler) terminate() {
	s.terminated = true
	s.haltTimer()
	s.log.Debug("no runnable thread left, terminating", "dispatches", s.dispatches)
	if s.opts.OnTerminate != nil {
		s.opts.OnTerminate()
		return
	}
	exitProcess(0)
}

// fatal reports a broken scheduler invariant and aborts.
func (s *Scheduler) fatal(err error) {
	s.failed = true
	s.log.Error("fatal scheduler error", "thread", s.current, "error", err)
	panic(err)
}

func (s *Scheduler) notifyStarted(id ID) {
	for _, o := range s.opts.Observers {
		o.ThreadStarted(id)
	}
}

func (s *Scheduler) notifyExited(id ID, value any) {
	for _, o := range s.opts.Observers {
		o.ThreadExited(id, value)
	}
}
