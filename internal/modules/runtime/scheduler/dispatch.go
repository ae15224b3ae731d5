package scheduler

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/meetai/greenrt/internal/modules/runtime/coroutine"
)

var exitProcess = os.Exit

// Mask enters a masked critical section on the running thread and returns the
// function that leaves it. Sections nest. A timer tick that arrives while
// masked is delivered when the outermost section is left. The returned
// function is safe to call more than once; only the first call counts.
//
//	unmask := s.Mask()
//	defer unmask()
func (s *Scheduler) Mask() (unmask func()) {
	s.ensureStarted()
	s.mask()
	left := false
	return func() {
		if left {
			return
		}
		left = true
		s.unmask()
	}
}

// Masked runs fn inside a masked critical section.
func (s *Scheduler) Masked(fn func()) {
	unmask := s.Mask()
	defer unmask()
	fn()
}

func (s *Scheduler) mask() {
	if s.closed {
		return
	}
	s.running().masked++
}

func (s *Scheduler) unmask() {
	if s.closed {
		// Threads unwound by Shutdown leave their sections here.
		return
	}
	t := s.running()
	if t.masked <= 0 {
		s.fatal(fmt.Errorf("thread %d left a masked section it never entered", t.id))
	}
	t.masked--
	if t.masked == 0 {
		s.deliverPending()
	}
}

// Block suspends the running thread until some other thread calls Wake for
// it. It must be called inside a masked section and returns with the section
// still held.
func (s *Scheduler) Block() {
	if s.closed {
		runtime.Goexit()
	}
	t := s.running()
	if t.masked == 0 {
		s.fatal(fmt.Errorf("thread %d blocked outside a masked section", t.id))
	}
	t.status = StatusBlocked
	s.dispatch()
}

// Wake makes the blocked thread id ready again. It must be called inside a
// masked section.
func (s *Scheduler) Wake(id ID) {
	if s.closed {
		// Teardown: the target is unwound by Shutdown whatever its state.
		if s.valid(id) && s.table[id].status == StatusBlocked {
			s.table[id].status = StatusReady
		}
		return
	}
	if s.running().masked == 0 {
		s.fatal(fmt.Errorf("thread %d woke thread %d outside a masked section", s.current, id))
	}
	if !s.valid(id) || s.table[id].status != StatusBlocked {
		s.fatal(fmt.Errorf("wake of thread %d which is %s", id, s.Status(id)))
	}
	s.table[id].status = StatusReady
}

// deliverPending consumes a pending timer tick and dispatches on behalf of the
// timer.
func (s *Scheduler) deliverPending() {
	if s.closed || s.failed || s.terminated {
		return
	}
	if !s.pending.CompareAndSwap(true, false) {
		return
	}
	s.ticksDelivered++
	s.mask()
	s.dispatch()
	s.running().masked--
}

// dispatch demotes the running thread if it is still RUNNING and switches to
// the first READY thread after it in circular id order. It must be called
// masked. It returns when the calling thread is scheduled again.
func (s *Scheduler) dispatch() {
	if s.closed {
		runtime.Goexit()
	}
	out := s.running()
	if out.status == StatusRunning {
		out.status = StatusReady
	}
	next, ok := s.pickNext()
	if !ok {
		s.fatal(fmt.Errorf("dispatch from thread %d: %w", out.id, ErrDeadlock))
	}
	s.switchTo(out, next)
}

// pickNext scans ids in ascending order starting just after the running one,
// wrapping around and ending with the running one itself.
func (s *Scheduler) pickNext() (ID, bool) {
	n := len(s.table)
	for i := 1; i <= n; i++ {
		id := (int(s.current) + i) % n
		if s.table[id].status == StatusReady {
			return ID(id), true
		}
	}
	return NoThread, false
}

// switchTo makes next the running thread. The outgoing context is saved
// unless out has exited or been reclaimed, in which case it is abandoned and
// switchTo returns immediately.
func (s *Scheduler) switchTo(out *tcb, next ID) {
	in := &s.table[next]
	in.status = StatusRunning
	in.dispatches++
	s.dispatches++
	if in == out {
		return
	}
	s.current = next
	switch out.status {
	case StatusExited, StatusEmpty:
		coroutine.Restore(in.ctx)
	default:
		coroutine.Switch(out.ctx, in.ctx)
	}
}

func (s *Scheduler) startTimer() {
	if s.opts.TimerInterval < 0 {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.timerStop, s.timerDone = stop, done
	ticker := time.NewTicker(s.opts.TimerInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ticksObserved.Add(1)
				s.pending.Store(true)
			case <-stop:
				return
			}
		}
	}()
}

func (s *Scheduler) haltTimer() {
	if s.timerStop == nil {
		return
	}
	close(s.timerStop)
	<-s.timerDone
	s.timerStop, s.timerDone = nil, nil
	s.pending.Store(false)
}
