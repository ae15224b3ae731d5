package threadsync

import (
	"fmt"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

// Semaphore is a counting semaphore. A Post while threads are queued hands
// the unit straight to the head waiter instead of raising the count, so a
// waiter is only ever released by a matching Post.
type Semaphore struct {
	rt        Runtime
	count     int
	waiters   scheduler.WaitQueue
	destroyed bool
}

// NewSemaphore returns a semaphore holding value units.
func NewSemaphore(rt Runtime, value int) (*Semaphore, error) {
	if value < 0 {
		return nil, fmt.Errorf("semaphore init: %w: negative value %d", scheduler.ErrInvalidArgument, value)
	}
	return &Semaphore{rt: rt, count: value}, nil
}

// Wait takes one unit, blocking until a Post hands one over if none is
// available.
func (s *Semaphore) Wait() {
	unmask := s.rt.Mask()
	defer unmask()

	if s.destroyed {
		panic(fmt.Errorf("semaphore wait: %w", scheduler.ErrDestroyed))
	}
	if s.count > 0 {
		s.count--
		return
	}
	s.waiters.Push(s.rt.Self())
	s.rt.Block()
}

// Post returns one unit, waking the longest waiting thread if there is one.
func (s *Semaphore) Post() {
	unmask := s.rt.Mask()
	defer unmask()

	if s.destroyed {
		panic(fmt.Errorf("semaphore post: %w", scheduler.ErrDestroyed))
	}
	if next, ok := s.waiters.Pop(); ok {
		s.rt.Wake(next)
		return
	}
	s.count++
}

// Value returns the number of available units.
func (s *Semaphore) Value() int {
	unmask := s.rt.Mask()
	defer unmask()
	return s.count
}

// Waiting returns the number of threads queued on s.
func (s *Semaphore) Waiting() int {
	unmask := s.rt.Mask()
	defer unmask()
	return s.waiters.Len()
}

// Destroy releases s. It fails while threads are waiting.
func (s *Semaphore) Destroy() error {
	unmask := s.rt.Mask()
	defer unmask()

	if s.destroyed {
		return fmt.Errorf("semaphore destroy: %w", scheduler.ErrDestroyed)
	}
	if !s.waiters.Empty() {
		return fmt.Errorf("semaphore destroy: %w: %d waiting", scheduler.ErrBusy, s.waiters.Len())
	}
	s.destroyed = true
	return nil
}
