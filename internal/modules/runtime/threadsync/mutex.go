package threadsync

import (
	"fmt"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

// Mutex is a mutual-exclusion lock with FIFO hand-off: Unlock passes
// ownership straight to the longest waiting thread, so the lock is never
// observed free while someone is queued for it.
type Mutex struct {
	rt        Runtime
	locked    bool
	owner     scheduler.ID
	waiters   scheduler.WaitQueue
	destroyed bool
}

// NewMutex returns an unlocked mutex.
func NewMutex(rt Runtime) *Mutex {
	return &Mutex{rt: rt, owner: scheduler.NoThread}
}

// Lock acquires m, blocking until ownership is handed over if another thread
// holds it.
func (m *Mutex) Lock() {
	unmask := m.rt.Mask()
	defer unmask()

	if m.destroyed {
		panic(fmt.Errorf("mutex lock: %w", scheduler.ErrDestroyed))
	}
	self := m.rt.Self()
	if !m.locked {
		m.locked = true
		m.owner = self
		return
	}
	m.waiters.Push(self)
	m.rt.Block()
	// Unlock made us the owner before waking us.
}

// TryLock acquires m if it is free and reports whether it did. It never
// blocks.
func (m *Mutex) TryLock() bool {
	unmask := m.rt.Mask()
	defer unmask()

	if m.destroyed || m.locked {
		return false
	}
	m.locked = true
	m.owner = m.rt.Self()
	return true
}

// Unlock releases m. Only the owner may unlock it.
func (m *Mutex) Unlock() error {
	unmask := m.rt.Mask()
	defer unmask()

	if m.destroyed {
		return fmt.Errorf("mutex unlock: %w", scheduler.ErrDestroyed)
	}
	if !m.locked || m.owner != m.rt.Self() {
		return fmt.Errorf("mutex unlock by thread %d: %w", m.rt.Self(), scheduler.ErrNotOwner)
	}
	next, ok := m.waiters.Pop()
	if !ok {
		m.locked = false
		m.owner = scheduler.NoThread
		return nil
	}
	m.owner = next
	m.rt.Wake(next)
	return nil
}

// Owner returns the owning thread while m is locked.
func (m *Mutex) Owner() (scheduler.ID, bool) {
	unmask := m.rt.Mask()
	defer unmask()
	return m.owner, m.locked
}

// Waiting returns the number of threads queued on m.
func (m *Mutex) Waiting() int {
	unmask := m.rt.Mask()
	defer unmask()
	return m.waiters.Len()
}

// Destroy releases m. A locked mutex cannot be destroyed.
func (m *Mutex) Destroy() error {
	unmask := m.rt.Mask()
	defer unmask()

	if m.destroyed {
		return fmt.Errorf("mutex destroy: %w", scheduler.ErrDestroyed)
	}
	if m.locked {
		return fmt.Errorf("mutex destroy: %w: held by thread %d with %d waiting",
			scheduler.ErrBusy, m.owner, m.waiters.Len())
	}
	m.destroyed = true
	return nil
}
