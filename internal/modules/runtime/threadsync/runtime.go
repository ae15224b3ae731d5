// Package threadsync provides mutexes, counting semaphores and barriers for
// green threads. Each primitive keeps an explicit FIFO wait queue and moves
// threads between running, blocked and ready through the scheduler; none of
// them relies on an existing lock. Every state change happens inside a masked
// critical section.
package threadsync

import "github.com/meetai/greenrt/internal/modules/runtime/scheduler"

// Runtime is the part of the scheduler the primitives are built on.
// *scheduler.Scheduler implements it.
type Runtime interface {
	// Mask enters a masked critical section and returns its release.
	Mask() (unmask func())
	// Self returns the running thread.
	Self() scheduler.ID
	// Block suspends the running thread until it is woken. Called masked.
	Block()
	// Wake makes a blocked thread ready. Called masked.
	Wake(id scheduler.ID)
}

var _ Runtime = (*scheduler.Scheduler)(nil)
