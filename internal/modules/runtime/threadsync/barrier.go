package threadsync

import (
	"fmt"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
)

// BarrierResult tells a thread how it left a barrier.
type BarrierResult int

const (
	// Ordinary is returned to every thread that blocked at the barrier.
	Ordinary BarrierResult = iota
	// Serial is returned to exactly one thread per round: the last to arrive.
	Serial
)

func (r BarrierResult) String() string {
	if r == Serial {
		return "serial"
	}
	return "ordinary"
}

// Barrier is a reusable rendezvous point for a fixed number of threads.
type Barrier struct {
	rt           Runtime
	participants int
	arrived      int
	generation   uint64
	waiters      scheduler.WaitQueue
	destroyed    bool
}

// NewBarrier returns a barrier that releases every count arrivals.
func NewBarrier(rt Runtime, count int) (*Barrier, error) {
	if count <= 0 {
		return nil, fmt.Errorf("barrier init: %w: count %d", scheduler.ErrInvalidArgument, count)
	}
	return &Barrier{rt: rt, participants: count}, nil
}

// Wait blocks until the round's last participant arrives. The last arrival
// does not block and gets Serial; the others get Ordinary.
func (b *Barrier) Wait() BarrierResult {
	unmask := b.rt.Mask()
	defer unmask()

	if b.destroyed {
		panic(fmt.Errorf("barrier wait: %w", scheduler.ErrDestroyed))
	}
	observed := b.generation
	b.arrived++
	if b.arrived == b.participants {
		b.arrived = 0
		b.generation++
		for _, id := range b.waiters.Drain() {
			b.rt.Wake(id)
		}
		return Serial
	}
	b.waiters.Push(b.rt.Self())
	// Only the release of our own round may let us through.
	for b.generation == observed {
		b.rt.Block()
	}
	return Ordinary
}

// Generation returns the number of completed rounds.
func (b *Barrier) Generation() uint64 {
	unmask := b.rt.Mask()
	defer unmask()
	return b.generation
}

// Destroy releases b. It fails while a round is in progress.
func (b *Barrier) Destroy() error {
	unmask := b.rt.Mask()
	defer unmask()

	if b.destroyed {
		return fmt.Errorf("barrier destroy: %w", scheduler.ErrDestroyed)
	}
	if b.arrived != 0 || !b.waiters.Empty() {
		return fmt.Errorf("barrier destroy: %w: %d of %d arrived", scheduler.ErrBusy, b.arrived, b.participants)
	}
	b.destroyed = true
	return nil
}
