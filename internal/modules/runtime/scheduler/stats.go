package scheduler

// ThreadStats describes one occupied slot of the thread table.
type ThreadStats struct {
	ID         ID
	Status     Status
	Dispatches uint64
	StackSize  int
}

// Stats is a snapshot of the scheduler.
type Stats struct {
	Current        ID
	Threads        []ThreadStats
	Dispatches     uint64
	TicksObserved  uint64
	TicksDelivered uint64
}

// Stats returns a snapshot of every non-empty slot and the dispatch counters.
// It may be called from outside the runtime once it has shut down.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Current:        s.current,
		Dispatches:     s.dispatches,
		TicksObserved:  s.ticksObserved.Load(),
		TicksDelivered: s.ticksDelivered,
	}
	for i := range s.table {
		t := &s.table[i]
		if t.status == StatusEmpty {
			continue
		}
		st.Threads = append(st.Threads, ThreadStats{
			ID:         t.id,
			Status:     t.status,
			Dispatches: t.dispatches,
			StackSize:  t.stack.Size(),
		})
	}
	return st
}

// Thread returns the entry for id, if the slot is occupied.
func (st Stats) Thread(id ID) (ThreadStats, bool) {
	for _, t := range st.Threads {
		if t.ID == id {
			return t, true
		}
	}
	return ThreadStats{}, false
}
