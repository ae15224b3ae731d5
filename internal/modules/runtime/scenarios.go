package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/meetai/greenrt/internal/modules/runtime/scheduler"
	"github.com/meetai/greenrt/internal/modules/runtime/threadsync"
)

// scenario is a self-checking program run on a fresh scheduler. run executes
// on thread 0.
type scenario struct {
	info ScenarioInfo
	// cooperative scenarios check an exact interleaving and run with the
	// preemption timer off.
	cooperative bool
	// tableSize overrides MaxThreads. Nil sizes the table to fit the threads.
	tableSize func(threads int) int
	run       func(ctx context.Context, s *scheduler.Scheduler, threads, iterations int, r *report) error
}

type report struct {
	passed  bool
	details []string
}

func (r *report) notef(format string, args ...any) {
	r.details = append(r.details, fmt.Sprintf(format, args...))
}

func (r *report) check(ok bool, format string, args ...any) {
	if ok {
		r.notef("ok: "+format, args...)
		return
	}
	r.passed = false
	r.notef("FAIL: "+format, args...)
}

var scenarios = []scenario{
	{
		info: ScenarioInfo{
			Name:        ScenarioCounter,
			Description: "threads increment a shared counter under a mutex while the timer preempts them",
			Threads:     2,
			Iterations:  100000,
		},
		run: runCounter,
	},
	{
		info: ScenarioInfo{
			Name:        ScenarioFIFO,
			Description: "blocked lockers acquire the mutex in arrival order",
			Threads:     3,
			Iterations:  1,
		},
		cooperative: true,
		run:         runFIFO,
	},
	{
		info: ScenarioInfo{
			Name:        ScenarioSemaphore,
			Description: "a semaphore of value N admits N waiters and blocks the next until a post",
			Threads:     3,
			Iterations:  1,
		},
		cooperative: true,
		run:         runSemaphore,
	},
	{
		info: ScenarioInfo{
			Name:        ScenarioBarrier,
			Description: "threads meet at a reusable barrier, one serial thread per round",
			Threads:     4,
			Iterations:  2,
		},
		run: runBarrier,
	},
	{
		info: ScenarioInfo{
			Name:        ScenarioExhaust,
			Description: "creation fails with resource exhausted once every slot is taken",
			Threads:     4,
			Iterations:  1,
		},
		tableSize: func(threads int) int { return threads },
		run:       runExhaust,
	},
	{
		info: ScenarioInfo{
			Name:        ScenarioFairness,
			Description: "yielding threads run in strict round-robin order",
			Threads:     4,
			Iterations:  5,
		},
		cooperative: true,
		run:         runFairness,
	},
}

func lookupScenario(name string) (scenario, bool) {
	for _, sc := range scenarios {
		if sc.info.Name == name {
			return sc, true
		}
	}
	return scenario{}, false
}

func joinAll(s *scheduler.Scheduler, ids []scheduler.ID) ([]any, error) {
	values := make([]any, 0, len(ids))
	for _, id := range ids {
		v, err := s.Join(id)
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}

func runCounter(ctx context.Context, s *scheduler.Scheduler, threads, iterations int, r *report) error {
	m := threadsync.NewMutex(s)
	counter := 0
	overlaps := 0
	holders := 0

	body := func(any) any {
		for i := 0; i < iterations; i++ {
			if i%1024 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			m.Lock()
			holders++
			if holders > 1 {
				overlaps++
			}
			v := counter
			s.Preempt()
			counter = v + 1
			holders--
			if err := m.Unlock(); err != nil {
				return err
			}
		}
		return nil
	}

	ids := make([]scheduler.ID, 0, threads)
	for i := 0; i < threads; i++ {
		id, err := s.Create(body, nil)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	values, err := joinAll(s, ids)
	if err != nil {
		return err
	}
	for i, v := range values {
		if err, ok := v.(error); ok {
			return fmt.Errorf("thread %d: %w", ids[i], err)
		}
	}

	st := s.Stats()
	r.notef("ticks observed %d, delivered %d", st.TicksObserved, st.TicksDelivered)
	r.check(counter == threads*iterations, "counter = %d, want %d", counter, threads*iterations)
	r.check(overlaps == 0, "%d critical sections overlapped", overlaps)
	return m.Destroy()
}

func runFIFO(ctx context.Context, s *scheduler.Scheduler, threads, _ int, r *report) error {
	m := threadsync.NewMutex(s)
	m.Lock()

	var order []scheduler.ID
	body := func(any) any {
		m.Lock()
		order = append(order, s.Self())
		return m.Unlock()
	}
	ids := make([]scheduler.ID, 0, threads)
	for i := 0; i < threads; i++ {
		id, err := s.Create(body, nil)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	r.check(m.Waiting() == threads, "%d threads queued on the mutex", m.Waiting())

	if err := m.Unlock(); err != nil {
		return err
	}
	owner, locked := m.Owner()
	r.check(locked && owner == ids[0], "unlock handed the mutex to thread %d", owner)
	r.check(!m.TryLock(), "a handed-off mutex cannot be taken by TryLock")

	if _, err := joinAll(s, ids); err != nil {
		return err
	}
	r.check(slices.Equal(order, ids), "acquisition order %v, want %v", order, ids)
	return m.Destroy()
}

func runSemaphore(ctx context.Context, s *scheduler.Scheduler, threads, _ int, r *report) error {
	sem, err := threadsync.NewSemaphore(s, threads)
	if err != nil {
		return err
	}

	admitted := 0
	body := func(any) any {
		sem.Wait()
		admitted++
		return nil
	}
	ids := make([]scheduler.ID, 0, threads+1)
	for i := 0; i < threads; i++ {
		id, err := s.Create(body, nil)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	r.check(admitted == threads, "%d of %d waiters admitted without blocking", admitted, threads)

	extra, err := s.Create(body, nil)
	if err != nil {
		return err
	}
	ids = append(ids, extra)
	r.check(s.Status(extra) == scheduler.StatusBlocked, "waiter %d beyond the value is %s", extra, s.Status(extra))

	sem.Post()
	r.check(sem.Value() == 0, "post to a queued waiter leaves the value at %d", sem.Value())
	r.check(s.Status(extra) == scheduler.StatusReady, "post made waiter %d %s", extra, s.Status(extra))

	if _, err := joinAll(s, ids); err != nil {
		return err
	}
	r.check(admitted == threads+1, "%d waiters passed in total", admitted)
	return sem.Destroy()
}

func runBarrier(ctx context.Context, s *scheduler.Scheduler, threads, rounds int, r *report) error {
	b, err := threadsync.NewBarrier(s, threads)
	if err != nil {
		return err
	}

	arrived := make([]int, rounds)
	serial := make([]int, rounds)
	early := 0
	body := func(any) any {
		for round := 0; round < rounds; round++ {
			arrived[round]++
			res := b.Wait()
			if arrived[round] != threads {
				early++
			}
			if res == threadsync.Serial {
				serial[round]++
			}
		}
		return nil
	}
	ids := make([]scheduler.ID, 0, threads)
	for i := 0; i < threads; i++ {
		id, err := s.Create(body, nil)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if _, err := joinAll(s, ids); err != nil {
		return err
	}

	for round := range serial {
		r.check(serial[round] == 1, "round %d released %d serial threads", round, serial[round])
	}
	r.check(early == 0, "%d threads left a round before it was complete", early)
	r.check(b.Generation() == uint64(rounds), "barrier completed %d rounds", b.Generation())
	return b.Destroy()
}

func runExhaust(ctx context.Context, s *scheduler.Scheduler, threads, _ int, r *report) error {
	if threads < 2 {
		return fmt.Errorf("%w: exhaust needs a table of at least 2 slots", scheduler.ErrInvalidArgument)
	}
	hold, err := threadsync.NewSemaphore(s, 0)
	if err != nil {
		return err
	}
	body := func(any) any {
		hold.Wait()
		return nil
	}

	var ids []scheduler.ID
	var createErr error
	for {
		id, err := s.Create(body, nil)
		if err != nil {
			createErr = err
			break
		}
		ids = append(ids, id)
	}
	r.check(errors.Is(createErr, scheduler.ErrResourceExhausted), "create on a full table: %v", createErr)
	r.check(len(ids) == threads-1, "%d threads created beside thread 0 in a table of %d", len(ids), threads)

	for range ids {
		hold.Post()
	}
	if _, err := joinAll(s, ids); err != nil {
		return err
	}

	id, err := s.Create(body, nil)
	r.check(err == nil, "a slot is free again after join: id %d, err %v", id, err)
	if err == nil {
		hold.Post()
		if _, err := s.Join(id); err != nil {
			return err
		}
	}
	return hold.Destroy()
}

func runFairness(ctx context.Context, s *scheduler.Scheduler, threads, rounds int, r *report) error {
	start, err := threadsync.NewSemaphore(s, 0)
	if err != nil {
		return err
	}

	var trace []scheduler.ID
	body := func(any) any {
		start.Wait()
		for i := 0; i < rounds; i++ {
			trace = append(trace, s.Self())
			s.Yield()
		}
		return nil
	}
	ids := make([]scheduler.ID, 0, threads)
	for i := 0; i < threads; i++ {
		id, err := s.Create(body, nil)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	for range ids {
		start.Post()
	}
	if _, err := joinAll(s, ids); err != nil {
		return err
	}

	want := make([]scheduler.ID, 0, threads*rounds)
	for i := 0; i < rounds; i++ {
		want = append(want, ids...)
	}
	r.check(slices.Equal(trace, want), "run order over %d rounds is round robin", rounds)

	st := s.Stats()
	r.notef("%d dispatches", st.Dispatches)
	return start.Destroy()
}
