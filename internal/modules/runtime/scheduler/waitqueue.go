package scheduler

// WaitQueue is a FIFO of blocked thread ids. Threads are appended at the tail
// and woken from the head. It must only be touched inside a masked section.
type WaitQueue struct {
	ids []ID
}

// Push appends id at the tail.
func (q *WaitQueue) Push(id ID) {
	q.ids = append(q.ids, id)
}

// Pop removes the head. ok is false when the queue is empty.
func (q *WaitQueue) Pop() (id ID, ok bool) {
	if len(q.ids) == 0 {
		return NoThread, false
	}
	id = q.ids[0]
	q.ids[0] = NoThread
	q.ids = q.ids[1:]
	if len(q.ids) == 0 {
		q.ids = nil
	}
	return id, true
}

// Len returns the number of queued threads.
func (q *WaitQueue) Len() int {
	return len(q.ids)
}

// Empty reports whether no thread is queued.
func (q *WaitQueue) Empty() bool {
	return len(q.ids) == 0
}

// Drain removes and returns every queued id in FIFO order.
func (q *WaitQueue) Drain() []ID {
	ids := q.ids
	q.ids = nil
	return ids
}
