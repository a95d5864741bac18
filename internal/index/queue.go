package index

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// entry wraps a message with its insertion order for a stable tiebreak.
type entry struct {
	msg   message
	order uint64
}

type messageHeap []entry

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	pi, pj := h[i].msg.priority(), h[j].msg.priority()
	if pi != pj {
		return pi < pj
	}
	return h[i].order < h[j].order
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}

// priorityQueue is an unbounded, concurrency-safe priority queue of messages.
// Blocking takes wait on a one-slot notify channel so they can also select on a context.
type priorityQueue struct {
	mu     sync.Mutex
	h      messageHeap
	order  uint64
	checks int
	notify chan struct{}
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{notify: make(chan struct{}, 1)}
}

// Put adds a message. It never blocks.
func (q *priorityQueue) Put(m message) {
	q.mu.Lock()
	q.pushLocked(m)
	q.mu.Unlock()
	q.signal()
}

// PutCommitCheck queues a commit check unless one is already waiting.
// It reports whether a check was added.
func (q *priorityQueue) PutCommitCheck() bool {
	q.mu.Lock()
	if q.checks > 0 {
		q.mu.Unlock()
		return false
	}
	q.pushLocked(commitCheck)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *priorityQueue) pushLocked(m message) {
	q.order++
	if m.isCommitCheck() {
		q.checks++
	}
	heap.Push(&q.h, entry{msg: m, order: q.order})
}

func (q *priorityQueue) popLocked() message {
	m := heap.Pop(&q.h).(entry).msg
	if m.isCommitCheck() {
		q.checks--
	}
	return m
}

// TryTake removes the most urgent message without blocking.
func (q *priorityQueue) TryTake() (message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.h) == 0 {
		return message{}, false
	}
	m := q.popLocked()
	if len(q.h) > 0 {
		// pass the wakeup on to the next waiter
		q.signal()
	}
	return m, true
}

// Poll waits up to timeout for a message. A non-positive timeout waits until ctx is done.
// ok is false on timeout; err is set only when ctx ends the wait.
func (q *priorityQueue) Poll(ctx context.Context, timeout time.Duration) (m message, ok bool, err error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if m, ok := q.TryTake(); ok {
			return m, true, nil
		}
		select {
		case <-q.notify:
		case <-expired:
			return message{}, false, nil
		case <-ctx.Done():
			return message{}, false, ctx.Err()
		}
	}
}

// Take blocks until a message is available or ctx is done.
func (q *priorityQueue) Take(ctx context.Context) (message, error) {
	m, _, err := q.Poll(ctx, 0)
	return m, err
}

// Len returns the number of queued data messages. Commit checks are not work
// and are left out.
func (q *priorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h) - q.checks
}

// Drain removes and returns every queued message.
func (q *priorityQueue) Drain() []message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]message, 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, q.popLocked())
	}
	return out
}

func (q *priorityQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// boundedQueue is the fixed-capacity hand-off into the index stage.
// A full queue makes Put block, which is the backpressure on preprocessing.
type boundedQueue struct {
	ch chan message
}

func newBoundedQueue(capacity int) *boundedQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &boundedQueue{ch: make(chan message, capacity)}
}

// Offer adds a message only if there is room.
func (q *boundedQueue) Offer(m message) bool {
	select {
	case q.ch <- m:
		return true
	default:
		return false
	}
}

// Put blocks until there is room or ctx is done. A done ctx always fails,
// even when there is room.
func (q *boundedQueue) Put(ctx context.Context, m message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryTake removes the oldest message without blocking.
func (q *boundedQueue) TryTake() (message, bool) {
	select {
	case m := <-q.ch:
		return m, true
	default:
		return message{}, false
	}
}

// Poll waits up to timeout for a message.
func (q *boundedQueue) Poll(ctx context.Context, timeout time.Duration) (message, bool, error) {
	if m, ok := q.TryTake(); ok {
		return m, true, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-q.ch:
		return m, true, nil
	case <-timer.C:
		return message{}, false, nil
	case <-ctx.Done():
		return message{}, false, ctx.Err()
	}
}

// Len returns the number of queued messages.
func (q *boundedQueue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *boundedQueue) Cap() int { return cap(q.ch) }

// Drain removes and returns every queued message.
func (q *boundedQueue) Drain() []message {
	var out []message
	for {
		m, ok := q.TryTake()
		if !ok {
			return out
		}
		out = append(out, m)
	}
}
