package session

import "sync"

// entryQueue is the FIFO of queued requests.
//
// The head stays in place while the worker retries it; it is only removed
// by PopFront after delivery, so Front followed by PopFront never reorders.
// Signaling uses a buffered channel so the worker can wait on it alongside
// ctx.Done().
type entryQueue struct {
	mu      sync.Mutex
	entries []*entry
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newEntryQueue() *entryQueue {
	return &entryQueue{
		entries: make([]*entry, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns the new length, or -1 if the queue is closed.
func (q *entryQueue) Enqueue(e *entry) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return -1
	}
	q.entries = append(q.entries, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return len(q.entries)
}

// Front returns the head without removing it.
func (q *entryQueue) Front() (*entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil, false
	}
	return q.entries[0], true
}

// PopFront removes the head and returns the new length.
func (q *entryQueue) PopFront() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return 0
	}
	q.entries[0] = nil
	if len(q.entries) == 1 {
		q.entries = q.entries[:0]
	} else {
		q.entries = q.entries[1:]
	}
	return len(q.entries)
}

// Wait returns a channel that fires when entries may be available. It is
// closed once the queue is closed.
func (q *entryQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of entries, including one being retried.
func (q *entryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns the pending entries in order.
func (q *entryQueue) Snapshot() []*entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Close stops further enqueues and wakes the worker.
func (q *entryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *entryQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
