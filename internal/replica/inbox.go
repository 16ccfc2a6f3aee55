package replica

import (
	"sync"

	"github.com/roach88/cellsync/internal/pubsub"
)

// inbox is a thread-safe FIFO of received envelopes.
//
// The inbox is unbounded so that channel delivery never blocks on a slow
// replica. The signal channel enables context-aware waiting in Run.
type inbox struct {
	mu     sync.Mutex
	items  []pubsub.Envelope
	closed bool
	signal chan struct{} // buffered, size 1
}

func newInbox() *inbox {
	return &inbox{
		items:  make([]pubsub.Envelope, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends env. Returns false if the inbox is closed.
func (q *inbox) Enqueue(env pubsub.Envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, env)

	// Non-blocking; the buffer of 1 coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front envelope without blocking.
func (q *inbox) TryDequeue() (pubsub.Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return pubsub.Envelope{}, false
	}

	env := q.items[0]
	q.items[0] = pubsub.Envelope{} // release cell slices for GC

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return env, true
}

// Wait returns a channel that signals when envelopes may be available.
// It is closed by Close.
func (q *inbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued envelopes.
func (q *inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close was called.
func (q *inbox) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further envelopes and wakes waiters.
func (q *inbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
