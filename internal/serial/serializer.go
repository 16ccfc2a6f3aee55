package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrClosed is delivered to calls submitted after Close.
var ErrClosed = errors.New("serializer closed")

// State is the serializer's drain state.
type State int

const (
	// StateIdle means no execution is running or scheduled.
	StateIdle State = iota
	// StateDraining means a drain goroutine owns the queue.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the outcome delivered to one caller.
type Result[Out any] struct {
	Value Out
	Err   error
}

// PanicError wraps a panic recovered from the operation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// entry is a pending execution. Batched calls share one entry.
type entry[In, Out any] struct {
	input   In
	seq     uint64
	waiters []chan Result[Out]
}

// Serializer runs its operation one call at a time.
//
// Thread-safety: Submit, Do, Close, Wait, and the accessors are safe from any
// goroutine. The operation itself only ever runs on the drain goroutine.
type Serializer[In, Out any] struct {
	op   func(ctx context.Context, in In) (Out, error)
	opts options[In, Out]

	mu       sync.Mutex
	state    State
	queue    []*entry[In, Out]
	seq      uint64
	deadline time.Time // end of the debounce window while one is open
	inWindow bool
	prev     Out
	hasPrev  bool
	closed   bool
	idle     chan struct{} // closed whenever state is StateIdle
}

// New creates a Serializer around op.
func New[In, Out any](op func(ctx context.Context, in In) (Out, error), opts ...Option[In, Out]) *Serializer[In, Out] {
	o := options[In, Out]{
		ctx:    context.Background(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	idle := make(chan struct{})
	close(idle)

	return &Serializer[In, Out]{
		op:    op,
		opts:  o,
		state: StateIdle,
		idle:  idle,
	}
}

// Submit queues in and returns a channel that receives exactly one Result.
// The channel is buffered; callers may abandon it.
func (s *Serializer[In, Out]) Submit(in In) <-chan Result[Out] {
	ch := make(chan Result[Out], 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		ch <- Result[Out]{Err: ErrClosed}
		return ch
	}

	if s.opts.merge != nil && len(s.queue) > 0 {
		pending := s.queue[len(s.queue)-1]
		pending.input = s.opts.merge(pending.input, in)
		pending.waiters = append(pending.waiters, ch)
		s.opts.logger.Debug("serializer batched call", "waiters", len(pending.waiters))
	} else {
		s.seq++
		s.queue = append(s.queue, &entry[In, Out]{
			input:   in,
			seq:     s.seq,
			waiters: []chan Result[Out]{ch},
		})
	}

	switch {
	case s.state == StateIdle:
		s.state = StateDraining
		s.idle = make(chan struct{})
		if s.opts.delay > 0 {
			s.inWindow = true
			s.deadline = time.Now().Add(s.opts.delay)
		}
		go s.drain()
	case s.inWindow:
		// A call inside the debounce window restarts it.
		s.deadline = time.Now().Add(s.opts.delay)
	}

	return ch
}

// Do submits in and waits for its result. Cancelling ctx stops the wait but
// not the queued or running execution.
func (s *Serializer[In, Out]) Do(ctx context.Context, in In) (Out, error) {
	ch := s.Submit(in)
	select {
	case <-ctx.Done():
		var zero Out
		return zero, ctx.Err()
	case r := <-ch:
		return r.Value, r.Err
	}
}

// Wait blocks until the queue is empty and nothing is running.
func (s *Serializer[In, Out]) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		return nil
	}
}

// Close rejects further calls. Already queued calls still run.
func (s *Serializer[In, Out]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// State returns the current drain state.
func (s *Serializer[In, Out]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of pending, not yet running entries.
func (s *Serializer[In, Out]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// drain owns the queue until it is empty, then returns the serializer to
// StateIdle. Exactly one drain goroutine exists while StateDraining.
func (s *Serializer[In, Out]) drain() {
	s.waitWindow()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.state = StateIdle
			close(s.idle)
			s.mu.Unlock()
			return
		}

		if s.opts.sortKey != nil {
			s.sortQueue()
		}
		e := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		prev, hasPrev := s.prev, s.hasPrev
		s.mu.Unlock()

		out, err := s.run(e.input, prev, hasPrev)

		s.mu.Lock()
		if err == nil {
			s.prev = out
			s.hasPrev = true
		}
		s.mu.Unlock()

		if err != nil {
			s.opts.logger.Warn("serialized operation failed", "waiters", len(e.waiters), "error", err)
		}
		for _, w := range e.waiters {
			w <- Result[Out]{Value: out, Err: err}
		}
	}
}

// waitWindow sleeps until the debounce deadline stops moving.
func (s *Serializer[In, Out]) waitWindow() {
	for {
		s.mu.Lock()
		if !s.inWindow {
			s.mu.Unlock()
			return
		}
		wait := time.Until(s.deadline)
		if wait <= 0 {
			s.inWindow = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		time.Sleep(wait)
	}
}

// sortQueue orders pending entries by key, ties by arrival. Caller holds mu.
func (s *Serializer[In, Out]) sortQueue() {
	key := s.opts.sortKey
	desc := s.opts.direction == Descending
	sort.SliceStable(s.queue, func(i, j int) bool {
		ki, kj := key(s.queue[i].input), key(s.queue[j].input)
		if ki == kj {
			return s.queue[i].seq < s.queue[j].seq
		}
		if desc {
			return ki > kj
		}
		return ki < kj
	})
}

// run executes one entry, converting a panic into a PanicError.
func (s *Serializer[In, Out]) run(in In, prev Out, hasPrev bool) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero Out
			out, err = zero, &PanicError{Value: r}
		}
	}()

	ctx := s.opts.ctx
	if s.opts.transform != nil && hasPrev {
		in, err = s.opts.transform(ctx, in, prev)
		if err != nil {
			var zero Out
			return zero, fmt.Errorf("transform input: %w", err)
		}
	}

	return s.op(ctx, in)
}
