package serial

import (
	"context"
	"log/slog"
	"time"
)

// Direction orders the pending queue when a sort key is configured.
type Direction int

const (
	// Ascending runs the smallest key first.
	Ascending Direction = iota
	// Descending runs the largest key first.
	Descending
)

type options[In, Out any] struct {
	delay     time.Duration
	sortKey   func(In) int64
	direction Direction
	merge     func(acc, next In) In
	transform func(ctx context.Context, next In, prev Out) (In, error)
	ctx       context.Context
	logger    *slog.Logger
}

// Option configures a Serializer.
type Option[In, Out any] func(*options[In, Out])

// WithDelay sets the debounce window before the first call of a burst runs.
func WithDelay[In, Out any](d time.Duration) Option[In, Out] {
	return func(o *options[In, Out]) {
		o.delay = d
	}
}

// WithSortBy reorders pending calls by key before each dequeue.
// Calls with equal keys keep arrival order.
func WithSortBy[In, Out any](key func(In) int64, dir Direction) Option[In, Out] {
	return func(o *options[In, Out]) {
		o.sortKey = key
		o.direction = dir
	}
}

// WithBatch merges each new call into the pending entry with merge.
// merge receives the accumulated input first and the new input second.
func WithBatch[In, Out any](merge func(acc, next In) In) Option[In, Out] {
	return func(o *options[In, Out]) {
		o.merge = merge
	}
}

// WithInputTransformer amends each input with the previous successful result.
// It is not called before the first successful execution.
func WithInputTransformer[In, Out any](fn func(ctx context.Context, next In, prev Out) (In, error)) Option[In, Out] {
	return func(o *options[In, Out]) {
		o.transform = fn
	}
}

// WithContext sets the context passed to the operation. Defaults to
// context.Background().
func WithContext[In, Out any](ctx context.Context) Option[In, Out] {
	return func(o *options[In, Out]) {
		o.ctx = ctx
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger[In, Out any](l *slog.Logger) Option[In, Out] {
	return func(o *options[In, Out]) {
		o.logger = l
	}
}
