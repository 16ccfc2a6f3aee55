package serial

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the inputs an operation saw, in execution order.
type recorder[T any] struct {
	mu    sync.Mutex
	calls []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, v)
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.calls))
	copy(out, r.calls)
	return out
}

func waitResult[Out any](t *testing.T, ch <-chan Result[Out]) Result[Out] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("result not delivered")
		return Result[Out]{}
	}
}

func TestSerializer_FIFO(t *testing.T) {
	rec := &recorder[int]{}
	s := New(func(_ context.Context, in int) (int, error) {
		rec.add(in)
		return in, nil
	})

	var chans []<-chan Result[int]
	for i := 1; i <= 5; i++ {
		chans = append(chans, s.Submit(i))
	}
	for i, ch := range chans {
		r := waitResult(t, ch)
		require.NoError(t, r.Err)
		assert.Equal(t, i+1, r.Value)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, rec.snapshot())
}

func TestSerializer_SingleFlight(t *testing.T) {
	const k = 5
	const sleep = 50 * time.Millisecond

	var running, maxRunning atomic.Int32
	starts := &recorder[time.Time]{}

	s := New(func(_ context.Context, in int) (int, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		starts.add(time.Now())
		time.Sleep(sleep)
		return in * 10, nil
	})

	var wg sync.WaitGroup
	results := make([]int, k)
	errs := make([]error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Do(context.Background(), i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning.Load())
	for i := 0; i < k; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, i*10, results[i], "each caller gets its own result")
	}

	ts := starts.snapshot()
	require.Len(t, ts, k)
	for i := 1; i < len(ts); i++ {
		assert.GreaterOrEqual(t, ts[i].Sub(ts[i-1]), sleep)
	}
}

// gatedOp blocks its first execution until release is closed, so tests can
// build up a queue behind it.
func gatedOp(rec *recorder[int], started chan<- struct{}, release <-chan struct{}) func(context.Context, int) (int, error) {
	var first atomic.Bool
	return func(_ context.Context, in int) (int, error) {
		if first.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		rec.add(in)
		return in, nil
	}
}

func TestSerializer_SortByAscending(t *testing.T) {
	rec := &recorder[int]{}
	started, release := make(chan struct{}), make(chan struct{})

	s := New(gatedOp(rec, started, release),
		WithSortBy[int, int](func(in int) int64 { return int64(in) }, Ascending),
	)

	first := s.Submit(100)
	<-started

	var chans []<-chan Result[int]
	for _, v := range []int{5, 3, 9, 1} {
		chans = append(chans, s.Submit(v))
	}
	close(release)

	waitResult(t, first)
	for _, ch := range chans {
		waitResult(t, ch)
	}

	assert.Equal(t, []int{100, 1, 3, 5, 9}, rec.snapshot(), "in-flight call is not reordered")
}

func TestSerializer_SortByDescending(t *testing.T) {
	rec := &recorder[int]{}
	started, release := make(chan struct{}), make(chan struct{})

	s := New(gatedOp(rec, started, release),
		WithSortBy[int, int](func(in int) int64 { return int64(in) }, Descending),
	)

	first := s.Submit(0)
	<-started

	var chans []<-chan Result[int]
	for _, v := range []int{5, 3, 9, 1} {
		chans = append(chans, s.Submit(v))
	}
	close(release)

	waitResult(t, first)
	for _, ch := range chans {
		waitResult(t, ch)
	}

	assert.Equal(t, []int{0, 9, 5, 3, 1}, rec.snapshot())
}

func TestSerializer_DebounceBatchMerge(t *testing.T) {
	rec := &recorder[[]int]{}
	s := New(
		func(_ context.Context, in []int) (int, error) {
			rec.add(in)
			return len(in), nil
		},
		WithDelay[[]int, int](100*time.Millisecond),
		WithBatch[[]int, int](func(acc, next []int) []int {
			return append(acc, next...)
		}),
	)

	var chans []<-chan Result[int]
	for i := 1; i <= 5; i++ {
		chans = append(chans, s.Submit([]int{i}))
	}

	for _, ch := range chans {
		r := waitResult(t, ch)
		require.NoError(t, r.Err)
		assert.Equal(t, 5, r.Value)
	}

	calls := rec.snapshot()
	require.Len(t, calls, 1, "exactly one underlying execution")
	assert.Equal(t, []int{1, 2, 3, 4, 5}, calls[0])
}

func TestSerializer_BatchMergesBehindInFlight(t *testing.T) {
	rec := &recorder[[]int]{}
	started, release := make(chan struct{}), make(chan struct{})
	var first atomic.Bool

	s := New(
		func(_ context.Context, in []int) (int, error) {
			if first.CompareAndSwap(false, true) {
				close(started)
				<-release
			}
			rec.add(in)
			return len(in), nil
		},
		WithBatch[[]int, int](func(acc, next []int) []int {
			return append(acc, next...)
		}),
	)

	head := s.Submit([]int{0})
	<-started

	var chans []<-chan Result[int]
	for i := 1; i <= 3; i++ {
		chans = append(chans, s.Submit([]int{i}))
	}
	assert.Equal(t, 1, s.Len())
	close(release)

	assert.Equal(t, 1, waitResult(t, head).Value)
	for _, ch := range chans {
		assert.Equal(t, 3, waitResult(t, ch).Value)
	}
	assert.Equal(t, [][]int{{0}, {1, 2, 3}}, rec.snapshot())
}

func TestSerializer_DelayPostponesFirstCall(t *testing.T) {
	const delay = 80 * time.Millisecond
	var ranAt atomic.Int64

	s := New(
		func(_ context.Context, in int) (int, error) {
			ranAt.Store(time.Now().UnixNano())
			return in, nil
		},
		WithDelay[int, int](delay),
	)

	submitted := time.Now()
	waitResult(t, s.Submit(1))

	assert.GreaterOrEqual(t, time.Duration(ranAt.Load()-submitted.UnixNano()), delay)
}

type upload struct {
	DocID   string
	Payload string
}

func TestSerializer_InputTransformerPassesForward(t *testing.T) {
	rec := &recorder[upload]{}
	s := New(
		func(_ context.Context, in upload) (string, error) {
			rec.add(in)
			if in.DocID == "" {
				return "doc-1", nil
			}
			return in.DocID, nil
		},
		WithInputTransformer[upload, string](func(_ context.Context, next upload, prev string) (upload, error) {
			if prev != "" {
				next.DocID = prev
			}
			return next, nil
		}),
	)

	var chans []<-chan Result[string]
	for _, p := range []string{"a", "b", "c"} {
		chans = append(chans, s.Submit(upload{Payload: p}))
	}
	for _, ch := range chans {
		r := waitResult(t, ch)
		require.NoError(t, r.Err)
		assert.Equal(t, "doc-1", r.Value)
	}

	calls := rec.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, "", calls[0].DocID, "first call has no previous result")
	assert.Equal(t, "doc-1", calls[1].DocID)
	assert.Equal(t, "doc-1", calls[2].DocID)
}

func TestSerializer_FailureIsolation(t *testing.T) {
	errBoom := errors.New("boom")
	s := New(func(_ context.Context, in int) (int, error) {
		switch in {
		case 2:
			return 0, errBoom
		case 3:
			panic("kaboom")
		}
		return in, nil
	})

	chans := []<-chan Result[int]{s.Submit(1), s.Submit(2), s.Submit(3), s.Submit(4)}

	r1 := waitResult(t, chans[0])
	require.NoError(t, r1.Err)
	assert.Equal(t, 1, r1.Value)

	r2 := waitResult(t, chans[1])
	assert.ErrorIs(t, r2.Err, errBoom)

	r3 := waitResult(t, chans[2])
	var pe *PanicError
	require.True(t, errors.As(r3.Err, &pe))
	assert.Equal(t, "kaboom", pe.Value)

	r4 := waitResult(t, chans[3])
	require.NoError(t, r4.Err)
	assert.Equal(t, 4, r4.Value)
}

func TestSerializer_FailedCallDoesNotReplacePreviousResult(t *testing.T) {
	rec := &recorder[int]{}
	s := New(
		func(_ context.Context, in int) (int, error) {
			rec.add(in)
			if in < 0 {
				return 0, errors.New("negative")
			}
			return in, nil
		},
		WithInputTransformer[int, int](func(_ context.Context, next, prev int) (int, error) {
			if next == 0 {
				return prev, nil
			}
			return next, nil
		}),
	)

	waitResult(t, s.Submit(7))
	assert.Error(t, waitResult(t, s.Submit(-1)).Err)
	r := waitResult(t, s.Submit(0))
	require.NoError(t, r.Err)
	assert.Equal(t, 7, r.Value)
}

func TestSerializer_TransformerErrorFailsOnlyThatCall(t *testing.T) {
	s := New(
		func(_ context.Context, in int) (int, error) { return in, nil },
		WithInputTransformer[int, int](func(_ context.Context, next, _ int) (int, error) {
			if next == 2 {
				return 0, errors.New("cannot amend")
			}
			return next, nil
		}),
	)

	chans := []<-chan Result[int]{s.Submit(1), s.Submit(2), s.Submit(3)}
	assert.NoError(t, waitResult(t, chans[0]).Err)
	assert.ErrorContains(t, waitResult(t, chans[1]).Err, "transform input")
	assert.Equal(t, 3, waitResult(t, chans[2]).Value)
}

func TestSerializer_DoContextCancelStopsWaitingOnly(t *testing.T) {
	rec := &recorder[int]{}
	started, release := make(chan struct{}), make(chan struct{})
	s := New(gatedOp(rec, started, release))

	head := s.Submit(1)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Do(ctx, 2)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	waitResult(t, head)
	require.NoError(t, s.Wait(context.Background()))

	assert.Equal(t, []int{1, 2}, rec.snapshot(), "abandoned call still runs")
}

func TestSerializer_Close(t *testing.T) {
	s := New(func(_ context.Context, in int) (int, error) { return in, nil })
	require.NoError(t, waitResult(t, s.Submit(1)).Err)

	s.Close()
	assert.ErrorIs(t, waitResult(t, s.Submit(2)).Err, ErrClosed)
}

func TestSerializer_StateReturnsToIdle(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	s := New(gatedOp(&recorder[int]{}, started, release))
	assert.Equal(t, StateIdle, s.State())

	ch := s.Submit(1)
	<-started
	assert.Equal(t, StateDraining, s.State())

	close(release)
	waitResult(t, ch)
	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, "idle", s.State().String())
}
