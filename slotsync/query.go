package slotsync

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"vditaxi/clock"
)

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("slotsync: closed")

// Snapshot is the last applied result of a query. Data is shared with
// other readers and must not be modified.
type Snapshot[T any] struct {
	Data      T
	FetchedAt time.Time // zero until the first successful fetch
	Loading   bool
	// Stale is set by a push hint and cleared by the next applied fetch.
	Stale bool
	// Err is the last background failure, cleared by a successful fetch.
	Err error
}

// query caches one collection. Concurrent refreshes of the same
// generation share a single fetch. Invalidate starts a new generation;
// results of older generations are returned to their callers but never
// applied.
type query[T any] struct {
	name     string
	fetch    func(context.Context) (T, error)
	clock    clock.Clock
	onApply  func(T)
	onChange func()

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group
	wg     sync.WaitGroup

	mu       sync.Mutex
	gen      uint64
	inflight int
	closed   bool
	snap     Snapshot[T]
}

func newQuery[T any](name string, clk clock.Clock, fetch func(context.Context) (T, error)) *query[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &query[T]{name: name, fetch: fetch, clock: clk, ctx: ctx, cancel: cancel}
}

// Refresh returns the result of the fetch for the current generation,
// starting one only if none is in flight. ctx bounds the wait, not the
// shared fetch.
func (q *query[T]) Refresh(ctx context.Context) (T, error) {
	var zero T
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return zero, ErrClosed
	}
	gen := q.gen
	q.mu.Unlock()

	ch := q.group.DoChan(q.name+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		return q.run(gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Invalidate makes every fetch already in flight stale.
func (q *query[T]) Invalidate() {
	q.mu.Lock()
	q.gen++
	q.mu.Unlock()
}

// Reload is Invalidate followed by Refresh.
func (q *query[T]) Reload(ctx context.Context) (T, error) {
	q.Invalidate()
	return q.Refresh(ctx)
}

// MarkStale flags the snapshot without dropping in-flight fetches.
func (q *query[T]) MarkStale() {
	q.mu.Lock()
	q.snap.Stale = true
	q.mu.Unlock()
}

func (q *query[T]) Snapshot() Snapshot[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snap
}

func (q *query[T]) run(gen uint64) (any, error) {
	var zero T
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return zero, ErrClosed
	}
	q.inflight++
	q.wg.Add(1)
	q.snap.Loading = true
	q.mu.Unlock()
	defer q.wg.Done()
	q.changed()

	data, err := q.fetch(q.ctx)

	q.mu.Lock()
	q.inflight--
	if q.closed {
		q.mu.Unlock()
		return data, err
	}
	q.snap.Loading = q.inflight > 0
	applied := false
	switch {
	case gen != q.gen:
		// superseded by a later fetch
	case err != nil:
		q.snap.Err = err
	default:
		q.snap.Data = data
		q.snap.FetchedAt = q.clock.Now()
		q.snap.Stale = false
		q.snap.Err = nil
		applied = true
	}
	q.mu.Unlock()

	if applied && q.onApply != nil {
		q.onApply(data)
	}
	q.changed()
	return data, err
}

func (q *query[T]) changed() {
	if q.onChange != nil {
		q.onChange()
	}
}

// Close drops every later call and waits for fetches in flight, whose
// results are discarded.
func (q *query[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}
