// Package loader batches and caches point lookups by key.
//
// Keys requested during one batch window are fetched with a single call.
// Results, including absence, are cached until cleared. Requesting the same key
// again returns the cached or pending result without another fetch.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/burugo/tenantdb/common"
)

// DefaultWait is the batch window used when Config.Wait is zero.
const DefaultWait = time.Millisecond

// FetchFunc resolves keys in one call. Keys missing from the returned map
// resolve to common.ErrNotFound.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Config configures a Loader.
type Config[K comparable, V any] struct {
	Fetch FetchFunc[K, V]
	// Wait is how long a batch stays open after its first key.
	Wait time.Duration
	// MaxBatch flushes a batch as soon as it holds this many keys. Zero means unbounded.
	MaxBatch int
}

// Thunk waits for a result requested through LoadThunk.
type Thunk[V any] func(ctx context.Context) (V, error)

// Loader is a request-scoped batching cache. It is safe for concurrent use.
type Loader[K comparable, V any] struct {
	fetch    FetchFunc[K, V]
	wait     time.Duration
	maxBatch int

	mu    sync.Mutex
	cache map[K]*result[V]
	batch *batch[K, V]
}

type result[V any] struct {
	done  chan struct{}
	value V
	err   error
}

type batch[K comparable, V any] struct {
	ctx     context.Context
	keys    []K // first-request order, no duplicates
	entries map[K][]*result[V]
	timer   *time.Timer
}

// New creates a Loader.
func New[K comparable, V any](cfg Config[K, V]) *Loader[K, V] {
	wait := cfg.Wait
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Loader[K, V]{
		fetch:    cfg.Fetch,
		wait:     wait,
		maxBatch: cfg.MaxBatch,
		cache:    make(map[K]*result[V]),
	}
}

// Load returns the value for key, joining the current batch on a cache miss.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	return l.LoadThunk(ctx, key)(ctx)
}

// LoadThunk registers key without blocking and returns a Thunk for its result.
// The fetch runs detached from ctx cancellation: callers may stop waiting but
// the batch still completes for everyone else.
func (l *Loader[K, V]) LoadThunk(ctx context.Context, key K) Thunk[V] {
	l.mu.Lock()
	if r, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return r.wait
	}
	r := &result[V]{done: make(chan struct{})}
	l.cache[key] = r

	b := l.batch
	if b == nil {
		b = &batch[K, V]{
			ctx:     context.WithoutCancel(ctx),
			entries: make(map[K][]*result[V]),
		}
		l.batch = b
		b.timer = time.AfterFunc(l.wait, func() { l.flushBatch(b) })
	}
	if _, seen := b.entries[key]; !seen {
		b.keys = append(b.keys, key)
	}
	b.entries[key] = append(b.entries[key], r)

	full := l.maxBatch > 0 && len(b.keys) >= l.maxBatch
	if full {
		l.detachLocked(b)
	}
	l.mu.Unlock()

	if full {
		go l.dispatch(b)
	}
	return r.wait
}

// Flush closes the current batch window and fetches it before returning.
func (l *Loader[K, V]) Flush() {
	l.mu.Lock()
	b := l.batch
	if b != nil {
		l.detachLocked(b)
	}
	l.mu.Unlock()
	if b != nil {
		l.dispatch(b)
	}
}

// Clear drops the cached result for key.
func (l *Loader[K, V]) Clear(key K) {
	l.mu.Lock()
	delete(l.cache, key)
	l.mu.Unlock()
}

// ClearAll drops every cached result, pending ones included. Callers already
// waiting on a pending result still receive it; later loads fetch afresh.
func (l *Loader[K, V]) ClearAll() {
	l.mu.Lock()
	l.cache = make(map[K]*result[V])
	l.mu.Unlock()
}

func (l *Loader[K, V]) flushBatch(b *batch[K, V]) {
	l.mu.Lock()
	if l.batch != b {
		l.mu.Unlock()
		return
	}
	l.detachLocked(b)
	l.mu.Unlock()
	l.dispatch(b)
}

func (l *Loader[K, V]) detachLocked(b *batch[K, V]) {
	if l.batch == b {
		l.batch = nil
	}
	b.timer.Stop()
}

func (l *Loader[K, V]) dispatch(b *batch[K, V]) {
	values, err := l.safeFetch(b.ctx, b.keys)

	if err != nil {
		// Failures are shared by the batch but not cached.
		l.mu.Lock()
		for key, rs := range b.entries {
			for _, r := range rs {
				if cur, ok := l.cache[key]; ok && cur == r {
					delete(l.cache, key)
				}
			}
		}
		l.mu.Unlock()
	}

	for key, rs := range b.entries {
		for _, r := range rs {
			switch {
			case err != nil:
				r.err = err
			default:
				v, ok := values[key]
				if ok {
					r.value = v
				} else {
					r.err = common.ErrNotFound
				}
			}
			close(r.done)
		}
	}
}

func (l *Loader[K, V]) safeFetch(ctx context.Context, keys []K) (values map[K]V, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("loader: fetch panicked: %v", p)
		}
	}()
	return l.fetch(ctx, keys)
}

func (r *result[V]) wait(ctx context.Context) (V, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
