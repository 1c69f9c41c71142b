package loader_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/burugo/tenantdb/common"
	"github.com/burugo/tenantdb/internal/loader"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingFetcher records every fetch call and the keys it received.
type countingFetcher struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	block chan struct{}
}

func (f *countingFetcher) fetch(ctx context.Context, keys []string) (map[string]string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), keys...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if k == "missing" {
			continue
		}
		out[k] = "value-" + k
	}
	return out, nil
}

func (f *countingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newLoader(f *countingFetcher, wait time.Duration, maxBatch int) *loader.Loader[string, string] {
	return loader.New(loader.Config[string, string]{Fetch: f.fetch, Wait: wait, MaxBatch: maxBatch})
}

func TestLoader_BatchesDistinctKeysIntoOneFetch(t *testing.T) {
	f := &countingFetcher{}
	l := newLoader(f, time.Hour, 0)
	ctx := context.Background()

	thunks := []loader.Thunk[string]{
		l.LoadThunk(ctx, "a"),
		l.LoadThunk(ctx, "b"),
		l.LoadThunk(ctx, "a"),
		l.LoadThunk(ctx, "c"),
	}
	l.Flush()

	for i, want := range []string{"value-a", "value-b", "value-a", "value-c"} {
		got, err := thunks[i](ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	require.Equal(t, 1, f.callCount())
	assert.Equal(t, []string{"a", "b", "c"}, f.calls[0], "keys keep first-request order without duplicates")
}

func TestLoader_ConcurrentLoadsShareOneFetch(t *testing.T) {
	const n = 20
	f := &countingFetcher{}
	// The window never closes on time; the batch flushes once it holds n keys.
	l := newLoader(f, time.Hour, n)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Load(ctx, fmt.Sprintf("k%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("value-k%d", i), results[i])
	}
	require.Equal(t, 1, f.callCount())
	assert.Len(t, f.calls[0], n)
}

func TestLoader_CachesUntilClearAll(t *testing.T) {
	f := &countingFetcher{}
	l := newLoader(f, time.Millisecond, 0)
	ctx := context.Background()

	v, err := l.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "value-a", v)

	v, err = l.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "value-a", v)
	assert.Equal(t, 1, f.callCount(), "second load is served from cache")

	l.ClearAll()
	_, err = l.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount(), "ClearAll forces a new fetch")
}

func TestLoader_AbsenceIsCached(t *testing.T) {
	f := &countingFetcher{}
	l := newLoader(f, time.Millisecond, 0)
	ctx := context.Background()

	_, err := l.Load(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = l.Load(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 1, f.callCount())
}

func TestLoader_FetchErrorIsSharedButNotCached(t *testing.T) {
	boom := errors.New("boom")
	f := &countingFetcher{err: boom}
	l := newLoader(f, time.Hour, 0)
	ctx := context.Background()

	t1 := l.LoadThunk(ctx, "a")
	t2 := l.LoadThunk(ctx, "a")
	l.Flush()
	_, err1 := t1(ctx)
	_, err2 := t2(ctx)
	assert.ErrorIs(t, err1, boom)
	assert.ErrorIs(t, err2, boom)

	f.err = nil
	retry := l.LoadThunk(ctx, "a")
	l.Flush()
	v, err := retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, "value-a", v)
	assert.Equal(t, 2, f.callCount())
}

func TestLoader_ClearAllWhilePending(t *testing.T) {
	f := &countingFetcher{}
	l := newLoader(f, time.Hour, 0)
	ctx := context.Background()

	before := l.LoadThunk(ctx, "a")
	l.ClearAll()
	after := l.LoadThunk(ctx, "a")
	l.Flush()

	v1, err := before(ctx)
	require.NoError(t, err)
	v2, err := after(ctx)
	require.NoError(t, err)
	assert.Equal(t, "value-a", v1)
	assert.Equal(t, "value-a", v2)
	require.Equal(t, 1, f.callCount())
	assert.Equal(t, []string{"a"}, f.calls[0])
}

func TestLoader_CallerMayAbandonWait(t *testing.T) {
	f := &countingFetcher{block: make(chan struct{})}
	l := newLoader(f, time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	thunk := l.LoadThunk(ctx, "a")
	cancel()
	_, err := thunk(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(f.block)
	v, err := thunk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "value-a", v, "the fetch completes even after the first caller gave up")
}

func TestLoader_FetchPanicBecomesError(t *testing.T) {
	l := loader.New(loader.Config[string, string]{
		Fetch: func(ctx context.Context, keys []string) (map[string]string, error) {
			panic("bad fetch")
		},
		Wait: time.Hour,
	})
	thunk := l.LoadThunk(context.Background(), "a")
	l.Flush()
	_, err := thunk(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad fetch")
}
