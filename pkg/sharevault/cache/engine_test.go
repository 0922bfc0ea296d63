package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sharevault/pkg/sharevault/cache"
)

func newEngine(t *testing.T) *cache.Engine {
	t.Helper()
	e, err := cache.NewEngine(cache.DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestNewEngineValidatesConfig(t *testing.T) {
	_, err := cache.NewEngine(cache.Config{Capacity: 0, NumShards: 1, EvictionPercentage: 10})
	assert.Error(t, err)

	_, err = cache.NewEngine(cache.Config{Capacity: 10, NumShards: 1, EvictionPercentage: 0})
	assert.Error(t, err)
}

func TestGetOrComputeMemoizes(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	policy := cache.Policy{Name: "test", TTL: time.Minute}

	var calls atomic.Int32
	compute := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}

	for i := 0; i < 5; i++ {
		v, err := cache.GetOrCompute(ctx, e, "k", policy, compute)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	}
	assert.Equal(t, int32(1), calls.Load())

	stats := e.Stats()
	assert.Equal(t, int64(5), stats.Lookups)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(4), stats.Hits)
	assert.Equal(t, 1, stats.Entries)
}

func TestGetOrComputeRecomputesAfterExpiry(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	policy := cache.Policy{Name: "short", TTL: 100 * time.Millisecond}

	var calls atomic.Int32
	compute := func(ctx context.Context) (int32, error) {
		return calls.Add(1), nil
	}

	v, err := cache.GetOrCompute(ctx, e, "k", policy, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)

	time.Sleep(150 * time.Millisecond)

	v, err = cache.GetOrCompute(ctx, e, "k", policy, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
}

func TestGetOrComputeSingleFlightOnExpiredEntry(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	policy := cache.Policy{Name: "categories", TTL: 200 * time.Millisecond}

	var calls atomic.Int32
	compute := func(ctx context.Context) ([]string, error) {
		n := calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		if n == 1 {
			return []string{"stale"}, nil
		}
		return []string{"fresh"}, nil
	}

	_, err := cache.GetOrCompute(ctx, e, "categories", policy, compute)
	require.NoError(t, err)
	time.Sleep(250 * time.Millisecond)

	const callers = 20
	results := make([][]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = cache.GetOrCompute(ctx, e, "categories", policy, compute)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load(), "expired entry must be recomputed exactly once")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"fresh"}, results[i])
	}
}

func TestGetOrComputeDoesNotStoreErrors(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	policy := cache.Policy{Name: "test", TTL: time.Minute}
	boom := errors.New("boom")

	_, err := cache.GetOrCompute(ctx, e, "k", policy, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := cache.GetOrCompute(ctx, e, "k", policy, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGetOrComputeWithoutTTLOrEngine(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	compute := func(ctx context.Context) (int32, error) {
		return calls.Add(1), nil
	}

	e := newEngine(t)
	noMemo := cache.Policy{Name: "robots", SharedMaxAge: time.Hour}
	_, _ = cache.GetOrCompute(ctx, e, "k", noMemo, compute)
	_, _ = cache.GetOrCompute(ctx, e, "k", noMemo, compute)
	assert.Equal(t, int32(2), calls.Load())

	_, _ = cache.GetOrCompute(ctx, nil, "k", cache.Policy{Name: "x", TTL: time.Minute}, compute)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoliciesNamespaceKeys(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	a, err := cache.GetOrCompute(ctx, e, "same", cache.Policy{Name: "a", TTL: time.Minute}, func(ctx context.Context) (string, error) {
		return "from a", nil
	})
	require.NoError(t, err)
	b, err := cache.GetOrCompute(ctx, e, "same", cache.Policy{Name: "b", TTL: time.Minute}, func(ctx context.Context) (string, error) {
		return "from b", nil
	})
	require.NoError(t, err)

	assert.Equal(t, "from a", a)
	assert.Equal(t, "from b", b)
}

func TestInvalidateByTag(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	posts := cache.Policy{Name: "posts", TTL: time.Minute, Tags: []string{cache.TagPosts}}
	categories := cache.Policy{Name: "categories", TTL: time.Hour, Tags: []string{cache.TagCategories}}

	var postCalls, categoryCalls atomic.Int32
	loadPosts := func(ctx context.Context) (int32, error) { return postCalls.Add(1), nil }
	loadCategories := func(ctx context.Context) (int32, error) { return categoryCalls.Add(1), nil }

	_, _ = cache.GetOrCompute(ctx, e, cache.PostsPageKey(0, 12), posts, loadPosts)
	_, _ = cache.GetOrCompute(ctx, e, cache.PostsPageKey(12, 12), posts, loadPosts)
	_, _ = cache.GetOrCompute(ctx, e, cache.CategoriesKey, categories, loadCategories)

	dropped := e.Invalidate(ctx, cache.TagPosts)
	assert.Equal(t, 2, dropped)

	_, _ = cache.GetOrCompute(ctx, e, cache.PostsPageKey(0, 12), posts, loadPosts)
	_, _ = cache.GetOrCompute(ctx, e, cache.CategoriesKey, categories, loadCategories)
	assert.Equal(t, int32(3), postCalls.Load())
	assert.Equal(t, int32(1), categoryCalls.Load())

	assert.Equal(t, 0, e.Invalidate(ctx, "unknown"))
	assert.Equal(t, int64(2), e.Stats().Invalidations)
}

func TestInvalidateDuringComputeDiscardsResult(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	policy := cache.Policy{Name: "categories", TTL: time.Hour, Tags: []string{cache.TagCategories}}

	var version atomic.Int32
	version.Store(1)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	compute := func(ctx context.Context) (int32, error) {
		v := version.Load()
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return v, nil
	}

	done := make(chan int32)
	go func() {
		v, err := cache.GetOrCompute(ctx, e, cache.CategoriesKey, policy, compute)
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	version.Store(2)
	assert.Equal(t, 0, e.Invalidate(ctx, cache.TagCategories))
	close(release)
	assert.Equal(t, int32(1), <-done)

	v, err := cache.GetOrCompute(ctx, e, cache.CategoriesKey, policy, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
	assert.Equal(t, int32(2), calls.Load())

	v, err = cache.GetOrCompute(ctx, e, cache.CategoriesKey, policy, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidateExtraTags(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	policy := cache.Policy{Name: "post", TTL: time.Minute}

	var calls atomic.Int32
	load := func(ctx context.Context) (int32, error) { return calls.Add(1), nil }

	_, _ = cache.GetOrCompute(ctx, e, cache.PostKey("hello"), policy, load, cache.PostTag("hello"))
	_, _ = cache.GetOrCompute(ctx, e, cache.PostKey("other"), policy, load, cache.PostTag("other"))

	assert.Equal(t, 1, e.Invalidate(ctx, cache.PostTag("hello")))

	_, _ = cache.GetOrCompute(ctx, e, cache.PostKey("hello"), policy, load, cache.PostTag("hello"))
	_, _ = cache.GetOrCompute(ctx, e, cache.PostKey("other"), policy, load, cache.PostTag("other"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNilEngineIsSafe(t *testing.T) {
	var e *cache.Engine
	assert.Equal(t, 0, e.Invalidate(context.Background(), cache.TagPosts))
	assert.Equal(t, cache.Stats{}, e.Stats())
}
