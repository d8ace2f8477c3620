package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/common"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// memoryCache is an in-process ResponseCache.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]byte{}} }

func (c *memoryCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	raw, ok := c.data[key]
	c.mu.Unlock()
	if ok {
		return json.Unmarshal(raw, dest)
	}
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, _ = json.Marshal(v)
	c.mu.Lock()
	c.data[key] = raw
	c.mu.Unlock()
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, c.err
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return c.err
}

func (c *memoryCache) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n, c.err
}

// ---------------------------------------------------------------------------
// Cached
// ---------------------------------------------------------------------------

func TestCached_HitSkipsModel(t *testing.T) {
	fake := NewFake("Metformin")
	metrics := common.NewInMemoryIntelligenceMetrics()
	c := NewCached(fake, newMemoryCache(), time.Hour, nil, metrics)

	for i := 0; i < 3; i++ {
		out, err := c.Generate(context.Background(), "diabetes?")
		require.NoError(t, err)
		assert.Equal(t, "Metformin", out)
	}
	assert.Equal(t, 1, fake.Calls())

	hits, misses := metrics.CacheCounts()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCached_DistinctPromptsDistinctKeys(t *testing.T) {
	fake := NewFakeFunc(func(p string) (string, error) { return "answer:" + p, nil })
	c := NewCached(fake, newMemoryCache(), time.Hour, nil, nil)

	a, _ := c.Generate(context.Background(), "a")
	b, _ := c.Generate(context.Background(), "b")
	assert.Equal(t, "answer:a", a)
	assert.Equal(t, "answer:b", b)
	assert.NotEqual(t, CacheKey("fake", "a"), CacheKey("fake", "b"))
	assert.NotEqual(t, CacheKey("m1", "a"), CacheKey("m2", "a"))
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	calls := 0
	fake := NewFakeFunc(func(p string) (string, error) {
		calls++
		if calls == 1 {
			return "", stderrors.New("boom")
		}
		return "Albuterol", nil
	})
	c := NewCached(fake, newMemoryCache(), time.Hour, nil, nil)

	_, err := c.Generate(context.Background(), "asthma")
	assert.Error(t, err)
	out, err := c.Generate(context.Background(), "asthma")
	require.NoError(t, err)
	assert.Equal(t, "Albuterol", out)
}

func TestCached_CacheFailureFallsThrough(t *testing.T) {
	fake := NewFake("Allopurinol")
	cache := newMemoryCache()
	cache.err = errors.Wrap(stderrors.New("redis down"), errors.ErrCodeCacheError, "failed to get from cache")
	c := NewCached(fake, cache, time.Hour, nil, nil)

	out, err := c.Generate(context.Background(), "gout")
	require.NoError(t, err)
	assert.Equal(t, "Allopurinol", out)
	assert.Equal(t, 1, fake.Calls())
}

// sharedLoadCache runs the loader for the first caller only and hands its
// error to every later caller, the way a singleflight group does.
type sharedLoadCache struct {
	memoryCache
	mu     sync.Mutex
	done   bool
	result error
}

func (c *sharedLoadCache) GetOrSet(ctx context.Context, _ string, _ interface{}, _ time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		_, c.result = loader(ctx)
		c.done = true
	}
	return c.result
}

func TestCached_SharedLoadFailureReachesEveryCaller(t *testing.T) {
	fake := NewFakeFunc(func(string) (string, error) {
		return "", errors.ModelUnavailable(stderrors.New("connection refused"), "fake")
	})
	c := NewCached(fake, &sharedLoadCache{}, time.Hour, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), "asthma")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeModelUnavailable))
	}
	assert.Equal(t, 1, fake.Calls())
}

func TestCached_BlankAnswersAreNotCached(t *testing.T) {
	calls := 0
	fake := NewFakeFunc(func(string) (string, error) {
		calls++
		if calls == 1 {
			return "  ", nil
		}
		return "Colchicine", nil
	})
	metrics := common.NewInMemoryIntelligenceMetrics()
	c := NewCached(fake, newMemoryCache(), time.Hour, nil, metrics)

	out, err := c.Generate(context.Background(), "gout")
	require.NoError(t, err)
	assert.Equal(t, "  ", out)

	out, err = c.Generate(context.Background(), "gout")
	require.NoError(t, err)
	assert.Equal(t, "Colchicine", out)
	assert.Equal(t, 2, fake.Calls())

	_, misses := metrics.CacheCounts()
	assert.Equal(t, int64(2), misses)
}

func redisResponseCache(t *testing.T) redis.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewRedisCache(redis.NewClientFromUniversal(rdb, nil), nil, redis.WithoutJitter())
}

func TestCached_ForgetRefreshesOneAnswer(t *testing.T) {
	calls := 0
	fake := NewFakeFunc(func(p string) (string, error) {
		calls++
		return fmt.Sprintf("%s-v%d", p, calls), nil
	})
	c := NewCached(fake, redisResponseCache(t), time.Hour, nil, nil)
	ctx := context.Background()

	first, err := c.Generate(ctx, "asthma")
	require.NoError(t, err)
	_, err = c.Generate(ctx, "gout")
	require.NoError(t, err)

	forgotten, err := c.Forget(ctx, "asthma")
	require.NoError(t, err)
	assert.True(t, forgotten)
	forgotten, err = c.Forget(ctx, "lupus")
	require.NoError(t, err)
	assert.False(t, forgotten)

	again, err := c.Generate(ctx, "asthma")
	require.NoError(t, err)
	assert.NotEqual(t, first, again)
	cached, err := c.Generate(ctx, "gout")
	require.NoError(t, err)
	assert.Equal(t, "gout-v2", cached)
	assert.Equal(t, 3, fake.Calls())
}

func TestCached_PurgeDropsOnlyThisModel(t *testing.T) {
	cache := redisResponseCache(t)
	ctx := context.Background()
	a := NewCached(NewFake("A"), cache, time.Hour, nil, nil)
	require.NoError(t, cache.Set(ctx, CacheKey("other-model", "asthma"), "B", time.Hour))

	for _, p := range []string{"asthma", "gout"} {
		_, err := a.Generate(ctx, p)
		require.NoError(t, err)
	}
	n, err := a.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := cache.Exists(ctx, CacheKey("other-model", "asthma"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCached_ForgetReportsCacheFailure(t *testing.T) {
	cache := newMemoryCache()
	cache.err = stderrors.New("redis down")
	c := NewCached(NewFake("x"), cache, time.Hour, nil, nil)

	_, err := c.Forget(context.Background(), "asthma")
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
	_, err = c.Purge(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}

// ---------------------------------------------------------------------------
// Retrying
// ---------------------------------------------------------------------------

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func TestRetrying_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	fake := NewFakeFunc(func(string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.GenerativeCallFailed(stderrors.New("503"), "m")
		}
		return "ok", nil
	})
	r := NewRetrying(fake, fastRetry(2), nil)

	out, err := r.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, fake.Calls())
}

func TestRetrying_GivesUpAfterMaxRetries(t *testing.T) {
	fake := NewFakeFunc(func(string) (string, error) {
		return "", errors.GenerativeCallFailed(stderrors.New("503"), "m")
	})
	r := NewRetrying(fake, fastRetry(2), nil)

	_, err := r.Generate(context.Background(), "p")
	assert.True(t, errors.IsCode(err, errors.ErrCodeGenerativeCallFailed))
	assert.Equal(t, 3, fake.Calls())
}

func TestRetrying_ModelUnavailableIsNotRetried(t *testing.T) {
	fake := NewFakeFunc(func(string) (string, error) {
		return "", errors.ModelUnavailable(stderrors.New("bad key"), "m")
	})
	r := NewRetrying(fake, fastRetry(5), nil)

	_, err := r.Generate(context.Background(), "p")
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelUnavailable))
	assert.Equal(t, 1, fake.Calls())
}

func TestRetrying_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := NewFake("never")
	r := NewRetrying(fake, fastRetry(5), nil)

	_, err := r.Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.Calls())
}

// ---------------------------------------------------------------------------
// Instrumented
// ---------------------------------------------------------------------------

func TestInstrumented_RecordsOutcome(t *testing.T) {
	metrics := common.NewInMemoryIntelligenceMetrics()
	ok := NewInstrumented(NewFake("x"), common.TaskRecommendation, nil, metrics)
	bad := NewInstrumented(NewFakeFunc(func(string) (string, error) { return "", stderrors.New("e") }), "", nil, metrics)

	_, _ = ok.Generate(context.Background(), "prompt")
	_, _ = bad.Generate(context.Background(), "prompt")

	got := metrics.RecordedInferences()
	require.Len(t, got, 2)
	assert.True(t, got[0].Success)
	assert.Equal(t, common.TaskRecommendation, got[0].TaskType)
	assert.Equal(t, "fake", got[0].ModelName)
	assert.False(t, got[1].Success)
	assert.Equal(t, common.TaskGenerate, got[1].TaskType)
}

func TestDecoratorsForwardName(t *testing.T) {
	base := NewFake()
	var m Model = NewInstrumented(NewCached(NewRetrying(base, fastRetry(0), nil), newMemoryCache(), 0, nil, nil), "", nil, nil)
	assert.Equal(t, "fake", m.Name())
}
