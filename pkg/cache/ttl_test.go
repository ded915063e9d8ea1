package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/metric"
)

// fakeClock is advanced manually by tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestTTL(t *testing.T, ttl time.Duration, opts ...Option[string]) (*ttlCache[string], *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append(opts, withClock[string](clk.Now))
	c, err := NewTTL[string](context.Background(), ttl, time.Hour, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c.(*ttlCache[string]), clk
}

func TestTTL_SetGet(t *testing.T) {
	c, _ := newTestTTL(t, time.Minute)

	created, err := c.Set("a", "1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", "2")
	require.NoError(t, err)
	assert.False(t, created)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, int64(1), c.Stats().Hits())
	assert.Equal(t, int64(1), c.Stats().Misses())
	assert.Equal(t, int64(2), c.Stats().Sets())
}

func TestTTL_Expiry(t *testing.T) {
	var evicted []string
	c, clk := newTestTTL(t, time.Minute, WithEvictionCallback[string](func(key, _ string) {
		evicted = append(evicted, key)
	}))

	_, _ = c.Set("a", "1")
	clk.Advance(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clk.Advance(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestTTL_Sweep(t *testing.T) {
	c, clk := newTestTTL(t, time.Minute)

	_, _ = c.Set("old", "1")
	clk.Advance(30 * time.Second)
	_, _ = c.Set("new", "2")
	clk.Advance(45 * time.Second)

	assert.ElementsMatch(t, []string{"new"}, c.Keys())
	c.sweep()
	assert.Equal(t, 1, c.Size())
}

func TestTTL_MaxEntries(t *testing.T) {
	c, clk := newTestTTL(t, time.Minute, WithMaxEntries[string](2))

	_, _ = c.Set("first", "1")
	clk.Advance(time.Second)
	_, _ = c.Set("second", "2")
	clk.Advance(time.Second)
	_, _ = c.Set("third", "3")

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("first")
	assert.False(t, ok, "entry closest to expiry is evicted")
	_, ok = c.Get("third")
	assert.True(t, ok)
	assert.Equal(t, int64(2), c.Stats().MaxSize())
}

func TestTTL_DeleteAndClear(t *testing.T) {
	c, _ := newTestTTL(t, time.Minute)
	_, _ = c.Set("a", "1")
	_, _ = c.Set("b", "2")

	deleted, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.Delete("a")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Size())
}

func TestTTL_InvalidKey(t *testing.T) {
	c, _ := newTestTTL(t, time.Minute)
	_, err := c.Set("", "x")
	assert.True(t, errors.IsInvalid(err))
}

func TestNewTTL_InvalidDurations(t *testing.T) {
	_, err := NewTTL[string](context.Background(), 0, time.Second)
	assert.Error(t, err)
}

func TestTTL_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, _ := newTestTTL(t, time.Minute, WithMetrics[string](registry, "test"))

	_, _ = c.Set("a", "1")
	_, _ = c.Get("a")
	_, _ = c.Get("b")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.size))
}

func TestTTL_CloseStopsSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, err := NewTTL[string](ctx, time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	cancel()
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestTTL_Concurrent(t *testing.T) {
	c, _ := newTestTTL(t, time.Minute, WithMaxEntries[string](50))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := string(rune('a' + (n+j)%26))
				_, _ = c.Set(key, "v")
				_, _ = c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 50)
}
