package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/ciboard/errors"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// ttlCache expires entries a fixed time after they were set. Expired
// entries are dropped lazily on Get and periodically by a background sweep.
type ttlCache[V any] struct {
	mu         sync.RWMutex
	ttl        time.Duration
	items      map[string]ttlEntry[V]
	maxEntries int
	now        clock
	stats      *Statistics
	metrics    *cacheMetrics
	evictFn    EvictCallback[V]

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTTL creates a TTL cache. The sweep runs every cleanupInterval until
// ctx is cancelled or Close is called.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration, options ...Option[V]) (Cache[V], error) {
	if ttl <= 0 || cleanupInterval <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewTTL",
			fmt.Sprintf("ttl and cleanup interval must be positive, got %v and %v", ttl, cleanupInterval))
	}
	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewTTL", "metrics registration")
		}
	}

	c := &ttlCache[V]{
		ttl:        ttl,
		items:      make(map[string]ttlEntry[V]),
		maxEntries: opts.maxEntries,
		now:        opts.now,
		stats:      NewStatistics(),
		metrics:    metrics,
		evictFn:    opts.evictCallback,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	go c.sweepLoop(ctx, cleanupInterval)
	return c, nil
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		c.stats.hit()
		if c.metrics != nil {
			c.metrics.hits.Inc()
		}
		return entry.value, true
	}

	if ok {
		c.mu.Lock()
		// re-check under the write lock, a concurrent Set may have refreshed it
		if current, still := c.items[key]; still && !c.now().Before(current.expiresAt) {
			delete(c.items, key)
			c.evicted(key, current.value)
		}
		c.mu.Unlock()
	}

	c.stats.miss()
	if c.metrics != nil {
		c.metrics.misses.Inc()
	}
	var zero V
	return zero, false
}

func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	if !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evictSoonest()
	}
	c.items[key] = ttlEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.sizeChanged()
	c.mu.Unlock()

	c.stats.set()
	if c.metrics != nil {
		c.metrics.sets.Inc()
	}
	return !exists, nil
}

func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	if exists {
		delete(c.items, key)
		c.sizeChanged()
	}
	c.mu.Unlock()

	if exists {
		c.stats.delete()
	}
	return exists, nil
}

func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	old := c.items
	c.items = make(map[string]ttlEntry[V])
	c.sizeChanged()
	c.mu.Unlock()

	if c.evictFn != nil {
		for key, entry := range old {
			c.evictFn(key, entry.value)
		}
	}
	return nil
}

func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys skips entries that are expired but not yet swept.
func (c *ttlCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	keys := make([]string, 0, len(c.items))
	for key, entry := range c.items {
		if now.Before(entry.expiresAt) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

func (c *ttlCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

func (c *ttlCache[V]) sweepLoop(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes every expired entry.
func (c *ttlCache[V]) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.items {
		if !now.Before(entry.expiresAt) {
			delete(c.items, key)
			c.evicted(key, entry.value)
		}
	}
}

// evictSoonest drops the entry closest to expiry. Caller holds mu.
func (c *ttlCache[V]) evictSoonest() {
	var (
		victim  string
		soonest time.Time
		found   bool
	)
	for key, entry := range c.items {
		if !found || entry.expiresAt.Before(soonest) {
			victim, soonest, found = key, entry.expiresAt, true
		}
	}
	if found {
		value := c.items[victim].value
		delete(c.items, victim)
		c.evicted(victim, value)
	}
}

// evicted records an eviction. Caller holds mu.
func (c *ttlCache[V]) evicted(key string, value V) {
	c.stats.eviction()
	if c.metrics != nil {
		c.metrics.evictions.Inc()
	}
	c.sizeChanged()
	if c.evictFn != nil {
		c.evictFn(key, value)
	}
}

// sizeChanged publishes the current size. Caller holds mu.
func (c *ttlCache[V]) sizeChanged() {
	c.stats.updateSize(len(c.items))
	if c.metrics != nil {
		c.metrics.size.Set(float64(len(c.items)))
	}
}
