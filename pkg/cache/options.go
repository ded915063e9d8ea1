package cache

import (
	"time"

	"github.com/c360/ciboard/metric"
)

// Option configures cache behavior using the functional options pattern.
type Option[V any] func(*cacheOptions[V])

// cacheOptions holds internal configuration for cache instances.
// Stats are ALWAYS collected; metrics are optional.
type cacheOptions[V any] struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	evictCallback EvictCallback[V]
	maxEntries    int
	now           clock
}

// WithMetrics enables Prometheus export of cache statistics under the
// given component label. A nil registry or empty prefix is ignored.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback for entries that expire or are
// pushed out by the entry bound. It runs under the cache lock and must
// not call back into the cache.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithMaxEntries bounds the number of entries. When full, the entry
// closest to expiry is evicted. Zero or less means unbounded.
func WithMaxEntries[V any](n int) Option[V] {
	return func(opts *cacheOptions[V]) {
		if n > 0 {
			opts.maxEntries = n
		}
	}
}

func withClock[V any](now func() time.Time) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.now = now
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{now: time.Now}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
