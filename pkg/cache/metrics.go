package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ciboard/metric"
)

// cacheMetrics mirrors Statistics as Prometheus collectors.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCounter(prefix, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "ciboard",
		Subsystem:   "cache",
		Name:        name,
		ConstLabels: prometheus.Labels{"component": prefix},
		Help:        help,
	})
}

// newCacheMetrics creates and registers cache metrics with the provided registry.
func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		hits:      newCounter(prefix, "hits_total", "Total number of cache hits"),
		misses:    newCounter(prefix, "misses_total", "Total number of cache misses"),
		sets:      newCounter(prefix, "sets_total", "Total number of cache set operations"),
		evictions: newCounter(prefix, "evictions_total", "Total number of expired or evicted entries"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ciboard",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of entries in cache",
		}),
	}

	counters := []struct {
		name string
		c    prometheus.Counter
	}{
		{"cache_hits", m.hits},
		{"cache_misses", m.misses},
		{"cache_sets", m.sets},
		{"cache_evictions", m.evictions},
	}
	for _, c := range counters {
		if err := registry.RegisterCounter(prefix, c.name, c.c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(prefix, "cache_size", m.size); err != nil {
		return nil, err
	}
	return m, nil
}
