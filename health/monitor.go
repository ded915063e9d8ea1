package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/ciboard/metric"
	"golang.org/x/sync/errgroup"
)

// Probe reports whether a backend is reachable.
type Probe func(ctx context.Context) error

type registration struct {
	probe    Probe
	critical bool
}

// Monitor probes registered backends and keeps their last known status.
// Safe for concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]registration

	timeout time.Duration
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewMonitor creates a monitor whose probes each get the given timeout.
func NewMonitor(timeout time.Duration, logger *slog.Logger, metrics *metric.Metrics) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		statuses: make(map[string]Status),
		probes:   make(map[string]registration),
		timeout:  timeout,
		logger:   logger.With("component", "health"),
		metrics:  metrics,
	}
}

// Register adds a backend probe. A critical backend that fails makes the
// aggregate unhealthy instead of degraded.
func (m *Monitor) Register(name string, critical bool, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = registration{probe: probe, critical: critical}
}

// Update records the status for a named backend
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Get retrieves the last status for a named backend
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// Names returns the registered backend names in sorted order
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll runs every probe concurrently and returns the aggregate status.
func (m *Monitor) CheckAll(ctx context.Context) Status {
	m.mu.RLock()
	probes := make(map[string]registration, len(m.probes))
	for name, reg := range m.probes {
		probes[name] = reg
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for name, reg := range probes {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			start := time.Now()
			err := reg.probe(probeCtx)
			status := FromProbe(name, err, time.Since(start))
			if err != nil {
				m.logger.Warn("Backend probe failed", "backend", name, "error", err)
			}
			m.metrics.RecordBackendHealth(name, err == nil)
			m.Update(name, status)
			return nil
		})
	}
	_ = g.Wait()

	return m.AggregateHealth("ciboard")
}

// AggregateHealth folds the last known statuses into one, ordered by name.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	critical := make(map[string]bool, len(m.probes))
	for name, reg := range m.probes {
		critical[name] = reg.critical
	}

	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	sort.Slice(subStatuses, func(i, j int) bool {
		return subStatuses[i].Component < subStatuses[j].Component
	})

	return Aggregate(systemName, critical, subStatuses)
}

// Run probes all backends every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m.CheckAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}
