package upstream

import (
	"log/slog"
	"sync"

	"github.com/c360/ciboard/metric"
)

// Pool hands out one JSONClient per named instance. Clients are created on
// first use and reused afterwards.
type Pool struct {
	component string
	instances Instances
	logger    *slog.Logger
	metrics   *metric.Metrics

	mu      sync.Mutex
	clients map[string]*JSONClient
}

// NewPool creates a pool over validated instance configs
func NewPool(component string, instances Instances, logger *slog.Logger, metrics *metric.Metrics) *Pool {
	return &Pool{
		component: component,
		instances: instances,
		logger:    logger,
		metrics:   metrics,
		clients:   make(map[string]*JSONClient),
	}
}

// Client returns the client for instance. Unknown instances yield a fatal
// missing-configuration error.
func (p *Pool) Client(instance string) (*JSONClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[instance]; ok {
		return c, nil
	}

	cfg, ok := p.instances[instance]
	if !ok || cfg.URL == "" {
		return nil, MissingInstance(p.component, instance)
	}

	c, err := NewJSONClient(p.component+"."+instance, cfg, p.logger, p.metrics)
	if err != nil {
		return nil, err
	}
	p.clients[instance] = c
	return c, nil
}

// Instances returns the configured instance names
func (p *Pool) Instances() []string {
	return p.instances.Names()
}
