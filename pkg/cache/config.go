package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/metric"
)

// Backend selects where cached upstream lookups live.
type Backend string

const (
	// BackendNone disables caching.
	BackendNone Backend = "none"
	// BackendMemory keeps entries in process.
	BackendMemory Backend = "memory"
	// BackendNATS keeps entries in a JetStream KV bucket shared by replicas.
	BackendNATS Backend = "nats"
)

// NATSConfig configures the JetStream KV backend
type NATSConfig struct {
	URL        string `yaml:"url"`
	Bucket     string `yaml:"bucket"`
	Replicas   int    `yaml:"replicas"`
	TimeoutStr string `yaml:"timeout,omitempty"`

	timeout time.Duration
}

// Timeout returns the per-operation timeout
func (c NATSConfig) Timeout() time.Duration {
	if c.timeout == 0 {
		return 2 * time.Second
	}
	return c.timeout
}

// Config contains configuration for the lookup cache.
type Config struct {
	Backend Backend `yaml:"backend"`

	// TTLStr is how long a lookup stays cached (default: "1h")
	TTLStr string `yaml:"ttl,omitempty"`

	// CleanupIntervalStr is the in-process sweep period (default: "5m")
	CleanupIntervalStr string `yaml:"cleanup_interval,omitempty"`

	// MaxEntries bounds the in-process cache (default: 10000)
	MaxEntries int `yaml:"max_entries"`

	NATS NATSConfig `yaml:"nats"`

	ttl             time.Duration
	cleanupInterval time.Duration
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendMemory,
		TTLStr:             "1h",
		CleanupIntervalStr: "5m",
		MaxEntries:         10000,
		NATS: NATSConfig{
			URL:    "nats://localhost:4222",
			Bucket: "ciboard-cache",
		},
	}
}

func parseDuration(raw string, def time.Duration, field string) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "cache.Config", "Validate",
			fmt.Sprintf("%s must be a positive duration, got %q", field, raw))
	}
	return d, nil
}

// Validate fills defaults and checks the configuration.
func (c *Config) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}

	var err error
	if c.ttl, err = parseDuration(c.TTLStr, time.Hour, "ttl"); err != nil {
		return err
	}
	if c.cleanupInterval, err = parseDuration(c.CleanupIntervalStr, 5*time.Minute, "cleanup_interval"); err != nil {
		return err
	}
	if c.MaxEntries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache.Config", "Validate",
			fmt.Sprintf("max_entries must not be negative, got %d", c.MaxEntries))
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 10000
	}

	switch c.Backend {
	case BackendNone, BackendMemory:
	case BackendNATS:
		if c.NATS.URL == "" || c.NATS.Bucket == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "cache.Config", "Validate",
				"nats backend requires nats.url and nats.bucket")
		}
		if c.NATS.Replicas == 0 {
			c.NATS.Replicas = 1
		}
		if c.NATS.timeout, err = parseDuration(c.NATS.TimeoutStr, 2*time.Second, "nats.timeout"); err != nil {
			return err
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache.Config", "Validate",
			fmt.Sprintf("unknown cache backend: %s", c.Backend))
	}
	return nil
}

// TTL returns the parsed entry lifetime.
func (c *Config) TTL() time.Duration {
	if c.ttl == 0 {
		return time.Hour
	}
	return c.ttl
}

// Open creates the Store the configuration selects. BackendNone returns a
// nil Store, which GetOrLoad treats as caching disabled.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, registry *metric.MetricsRegistry) (Store, error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case BackendNATS:
		return NewNATSStore(ctx, cfg.NATS, cfg.TTL(), logger)
	default:
		interval := cfg.cleanupInterval
		if interval == 0 {
			interval = 5 * time.Minute
		}
		c, err := NewTTL[[]byte](ctx, cfg.TTL(), interval,
			WithMaxEntries[[]byte](cfg.MaxEntries),
			WithMetrics[[]byte](registry, "upstream_lookups"),
		)
		if err != nil {
			return nil, err
		}
		return NewMemoryStore(c), nil
	}
}
