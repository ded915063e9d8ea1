// Package koji reads builds, tags and tasks from Koji build system hubs
// over XML-RPC.
package koji

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/rpc"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
	"golang.org/x/time/rate"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/pkg/cache"
	"github.com/c360/ciboard/pkg/retry"
	"github.com/c360/ciboard/pkg/tlsutil"
	"github.com/c360/ciboard/upstream"
)

// Config lists the hubs by instance name ("fp", "cs", "brew") and the retry
// policy shared by every call.
type Config struct {
	Instances upstream.Instances `yaml:"instances"`
	Retry     errors.RetryConfig `yaml:"retry"`
}

// Validate fills defaults and checks the configuration
func (c *Config) Validate() error {
	if c.Retry == (errors.RetryConfig{}) {
		c.Retry = errors.DefaultRetryConfig()
	}
	if c.Retry.MaxRetries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "koji.Config", "Validate", "retry.max_retries must not be negative")
	}
	return c.Instances.Validate()
}

// hub is one lazily created XML-RPC connection
type hub struct {
	name    string
	rpc     *xmlrpc.Client
	limiter *rate.Limiter
}

// Client calls Koji hubs. One XML-RPC client per hub is created on first use
// and reused.
type Client struct {
	config  Config
	store   cache.Store
	logger  *slog.Logger
	metrics *metric.Metrics

	mu   sync.Mutex
	hubs map[string]*hub
}

// NewClient creates a client over validated configuration. store may be
// nil to disable caching.
func NewClient(config Config, store cache.Store, logger *slog.Logger, metrics *metric.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:  config,
		store:   store,
		logger:  logger.With("component", "koji"),
		metrics: metrics,
		hubs:    make(map[string]*hub),
	}
}

// Instances returns the configured hub names
func (c *Client) Instances() []string {
	return c.config.Instances.Names()
}

func (c *Client) hub(instance string) (*hub, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.hubs[instance]; ok {
		return h, nil
	}

	cfg, ok := c.config.Instances[instance]
	if !ok || cfg.URL == "" {
		return nil, upstream.MissingInstance("koji", instance)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout()
	if !cfg.TLS.IsZero() {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	rpc, err := xmlrpc.NewClient(cfg.URL, transport)
	if err != nil {
		return nil, errors.WrapFatal(err, "koji", "hub", fmt.Sprintf("create XML-RPC client for %s", instance))
	}

	h := &hub{
		name:    instance,
		rpc:     rpc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1)),
	}
	c.hubs[instance] = h
	c.logger.Info("Koji hub client created", "instance", instance, "url", cfg.URL)
	return h, nil
}

// call performs one XML-RPC method call with retry. Faults are never
// retried.
func (c *Client) call(ctx context.Context, instance, method string, args []any, reply any) (err error) {
	h, err := c.hub(instance)
	if err != nil {
		return err
	}

	backend := "koji." + instance
	start := time.Now()
	defer func() { c.metrics.ObserveBackend(backend, start, err) }()

	cfg := c.config.Retry.ToRetryConfig()
	cfg.RetryIf = errors.IsTransient
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("Retrying Koji call",
			"instance", instance, "method", method, "attempt", attempt, "delay", delay, "error", err)
	}

	return retry.Do(ctx, cfg, func() error {
		if err := h.limiter.Wait(ctx); err != nil {
			return retry.NonRetryable(errors.WrapTransient(err, "koji", method, "wait for rate limiter"))
		}
		return h.invoke(ctx, method, args, reply)
	})
}

// invoke runs the call asynchronously so ctx cancellation is honoured
func (h *hub) invoke(ctx context.Context, method string, args []any, reply any) error {
	done := h.rpc.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "koji", method, "call "+h.name)
	case res := <-done.Done:
		if res.Error == nil {
			return nil
		}
		// faults reach us as the server error string
		var fault rpc.ServerError
		if stderrors.As(res.Error, &fault) {
			if strings.Contains(string(fault), "bad status code") {
				return errors.WrapTransient(fmt.Errorf("%w: %s", errors.ErrBackendStatus, string(fault)),
					"koji", method, "call "+h.name)
			}
			return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrBackendStatus, string(fault)),
				"koji", method, "call "+h.name)
		}
		return errors.WrapTransient(res.Error, "koji", method, "call "+h.name)
	}
}

func notFound(what string, id int64, instance string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s %d on %s", errors.ErrNotFound, what, id, instance),
		"koji", "lookup", what)
}

// GetBuild returns the build record. Builds are immutable and cached.
func (c *Client) GetBuild(ctx context.Context, instance string, buildID int64) (map[string]any, error) {
	key := fmt.Sprintf("koji.%s.build.%d", instance, buildID)
	return cache.GetOrLoad(ctx, c.store, c.logger, key, func(ctx context.Context) (map[string]any, error) {
		var build map[string]any
		if err := c.call(ctx, instance, "getBuild", []any{buildID}, &build); err != nil {
			return nil, err
		}
		if len(build) == 0 {
			return nil, notFound("build", buildID, instance)
		}
		return build, nil
	})
}

// ListTags returns the tags a build is in. Tags change over time and are
// not cached.
func (c *Client) ListTags(ctx context.Context, instance string, buildID int64) ([]map[string]any, error) {
	var tags []map[string]any
	if err := c.call(ctx, instance, "listTags", []any{buildID}, &tags); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []map[string]any{}
	}
	return tags, nil
}

// GetTaskInfo returns the task record including its request. Only finished
// tasks are cached.
func (c *Client) GetTaskInfo(ctx context.Context, instance string, taskID int64) (map[string]any, error) {
	key := fmt.Sprintf("koji.%s.task.%d", instance, taskID)

	if c.store != nil {
		if data, ok, _ := c.store.Get(ctx, key); ok {
			var task map[string]any
			if err := json.Unmarshal(data, &task); err == nil {
				return task, nil
			}
		}
	}

	var task map[string]any
	if err := c.call(ctx, instance, "getTaskInfo", []any{taskID, true}, &task); err != nil {
		return nil, err
	}
	if len(task) == 0 {
		return nil, notFound("task", taskID, instance)
	}

	if c.store != nil && taskFinished(task) {
		if data, err := json.Marshal(task); err == nil {
			if err := c.store.Put(ctx, key, data); err != nil {
				c.logger.Warn("Cache write failed", "key", key, "error", err)
			}
		}
	}
	return task, nil
}

// Task states CLOSED, CANCELED and FAILED are final
func taskFinished(task map[string]any) bool {
	switch state := task["state"].(type) {
	case int64:
		return state == 2 || state == 3 || state == 5
	case int:
		return state == 2 || state == 3 || state == 5
	default:
		return false
	}
}

// Ping asks a hub for its API version
func (c *Client) Ping(ctx context.Context, instance string) error {
	var version int
	return c.call(ctx, instance, "getAPIVersion", []any{}, &version)
}
