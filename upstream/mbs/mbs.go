// Package mbs reads module builds from Module Build Service instances.
package mbs

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/pkg/cache"
	"github.com/c360/ciboard/upstream"
)

// Client fetches module builds per instance
type Client struct {
	pool    *upstream.Pool
	store   cache.Store
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewClient creates a client over validated instances. store may be nil to
// disable caching.
func NewClient(instances upstream.Instances, store cache.Store, logger *slog.Logger, metrics *metric.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		pool:    upstream.NewPool("mbs", instances, logger, metrics),
		store:   store,
		logger:  logger.With("component", "mbs"),
		metrics: metrics,
	}
}

// Instances returns the configured instance names
func (c *Client) Instances() []string {
	return c.pool.Instances()
}

// Build returns the module build document. The tasks map is flattened to a
// list of its rpm entries, entries without an NVR are dropped, and the
// result is validated before it is returned or cached.
func (c *Client) Build(ctx context.Context, instance string, buildID int64) (map[string]any, error) {
	key := fmt.Sprintf("mbs.%s.build.%d", instance, buildID)
	return cache.GetOrLoad(ctx, c.store, c.logger, key, func(ctx context.Context) (map[string]any, error) {
		return c.fetch(ctx, instance, buildID)
	})
}

func (c *Client) fetch(ctx context.Context, instance string, buildID int64) (map[string]any, error) {
	client, err := c.pool.Client(instance)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	path := fmt.Sprintf("/module-build-service/1/module-builds/%d", buildID)
	if err := client.Get(ctx, path, url.Values{"verbose": {"true"}}, &doc); err != nil {
		return nil, err
	}

	if doc == nil {
		c.metrics.RecordIntegrityFailure("mbs_build")
		return nil, errors.WrapInvalid(errors.ErrDataCorrupted, "mbs", "Build", "decode empty module build")
	}

	doc["tasks"] = flattenTasks(doc["tasks"])

	if err := Validate(doc); err != nil {
		c.metrics.RecordIntegrityFailure("mbs_build")
		c.logger.Warn("Module build failed validation",
			"instance", instance, "build_id", buildID, "error", err)
		return nil, err
	}
	return doc, nil
}

// flattenTasks turns {"rpms": {"pkg": {...}}} into a list of task entries
// carrying their package name. Entries without an nvr are dropped. The
// list is sorted by package name so the output is stable.
func flattenTasks(raw any) []any {
	byKind, _ := raw.(map[string]any)

	type named struct {
		name  string
		entry map[string]any
	}
	var tasks []named
	for kind, pkgs := range byKind {
		pkgMap, ok := pkgs.(map[string]any)
		if !ok {
			continue
		}
		for name, v := range pkgMap {
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if nvr, _ := entry["nvr"].(string); nvr == "" {
				continue
			}
			task := make(map[string]any, len(entry)+2)
			for k, val := range entry {
				task[k] = val
			}
			task["name"] = name
			task["kind"] = kind
			tasks = append(tasks, named{name: kind + "/" + name, entry: task})
		}
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].name < tasks[j].name })
	out := make([]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.entry)
	}
	return out
}

// ErrInvalidBuild marks a module build document that violates the schema
var ErrInvalidBuild = fmt.Errorf("invalid module build: %w", errors.ErrDataCorrupted)
