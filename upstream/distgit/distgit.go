// Package distgit reads commit information from dist-git (Pagure) hosts.
package distgit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/upstream"
)

var (
	pathSegment = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)
	commitSHA   = regexp.MustCompile(`^[0-9a-fA-F]{7,64}$`)
)

// Client reads commits per instance
type Client struct {
	pool   *upstream.Pool
	logger *slog.Logger
}

// NewClient creates a client over validated instances
func NewClient(instances upstream.Instances, logger *slog.Logger, metrics *metric.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		pool:   upstream.NewPool("distgit", instances, logger, metrics),
		logger: logger.With("component", "distgit"),
	}
}

// Instances returns the configured instance names
func (c *Client) Instances() []string {
	return c.pool.Instances()
}

// CommitInfo returns the commit document for sha in namespace/repo
func (c *Client) CommitInfo(ctx context.Context, instance, namespace, repo, sha string) (map[string]any, error) {
	if !pathSegment.MatchString(namespace) || !pathSegment.MatchString(repo) {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: repository %q/%q", errors.ErrInvalidData, namespace, repo),
			"distgit", "CommitInfo", "validate arguments")
	}
	if !commitSHA.MatchString(sha) {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: commit %q", errors.ErrInvalidData, sha),
			"distgit", "CommitInfo", "validate arguments")
	}

	client, err := c.pool.Client(instance)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/api/0/%s/%s/c/%s/info",
		url.PathEscape(namespace), url.PathEscape(repo), url.PathEscape(sha))

	var doc map[string]any
	if err := client.Get(ctx, path, nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
