package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/pkg/tlsutil"
)

// maxErrorBody bounds how much of an error response is kept for logs
const maxErrorBody = 4 * 1024

// JSONClient talks JSON over HTTP to one collaborator endpoint. It owns one
// *http.Client and one limiter shared by all requests.
type JSONClient struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewJSONClient creates a client for the named collaborator. cfg must have
// been validated.
func NewJSONClient(name string, cfg HTTPConfig, logger *slog.Logger, metrics *metric.Metrics) (*JSONClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.TLS.IsZero() {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit == 0 {
		limit = rate.Inf
	}

	return &JSONClient{
		name:    name,
		baseURL: cfg.URL,
		http: &http.Client{
			Timeout:   cfg.Timeout(),
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		logger:  logger.With("component", name),
		metrics: metrics,
	}, nil
}

// Name returns the collaborator name used in logs and metrics
func (c *JSONClient) Name() string { return c.name }

// Configured reports whether a base URL is set
func (c *JSONClient) Configured() bool { return c.baseURL != "" }

// Get issues a GET for path with query parameters and decodes the JSON reply
func (c *JSONClient) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON and decodes the JSON reply
func (c *JSONClient) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Do performs one request. Failures are classified: missing configuration
// is fatal, 404 wraps ErrNotFound, other 4xx are invalid and everything else
// is transient.
func (c *JSONClient) Do(ctx context.Context, method, path string, query url.Values, body, out any) (err error) {
	if c.baseURL == "" {
		return errors.WrapFatal(fmt.Errorf("%w: %s url", errors.ErrMissingConfig, c.name), c.name, method, "request")
	}

	start := time.Now()
	defer func() { c.metrics.ObserveBackend(c.name, start, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrRateLimited, err), c.name, method, "wait for rate limiter")
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.WrapInvalid(err, c.name, method, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.WrapInvalid(err, c.name, method, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Upstream request", "method", method, "url", target)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapTransient(err, c.name, method, "request "+path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(c.name, method, path, resp.StatusCode, detail)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.WrapInvalid(err, c.name, method, "decode response")
	}
	return nil
}

func statusError(name, method, path string, status int, detail []byte) error {
	base := fmt.Errorf("%w: HTTP %d from %s: %s", errors.ErrBackendStatus, status, path, bytes.TrimSpace(detail))
	switch {
	case status == http.StatusNotFound:
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrNotFound, base), name, method, "request "+path)
	case status == http.StatusTooManyRequests:
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrRateLimited, base), name, method, "request "+path)
	case status >= 400 && status < 500:
		return errors.WrapInvalid(base, name, method, "request "+path)
	default:
		return errors.WrapTransient(base, name, method, "request "+path)
	}
}
