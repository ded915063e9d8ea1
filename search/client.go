package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/metric"
)

const backendName = "elasticsearch"

// Searcher executes a built request against the document store.
type Searcher interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, req Request) (*Response, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Response is the decoded search response. Hits holds the raw "hits" block
// (total, max_score and the hits array); numbers are json.Number so that
// ids and scores survive unchanged.
type Response struct {
	Took     int64          `json:"took"`
	TimedOut bool           `json:"timed_out"`
	Hits     map[string]any `json:"hits"`
}

// Client runs searches through one shared Elasticsearch client. The client
// is created on first use and reused for every request.
type Client struct {
	config  Config
	logger  *slog.Logger
	metrics *metric.Metrics

	once    sync.Once
	es      *elasticsearch.Client
	initErr error
}

// NewClient creates a search client. No connection is made until the first
// search.
func NewClient(config Config, logger *slog.Logger, metrics *metric.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:  config,
		logger:  logger.With("component", "search"),
		metrics: metrics,
	}
}

func (c *Client) client() (*elasticsearch.Client, error) {
	c.once.Do(func() {
		esCfg := elasticsearch.Config{
			Addresses:    c.config.Addresses,
			Username:     c.config.Username,
			Password:     c.config.Password,
			DisableRetry: true,
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   c.config.MaxIdleConns,
				ResponseHeaderTimeout: c.config.Timeout(),
			},
		}
		if c.config.CACertFile != "" {
			cert, err := os.ReadFile(c.config.CACertFile)
			if err != nil {
				c.initErr = errors.WrapFatal(err, "search", "client", "read CA certificate")
				return
			}
			esCfg.CACert = cert
			// CACert is only honoured when the client builds its own transport
			esCfg.Transport = nil
		}

		es, err := elasticsearch.NewClient(esCfg)
		if err != nil {
			c.initErr = errors.WrapFatal(err, "search", "client", "create elasticsearch client")
			return
		}
		c.es = es
		c.logger.Info("Elasticsearch client created", "addresses", c.config.Addresses)
	})
	return c.es, c.initErr
}

// Search implements Searcher. Searches are never retried.
func (c *Client) Search(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveBackend(backendName, start, err) }()

	es, err := c.client()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req.Body)
	if err != nil {
		return nil, errors.WrapInvalid(err, "search", "Search", "encode query")
	}

	c.logger.Debug("Search request", "indices", req.Indices, "body", string(body))

	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(req.Indices...),
		es.Search.WithBody(bytes.NewReader(body)),
		es.Search.WithIgnoreUnavailable(true),
		es.Search.WithAllowNoIndices(true),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "search", "Search", "elasticsearch request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res)
	}

	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	var out Response
	if err := dec.Decode(&out); err != nil {
		return nil, errors.WrapInvalid(err, "search", "Search", "decode response")
	}
	if out.Hits == nil {
		return nil, errors.WrapInvalid(errors.ErrDataCorrupted, "search", "Search", "response without hits block")
	}
	return &out, nil
}

// Ping reports whether the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	es, err := c.client()
	if err != nil {
		return err
	}
	res, err := es.Ping(es.Ping.WithContext(ctx))
	if err != nil {
		return errors.WrapTransient(err, "search", "Ping", "elasticsearch ping")
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.WrapTransient(fmt.Errorf("%w: %s", errors.ErrBackendStatus, res.Status()),
			"search", "Ping", "elasticsearch ping")
	}
	return nil
}

type esError struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func responseError(res *esapi.Response) error {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	var parsed esError
	detail := res.Status()
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Type != "" {
		detail = fmt.Sprintf("%s: %s: %s", res.Status(), parsed.Error.Type, parsed.Error.Reason)
	}

	err := fmt.Errorf("%w: %s", errors.ErrBackendStatus, detail)
	if res.StatusCode >= 400 && res.StatusCode < 500 {
		return errors.WrapInvalid(err, "search", "Search", "elasticsearch query")
	}
	return errors.WrapTransient(err, "search", "Search", "elasticsearch query")
}
