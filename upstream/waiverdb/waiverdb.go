// Package waiverdb reads waivers from the waiver store.
package waiverdb

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/upstream"
)

const (
	waiversPath = "/api/v1.0/waivers/"
	aboutPath   = "/api/v1.0/about"
)

// WaiversQuery filters the waiver listing. Zero values are not sent.
type WaiversQuery struct {
	SubjectType       string
	SubjectIdentifier string
	Testcase          string
	ProductVersion    string
	Page              int
	Limit             int
}

func (q WaiversQuery) values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("subject_type", q.SubjectType)
	set("subject_identifier", q.SubjectIdentifier)
	set("testcase", q.Testcase)
	set("product_version", q.ProductVersion)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// WaiversPage is one page of the listing. Waiver documents and the paging
// links are passed through untyped.
type WaiversPage struct {
	Data []map[string]any `json:"data"`
	Meta map[string]any   `json:"meta"`
}

// Client reads waivers
type Client struct {
	http *upstream.JSONClient
}

// NewClient creates a client. An empty URL yields a client whose calls fail
// with a configuration error.
func NewClient(cfg upstream.HTTPConfig, logger *slog.Logger, metrics *metric.Metrics) (*Client, error) {
	c, err := upstream.NewJSONClient("waiverdb", cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	return &Client{http: c}, nil
}

// Waivers lists waivers matching q
func (c *Client) Waivers(ctx context.Context, q WaiversQuery) (*WaiversPage, error) {
	var page WaiversPage
	if err := c.http.Get(ctx, waiversPath, q.values(), &page); err != nil {
		return nil, err
	}
	if page.Data == nil {
		page.Data = []map[string]any{}
	}
	return &page, nil
}

// Ping checks that the service answers its about endpoint
func (c *Client) Ping(ctx context.Context) error {
	var about map[string]any
	return c.http.Get(ctx, aboutPath, nil, &about)
}
