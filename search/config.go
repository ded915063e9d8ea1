package search

import (
	"fmt"
	"time"

	"github.com/c360/ciboard/errors"
)

// Config holds the document store connection and paging settings
type Config struct {
	// Addresses are the Elasticsearch node URLs (default: http://localhost:9200)
	Addresses []string `yaml:"addresses"`

	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
	CACertFile string `yaml:"ca_cert_file,omitempty"`

	// IndexPrefix is prepended to every artifact index name
	IndexPrefix string `yaml:"index_prefix,omitempty"`

	// DefaultPageSize applies when a query does not ask for a size (default: 10)
	DefaultPageSize int `yaml:"default_page_size"`

	// MaxPageSize caps caller supplied sizes (default: 100)
	MaxPageSize int `yaml:"max_page_size"`

	MaxIdleConns int `yaml:"max_idle_conns"`

	// TimeoutStr bounds a single search (default: "20s")
	TimeoutStr string `yaml:"timeout,omitempty"`

	timeout time.Duration
}

// Validate fills defaults and checks the configuration
func (c *Config) Validate() error {
	if len(c.Addresses) == 0 {
		c.Addresses = []string{"http://localhost:9200"}
	}
	if c.DefaultPageSize == 0 {
		c.DefaultPageSize = DefaultPageSize
	}
	if c.MaxPageSize == 0 {
		c.MaxPageSize = 100
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > c.MaxPageSize {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "search.Config", "Validate",
			fmt.Sprintf("default_page_size must be between 1 and %d", c.MaxPageSize))
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 16
	}

	if c.TimeoutStr == "" {
		c.timeout = 20 * time.Second
	} else {
		timeout, err := time.ParseDuration(c.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "search.Config", "Validate",
				fmt.Sprintf("invalid timeout format: %s", c.TimeoutStr))
		}
		c.timeout = timeout
	}
	return nil
}

// Timeout returns the parsed per-search timeout
func (c *Config) Timeout() time.Duration {
	if c.timeout == 0 {
		return 20 * time.Second
	}
	return c.timeout
}

// ClampSize applies the default and maximum page size to a caller value
func (c *Config) ClampSize(size int) int {
	if size <= 0 {
		size = c.DefaultPageSize
	}
	if c.MaxPageSize > 0 && size > c.MaxPageSize {
		size = c.MaxPageSize
	}
	return size
}
