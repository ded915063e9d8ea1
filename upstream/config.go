package upstream

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/pkg/tlsutil"
)

// HTTPConfig configures one HTTP collaborator endpoint
type HTTPConfig struct {
	// URL is the service base URL. Empty means the collaborator is not
	// configured and every call fails with a configuration error.
	URL string `yaml:"url"`

	// TimeoutStr bounds a single request (default: "30s")
	TimeoutStr string `yaml:"timeout,omitempty"`

	// RateLimit is the sustained requests per second (default: 20)
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`

	TLS tlsutil.ClientConfig `yaml:"tls,omitempty"`

	timeout time.Duration
}

// Validate fills defaults and checks the configuration. An empty URL is
// allowed.
func (c *HTTPConfig) Validate() error {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "upstream.HTTPConfig", "Validate",
				fmt.Sprintf("invalid url %q", c.URL))
		}
		c.URL = strings.TrimRight(c.URL, "/")
	}

	if c.TimeoutStr == "" {
		c.timeout = 30 * time.Second
	} else {
		d, err := time.ParseDuration(c.TimeoutStr)
		if err != nil || d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "upstream.HTTPConfig", "Validate",
				fmt.Sprintf("invalid timeout format: %s", c.TimeoutStr))
		}
		c.timeout = d
	}

	if c.RateLimit < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "upstream.HTTPConfig", "Validate",
			"rate_limit must not be negative")
	}
	if c.RateLimit == 0 {
		c.RateLimit = 20
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	return nil
}

// Timeout returns the parsed request timeout
func (c *HTTPConfig) Timeout() time.Duration {
	if c.timeout == 0 {
		return 30 * time.Second
	}
	return c.timeout
}

// Instances maps an instance name (for example "fp", "cs", "brew") to its
// endpoint configuration.
type Instances map[string]HTTPConfig

// Validate validates every instance in place
func (in Instances) Validate() error {
	for name, cfg := range in {
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "upstream.Instances", "Validate", fmt.Sprintf("instance %s", name))
		}
		in[name] = cfg
	}
	return nil
}

// Names returns the configured instance names in sorted order
func (in Instances) Names() []string {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MissingInstance is the error for a call naming an unconfigured instance
func MissingInstance(component, instance string) error {
	return errors.WrapFatal(
		fmt.Errorf("%w: no %s instance %q", errors.ErrMissingConfig, component, instance),
		component, "instance", "lookup")
}
