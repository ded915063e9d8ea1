package graphql

import (
	"fmt"
	"time"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/pkg/tlsutil"
)

// Config holds configuration for the GraphQL HTTP server
type Config struct {
	// BindAddress is the HTTP bind address (default: ":8080")
	BindAddress string `yaml:"bind_address"`

	// Path is the GraphQL endpoint path (default: "/graphql")
	Path string `yaml:"path"`

	// EnablePlayground serves GraphQL Playground at "/" (default: true)
	EnablePlayground bool `yaml:"enable_playground"`

	// EnableCORS enables CORS headers (default: true)
	EnableCORS bool `yaml:"enable_cors"`

	// CORSOrigins lists allowed CORS origins (default: ["*"])
	CORSOrigins []string `yaml:"cors_origins,omitempty"`

	// TimeoutStr bounds one query (default: "30s")
	TimeoutStr string `yaml:"timeout,omitempty"`

	// MaxQueryDepth limits query nesting depth (default: 10)
	MaxQueryDepth int `yaml:"max_query_depth,omitempty"`

	// HealthIntervalStr is how often backends are probed (default: "30s")
	HealthIntervalStr string `yaml:"health_interval,omitempty"`

	TLS tlsutil.ServerConfig `yaml:"tls,omitempty"`

	timeout        time.Duration
	healthInterval time.Duration
}

// Validate fills defaults and checks the configuration
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		c.BindAddress = ":8080"
	}

	if c.Path == "" {
		c.Path = "/graphql"
	}
	if c.Path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"path must start with /")
	}
	if c.Path == "/" || c.Path == "/health" || c.Path == "/metrics" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("path %s is reserved", c.Path))
	}

	if c.TimeoutStr == "" {
		c.timeout = 30 * time.Second
	} else {
		timeout, err := time.ParseDuration(c.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("invalid timeout format: %s", c.TimeoutStr))
		}
		if timeout < 100*time.Millisecond || timeout > 5*time.Minute {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"timeout must be between 100ms and 5m")
		}
		c.timeout = timeout
	}

	if c.HealthIntervalStr == "" {
		c.healthInterval = 30 * time.Second
	} else {
		interval, err := time.ParseDuration(c.HealthIntervalStr)
		if err != nil || interval < time.Second {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("health_interval must be a duration of at least 1s: %q", c.HealthIntervalStr))
		}
		c.healthInterval = interval
	}

	if c.MaxQueryDepth == 0 {
		c.MaxQueryDepth = 10
	}
	if c.MaxQueryDepth < 1 || c.MaxQueryDepth > 50 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_query_depth must be between 1 and 50")
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}

	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"tls requires cert_file and key_file")
	}

	return nil
}

// Timeout returns the parsed query timeout
func (c *Config) Timeout() time.Duration {
	if c.timeout == 0 {
		return 30 * time.Second
	}
	return c.timeout
}

// HealthInterval returns the parsed backend probe interval
func (c *Config) HealthInterval() time.Duration {
	if c.healthInterval == 0 {
		return 30 * time.Second
	}
	return c.healthInterval
}

// DefaultConfig returns the default server configuration
func DefaultConfig() Config {
	return Config{
		BindAddress:       ":8080",
		Path:              "/graphql",
		EnablePlayground:  true,
		EnableCORS:        true,
		CORSOrigins:       []string{"*"},
		TimeoutStr:        "30s",
		MaxQueryDepth:     10,
		HealthIntervalStr: "30s",
	}
}
