// Package greenwave is the client for the gating policy engine.
package greenwave

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/upstream"
)

const (
	decisionPath = "/api/v1.0/decision"
	aboutPath    = "/api/v1.0/about"
)

// Subject identifies the item a decision is asked for
type Subject struct {
	Item string `json:"item"`
	Type string `json:"type"`
}

// Rule is an explicit policy rule sent instead of, or next to, a decision
// context.
type Rule struct {
	Type         string `json:"type"`
	TestCaseName string `json:"test_case_name"`
}

// PassingTestCaseRule requires the named test case to pass
func PassingTestCaseRule(testCase string) Rule {
	return Rule{Type: "PassingTestCaseRule", TestCaseName: testCase}
}

// DecisionRequest is sent to the decision endpoint
type DecisionRequest struct {
	DecisionContext string    `json:"decision_context,omitempty"`
	ProductVersion  string    `json:"product_version"`
	Subject         []Subject `json:"subject"`
	Rules           []Rule    `json:"rules,omitempty"`
	Verbose         bool      `json:"verbose"`
}

// Validate checks the fields the engine requires
func (r DecisionRequest) Validate() error {
	if r.ProductVersion == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "greenwave", "Validate", "product_version is required")
	}
	if len(r.Subject) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "greenwave", "Validate", "subject is required")
	}
	if r.DecisionContext == "" && len(r.Rules) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "greenwave", "Validate",
			"either decision_context or rules is required")
	}
	return nil
}

// Decision is the engine reply. Requirement, result and waiver entries are
// passed through untyped.
type Decision struct {
	PoliciesSatisfied       bool             `json:"policies_satisfied"`
	Summary                 string           `json:"summary"`
	SatisfiedRequirements   []map[string]any `json:"satisfied_requirements"`
	UnsatisfiedRequirements []map[string]any `json:"unsatisfied_requirements"`
	Results                 []map[string]any `json:"results"`
	Waivers                 []map[string]any `json:"waivers"`
	ApplicablePolicies      []string         `json:"applicable_policies"`
}

// Client asks the policy engine for gating decisions
type Client struct {
	http   *upstream.JSONClient
	logger *slog.Logger
}

// NewClient creates a client. An empty URL yields a client whose calls fail
// with a configuration error.
func NewClient(cfg upstream.HTTPConfig, logger *slog.Logger, metrics *metric.Metrics) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := upstream.NewJSONClient("greenwave", cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	return &Client{http: c, logger: logger.With("component", "greenwave")}, nil
}

// Decision requests a gating decision
func (c *Client) Decision(ctx context.Context, req DecisionRequest) (*Decision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out Decision
	if err := c.http.Post(ctx, decisionPath, req, &out); err != nil {
		return nil, err
	}

	c.logger.Debug("Gating decision",
		"subject", fmt.Sprintf("%v", req.Subject),
		"context", req.DecisionContext,
		"product_version", req.ProductVersion,
		"satisfied", out.PoliciesSatisfied)
	return &out, nil
}

// Ping checks that the service answers its about endpoint
func (c *Client) Ping(ctx context.Context) error {
	var about map[string]any
	return c.http.Get(ctx, aboutPath, nil, &about)
}
