// Package gating decides whether an artifact can receive a gating decision
// and composes the request sent to the policy engine.
package gating

import (
	stderrors "errors"
	"fmt"
	"regexp"

	"github.com/c360/ciboard/artifact"
	"github.com/c360/ciboard/upstream/greenwave"
)

// Decision contexts known to the policy engine.
const (
	ComposeGateContext        = "osci_compose_gate"
	ComposeGateModulesContext = "osci_compose_gate_modules"
)

// UnknownProductVersion is used when no major version can be extracted.
// It is a value, not an error, so one artifact cannot fail a batch.
const UnknownProductVersion = "unknown_product_version"

// OperatorBundleSubtype marks container images that ship an operator bundle.
const OperatorBundleSubtype = "operator_bundle"

// ErrNotGateable is returned when a request is composed for an artifact
// that CanBeGated rejects.
var ErrNotGateable = stderrors.New("artifact is not gateable")

var (
	gateTagVersion = regexp.MustCompile(`^rhel-(\d+)`)
	nvrVersion     = regexp.MustCompile(`\.el(\d+)`)
)

var containerRules = []greenwave.Rule{
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.container-image.sanity"),
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.container-image.functional"),
}

var operatorBundleRules = []greenwave.Rule{
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.operator-bundle-image.operator-metadata-fetch"),
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.operator-bundle-image.operator-metadata-linting-bundle-image"),
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.operator-bundle-image.operator-metadata-preparation-bundle-image"),
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.operator-bundle-image.operator-index-image"),
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.operator-bundle-image.operator-deploy-bundle-image"),
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.operator-bundle-image.operator-scorecard-tests"),
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.operator-bundle-image.operator-verify-bundle-image"),
	greenwave.PassingTestCaseRule("cvp.redhat.detailed.operator-bundle-image.operator-pipeline-results"),
}

// CanBeGated reports whether the artifact is eligible: an allow-listed type
// with a gate tag that is not a scratch build.
func CanBeGated(a artifact.Artifact) bool {
	switch a.Type {
	case artifact.BrewBuild, artifact.RedHatModule, artifact.RedHatContainerImage:
	default:
		return false
	}
	return a.GateTag != "" && !a.Scratch
}

// DecisionContext returns the policy context for the artifact type. Types
// without one are gated by explicit rules.
func DecisionContext(a artifact.Artifact) (string, bool) {
	switch a.Type {
	case artifact.BrewBuild:
		return ComposeGateContext, true
	case artifact.RedHatModule:
		return ComposeGateModulesContext, true
	default:
		return "", false
	}
}

// Rules returns the explicit rule list for the artifact. Only container
// images have one.
func Rules(a artifact.Artifact) []greenwave.Rule {
	if a.Type != artifact.RedHatContainerImage {
		return nil
	}
	src := containerRules
	if a.HasSubtype(OperatorBundleSubtype) {
		src = operatorBundleRules
	}
	out := make([]greenwave.Rule, len(src))
	copy(out, src)
	return out
}

// ProductVersion derives the product version from the gate tag, falling
// back to the el suffix of the NVR.
func ProductVersion(identifier, gateTag string, t artifact.Type) string {
	version := majorVersion(identifier, gateTag)

	switch t {
	case artifact.BrewBuild, artifact.RedHatModule:
		if version == "" {
			return UnknownProductVersion
		}
		return "rhel-" + version
	case artifact.RedHatContainerImage:
		return "cvp"
	default:
		return UnknownProductVersion
	}
}

func majorVersion(identifier, gateTag string) string {
	if m := gateTagVersion.FindStringSubmatch(gateTag); m != nil {
		return m[1]
	}
	if m := nvrVersion.FindStringSubmatch(identifier); m != nil {
		return m[1]
	}
	return ""
}

// SubjectType is the subject type the policy engine expects for t
func SubjectType(t artifact.Type) string {
	switch t {
	case artifact.RedHatModule:
		return "redhat-module"
	default:
		return "koji_build"
	}
}

// BuildRequest composes the decision request for an eligible artifact
func BuildRequest(a artifact.Artifact) (greenwave.DecisionRequest, error) {
	if !CanBeGated(a) {
		return greenwave.DecisionRequest{}, fmt.Errorf("%w: %s", ErrNotGateable, a)
	}

	item, err := artifact.NormalizeForGating(a)
	if err != nil {
		return greenwave.DecisionRequest{}, err
	}

	decisionContext, _ := DecisionContext(a)
	return greenwave.DecisionRequest{
		DecisionContext: decisionContext,
		ProductVersion:  ProductVersion(item, a.GateTag, a.Type),
		Subject:         []greenwave.Subject{{Item: item, Type: SubjectType(a.Type)}},
		Rules:           Rules(a),
	}, nil
}
