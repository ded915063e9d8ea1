package artifact

import (
	"fmt"
	"strings"
)

// ConvertNsvcToNvr turns name:stream:version:context into the NVR used by
// the gating engine: name-stream_with_underscores-version.context.
func ConvertNsvcToNvr(nsvc string) (string, error) {
	parts := strings.Split(nsvc, ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: %q has %d fields, want 4", ErrMalformedNSVC, nsvc, len(parts))
	}
	name, stream, version, context := parts[0], parts[1], parts[2], parts[3]
	return fmt.Sprintf("%s-%s-%s.%s", name, strings.ReplaceAll(stream, "-", "_"), version, context), nil
}

// NormalizeForGating returns the identifier the gating engine knows the
// artifact by.
func NormalizeForGating(a Artifact) (string, error) {
	if a.Type == RedHatModule {
		return ConvertNsvcToNvr(a.Identifier)
	}
	return a.Identifier, nil
}
