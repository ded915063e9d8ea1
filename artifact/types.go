// Package artifact knows the closed set of artifact types stored in the
// search index and converts between their identifier schemes.
package artifact

import (
	stderrors "errors"
	"fmt"
)

// Type is the artifact type tag stored in every artifact document.
type Type string

// Known artifact types.
const (
	BrewBuild            Type = "brew-build"
	KojiBuild            Type = "koji-build"
	KojiBuildCS          Type = "koji-build-cs"
	CoprBuild            Type = "copr-build"
	RedHatModule         Type = "redhat-module"
	RedHatContainerImage Type = "redhat-container-image"
	ProductmdCompose     Type = "productmd-compose"
	DistGitPR            Type = "dist-git-pr"
)

var (
	// ErrUnknownType marks a type tag outside the known enumeration.
	ErrUnknownType = stderrors.New("unknown artifact type")
	// ErrMalformedNSVC marks a module identifier without exactly four fields.
	ErrMalformedNSVC = stderrors.New("malformed NSVC")
)

var allTypes = []Type{
	BrewBuild,
	KojiBuild,
	KojiBuildCS,
	CoprBuild,
	RedHatModule,
	RedHatContainerImage,
	ProductmdCompose,
	DistGitPR,
}

// Types returns every known artifact type.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseType validates a raw type tag.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if _, err := FieldForType(t); err != nil {
		return "", err
	}
	return t, nil
}

// ParseTypes validates a list of raw type tags.
func ParseTypes(raw []string) ([]Type, error) {
	out := make([]Type, 0, len(raw))
	for _, s := range raw {
		t, err := ParseType(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// FieldForType returns the name of the hit_source field holding the
// type-specific identifier. Unknown types yield ErrUnknownType so that
// callers can skip the artifact instead of failing the whole query.
func FieldForType(t Type) (string, error) {
	switch t {
	case BrewBuild, KojiBuild, KojiBuildCS, CoprBuild, RedHatContainerImage:
		return "nvr", nil
	case RedHatModule:
		return "nsvc", nil
	case ProductmdCompose:
		return "compose_id", nil
	case DistGitPR:
		return "uid", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, string(t))
	}
}

const indexBase = "artifacts-"

// IndexForType returns the index holding artifacts of type t.
func IndexForType(prefix string, t Type) (string, error) {
	if _, err := FieldForType(t); err != nil {
		return "", err
	}
	return prefix + indexBase + string(t), nil
}

// WildcardIndex matches every artifact index.
func WildcardIndex(prefix string) string {
	return prefix + indexBase + "*"
}

// IndexesForTypes maps requested types to index names. An empty list
// selects the wildcard.
func IndexesForTypes(prefix string, types []Type) ([]string, error) {
	if len(types) == 0 {
		return []string{WildcardIndex(prefix)}, nil
	}
	seen := make(map[string]struct{}, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		idx, err := IndexForType(prefix, t)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out, nil
}
