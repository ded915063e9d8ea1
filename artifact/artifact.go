package artifact

import (
	"fmt"
	"strings"
)

// Artifact is the typed view of an artifact document's hit_source.
type Artifact struct {
	Type       Type
	Identifier string
	Scratch    bool
	GateTag    string
	Issuer     string
	Component  string
	Subtypes   []string
}

// FromSource reads an artifact from a raw hit_source document. The type
// must be known; other fields are optional.
func FromSource(src map[string]any) (Artifact, error) {
	rawType, _ := src["type"].(string)
	field, err := FieldForType(Type(rawType))
	if err != nil {
		return Artifact{}, err
	}

	a := Artifact{
		Type:       Type(rawType),
		Identifier: stringField(src, field),
		Scratch:    boolField(src, "scratch"),
		GateTag:    stringField(src, "gate_tag"),
		Issuer:     stringField(src, "issuer"),
		Component:  stringField(src, "component"),
	}
	if payload, ok := src["payload"].(map[string]any); ok {
		a.Subtypes = stringSlice(payload["osbs_subtypes"])
	}
	return a, nil
}

// HasSubtype reports whether the container payload declares subtype.
func (a Artifact) HasSubtype(subtype string) bool {
	for _, s := range a.Subtypes {
		if s == subtype {
			return true
		}
	}
	return false
}

func (a Artifact) String() string {
	return fmt.Sprintf("%s/%s", a.Type, a.Identifier)
}

func stringField(src map[string]any, key string) string {
	switch v := src[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func boolField(src map[string]any, key string) bool {
	switch v := src[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
