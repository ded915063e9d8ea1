package graphql

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
)

// deref follows pointers to the underlying leaf value, as returned by
// accessors like introspection's Name() *string.
func deref(v any) any {
	if _, ok := v.(fmt.Stringer); ok {
		return v
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func serializeScalar(name string, v any) (any, error) {
	v = deref(v)
	switch name {
	case "Int":
		n, ok := toInt(v)
		if !ok || n > math.MaxInt32 || n < math.MinInt32 {
			return nil, fmt.Errorf("Int cannot represent %v", v)
		}
		return n, nil
	case "Float":
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("Float cannot represent %v", v)
		}
		return f, nil
	case "String":
		switch s := v.(type) {
		case string:
			return s, nil
		case json.Number:
			return s.String(), nil
		case fmt.Stringer:
			return s.String(), nil
		}
		return nil, fmt.Errorf("String cannot represent %T", v)
	case "ID":
		switch s := v.(type) {
		case string:
			return s, nil
		case json.Number:
			return s.String(), nil
		}
		if n, ok := toInt(v); ok {
			return strconv.FormatInt(n, 10), nil
		}
		return nil, fmt.Errorf("ID cannot represent %T", v)
	case "Boolean":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("Boolean cannot represent %T", v)
		}
		return b, nil
	default:
		// custom scalars (JSON) pass through as decoded
		return v, nil
	}
}

func serializeEnum(def *ast.Definition, v any) (any, error) {
	var s string
	switch val := deref(v).(type) {
	case string:
		s = val
	case fmt.Stringer:
		s = val.String()
	default:
		return nil, fmt.Errorf("enum %s cannot represent %T", def.Name, v)
	}
	if def.EnumValues.ForName(s) == nil {
		return nil, fmt.Errorf("enum %s has no value %q", def.Name, s)
	}
	return s, nil
}

// toInt accepts the integer shapes that come out of JSON decoding, argument
// coercion and Go code.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Argument accessors. Missing and null arguments read as the zero value.

func argString(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func argBool(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}

func argInt(args map[string]any, name string) int {
	n, _ := toInt(args[name])
	return int(n)
}

func argInt64(args map[string]any, name string) (int64, bool) {
	return toInt(args[name])
}

func argStrings(args map[string]any, name string) []string {
	list, _ := args[name].([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argObjects(args map[string]any, name string) []map[string]any {
	list, _ := args[name].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
