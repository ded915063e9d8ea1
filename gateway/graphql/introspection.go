package graphql

import (
	"context"

	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/vektah/gqlparser/v2/ast"
)

// source returns the parent value as *T whether the parent list held values
// or pointers.
func source[T any](p ResolveParams) *T {
	switch v := p.Source.(type) {
	case *T:
		return v
	case T:
		return &v
	}
	return nil
}

func method[T any](fn func(*T) any) FieldResolver {
	return func(_ context.Context, p ResolveParams) (any, error) {
		v := source[T](p)
		if v == nil {
			return nil, nil
		}
		return fn(v), nil
	}
}

// introspectionResolvers serves __schema and __type from gqlgen's
// introspection model.
func introspectionResolvers(schema *ast.Schema) Resolvers {
	wrapped := introspection.WrapSchema(schema)

	return Resolvers{
		schema.Query.Name: {
			"__schema": func(context.Context, ResolveParams) (any, error) {
				return wrapped, nil
			},
			"__type": func(_ context.Context, p ResolveParams) (any, error) {
				return introspection.WrapTypeFromDef(schema, schema.Types[argString(p.Args, "name")]), nil
			},
		},
		"__Schema": {
			"description":      method(func(s *introspection.Schema) any { return s.Description() }),
			"types":            method(func(s *introspection.Schema) any { return s.Types() }),
			"queryType":        method(func(s *introspection.Schema) any { return s.QueryType() }),
			"mutationType":     method(func(s *introspection.Schema) any { return s.MutationType() }),
			"subscriptionType": method(func(s *introspection.Schema) any { return s.SubscriptionType() }),
			"directives":       method(func(s *introspection.Schema) any { return s.Directives() }),
		},
		"__Type": {
			"kind":           method(func(t *introspection.Type) any { return t.Kind() }),
			"name":           method(func(t *introspection.Type) any { return t.Name() }),
			"description":    method(func(t *introspection.Type) any { return t.Description() }),
			"specifiedByURL": method(func(t *introspection.Type) any { return t.SpecifiedByURL() }),
			"isOneOf":        method(func(t *introspection.Type) any { return t.IsOneOf() }),
			"interfaces":     method(func(t *introspection.Type) any { return t.Interfaces() }),
			"possibleTypes":  method(func(t *introspection.Type) any { return t.PossibleTypes() }),
			"inputFields":    method(func(t *introspection.Type) any { return t.InputFields() }),
			"ofType":         method(func(t *introspection.Type) any { return t.OfType() }),
			"fields": func(_ context.Context, p ResolveParams) (any, error) {
				t := source[introspection.Type](p)
				if t == nil {
					return nil, nil
				}
				return t.Fields(argBool(p.Args, "includeDeprecated")), nil
			},
			"enumValues": func(_ context.Context, p ResolveParams) (any, error) {
				t := source[introspection.Type](p)
				if t == nil {
					return nil, nil
				}
				return t.EnumValues(argBool(p.Args, "includeDeprecated")), nil
			},
		},
		"__Field": {
			"name":        method(func(f *introspection.Field) any { return f.Name }),
			"description": method(func(f *introspection.Field) any { return f.Description() }),
			"args": method(func(f *introspection.Field) any {
				if f.Args == nil {
					return []introspection.InputValue{}
				}
				return f.Args
			}),
			"type":              method(func(f *introspection.Field) any { return f.Type }),
			"isDeprecated":      method(func(f *introspection.Field) any { return f.IsDeprecated() }),
			"deprecationReason": method(func(f *introspection.Field) any { return f.DeprecationReason() }),
		},
		"__InputValue": {
			"name":              method(func(v *introspection.InputValue) any { return v.Name }),
			"description":       method(func(v *introspection.InputValue) any { return v.Description() }),
			"type":              method(func(v *introspection.InputValue) any { return v.Type }),
			"defaultValue":      method(func(v *introspection.InputValue) any { return v.DefaultValue }),
			"isDeprecated":      method(func(v *introspection.InputValue) any { return v.IsDeprecated() }),
			"deprecationReason": method(func(v *introspection.InputValue) any { return v.DeprecationReason() }),
		},
		"__EnumValue": {
			"name":              method(func(v *introspection.EnumValue) any { return v.Name }),
			"description":       method(func(v *introspection.EnumValue) any { return v.Description() }),
			"isDeprecated":      method(func(v *introspection.EnumValue) any { return v.IsDeprecated() }),
			"deprecationReason": method(func(v *introspection.EnumValue) any { return v.DeprecationReason() }),
		},
		"__Directive": {
			"name":         method(func(d *introspection.Directive) any { return d.Name }),
			"description":  method(func(d *introspection.Directive) any { return d.Description() }),
			"locations":    method(func(d *introspection.Directive) any { return d.Locations }),
			"args":         method(func(d *introspection.Directive) any { return d.Args }),
			"isRepeatable": method(func(d *introspection.Directive) any { return d.IsRepeatable }),
		},
	}
}
