package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/99designs/gqlgen/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

const testSDL = `
type Query {
  build(id: Int!): Build
  builds: [Build!]
  strict: Strict
  echo(value: String = "default"): String
  boom: String
}

type Build {
  id: Int!
  nvr: String
  tags: [String!]
  owner: Owner!
}

type Owner {
  name: String!
}

type Strict {
  required: String!
  other: String
}
`

func testExecutor(t *testing.T, resolvers Resolvers, maxDepth int) *Executor {
	t.Helper()
	schema := gqlparser.MustLoadSchema(&ast.Source{Name: "test.graphql", Input: testSDL})
	return NewExecutor(schema, resolvers, maxDepth, nil)
}

func build(id int) map[string]any {
	return map[string]any{
		"id":    id,
		"nvr":   "foo-1.0-1.el9",
		"tags":  []string{"rhel-9.4.0-gate"},
		"owner": map[string]any{"name": "jdoe"},
	}
}

func run(t *testing.T, e *Executor, query string, vars map[string]any) (map[string]any, *graphql.Response) {
	t.Helper()
	resp := e.Execute(context.Background(), &graphql.RawParams{Query: query, Variables: vars})
	if resp.Data == nil {
		return nil, resp
	}
	var data map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data, resp
}

func baseResolvers() Resolvers {
	return Resolvers{
		"Query": {
			"build": func(_ context.Context, p ResolveParams) (any, error) {
				return build(argInt(p.Args, "id")), nil
			},
			"builds": func(context.Context, ResolveParams) (any, error) {
				return []map[string]any{build(1), build(2), build(3)}, nil
			},
			"echo": func(_ context.Context, p ResolveParams) (any, error) {
				return p.Args["value"], nil
			},
		},
	}
}

func TestExecute_SelectionFeatures(t *testing.T) {
	e := testExecutor(t, baseResolvers(), 10)

	tests := []struct {
		name     string
		query    string
		vars     map[string]any
		expected string
	}{
		{
			name:     "aliases keep document order",
			query:    `{ b: build(id: 7) { nvr id } a: echo }`,
			expected: `{"b":{"nvr":"foo-1.0-1.el9","id":7},"a":"default"}`,
		},
		{
			name:     "named fragment",
			query:    `query { build(id: 1) { ...F } } fragment F on Build { id owner { name } }`,
			expected: `{"build":{"id":1,"owner":{"name":"jdoe"}}}`,
		},
		{
			name:     "inline fragment and typename",
			query:    `{ build(id: 2) { __typename ... on Build { id } } }`,
			expected: `{"build":{"__typename":"Build","id":2}}`,
		},
		{
			name:     "skip and include",
			query:    `query($s: Boolean!) { build(id: 3) { id @skip(if: $s) nvr @include(if: $s) } }`,
			vars:     map[string]any{"s": true},
			expected: `{"build":{"nvr":"foo-1.0-1.el9"}}`,
		},
		{
			name:     "lists of objects",
			query:    `{ builds { id } }`,
			expected: `{"builds":[{"id":1},{"id":2},{"id":3}]}`,
		},
		{
			name:     "variable argument",
			query:    `query($v: String) { echo(value: $v) }`,
			vars:     map[string]any{"v": "hello"},
			expected: `{"echo":"hello"}`,
		},
		{
			name:     "merged selections of one key",
			query:    `{ build(id: 4) { id } build(id: 4) { nvr } }`,
			expected: `{"build":{"id":4,"nvr":"foo-1.0-1.el9"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.Execute(context.Background(), &graphql.RawParams{Query: tt.query, Variables: tt.vars})
			require.Empty(t, resp.Errors)
			assert.JSONEq(t, tt.expected, string(resp.Data))
			// key order is part of the contract
			if tt.name == "aliases keep document order" {
				assert.Equal(t, tt.expected, string(resp.Data))
			}
		})
	}
}

func TestExecute_FieldErrorNullsOnlyTheField(t *testing.T) {
	resolvers := baseResolvers()
	resolvers["Build"] = map[string]FieldResolver{
		"nvr": func(context.Context, ResolveParams) (any, error) {
			return nil, errors.New("koji unreachable")
		},
	}
	e := testExecutor(t, resolvers, 10)

	data, resp := run(t, e, `{ build(id: 1) { id nvr } echo }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "build.nvr", resp.Errors[0].Path.String())
	assert.Equal(t, CodeQueryError, resp.Errors[0].Extensions["code"])

	b := data["build"].(map[string]any)
	assert.Nil(t, b["nvr"])
	assert.EqualValues(t, 1, b["id"])
	assert.Equal(t, "default", data["echo"])
}

func TestExecute_NullPropagation(t *testing.T) {
	resolvers := baseResolvers()
	resolvers["Query"]["strict"] = func(context.Context, ResolveParams) (any, error) {
		return map[string]any{"other": "x"}, nil
	}
	resolvers["Owner"] = map[string]FieldResolver{
		"name": func(_ context.Context, p ResolveParams) (any, error) {
			return nil, nil
		},
	}
	e := testExecutor(t, resolvers, 10)

	t.Run("non-null field nulls its nullable parent", func(t *testing.T) {
		data, resp := run(t, e, `{ strict { required other } echo }`, nil)
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, "strict.required", resp.Errors[0].Path.String())
		assert.Nil(t, data["strict"])
		assert.Equal(t, "default", data["echo"])
	})

	t.Run("bubbles through non-null object and list item", func(t *testing.T) {
		data, resp := run(t, e, `{ builds { owner { name } } }`, nil)
		require.NotEmpty(t, resp.Errors)
		assert.Nil(t, data["builds"])
	})
}

func TestExecute_ResolverPanicFailsRequest(t *testing.T) {
	resolvers := baseResolvers()
	resolvers["Query"]["boom"] = func(context.Context, ResolveParams) (any, error) {
		panic("index out of range")
	}
	e := testExecutor(t, resolvers, 10)

	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		p, ok := rec.(*ResolverPanic)
		require.True(t, ok)
		assert.Equal(t, "boom", p.Path)
		assert.Equal(t, "index out of range", p.Value)
	}()
	e.Execute(context.Background(), &graphql.RawParams{Query: `{ boom echo }`})
	t.Fatal("expected panic")
}

func TestExecute_Rejections(t *testing.T) {
	e := testExecutor(t, baseResolvers(), 2)

	tests := []struct {
		name  string
		query string
		op    string
		vars  map[string]any
	}{
		{name: "syntax error", query: `{ build(id: 1) { id `},
		{name: "unknown field", query: `{ nope }`},
		{name: "depth limit", query: `{ build(id: 1) { owner { name } } }`},
		{name: "missing variable", query: `query($id: Int!) { build(id: $id) { id } }`},
		{name: "unknown operation", query: `query A { echo }`, op: "B"},
		{name: "ambiguous operation", query: `query A { echo } query B { echo }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.Execute(context.Background(), &graphql.RawParams{
				Query: tt.query, OperationName: tt.op, Variables: tt.vars,
			})
			assert.Nil(t, resp.Data)
			assert.NotEmpty(t, resp.Errors)
		})
	}
}

func TestExecute_RejectionCodes(t *testing.T) {
	e := testExecutor(t, baseResolvers(), 2)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{name: "depth limit", query: `{ build(id: 1) { owner { name } } }`, code: "GRAPHQL_VALIDATION_FAILED"},
		{name: "unknown field", query: `{ nope }`, code: "GRAPHQL_VALIDATION_FAILED"},
		{name: "syntax error", query: `{ build(`, code: "GRAPHQL_PARSE_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.Execute(context.Background(), &graphql.RawParams{Query: tt.query})
			require.Nil(t, resp.Data)
			require.Len(t, resp.Errors, 1)
			assert.Equal(t, tt.code, resp.Errors[0].Extensions["code"])
		})
	}
}

func TestExecute_RepeatedQueryUsesCache(t *testing.T) {
	e := testExecutor(t, baseResolvers(), 10)
	query := `{ build(id: 7) { id nvr } }`

	for range 3 {
		data, resp := run(t, e, query, nil)
		require.Empty(t, resp.Errors)
		assert.Equal(t, float64(7), data["build"].(map[string]any)["id"])
	}
}

func TestExecute_DepthIgnoresIntrospection(t *testing.T) {
	e := testExecutor(t, baseResolvers(), 1)
	data, resp := run(t, e, `{ __schema { queryType { name fields { name type { name ofType { name } } } } } }`, nil)
	require.Empty(t, resp.Errors)

	qt := data["__schema"].(map[string]any)["queryType"].(map[string]any)
	assert.Equal(t, "Query", qt["name"])
	assert.NotEmpty(t, qt["fields"])
}

func TestIntrospection_Type(t *testing.T) {
	e := testExecutor(t, baseResolvers(), 10)
	data, resp := run(t, e, `{
		__type(name: "Build") {
			kind
			name
			fields { name type { kind ofType { kind name } } }
		}
		missing: __type(name: "Nope") { name }
	}`, nil)
	require.Empty(t, resp.Errors)
	assert.Nil(t, data["missing"])

	typ := data["__type"].(map[string]any)
	assert.Equal(t, "OBJECT", typ["kind"])
	fields := typ["fields"].([]any)
	require.Len(t, fields, 4)

	id := fields[0].(map[string]any)
	assert.Equal(t, "id", id["name"])
	idType := id["type"].(map[string]any)
	assert.Equal(t, "NON_NULL", idType["kind"])
	assert.Equal(t, "Int", idType["ofType"].(map[string]any)["name"])

	tags := fields[2].(map[string]any)["type"].(map[string]any)
	assert.Equal(t, "LIST", tags["kind"])
}

func TestIntrospection_ArgsAndDefaults(t *testing.T) {
	e := testExecutor(t, baseResolvers(), 10)
	data, resp := run(t, e, `{
		__type(name: "Query") {
			name
			fields { name args { name defaultValue type { kind name } } }
		}
		__schema { directives { name locations } }
	}`, nil)
	require.Empty(t, resp.Errors)

	fields := map[string]map[string]any{}
	for _, f := range data["__type"].(map[string]any)["fields"].([]any) {
		field := f.(map[string]any)
		fields[field["name"].(string)] = field
	}
	require.Contains(t, fields, "echo")
	require.Contains(t, fields, "builds")
	assert.NotContains(t, fields, "__schema")

	assert.Equal(t, []any{}, fields["builds"]["args"])

	echoArgs := fields["echo"]["args"].([]any)
	require.Len(t, echoArgs, 1)
	value := echoArgs[0].(map[string]any)
	assert.Equal(t, "value", value["name"])
	assert.Equal(t, `"default"`, value["defaultValue"])
	assert.Equal(t, "SCALAR", value["type"].(map[string]any)["kind"])
	assert.Equal(t, "String", value["type"].(map[string]any)["name"])

	var skip map[string]any
	for _, d := range data["__schema"].(map[string]any)["directives"].([]any) {
		if d.(map[string]any)["name"] == "skip" {
			skip = d.(map[string]any)
		}
	}
	require.NotNil(t, skip)
	assert.Contains(t, skip["locations"], "FIELD")
}

func TestResolveParams_Selects(t *testing.T) {
	e := testExecutor(t, baseResolvers(), 10)
	doc, errs := gqlparser.LoadQuery(e.schema, `
		{ build(id: 1) { id ...Owner } }
		fragment Owner on Build { owner { name } }`)
	require.Empty(t, errs)

	set := doc.Operations[0].SelectionSet[0].(*ast.Field).SelectionSet
	p := ResolveParams{Selection: set}
	assert.True(t, p.Selects("id"))
	assert.True(t, p.Selects("owner"))
	assert.False(t, p.Selects("nvr"))
}

func TestFieldValue(t *testing.T) {
	type decision struct {
		Satisfied bool   `json:"policies_satisfied"`
		Summary   string `json:"summary,omitempty"`
		Plain     int
	}

	d := &decision{Satisfied: true, Summary: "All required tests passed", Plain: 3}
	assert.Equal(t, true, fieldValue(d, "policies_satisfied"))
	assert.Equal(t, "All required tests passed", fieldValue(d, "summary"))
	assert.Equal(t, 3, fieldValue(d, "Plain"))
	assert.Nil(t, fieldValue(d, "missing"))
	assert.Nil(t, fieldValue((*decision)(nil), "summary"))
	assert.Equal(t, "x", fieldValue(map[string]any{"k": "x"}, "k"))
}
