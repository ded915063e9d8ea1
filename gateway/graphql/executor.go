package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/errcode"
	"github.com/99designs/gqlgen/graphql/executor"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/lru"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"golang.org/x/sync/errgroup"
)

// FieldResolver resolves one field. The returned value is completed against
// the field's type and selection set by the executor.
type FieldResolver func(ctx context.Context, p ResolveParams) (any, error)

// Resolvers maps type name and field name to a resolver. Fields without an
// entry read the same-named key of their parent value.
type Resolvers map[string]map[string]FieldResolver

// ResolveParams is what a resolver sees of the field it resolves.
type ResolveParams struct {
	// Source is the parent value. Nil for root fields.
	Source    any
	FieldName string
	Args      map[string]any
	// Selection is the merged sub-selection requested for this field.
	Selection ast.SelectionSet
	Path      ast.Path

	Logger     *slog.Logger
	Dispatcher *Dispatcher
}

// Selects reports whether the selection asks for the named sub-field,
// looking through fragments.
func (p ResolveParams) Selects(name string) bool {
	return selects(p.Selection, name, map[string]bool{})
}

func selects(set ast.SelectionSet, name string, seen map[string]bool) bool {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Name == name {
				return true
			}
		case *ast.InlineFragment:
			if selects(s.SelectionSet, name, seen) {
				return true
			}
		case *ast.FragmentSpread:
			if seen[s.Name] || s.Definition == nil {
				continue
			}
			seen[s.Name] = true
			if selects(s.Definition.SelectionSet, name, seen) {
				return true
			}
		}
	}
	return false
}

// ResolverPanic is raised on the request goroutine when a resolver panicked.
type ResolverPanic struct {
	Path  string
	Value any
	Stack []byte
}

func (p *ResolverPanic) Error() string {
	return fmt.Sprintf("panic resolving %s: %v", p.Path, p.Value)
}

const queryCacheSize = 1000

// Executor runs query operations against a resolver table. It implements
// graphql.ExecutableSchema so that gqlgen's executor owns parsing,
// validation, variable coercion, the query cache and extensions; field
// resolution and completion happen here.
type Executor struct {
	schema    *ast.Schema
	resolvers Resolvers
	logger    *slog.Logger
	gql       *executor.Executor
}

var _ graphql.ExecutableSchema = (*Executor)(nil)

// NewExecutor creates an executor. Introspection resolvers are added to the
// given table.
func NewExecutor(schema *ast.Schema, resolvers Resolvers, maxDepth int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	table := make(Resolvers, len(resolvers)+8)
	for typeName, fields := range resolvers {
		table[typeName] = make(map[string]FieldResolver, len(fields))
		for name, fn := range fields {
			table[typeName][name] = fn
		}
	}
	for typeName, fields := range introspectionResolvers(schema) {
		if table[typeName] == nil {
			table[typeName] = make(map[string]FieldResolver, len(fields))
		}
		for name, fn := range fields {
			table[typeName][name] = fn
		}
	}

	e := &Executor{
		schema:    schema,
		resolvers: table,
		logger:    logger,
	}
	e.gql = executor.New(e)
	e.gql.SetQueryCache(lru.New[*ast.QueryDocument](queryCacheSize))
	e.gql.Use(extension.Introspection{})
	if maxDepth > 0 {
		e.gql.Use(depthLimit{max: maxDepth})
	}
	return e
}

// Schema returns the loaded schema.
func (e *Executor) Schema() *ast.Schema {
	return e.schema
}

// Complexity leaves every field at gqlgen's default cost.
func (e *Executor) Complexity(context.Context, string, string, int, map[string]any) (int, bool) {
	return 0, false
}

// Exec runs the operation of the operation context in ctx.
func (e *Executor) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	if opCtx.Operation.Operation != ast.Query {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "%s operations are not supported", opCtx.Operation.Operation))
	}

	done := false
	return func(ctx context.Context) *graphql.Response {
		if done {
			return nil
		}
		done = true
		return e.run(ctx, opCtx)
	}
}

// Execute parses, validates and runs one request. A response without Data
// means the request was rejected before execution. A resolver panic is
// re-raised here as a *ResolverPanic.
func (e *Executor) Execute(ctx context.Context, params *graphql.RawParams) *graphql.Response {
	ctx = graphql.StartOperationTrace(ctx)

	opCtx, errs := e.gql.CreateOperationContext(ctx, params)
	if errs != nil {
		return e.gql.DispatchError(graphql.WithOperationContext(ctx, opCtx), errs)
	}

	responses, ctx := e.gql.DispatchOperation(ctx, opCtx)
	return responses(ctx)
}

func (e *Executor) run(ctx context.Context, opCtx *graphql.OperationContext) *graphql.Response {
	exec := &execution{
		Executor: e,
		opCtx:    opCtx,
		logger:   loggerFrom(ctx, e.logger),
	}

	var data any
	value, bubbled := exec.executeSelectionSet(ctx, e.schema.Query, opCtx.Operation.SelectionSet, nil, nil)
	if !bubbled {
		data = value
	}

	if exec.panicked != nil {
		panic(exec.panicked)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		exec.addError(nil, err)
		raw = []byte("null")
	}

	return &graphql.Response{Data: raw, Errors: exec.sortedErrors()}
}

// depthLimit rejects operations nested deeper than max.
type depthLimit struct {
	max int
}

var _ interface {
	graphql.HandlerExtension
	graphql.OperationContextMutator
} = depthLimit{}

func (depthLimit) ExtensionName() string {
	return "QueryDepthLimit"
}

func (depthLimit) Validate(graphql.ExecutableSchema) error {
	return nil
}

func (d depthLimit) MutateOperationContext(_ context.Context, opCtx *graphql.OperationContext) *gqlerror.Error {
	if depth := selectionDepth(opCtx.Operation.SelectionSet, map[string]bool{}); depth > d.max {
		err := gqlerror.Errorf("query depth %d exceeds the limit of %d", depth, d.max)
		errcode.Set(err, errcode.ValidationFailed)
		return err
	}
	return nil
}

// selectionDepth counts nested fields. Introspection fields do not count
// since their depth is fixed by the introspection query itself.
func selectionDepth(set ast.SelectionSet, seen map[string]bool) int {
	deepest := 0
	for _, sel := range set {
		var d int
		switch s := sel.(type) {
		case *ast.Field:
			if strings.HasPrefix(s.Name, "__") {
				continue
			}
			d = 1 + selectionDepth(s.SelectionSet, seen)
		case *ast.InlineFragment:
			d = selectionDepth(s.SelectionSet, seen)
		case *ast.FragmentSpread:
			if seen[s.Name] || s.Definition == nil {
				continue
			}
			seen[s.Name] = true
			d = selectionDepth(s.Definition.SelectionSet, seen)
			delete(seen, s.Name)
		}
		if d > deepest {
			deepest = d
		}
	}
	return deepest
}

// execution is the state of one running request.
type execution struct {
	*Executor
	opCtx  *graphql.OperationContext
	logger *slog.Logger

	mu       sync.Mutex
	errs     gqlerror.List
	panicked *ResolverPanic
}

func (e *execution) addError(path ast.Path, err error) {
	gqlErr := toGQLError(err, path)
	e.mu.Lock()
	e.errs = append(e.errs, gqlErr)
	e.mu.Unlock()
}

func (e *execution) recordPanic(path ast.Path, value any) {
	stack := debug.Stack()
	e.logger.Error("Resolver panicked", "path", path.String(), "panic", value, "stack", string(stack))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.panicked == nil {
		e.panicked = &ResolverPanic{Path: path.String(), Value: value, Stack: stack}
	}
}

func (e *execution) sortedErrors() gqlerror.List {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	out := make(gqlerror.List, len(e.errs))
	copy(out, e.errs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Path.String() < out[j].Path.String()
	})
	return out
}

func appendPath(path ast.Path, elem ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

// implementors lists the type names fragments on obj may be conditioned on.
func implementors(obj *ast.Definition) []string {
	return append([]string{obj.Name}, obj.Interfaces...)
}

// executeSelectionSet resolves the fields of one object concurrently. The
// second result reports a null in a non-null field, which nulls the object.
func (e *execution) executeSelectionSet(ctx context.Context, obj *ast.Definition, set ast.SelectionSet, source any, path ast.Path) (any, bool) {
	groups := graphql.CollectFields(e.opCtx, set, implementors(obj))
	values := make([]any, len(groups))
	bubbles := make([]bool, len(groups))

	if len(groups) == 1 {
		values[0], bubbles[0] = e.executeField(ctx, obj, source, groups[0], appendPath(path, ast.PathName(groups[0].Alias)))
	} else {
		var g errgroup.Group
		for i, grp := range groups {
			g.Go(func() error {
				fieldPath := appendPath(path, ast.PathName(grp.Alias))
				defer func() {
					if r := recover(); r != nil {
						e.recordPanic(fieldPath, r)
					}
				}()
				values[i], bubbles[i] = e.executeField(ctx, obj, source, grp, fieldPath)
				return nil
			})
		}
		_ = g.Wait()
	}

	out := &orderedMap{keys: make([]string, len(groups)), values: values}
	for i, grp := range groups {
		if bubbles[i] {
			return nil, true
		}
		out.keys[i] = grp.Alias
	}
	return out, false
}

func (e *execution) executeField(ctx context.Context, obj *ast.Definition, source any, field graphql.CollectedField, path ast.Path) (any, bool) {
	if field.Name == "__typename" {
		return obj.Name, false
	}

	def := field.Definition
	if def == nil {
		def = obj.Fields.ForName(field.Name)
	}
	if def == nil {
		e.addError(path, fmt.Errorf("unknown field %s.%s", obj.Name, field.Name))
		return nil, false
	}

	if e.opCtx.DisableIntrospection && (field.Name == "__schema" || field.Name == "__type") {
		e.addError(path, fmt.Errorf("introspection disabled"))
		return nil, def.Type.NonNull
	}

	resolver := e.resolvers[obj.Name][field.Name]
	if resolver == nil {
		resolver = defaultResolver
	}

	params := ResolveParams{
		Source:     source,
		FieldName:  field.Name,
		Args:       field.ArgumentMap(e.opCtx.Variables),
		Selection:  field.Selections,
		Path:       path,
		Logger:     e.logger,
		Dispatcher: &Dispatcher{exec: e},
	}

	result, err := e.resolve(ctx, resolver, params)
	if err != nil {
		e.addError(path, err)
		return nil, def.Type.NonNull
	}

	return e.completeValue(ctx, def.Type, params.Selection, result, path)
}

var errResolverPanicked = fmt.Errorf("resolver panicked")

func (e *execution) resolve(ctx context.Context, resolver FieldResolver, p ResolveParams) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.recordPanic(p.Path, r)
			result, err = nil, errResolverPanicked
		}
	}()
	return resolver(ctx, p)
}

// completeValue shapes a resolved value after its schema type. The second
// result asks the parent to become null.
func (e *execution) completeValue(ctx context.Context, typ *ast.Type, set ast.SelectionSet, result any, path ast.Path) (any, bool) {
	if typ.NonNull {
		nullable := *typ
		nullable.NonNull = false
		v, bubble := e.completeInner(ctx, &nullable, set, result, path)
		if bubble {
			return nil, true
		}
		if v == nil {
			e.addError(path, fmt.Errorf("cannot return null for non-nullable field"))
			return nil, true
		}
		return v, false
	}

	v, bubble := e.completeInner(ctx, typ, set, result, path)
	if bubble {
		return nil, false
	}
	return v, false
}

func (e *execution) completeInner(ctx context.Context, typ *ast.Type, set ast.SelectionSet, result any, path ast.Path) (any, bool) {
	if isNil(result) {
		return nil, false
	}

	if typ.Elem != nil {
		return e.completeList(ctx, typ.Elem, set, result, path)
	}

	def := e.schema.Types[typ.NamedType]
	if def == nil {
		e.addError(path, fmt.Errorf("unknown type %s", typ.NamedType))
		return nil, false
	}

	switch def.Kind {
	case ast.Scalar:
		v, err := serializeScalar(def.Name, result)
		if err != nil {
			e.addError(path, err)
			return nil, false
		}
		return v, false
	case ast.Enum:
		v, err := serializeEnum(def, result)
		if err != nil {
			e.addError(path, err)
			return nil, false
		}
		return v, false
	case ast.Object:
		return e.executeSelectionSet(ctx, def, set, result, path)
	default:
		e.addError(path, fmt.Errorf("cannot complete value of %s type %s", def.Kind, def.Name))
		return nil, false
	}
}

func (e *execution) completeList(ctx context.Context, elem *ast.Type, set ast.SelectionSet, result any, path ast.Path) (any, bool) {
	rv := reflect.ValueOf(result)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		e.addError(path, fmt.Errorf("expected a list, got %T", result))
		return nil, false
	}

	n := rv.Len()
	items := make([]any, n)
	bubbles := make([]bool, n)

	elemDef := e.schema.Types[elem.Name()]
	if elemDef != nil && elemDef.Kind == ast.Object && n > 1 {
		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				itemPath := appendPath(path, ast.PathIndex(i))
				defer func() {
					if r := recover(); r != nil {
						e.recordPanic(itemPath, r)
					}
				}()
				items[i], bubbles[i] = e.completeValue(ctx, elem, set, rv.Index(i).Interface(), itemPath)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := 0; i < n; i++ {
			items[i], bubbles[i] = e.completeValue(ctx, elem, set, rv.Index(i).Interface(), appendPath(path, ast.PathIndex(i)))
		}
	}

	for _, b := range bubbles {
		if b {
			return nil, true
		}
	}
	return items, false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// defaultResolver reads the same-named map key or json-tagged struct field.
func defaultResolver(_ context.Context, p ResolveParams) (any, error) {
	return fieldValue(p.Source, p.FieldName), nil
}

func fieldValue(source any, name string) any {
	if m, ok := source.(map[string]any); ok {
		return m[name]
	}

	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == name || (tag == "" && f.Name == name) {
			return rv.Field(i).Interface()
		}
	}
	return nil
}

// orderedMap is a response object that keeps the selection order.
type orderedMap struct {
	keys   []string
	values []any
}

func (m *orderedMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
