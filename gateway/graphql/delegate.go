package graphql

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/c360/ciboard/errors"
	"github.com/vektah/gqlparser/v2/ast"
)

// ErrInvalidDelegation is returned when a delegated operation is not a root
// Query field with a resolver or its arguments do not fit the field.
var ErrInvalidDelegation = stderrors.New("invalid delegated operation")

// DelegateRequest asks for a root Query field to be resolved on behalf of
// another field of the same request.
type DelegateRequest struct {
	Operation string
	Args      map[string]any
	// Selection is the caller's own selection set. The delegated resolver
	// sees only what the caller asked for.
	Selection ast.SelectionSet
	Path      ast.Path
}

// Dispatcher resolves delegated operations inside a running request.
type Dispatcher struct {
	exec *execution
}

// Delegate runs the root resolver of req.Operation with req.Args, after
// applying argument defaults from the schema. The value is returned
// unfinished: the calling field completes it against req.Selection, so the
// two fields must share a result type.
func (d *Dispatcher) Delegate(ctx context.Context, req DelegateRequest) (any, error) {
	query := d.exec.schema.Query
	def := query.Fields.ForName(req.Operation)
	resolver := d.exec.resolvers[query.Name][req.Operation]
	if def == nil || resolver == nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %q", ErrInvalidDelegation, req.Operation),
			"graphql", "Delegate", "look up operation")
	}

	args := make(map[string]any, len(def.Arguments))
	for _, argDef := range def.Arguments {
		v, ok := req.Args[argDef.Name]
		if !ok && argDef.DefaultValue != nil {
			dv, err := argDef.DefaultValue.Value(nil)
			if err != nil {
				return nil, errors.WrapFatal(err, "graphql", "Delegate", "default for "+argDef.Name)
			}
			v, ok = dv, true
		}
		if argDef.Type.NonNull && (!ok || v == nil) {
			return nil, errors.WrapFatal(fmt.Errorf("%w: %s requires argument %q", ErrInvalidDelegation, req.Operation, argDef.Name),
				"graphql", "Delegate", "check arguments")
		}
		if ok {
			args[argDef.Name] = v
		}
	}
	for name := range req.Args {
		if def.Arguments.ForName(name) == nil {
			return nil, errors.WrapFatal(fmt.Errorf("%w: %s has no argument %q", ErrInvalidDelegation, req.Operation, name),
				"graphql", "Delegate", "check arguments")
		}
	}

	d.exec.logger.Debug("Delegating field", "operation", req.Operation, "path", req.Path.String())

	return d.exec.resolve(ctx, resolver, ResolveParams{
		FieldName:  req.Operation,
		Args:       args,
		Selection:  req.Selection,
		Path:       req.Path,
		Logger:     d.exec.logger,
		Dispatcher: d,
	})
}
