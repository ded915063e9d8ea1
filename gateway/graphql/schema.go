package graphql

import (
	_ "embed"
	"sync"

	"github.com/c360/ciboard/errors"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphql
var schemaSDL string

var (
	schemaOnce   sync.Once
	loadedSchema *ast.Schema
	schemaErr    error
)

// Schema returns the parsed API schema. It is parsed once per process.
func Schema() (*ast.Schema, error) {
	schemaOnce.Do(func() {
		s, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSDL})
		if err != nil {
			schemaErr = errors.WrapFatal(err, "graphql", "Schema", "load embedded schema")
			return
		}
		loadedSchema = s
	})
	return loadedSchema, schemaErr
}
