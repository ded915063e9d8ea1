package mbs

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/ciboard/errors"
)

//go:embed build.schema.json
var buildSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func buildSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(buildSchemaJSON))
	})
	return schema, schemaErr
}

// Validate checks a flattened module build document against the build
// schema.
func Validate(doc map[string]any) error {
	s, err := buildSchema()
	if err != nil {
		return errors.WrapFatal(err, "mbs", "Validate", "compile build schema")
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return errors.WrapInvalid(err, "mbs", "Validate", "load build document")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", ErrInvalidBuild, strings.Join(msgs, "; ")),
		"mbs", "Validate", "validate build document")
}
