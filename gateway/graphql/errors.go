package graphql

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/c360/ciboard/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Error codes carried in extensions.code
const (
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	CodeCancelled        = "CANCELLED"
	CodeMissingConfig    = "MISSING_CONFIGURATION"
	CodeNotFound         = "NOT_FOUND"
	CodeTransient        = "TRANSIENT_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInvalidResponse  = "INVALID_RESPONSE"
	CodeInternal         = "INTERNAL_ERROR"
	CodeQueryError       = "QUERY_ERROR"
)

// errorCode classifies an error for API consumers
func errorCode(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded
	case stderrors.Is(err, context.Canceled):
		return CodeCancelled
	case stderrors.Is(err, errors.ErrMissingConfig):
		return CodeMissingConfig
	case stderrors.Is(err, errors.ErrNotFound):
		return CodeNotFound
	case stderrors.As(err, &syntaxErr), stderrors.As(err, &typeErr):
		return CodeInvalidResponse
	case errors.IsTransient(err):
		return CodeTransient
	case errors.IsInvalid(err):
		return CodeInvalidInput
	case errors.IsFatal(err):
		return CodeInternal
	}
	return CodeQueryError
}

// toGQLError converts err into a located GraphQL error
func toGQLError(err error, path ast.Path) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if stderrors.As(err, &gqlErr) {
		if gqlErr.Path == nil && path != nil {
			cp := *gqlErr
			cp.Path = path
			return &cp
		}
		return gqlErr
	}

	message := err.Error()
	code := errorCode(err)
	switch code {
	case CodeInternal:
		// Fatal classified errors can carry internals; configuration
		// absence is the exception the caller must see.
		message = "internal server error"
	case CodeMissingConfig:
		message = "backend is not configured: " + err.Error()
	}

	return &gqlerror.Error{
		Message: message,
		Path:    path,
		Extensions: map[string]any{
			"code": code,
		},
	}
}

// inputError marks a caller mistake in field arguments
func inputError(field string, err error) error {
	return errors.WrapInvalid(err, "graphql", field, "read arguments")
}
