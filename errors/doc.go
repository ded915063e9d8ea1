// Package errors classifies failures so that callers can decide how to react.
//
// Three classes exist:
//
//   - Transient: a backend was unreachable, slow, or returned a server error.
//     The GraphQL layer logs these and resolves the affected field to null.
//   - Invalid: the request or an upstream document was malformed.
//   - Fatal: a deployment precondition is missing (for example an upstream
//     URL was never configured). These are surfaced to the caller.
//
// Errors are wrapped with the "component.method: action failed: %w" pattern:
//
//	if err != nil {
//	    return errors.WrapTransient(err, "greenwave", "Decision", "post decision")
//	}
//
// Standard library errors.Is and errors.As keep working through the wrappers.
package errors
