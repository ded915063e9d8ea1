// Package retry runs an operation with bounded exponential backoff.
//
// The build-system XML-RPC hubs are the only callers that retry; search
// queries are never retried. A typical call:
//
//	build, err := retry.DoWithResult(ctx, cfg, func() (map[string]any, error) {
//	    return hub.call(ctx, "getBuild", id)
//	})
//
// Delays grow by Multiplier up to MaxDelay, with up to 25% jitter when
// AddJitter is set. RetryIf narrows which failures are retried, and errors
// wrapped with NonRetryable stop the loop immediately.
package retry
