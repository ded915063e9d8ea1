// Package graphql serves the dashboard's GraphQL API.
//
// The schema (schema.graphql, embedded) federates the artifact search index
// with the gating, waiver, build, module-build and dist-git backends. Queries
// are parsed and validated with gqlparser and run by Executor against a
// table of FieldResolvers. Fields of one object, and objects of one list,
// resolve concurrently.
//
// # Partial failures
//
// A backend failure nulls only the field that needed the backend: it is
// logged, counted in ciboard_resolver_swallowed_errors_total and the rest
// of the response is unaffected. Missing backend configuration and rejected
// arguments are reported as field errors instead. A panicking resolver fails
// the whole request with HTTP 500.
//
// # Delegation
//
// Artifact.gatingDecision does not call the policy engine itself. It builds
// the decision arguments for the artifact and hands them, with its own
// selection set, to the greenwaveDecision root field through
// Dispatcher.Delegate. greenwaveDecision asks the engine for verbose output
// only when results or waivers are selected.
//
//	{
//	  artifacts(artTypes: ["redhat-module"], paginationSize: 5) {
//	    hits {
//	      hit_source
//	      children(onlyActual: true) { hits { hit_source } hits_info }
//	      gatingDecision { policies_satisfied summary }
//	    }
//	  }
//	}
//
// # Transports
//
// Handler accepts GET and POST requests and graphql-transport-ws websocket
// connections on the same path. Server adds the playground, /health and
// /metrics.
package graphql
