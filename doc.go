// Package ciboard is the CI dashboard API: one GraphQL endpoint over the
// artifact documents in Elasticsearch and the services a dashboard needs
// next to them.
//
// The query surface lists artifacts (builds, modules, container images,
// composes, pull requests) with their CI child documents, deduplicates
// test threads down to their latest state, and attaches a gating decision
// computed by Greenwave to every artifact that can be gated. Koji, MBS,
// dist-git and WaiverDB lookups are exposed as plain fields.
//
// # Layout
//
//	cmd/ciboard-api     service binary
//	config              YAML configuration with CIBOARD_* overrides
//	gateway/graphql     executor, resolvers, HTTP and websocket transport
//	search              Elasticsearch queries and hit envelopes
//	artifact, thread    document model and thread deduplication
//	gating              gateability and Greenwave request construction
//	upstream/...        Greenwave, WaiverDB, Koji, MBS and dist-git clients
//	health, metric      backend probes and Prometheus metrics
//	errors, pkg/...     classified errors, retry, cache, TLS helpers
//
// A partial failure never fails a whole query: a backend that is down
// turns its field into null while sibling fields resolve normally.
package ciboard
