// Package metric owns the Prometheus registry of the API.
//
// The registry carries the request metrics (per GraphQL operation), the
// backend metrics (per upstream: elasticsearch, greenwave, waiverdb, koji,
// mbs, distgit), the counters for contained failures, and the Go runtime
// collectors. Components receive the *Metrics value and call the Record
// helpers; a nil *Metrics is valid and records nothing.
package metric
