// Package testutil provides fixtures and fakes shared by the package tests:
// artifact documents shaped like the search index stores them, an
// in-memory search.Searcher that records the requests it receives, and
// testcontainers helpers that start Elasticsearch and NATS for the
// integration tests.
//
// Integration helpers skip the calling test when no container runtime is
// available.
package testutil
