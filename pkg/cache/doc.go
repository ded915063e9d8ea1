// # Usage
//
// The collaborator clients cache immutable lookups through GetOrLoad:
//
//	store, err := cache.Open(ctx, cfg.Cache, logger, registry)
//	...
//	build, err := cache.GetOrLoad(ctx, store, logger, "koji.brew.build.123",
//		func(ctx context.Context) (Build, error) { return hub.getBuild(ctx, 123) })
//
// The in-process backend is a TTL cache bounded by max_entries; when full
// the entry closest to expiry is evicted. The nats backend stores the
// same JSON encoding in a JetStream KV bucket whose TTL the server
// enforces, so replicas share lookups.
//
// Cache failures never fail a lookup. A broken backend degrades to calling
// the collaborator directly.
package cache
