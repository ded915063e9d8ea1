// Package health probes the dashboard's backends and aggregates their
// reachability into one status for the /health endpoint.
//
// Each backend registers a Probe with a Monitor:
//
//	monitor := health.NewMonitor(5*time.Second, logger, metrics)
//	monitor.Register("elasticsearch", true, searcher.Ping)
//	monitor.Register("greenwave", false, greenwaveProbe)
//	go monitor.Run(ctx, 30*time.Second)
//
// Only critical backends can make the aggregate unhealthy. A failing
// non-critical backend degrades it, since the fields it serves resolve to
// null while the rest of a query still succeeds.
//
// Probe errors are sanitized before they reach a Status message so URLs,
// paths, addresses and credentials never leak through the health endpoint.
package health
