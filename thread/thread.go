// Package thread collapses the child documents of an artifact to the latest
// document of each logical thread.
package thread

import (
	"log/slog"
	"strconv"

	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/search"
)

// missingIDKind labels integrity failures for hits without a thread id.
const missingIDKind = "missing_thread_id"

// IDField is the document field carrying the thread id.
const IDField = "threadId"

// Group is the set of hits sharing one thread id, in input order.
type Group struct {
	ThreadID string
	Hits     []search.Hit
}

// GroupHits partitions hits by thread id. Groups keep the order in which
// their thread id first appears. Hits without a thread id are returned
// separately.
func GroupHits(hits []search.Hit) (groups []Group, orphans []search.Hit) {
	index := make(map[string]int)
	for _, hit := range hits {
		tid := hit.SourceString(IDField)
		if tid == "" {
			orphans = append(orphans, hit)
			continue
		}
		i, ok := index[tid]
		if !ok {
			i = len(groups)
			index[tid] = i
			groups = append(groups, Group{ThreadID: tid})
		}
		groups[i].Hits = append(groups[i].Hits, hit)
	}
	return groups, orphans
}

// Latest returns the hit of the group with the greatest document id.
func (g Group) Latest() search.Hit {
	latest := g.Hits[0]
	for _, hit := range g.Hits[1:] {
		if idLess(latest.ID(), hit.ID()) {
			latest = hit
		}
	}
	return latest
}

// ReduceToLatest keeps one hit per thread: the one with the greatest
// document id. Hits without a thread id are logged, counted as integrity
// failures and dropped. metrics may be nil.
func ReduceToLatest(logger *slog.Logger, metrics *metric.Metrics, hits []search.Hit) []search.Hit {
	if logger == nil {
		logger = slog.Default()
	}

	groups, orphans := GroupHits(hits)
	for _, hit := range orphans {
		logger.Warn("Child document has no thread id, excluded from latest view",
			"doc_id", hit.ID(),
			"index", hit.Info["_index"])
		metrics.RecordIntegrityFailure(missingIDKind)
	}

	out := make([]search.Hit, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Latest())
	}
	return out
}

// idLess compares document ids numerically when both are integers and
// lexically otherwise.
func idLess(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}
