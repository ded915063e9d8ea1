package thread

import (
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ciboard/metric"
	"github.com/c360/ciboard/search"
)

func hit(id, threadID string) search.Hit {
	src := map[string]any{"msg": id}
	if threadID != "" {
		src[IDField] = threadID
	}
	return search.Hit{Source: src, Info: map[string]any{"_id": id}}
}

func ids(hits []search.Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.ID())
	}
	return out
}

func TestReduceToLatest(t *testing.T) {
	tests := []struct {
		name string
		hits []search.Hit
		want []string
	}{
		{
			name: "greatest numeric id per thread",
			hits: []search.Hit{hit("3", "a"), hit("10", "a"), hit("7", "b"), hit("2", "b")},
			want: []string{"10", "7"},
		},
		{
			name: "order of first appearance",
			hits: []search.Hit{hit("1", "z"), hit("2", "y"), hit("3", "z")},
			want: []string{"3", "2"},
		},
		{
			name: "lexical when ids are not integers",
			hits: []search.Hit{hit("b-1", "t"), hit("c-0", "t"), hit("a-9", "t")},
			want: []string{"c-0"},
		},
		{
			name: "mixed ids compare lexically",
			hits: []search.Hit{hit("9", "t"), hit("10x", "t")},
			want: []string{"9"},
		},
		{
			name: "missing thread id excluded",
			hits: []search.Hit{hit("5", ""), hit("6", "t")},
			want: []string{"6"},
		},
		{
			name: "empty input",
			hits: nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReduceToLatest(nil, nil, tt.hits)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestReduceToLatest_Deterministic(t *testing.T) {
	hits := []search.Hit{hit("4", "a"), hit("8", "b"), hit("6", "a"), hit("1", "c")}
	first := ids(ReduceToLatest(nil, nil, hits))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ids(ReduceToLatest(nil, nil, hits)))
	}
}

func TestGroupHits(t *testing.T) {
	groups, orphans := GroupHits([]search.Hit{hit("1", "a"), hit("2", ""), hit("3", "a"), hit("4", "b")})
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].ThreadID)
	assert.Equal(t, []string{"1", "3"}, ids(groups[0].Hits))
	assert.Equal(t, "b", groups[1].ThreadID)
	assert.Equal(t, []string{"2"}, ids(orphans))
}

func TestReduceToLatest_GroupsByThreadIDField(t *testing.T) {
	hits := []search.Hit{
		{Source: map[string]any{"threadId": "t1"}, Info: map[string]any{"_id": "1"}},
		{Source: map[string]any{"threadId": "t1"}, Info: map[string]any{"_id": "2"}},
		{Source: map[string]any{"threadId": "t2"}, Info: map[string]any{"_id": "3"}},
	}

	got := ReduceToLatest(nil, nil, hits)
	assert.Equal(t, []string{"2", "3"}, ids(got))
}

func TestReduceToLatest_CountsOrphans(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	got := ReduceToLatest(nil, metrics, []search.Hit{hit("1", ""), hit("2", "a"), hit("3", "")})
	assert.Equal(t, []string{"2"}, ids(got))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(metrics.IntegrityFailures.WithLabelValues("missing_thread_id")))
}
