package search

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitHit_RoundTrip(t *testing.T) {
	raw := map[string]any{
		"_id":     "42",
		"_index":  "artifacts-brew-build",
		"_score":  json.Number("1.5"),
		"_source": map[string]any{"nvr": "foo-1.0-1.el9", "type": "brew-build"},
		"sort":    []any{json.Number("1.5"), json.Number("42")},
	}

	hit := SplitHit(raw)
	assert.Equal(t, "foo-1.0-1.el9", hit.SourceString("nvr"))
	assert.NotContains(t, hit.Info, "_source")
	for k := range hit.Source {
		assert.NotContains(t, hit.Info, k)
	}

	assert.Equal(t, raw, hit.Raw())
}

func TestHit_ID(t *testing.T) {
	assert.Equal(t, "abc", Hit{Info: map[string]any{"_id": "abc"}}.ID())
	assert.Equal(t, "17", Hit{Info: map[string]any{"_id": json.Number("17")}}.ID())
	assert.Equal(t, "", Hit{Info: map[string]any{}}.ID())
}

func TestEnvelope(t *testing.T) {
	resp := &Response{
		Hits: map[string]any{
			"total":     map[string]any{"value": json.Number("2"), "relation": "eq"},
			"max_score": json.Number("1.0"),
			"hits": []any{
				map[string]any{"_id": "1", "_source": map[string]any{"nvr": "a"}},
				map[string]any{"_id": "2", "_source": map[string]any{"nvr": "b"}},
			},
		},
	}

	result := Envelope(resp)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, "a", result.Hits[0].SourceString("nvr"))
	assert.Equal(t, "2", result.Hits[1].ID())
	assert.NotContains(t, result.HitsInfo, "hits")
	assert.Contains(t, result.HitsInfo, "total")
	assert.Contains(t, result.HitsInfo, "max_score")
}

func TestEnvelope_Nil(t *testing.T) {
	result := Envelope(nil)
	assert.Empty(t, result.Hits)
	assert.NotNil(t, result.HitsInfo)
}

func TestResult_WithTotal(t *testing.T) {
	orig := Result{HitsInfo: map[string]any{
		"total":     map[string]any{"value": 9, "relation": "gte"},
		"max_score": 2,
	}}

	updated := orig.WithTotal(3)
	assert.Equal(t, map[string]any{"value": 3, "relation": "eq"}, updated.HitsInfo["total"])
	assert.Equal(t, 2, updated.HitsInfo["max_score"])
	assert.Equal(t, map[string]any{"value": 9, "relation": "gte"}, orig.HitsInfo["total"], "original untouched")
}
