package testutil

import (
	"encoding/json"
	"fmt"
)

// BrewBuildSource is the hit_source of a gateable brew build.
func BrewBuildSource(nvr, gateTag string) map[string]any {
	return map[string]any{
		"type":      "brew-build",
		"nvr":       nvr,
		"taskId":    json.Number("51234567"),
		"buildId":   json.Number("2345678"),
		"scratch":   false,
		"gate_tag":  gateTag,
		"issuer":    "jdoe",
		"component": "foo",
	}
}

// ModuleSource is the hit_source of a module build.
func ModuleSource(nsvc, gateTag string) map[string]any {
	return map[string]any{
		"type":     "redhat-module",
		"nsvc":     nsvc,
		"mbsId":    json.Number("12345"),
		"scratch":  false,
		"gate_tag": gateTag,
	}
}

// ContainerSource is the hit_source of a container image build.
func ContainerSource(nvr string, subtypes ...string) map[string]any {
	raw := make([]any, 0, len(subtypes))
	for _, s := range subtypes {
		raw = append(raw, s)
	}
	return map[string]any{
		"type":     "redhat-container-image",
		"nvr":      nvr,
		"scratch":  false,
		"gate_tag": "cvp-gate",
		"payload":  map[string]any{"osbs_subtypes": raw},
	}
}

// ChildSource is a state document belonging to a test thread.
func ChildSource(threadID, stage, state string) map[string]any {
	return map[string]any{
		"threadId":   threadID,
		"stage":      stage,
		"state":      state,
		"@timestamp": "2024-01-01T00:00:00Z",
	}
}

// RawHit builds a raw search hit as the engine returns it.
func RawHit(index, id string, source map[string]any) map[string]any {
	return map[string]any{
		"_index":  index,
		"_id":     id,
		"_score":  json.Number("1.0"),
		"_source": source,
	}
}

// HitsBlock wraps raw hits in the "hits" block of a search response.
func HitsBlock(hits ...map[string]any) map[string]any {
	raw := make([]any, 0, len(hits))
	for _, h := range hits {
		raw = append(raw, h)
	}
	return map[string]any{
		"total":     map[string]any{"value": json.Number(fmt.Sprint(len(hits))), "relation": "eq"},
		"max_score": json.Number("1.0"),
		"hits":      raw,
	}
}
