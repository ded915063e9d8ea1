package search

import (
	"encoding/json"
	"fmt"
)

// Hit is the envelope every returned document is wrapped in: the document
// body in Source and the index metadata (_id, _index, _score, ...) in Info.
// The two never overlap.
type Hit struct {
	Source map[string]any `json:"hit_source"`
	Info   map[string]any `json:"hit_info"`
}

// Result is an enveloped search response.
type Result struct {
	Hits     []Hit          `json:"hits"`
	HitsInfo map[string]any `json:"hits_info"`
}

const sourceKey = "_source"

// SplitHit separates a raw hit into its envelope.
func SplitHit(raw map[string]any) Hit {
	hit := Hit{Info: make(map[string]any, len(raw))}
	for k, v := range raw {
		if k == sourceKey {
			if src, ok := v.(map[string]any); ok {
				hit.Source = src
				continue
			}
		}
		hit.Info[k] = v
	}
	return hit
}

// Raw recombines the envelope into the raw hit it came from.
func (h Hit) Raw() map[string]any {
	raw := make(map[string]any, len(h.Info)+1)
	for k, v := range h.Info {
		raw[k] = v
	}
	if h.Source != nil {
		raw[sourceKey] = h.Source
	}
	return raw
}

// ID returns the document id from the index metadata.
func (h Hit) ID() string {
	switch v := h.Info["_id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// SourceString reads a string field of the document body.
func (h Hit) SourceString(key string) string {
	s, _ := h.Source[key].(string)
	return s
}

// Envelope splits every raw hit and keeps the remaining metadata of the
// hits block (total, max_score) without the hits array itself.
func Envelope(resp *Response) Result {
	result := Result{
		Hits:     []Hit{},
		HitsInfo: map[string]any{},
	}
	if resp == nil {
		return result
	}

	for k, v := range resp.Hits {
		if k == "hits" {
			continue
		}
		result.HitsInfo[k] = v
	}

	rawHits, _ := resp.Hits["hits"].([]any)
	for _, item := range rawHits {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		result.Hits = append(result.Hits, SplitHit(raw))
	}
	return result
}

// WithTotal returns a copy of r whose hits_info.total reflects n hits.
func (r Result) WithTotal(n int) Result {
	info := make(map[string]any, len(r.HitsInfo))
	for k, v := range r.HitsInfo {
		info[k] = v
	}
	info["total"] = map[string]any{"value": n, "relation": "eq"}
	return Result{Hits: r.Hits, HitsInfo: info}
}
