// Package search builds artifact and child queries for the document index
// and executes them through Elasticsearch.
package search

import (
	stderrors "errors"
	"fmt"

	"github.com/c360/ciboard/artifact"
)

// Join relations between artifacts and their child documents.
const (
	ParentRelation = "artifact"
	MessageChild   = "message"
	StateChild     = "state"
)

// ChildRelations lists every child relation an artifact can have.
var ChildRelations = []string{MessageChild, StateChild}

// Defaults applied by the builders.
const (
	DefaultSortField   = "taskId"
	DefaultQueryString = "*"
	DefaultPageSize    = 10
)

// numericSortFields are the id fields artifacts may carry. Each artifact
// type carries only some of them.
var numericSortFields = []string{"taskId", "buildId", "mbsId"}

// ErrUnknownChildType marks a child relation outside ChildRelations.
var ErrUnknownChildType = stderrors.New("unknown child type")

// Request is a fully built search: the indexes to hit and the body.
type Request struct {
	Indices []string
	Body    map[string]any
}

// ArtifactsOptions are the caller-facing knobs of an artifact listing.
type ArtifactsOptions struct {
	SortBy      string
	ArtTypes    []artifact.Type
	QueryString string
	Size        int
	From        int
}

// ChildrenOptions select the children of one artifact.
type ChildrenOptions struct {
	ParentID   string
	ParentType artifact.Type // optional, narrows the index
	ChildType  string        // optional, one of ChildRelations
	Size       int
	From       int
}

// BuildArtifactsQuery builds the top-level artifact listing. Only artifacts
// with at least one child document match.
func BuildArtifactsQuery(opts ArtifactsOptions, indexPrefix string) (Request, error) {
	indices, err := artifact.IndexesForTypes(indexPrefix, opts.ArtTypes)
	if err != nil {
		return Request{}, err
	}

	queryString := opts.QueryString
	if queryString == "" {
		queryString = DefaultQueryString
	}

	hasChild := make([]any, 0, len(ChildRelations))
	for _, rel := range ChildRelations {
		hasChild = append(hasChild, map[string]any{
			"has_child": map[string]any{
				"type":  rel,
				"query": map[string]any{"match_all": map[string]any{}},
			},
		})
	}

	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"query_string": map[string]any{
							"query":            queryString,
							"default_operator": "AND",
						},
					},
				},
				"filter": []any{
					map[string]any{
						"bool": map[string]any{
							"should":               hasChild,
							"minimum_should_match": 1,
						},
					},
				},
			},
		},
		"sort":             artifactSort(opts.SortBy),
		"track_total_hits": true,
	}
	paginate(body, opts.Size, opts.From)

	return Request{Indices: indices, Body: body}, nil
}

// artifactSort orders by relevance first, then by the requested numeric id
// and the remaining id fields. Missing fields sort last instead of being
// treated as zero.
func artifactSort(sortBy string) []any {
	if sortBy == "" {
		sortBy = DefaultSortField
	}

	fields := []string{sortBy}
	for _, f := range numericSortFields {
		if f != sortBy {
			fields = append(fields, f)
		}
	}

	sort := []any{map[string]any{"_score": map[string]any{"order": "desc"}}}
	for _, f := range fields {
		sort = append(sort, map[string]any{
			f: map[string]any{
				"order":         "desc",
				"unmapped_type": "long",
				"missing":       "_last",
			},
		})
	}
	return sort
}

// BuildChildrenQuery builds the child listing for one artifact. Without a
// child type every document whose parent is ParentID matches.
func BuildChildrenQuery(opts ChildrenOptions, indexPrefix string) (Request, error) {
	if opts.ParentID == "" {
		return Request{}, fmt.Errorf("children query: parent id is required")
	}

	index := artifact.WildcardIndex(indexPrefix)
	if opts.ParentType != "" {
		idx, err := artifact.IndexForType(indexPrefix, opts.ParentType)
		if err != nil {
			return Request{}, err
		}
		index = idx
	}

	var filter map[string]any
	if opts.ChildType != "" {
		if !isChildRelation(opts.ChildType) {
			return Request{}, fmt.Errorf("%w: %q", ErrUnknownChildType, opts.ChildType)
		}
		filter = map[string]any{
			"parent_id": map[string]any{
				"type": opts.ChildType,
				"id":   opts.ParentID,
			},
		}
	} else {
		filter = map[string]any{
			"has_parent": map[string]any{
				"parent_type": ParentRelation,
				"query": map[string]any{
					"ids": map[string]any{"values": []any{opts.ParentID}},
				},
			},
		}
	}

	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{filter},
			},
		},
		"sort": []any{
			map[string]any{
				"@timestamp": map[string]any{
					"order":         "desc",
					"unmapped_type": "date",
				},
			},
		},
		"track_total_hits": true,
	}
	paginate(body, opts.Size, opts.From)

	return Request{Indices: []string{index}, Body: body}, nil
}

func paginate(body map[string]any, size, from int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	if from < 0 {
		from = 0
	}
	body["size"] = size
	body["from"] = from
}

func isChildRelation(s string) bool {
	for _, rel := range ChildRelations {
		if rel == s {
			return true
		}
	}
	return false
}
