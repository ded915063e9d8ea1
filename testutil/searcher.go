package testutil

import (
	"context"
	"sync"

	"github.com/c360/ciboard/search"
)

// FakeSearcher answers searches from a handler and records every request.
type FakeSearcher struct {
	mu       sync.Mutex
	requests []search.Request
	handler  func(search.Request) (*search.Response, error)
}

// NewFakeSearcher returns a searcher that delegates to handler.
func NewFakeSearcher(handler func(search.Request) (*search.Response, error)) *FakeSearcher {
	return &FakeSearcher{handler: handler}
}

// StaticSearcher returns the same hits block for every search.
func StaticSearcher(hits map[string]any) *FakeSearcher {
	return NewFakeSearcher(func(search.Request) (*search.Response, error) {
		return &search.Response{Hits: hits}, nil
	})
}

// FailingSearcher fails every search with err.
func FailingSearcher(err error) *FakeSearcher {
	return NewFakeSearcher(func(search.Request) (*search.Response, error) {
		return nil, err
	})
}

// Search implements search.Searcher.
func (f *FakeSearcher) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.handler(req)
}

// Requests returns a copy of the recorded requests.
func (f *FakeSearcher) Requests() []search.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]search.Request, len(f.requests))
	copy(out, f.requests)
	return out
}
