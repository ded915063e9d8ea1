package distgit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/upstream"
)

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	instances := upstream.Instances{"fp": {URL: url}}
	require.NoError(t, instances.Validate())
	return NewClient(instances, nil, nil)
}

func TestClient_CommitInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/0/rpms/bash/c/0123abcd/info", r.URL.Path)
		_, _ = io.WriteString(w, `{"hash":"0123abcd","author":"Jane Doe","message":"Rebase to 5.2"}`)
	}))
	defer srv.Close()

	doc, err := newClient(t, srv.URL).CommitInfo(context.Background(), "fp", "rpms", "bash", "0123abcd")
	require.NoError(t, err)
	assert.Equal(t, "Rebase to 5.2", doc["message"])
}

func TestClient_CommitInfoNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"Commit not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).CommitInfo(context.Background(), "fp", "rpms", "bash", "0123abcd")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestClient_CommitInfoRejectsBadArguments(t *testing.T) {
	client := newClient(t, "http://127.0.0.1:1")
	tests := []struct {
		name, namespace, repo, sha string
	}{
		{"path traversal", "rpms", "../etc", "0123abcd"},
		{"slash in namespace", "rpms/x", "bash", "0123abcd"},
		{"bad sha", "rpms", "bash", "HEAD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CommitInfo(context.Background(), "fp", tt.namespace, tt.repo, tt.sha)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestClient_UnknownInstance(t *testing.T) {
	_, err := newClient(t, "http://127.0.0.1:1").CommitInfo(context.Background(), "cs", "rpms", "bash", "0123abcd")
	assert.True(t, errors.IsFatal(err))
}
