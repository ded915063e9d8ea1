package graphql

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()
	resolvers := baseResolvers()
	resolvers["Query"]["boom"] = func(context.Context, ResolveParams) (any, error) {
		panic("resolver bug")
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	return NewHandler(testExecutor(t, resolvers, 10), cfg, nil, nil)
}

type httpResult struct {
	Data   map[string]any   `json:"data"`
	Errors []map[string]any `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) httpResult {
	t.Helper()
	var out httpResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandler_HTTP(t *testing.T) {
	h := testHandler(t)

	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		status      int
		check       func(t *testing.T, res httpResult)
	}{
		{
			name:        "post",
			method:      http.MethodPost,
			contentType: "application/json",
			body:        `{"query":"query($id: Int!) { build(id: $id) { id } }","variables":{"id":5}}`,
			status:      http.StatusOK,
			check: func(t *testing.T, res httpResult) {
				assert.Equal(t, map[string]any{"build": map[string]any{"id": float64(5)}}, res.Data)
				assert.Empty(t, res.Errors)
			},
		},
		{
			name:   "get",
			method: http.MethodGet,
			target: "/graphql?" + url.Values{
				"query":     {`query E($v: String) { echo(value: $v) }`},
				"variables": {`{"v":"hello"}`},
			}.Encode(),
			status: http.StatusOK,
			check: func(t *testing.T, res httpResult) {
				assert.Equal(t, "hello", res.Data["echo"])
			},
		},
		{
			name:        "graphql json content type",
			method:      http.MethodPost,
			contentType: "application/graphql+json; charset=utf-8",
			body:        `{"query":"{ echo }"}`,
			status:      http.StatusOK,
		},
		{
			name:        "invalid body",
			method:      http.MethodPost,
			contentType: "application/json",
			body:        `{"query":`,
			status:      http.StatusBadRequest,
		},
		{
			name:        "missing query",
			method:      http.MethodPost,
			contentType: "application/json",
			body:        `{}`,
			status:      http.StatusBadRequest,
		},
		{
			name:   "invalid variables",
			method: http.MethodGet,
			target: "/graphql?query=%7Becho%7D&variables=nope",
			status: http.StatusBadRequest,
		},
		{
			name:        "wrong content type",
			method:      http.MethodPost,
			contentType: "text/plain",
			body:        `{ echo }`,
			status:      http.StatusUnsupportedMediaType,
		},
		{
			name:   "wrong method",
			method: http.MethodDelete,
			status: http.StatusMethodNotAllowed,
		},
		{
			name:        "validation failure",
			method:      http.MethodPost,
			contentType: "application/json",
			body:        `{"query":"{ missing }"}`,
			status:      http.StatusUnprocessableEntity,
			check: func(t *testing.T, res httpResult) {
				assert.Nil(t, res.Data)
				require.NotEmpty(t, res.Errors)
			},
		},
		{
			name:        "resolver panic",
			method:      http.MethodPost,
			contentType: "application/json",
			body:        `{"query":"{ echo boom }"}`,
			status:      http.StatusInternalServerError,
			check: func(t *testing.T, res httpResult) {
				assert.Nil(t, res.Data)
				require.Len(t, res.Errors, 1)
				assert.Equal(t, "internal server error", res.Errors[0]["message"])
				assert.Equal(t, CodeInternal, res.Errors[0]["extensions"].(map[string]any)["code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.target
			if target == "" {
				target = "/graphql"
			}
			req := httptest.NewRequest(tt.method, target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.check != nil {
				tt.check(t, decode(t, rec))
			}
		})
	}
}

func TestHandler_Timeout(t *testing.T) {
	resolvers := baseResolvers()
	resolvers["Query"]["echo"] = func(ctx context.Context, _ ResolveParams) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	cfg := DefaultConfig()
	cfg.TimeoutStr = "100ms"
	require.NoError(t, cfg.Validate())
	h := NewHandler(testExecutor(t, resolvers, 10), cfg, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ echo }"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode(t, rec)
	assert.Nil(t, res.Data["echo"])
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeDeadlineExceeded, res.Errors[0]["extensions"].(map[string]any)["code"])
}

func TestRequestMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	})
	handler := requestMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)), next)

	t.Run("assigns id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("keeps client uuid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "6f1c2b1e-8d4a-4c55-9d7e-0d9c1f6a2b3c")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "6f1c2b1e-8d4a-4c55-9d7e-0d9c1f6a2b3c", seen)
	})

	t.Run("replaces arbitrary id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "not\nan id")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.NotEqual(t, "not\nan id", seen)
		assert.Len(t, seen, 36)
	})
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := corsMiddleware([]string{"https://dashboard.example.com"}, next)

	req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialWS(t *testing.T, srv *httptest.Server, protocols ...string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: protocols, HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/graphql", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	var msg wsMessage
	err := conn.ReadJSON(&msg)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, code), "got %v", err)
}

func TestHandler_WebSocket(t *testing.T) {
	srv := httptest.NewServer(testHandler(t))
	defer srv.Close()

	t.Run("query operation", func(t *testing.T) {
		conn := dialWS(t, srv, wsProtocol)

		require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit}))
		assert.Equal(t, msgConnectionAck, readWS(t, conn).Type)

		require.NoError(t, conn.WriteJSON(wsMessage{Type: msgPing}))
		assert.Equal(t, msgPong, readWS(t, conn).Type)

		payload, _ := json.Marshal(map[string]any{"query": "{ build(id: 9) { id } }"})
		require.NoError(t, conn.WriteJSON(wsMessage{ID: "op-1", Type: msgSubscribe, Payload: payload}))

		next := readWS(t, conn)
		assert.Equal(t, msgNext, next.Type)
		assert.Equal(t, "op-1", next.ID)
		assert.JSONEq(t, `{"data":{"build":{"id":9}}}`, string(next.Payload))

		done := readWS(t, conn)
		assert.Equal(t, msgComplete, done.Type)
		assert.Equal(t, "op-1", done.ID)
	})

	t.Run("invalid operation yields error message", func(t *testing.T) {
		conn := dialWS(t, srv, wsProtocol)
		require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit}))
		readWS(t, conn)

		payload, _ := json.Marshal(map[string]any{"query": "{ missing }"})
		require.NoError(t, conn.WriteJSON(wsMessage{ID: "op-2", Type: msgSubscribe, Payload: payload}))

		msg := readWS(t, conn)
		assert.Equal(t, msgError, msg.Type)
		assert.Equal(t, "op-2", msg.ID)
		var errs []map[string]any
		require.NoError(t, json.Unmarshal(msg.Payload, &errs))
		assert.NotEmpty(t, errs)
	})

	t.Run("subscribe before init", func(t *testing.T) {
		conn := dialWS(t, srv, wsProtocol)
		payload, _ := json.Marshal(map[string]any{"query": "{ echo }"})
		require.NoError(t, conn.WriteJSON(wsMessage{ID: "1", Type: msgSubscribe, Payload: payload}))
		expectClose(t, conn, closeUnauthorized)
	})

	t.Run("duplicate init", func(t *testing.T) {
		conn := dialWS(t, srv, wsProtocol)
		require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit}))
		readWS(t, conn)
		require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit}))
		expectClose(t, conn, closeTooManyInitRequests)
	})

	t.Run("unknown subprotocol", func(t *testing.T) {
		conn := dialWS(t, srv)
		expectClose(t, conn, closeSubprotocol)
	})
}
