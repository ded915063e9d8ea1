package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/c360/ciboard/metric"
	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const maxBodyBytes = 1 << 20

// Handler serves GraphQL over HTTP GET and POST and over websockets using
// the graphql-transport-ws protocol.
type Handler struct {
	executor *Executor
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metric.Metrics
	upgrader websocket.Upgrader
}

// NewHandler creates the GraphQL endpoint handler. config must be validated.
func NewHandler(executor *Executor, config Config, logger *slog.Logger, metrics *metric.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	origins := config.CORSOrigins
	return &Handler{
		executor: executor,
		timeout:  config.Timeout(),
		logger:   logger.With("component", "graphql"),
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			Subprotocols:     []string{wsProtocol},
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if config.EnableCORS {
					return originAllowed(origins, origin)
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.serveWebSocket(w, r)
		return
	}

	var params graphql.RawParams
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		params.Query = q.Get("query")
		params.OperationName = q.Get("operationName")
		if raw := q.Get("variables"); raw != "" {
			if err := decodeJSON([]byte(raw), &params.Variables); err != nil {
				writeErrors(w, http.StatusBadRequest, "variables must be a JSON object")
				return
			}
		}
	case http.MethodPost:
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "application/json" && mediaType != "application/graphql+json" {
			writeErrors(w, http.StatusUnsupportedMediaType, "content type must be application/json")
			return
		}
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			writeErrors(w, http.StatusBadRequest, "request body is not valid JSON")
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeErrors(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if params.Query == "" {
		writeErrors(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, status := h.execute(r.Context(), &params)
	writeJSON(w, status, resp)
}

// execute runs one operation under the query timeout. A resolver panic
// fails the whole request with status 500.
func (h *Handler) execute(ctx context.Context, params *graphql.RawParams) (resp *graphql.Response, status int) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	logger := loggerFrom(ctx, h.logger)
	operation := params.OperationName
	if operation == "" {
		operation = "anonymous"
	}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Request failed", "operation", operation, "panic", rec)
			resp = &graphql.Response{Errors: gqlerror.List{{
				Message:    "internal server error",
				Extensions: map[string]any{"code": CodeInternal},
			}}}
			status = http.StatusInternalServerError
		}
		failed := status != http.StatusOK || len(resp.Errors) > 0
		h.metrics.RecordRequest(operation, failed, time.Since(start))
		logger.Debug("Request served", "operation", operation, "status", status,
			"errors", len(resp.Errors), "duration", time.Since(start))
	}()

	resp = h.executor.Execute(ctx, params)
	status = http.StatusOK
	if resp.Data == nil {
		status = http.StatusUnprocessableEntity
	}
	return resp, status
}

func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func writeErrors(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &graphql.Response{Errors: gqlerror.List{gqlerror.Errorf("%s", message)}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
