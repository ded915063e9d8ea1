package graphql

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/gorilla/websocket"
)

const wsProtocol = "graphql-transport-ws"

// graphql-transport-ws message types
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// graphql-transport-ws close codes
const (
	closeBadRequest          = 4400
	closeUnauthorized        = 4401
	closeSubprotocol         = 4406
	closeInitTimeout         = 4408
	closeSubscriberExists    = 4409
	closeTooManyInitRequests = 4429
)

const wsInitTimeout = 10 * time.Second

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsConn struct {
	handler *Handler
	conn    *websocket.Conn
	logger  *slog.Logger

	writeMu sync.Mutex

	mu  sync.Mutex
	ops map[string]context.CancelFunc
	wg  sync.WaitGroup
}

// serveWebSocket runs query operations sent over a graphql-transport-ws
// connection. Subscriptions proper are not offered by the schema, so every
// operation yields one next message followed by complete.
func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{
		handler: h,
		conn:    conn,
		logger:  loggerFrom(ctx, h.logger),
		ops:     make(map[string]context.CancelFunc),
	}
	defer func() {
		cancel()
		c.wg.Wait()
		_ = conn.Close()
	}()

	if conn.Subprotocol() != wsProtocol {
		c.close(closeSubprotocol, "Subprotocol not acceptable")
		return
	}

	c.run(ctx)
}

func (c *wsConn) run(ctx context.Context) {
	acked := false
	_ = c.conn.SetReadDeadline(time.Now().Add(wsInitTimeout))

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var netErr net.Error
			if !acked && stderrors.As(err, &netErr) && netErr.Timeout() {
				c.close(closeInitTimeout, "Connection initialisation timeout")
				return
			}
			var syntaxErr *json.SyntaxError
			if stderrors.As(err, &syntaxErr) {
				c.close(closeBadRequest, "Invalid message received")
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Websocket read ended", "error", err)
			}
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			if acked {
				c.close(closeTooManyInitRequests, "Too many initialisation requests")
				return
			}
			acked = true
			_ = c.conn.SetReadDeadline(time.Time{})
			c.write(wsMessage{Type: msgConnectionAck})

		case msgPing:
			c.write(wsMessage{Type: msgPong})

		case msgPong:
			// reply to our own keepalive, nothing to do

		case msgSubscribe:
			if !acked {
				c.close(closeUnauthorized, "Unauthorized")
				return
			}
			var params graphql.RawParams
			if msg.ID == "" || json.Unmarshal(msg.Payload, &params) != nil || params.Query == "" {
				c.close(closeBadRequest, "Invalid message received")
				return
			}
			if !c.start(ctx, msg.ID, &params) {
				c.close(closeSubscriberExists, fmt.Sprintf("Subscriber for %s already exists", msg.ID))
				return
			}

		case msgComplete:
			c.cancel(msg.ID)

		default:
			c.close(closeBadRequest, "Invalid message received")
			return
		}
	}
}

// start runs one operation in the background. It reports false when the id
// is already in use.
func (c *wsConn) start(ctx context.Context, id string, params *graphql.RawParams) bool {
	opCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if _, exists := c.ops[id]; exists {
		c.mu.Unlock()
		cancel()
		return false
	}
	c.ops[id] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.cancel(id)

		resp, _ := c.handler.execute(opCtx, params)
		if opCtx.Err() != nil && ctx.Err() == nil && stderrors.Is(opCtx.Err(), context.Canceled) {
			// completed by the client
			return
		}

		if resp.Data == nil {
			payload, _ := json.Marshal(resp.Errors)
			c.write(wsMessage{ID: id, Type: msgError, Payload: payload})
			return
		}

		payload, err := json.Marshal(resp)
		if err != nil {
			c.logger.Error("Cannot encode websocket result", "id", id, "error", err)
			return
		}
		c.write(wsMessage{ID: id, Type: msgNext, Payload: payload})
		c.write(wsMessage{ID: id, Type: msgComplete})
	}()
	return true
}

func (c *wsConn) cancel(id string) {
	c.mu.Lock()
	cancel, ok := c.ops[id]
	delete(c.ops, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *wsConn) write(msg wsMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("Websocket write failed", "type", msg.Type, "error", err)
	}
}

func (c *wsConn) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}
