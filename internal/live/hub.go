// Package live serves the websocket endpoint clients use to receive pushes.
//
// Frames in both directions are JSON objects {"event": name, "data": payload}.
// A client binds its connection to a user by sending
// {"event":"register","data":{"userId":"..."}} and receives
// {"event":"registered","data":{"userId":"..."}} back.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/matheus3301/wabiz/internal/bus"
	"github.com/matheus3301/wabiz/internal/metrics"
	"github.com/matheus3301/wabiz/internal/registry"
	"go.uber.org/zap"
)

// Event names on the wire.
const (
	EventRegister            = "register"
	EventRegistered          = "registered"
	EventNewMessage          = "new_message"
	EventMessageStatusUpdate = "message_status_update"
)

// WriteTimeout bounds every push.
const WriteTimeout = 5 * time.Second

// ErrUnknownConnection is returned by Push when the connection id is not open.
var ErrUnknownConnection = errors.New("unknown connection")

// Frame is the envelope of every websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type registerData struct {
	UserID string `json:"userId"`
}

// Hub tracks open websocket connections by connection id.
type Hub struct {
	reg     *registry.Registry
	bus     *bus.Bus
	metrics *metrics.Metrics
	log     *zap.Logger

	mu     sync.RWMutex
	conns  map[string]*conn
	closed bool
}

type conn struct {
	id string
	ws *websocket.Conn
	// websocket.Conn allows one concurrent writer.
	wmu sync.Mutex
}

func (c *conn) write(ctx context.Context, v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, v)
}

// NewHub creates a hub that binds users in reg.
func NewHub(reg *registry.Registry, b *bus.Bus, m *metrics.Metrics, log *zap.Logger) *Hub {
	return &Hub{
		reg:     reg,
		bus:     b,
		metrics: m,
		log:     log.Named("live"),
		conns:   make(map[string]*conn),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	c := &conn{id: uuid.NewString(), ws: ws}
	if !h.add(c) {
		_ = ws.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	h.log.Debug("connection opened", zap.String("conn_id", c.id), zap.String("remote", r.RemoteAddr))

	err = h.readLoop(r.Context(), c)
	h.remove(c)

	status := websocket.CloseStatus(err)
	if status == -1 && !errors.Is(err, context.Canceled) {
		h.log.Debug("connection read failed", zap.String("conn_id", c.id), zap.Error(err))
	}
	_ = ws.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) readLoop(ctx context.Context, c *conn) error {
	for {
		typ, b, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		var f Frame
		if typ != websocket.MessageText || json.Unmarshal(b, &f) != nil {
			h.log.Debug("ignoring malformed frame", zap.String("conn_id", c.id))
			continue
		}
		switch f.Event {
		case EventRegister:
			h.register(ctx, c, f.Data)
		default:
			h.log.Debug("ignoring client event", zap.String("conn_id", c.id), zap.String("event", f.Event))
		}
	}
}

func (h *Hub) register(ctx context.Context, c *conn, data json.RawMessage) {
	var rd registerData
	if len(data) > 0 {
		_ = json.Unmarshal(data, &rd)
	}
	if rd.UserID == "" {
		h.log.Warn("register without userId", zap.String("conn_id", c.id))
		return
	}

	h.reg.Register(rd.UserID, c.id)
	h.log.Info("user registered", zap.String("user_id", rd.UserID), zap.String("conn_id", c.id))
	h.bus.Publish(bus.NewEvent(bus.KindLiveRegistered, map[string]string{
		"userId": rd.UserID,
		"connId": c.id,
	}))

	if err := c.write(ctx, outFrame{Event: EventRegistered, Data: rd}); err != nil {
		h.log.Debug("registered reply failed", zap.String("conn_id", c.id), zap.Error(err))
	}
}

func (h *Hub) add(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.id] = c
	h.metrics.LiveConnections.Inc()
	return true
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	_, ok := h.conns[c.id]
	delete(h.conns, c.id)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.metrics.LiveConnections.Dec()

	userID, bound := h.reg.Unregister(c.id)
	if bound {
		h.log.Info("user disconnected", zap.String("user_id", userID), zap.String("conn_id", c.id))
	}
	h.bus.Publish(bus.NewEvent(bus.KindLiveClosed, map[string]string{
		"userId": userID,
		"connId": c.id,
	}))
}

// Push sends one event to a connection. Failures are returned, never retried.
func (h *Hub) Push(ctx context.Context, connID, event string, data any) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("push %s to %s: %w", event, connID, ErrUnknownConnection)
	}
	if err := c.write(ctx, outFrame{Event: event, Data: data}); err != nil {
		return fmt.Errorf("push %s to %s: %w", event, connID, err)
	}
	return nil
}

// Broadcast sends an event to every open connection and returns how many
// writes succeeded.
func (h *Hub) Broadcast(ctx context.Context, event string, data any) int {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if err := c.write(ctx, outFrame{Event: event, Data: data}); err != nil {
			h.log.Debug("broadcast write failed", zap.String("conn_id", c.id), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close closes every open connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close(websocket.StatusGoingAway, "shutting down")
	}
}
