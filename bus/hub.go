// Package bus implements the Event Bus (C7): per-workspace WebSocket
// subscriber sets and best-effort, post-commit broadcast (§4.7). It
// generalizes the teacher's SSE client-set-plus-mutex broadcast pattern
// (internal/web/server.go) to a bidirectional WebSocket so subscribers can
// be probed for liveness, something one-way SSE can't do.
package bus

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/metrics"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = pingInterval + 10*time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscriber is one connected WebSocket client, bound to a single
// workspace by the caller of ServeWS (authentication/binding is out of
// scope here, per §4.7).
type subscriber struct {
	conn        *websocket.Conn
	workspaceID string
	send        chan []byte
}

// Hub maintains workspaceId -> set<subscriber>; each subscriber carries its
// own workspaceID for the reverse lookup. It implements engine.Broadcaster / webhook.Dispatcher's
// sibling interface structurally (no import of engine needed).
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]bool
	log         *zap.Logger
}

// NewHub constructs an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]bool),
		log:         log,
	}
}

// ServeWS upgrades the request to a WebSocket and registers the
// connection under workspaceID, bound by userUid (§6 "/ws?userUid=...").
// Binding a connection to a workspace by authenticated identity happens
// upstream of this handler; here workspaceID is taken as already resolved.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, workspaceID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := &subscriber{conn: conn, workspaceID: workspaceID, send: make(chan []byte, sendBuffer)}
	h.register(sub)

	go h.writePump(sub)
	go h.readPump(sub)
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[sub.workspaceID]
	if !ok {
		set = make(map[*subscriber]bool)
		h.subscribers[sub.workspaceID] = set
	}
	set[sub] = true
	metrics.BusSubscribers.WithLabelValues(sub.workspaceID).Set(float64(len(set)))
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subscribers[sub.workspaceID]; ok {
		delete(set, sub)
		metrics.BusSubscribers.WithLabelValues(sub.workspaceID).Set(float64(len(set)))
		if len(set) == 0 {
			delete(h.subscribers, sub.workspaceID)
		}
	}
	close(sub.send)
}

// Broadcast serializes event once and delivers it to every currently
// connected subscriber of workspaceID whose send channel is ready (§4.7).
// Send errors and full buffers are logged and dropped, never propagated;
// I6 is the caller's responsibility — engines call this only after commit.
func (h *Hub) Broadcast(workspaceID string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("marshal broadcast event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[workspaceID] {
		select {
		case sub.send <- payload:
		default:
			h.log.Warn("subscriber send buffer full, dropping event", zap.String("workspace_id", workspaceID))
		}
	}
}

// writePump drains sub.send to the socket and pings on pingInterval (§4.7
// "probed on a fixed cadence (30 s)").
func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Warn("subscriber send failed, closing connection", zap.String("workspace_id", sub.workspaceID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames but enforces the pong deadline: a
// subscriber that misses a pong by the next probe is terminated and
// removed (§4.7).
func (h *Hub) readPump(sub *subscriber) {
	defer h.unregister(sub)

	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// SubscriberCount reports the number of live subscribers for a workspace,
// used by health/diagnostics endpoints.
func (h *Hub) SubscriberCount(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[workspaceID])
}
