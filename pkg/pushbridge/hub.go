// Package pushbridge implements the PushBridge collaborator (SPEC_FULL.md
// § 6.2): a WebSocket hub delivering structured ConversationResponse
// messages and raw streaming text chunks to clients subscribed to a
// conversation. Grounded directly on the teacher's pkg/events/manager.go
// ConnectionManager — connections map and channel-subscription map each
// behind their own mutex, snapshot-under-lock-then-send-outside-lock
// broadcast discipline, and a bounded catch-up query served from
// PersistenceStore.
package pushbridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/morgana-run/morgana/pkg/morgana"
	"github.com/morgana-run/morgana/pkg/persistence"
)

// catchupLimit bounds how many historical turns a reconnecting client is
// replayed, per § 6.2 / § 6.4 "catchupLimit".
const catchupLimit = 200

// ChunkMessage is the streaming envelope forwarded for each TextChunk an
// Agent emits mid-turn (§ 4.6 "Streaming").
type ChunkMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

// ResponseMessage wraps a completed ConversationResponse for delivery.
type ResponseMessage struct {
	Type string                      `json:"type"`
	Body morgana.ConversationResponse `json:"body"`
}

// connection is one live WebSocket client. subscriptions is touched only
// from the single goroutine driving HandleConnection's read loop and its
// deferred cleanup, mirroring the teacher's documented single-owner
// invariant for the same field.
type connection struct {
	id            string
	conn          *websocket.Conn
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// Hub manages WebSocket connections and per-conversation subscriptions —
// one Hub instance per process.
type Hub struct {
	connections map[string]*connection
	mu          sync.RWMutex

	channels  map[string]map[string]bool
	channelMu sync.RWMutex

	store        persistence.Store
	writeTimeout time.Duration

	// maxReconnectBackoff (§ 6.4) is included in the server-side log line
	// for a failed broadcast send; it is not sent to the client.
	maxReconnectBackoff time.Duration
}

// New builds a Hub. store serves the catch-up query; writeTimeout bounds
// every individual WebSocket write.
func New(store persistence.Store, writeTimeout, maxReconnectBackoff time.Duration) *Hub {
	return &Hub{
		connections:         make(map[string]*connection),
		channels:            make(map[string]map[string]bool),
		store:               store,
		writeTimeout:        writeTimeout,
		maxReconnectBackoff: maxReconnectBackoff,
	}
}

// HandleConnection drives one WebSocket connection's lifetime: registers it,
// processes subscribe/unsubscribe control messages, and cleans up on close.
// Blocks until the connection closes or parentCtx is cancelled.
func (h *Hub) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{
		id:            uuid.NewString(),
		conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	h.register(c)
	defer h.unregister(c)

	h.sendJSON(c, map[string]string{"type": "connection.established", "connectionId": c.id})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg controlMessage
		if jsonErr := json.Unmarshal(data, &msg); jsonErr != nil {
			slog.Warn("pushbridge: invalid client message", "connection", c.id, "error", jsonErr)
			continue
		}
		h.handleControlMessage(ctx, c, msg)
	}
}

type controlMessage struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversationId"`
}

func (h *Hub) handleControlMessage(ctx context.Context, c *connection, msg controlMessage) {
	switch msg.Action {
	case "subscribe":
		h.subscribe(c, msg.ConversationID)
		h.sendJSON(c, map[string]string{"type": "subscription.confirmed", "conversationId": msg.ConversationID})
		h.sendCatchup(ctx, c, msg.ConversationID)
	case "unsubscribe":
		h.unsubscribe(c, msg.ConversationID)
	case "ping":
		h.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// PublishResponse delivers resp to every connection subscribed to its
// conversation — the Manager's end-of-turn hand-off to PushBridge (§ 4.1).
func (h *Hub) PublishResponse(resp morgana.ConversationResponse) {
	h.broadcast(resp.ConversationID, ResponseMessage{Type: "response", Body: resp})
}

// PublishChunk forwards one streamed TextChunk's content immediately,
// unbuffered, per § 4.6's streaming contract.
func (h *Hub) PublishChunk(conversationID, text string) {
	h.broadcast(conversationID, ChunkMessage{Type: "chunk", ConversationID: conversationID, Text: text})
}

func (h *Hub) broadcast(conversationID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("pushbridge: marshal broadcast payload", "error", err)
		return
	}

	h.channelMu.RLock()
	subscribers, ok := h.channels[conversationID]
	if !ok {
		h.channelMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(subscribers))
	for id := range subscribers {
		ids = append(ids, id)
	}
	h.channelMu.RUnlock()

	h.mu.RLock()
	conns := make([]*connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := h.sendRaw(c, data); err != nil {
			slog.Warn("pushbridge: send failed, client should reconnect", "connection", c.id, "error", err, "maxReconnectBackoff", h.maxReconnectBackoff)
		}
	}
}

func (h *Hub) sendCatchup(ctx context.Context, c *connection, conversationID string) {
	if h.store == nil {
		return
	}
	turns, err := h.store.History(ctx, conversationID, catchupLimit)
	if err != nil {
		slog.Warn("pushbridge: catchup query failed", "conversation", conversationID, "error", err)
		return
	}
	h.sendJSON(c, map[string]any{"type": "catchup", "conversationId": conversationID, "turns": turns})
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	h.connections[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	delete(h.connections, c.id)
	h.mu.Unlock()

	h.channelMu.Lock()
	for _, subs := range h.channels {
		delete(subs, c.id)
	}
	h.channelMu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) subscribe(c *connection, conversationID string) {
	c.subscriptions[conversationID] = true

	h.channelMu.Lock()
	if _, ok := h.channels[conversationID]; !ok {
		h.channels[conversationID] = make(map[string]bool)
	}
	h.channels[conversationID][c.id] = true
	h.channelMu.Unlock()
}

func (h *Hub) unsubscribe(c *connection, conversationID string) {
	delete(c.subscriptions, conversationID)

	h.channelMu.Lock()
	if subs, ok := h.channels[conversationID]; ok {
		delete(subs, c.id)
	}
	h.channelMu.Unlock()
}

// ActiveConnections reports the number of live WebSocket connections, for
// diagnostics/metrics.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SubscriberCount reports how many connections are subscribed to
// conversationID — unexported-equivalent test/metrics hook.
func (h *Hub) SubscriberCount(conversationID string) int {
	h.channelMu.RLock()
	defer h.channelMu.RUnlock()
	return len(h.channels[conversationID])
}

func (h *Hub) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("pushbridge: marshal message", "connection", c.id, "error", err)
		return
	}
	if err := h.sendRaw(c, data); err != nil {
		slog.Warn("pushbridge: send message", "connection", c.id, "error", err)
	}
}

func (h *Hub) sendRaw(c *connection, data []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}
