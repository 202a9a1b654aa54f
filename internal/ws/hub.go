// Package ws is the WebSocket layer: a channel-keyed hub plus connection
// plumbing. The processing channel carries pipeline progress; chat
// channels are per-session.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// ChannelProcessing carries pipeline progress events.
	ChannelProcessing = "processing"
)

// Hub fans messages out to connections subscribed to named channels.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]map[*conn]struct{}
}

type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub. checkOrigin decides whether an upgrade
// request's origin is allowed; nil allows all (single-user deployments).
func NewHub(logger *slog.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		logger: logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		conns: make(map[string]map[*conn]struct{}),
	}
}

// Upgrade upgrades the request to a raw WebSocket connection without
// subscribing it to any channel. Callers own the connection lifecycle.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

// Serve upgrades the request and subscribes the connection to a channel
// until the peer goes away. The only incoming frame honored is
// {"type":"ping"}, answered with {"type":"pong"}; everything else is
// discarded.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, channel string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "channel", channel, "error", err)
		return
	}

	c := &conn{ws: ws, send: make(chan []byte, 32)}
	h.subscribe(channel, c)
	h.logger.Debug("websocket connected", "channel", channel)

	go h.writeLoop(c)
	h.readLoop(c)

	h.unsubscribe(channel, c)
	h.logger.Debug("websocket disconnected", "channel", channel)
}

// Broadcast sends a JSON-encoded message to every subscriber of a
// channel. Slow consumers are dropped rather than blocking the caller.
func (h *Hub) Broadcast(channel string, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	var stale []*conn
	for c := range h.conns[channel] {
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.unsubscribe(channel, c)
		close(c.send)
	}
}

// SubscriberCount returns the number of connections on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[channel])
}

func (h *Hub) subscribe(channel string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[channel] == nil {
		h.conns[channel] = make(map[*conn]struct{})
	}
	h.conns[channel][c] = struct{}{}
}

func (h *Hub) unsubscribe(channel string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, channel)
		}
	}
}

func (h *Hub) readLoop(c *conn) {
	defer c.ws.Close()
	c.ws.SetReadLimit(4096)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(payload, &frame) == nil && frame.Type == "ping" {
			select {
			case c.send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}

func (h *Hub) writeLoop(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ProgressEvent is the processing-channel payload for pipeline updates.
type ProgressEvent struct {
	Type     string  `json:"type"`
	BookID   int64   `json:"book_id"`
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
}
