package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/chat"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/ws"
)

// ProcessingWSEndpoint handles GET /ws/processing: the broadcast channel
// for pipeline progress events.
type ProcessingWSEndpoint struct{}

func (e *ProcessingWSEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ws/processing", e.handler
}

func (e *ProcessingWSEndpoint) RequiresInit() bool { return true }

func (e *ProcessingWSEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svcctx.HubFrom(r.Context()).Serve(w, r, ws.ChannelProcessing)
}

func (e *ProcessingWSEndpoint) Command(_ func() string) *cobra.Command { return nil }

// chatClientFrame is one incoming frame on a chat socket.
type chatClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ChatWSEndpoint handles GET /ws/chat/{session_id}: a streaming RAG
// conversation. The client sends message frames; the server answers each
// with content, sources, and done frames. Stream errors emit an error
// frame and keep the socket open for the next message.
type ChatWSEndpoint struct{}

func (e *ChatWSEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ws/chat/{session_id}", e.handler
}

func (e *ChatWSEndpoint) RequiresInit() bool { return true }

func (e *ChatWSEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sid, err := pathID(r, "session_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	chatSvc := svcctx.ChatFrom(r.Context())
	logger := svcctx.LoggerFrom(r.Context())
	conn, err := svcctx.HubFrom(r.Context()).Upgrade(w, r)
	if err != nil {
		return
	}
	defer conn.Close()

	send := func(frame chat.StreamFrame) error {
		return conn.WriteJSON(frame)
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame chatClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			conn.WriteJSON(chat.StreamFrame{Type: "error", Data: "invalid frame"})
			continue
		}
		switch frame.Type {
		case "ping":
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
		case "message":
			if frame.Content == "" {
				conn.WriteJSON(chat.StreamFrame{Type: "error", Data: "content is required"})
				continue
			}
			if err := chatSvc.Stream(r.Context(), sid, frame.Content, send); err != nil {
				if logger != nil {
					logger.Warn("chat stream failed", "session_id", sid, "error", err)
				}
				conn.WriteJSON(chat.StreamFrame{Type: "error", Data: err.Error()})
			}
		default:
			conn.WriteJSON(chat.StreamFrame{Type: "error", Data: "unknown frame type"})
		}
	}
}

func (e *ChatWSEndpoint) Command(_ func() string) *cobra.Command { return nil }
