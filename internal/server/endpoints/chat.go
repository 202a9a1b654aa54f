package endpoints

import (
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/api"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/types"
)

// CreateSessionRequest starts a new chat session.
type CreateSessionRequest struct {
	Title   string  `json:"title,omitempty"`
	BookIDs []int64 `json:"book_ids,omitempty"`
}

// CreateSessionEndpoint handles POST /api/v1/chat/sessions.
type CreateSessionEndpoint struct{}

func (e *CreateSessionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/chat/sessions", e.handler
}

func (e *CreateSessionEndpoint) RequiresInit() bool { return true }

func (e *CreateSessionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	session, err := svcctx.ChatFrom(r.Context()).CreateSession(r.Context(), req.Title, req.BookIDs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (e *CreateSessionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "chat-new",
		Short: "Create a new chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp types.ChatSession
			if err := client.Post(cmd.Context(), "/api/v1/chat/sessions", CreateSessionRequest{Title: title}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "session title")
	return cmd
}

// SessionsResponse lists chat sessions.
type SessionsResponse struct {
	Sessions []*types.ChatSession `json:"sessions"`
	Count    int                  `json:"count"`
}

// ListSessionsEndpoint handles GET /api/v1/chat/sessions.
type ListSessionsEndpoint struct{}

func (e *ListSessionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/chat/sessions", e.handler
}

func (e *ListSessionsEndpoint) RequiresInit() bool { return true }

func (e *ListSessionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessions, err := svcctx.ChatFrom(r.Context()).Sessions(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions, Count: len(sessions)})
}

func (e *ListSessionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat-sessions",
		Short: "List chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SessionsResponse
			if err := client.Get(cmd.Context(), "/api/v1/chat/sessions", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DeleteSessionEndpoint handles DELETE /api/v1/chat/sessions/{sid}.
type DeleteSessionEndpoint struct{}

func (e *DeleteSessionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/v1/chat/sessions/{sid}", e.handler
}

func (e *DeleteSessionEndpoint) RequiresInit() bool { return true }

func (e *DeleteSessionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sid, err := pathID(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := svcctx.ChatFrom(r.Context()).DeleteSession(r.Context(), sid); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (e *DeleteSessionEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat-delete <session-id>",
		Short: "Delete a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			return client.Delete(cmd.Context(), "/api/v1/chat/sessions/"+args[0])
		},
	}
}

// MessagesResponse lists messages of a session.
type MessagesResponse struct {
	Messages []*types.ChatMessage `json:"messages"`
	Count    int                  `json:"count"`
}

// SessionMessagesEndpoint handles GET /api/v1/chat/sessions/{sid}/messages.
type SessionMessagesEndpoint struct{}

func (e *SessionMessagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/chat/sessions/{sid}/messages", e.handler
}

func (e *SessionMessagesEndpoint) RequiresInit() bool { return true }

func (e *SessionMessagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sid, err := pathID(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	messages, err := svcctx.ChatFrom(r.Context()).Messages(r.Context(), sid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: messages, Count: len(messages)})
}

func (e *SessionMessagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat-messages <session-id>",
		Short: "List messages of a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp MessagesResponse
			path := "/api/v1/chat/sessions/" + args[0] + "/messages"
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// SendMessageRequest is one user turn.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageEndpoint handles POST /api/v1/chat/sessions/{sid}/messages:
// the synchronous RAG turn. Streaming goes over /ws/chat/{session_id}.
type SendMessageEndpoint struct{}

func (e *SendMessageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/chat/sessions/{sid}/messages", e.handler
}

func (e *SendMessageEndpoint) RequiresInit() bool { return true }

func (e *SendMessageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sid, err := pathID(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req SendMessageRequest
	if err := decodeBody(r, &req); err != nil || req.Content == "" {
		writeError(w, http.StatusUnprocessableEntity, "content is required")
		return
	}
	reply, err := svcctx.ChatFrom(r.Context()).Send(r.Context(), sid, req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (e *SendMessageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <session-id> <message>",
		Short: "Send a chat message and print the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp types.ChatMessage
			path := "/api/v1/chat/sessions/" + args[0] + "/messages"
			if err := client.Post(cmd.Context(), path, SendMessageRequest{Content: args[1]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
