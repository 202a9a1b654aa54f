// Package chat implements the retrieval-augmented chat service: each user
// message pulls relevant chunks through hybrid search and feeds them to the
// model as context, with source attributions stored on the reply.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/vmishra/bookflix/internal/pipeline"
	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/search"
	"github.com/vmishra/bookflix/internal/types"
)

const (
	// retrievalLimit is how many chunks back each answer.
	retrievalLimit = 8

	// historyLimit is how many prior messages travel with a blocking send.
	historyLimit = 10

	// snippetLen bounds the stored source snippet.
	snippetLen = 200

	emptyContext = "No relevant content found."
)

// Store is the persistence surface the chat service needs.
type Store interface {
	CreateSession(ctx context.Context, title string, bookIDs []int64) (*types.ChatSession, error)
	GetSession(ctx context.Context, id int64) (*types.ChatSession, error)
	ListSessions(ctx context.Context, limit int) ([]*types.ChatSession, error)
	DeleteSession(ctx context.Context, id int64) error
	InsertMessage(ctx context.Context, m *types.ChatMessage) (*types.ChatMessage, error)
	MessagesForSession(ctx context.Context, sessionID int64, limit int) ([]*types.ChatMessage, error)
}

// Retriever is the search surface; satisfied by *search.Searcher.
type Retriever interface {
	Hybrid(ctx context.Context, query string, limit int, bookIDs []int64) ([]search.Result, error)
}

// Service runs chat sessions.
type Service struct {
	store     Store
	retriever Retriever
	llm       providers.LLMClient
	models    *providers.ModelRegistry
	logger    *slog.Logger
}

func NewService(st Store, retriever Retriever, llm providers.LLMClient, models *providers.ModelRegistry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		retriever: retriever,
		llm:       llm,
		models:    models,
		logger:    logger.With("component", "chat"),
	}
}

// CreateSession starts a session, optionally scoped to a set of books.
func (s *Service) CreateSession(ctx context.Context, title string, bookIDs []int64) (*types.ChatSession, error) {
	if title == "" {
		title = "New Chat"
	}
	return s.store.CreateSession(ctx, title, bookIDs)
}

// Sessions lists recent sessions.
func (s *Service) Sessions(ctx context.Context, limit int) ([]*types.ChatSession, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListSessions(ctx, limit)
}

// Messages returns a session's messages in chronological order.
func (s *Service) Messages(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error) {
	return s.store.MessagesForSession(ctx, sessionID, 0)
}

// DeleteSession removes a session and its messages.
func (s *Service) DeleteSession(ctx context.Context, id int64) error {
	return s.store.DeleteSession(ctx, id)
}

// retrieve runs hybrid search for the question and renders both the
// context block for the prompt and the source attributions to store.
func (s *Service) retrieve(ctx context.Context, session *types.ChatSession, question string) (string, []types.SourceChunk) {
	results, err := s.retriever.Hybrid(ctx, question, retrievalLimit, session.BookIDs)
	if err != nil {
		// A dead search layer degrades to an uninformed answer.
		s.logger.Warn("retrieval failed", "session_id", session.ID, "error", err)
		return emptyContext, nil
	}
	if len(results) == 0 {
		return emptyContext, nil
	}

	parts := make([]string, len(results))
	sources := make([]types.SourceChunk, len(results))
	for i, r := range results {
		title := r.Chunk.BookTitle
		if title == "" {
			title = "Unknown"
		}
		page := "?"
		if r.Chunk.Chunk.PageNumber > 0 {
			page = fmt.Sprintf("%d", r.Chunk.Chunk.PageNumber)
		}
		parts[i] = fmt.Sprintf("[%s - p.%s]\n%s", title, page, r.Chunk.Chunk.Content)

		snippet := truncate(r.Chunk.Chunk.Content, snippetLen)
		sources[i] = types.SourceChunk{
			ChunkID:    r.Chunk.Chunk.ID,
			BookTitle:  r.Chunk.BookTitle,
			PageNumber: r.Chunk.Chunk.PageNumber,
			Snippet:    snippet,
		}
	}
	return strings.Join(parts, "\n\n---\n\n"), sources
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// buildMessages assembles the model conversation: system prompt, the prior
// session history excluding the just-inserted user row, then the question
// wrapped with the retrieved context.
func buildMessages(history []*types.ChatMessage, excludeID int64, contextBlock, question string) []providers.Message {
	messages := []providers.Message{{Role: "system", Content: pipeline.ChatSystem}}
	for _, m := range history {
		if m.ID == excludeID {
			continue
		}
		messages = append(messages, providers.Message{Role: m.Role, Content: m.Content})
	}
	return append(messages, providers.Message{
		Role:    "user",
		Content: fmt.Sprintf(pipeline.ChatWithContext, contextBlock, question),
	})
}

// Send handles one blocking message turn: store the user message, retrieve
// context, ask the model with recent history, store and return the reply.
func (s *Service) Send(ctx context.Context, sessionID int64, content string) (*types.ChatMessage, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}

	userMsg, err := s.store.InsertMessage(ctx, &types.ChatMessage{
		SessionID: sessionID,
		Role:      "user",
		Content:   content,
	})
	if err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	contextBlock, sources := s.retrieve(ctx, session, content)

	history, err := s.store.MessagesForSession(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	result, err := s.llm.Chat(ctx, &providers.ChatRequest{
		Messages: buildMessages(history, userMsg.ID, contextBlock, content),
		Model:    s.models.ModelFor(providers.TaskChat),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	reply, err := s.store.InsertMessage(ctx, &types.ChatMessage{
		SessionID:    sessionID,
		Role:         "assistant",
		Content:      result.Content,
		SourceChunks: sources,
	})
	if err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}
	return reply, nil
}

// StreamFrame is one unit of a streamed reply.
type StreamFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Stream handles one streaming turn, emitting frames through send:
// content deltas as they arrive, then the sources, then a done frame
// carrying the stored message id. The full reply is persisted after the
// stream closes.
func (s *Service) Stream(ctx context.Context, sessionID int64, content string, send func(StreamFrame) error) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %d: %w", sessionID, err)
	}

	userMsg, err := s.store.InsertMessage(ctx, &types.ChatMessage{
		SessionID: sessionID,
		Role:      "user",
		Content:   content,
	})
	if err != nil {
		return fmt.Errorf("store user message: %w", err)
	}

	contextBlock, sources := s.retrieve(ctx, session, content)

	history, err := s.store.MessagesForSession(ctx, sessionID, historyLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	var sendErr error
	result, err := s.llm.Stream(ctx, &providers.ChatRequest{
		Messages: buildMessages(history, userMsg.ID, contextBlock, content),
		Model:    s.models.ModelFor(providers.TaskChat),
	}, func(delta string) {
		if sendErr == nil {
			sendErr = send(StreamFrame{Type: "content", Data: delta})
		}
	})
	if err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	if sendErr != nil {
		return fmt.Errorf("write stream frame: %w", sendErr)
	}

	reply, err := s.store.InsertMessage(ctx, &types.ChatMessage{
		SessionID:    sessionID,
		Role:         "assistant",
		Content:      result.Content,
		SourceChunks: sources,
	})
	if err != nil {
		return fmt.Errorf("store reply: %w", err)
	}

	if err := send(StreamFrame{Type: "sources", Data: sources}); err != nil {
		return err
	}
	return send(StreamFrame{Type: "done", Data: map[string]int64{"message_id": reply.ID}})
}
