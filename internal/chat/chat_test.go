package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/search"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
)

type fakeChatStore struct {
	sessions map[int64]*types.ChatSession
	messages []*types.ChatMessage
	nextID   int64
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{sessions: map[int64]*types.ChatSession{}}
}

func (f *fakeChatStore) CreateSession(_ context.Context, title string, bookIDs []int64) (*types.ChatSession, error) {
	f.nextID++
	s := &types.ChatSession{ID: f.nextID, Title: title, BookIDs: bookIDs}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeChatStore) GetSession(_ context.Context, id int64) (*types.ChatSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeChatStore) ListSessions(_ context.Context, limit int) ([]*types.ChatSession, error) {
	out := make([]*types.ChatSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeChatStore) DeleteSession(_ context.Context, id int64) error {
	delete(f.sessions, id)
	return nil
}

func (f *fakeChatStore) InsertMessage(_ context.Context, m *types.ChatMessage) (*types.ChatMessage, error) {
	f.nextID++
	cp := *m
	cp.ID = f.nextID
	f.messages = append(f.messages, &cp)
	return &cp, nil
}

func (f *fakeChatStore) MessagesForSession(_ context.Context, sessionID int64, limit int) ([]*types.ChatMessage, error) {
	var out []*types.ChatMessage
	for _, m := range f.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeRetriever struct {
	results []search.Result
	err     error
	queries []string
	bookIDs [][]int64
}

func (f *fakeRetriever) Hybrid(_ context.Context, query string, limit int, bookIDs []int64) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	f.bookIDs = append(f.bookIDs, bookIDs)
	return f.results, f.err
}

func hit(id int64, title string, page int, content string) search.Result {
	return search.Result{Chunk: store.ScoredChunk{
		Chunk:     types.BookChunk{ID: id, PageNumber: page, Content: content},
		BookTitle: title,
	}}
}

func testService(st *fakeChatStore, r Retriever, llm providers.LLMClient) *Service {
	if llm == nil {
		llm = providers.NewMockClient()
	}
	return NewService(st, r, llm, providers.NewModelRegistry("test-model"), nil)
}

func TestSendBuildsContextFromRetrieval(t *testing.T) {
	st := newFakeChatStore()
	session, _ := st.CreateSession(context.Background(), "Focus", []int64{3, 4})

	retriever := &fakeRetriever{results: []search.Result{
		hit(11, "Deep Work", 42, "Attention residue degrades performance."),
		hit(12, "Flow", 7, "Flow requires clear goals."),
	}}

	var prompt string
	llm := providers.NewMockClient()
	llm.ResponseFunc = func(req *providers.ChatRequest) string {
		prompt = req.Messages[len(req.Messages)-1].Content
		return "Both books argue for undistracted focus."
	}

	svc := testService(st, retriever, llm)
	reply, err := svc.Send(context.Background(), session.ID, "What do these books say about focus?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !strings.Contains(prompt, "[Deep Work - p.42]\nAttention residue degrades performance.") {
		t.Errorf("prompt missing first context block:\n%s", prompt)
	}
	if !strings.Contains(prompt, "\n\n---\n\n") {
		t.Error("context blocks not separated by ---")
	}

	if got := retriever.bookIDs[0]; len(got) != 2 || got[0] != 3 {
		t.Errorf("retrieval book scope = %v, want session books [3 4]", got)
	}

	if reply.Role != "assistant" || reply.Content == "" {
		t.Errorf("reply = %+v", reply)
	}
	if len(reply.SourceChunks) != 2 {
		t.Fatalf("got %d sources, want 2", len(reply.SourceChunks))
	}
	if s := reply.SourceChunks[0]; s.ChunkID != 11 || s.BookTitle != "Deep Work" || s.PageNumber != 42 {
		t.Errorf("first source = %+v", s)
	}
}

func TestSendNoResultsUsesFallbackContext(t *testing.T) {
	st := newFakeChatStore()
	session, _ := st.CreateSession(context.Background(), "", nil)

	var prompt string
	llm := providers.NewMockClient()
	llm.ResponseFunc = func(req *providers.ChatRequest) string {
		prompt = req.Messages[len(req.Messages)-1].Content
		return "I don't have anything on that."
	}

	svc := testService(st, &fakeRetriever{}, llm)
	reply, err := svc.Send(context.Background(), session.ID, "Anything about beekeeping?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(prompt, emptyContext) {
		t.Errorf("prompt missing fallback context:\n%s", prompt)
	}
	if len(reply.SourceChunks) != 0 {
		t.Errorf("got %d sources for empty retrieval", len(reply.SourceChunks))
	}
}

func TestSendDegradesWhenRetrievalFails(t *testing.T) {
	st := newFakeChatStore()
	session, _ := st.CreateSession(context.Background(), "", nil)

	svc := testService(st, &fakeRetriever{err: fmt.Errorf("search down")}, nil)
	if _, err := svc.Send(context.Background(), session.ID, "hello"); err != nil {
		t.Fatalf("Send should survive retrieval failure, got %v", err)
	}
}

func TestSendIncludesRecentHistoryOnly(t *testing.T) {
	st := newFakeChatStore()
	session, _ := st.CreateSession(context.Background(), "", nil)
	for i := 0; i < 14; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		st.InsertMessage(context.Background(), &types.ChatMessage{
			SessionID: session.ID, Role: role, Content: fmt.Sprintf("turn %d", i),
		})
	}

	var gotMessages []providers.Message
	llm := providers.NewMockClient()
	llm.ResponseFunc = func(req *providers.ChatRequest) string {
		gotMessages = req.Messages
		return "ok"
	}

	svc := testService(st, &fakeRetriever{}, llm)
	if _, err := svc.Send(context.Background(), session.ID, "latest question"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// system + 9 history turns (the 10-message window minus the just-stored
	// user message) + the contextualized question.
	if len(gotMessages) != 11 {
		t.Fatalf("got %d messages, want 11", len(gotMessages))
	}
	if gotMessages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", gotMessages[0].Role)
	}
	if gotMessages[1].Content != "turn 5" {
		t.Errorf("oldest history turn = %q, want turn 5", gotMessages[1].Content)
	}
	last := gotMessages[len(gotMessages)-1]
	if !strings.Contains(last.Content, "latest question") {
		t.Errorf("final message does not carry the question: %q", last.Content)
	}
	for _, m := range gotMessages[1 : len(gotMessages)-1] {
		if strings.Contains(m.Content, "latest question") {
			t.Error("raw user message leaked into history")
		}
	}
}

func TestSnippetTruncation(t *testing.T) {
	st := newFakeChatStore()
	session, _ := st.CreateSession(context.Background(), "", nil)

	long := strings.Repeat("a", 500)
	retriever := &fakeRetriever{results: []search.Result{hit(1, "Big Book", 1, long)}}

	svc := testService(st, retriever, nil)
	reply, err := svc.Send(context.Background(), session.ID, "q")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := len(reply.SourceChunks[0].Snippet); got != 200 {
		t.Errorf("snippet length = %d, want 200", got)
	}
}

func TestStreamIncludesRecentHistory(t *testing.T) {
	st := newFakeChatStore()
	session, _ := st.CreateSession(context.Background(), "", nil)
	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		st.InsertMessage(context.Background(), &types.ChatMessage{
			SessionID: session.ID, Role: role, Content: fmt.Sprintf("turn %d", i),
		})
	}

	var gotMessages []providers.Message
	llm := providers.NewMockClient()
	llm.ResponseFunc = func(req *providers.ChatRequest) string {
		gotMessages = req.Messages
		return "ok"
	}

	svc := testService(st, &fakeRetriever{}, llm)
	err := svc.Stream(context.Background(), session.ID, "latest question", func(StreamFrame) error { return nil })
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	// system + 6 history turns + the contextualized question.
	if len(gotMessages) != 8 {
		t.Fatalf("got %d messages, want 8", len(gotMessages))
	}
	if gotMessages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", gotMessages[0].Role)
	}
	if gotMessages[1].Content != "turn 0" {
		t.Errorf("oldest history turn = %q, want turn 0", gotMessages[1].Content)
	}
	for _, m := range gotMessages[1 : len(gotMessages)-1] {
		if strings.Contains(m.Content, "latest question") {
			t.Error("raw user message leaked into history")
		}
	}
	last := gotMessages[len(gotMessages)-1]
	if !strings.Contains(last.Content, "latest question") {
		t.Errorf("final message does not carry the question: %q", last.Content)
	}
}

func TestSnippetTruncationRuneBoundary(t *testing.T) {
	st := newFakeChatStore()
	session, _ := st.CreateSession(context.Background(), "", nil)

	// 3-byte runes: 200 is not a rune boundary of this content.
	long := strings.Repeat("€", 300)
	retriever := &fakeRetriever{results: []search.Result{hit(1, "Big Book", 1, long)}}

	svc := testService(st, retriever, nil)
	reply, err := svc.Send(context.Background(), session.ID, "q")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	snippet := reply.SourceChunks[0].Snippet
	if !utf8.ValidString(snippet) {
		t.Fatalf("snippet is not valid UTF-8 (len=%d)", len(snippet))
	}
	if len(snippet) > 200 {
		t.Errorf("snippet length = %d, want <= 200", len(snippet))
	}
}

func TestStreamFrameOrder(t *testing.T) {
	st := newFakeChatStore()
	session, _ := st.CreateSession(context.Background(), "", nil)

	retriever := &fakeRetriever{results: []search.Result{hit(5, "Deep Work", 9, "Focus is a skill.")}}
	llm := providers.NewMockClient()
	llm.ResponseText = "Streamed answer about focus."
	llm.StreamChunkSize = 10

	var frames []StreamFrame
	svc := testService(st, retriever, llm)
	err := svc.Stream(context.Background(), session.ID, "focus?", func(f StreamFrame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if len(frames) < 3 {
		t.Fatalf("got %d frames, want content + sources + done", len(frames))
	}

	var assembled string
	for _, f := range frames[:len(frames)-2] {
		if f.Type != "content" {
			t.Fatalf("frame %v before sources, want content", f.Type)
		}
		assembled += f.Data.(string)
	}
	if assembled != llm.ResponseText {
		t.Errorf("assembled content = %q, want %q", assembled, llm.ResponseText)
	}

	if frames[len(frames)-2].Type != "sources" {
		t.Errorf("penultimate frame = %q, want sources", frames[len(frames)-2].Type)
	}
	done := frames[len(frames)-1]
	if done.Type != "done" {
		t.Fatalf("final frame = %q, want done", done.Type)
	}
	payload, ok := done.Data.(map[string]int64)
	if !ok || payload["message_id"] == 0 {
		t.Errorf("done payload = %#v, want message_id", done.Data)
	}

	// Both turns persisted.
	msgs, _ := st.MessagesForSession(context.Background(), session.ID, 0)
	if len(msgs) != 2 {
		t.Fatalf("got %d stored messages, want 2", len(msgs))
	}
	if msgs[1].Content != llm.ResponseText || len(msgs[1].SourceChunks) != 1 {
		t.Errorf("stored reply = %+v", msgs[1])
	}
}
