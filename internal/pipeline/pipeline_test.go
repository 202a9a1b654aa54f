package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/vmishra/bookflix/internal/jobs"
	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
)

type jobKey struct {
	bookID int64
	stage  types.Stage
}

// fakeStore is an in-memory Store for exercising stage executors.
type fakeStore struct {
	books    map[int64]*types.Book
	files    map[int64]*types.BookFile
	jobs     map[jobKey]*types.ProcessingJob
	chunks   map[int64][]types.BookChunk
	insights []*types.BookInsight

	batchSizes []int
	progress   []float64
	metadata   map[string]json.RawMessage
	fills      []store.MetadataFill

	nextJobID   int64
	nextChunkID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books:    map[int64]*types.Book{},
		files:    map[int64]*types.BookFile{},
		jobs:     map[jobKey]*types.ProcessingJob{},
		chunks:   map[int64][]types.BookChunk{},
		metadata: map[string]json.RawMessage{},
	}
}

func (f *fakeStore) GetBook(_ context.Context, id int64) (*types.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) BookFile(_ context.Context, bookID int64) (*types.BookFile, error) {
	bf, ok := f.files[bookID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return bf, nil
}

func (f *fakeStore) SetBookStatus(_ context.Context, id int64, status types.ProcessingStatus, progress float64) error {
	b, ok := f.books[id]
	if !ok {
		return store.ErrNotFound
	}
	b.ProcessingStatus = status
	b.ProcessingProgress = progress
	return nil
}

func (f *fakeStore) SetBookProgress(_ context.Context, id int64, progress float64) error {
	f.progress = append(f.progress, progress)
	if b, ok := f.books[id]; ok {
		b.ProcessingProgress = progress
	}
	return nil
}

func (f *fakeStore) ApplyExtract(_ context.Context, id int64, u store.ExtractUpdate) error {
	b, ok := f.books[id]
	if !ok {
		return store.ErrNotFound
	}
	if u.Title != "" {
		b.Title = u.Title
	}
	if u.Author != "" {
		b.Author = u.Author
	}
	b.PageCount = u.PageCount
	if u.CoverPath != "" {
		b.CoverPath = u.CoverPath
	}
	return nil
}

func (f *fakeStore) EnqueueJob(_ context.Context, bookID int64, stage types.Stage) (*types.ProcessingJob, error) {
	k := jobKey{bookID, stage}
	j, ok := f.jobs[k]
	if !ok {
		f.nextJobID++
		j = &types.ProcessingJob{ID: f.nextJobID, BookID: bookID, Stage: stage}
		f.jobs[k] = j
	}
	if j.Status == types.JobRunning {
		return nil, store.ErrJobRunning
	}
	j.Status = types.JobPending
	j.ErrorMessage = ""
	return j, nil
}

func (f *fakeStore) ClaimJob(_ context.Context, bookID int64, stage types.Stage, externalTaskID string) (*types.ProcessingJob, bool, error) {
	j, ok := f.jobs[jobKey{bookID, stage}]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if j.Status != types.JobPending && j.Status != types.JobFailed {
		return j, false, nil
	}
	j.Status = types.JobRunning
	j.Attempts++
	j.ExternalTaskID = externalTaskID
	return j, true, nil
}

func (f *fakeStore) MarkJob(_ context.Context, jobID int64, status types.JobStatus, errMsg string) error {
	for _, j := range f.jobs {
		if j.ID == jobID {
			j.Status = status
			j.ErrorMessage = errMsg
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ReplaceChunks(_ context.Context, bookID int64, chunks []types.BookChunk) error {
	rows := make([]types.BookChunk, len(chunks))
	for i, ch := range chunks {
		f.nextChunkID++
		ch.ID = f.nextChunkID
		ch.BookID = bookID
		rows[i] = ch
	}
	f.chunks[bookID] = rows
	return nil
}

func (f *fakeStore) ChunksWithoutEmbedding(_ context.Context, bookID int64) ([]types.BookChunk, error) {
	var out []types.BookChunk
	for _, ch := range f.chunks[bookID] {
		if ch.Embedding == nil {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *fakeStore) SetChunkEmbeddings(_ context.Context, ids []int64, embeddings [][]float32) error {
	if len(ids) != len(embeddings) {
		return store.ErrValidation
	}
	f.batchSizes = append(f.batchSizes, len(ids))
	for i, id := range ids {
		for bookID, rows := range f.chunks {
			for j := range rows {
				if rows[j].ID == id {
					rows[j].Embedding = embeddings[i]
					f.chunks[bookID] = rows
				}
			}
		}
	}
	return nil
}

func (f *fakeStore) FirstChunks(_ context.Context, bookID int64, n int) ([]types.BookChunk, error) {
	rows := append([]types.BookChunk(nil), f.chunks[bookID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ChunkIndex < rows[j].ChunkIndex })
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func (f *fakeStore) InsertInsights(_ context.Context, insights []*types.BookInsight) error {
	f.insights = append(f.insights, insights...)
	return nil
}

func (f *fakeStore) UpsertExternalMetadata(_ context.Context, bookID int64, source string, raw json.RawMessage) error {
	f.metadata[fmt.Sprintf("%d/%s", bookID, source)] = raw
	return nil
}

func (f *fakeStore) FillBookMetadata(_ context.Context, bookID int64, fill store.MetadataFill) error {
	f.fills = append(f.fills, fill)
	return nil
}

// fakeQueue records enqueued tasks instead of delivering them.
type fakeQueue struct {
	tasks []jobs.Task
}

func (q *fakeQueue) Enqueue(_ context.Context, task jobs.Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) stages() []types.Stage {
	out := make([]types.Stage, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.Stage
	}
	return out
}

func testPipeline(t *testing.T, st *fakeStore, llm providers.LLMClient) (*Pipeline, *fakeQueue) {
	t.Helper()
	q := &fakeQueue{}
	if llm == nil {
		llm = providers.NewMockClient()
	}
	p := New(st, q, llm, providers.NewMockEmbedder(8), providers.NewModelRegistry("test-model"), nil, t.TempDir(),
		slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	return p, q
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func seedBook(st *fakeStore, id int64, status types.ProcessingStatus) *types.Book {
	b := &types.Book{ID: id, Title: "Deep Work", Author: "Cal Newport", ProcessingStatus: status, Language: "en"}
	st.books[id] = b
	return b
}

func seedChunks(st *fakeStore, bookID int64, n int) {
	rows := make([]types.BookChunk, n)
	for i := 0; i < n; i++ {
		st.nextChunkID++
		rows[i] = types.BookChunk{
			ID:         st.nextChunkID,
			BookID:     bookID,
			ChunkIndex: i,
			Content:    fmt.Sprintf("chunk %d content", i),
		}
	}
	st.chunks[bookID] = rows
}

func TestTitleOverride(t *testing.T) {
	tests := []struct {
		name                      string
		current, parsed, extracted string
		want                      bool
	}{
		{"empty current", "", "deep work", "Deep Work", true},
		{"filename placeholder", "deep work", "deep work", "Deep Work", true},
		{"user edited", "My Renamed Copy", "deep work", "Deep Work", false},
		{"no extracted title", "deep work", "deep work", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := titleOverride(tt.current, tt.parsed, tt.extracted); got != tt.want {
				t.Errorf("titleOverride(%q, %q, %q) = %v, want %v", tt.current, tt.parsed, tt.extracted, got, tt.want)
			}
		})
	}
}

func TestDispatchSkipsRunningStage(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusExtracting)

	// A worker holds the extract job.
	st.EnqueueJob(context.Background(), 1, types.StageExtract)
	if _, claimed, _ := st.ClaimJob(context.Background(), 1, types.StageExtract, "task-1"); !claimed {
		t.Fatal("setup claim failed")
	}

	// A resume dispatch for the same stage must not demote the row or push
	// a duplicate task.
	p, q := testPipeline(t, st, nil)
	if err := p.Dispatch(context.Background(), 1, types.StageExtract); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(q.tasks) != 0 {
		t.Errorf("got %d queued tasks, want 0", len(q.tasks))
	}
	j := st.jobs[jobKey{1, types.StageExtract}]
	if j.Status != types.JobRunning {
		t.Errorf("job status = %q, want running", j.Status)
	}
	if j.Attempts != 1 {
		t.Errorf("job attempts = %d, want 1", j.Attempts)
	}
}

func TestEmbedStageBatchesAndChains(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusChunking)
	seedChunks(st, 1, 150)
	st.EnqueueJob(context.Background(), 1, types.StageEmbed)

	p, q := testPipeline(t, st, nil)
	h := p.handle(types.StageEmbed, p.runEmbed)
	if err := h(context.Background(), jobs.Task{Stage: types.StageEmbed, BookID: 1}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	wantBatches := []int{64, 64, 22}
	if len(st.batchSizes) != len(wantBatches) {
		t.Fatalf("got %d batches %v, want %v", len(st.batchSizes), st.batchSizes, wantBatches)
	}
	for i, want := range wantBatches {
		if st.batchSizes[i] != want {
			t.Errorf("batch %d size = %d, want %d", i, st.batchSizes[i], want)
		}
	}

	remaining, _ := st.ChunksWithoutEmbedding(context.Background(), 1)
	if len(remaining) != 0 {
		t.Errorf("%d chunks still missing embeddings", len(remaining))
	}
	if last := st.progress[len(st.progress)-1]; last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}
	if got := st.jobs[jobKey{1, types.StageEmbed}].Status; got != types.JobCompleted {
		t.Errorf("embed job status = %q, want completed", got)
	}

	stages := q.stages()
	if len(stages) != 1 || stages[0] != types.StageInsightsPass1 {
		t.Errorf("enqueued stages = %v, want [insights_pass_1]", stages)
	}
}

func TestEmbedStageRunsOnceWhenDeliveredTwice(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusChunking)
	seedChunks(st, 1, 10)
	st.EnqueueJob(context.Background(), 1, types.StageEmbed)

	p, _ := testPipeline(t, st, nil)
	h := p.handle(types.StageEmbed, p.runEmbed)
	task := jobs.Task{Stage: types.StageEmbed, BookID: 1}
	if err := h(context.Background(), task); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := h(context.Background(), task); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if len(st.batchSizes) != 1 {
		t.Errorf("embedding ran %d times, want 1", len(st.batchSizes))
	}
	if got := st.jobs[jobKey{1, types.StageEmbed}].Attempts; got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func insightResponder(req *providers.ChatRequest) string {
	prompt := req.Messages[len(req.Messages)-1].Content
	switch {
	case strings.Contains(prompt, "key concepts"):
		return `{"concepts": [{"title": "Deliberate focus", "content": "Focus without distraction compounds.", "supporting_quote": "", "importance": 8}]}`
	case strings.Contains(prompt, "mental models"):
		return `this is not JSON`
	default:
		return `{"takeaways": [{"title": "Schedule deep blocks", "content": "Block mornings for focused work.", "importance": 7}, {"title": "Quit one tool", "content": "Drop a low-value network tool for 30 days.", "importance": 6}]}`
	}
}

func TestInsightsPartialSurvival(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusEmbedding)
	seedChunks(st, 1, 5)
	st.EnqueueJob(context.Background(), 1, types.StageInsightsPass1)

	llm := providers.NewMockClient()
	llm.ResponseFunc = insightResponder

	p, q := testPipeline(t, st, llm)
	h := p.handle(types.StageInsightsPass1, p.insightsRunner(1))
	if err := h(context.Background(), jobs.Task{Stage: types.StageInsightsPass1, BookID: 1}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	byType := map[types.InsightType]int{}
	for _, in := range st.insights {
		byType[in.InsightType]++
		if in.Embedding == nil {
			t.Errorf("insight %q has no embedding", in.Title)
		}
		if in.RefinementLevel != 1 {
			t.Errorf("insight %q refinement level = %d, want 1", in.Title, in.RefinementLevel)
		}
	}
	if byType[types.InsightKeyConcept] != 1 || byType[types.InsightTakeaway] != 2 {
		t.Errorf("insights by type = %v, want 1 key_concept and 2 takeaways", byType)
	}
	if byType[types.InsightFramework] != 0 {
		t.Errorf("got %d frameworks from an unparseable response", byType[types.InsightFramework])
	}

	if got := st.jobs[jobKey{1, types.StageInsightsPass1}].Status; got != types.JobCompleted {
		t.Errorf("job status = %q, want completed despite one failed call", got)
	}
	b := st.books[1]
	if b.ProcessingStatus != types.StatusCompleted || b.ProcessingProgress != 100 {
		t.Errorf("book = %s/%v, want completed/100", b.ProcessingStatus, b.ProcessingProgress)
	}

	stages := q.stages()
	if len(stages) != 1 || stages[0] != types.StageEnrichment {
		t.Errorf("enqueued stages = %v, want [enrichment]", stages)
	}
}

func TestInsightsSchemaRejectsMalformedResponse(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusEmbedding)
	seedChunks(st, 1, 5)
	st.EnqueueJob(context.Background(), 1, types.StageInsightsPass1)

	llm := providers.NewMockClient()
	llm.ResponseFunc = func(req *providers.ChatRequest) string {
		prompt := req.Messages[len(req.Messages)-1].Content
		switch {
		case strings.Contains(prompt, "key concepts"):
			return `{"concepts": [{"title": "Deliberate focus", "content": "Focus compounds.", "importance": 8}]}`
		case strings.Contains(prompt, "mental models"):
			// Parses fine but breaks the importance bound.
			return `{"frameworks": [{"title": "Bad scale", "content": "Out of range.", "importance": 50}]}`
		default:
			// Parses fine but the required key is absent.
			return `{"items": [{"title": "Wrong envelope", "content": "Misplaced."}]}`
		}
	}

	p, _ := testPipeline(t, st, llm)
	h := p.handle(types.StageInsightsPass1, p.insightsRunner(1))
	if err := h(context.Background(), jobs.Task{Stage: types.StageInsightsPass1, BookID: 1}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	byType := map[types.InsightType]int{}
	for _, in := range st.insights {
		byType[in.InsightType]++
	}
	if byType[types.InsightKeyConcept] != 1 {
		t.Errorf("got %d key concepts, want 1", byType[types.InsightKeyConcept])
	}
	if byType[types.InsightFramework] != 0 {
		t.Errorf("got %d frameworks from an out-of-range importance", byType[types.InsightFramework])
	}
	if byType[types.InsightTakeaway] != 0 {
		t.Errorf("got %d takeaways from a mislabeled envelope", byType[types.InsightTakeaway])
	}
	if got := st.jobs[jobKey{1, types.StageInsightsPass1}].Status; got != types.JobCompleted {
		t.Errorf("job status = %q, want completed", got)
	}
}

func TestInsightsRefinementPassDoesNotChain(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusCompleted)
	seedChunks(st, 1, 5)
	st.EnqueueJob(context.Background(), 1, types.StageInsightsPass2)

	llm := providers.NewMockClient()
	llm.ResponseFunc = insightResponder

	p, q := testPipeline(t, st, llm)
	h := p.handle(types.StageInsightsPass2, p.insightsRunner(2))
	if err := h(context.Background(), jobs.Task{Stage: types.StageInsightsPass2, BookID: 1}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	for _, in := range st.insights {
		if in.RefinementLevel != 2 {
			t.Errorf("insight %q refinement level = %d, want 2", in.Title, in.RefinementLevel)
		}
	}
	if len(q.tasks) != 0 {
		t.Errorf("refinement pass enqueued %v, want nothing", q.stages())
	}
}

func TestInsightsEmptyBookSkipsJob(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusEmbedding)
	st.EnqueueJob(context.Background(), 1, types.StageInsightsPass1)

	p, q := testPipeline(t, st, nil)
	h := p.handle(types.StageInsightsPass1, p.insightsRunner(1))
	if err := h(context.Background(), jobs.Task{Stage: types.StageInsightsPass1, BookID: 1}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if got := st.jobs[jobKey{1, types.StageInsightsPass1}].Status; got != types.JobSkipped {
		t.Errorf("job status = %q, want skipped", got)
	}
	if len(q.tasks) != 0 {
		t.Errorf("enqueued %v for a chunkless book", q.stages())
	}
}

func TestExtractFailureFailsBook(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusPending)
	st.files[1] = &types.BookFile{BookID: 1, FilePath: "/nonexistent/book.pdf", FileType: types.FileTypePDF}
	st.EnqueueJob(context.Background(), 1, types.StageExtract)

	p, q := testPipeline(t, st, nil)
	h := p.handle(types.StageExtract, p.runExtract)
	if err := h(context.Background(), jobs.Task{Stage: types.StageExtract, BookID: 1}); err != nil {
		t.Fatalf("handler should swallow stage errors, got %v", err)
	}

	j := st.jobs[jobKey{1, types.StageExtract}]
	if j.Status != types.JobFailed {
		t.Errorf("job status = %q, want failed", j.Status)
	}
	if j.ErrorMessage == "" {
		t.Error("job has no error message")
	}
	if got := st.books[1].ProcessingStatus; got != types.StatusFailed {
		t.Errorf("book status = %q, want failed", got)
	}
	if len(q.tasks) != 0 {
		t.Errorf("failed extract enqueued %v", q.stages())
	}
}

func TestEnrichFillsMetadata(t *testing.T) {
	payload := `{"items": [{"id": "abc123", "volumeInfo": {
		"description": "A case for focused work.",
		"publisher": "Grand Central",
		"publishedDate": "2016-01-05",
		"pageCount": 296,
		"averageRating": 4.2,
		"industryIdentifiers": [
			{"type": "ISBN_10", "identifier": "1455586692"},
			{"type": "ISBN_13", "identifier": "9781455586691"}
		]
	}}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("maxResults"); got != "1" {
			t.Errorf("maxResults = %q, want 1", got)
		}
		if q := r.URL.Query().Get("q"); !strings.Contains(q, "inauthor:") {
			t.Errorf("query %q missing inauthor clause", q)
		}
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	st := newFakeStore()
	b := seedBook(st, 1, types.StatusCompleted)
	b.CoverPath = "/covers/1.jpg"
	st.EnqueueJob(context.Background(), 1, types.StageEnrichment)

	p, _ := testPipeline(t, st, nil)
	p.booksAPI = srv.URL
	h := p.handle(types.StageEnrichment, p.runEnrich)
	if err := h(context.Background(), jobs.Task{Stage: types.StageEnrichment, BookID: 1}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if _, ok := st.metadata["1/google_books"]; !ok {
		t.Error("raw google_books metadata not stored")
	}
	if len(st.fills) != 1 {
		t.Fatalf("got %d metadata fills, want 1", len(st.fills))
	}
	fill := st.fills[0]
	if fill.ISBN != "9781455586691" {
		t.Errorf("ISBN = %q, want the ISBN_13 identifier", fill.ISBN)
	}
	if fill.Description == "" || fill.Publisher != "Grand Central" || fill.PageCount != 296 {
		t.Errorf("unexpected fill: %+v", fill)
	}
	if fill.CoverPath != "" {
		t.Errorf("cover fetched for a book that already has one: %q", fill.CoverPath)
	}
	if got := st.jobs[jobKey{1, types.StageEnrichment}].Status; got != types.JobCompleted {
		t.Errorf("job status = %q, want completed", got)
	}
}

func TestEnrichNoMatchCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"totalItems": 0}`)
	}))
	defer srv.Close()

	st := newFakeStore()
	seedBook(st, 1, types.StatusCompleted)
	st.EnqueueJob(context.Background(), 1, types.StageEnrichment)

	p, _ := testPipeline(t, st, nil)
	p.booksAPI = srv.URL
	h := p.handle(types.StageEnrichment, p.runEnrich)
	if err := h(context.Background(), jobs.Task{Stage: types.StageEnrichment, BookID: 1}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if got := st.jobs[jobKey{1, types.StageEnrichment}].Status; got != types.JobCompleted {
		t.Errorf("job status = %q, want completed on zero matches", got)
	}
	if len(st.fills) != 0 {
		t.Errorf("metadata filled from an empty result: %+v", st.fills)
	}
}

// writeTestEPUB builds a minimal two-chapter EPUB on disk for the chunk
// executor, which extracts from the file path.
func writeTestEPUB(t *testing.T) string {
	t.Helper()

	files := map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`,
		"OEBPS/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Deep Work</dc:title>
    <dc:creator>Cal Newport</dc:creator>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`,
		"OEBPS/ch1.xhtml": "<html><head><title>Focus</title></head><body><p>" +
			strings.Repeat("Focused work produces value. ", 40) + "</p></body></html>",
		"OEBPS/ch2.xhtml": "<html><head><title>Depth</title></head><body><p>" +
			strings.Repeat("Depth beats shallow busyness. ", 40) + "</p></body></html>",
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "deep-work.epub")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write epub: %v", err)
	}
	return path
}

func chunkRows(st *fakeStore, bookID int64) []string {
	rows := append([]types.BookChunk(nil), st.chunks[bookID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ChunkIndex < rows[j].ChunkIndex })
	out := make([]string, len(rows))
	for i, ch := range rows {
		out[i] = fmt.Sprintf("%d|%d|%s|%s", ch.ChunkIndex, ch.PageNumber, ch.Chapter, ch.Content)
	}
	return out
}

func TestChunkStageRerunProducesSameRows(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusExtracting)
	st.files[1] = &types.BookFile{BookID: 1, FilePath: writeTestEPUB(t), FileType: types.FileTypeEPUB}
	st.EnqueueJob(context.Background(), 1, types.StageChunk)

	p, _ := testPipeline(t, st, nil)
	h := p.handle(types.StageChunk, p.runChunk)
	task := jobs.Task{Stage: types.StageChunk, BookID: 1}

	if err := h(context.Background(), task); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := chunkRows(st, 1)
	if len(first) == 0 {
		t.Fatal("first run stored no chunks")
	}

	// A reprocess re-enqueues the stage and runs the executor again over
	// the same file. The chunk table must end up identical, not doubled.
	if _, err := st.EnqueueJob(context.Background(), 1, types.StageChunk); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if err := h(context.Background(), task); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := chunkRows(st, 1)

	if len(second) != len(first) {
		t.Fatalf("second run stored %d chunks, want %d", len(second), len(first))
	}
	for i := range first {
		if second[i] != first[i] {
			t.Errorf("chunk %d differs between runs:\n first: %s\nsecond: %s", i, first[i], second[i])
		}
	}
	if got := st.jobs[jobKey{1, types.StageChunk}].Status; got != types.JobCompleted {
		t.Errorf("chunk job status = %q, want completed", got)
	}
}

func TestProcessBookDispatchesExtract(t *testing.T) {
	st := newFakeStore()
	seedBook(st, 1, types.StatusPending)

	p, q := testPipeline(t, st, nil)
	if err := p.ProcessBook(context.Background(), 1); err != nil {
		t.Fatalf("ProcessBook: %v", err)
	}

	if got := st.jobs[jobKey{1, types.StageExtract}].Status; got != types.JobPending {
		t.Errorf("extract job status = %q, want pending", got)
	}
	stages := q.stages()
	if len(stages) != 1 || stages[0] != types.StageExtract {
		t.Errorf("enqueued stages = %v, want [extract]", stages)
	}
}
