package feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
)

type fakeFeedStore struct {
	insights []*types.BookInsight
	books    map[int64]*types.Book
	recent   []*types.Book
	stats    store.LibraryStats
	items    []*types.FeedItem
}

func (f *fakeFeedStore) RandomInsights(_ context.Context, insightType types.InsightType, n int) ([]*types.BookInsight, error) {
	var out []*types.BookInsight
	for _, in := range f.insights {
		if in.InsightType == insightType && len(out) < n {
			out = append(out, in)
		}
	}
	return out, nil
}

func (f *fakeFeedStore) GetBook(_ context.Context, id int64) (*types.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeFeedStore) RecentBooks(context.Context, int) ([]*types.Book, error) {
	return f.recent, nil
}

func (f *fakeFeedStore) Stats(context.Context) (*store.LibraryStats, error) {
	st := f.stats
	return &st, nil
}

func (f *fakeFeedStore) InsertFeedItem(_ context.Context, it *types.FeedItem) (*types.FeedItem, error) {
	cp := *it
	cp.ID = int64(len(f.items) + 1)
	f.items = append(f.items, &cp)
	return &cp, nil
}

func (f *fakeFeedStore) byType(itemType string) []*types.FeedItem {
	var out []*types.FeedItem
	for _, it := range f.items {
		if it.ItemType == itemType {
			out = append(out, it)
		}
	}
	return out
}

func testGenerator(st *fakeFeedStore, llm providers.LLMClient) *Generator {
	if llm == nil {
		llm = providers.NewMockClient()
	}
	return NewGenerator(st, llm, providers.NewModelRegistry("test-model"), nil)
}

func seedInsight(st *fakeFeedStore, id, bookID int64) {
	st.insights = append(st.insights, &types.BookInsight{
		ID:          id,
		BookID:      bookID,
		InsightType: types.InsightKeyConcept,
		Title:       "Attention residue",
		Content:     "Switching tasks leaves residue that degrades the next task.",
	})
	if st.books == nil {
		st.books = map[int64]*types.Book{}
	}
	st.books[bookID] = &types.Book{ID: bookID, Title: "Deep Work", Author: "Cal Newport"}
}

func TestGenerateTILsUsesModelResponse(t *testing.T) {
	st := &fakeFeedStore{}
	seedInsight(st, 10, 1)

	llm := providers.NewMockClient()
	llm.ResponseText = `{"title": "TIL: task switching has a tax", "content": "Every switch leaves attention residue."}`

	g := testGenerator(st, llm)
	if _, err := g.GenerateDaily(context.Background()); err != nil {
		t.Fatalf("GenerateDaily: %v", err)
	}

	tils := st.byType(types.FeedTIL)
	if len(tils) != 1 {
		t.Fatalf("got %d til items, want 1", len(tils))
	}
	it := tils[0]
	if it.Title != "TIL: task switching has a tax" {
		t.Errorf("title = %q", it.Title)
	}
	if it.InsightID != 10 || len(it.BookIDs) != 1 || it.BookIDs[0] != 1 {
		t.Errorf("item links = insight %d books %v", it.InsightID, it.BookIDs)
	}
	if !strings.Contains(string(it.Metadata), `"insight_id":10`) {
		t.Errorf("metadata = %s", it.Metadata)
	}
}

func TestGenerateTILsFallsBackOnBadResponse(t *testing.T) {
	st := &fakeFeedStore{}
	seedInsight(st, 10, 1)

	llm := providers.NewMockClient()
	llm.ResponseText = "definitely not json"

	g := testGenerator(st, llm)
	if _, err := g.GenerateDaily(context.Background()); err != nil {
		t.Fatalf("GenerateDaily: %v", err)
	}

	tils := st.byType(types.FeedTIL)
	if len(tils) != 1 {
		t.Fatalf("got %d til items, want 1", len(tils))
	}
	if tils[0].Title != "TIL: Attention residue" {
		t.Errorf("fallback title = %q", tils[0].Title)
	}
	if tils[0].Content != "Switching tasks leaves residue that degrades the next task." {
		t.Errorf("fallback content = %q", tils[0].Content)
	}
}

func TestMilestonesOnlyForFreshCompletions(t *testing.T) {
	now := time.Now()
	st := &fakeFeedStore{recent: []*types.Book{
		{ID: 1, Title: "Fresh", ProcessingStatus: types.StatusCompleted, UpdatedAt: now.Add(-time.Hour)},
		{ID: 2, Title: "Stale", ProcessingStatus: types.StatusCompleted, UpdatedAt: now.Add(-48 * time.Hour)},
		{ID: 3, Title: "Mid-flight", ProcessingStatus: types.StatusEmbedding, UpdatedAt: now},
	}}

	g := testGenerator(st, nil)
	if _, err := g.GenerateDaily(context.Background()); err != nil {
		t.Fatalf("GenerateDaily: %v", err)
	}

	milestones := st.byType(types.FeedMilestone)
	if len(milestones) != 1 {
		t.Fatalf("got %d milestones, want 1", len(milestones))
	}
	if milestones[0].BookIDs[0] != 1 {
		t.Errorf("milestone for book %d, want 1", milestones[0].BookIDs[0])
	}
}

func TestDigestSummarizesStats(t *testing.T) {
	st := &fakeFeedStore{stats: store.LibraryStats{
		TotalBooks: 12, CompletedBooks: 9, TotalInsights: 240, ProcessingBooks: 2,
	}}

	g := testGenerator(st, nil)
	n, err := g.GenerateDaily(context.Background())
	if err != nil {
		t.Fatalf("GenerateDaily: %v", err)
	}
	if n != 1 {
		t.Errorf("created = %d, want just the digest", n)
	}

	digests := st.byType(types.FeedDailyDigest)
	if len(digests) != 1 {
		t.Fatalf("got %d digests, want 1", len(digests))
	}
	body := digests[0].Content
	for _, want := range []string{"12 books", "9 fully processed", "240 insights", "2 books are still"} {
		if !strings.Contains(body, want) {
			t.Errorf("digest missing %q: %s", want, body)
		}
	}
}
