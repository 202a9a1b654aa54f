// Package feed generates the discovery feed: TIL posts mined from stored
// insights, milestone items for freshly processed books, and a daily digest.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmishra/bookflix/internal/jobs"
	"github.com/vmishra/bookflix/internal/pipeline"
	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
)

const (
	tilCount       = 3
	tilTemperature = 0.8
	tilMaxTokens   = 500

	// milestoneWindow bounds how far back a completion still earns a
	// milestone item.
	milestoneWindow = 24 * time.Hour
)

// Store is the persistence surface the generator needs.
type Store interface {
	RandomInsights(ctx context.Context, insightType types.InsightType, n int) ([]*types.BookInsight, error)
	GetBook(ctx context.Context, id int64) (*types.Book, error)
	RecentBooks(ctx context.Context, limit int) ([]*types.Book, error)
	Stats(ctx context.Context) (*store.LibraryStats, error)
	InsertFeedItem(ctx context.Context, it *types.FeedItem) (*types.FeedItem, error)
}

// Generator produces feed items.
type Generator struct {
	store  Store
	llm    providers.LLMClient
	models *providers.ModelRegistry
	logger *slog.Logger
	now    func() time.Time
}

func NewGenerator(st Store, llm providers.LLMClient, models *providers.ModelRegistry, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		store:  st,
		llm:    llm,
		models: models,
		logger: logger.With("component", "feed"),
		now:    time.Now,
	}
}

// Register wires the generator into the worker pool.
func (g *Generator) Register(pool *jobs.Pool) {
	pool.Handle(jobs.StageFeed, func(ctx context.Context, _ jobs.Task) error {
		n, err := g.GenerateDaily(ctx)
		if err != nil {
			g.logger.Error("feed generation failed", "error", err)
			return nil
		}
		g.logger.Info("feed generated", "items", n)
		return nil
	})
}

// GenerateDaily creates the day's feed items and returns how many were
// made. Item generation is best-effort per item; one bad insight does not
// stop the batch.
func (g *Generator) GenerateDaily(ctx context.Context) (int, error) {
	created := 0

	n, err := g.generateTILs(ctx)
	if err != nil {
		return created, err
	}
	created += n

	n, err = g.generateMilestones(ctx)
	if err != nil {
		return created, err
	}
	created += n

	if err := g.generateDigest(ctx); err != nil {
		g.logger.Warn("digest generation failed", "error", err)
	} else {
		created++
	}
	return created, nil
}

type tilResponse struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// generateTILs turns a few random key concepts into TIL posts.
func (g *Generator) generateTILs(ctx context.Context) (int, error) {
	insights, err := g.store.RandomInsights(ctx, types.InsightKeyConcept, tilCount)
	if err != nil {
		return 0, fmt.Errorf("sample insights: %w", err)
	}

	created := 0
	for _, insight := range insights {
		book, err := g.store.GetBook(ctx, insight.BookID)
		if err != nil {
			continue
		}
		author := book.Author
		if author == "" {
			author = "Unknown"
		}

		// The model response is decoration; the insight itself is the
		// fallback content.
		til := tilResponse{
			Title:   "TIL: " + insight.Title,
			Content: insight.Content,
		}
		result, err := g.llm.Chat(ctx, &providers.ChatRequest{
			Messages: []providers.Message{{
				Role:    "user",
				Content: fmt.Sprintf(pipeline.GenerateFeedTIL, insight.Title, insight.Content, book.Title, author),
			}},
			Model:       g.models.ModelFor(providers.TaskFeed),
			Temperature: tilTemperature,
			MaxTokens:   tilMaxTokens,
		})
		if err != nil {
			g.logger.Error("til generation failed", "insight_id", insight.ID, "error", err)
		} else if parsed, pErr := providers.ParseJSON(result.Content); pErr == nil {
			var resp tilResponse
			if json.Unmarshal(parsed, &resp) == nil {
				if resp.Title != "" {
					til.Title = resp.Title
				}
				if resp.Content != "" {
					til.Content = resp.Content
				}
			}
		}

		meta, _ := json.Marshal(map[string]int64{"insight_id": insight.ID})
		if _, err := g.store.InsertFeedItem(ctx, &types.FeedItem{
			ItemType:  types.FeedTIL,
			Title:     til.Title,
			Content:   til.Content,
			BookIDs:   []int64{book.ID},
			InsightID: insight.ID,
			Metadata:  meta,
		}); err != nil {
			return created, fmt.Errorf("store til item: %w", err)
		}
		created++
	}
	return created, nil
}

// generateMilestones posts an item for each book that finished processing
// recently.
func (g *Generator) generateMilestones(ctx context.Context) (int, error) {
	books, err := g.store.RecentBooks(ctx, 20)
	if err != nil {
		return 0, fmt.Errorf("recent books: %w", err)
	}

	cutoff := g.now().Add(-milestoneWindow)
	created := 0
	for _, b := range books {
		if b.ProcessingStatus != types.StatusCompleted || b.UpdatedAt.Before(cutoff) {
			continue
		}
		if _, err := g.store.InsertFeedItem(ctx, &types.FeedItem{
			ItemType: types.FeedMilestone,
			Title:    "Ready to explore: " + b.Title,
			Content:  fmt.Sprintf("%q finished processing. Its insights are ready and it is searchable now.", b.Title),
			BookIDs:  []int64{b.ID},
		}); err != nil {
			return created, fmt.Errorf("store milestone item: %w", err)
		}
		created++
	}
	return created, nil
}

// generateDigest posts one library-stats summary item.
func (g *Generator) generateDigest(ctx context.Context) error {
	stats, err := g.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("library stats: %w", err)
	}

	content := fmt.Sprintf("Your library holds %d books (%d fully processed) with %d insights mined so far.",
		stats.TotalBooks, stats.CompletedBooks, stats.TotalInsights)
	if stats.ProcessingBooks > 0 {
		content += fmt.Sprintf(" %d books are still being processed.", stats.ProcessingBooks)
	}

	_, err = g.store.InsertFeedItem(ctx, &types.FeedItem{
		ItemType: types.FeedDailyDigest,
		Title:    "Your library today",
		Content:  content,
	})
	return err
}
