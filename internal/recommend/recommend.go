// Package recommend surfaces embedding-space neighbours: books similar to
// one book, and suggestions blended from recent reading history.
package recommend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vmishra/bookflix/internal/store"
)

const (
	defaultLimit = 5

	// historySeeds is how many recently read books seed the blend.
	historySeeds = 5
)

// Store is the persistence surface the recommender needs.
type Store interface {
	SimilarBooks(ctx context.Context, bookID int64, limit int) ([]store.ScoredBook, error)
	SimilarBooksToMany(ctx context.Context, seedIDs []int64, limit int) ([]store.ScoredBook, error)
	RecentlyReadBookIDs(ctx context.Context, limit int) ([]int64, error)
}

// Service answers recommendation queries.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger.With("component", "recommend")}
}

// Similar returns books nearest to the given book.
func (s *Service) Similar(ctx context.Context, bookID int64, limit int) ([]store.ScoredBook, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	return s.store.SimilarBooks(ctx, bookID, limit)
}

// ForReader recommends books near the reader's recent history. With no
// history there is nothing to anchor on and the result is empty.
func (s *Service) ForReader(ctx context.Context, limit int) ([]store.ScoredBook, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	seeds, err := s.store.RecentlyReadBookIDs(ctx, historySeeds)
	if err != nil {
		return nil, fmt.Errorf("load reading history: %w", err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}
	return s.store.SimilarBooksToMany(ctx, seeds, limit)
}
