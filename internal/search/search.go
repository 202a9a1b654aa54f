// Package search implements hybrid retrieval: a full-text leg and a
// vector leg fused with reciprocal rank fusion.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/store"
)

// rrfK is the reciprocal rank fusion constant; a hit at rank r contributes
// 1/(rrfK+r+1).
const rrfK = 60

// Store is the subset of the persistence layer the searcher needs.
type Store interface {
	SearchChunksFTS(ctx context.Context, query string, limit int, bookIDs []int64) ([]store.ScoredChunk, error)
	SearchChunksVector(ctx context.Context, embedding []float32, limit int, bookIDs []int64) ([]store.ScoredChunk, error)
}

// Result is one fused hit.
type Result struct {
	Chunk      store.ScoredChunk `json:"chunk"`
	Score      float64           `json:"score"`
	FTSRank    int               `json:"fts_rank"`    // 0-based, -1 if absent
	VectorRank int               `json:"vector_rank"` // 0-based, -1 if absent
}

// Searcher runs hybrid queries.
type Searcher struct {
	store    Store
	embedder providers.Embedder
	logger   *slog.Logger
}

// NewSearcher creates a searcher.
func NewSearcher(st Store, embedder providers.Embedder, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		store:    st,
		embedder: embedder,
		logger:   logger.With("component", "search"),
	}
}

// Hybrid runs both retrieval legs in parallel and fuses them with RRF.
// The query is embedded once. If one leg fails the other's results are
// returned alone; only both failing is an error. A non-empty bookIDs
// restricts hits to those books.
func (s *Searcher) Hybrid(ctx context.Context, query string, limit int, bookIDs []int64) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	// Each leg over-fetches so fusion has candidates beyond the cut.
	legLimit := 2 * limit

	var ftsHits, vecHits []store.ScoredChunk
	var ftsErr, vecErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ftsHits, ftsErr = s.store.SearchChunksFTS(gctx, query, legLimit, bookIDs)
		return nil
	})
	g.Go(func() error {
		var embedding []float32
		embedding, vecErr = s.embedder.EmbedOne(gctx, query)
		if vecErr != nil {
			return nil
		}
		vecHits, vecErr = s.store.SearchChunksVector(gctx, embedding, legLimit, bookIDs)
		return nil
	})
	// Leg errors are captured, not returned, so one failure cannot cancel
	// the surviving leg.
	_ = g.Wait()

	if ftsErr != nil && vecErr != nil {
		return nil, fmt.Errorf("both retrieval legs failed: fts: %v; vector: %w", ftsErr, vecErr)
	}
	if ftsErr != nil {
		s.logger.Warn("full-text leg failed, vector only", "error", ftsErr)
	}
	if vecErr != nil {
		s.logger.Warn("vector leg failed, full-text only", "error", vecErr)
	}

	return fuse(ftsHits, vecHits, limit), nil
}

// fuse merges the two legs with reciprocal rank fusion. Ties break toward
// the smaller chunk id.
func fuse(ftsHits, vecHits []store.ScoredChunk, limit int) []Result {
	byID := make(map[int64]*Result)

	for rank, hit := range ftsHits {
		byID[hit.Chunk.ID] = &Result{
			Chunk:      hit,
			Score:      1.0 / float64(rrfK+rank+1),
			FTSRank:    rank,
			VectorRank: -1,
		}
	}
	for rank, hit := range vecHits {
		if r, ok := byID[hit.Chunk.ID]; ok {
			r.Score += 1.0 / float64(rrfK+rank+1)
			r.VectorRank = rank
			continue
		}
		byID[hit.Chunk.ID] = &Result{
			Chunk:      hit,
			Score:      1.0 / float64(rrfK+rank+1),
			FTSRank:    -1,
			VectorRank: rank,
		}
	}

	results := make([]Result, 0, len(byID))
	for _, r := range byID {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Chunk.ID < results[j].Chunk.Chunk.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
