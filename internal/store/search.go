package store

import (
	"context"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/vmishra/bookflix/internal/types"
)

// ScoredChunk is one retrieval leg hit with its book hydrated.
type ScoredChunk struct {
	Chunk      types.BookChunk `json:"chunk"`
	BookTitle  string          `json:"book_title"`
	BookAuthor string          `json:"book_author,omitempty"`
	Score      float64         `json:"score"`
}

const scoredChunkSelect = `
	SELECT c.id, c.book_id, c.chunk_index, c.content, c.page_number,
		c.chapter, c.token_count, b.title, b.author`

func (s *Store) collectScoredChunks(ctx context.Context, query string, args ...any) ([]ScoredChunk, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []ScoredChunk
	for rows.Next() {
		var h ScoredChunk
		if err := rows.Scan(&h.Chunk.ID, &h.Chunk.BookID, &h.Chunk.ChunkIndex,
			&h.Chunk.Content, &h.Chunk.PageNumber, &h.Chunk.Chapter,
			&h.Chunk.TokenCount, &h.BookTitle, &h.BookAuthor, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchChunksFTS runs the full-text leg: plainto_tsquery ranked by
// ts_rank, best first. A nil bookIDs searches the whole library.
func (s *Store) SearchChunksFTS(ctx context.Context, query string, limit int, bookIDs []int64) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 10
	}
	q := scoredChunkSelect + `,
		ts_rank(c.search_vector, plainto_tsquery('english', $1)) AS score
		FROM book_chunks c
		JOIN books b ON b.id = c.book_id
		WHERE c.search_vector @@ plainto_tsquery('english', $1)`
	args := []any{query}
	if len(bookIDs) > 0 {
		q += ` AND c.book_id = ANY($3)`
		args = append(args, limit, bookIDs)
	} else {
		args = append(args, limit)
	}
	q += ` ORDER BY score DESC, c.id ASC LIMIT $2`
	return s.collectScoredChunks(ctx, q, args...)
}

// SearchChunksVector runs the vector leg: cosine distance to the query
// embedding, nearest first. Score is cosine similarity.
func (s *Store) SearchChunksVector(ctx context.Context, embedding []float32, limit int, bookIDs []int64) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(embedding)
	q := scoredChunkSelect + `,
		1 - (c.embedding <=> $1) AS score
		FROM book_chunks c
		JOIN books b ON b.id = c.book_id
		WHERE c.embedding IS NOT NULL`
	args := []any{vec}
	if len(bookIDs) > 0 {
		q += ` AND c.book_id = ANY($3)`
		args = append(args, limit, bookIDs)
	} else {
		args = append(args, limit)
	}
	q += ` ORDER BY c.embedding <=> $1 ASC, c.id ASC LIMIT $2`
	return s.collectScoredChunks(ctx, q, args...)
}

// SearchBooks runs full-text search over the books table itself.
func (s *Store) SearchBooks(ctx context.Context, query string, limit int) ([]*types.Book, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.collectBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE search_vector @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC
		LIMIT $2`, query, limit)
}
