package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/vmishra/bookflix/internal/types"
)

// ReplaceChunks deletes all chunks for a book and inserts the given set in
// one transaction. Chunk text is indexed per row with to_tsvector.
func (s *Store) ReplaceChunks(ctx context.Context, bookID int64, chunks []types.BookChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM book_chunks WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	for _, c := range chunks {
		var emb any
		if c.Embedding != nil {
			emb = pgvector.NewVector(c.Embedding)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO book_chunks (book_id, chunk_index, content, page_number,
				chapter, token_count, embedding, search_vector)
			VALUES ($1,$2,$3,$4,$5,$6,$7, to_tsvector('english', $3))`,
			bookID, c.ChunkIndex, c.Content, c.PageNumber, c.Chapter,
			c.TokenCount, emb)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return tx.Commit(ctx)
}

// ChunksWithoutEmbedding returns chunks missing embeddings, ordered by
// chunk_index.
func (s *Store) ChunksWithoutEmbedding(ctx context.Context, bookID int64) ([]types.BookChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, book_id, chunk_index, content, page_number, chapter, token_count
		FROM book_chunks
		WHERE book_id = $1 AND embedding IS NULL
		ORDER BY chunk_index ASC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.BookChunk
	for rows.Next() {
		var c types.BookChunk
		if err := rows.Scan(&c.ID, &c.BookID, &c.ChunkIndex, &c.Content,
			&c.PageNumber, &c.Chapter, &c.TokenCount); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SetChunkEmbeddings writes embeddings for a batch of chunk ids in one
// transaction, so a crashed batch leaves no partial progress.
func (s *Store) SetChunkEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error {
	if len(ids) != len(embeddings) {
		return fmt.Errorf("%w: %d ids for %d embeddings", ErrValidation, len(ids), len(embeddings))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, id := range ids {
		_, err := tx.Exec(ctx, `UPDATE book_chunks SET embedding = $2 WHERE id = $1`,
			id, pgvector.NewVector(embeddings[i]))
		if err != nil {
			return fmt.Errorf("failed to set embedding for chunk %d: %w", id, err)
		}
	}

	return tx.Commit(ctx)
}

// ChunkCount returns the total number of chunks for a book.
func (s *Store) ChunkCount(ctx context.Context, bookID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM book_chunks WHERE book_id = $1`, bookID).Scan(&n)
	return n, err
}

// FirstChunks returns up to n chunks for a book ordered by chunk_index.
func (s *Store) FirstChunks(ctx context.Context, bookID int64, n int) ([]types.BookChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, book_id, chunk_index, content, page_number, chapter, token_count
		FROM book_chunks
		WHERE book_id = $1
		ORDER BY chunk_index ASC LIMIT $2`, bookID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.BookChunk
	for rows.Next() {
		var c types.BookChunk
		if err := rows.Scan(&c.ID, &c.BookID, &c.ChunkIndex, &c.Content,
			&c.PageNumber, &c.Chapter, &c.TokenCount); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SampleChunks returns up to n random chunks for a book.
func (s *Store) SampleChunks(ctx context.Context, bookID int64, n int) ([]types.BookChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, book_id, chunk_index, content, page_number, chapter, token_count
		FROM book_chunks
		WHERE book_id = $1
		ORDER BY random() LIMIT $2`, bookID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.BookChunk
	for rows.Next() {
		var c types.BookChunk
		if err := rows.Scan(&c.ID, &c.BookID, &c.ChunkIndex, &c.Content,
			&c.PageNumber, &c.Chapter, &c.TokenCount); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunk fetches one chunk by id.
func (s *Store) GetChunk(ctx context.Context, id int64) (*types.BookChunk, error) {
	var c types.BookChunk
	err := s.pool.QueryRow(ctx, `
		SELECT id, book_id, chunk_index, content, page_number, chapter, token_count
		FROM book_chunks WHERE id = $1`, id).
		Scan(&c.ID, &c.BookID, &c.ChunkIndex, &c.Content, &c.PageNumber,
			&c.Chapter, &c.TokenCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
