package store

import (
	"context"

	"github.com/vmishra/bookflix/internal/types"
)

// ScoredBook pairs a book with a similarity score.
type ScoredBook struct {
	Book       *types.Book `json:"book"`
	Similarity float64     `json:"similarity"`
}

func (s *Store) collectScoredBooks(ctx context.Context, query string, args ...any) ([]ScoredBook, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredBook
	for rows.Next() {
		var b types.Book
		var sim float64
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description,
			&b.Publisher, &b.PublishedDate, &b.Language, &b.PageCount,
			&b.FileHash, &b.CoverPath, &b.ProcessingStatus,
			&b.ProcessingProgress, &b.Rating, &b.CreatedAt, &b.UpdatedAt,
			&sim); err != nil {
			return nil, err
		}
		out = append(out, ScoredBook{Book: &b, Similarity: sim})
	}
	return out, rows.Err()
}

// SimilarBooks returns books nearest to the given book in embedding space.
// The reference point is the centroid of up to 20 of the book's chunk
// embeddings; each candidate book scores by its best-matching chunk.
func (s *Store) SimilarBooks(ctx context.Context, bookID int64, limit int) ([]ScoredBook, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.collectScoredBooks(ctx, `
		WITH centroid AS (
			SELECT AVG(embedding) AS c FROM (
				SELECT embedding FROM book_chunks
				WHERE book_id = $1 AND embedding IS NOT NULL
				LIMIT 20
			) sample
		)
		SELECT `+bookColumns+`, MAX(1 - (ch.embedding <=> centroid.c)) AS similarity
		FROM book_chunks ch
		JOIN books ON books.id = ch.book_id
		CROSS JOIN centroid
		WHERE ch.book_id <> $1
		  AND ch.embedding IS NOT NULL
		  AND centroid.c IS NOT NULL
		GROUP BY books.id
		ORDER BY similarity DESC
		LIMIT $2`, bookID, limit)
}

// SimilarBooksToMany scores candidates against the centroids of several
// seed books at once, for history-based recommendations. Seed books are
// excluded from the results.
func (s *Store) SimilarBooksToMany(ctx context.Context, seedIDs []int64, limit int) ([]ScoredBook, error) {
	if limit <= 0 {
		limit = 5
	}
	if len(seedIDs) == 0 {
		return nil, nil
	}
	return s.collectScoredBooks(ctx, `
		WITH centroid AS (
			SELECT AVG(embedding) AS c FROM book_chunks
			WHERE book_id = ANY($1) AND embedding IS NOT NULL
		)
		SELECT `+bookColumns+`, MAX(1 - (ch.embedding <=> centroid.c)) AS similarity
		FROM book_chunks ch
		JOIN books ON books.id = ch.book_id
		CROSS JOIN centroid
		WHERE NOT (ch.book_id = ANY($1))
		  AND ch.embedding IS NOT NULL
		  AND centroid.c IS NOT NULL
		GROUP BY books.id
		ORDER BY similarity DESC
		LIMIT $2`, seedIDs, limit)
}
