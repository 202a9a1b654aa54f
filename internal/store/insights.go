package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/vmishra/bookflix/internal/types"
)

const insightColumns = `id, book_id, insight_type, title, content,
	supporting_quote, importance, refinement_level, created_at`

func scanInsight(row pgx.Row) (*types.BookInsight, error) {
	var in types.BookInsight
	err := row.Scan(&in.ID, &in.BookID, &in.InsightType, &in.Title, &in.Content,
		&in.SupportingQuote, &in.Importance, &in.RefinementLevel, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &in, nil
}

func (s *Store) collectInsights(ctx context.Context, query string, args ...any) ([]*types.BookInsight, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []*types.BookInsight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		insights = append(insights, in)
	}
	return insights, rows.Err()
}

// InsertInsights appends insight rows for a book. Refinement passes add new
// rows rather than replacing earlier ones.
func (s *Store) InsertInsights(ctx context.Context, insights []*types.BookInsight) error {
	for _, in := range insights {
		importance := in.Importance
		if importance == 0 {
			importance = 5
		}
		level := in.RefinementLevel
		if level == 0 {
			level = 1
		}
		var emb any
		if in.Embedding != nil {
			emb = pgvector.NewVector(in.Embedding)
		}
		err := s.pool.QueryRow(ctx, `
			INSERT INTO book_insights (book_id, insight_type, title, content,
				supporting_quote, importance, refinement_level, embedding)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id`,
			in.BookID, in.InsightType, in.Title, in.Content,
			in.SupportingQuote, importance, level, emb).Scan(&in.ID)
		if err != nil {
			return fmt.Errorf("failed to insert insight %q: %w", in.Title, err)
		}
	}
	return nil
}

// InsightsForBook returns insights for a book ordered by importance, an
// empty insightType matches all.
func (s *Store) InsightsForBook(ctx context.Context, bookID int64, insightType types.InsightType) ([]*types.BookInsight, error) {
	if insightType != "" {
		return s.collectInsights(ctx, `
			SELECT `+insightColumns+` FROM book_insights
			WHERE book_id = $1 AND insight_type = $2
			ORDER BY importance DESC, id ASC`, bookID, insightType)
	}
	return s.collectInsights(ctx, `
		SELECT `+insightColumns+` FROM book_insights
		WHERE book_id = $1
		ORDER BY importance DESC, id ASC`, bookID)
}

// InsightsByType lists insights of one type across the library, newest
// first.
func (s *Store) InsightsByType(ctx context.Context, insightType types.InsightType, limit int) ([]*types.BookInsight, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.collectInsights(ctx, `
		SELECT `+insightColumns+` FROM book_insights
		WHERE insight_type = $1
		ORDER BY created_at DESC LIMIT $2`, insightType, limit)
}

// GetInsight fetches one insight by id.
func (s *Store) GetInsight(ctx context.Context, id int64) (*types.BookInsight, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+insightColumns+` FROM book_insights WHERE id = $1`, id)
	return scanInsight(row)
}

// MaxRefinementLevel returns the highest refinement level among a book's
// insights, 0 when the book has none.
func (s *Store) MaxRefinementLevel(ctx context.Context, bookID int64) (int, error) {
	var level int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(refinement_level), 0)
		FROM book_insights WHERE book_id = $1`, bookID).Scan(&level)
	return level, err
}

// RandomInsights returns up to n random insights of a type across the
// whole library.
func (s *Store) RandomInsights(ctx context.Context, insightType types.InsightType, n int) ([]*types.BookInsight, error) {
	return s.collectInsights(ctx, `
		SELECT `+insightColumns+` FROM book_insights
		WHERE insight_type = $1
		ORDER BY random() LIMIT $2`, insightType, n)
}

// RelatedInsight pairs an insight with its embedding-space similarity to a
// reference insight.
type RelatedInsight struct {
	Insight    *types.BookInsight `json:"insight"`
	BookTitle  string             `json:"book_title"`
	Similarity float64            `json:"similarity"`
}

// NearestInsights returns the insights closest to the given one in
// embedding space, excluding itself, most similar first.
func (s *Store) NearestInsights(ctx context.Context, insightID int64, limit int) ([]RelatedInsight, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.book_id, i.insight_type, i.title, i.content,
			i.supporting_quote, i.importance, i.refinement_level, i.created_at,
			b.title,
			1 - (i.embedding <=> ref.embedding) AS similarity
		FROM book_insights i
		JOIN books b ON b.id = i.book_id
		JOIN book_insights ref ON ref.id = $1
		WHERE i.id <> $1 AND i.embedding IS NOT NULL AND ref.embedding IS NOT NULL
		ORDER BY i.embedding <=> ref.embedding ASC
		LIMIT $2`, insightID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RelatedInsight
	for rows.Next() {
		var in types.BookInsight
		var r RelatedInsight
		if err := rows.Scan(&in.ID, &in.BookID, &in.InsightType, &in.Title,
			&in.Content, &in.SupportingQuote, &in.Importance,
			&in.RefinementLevel, &in.CreatedAt, &r.BookTitle, &r.Similarity); err != nil {
			return nil, err
		}
		r.Insight = &in
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListConnections returns stored insight connections, strongest first.
func (s *Store) ListConnections(ctx context.Context, limit int) ([]*types.InsightConnection, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, insight_a_id, insight_b_id, connection_type, strength, description
		FROM insight_connections
		ORDER BY strength DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*types.InsightConnection
	for rows.Next() {
		var c types.InsightConnection
		if err := rows.Scan(&c.ID, &c.InsightAID, &c.InsightBID,
			&c.ConnectionType, &c.Strength, &c.Description); err != nil {
			return nil, err
		}
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}

// StrongConnections returns connections above a strength threshold, for
// the knowledge map.
func (s *Store) StrongConnections(ctx context.Context, minStrength float64) ([]*types.InsightConnection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, insight_a_id, insight_b_id, connection_type, strength, description
		FROM insight_connections
		WHERE strength > $1
		ORDER BY strength DESC`, minStrength)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*types.InsightConnection
	for rows.Next() {
		var c types.InsightConnection
		if err := rows.Scan(&c.ID, &c.InsightAID, &c.InsightBID,
			&c.ConnectionType, &c.Strength, &c.Description); err != nil {
			return nil, err
		}
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}
