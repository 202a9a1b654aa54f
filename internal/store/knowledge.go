package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/vmishra/bookflix/internal/types"
)

// CreateLearningPath creates an empty path.
func (s *Store) CreateLearningPath(ctx context.Context, title, description string) (*types.LearningPath, error) {
	var p types.LearningPath
	err := s.pool.QueryRow(ctx, `
		INSERT INTO learning_paths (title, description)
		VALUES ($1,$2)
		RETURNING id, title, description, created_at`,
		title, description).
		Scan(&p.ID, &p.Title, &p.Description, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListLearningPaths returns all paths, newest first.
func (s *Store) ListLearningPaths(ctx context.Context) ([]*types.LearningPath, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, created_at
		FROM learning_paths
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []*types.LearningPath
	for rows.Next() {
		var p types.LearningPath
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		paths = append(paths, &p)
	}
	return paths, rows.Err()
}

// GetLearningPath fetches a path by id.
func (s *Store) GetLearningPath(ctx context.Context, id int64) (*types.LearningPath, error) {
	var p types.LearningPath
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, created_at
		FROM learning_paths WHERE id = $1`, id).
		Scan(&p.ID, &p.Title, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// DeleteLearningPath removes a path and its book placements.
func (s *Store) DeleteLearningPath(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM learning_paths WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddBookToPath places a book on a path at a position.
func (s *Store) AddBookToPath(ctx context.Context, pathID, bookID int64, position int, rationale string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO learning_path_books (path_id, book_id, position, rationale)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (path_id, book_id) DO UPDATE SET
			position = EXCLUDED.position,
			rationale = EXCLUDED.rationale`,
		pathID, bookID, position, rationale)
	return err
}

// PathBooks returns the books on a path in position order.
func (s *Store) PathBooks(ctx context.Context, pathID int64) ([]*types.LearningPathBook, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT path_id, book_id, position, rationale
		FROM learning_path_books
		WHERE path_id = $1
		ORDER BY position ASC`, pathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*types.LearningPathBook
	for rows.Next() {
		var b types.LearningPathBook
		if err := rows.Scan(&b.PathID, &b.BookID, &b.Position, &b.Rationale); err != nil {
			return nil, err
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}
