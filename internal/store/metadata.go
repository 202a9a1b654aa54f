package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/vmishra/bookflix/internal/types"
)

// UpsertExternalMetadata stores the raw payload from an external metadata
// source, one row per (book, source).
func (s *Store) UpsertExternalMetadata(ctx context.Context, bookID int64, source string, raw json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO external_metadata (book_id, source, raw, fetched_at)
		VALUES ($1,$2,$3, now())
		ON CONFLICT (book_id, source) DO UPDATE SET
			raw = EXCLUDED.raw,
			fetched_at = now()`,
		bookID, source, raw)
	return err
}

// GetExternalMetadata fetches the stored payload for a (book, source).
func (s *Store) GetExternalMetadata(ctx context.Context, bookID int64, source string) (*types.ExternalMetadata, error) {
	var m types.ExternalMetadata
	err := s.pool.QueryRow(ctx, `
		SELECT id, book_id, source, raw, fetched_at
		FROM external_metadata
		WHERE book_id = $1 AND source = $2`, bookID, source).
		Scan(&m.ID, &m.BookID, &m.Source, &m.Raw, &m.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// MetadataFill carries fields the enrichment stage may contribute. Empty
// values are ignored.
type MetadataFill struct {
	Description   string
	ISBN          string
	Publisher     string
	PublishedDate string
	PageCount     int
	Rating        float64
	CoverPath     string
}

// FillBookMetadata writes enrichment fields onto a book, but only into
// columns that are currently empty. Existing values always win.
func (s *Store) FillBookMetadata(ctx context.Context, bookID int64, f MetadataFill) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE books SET
			description = CASE WHEN description = '' THEN $2 ELSE description END,
			isbn = CASE WHEN isbn = '' THEN $3 ELSE isbn END,
			publisher = CASE WHEN publisher = '' THEN $4 ELSE publisher END,
			published_date = CASE WHEN published_date = '' THEN $5 ELSE published_date END,
			page_count = CASE WHEN page_count = 0 THEN $6 ELSE page_count END,
			rating = CASE WHEN rating = 0 THEN $7 ELSE rating END,
			cover_path = CASE WHEN cover_path = '' THEN $8 ELSE cover_path END,
			updated_at = now()
		WHERE id = $1`,
		bookID, f.Description, f.ISBN, f.Publisher, f.PublishedDate,
		f.PageCount, f.Rating, f.CoverPath)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
