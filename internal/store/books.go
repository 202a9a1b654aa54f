package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vmishra/bookflix/internal/types"
)

const bookColumns = `id, title, author, isbn, description, publisher, published_date,
	language, page_count, file_hash, cover_path, processing_status,
	processing_progress, rating, created_at, updated_at`

func scanBook(row pgx.Row) (*types.Book, error) {
	var b types.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description,
		&b.Publisher, &b.PublishedDate, &b.Language, &b.PageCount, &b.FileHash,
		&b.CoverPath, &b.ProcessingStatus, &b.ProcessingProgress, &b.Rating,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) collectBooks(ctx context.Context, query string, args ...any) ([]*types.Book, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*types.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// CreateBook inserts a new book row in pending state.
func (s *Store) CreateBook(ctx context.Context, b *types.Book) (*types.Book, error) {
	if b.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if b.FileHash == "" {
		return nil, fmt.Errorf("%w: file hash is required", ErrValidation)
	}
	language := b.Language
	if language == "" {
		language = "en"
	}
	status := b.ProcessingStatus
	if status == "" {
		status = types.StatusPending
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO books (title, author, isbn, description, publisher,
			published_date, language, page_count, file_hash, cover_path,
			processing_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING `+bookColumns,
		b.Title, b.Author, b.ISBN, b.Description, b.Publisher,
		b.PublishedDate, language, b.PageCount, b.FileHash, b.CoverPath,
		status)
	return scanBook(row)
}

// GetBook fetches a book by id.
func (s *Store) GetBook(ctx context.Context, id int64) (*types.Book, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	return scanBook(row)
}

// BookByFileHash fetches a book by its file hash, or ErrNotFound.
func (s *Store) BookByFileHash(ctx context.Context, hash string) (*types.Book, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE file_hash = $1`, hash)
	return scanBook(row)
}

// ListBooks returns books ordered by creation time, newest first. An empty
// status matches all.
func (s *Store) ListBooks(ctx context.Context, status types.ProcessingStatus, limit, offset int) ([]*types.Book, error) {
	if limit <= 0 {
		limit = 50
	}
	if status != "" {
		return s.collectBooks(ctx, `
			SELECT `+bookColumns+` FROM books
			WHERE processing_status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, limit, offset)
	}
	return s.collectBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
}

// RecentBooks returns the most recently added books.
func (s *Store) RecentBooks(ctx context.Context, limit int) ([]*types.Book, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.collectBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		ORDER BY created_at DESC LIMIT $1`, limit)
}

// BooksWithStatus returns books in a status ordered by least recently
// updated first.
func (s *Store) BooksWithStatus(ctx context.Context, statuses []types.ProcessingStatus, limit int) ([]*types.Book, error) {
	if limit <= 0 {
		limit = 10
	}
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	return s.collectBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE processing_status = ANY($1)
		ORDER BY updated_at ASC LIMIT $2`, vals, limit)
}

// OldestPendingBook returns the oldest book still pending, or ErrNotFound.
func (s *Store) OldestPendingBook(ctx context.Context) (*types.Book, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE processing_status = 'pending'
		ORDER BY created_at ASC LIMIT 1`)
	return scanBook(row)
}

// CompletedBookNeedingRefinement returns a completed book whose maximum
// insight refinement level is below maxLevel, oldest first, with that level.
func (s *Store) CompletedBookNeedingRefinement(ctx context.Context, maxLevel int) (*types.Book, int, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+bookColumns+`, COALESCE(
			(SELECT MAX(refinement_level) FROM book_insights WHERE book_id = books.id), 0)
		FROM books
		WHERE processing_status = 'completed'
		  AND COALESCE(
			(SELECT MAX(refinement_level) FROM book_insights WHERE book_id = books.id), 0) < $1
		  AND EXISTS (SELECT 1 FROM book_insights WHERE book_id = books.id)
		ORDER BY created_at ASC LIMIT 1`, maxLevel)

	var b types.Book
	var level int
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description,
		&b.Publisher, &b.PublishedDate, &b.Language, &b.PageCount, &b.FileHash,
		&b.CoverPath, &b.ProcessingStatus, &b.ProcessingProgress, &b.Rating,
		&b.CreatedAt, &b.UpdatedAt, &level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	return &b, level, nil
}

// CompletedBookMissingDescription returns a completed book with an empty
// description, oldest first.
func (s *Store) CompletedBookMissingDescription(ctx context.Context) (*types.Book, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE processing_status = 'completed' AND description = ''
		ORDER BY created_at ASC LIMIT 1`)
	return scanBook(row)
}

// SetBookStatus updates processing status and progress.
func (s *Store) SetBookStatus(ctx context.Context, id int64, status types.ProcessingStatus, progress float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE books SET processing_status = $2, processing_progress = $3,
			updated_at = now()
		WHERE id = $1`, id, status, progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBookProgress updates progress only.
func (s *Store) SetBookProgress(ctx context.Context, id int64, progress float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE books SET processing_progress = $2, updated_at = now()
		WHERE id = $1`, id, progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExtractUpdate carries the fields the extract stage writes back.
type ExtractUpdate struct {
	Title      string // applied only when non-empty
	Author     string // applied only when non-empty
	PageCount  int
	CoverPath  string
	SearchText string // title + author + body preview, indexed as tsvector
}

// ApplyExtract writes extraction results onto the book row.
func (s *Store) ApplyExtract(ctx context.Context, id int64, u ExtractUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE books SET
			title = CASE WHEN $2 <> '' THEN $2 ELSE title END,
			author = CASE WHEN $3 <> '' THEN $3 ELSE author END,
			page_count = $4,
			cover_path = CASE WHEN $5 <> '' THEN $5 ELSE cover_path END,
			search_vector = to_tsvector('english', $6),
			updated_at = now()
		WHERE id = $1`,
		id, u.Title, u.Author, u.PageCount, u.CoverPath, u.SearchText)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BookPatch is a partial edit from the API. Nil fields are untouched.
type BookPatch struct {
	Title       *string  `json:"title,omitempty"`
	Author      *string  `json:"author,omitempty"`
	Description *string  `json:"description,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
}

// UpdateBook applies a patch and returns the updated row.
func (s *Store) UpdateBook(ctx context.Context, id int64, p BookPatch) (*types.Book, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE books SET
			title = COALESCE($2, title),
			author = COALESCE($3, author),
			description = COALESCE($4, description),
			rating = COALESCE($5, rating),
			updated_at = now()
		WHERE id = $1
		RETURNING `+bookColumns,
		id, p.Title, p.Author, p.Description, p.Rating)
	return scanBook(row)
}

// DeleteBook removes a book and all dependent rows via cascades.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddBookFile records the on-disk file backing a book.
func (s *Store) AddBookFile(ctx context.Context, f *types.BookFile) (*types.BookFile, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO book_files (book_id, file_path, file_type, file_size)
		VALUES ($1,$2,$3,$4)
		RETURNING id, book_id, file_path, file_type, file_size`,
		f.BookID, f.FilePath, f.FileType, f.FileSize)

	var out types.BookFile
	if err := row.Scan(&out.ID, &out.BookID, &out.FilePath, &out.FileType, &out.FileSize); err != nil {
		return nil, err
	}
	return &out, nil
}

// BookFile returns the sole file for a book.
func (s *Store) BookFile(ctx context.Context, bookID int64) (*types.BookFile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, book_id, file_path, file_type, file_size
		FROM book_files WHERE book_id = $1 LIMIT 1`, bookID)

	var f types.BookFile
	err := row.Scan(&f.ID, &f.BookID, &f.FilePath, &f.FileType, &f.FileSize)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// LibraryStats is the aggregate payload for the library stats endpoint.
type LibraryStats struct {
	TotalBooks      int       `json:"total_books"`
	CompletedBooks  int       `json:"completed_books"`
	ProcessingBooks int       `json:"processing_books"`
	FailedBooks     int       `json:"failed_books"`
	TotalChunks     int       `json:"total_chunks"`
	TotalInsights   int       `json:"total_insights"`
	TotalTopics     int       `json:"total_topics"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Stats computes library-wide counts.
func (s *Store) Stats(ctx context.Context) (*LibraryStats, error) {
	st := &LibraryStats{GeneratedAt: time.Now().UTC()}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM books),
			(SELECT COUNT(*) FROM books WHERE processing_status = 'completed'),
			(SELECT COUNT(*) FROM books WHERE processing_status NOT IN ('completed','failed','pending')),
			(SELECT COUNT(*) FROM books WHERE processing_status = 'failed'),
			(SELECT COUNT(*) FROM book_chunks),
			(SELECT COUNT(*) FROM book_insights),
			(SELECT COUNT(*) FROM topics)`).
		Scan(&st.TotalBooks, &st.CompletedBooks, &st.ProcessingBooks,
			&st.FailedBooks, &st.TotalChunks, &st.TotalInsights, &st.TotalTopics)
	if err != nil {
		return nil, err
	}
	return st, nil
}
