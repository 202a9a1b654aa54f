package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/vmishra/bookflix/internal/types"
)

// UpsertProgress writes reading position for a book. Status is derived:
// percent >= 95 marks the book completed, any read pages mark it reading.
func (s *Store) UpsertProgress(ctx context.Context, p *types.ReadingProgress) (*types.ReadingProgress, error) {
	status := p.Status
	if status == "" {
		switch {
		case p.ProgressPercent >= 95:
			status = "completed"
		case p.CurrentPage > 0:
			status = "reading"
		default:
			status = "not_started"
		}
	}

	var out types.ReadingProgress
	err := s.pool.QueryRow(ctx, `
		INSERT INTO reading_progress (book_id, current_page, total_pages,
			progress_percent, epub_cfi, status, last_read_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
		ON CONFLICT (book_id) DO UPDATE SET
			current_page = EXCLUDED.current_page,
			total_pages = EXCLUDED.total_pages,
			progress_percent = EXCLUDED.progress_percent,
			epub_cfi = EXCLUDED.epub_cfi,
			status = EXCLUDED.status,
			last_read_at = now()
		RETURNING book_id, current_page, total_pages, progress_percent,
			epub_cfi, status, total_read_time, last_read_at`,
		p.BookID, p.CurrentPage, p.TotalPages, p.ProgressPercent,
		p.EpubCFI, status).
		Scan(&out.BookID, &out.CurrentPage, &out.TotalPages,
			&out.ProgressPercent, &out.EpubCFI, &out.Status,
			&out.TotalReadTime, &out.LastReadAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProgress fetches reading progress for a book.
func (s *Store) GetProgress(ctx context.Context, bookID int64) (*types.ReadingProgress, error) {
	var p types.ReadingProgress
	err := s.pool.QueryRow(ctx, `
		SELECT book_id, current_page, total_pages, progress_percent,
			epub_cfi, status, total_read_time, last_read_at
		FROM reading_progress WHERE book_id = $1`, bookID).
		Scan(&p.BookID, &p.CurrentPage, &p.TotalPages, &p.ProgressPercent,
			&p.EpubCFI, &p.Status, &p.TotalReadTime, &p.LastReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ContinueReading returns books currently being read, most recently read
// first.
func (s *Store) ContinueReading(ctx context.Context, limit int) ([]*types.Book, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.collectBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		JOIN reading_progress rp ON rp.book_id = books.id
		WHERE rp.status = 'reading'
		ORDER BY rp.last_read_at DESC NULLS LAST LIMIT $1`, limit)
}

// StartReadingSession opens a timed reading sitting.
func (s *Store) StartReadingSession(ctx context.Context, bookID int64) (*types.ReadingSession, error) {
	var sess types.ReadingSession
	err := s.pool.QueryRow(ctx, `
		INSERT INTO reading_sessions (book_id)
		VALUES ($1)
		RETURNING id, book_id, started_at, ended_at, duration, pages_read`,
		bookID).
		Scan(&sess.ID, &sess.BookID, &sess.StartedAt, &sess.EndedAt,
			&sess.Duration, &sess.PagesRead)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// EndReadingSession closes a sitting, recording its duration in seconds
// and accumulating the book's total read time.
func (s *Store) EndReadingSession(ctx context.Context, sessionID int64, pagesRead int) (*types.ReadingSession, error) {
	var sess types.ReadingSession
	err := s.pool.QueryRow(ctx, `
		UPDATE reading_sessions SET
			ended_at = now(),
			duration = EXTRACT(EPOCH FROM now() - started_at)::int,
			pages_read = $2
		WHERE id = $1 AND ended_at IS NULL
		RETURNING id, book_id, started_at, ended_at, duration, pages_read`,
		sessionID, pagesRead).
		Scan(&sess.ID, &sess.BookID, &sess.StartedAt, &sess.EndedAt,
			&sess.Duration, &sess.PagesRead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reading_progress (book_id, total_read_time)
		VALUES ($1, $2)
		ON CONFLICT (book_id) DO UPDATE SET
			total_read_time = reading_progress.total_read_time + EXCLUDED.total_read_time`,
		sess.BookID, sess.Duration)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// RecentlyReadBookIDs returns book ids ordered by last read, for the
// recommendation blend.
func (s *Store) RecentlyReadBookIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT book_id FROM reading_progress
		WHERE last_read_at IS NOT NULL
		ORDER BY last_read_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReadingStats aggregates reading activity across the library.
type ReadingStats struct {
	BooksReading     int `json:"books_reading"`
	BooksCompleted   int `json:"books_completed"`
	TotalReadTime    int `json:"total_read_time"`
	SessionsThisWeek int `json:"sessions_this_week"`
	PagesThisWeek    int `json:"pages_this_week"`
}

// GetReadingStats computes reading stats in one round trip.
func (s *Store) GetReadingStats(ctx context.Context) (*ReadingStats, error) {
	var st ReadingStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM reading_progress WHERE status = 'reading'),
			(SELECT COUNT(*) FROM reading_progress WHERE status = 'completed'),
			(SELECT COALESCE(SUM(total_read_time), 0) FROM reading_progress),
			(SELECT COUNT(*) FROM reading_sessions
				WHERE started_at > now() - interval '7 days'),
			(SELECT COALESCE(SUM(pages_read), 0) FROM reading_sessions
				WHERE started_at > now() - interval '7 days')`).
		Scan(&st.BooksReading, &st.BooksCompleted, &st.TotalReadTime,
			&st.SessionsThisWeek, &st.PagesThisWeek)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
