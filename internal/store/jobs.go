package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vmishra/bookflix/internal/types"
)

const jobColumns = `id, book_id, stage, status, attempts, error_message,
	external_task_id, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*types.ProcessingJob, error) {
	var j types.ProcessingJob
	err := row.Scan(&j.ID, &j.BookID, &j.Stage, &j.Status, &j.Attempts,
		&j.ErrorMessage, &j.ExternalTaskID, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// EnqueueJob creates a pending job row for (book, stage). An existing
// non-running row is reset to pending so the stage can run again; a row
// that is currently running is left untouched and ErrJobRunning is
// returned, otherwise a re-dispatch would demote the in-flight row and
// let a second worker claim the same stage.
func (s *Store) EnqueueJob(ctx context.Context, bookID int64, stage types.Stage) (*types.ProcessingJob, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO processing_jobs (book_id, stage)
		VALUES ($1, $2)
		ON CONFLICT (book_id, stage) DO UPDATE SET
			status = 'pending',
			error_message = '',
			started_at = NULL,
			completed_at = NULL,
			updated_at = now()
		WHERE processing_jobs.status <> 'running'
		RETURNING `+jobColumns, bookID, stage)
	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		// The conflict target exists but the WHERE guard rejected it.
		return nil, ErrJobRunning
	}
	return job, err
}

// ClaimJob transitions a job from pending or failed to running and bumps
// the attempt counter, under a row lock so two workers cannot both claim.
// An already-running or terminal row returns claimed=false with no change.
func (s *Store) ClaimJob(ctx context.Context, bookID int64, stage types.Stage, externalTaskID string) (*types.ProcessingJob, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE book_id = $1 AND stage = $2
		FOR UPDATE`, bookID, stage)
	job, err := scanJob(row)
	if err != nil {
		return nil, false, err
	}

	if job.Status != types.JobPending && job.Status != types.JobFailed {
		// Already running, or finished. Commit releases the lock.
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return job, false, nil
	}

	row = tx.QueryRow(ctx, `
		UPDATE processing_jobs SET
			status = 'running',
			attempts = attempts + 1,
			error_message = '',
			external_task_id = $2,
			started_at = now(),
			completed_at = NULL,
			updated_at = now()
		WHERE id = $1
		RETURNING `+jobColumns, job.ID, externalTaskID)
	job, err = scanJob(row)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// MarkJob sets a job's terminal or intermediate status. Terminal statuses
// stamp completed_at.
func (s *Store) MarkJob(ctx context.Context, jobID int64, status types.JobStatus, errMsg string) error {
	terminal := status == types.JobCompleted || status == types.JobFailed || status == types.JobSkipped
	var query string
	if terminal {
		query = `UPDATE processing_jobs SET status = $2, error_message = $3,
			completed_at = now(), updated_at = now() WHERE id = $1`
	} else {
		query = `UPDATE processing_jobs SET status = $2, error_message = $3,
			updated_at = now() WHERE id = $1`
	}
	tag, err := s.pool.Exec(ctx, query, jobID, status, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingJobs returns pending jobs for a stage, oldest first.
func (s *Store) PendingJobs(ctx context.Context, stage types.Stage) ([]*types.ProcessingJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE stage = $1 AND status = 'pending'
		ORDER BY created_at ASC`, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*types.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// JobCountsByStatus returns job counts keyed by status.
func (s *Store) JobCountsByStatus(ctx context.Context) (map[types.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM processing_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[types.JobStatus]int)
	for rows.Next() {
		var status types.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// RecentFailedJobs returns the most recently failed jobs.
func (s *Store) RecentFailedJobs(ctx context.Context, limit int) ([]*types.ProcessingJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE status = 'failed'
		ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*types.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// JobsForBook returns all jobs for a book in stage creation order.
func (s *Store) JobsForBook(ctx context.Context, bookID int64) ([]*types.ProcessingJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE book_id = $1
		ORDER BY created_at ASC, id ASC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*types.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
