// Package store is the Postgres persistence layer. All tables are created
// idempotently by Migrate at startup; vector columns use pgvector with an
// HNSW index for cosine search.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Sentinel errors mapped to HTTP statuses by the server layer.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")

	// ErrJobRunning means an enqueue hit a (book, stage) row that is
	// currently running; the caller must not dispatch a second task.
	ErrJobRunning = errors.New("job already running")
)

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new Store connected to the given database URL. Vector
// types are registered on every pooled connection.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool (tests).
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Migrate applies the schema. Safe to run on every startup.
func (s *Store) Migrate(ctx context.Context, embeddingDim int) error {
	if embeddingDim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrValidation)
	}

	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS books (
  id                  BIGSERIAL PRIMARY KEY,
  title               TEXT NOT NULL,
  author              TEXT NOT NULL DEFAULT '',
  isbn                TEXT NOT NULL DEFAULT '',
  description         TEXT NOT NULL DEFAULT '',
  publisher           TEXT NOT NULL DEFAULT '',
  published_date      TEXT NOT NULL DEFAULT '',
  language            TEXT NOT NULL DEFAULT 'en',
  page_count          INT NOT NULL DEFAULT 0,
  file_hash           TEXT NOT NULL UNIQUE,
  cover_path          TEXT NOT NULL DEFAULT '',
  processing_status   TEXT NOT NULL DEFAULT 'pending',
  processing_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
  rating              DOUBLE PRECISION NOT NULL DEFAULT 0,
  search_vector       tsvector,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS books_search_vector_gin
  ON books USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS books_processing_status_idx
  ON books (processing_status);

CREATE TABLE IF NOT EXISTS book_files (
  id        BIGSERIAL PRIMARY KEY,
  book_id   BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
  file_path TEXT NOT NULL UNIQUE,
  file_type TEXT NOT NULL,
  file_size BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS book_chunks (
  id            BIGSERIAL PRIMARY KEY,
  book_id       BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
  chunk_index   INT NOT NULL,
  content       TEXT NOT NULL,
  page_number   INT NOT NULL DEFAULT 0,
  chapter       TEXT NOT NULL DEFAULT '',
  token_count   INT NOT NULL DEFAULT 0,
  embedding     vector(%d),
  search_vector tsvector,
  UNIQUE (book_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS book_chunks_embedding_hnsw
  ON book_chunks USING hnsw (embedding vector_cosine_ops)
  WITH (m = 16, ef_construction = 64);
CREATE INDEX IF NOT EXISTS book_chunks_search_vector_gin
  ON book_chunks USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS book_chunks_book_id_idx
  ON book_chunks (book_id);

CREATE TABLE IF NOT EXISTS book_insights (
  id               BIGSERIAL PRIMARY KEY,
  book_id          BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
  insight_type     TEXT NOT NULL,
  title            TEXT NOT NULL,
  content          TEXT NOT NULL,
  supporting_quote TEXT NOT NULL DEFAULT '',
  importance       INT NOT NULL DEFAULT 5,
  refinement_level INT NOT NULL DEFAULT 1,
  embedding        vector(%d),
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS book_insights_book_id_idx
  ON book_insights (book_id);

CREATE TABLE IF NOT EXISTS insight_connections (
  id              BIGSERIAL PRIMARY KEY,
  insight_a_id    BIGINT NOT NULL REFERENCES book_insights(id) ON DELETE CASCADE,
  insight_b_id    BIGINT NOT NULL REFERENCES book_insights(id) ON DELETE CASCADE,
  connection_type TEXT NOT NULL DEFAULT 'related',
  strength        DOUBLE PRECISION NOT NULL DEFAULT 0,
  description     TEXT NOT NULL DEFAULT '',
  CHECK (insight_a_id < insight_b_id),
  UNIQUE (insight_a_id, insight_b_id)
);

CREATE TABLE IF NOT EXISTS topics (
  id          BIGSERIAL PRIMARY KEY,
  name        TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  keywords    TEXT[] NOT NULL DEFAULT '{}',
  embedding   vector(%d),
  book_count  INT NOT NULL DEFAULT 0,
  color       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS book_topics (
  book_id   BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
  topic_id  BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
  relevance DOUBLE PRECISION NOT NULL DEFAULT 0,
  PRIMARY KEY (book_id, topic_id)
);

CREATE TABLE IF NOT EXISTS topic_relations (
  topic_a_id    BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
  topic_b_id    BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
  strength      DOUBLE PRECISION NOT NULL DEFAULT 0,
  relation_type TEXT NOT NULL DEFAULT 'related',
  PRIMARY KEY (topic_a_id, topic_b_id)
);

CREATE TABLE IF NOT EXISTS processing_jobs (
  id               BIGSERIAL PRIMARY KEY,
  book_id          BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
  stage            TEXT NOT NULL,
  status           TEXT NOT NULL DEFAULT 'pending',
  attempts         INT NOT NULL DEFAULT 0,
  error_message    TEXT NOT NULL DEFAULT '',
  external_task_id TEXT NOT NULL DEFAULT '',
  started_at       TIMESTAMPTZ,
  completed_at     TIMESTAMPTZ,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (book_id, stage)
);
CREATE INDEX IF NOT EXISTS processing_jobs_status_idx
  ON processing_jobs (status);

CREATE TABLE IF NOT EXISTS feed_items (
  id         BIGSERIAL PRIMARY KEY,
  item_type  TEXT NOT NULL,
  title      TEXT NOT NULL,
  content    TEXT NOT NULL,
  book_ids   BIGINT[] NOT NULL DEFAULT '{}',
  insight_id BIGINT,
  metadata   JSONB,
  is_read    BOOLEAN NOT NULL DEFAULT FALSE,
  is_pinned  BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS feed_items_is_read_idx
  ON feed_items (is_read);

CREATE TABLE IF NOT EXISTS chat_sessions (
  id         BIGSERIAL PRIMARY KEY,
  title      TEXT NOT NULL DEFAULT '',
  book_ids   BIGINT[] NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_messages (
  id            BIGSERIAL PRIMARY KEY,
  session_id    BIGINT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
  role          TEXT NOT NULL,
  content       TEXT NOT NULL,
  source_chunks JSONB,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chat_messages_session_id_idx
  ON chat_messages (session_id);

CREATE TABLE IF NOT EXISTS reading_progress (
  book_id          BIGINT PRIMARY KEY REFERENCES books(id) ON DELETE CASCADE,
  current_page     INT NOT NULL DEFAULT 0,
  total_pages      INT NOT NULL DEFAULT 0,
  progress_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
  epub_cfi         TEXT NOT NULL DEFAULT '',
  status           TEXT NOT NULL DEFAULT 'not_started',
  total_read_time  INT NOT NULL DEFAULT 0,
  last_read_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS reading_sessions (
  id         BIGSERIAL PRIMARY KEY,
  book_id    BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
  started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  ended_at   TIMESTAMPTZ,
  duration   INT NOT NULL DEFAULT 0,
  pages_read INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS external_metadata (
  id         BIGSERIAL PRIMARY KEY,
  book_id    BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
  source     TEXT NOT NULL,
  raw        JSONB NOT NULL,
  fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (book_id, source)
);

CREATE TABLE IF NOT EXISTS learning_paths (
  id          BIGSERIAL PRIMARY KEY,
  title       TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS learning_path_books (
  path_id   BIGINT NOT NULL REFERENCES learning_paths(id) ON DELETE CASCADE,
  book_id   BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
  position  INT NOT NULL DEFAULT 0,
  rationale TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (path_id, book_id)
);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, embeddingDim, embeddingDim, embeddingDim))
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
