package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vmishra/bookflix/internal/types"
)

// CreateSession starts a new chat session, optionally scoped to books.
func (s *Store) CreateSession(ctx context.Context, title string, bookIDs []int64) (*types.ChatSession, error) {
	if bookIDs == nil {
		bookIDs = []int64{}
	}
	var sess types.ChatSession
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions (title, book_ids)
		VALUES ($1,$2)
		RETURNING id, title, book_ids, created_at, updated_at`,
		title, bookIDs).
		Scan(&sess.ID, &sess.Title, &sess.BookIDs, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession fetches a chat session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (*types.ChatSession, error) {
	var sess types.ChatSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, book_ids, created_at, updated_at
		FROM chat_sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.Title, &sess.BookIDs, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns sessions most recently active first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*types.ChatSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, book_ids, created_at, updated_at
		FROM chat_sessions
		ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*types.ChatSession
	for rows.Next() {
		var sess types.ChatSession
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.BookIDs,
			&sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertMessage appends a message to a session and touches the session's
// updated_at.
func (s *Store) InsertMessage(ctx context.Context, m *types.ChatMessage) (*types.ChatMessage, error) {
	var sources any
	if len(m.SourceChunks) > 0 {
		b, err := json.Marshal(m.SourceChunks)
		if err != nil {
			return nil, fmt.Errorf("failed to encode source chunks: %w", err)
		}
		sources = b
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, role, content, source_chunks)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`,
		m.SessionID, m.Role, m.Content, sources).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = now() WHERE id = $1`, m.SessionID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MessagesForSession returns a session's messages oldest first. A limit
// above zero keeps only the most recent limit messages.
func (s *Store) MessagesForSession(ctx context.Context, sessionID int64, limit int) ([]*types.ChatMessage, error) {
	q := `
		SELECT id, session_id, role, content, source_chunks, created_at
		FROM chat_messages WHERE session_id = $1
		ORDER BY id ASC`
	args := []any{sessionID}
	if limit > 0 {
		// Take the most recent N, then restore chronological order.
		q = `
		SELECT id, session_id, role, content, source_chunks, created_at
		FROM (
			SELECT id, session_id, role, content, source_chunks, created_at
			FROM chat_messages WHERE session_id = $1
			ORDER BY id DESC LIMIT $2
		) sub ORDER BY id ASC`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*types.ChatMessage
	for rows.Next() {
		var m types.ChatMessage
		var sources []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content,
			&sources, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.SourceChunks); err != nil {
				return nil, fmt.Errorf("failed to decode source chunks: %w", err)
			}
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
