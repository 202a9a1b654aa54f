package store

import (
	"context"

	"github.com/vmishra/bookflix/internal/types"
)

const feedColumns = `id, item_type, title, content, book_ids,
	COALESCE(insight_id, 0), metadata, is_read, is_pinned, created_at`

func (s *Store) collectFeedItems(ctx context.Context, query string, args ...any) ([]*types.FeedItem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*types.FeedItem
	for rows.Next() {
		var it types.FeedItem
		if err := rows.Scan(&it.ID, &it.ItemType, &it.Title, &it.Content,
			&it.BookIDs, &it.InsightID, &it.Metadata, &it.IsRead, &it.IsPinned,
			&it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// InsertFeedItem appends one feed item.
func (s *Store) InsertFeedItem(ctx context.Context, it *types.FeedItem) (*types.FeedItem, error) {
	var insightID any
	if it.InsightID != 0 {
		insightID = it.InsightID
	}
	bookIDs := it.BookIDs
	if bookIDs == nil {
		bookIDs = []int64{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO feed_items (item_type, title, content, book_ids, insight_id, metadata)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`,
		it.ItemType, it.Title, it.Content, bookIDs, insightID, it.Metadata).
		Scan(&it.ID, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// ListFeed returns feed items newest first, pinned items before the rest.
// unreadOnly restricts to unread items.
func (s *Store) ListFeed(ctx context.Context, unreadOnly bool, limit, offset int) ([]*types.FeedItem, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + feedColumns + ` FROM feed_items`
	if unreadOnly {
		q += ` WHERE NOT is_read`
	}
	q += ` ORDER BY is_pinned DESC, created_at DESC LIMIT $1 OFFSET $2`
	return s.collectFeedItems(ctx, q, limit, offset)
}

// LatestFeedOfType returns the most recent feed item of one type.
func (s *Store) LatestFeedOfType(ctx context.Context, itemType string) (*types.FeedItem, error) {
	items, err := s.collectFeedItems(ctx, `
		SELECT `+feedColumns+` FROM feed_items
		WHERE item_type = $1
		ORDER BY created_at DESC LIMIT 1`, itemType)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// MarkFeedRead flags a feed item as read.
func (s *Store) MarkFeedRead(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE feed_items SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFeedPinned pins or unpins a feed item.
func (s *Store) SetFeedPinned(ctx context.Context, id int64, pinned bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE feed_items SET is_pinned = $2 WHERE id = $1`, id, pinned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFeedItem removes a feed item.
func (s *Store) DeleteFeedItem(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feed_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadFeedCount returns the number of unread feed items.
func (s *Store) UnreadFeedCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM feed_items WHERE NOT is_read`).Scan(&n)
	return n, err
}
