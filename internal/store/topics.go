package store

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/vmishra/bookflix/internal/types"
)

// BookEmbedding is a book's mean chunk embedding, the input to topic
// clustering.
type BookEmbedding struct {
	BookID    int64
	Embedding []float32
}

// BookMeanEmbeddings returns, for every book with embedded chunks, the
// mean of its first 20 chunk embeddings.
func (s *Store) BookMeanEmbeddings(ctx context.Context) ([]BookEmbedding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT book_id, AVG(embedding) FROM (
			SELECT book_id, embedding,
				row_number() OVER (PARTITION BY book_id ORDER BY chunk_index ASC) AS rn
			FROM book_chunks
			WHERE embedding IS NOT NULL
		) head
		WHERE rn <= 20
		GROUP BY book_id
		ORDER BY book_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BookEmbedding
	for rows.Next() {
		var be BookEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&be.BookID, &vec); err != nil {
			return nil, err
		}
		be.Embedding = vec.Slice()
		out = append(out, be)
	}
	return out, rows.Err()
}

// TopicAssignment binds a book to a topic being written by ReplaceTopics.
type TopicAssignment struct {
	BookID    int64
	Relevance float64
}

// TopicWrite is one topic plus its book assignments.
type TopicWrite struct {
	Topic       types.Topic
	Assignments []TopicAssignment
}

// ReplaceTopics atomically swaps the whole topic model: deletes all
// topics (cascading assignments and relations) and writes the new set.
// Relations reference topics by their index in the input slice.
func (s *Store) ReplaceTopics(ctx context.Context, topics []TopicWrite, relations []types.TopicRelation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM topics`); err != nil {
		return fmt.Errorf("failed to clear topics: %w", err)
	}

	ids := make([]int64, len(topics))
	for i, tw := range topics {
		var emb any
		if tw.Topic.Embedding != nil {
			emb = pgvector.NewVector(tw.Topic.Embedding)
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO topics (name, description, keywords, embedding, book_count, color)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id`,
			tw.Topic.Name, tw.Topic.Description, tw.Topic.Keywords, emb,
			len(tw.Assignments), tw.Topic.Color).Scan(&ids[i])
		if err != nil {
			return fmt.Errorf("failed to insert topic %q: %w", tw.Topic.Name, err)
		}

		for _, a := range tw.Assignments {
			_, err := tx.Exec(ctx, `
				INSERT INTO book_topics (book_id, topic_id, relevance)
				VALUES ($1,$2,$3)`, a.BookID, ids[i], a.Relevance)
			if err != nil {
				return fmt.Errorf("failed to assign book %d: %w", a.BookID, err)
			}
		}
	}

	for _, r := range relations {
		aIdx, bIdx := int(r.TopicAID), int(r.TopicBID)
		if aIdx < 0 || aIdx >= len(ids) || bIdx < 0 || bIdx >= len(ids) {
			return fmt.Errorf("%w: relation references topic index out of range", ErrValidation)
		}
		a, b := ids[aIdx], ids[bIdx]
		if a > b {
			a, b = b, a
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO topic_relations (topic_a_id, topic_b_id, strength, relation_type)
			VALUES ($1,$2,$3,$4)`, a, b, r.Strength, r.RelationType)
		if err != nil {
			return fmt.Errorf("failed to insert topic relation: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListTopics returns all topics with book counts, largest first.
func (s *Store) ListTopics(ctx context.Context) ([]*types.Topic, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, keywords, book_count, color
		FROM topics
		ORDER BY book_count DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []*types.Topic
	for rows.Next() {
		var t types.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Keywords,
			&t.BookCount, &t.Color); err != nil {
			return nil, err
		}
		topics = append(topics, &t)
	}
	return topics, rows.Err()
}

// TopicsForBook returns the topics a book belongs to with relevance.
func (s *Store) TopicsForBook(ctx context.Context, bookID int64) ([]*types.Topic, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.description, t.keywords, t.book_count, t.color
		FROM topics t
		JOIN book_topics bt ON bt.topic_id = t.id
		WHERE bt.book_id = $1
		ORDER BY bt.relevance DESC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []*types.Topic
	for rows.Next() {
		var t types.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Keywords,
			&t.BookCount, &t.Color); err != nil {
			return nil, err
		}
		topics = append(topics, &t)
	}
	return topics, rows.Err()
}

// BooksForTopic returns the books in a topic, most relevant first.
func (s *Store) BooksForTopic(ctx context.Context, topicID int64) ([]*types.Book, error) {
	return s.collectBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		JOIN book_topics bt ON bt.book_id = books.id
		WHERE bt.topic_id = $1
		ORDER BY bt.relevance DESC, books.id ASC`, topicID)
}

// TopicRelations returns all stored topic relations.
func (s *Store) TopicRelations(ctx context.Context) ([]*types.TopicRelation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT topic_a_id, topic_b_id, strength, relation_type
		FROM topic_relations
		ORDER BY strength DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []*types.TopicRelation
	for rows.Next() {
		var r types.TopicRelation
		if err := rows.Scan(&r.TopicAID, &r.TopicBID, &r.Strength, &r.RelationType); err != nil {
			return nil, err
		}
		rels = append(rels, &r)
	}
	return rels, rows.Err()
}
