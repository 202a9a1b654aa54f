// Package topics clusters the library into themes by running k-means over
// per-book mean chunk embeddings. Rebuilds replace the whole model.
package topics

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/vmishra/bookflix/internal/jobs"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
)

// ErrNotEnoughBooks means the library is too small to cluster.
var ErrNotEnoughBooks = errors.New("not enough embedded books for topic modeling")

const (
	minBooks = 3
	maxK     = 8

	// assignmentRelevance is the flat relevance written for every
	// book-topic membership.
	assignmentRelevance = 0.8

	// relationThreshold is the centroid cosine similarity above which two
	// topics are recorded as related.
	relationThreshold = 0.3
)

// Store is the persistence surface the builder needs.
type Store interface {
	BookMeanEmbeddings(ctx context.Context) ([]store.BookEmbedding, error)
	ReplaceTopics(ctx context.Context, topics []store.TopicWrite, relations []types.TopicRelation) error
}

// Builder rebuilds the topic model.
type Builder struct {
	store  Store
	logger *slog.Logger
}

func NewBuilder(st Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: st, logger: logger.With("component", "topics")}
}

// Register wires the builder into the worker pool.
func (b *Builder) Register(pool *jobs.Pool) {
	pool.Handle(types.StageTopic, func(ctx context.Context, _ jobs.Task) error {
		n, err := b.Rebuild(ctx)
		if err != nil {
			b.logger.Error("topic rebuild failed", "error", err)
			return nil
		}
		b.logger.Info("topics rebuilt", "topics", n)
		return nil
	})
}

// clusterK picks the cluster count for n books.
func clusterK(n int) int {
	k := n / 5
	if k < 2 {
		k = 2
	}
	if k > maxK {
		k = maxK
	}
	return k
}

// topicColor derives a stable display color from the topic name.
func topicColor(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("#%06x", h.Sum32()%0xFFFFFF)
}

// bookPoint is one observation carrying its book id through clustering.
type bookPoint struct {
	bookID int64
	coords clusters.Coordinates
}

func (p bookPoint) Coordinates() clusters.Coordinates { return p.coords }

func (p bookPoint) Distance(point clusters.Coordinates) float64 {
	return p.coords.Distance(point)
}

// Rebuild replaces the topic model from scratch and returns how many
// topics were created.
func (b *Builder) Rebuild(ctx context.Context) (int, error) {
	embeddings, err := b.store.BookMeanEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("load book embeddings: %w", err)
	}
	if len(embeddings) < minBooks {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughBooks, len(embeddings), minBooks)
	}

	observations := make(clusters.Observations, len(embeddings))
	for i, be := range embeddings {
		coords := make(clusters.Coordinates, len(be.Embedding))
		for j, v := range be.Embedding {
			coords[j] = float64(v)
		}
		observations[i] = bookPoint{bookID: be.BookID, coords: coords}
	}

	km := kmeans.New()
	partitioned, err := km.Partition(observations, clusterK(len(embeddings)))
	if err != nil {
		return 0, fmt.Errorf("cluster: %w", err)
	}

	var writes []store.TopicWrite
	var centers [][]float64
	for _, cluster := range partitioned {
		if len(cluster.Observations) == 0 {
			continue
		}

		name := fmt.Sprintf("Topic %d", len(writes)+1)
		center := make([]float32, len(cluster.Center))
		center64 := make([]float64, len(cluster.Center))
		for j, v := range cluster.Center {
			center[j] = float32(v)
			center64[j] = v
		}

		write := store.TopicWrite{
			Topic: types.Topic{
				Name:      name,
				Embedding: center,
				BookCount: len(cluster.Observations),
				Color:     topicColor(name),
			},
		}
		for _, obs := range cluster.Observations {
			write.Assignments = append(write.Assignments, store.TopicAssignment{
				BookID:    obs.(bookPoint).bookID,
				Relevance: assignmentRelevance,
			})
		}
		writes = append(writes, write)
		centers = append(centers, center64)
	}

	// Relations reference the topics by slice index; the store maps them
	// to row ids on write.
	var relations []types.TopicRelation
	for i := range centers {
		for j := i + 1; j < len(centers); j++ {
			sim := cosine(centers[i], centers[j])
			if sim > relationThreshold {
				relations = append(relations, types.TopicRelation{
					TopicAID:     int64(i),
					TopicBID:     int64(j),
					Strength:     sim,
					RelationType: "related",
				})
			}
		}
	}

	if err := b.store.ReplaceTopics(ctx, writes, relations); err != nil {
		return 0, fmt.Errorf("replace topics: %w", err)
	}
	return len(writes), nil
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + 1e-8)
}
