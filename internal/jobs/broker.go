package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueClosed is returned by Pop after Close.
var ErrQueueClosed = errors.New("queue closed")

// Broker moves tasks between producers and the worker pool.
type Broker interface {
	// Push appends a task to a named queue.
	Push(ctx context.Context, queue string, task Task) error

	// Pop blocks until a task is available on the queue, the timeout
	// elapses (returns ok=false), or the context is cancelled.
	Pop(ctx context.Context, queue string, timeout time.Duration) (Task, bool, error)

	// Len returns the number of tasks waiting on a queue.
	Len(ctx context.Context, queue string) (int64, error)

	Close() error
}

const redisKeyPrefix = "bookflix:queue:"

// RedisBroker implements Broker on Redis lists with LPUSH/BRPOP.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to Redis at the given URL.
func NewRedisBroker(url string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return &RedisBroker{client: redis.NewClient(opts)}, nil
}

// Ping checks connectivity.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Push(ctx context.Context, queue string, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := b.client.LPush(ctx, redisKeyPrefix+queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to push task: %w", err)
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, queue string, timeout time.Duration) (Task, bool, error) {
	res, err := b.client.BRPop(ctx, timeout, redisKeyPrefix+queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Task{}, false, nil
		}
		return Task{}, false, err
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return Task{}, false, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return Task{}, false, fmt.Errorf("failed to decode task: %w", err)
	}
	return task, true, nil
}

func (b *RedisBroker) Len(ctx context.Context, queue string) (int64, error) {
	return b.client.LLen(ctx, redisKeyPrefix+queue).Result()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// MemoryBroker is an in-process FIFO Broker for tests.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string][]Task
	wake   chan struct{}
	closed bool
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues: make(map[string][]Task),
		wake:   make(chan struct{}, 1),
	}
}

func (b *MemoryBroker) Push(ctx context.Context, queue string, task Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrQueueClosed
	}
	b.queues[queue] = append(b.queues[queue], task)
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context, queue string, timeout time.Duration) (Task, bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return Task{}, false, ErrQueueClosed
		}
		if q := b.queues[queue]; len(q) > 0 {
			task := q[0]
			b.queues[queue] = q[1:]
			b.mu.Unlock()
			return task, true, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Task{}, false, ctx.Err()
		case <-deadline.C:
			return Task{}, false, nil
		case <-b.wake:
		}
	}
}

func (b *MemoryBroker) Len(ctx context.Context, queue string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.queues[queue])), nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	close(b.wake)
	return nil
}

// Verify interfaces
var (
	_ Broker = (*RedisBroker)(nil)
	_ Broker = (*MemoryBroker)(nil)
)
