package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vmishra/bookflix/internal/types"
)

// Handler processes one task. A returned error is logged; redelivery is
// the orchestrator's job via the durable job row, not the queue's.
type Handler func(ctx context.Context, task Task) error

// Pool drains the named queues with a fixed number of workers per queue.
type Pool struct {
	broker      Broker
	concurrency map[string]int
	popTimeout  time.Duration
	logger      *slog.Logger

	mu       sync.RWMutex
	handlers map[types.Stage]Handler

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a pool over the broker. A nil concurrency map uses
// DefaultConcurrency.
func NewPool(broker Broker, concurrency map[string]int, logger *slog.Logger) *Pool {
	if concurrency == nil {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		broker:      broker,
		concurrency: concurrency,
		popTimeout:  time.Second,
		handlers:    make(map[types.Stage]Handler),
		logger:      logger.With("component", "jobs"),
	}
}

// Handle registers the handler for a stage. Must be called before Start.
func (p *Pool) Handle(stage types.Stage, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[stage] = h
}

// Enqueue routes a task to its stage's queue.
func (p *Pool) Enqueue(ctx context.Context, task Task) error {
	queue := QueueForStage(task.Stage)
	if err := p.broker.Push(ctx, queue, task); err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", task.Stage, err)
	}
	p.logger.Debug("task enqueued", "stage", task.Stage, "book_id", task.BookID, "queue", queue)
	return nil
}

// Start launches the workers. They run until ctx is cancelled or Stop is
// called.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, queue := range Queues {
		n := p.concurrency[queue]
		for i := 0; i < n; i++ {
			p.wg.Add(1)
			go p.worker(ctx, queue, i)
		}
		p.logger.Info("queue workers started", "queue", queue, "workers", n)
	}
}

// Stop cancels the workers and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, queue string, id int) {
	defer p.wg.Done()
	log := p.logger.With("queue", queue, "worker", id)

	for {
		if err := ctx.Err(); err != nil {
			return
		}

		task, ok, err := p.broker.Pop(ctx, queue, p.popTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
				return
			}
			log.Error("failed to pop task", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}

		p.mu.RLock()
		handler := p.handlers[task.Stage]
		p.mu.RUnlock()
		if handler == nil {
			log.Warn("no handler for stage", "stage", task.Stage)
			continue
		}

		start := time.Now()
		if err := handler(ctx, task); err != nil {
			log.Error("task failed", "stage", task.Stage, "book_id", task.BookID,
				"duration", time.Since(start), "error", err)
			continue
		}
		log.Debug("task done", "stage", task.Stage, "book_id", task.BookID,
			"duration", time.Since(start))
	}
}
