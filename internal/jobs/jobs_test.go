package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vmishra/bookflix/internal/types"
)

func TestQueueForStage(t *testing.T) {
	tests := []struct {
		stage types.Stage
		want  string
	}{
		{types.StageExtract, QueueProcessing},
		{types.StageChunk, QueueProcessing},
		{types.StageEmbed, QueueEmbedding},
		{types.StageInsightsPass1, QueueLLM},
		{types.StageInsightsPass3, QueueLLM},
		{types.StageEnrichment, QueueLLM},
		{StageFeed, QueueLLM},
		{types.StageTopic, QueueLLM},
	}
	for _, tt := range tests {
		if got := QueueForStage(tt.stage); got != tt.want {
			t.Errorf("QueueForStage(%s) = %s, want %s", tt.stage, got, tt.want)
		}
	}
}

func TestMemoryBrokerFIFO(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if err := b.Push(ctx, QueueProcessing, Task{Stage: types.StageExtract, BookID: i}); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}

	n, err := b.Len(ctx, QueueProcessing)
	if err != nil || n != 3 {
		t.Fatalf("len = %d (err %v), want 3", n, err)
	}

	for i := int64(1); i <= 3; i++ {
		task, ok, err := b.Pop(ctx, QueueProcessing, time.Second)
		if err != nil || !ok {
			t.Fatalf("pop failed: ok=%v err=%v", ok, err)
		}
		if task.BookID != i {
			t.Errorf("popped book %d, want %d", task.BookID, i)
		}
	}

	_, ok, err := b.Pop(ctx, QueueProcessing, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("empty pop errored: %v", err)
	}
	if ok {
		t.Error("popped from empty queue")
	}
}

func TestMemoryBrokerQueuesIsolated(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	if err := b.Push(ctx, QueueEmbedding, Task{Stage: types.StageEmbed, BookID: 7}); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	_, ok, err := b.Pop(ctx, QueueLLM, 10*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("llm queue should be empty: ok=%v err=%v", ok, err)
	}

	task, ok, err := b.Pop(ctx, QueueEmbedding, time.Second)
	if err != nil || !ok {
		t.Fatalf("embedding pop failed: ok=%v err=%v", ok, err)
	}
	if task.BookID != 7 {
		t.Errorf("book = %d, want 7", task.BookID)
	}
}

func TestPoolDispatchesByStage(t *testing.T) {
	b := NewMemoryBroker()
	pool := NewPool(b, nil, nil)

	var extracts, embeds atomic.Int64
	done := make(chan struct{}, 4)
	pool.Handle(types.StageExtract, func(ctx context.Context, task Task) error {
		extracts.Add(1)
		done <- struct{}{}
		return nil
	})
	pool.Handle(types.StageEmbed, func(ctx context.Context, task Task) error {
		embeds.Add(1)
		done <- struct{}{}
		return nil
	})

	ctx := context.Background()
	pool.Start(ctx)
	defer pool.Stop()

	if err := pool.Enqueue(ctx, Task{Stage: types.StageExtract, BookID: 1}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := pool.Enqueue(ctx, Task{Stage: types.StageEmbed, BookID: 1}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}
	if extracts.Load() != 1 || embeds.Load() != 1 {
		t.Errorf("extracts=%d embeds=%d, want 1 and 1", extracts.Load(), embeds.Load())
	}
}

func TestPoolConcurrencyBound(t *testing.T) {
	b := NewMemoryBroker()
	pool := NewPool(b, map[string]int{
		QueueProcessing: 2,
		QueueEmbedding:  0,
		QueueLLM:        0,
	}, nil)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	release := make(chan struct{})
	done := make(chan struct{}, 8)

	pool.Handle(types.StageExtract, func(ctx context.Context, task Task) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		<-release

		mu.Lock()
		inFlight--
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ctx := context.Background()
	pool.Start(ctx)
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		if err := pool.Enqueue(ctx, Task{Stage: types.StageExtract, BookID: int64(i)}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	// Let workers pick up work, then release everything.
	time.Sleep(100 * time.Millisecond)
	close(release)

	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	if maxInFlight > 2 {
		t.Errorf("max in-flight = %d, want <= 2", maxInFlight)
	}
}

func TestPoolHandlerErrorDoesNotStopWorker(t *testing.T) {
	b := NewMemoryBroker()
	pool := NewPool(b, nil, nil)

	calls := make(chan int64, 2)
	pool.Handle(types.StageChunk, func(ctx context.Context, task Task) error {
		calls <- task.BookID
		if task.BookID == 1 {
			return context.DeadlineExceeded
		}
		return nil
	})

	ctx := context.Background()
	pool.Start(ctx)
	defer pool.Stop()

	if err := pool.Enqueue(ctx, Task{Stage: types.StageChunk, BookID: 1}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := pool.Enqueue(ctx, Task{Stage: types.StageChunk, BookID: 2}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatal("worker stopped after handler error")
		}
	}
}
