package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterWaitConsumesToken(t *testing.T) {
	rl := NewRateLimiter(60)

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait() with full bucket took %v, want immediate", elapsed)
	}

	rl.mu.Lock()
	got := rl.tokens
	rl.mu.Unlock()
	if got >= 60 {
		t.Errorf("tokens after Wait = %v, want < 60", got)
	}
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(60)
	rl.mu.Lock()
	rl.tokens = 0
	rl.lastUpdate = time.Now()
	rl.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	if err == nil {
		t.Fatal("Wait() with empty bucket and expired context returned nil")
	}
	if err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestRateLimiterRecord429DrainsBucket(t *testing.T) {
	rl := NewRateLimiter(60)

	rl.Record429(2 * time.Second)

	rl.mu.Lock()
	got := rl.tokens
	rl.mu.Unlock()
	if got != 0 {
		t.Errorf("tokens after Record429 = %v, want 0", got)
	}
}

func TestRateLimiterRecord429WithoutHint(t *testing.T) {
	rl := NewRateLimiter(60)

	rl.Record429(0)

	rl.mu.Lock()
	got := rl.tokens
	rl.mu.Unlock()
	if got != 60 {
		t.Errorf("tokens after hint-less Record429 = %v, want 60", got)
	}
}
