package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/vmishra/bookflix/internal/types"
)

// testStore connects to the database named by BOOKFLIX_TEST_DATABASE_URL,
// skipping the test when it is unset.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("BOOKFLIX_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BOOKFLIX_TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.Migrate(ctx, 8); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return s
}

func testBook(t *testing.T, s *Store) *types.Book {
	t.Helper()
	b, err := s.CreateBook(context.Background(), &types.Book{
		Title:    "Test Book",
		FileHash: fmt.Sprintf("hash-%d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("failed to create book: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteBook(context.Background(), b.ID)
	})
	return b
}

func TestJobClaimLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	book := testBook(t, s)

	job, err := s.EnqueueJob(ctx, book.ID, types.StageExtract)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if job.Status != types.JobPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}

	claimed, ok, err := s.ClaimJob(ctx, book.ID, types.StageExtract, "task-1")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first claim to succeed")
	}
	if claimed.Status != types.JobRunning {
		t.Errorf("status = %s, want running", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", claimed.Attempts)
	}
	if claimed.StartedAt == nil {
		t.Error("started_at not stamped")
	}

	// A second claim on a running job must not succeed.
	_, ok, err = s.ClaimJob(ctx, book.ID, types.StageExtract, "task-2")
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if ok {
		t.Error("claimed a running job")
	}

	if err := s.MarkJob(ctx, claimed.ID, types.JobFailed, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	// Failed jobs are claimable again and bump attempts.
	reclaimed, ok, err := s.ClaimJob(ctx, book.ID, types.StageExtract, "task-3")
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if !ok {
		t.Fatal("expected reclaim of failed job")
	}
	if reclaimed.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", reclaimed.Attempts)
	}

	if err := s.MarkJob(ctx, reclaimed.ID, types.JobCompleted, ""); err != nil {
		t.Fatalf("mark completed failed: %v", err)
	}
	jobs, err := s.JobsForBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("jobs for book failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].CompletedAt == nil {
		t.Error("completed_at not stamped on terminal status")
	}
}

func TestEnqueueLeavesRunningJobAlone(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	book := testBook(t, s)

	if _, err := s.EnqueueJob(ctx, book.ID, types.StageExtract); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	claimed, ok, err := s.ClaimJob(ctx, book.ID, types.StageExtract, "task-1")
	if err != nil || !ok {
		t.Fatalf("claim failed: ok=%v err=%v", ok, err)
	}

	// Re-enqueueing a running stage must not demote the row back to
	// pending, or a second worker could claim it.
	_, err = s.EnqueueJob(ctx, book.ID, types.StageExtract)
	if !errors.Is(err, ErrJobRunning) {
		t.Fatalf("enqueue on running job: err = %v, want ErrJobRunning", err)
	}

	jobs, err := s.JobsForBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("jobs for book failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != types.JobRunning {
		t.Fatalf("job row = %+v, want single running row", jobs)
	}
	if jobs[0].Attempts != claimed.Attempts {
		t.Errorf("attempts = %d, want %d (unchanged)", jobs[0].Attempts, claimed.Attempts)
	}

	// After the worker finishes, re-enqueue works again.
	if err := s.MarkJob(ctx, claimed.ID, types.JobCompleted, ""); err != nil {
		t.Fatalf("mark completed failed: %v", err)
	}
	job, err := s.EnqueueJob(ctx, book.ID, types.StageExtract)
	if err != nil {
		t.Fatalf("enqueue after completion failed: %v", err)
	}
	if job.Status != types.JobPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
}

func TestJobClaimRace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	book := testBook(t, s)

	if _, err := s.EnqueueJob(ctx, book.ID, types.StageChunk); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, ok, err := s.ClaimJob(ctx, book.ID, types.StageChunk, fmt.Sprintf("task-%d", n))
			if err != nil {
				t.Errorf("claim errored: %v", err)
				return
			}
			wins <- ok
		}(i)
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Errorf("claims won = %d, want exactly 1", won)
	}
}

func TestPendingJobsOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := testBook(t, s)
	second := testBook(t, s)

	if _, err := s.EnqueueJob(ctx, first.ID, types.StageEmbed); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := s.EnqueueJob(ctx, second.ID, types.StageEmbed); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	jobs, err := s.PendingJobs(ctx, types.StageEmbed)
	if err != nil {
		t.Fatalf("pending jobs failed: %v", err)
	}

	var got []int64
	for _, j := range jobs {
		if j.BookID == first.ID || j.BookID == second.ID {
			got = append(got, j.BookID)
		}
	}
	if len(got) != 2 || got[0] != first.ID || got[1] != second.ID {
		t.Errorf("pending order = %v, want [%d %d]", got, first.ID, second.ID)
	}
}

func TestFillBookMetadataOnlyEmpty(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b, err := s.CreateBook(ctx, &types.Book{
		Title:       "Kept Title",
		Description: "existing description",
		FileHash:    fmt.Sprintf("hash-fill-%d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteBook(ctx, b.ID) })

	err = s.FillBookMetadata(ctx, b.ID, MetadataFill{
		Description: "replacement description",
		Publisher:   "New Publisher",
		PageCount:   321,
	})
	if err != nil {
		t.Fatalf("fill failed: %v", err)
	}

	got, err := s.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Description != "existing description" {
		t.Errorf("description overwritten: %q", got.Description)
	}
	if got.Publisher != "New Publisher" {
		t.Errorf("publisher = %q, want New Publisher", got.Publisher)
	}
	if got.PageCount != 321 {
		t.Errorf("page_count = %d, want 321", got.PageCount)
	}
}

func TestReplaceChunksIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	book := testBook(t, s)

	chunks := []types.BookChunk{
		{ChunkIndex: 0, Content: "first chunk", TokenCount: 2},
		{ChunkIndex: 1, Content: "second chunk", TokenCount: 2},
	}
	if err := s.ReplaceChunks(ctx, book.ID, chunks); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if err := s.ReplaceChunks(ctx, book.ID, chunks); err != nil {
		t.Fatalf("second replace failed: %v", err)
	}

	n, err := s.ChunkCount(ctx, book.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("chunk count = %d, want 2", n)
	}
}
