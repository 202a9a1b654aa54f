// Package pipeline runs the per-book processing graph: extract, chunk,
// embed, generate insights, enrich. Each stage claims its durable job row
// before doing work, so a stage delivered twice runs once.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vmishra/bookflix/internal/chunker"
	"github.com/vmishra/bookflix/internal/extract"
	"github.com/vmishra/bookflix/internal/jobs"
	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
	"github.com/vmishra/bookflix/internal/ws"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetBook(ctx context.Context, id int64) (*types.Book, error)
	BookFile(ctx context.Context, bookID int64) (*types.BookFile, error)
	SetBookStatus(ctx context.Context, id int64, status types.ProcessingStatus, progress float64) error
	SetBookProgress(ctx context.Context, id int64, progress float64) error
	ApplyExtract(ctx context.Context, id int64, u store.ExtractUpdate) error

	EnqueueJob(ctx context.Context, bookID int64, stage types.Stage) (*types.ProcessingJob, error)
	ClaimJob(ctx context.Context, bookID int64, stage types.Stage, externalTaskID string) (*types.ProcessingJob, bool, error)
	MarkJob(ctx context.Context, jobID int64, status types.JobStatus, errMsg string) error

	ReplaceChunks(ctx context.Context, bookID int64, chunks []types.BookChunk) error
	ChunksWithoutEmbedding(ctx context.Context, bookID int64) ([]types.BookChunk, error)
	SetChunkEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error
	FirstChunks(ctx context.Context, bookID int64, n int) ([]types.BookChunk, error)

	InsertInsights(ctx context.Context, insights []*types.BookInsight) error

	UpsertExternalMetadata(ctx context.Context, bookID int64, source string, raw json.RawMessage) error
	FillBookMetadata(ctx context.Context, bookID int64, f store.MetadataFill) error
}

// Enqueuer pushes tasks onto the work queues.
type Enqueuer interface {
	Enqueue(ctx context.Context, task jobs.Task) error
}

// Notifier fans progress events out to connected clients.
type Notifier interface {
	Broadcast(channel string, message any)
}

const embedBatchSize = 64

// Pipeline owns the stage executors.
type Pipeline struct {
	store      Store
	queue      Enqueuer
	llm        providers.LLMClient
	embedder   providers.Embedder
	models     *providers.ModelRegistry
	notifier   Notifier
	coversPath string
	booksAPI   string
	http       *http.Client
	logger     *slog.Logger
}

// New creates a Pipeline. notifier may be nil.
func New(st Store, queue Enqueuer, llm providers.LLMClient, embedder providers.Embedder, models *providers.ModelRegistry, notifier Notifier, coversPath string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      st,
		queue:      queue,
		llm:        llm,
		embedder:   embedder,
		models:     models,
		notifier:   notifier,
		coversPath: coversPath,
		booksAPI:   googleBooksAPI,
		http:       &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Register wires the stage executors into the worker pool.
func (p *Pipeline) Register(pool *jobs.Pool) {
	pool.Handle(types.StageExtract, p.handle(types.StageExtract, p.runExtract))
	pool.Handle(types.StageChunk, p.handle(types.StageChunk, p.runChunk))
	pool.Handle(types.StageEmbed, p.handle(types.StageEmbed, p.runEmbed))
	pool.Handle(types.StageInsightsPass1, p.handle(types.StageInsightsPass1, p.insightsRunner(1)))
	pool.Handle(types.StageInsightsPass2, p.handle(types.StageInsightsPass2, p.insightsRunner(2)))
	pool.Handle(types.StageInsightsPass3, p.handle(types.StageInsightsPass3, p.insightsRunner(3)))
	pool.Handle(types.StageEnrichment, p.handle(types.StageEnrichment, p.runEnrich))
}

// ProcessBook starts the full pipeline for a book.
func (p *Pipeline) ProcessBook(ctx context.Context, bookID int64) error {
	return p.Dispatch(ctx, bookID, types.StageExtract)
}

// Dispatch resets the stage's job row to pending and pushes a task for it.
// A stage already running for the book is left alone: the job row is the
// claim latch and demoting it would let a second worker in.
func (p *Pipeline) Dispatch(ctx context.Context, bookID int64, stage types.Stage) error {
	if _, err := p.store.EnqueueJob(ctx, bookID, stage); err != nil {
		if errors.Is(err, store.ErrJobRunning) {
			p.logger.Debug("stage already in flight, skipping dispatch",
				"stage", stage, "book_id", bookID)
			return nil
		}
		return fmt.Errorf("enqueue job %s for book %d: %w", stage, bookID, err)
	}
	return p.queue.Enqueue(ctx, jobs.Task{Stage: stage, BookID: bookID})
}

type stageFunc func(ctx context.Context, job *types.ProcessingJob, book *types.Book) error

// failsBook lists the stages whose failure marks the whole book failed.
// Later stages leave the book in its in-flight status so the orchestrator
// can retry them.
var failsBook = map[types.Stage]bool{
	types.StageExtract: true,
	types.StageChunk:   true,
}

// handle wraps a stage executor in the shared envelope: load the book,
// claim the job row, run, and record failure. Errors never propagate to
// the worker pool; the durable job row is the retry mechanism.
func (p *Pipeline) handle(stage types.Stage, fn stageFunc) jobs.Handler {
	return func(ctx context.Context, task jobs.Task) error {
		log := p.logger.With("stage", stage, "book_id", task.BookID)

		book, err := p.store.GetBook(ctx, task.BookID)
		if err != nil {
			log.Warn("book not found, dropping task", "error", err)
			return nil
		}

		job, claimed, err := p.store.ClaimJob(ctx, task.BookID, stage, uuid.NewString())
		if err != nil {
			log.Error("claim failed", "error", err)
			return nil
		}
		if !claimed {
			log.Debug("job not claimable, dropping task", "status", job.Status)
			return nil
		}

		if err := fn(ctx, job, book); err != nil {
			log.Error("stage failed", "error", err)
			if mErr := p.store.MarkJob(ctx, job.ID, types.JobFailed, err.Error()); mErr != nil {
				log.Error("mark job failed", "error", mErr)
			}
			if failsBook[stage] {
				if sErr := p.store.SetBookStatus(ctx, book.ID, types.StatusFailed, book.ProcessingProgress); sErr != nil {
					log.Error("set book status failed", "error", sErr)
				}
				p.notify(book.ID, stage, book.ProcessingProgress)
			}
		}
		return nil
	}
}

func (p *Pipeline) notify(bookID int64, stage types.Stage, progress float64) {
	if p.notifier == nil {
		return
	}
	p.notifier.Broadcast(ws.ChannelProcessing, ws.ProgressEvent{
		Type:     "progress",
		BookID:   bookID,
		Stage:    string(stage),
		Progress: progress,
	})
}

// setStatus updates the book row and mirrors the change to subscribers.
func (p *Pipeline) setStatus(ctx context.Context, bookID int64, status types.ProcessingStatus, progress float64, stage types.Stage) error {
	if err := p.store.SetBookStatus(ctx, bookID, status, progress); err != nil {
		return err
	}
	p.notify(bookID, stage, progress)
	return nil
}

// titleOverride reports whether the extracted title should replace the
// current one. The replacement happens only while the row still carries
// the filename-derived placeholder; a user-edited title sticks.
func titleOverride(current, parsed, extracted string) bool {
	return extracted != "" && (current == "" || current == parsed)
}

func (p *Pipeline) runExtract(ctx context.Context, job *types.ProcessingJob, book *types.Book) error {
	if err := p.setStatus(ctx, book.ID, types.StatusExtracting, 5, types.StageExtract); err != nil {
		return err
	}

	file, err := p.store.BookFile(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("no file for book %d: %w", book.ID, err)
	}

	result, err := extract.File(file.FilePath, file.FileType)
	if err != nil {
		return fmt.Errorf("extract %s: %w", file.FilePath, err)
	}

	update := store.ExtractUpdate{PageCount: result.TotalPages}

	parsedTitle, _ := extract.ParseFilename(file.FilePath)
	if titleOverride(book.Title, parsedTitle, result.Title) {
		update.Title = result.Title
		book.Title = result.Title
	}
	if result.Author != "" && book.Author == "" {
		update.Author = result.Author
		book.Author = result.Author
	}

	if len(result.CoverImage) > 0 {
		resized, rErr := extract.ResizeCover(result.CoverImage)
		if rErr != nil {
			p.logger.Warn("cover resize failed", "book_id", book.ID, "error", rErr)
		} else if coverPath, sErr := extract.SaveCover(p.coversPath, book.ID, resized); sErr != nil {
			p.logger.Warn("cover save failed", "book_id", book.ID, "error", sErr)
		} else {
			update.CoverPath = coverPath
		}
	}

	preview := extract.BodyPreview(result.Pages, 5000)
	searchText := fmt.Sprintf("%s %s %s", book.Title, book.Author, preview)
	update.SearchText = extract.Truncate(searchText, 5000)

	if err := p.store.ApplyExtract(ctx, book.ID, update); err != nil {
		return fmt.Errorf("apply extract: %w", err)
	}
	if err := p.store.MarkJob(ctx, job.ID, types.JobCompleted, ""); err != nil {
		return err
	}
	p.notify(book.ID, types.StageExtract, 20)
	return p.Dispatch(ctx, book.ID, types.StageChunk)
}

func (p *Pipeline) runChunk(ctx context.Context, job *types.ProcessingJob, book *types.Book) error {
	if err := p.setStatus(ctx, book.ID, types.StatusChunking, 25, types.StageChunk); err != nil {
		return err
	}

	file, err := p.store.BookFile(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("no file for book %d: %w", book.ID, err)
	}

	result, err := extract.File(file.FilePath, file.FileType)
	if err != nil {
		return fmt.Errorf("extract %s: %w", file.FilePath, err)
	}

	pages := make([]chunker.Page, len(result.Pages))
	for i, pg := range result.Pages {
		pages[i] = chunker.Page{Text: pg.Text, PageNumber: pg.PageNumber, Chapter: pg.Chapter}
	}

	c := chunker.New(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	pieces := c.ChunkPages(pages)

	rows := make([]types.BookChunk, len(pieces))
	for i, ch := range pieces {
		rows[i] = types.BookChunk{
			BookID:     book.ID,
			ChunkIndex: ch.ChunkIndex,
			Content:    ch.Text,
			PageNumber: ch.PageNumber,
			Chapter:    ch.Chapter,
			TokenCount: ch.TokenCount,
		}
	}

	if err := p.store.ReplaceChunks(ctx, book.ID, rows); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	if err := p.store.MarkJob(ctx, job.ID, types.JobCompleted, ""); err != nil {
		return err
	}
	p.notify(book.ID, types.StageChunk, 40)
	return p.Dispatch(ctx, book.ID, types.StageEmbed)
}

func (p *Pipeline) runEmbed(ctx context.Context, job *types.ProcessingJob, book *types.Book) error {
	if err := p.setStatus(ctx, book.ID, types.StatusEmbedding, 40, types.StageEmbed); err != nil {
		return err
	}

	chunks, err := p.store.ChunksWithoutEmbedding(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		if err := p.store.MarkJob(ctx, job.ID, types.JobCompleted, ""); err != nil {
			return err
		}
		return p.Dispatch(ctx, book.ID, types.StageInsightsPass1)
	}

	done := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		ids := make([]int64, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
			ids[i] = ch.ID
		}

		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if err := p.store.SetChunkEmbeddings(ctx, ids, vectors); err != nil {
			return fmt.Errorf("store embeddings at %d: %w", start, err)
		}

		done += len(batch)
		progress := float64(done) / float64(len(chunks)) * 100
		if err := p.store.SetBookProgress(ctx, book.ID, progress); err != nil {
			return err
		}
		p.notify(book.ID, types.StageEmbed, progress)
	}

	if err := p.store.MarkJob(ctx, job.ID, types.JobCompleted, ""); err != nil {
		return err
	}
	return p.Dispatch(ctx, book.ID, types.StageInsightsPass1)
}
