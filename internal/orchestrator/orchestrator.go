// Package orchestrator is the autonomous brain that keeps the library
// moving: it periodically scans for the highest-priority piece of unfinished
// work and dispatches it to the pipeline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vmishra/bookflix/internal/jobs"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/types"
)

// Intensity controls how often the orchestrator ticks.
type Intensity string

const (
	IntensityAggressive Intensity = "aggressive"
	IntensityNormal     Intensity = "normal"
	IntensityIdle       Intensity = "idle"
	IntensityPaused     Intensity = "paused"
)

// tickIntervals maps each intensity to its scan period. Paused has no
// period; the loop polls slowly so an unpause takes effect.
var tickIntervals = map[Intensity]time.Duration{
	IntensityAggressive: 60 * time.Second,
	IntensityNormal:     300 * time.Second,
	IntensityIdle:       1800 * time.Second,
}

const pausedPoll = 30 * time.Second

// ParseIntensity validates an intensity string.
func ParseIntensity(s string) (Intensity, error) {
	switch Intensity(s) {
	case IntensityAggressive, IntensityNormal, IntensityIdle, IntensityPaused:
		return Intensity(s), nil
	}
	return "", fmt.Errorf("unknown intensity %q", s)
}

// Action kinds, ordered by priority.
const (
	ActionProcessBook    = "process_book"
	ActionResume         = "resume_processing"
	ActionRefineInsights = "refine_insights"
	ActionGenerateFeed   = "generate_feed"
	ActionEnrichBook     = "enrich_book"
)

// Action is one decision of the brain.
type Action struct {
	Kind     string `json:"action"`
	BookID   int64  `json:"book_id,omitempty"`
	Pass     int    `json:"pass,omitempty"`
	Priority int    `json:"priority"`
}

// Store is the read surface the brain scans.
type Store interface {
	OldestPendingBook(ctx context.Context) (*types.Book, error)
	BooksWithStatus(ctx context.Context, statuses []types.ProcessingStatus, limit int) ([]*types.Book, error)
	CompletedBookNeedingRefinement(ctx context.Context, maxLevel int) (*types.Book, int, error)
	UnreadFeedCount(ctx context.Context) (int, error)
	CompletedBookMissingDescription(ctx context.Context) (*types.Book, error)
}

// Dispatcher starts pipeline work for a book.
type Dispatcher interface {
	ProcessBook(ctx context.Context, bookID int64) error
	Dispatch(ctx context.Context, bookID int64, stage types.Stage) error
}

// Enqueuer pushes the library-wide synthetic tasks (feed, topics).
type Enqueuer interface {
	Enqueue(ctx context.Context, task jobs.Task) error
}

// maxRefinementLevel is the deepest insight pass the brain will schedule.
const maxRefinementLevel = 3

// minUnreadFeed is the unread-feed floor below which new items are generated.
const minUnreadFeed = 5

var inflightStatuses = []types.ProcessingStatus{
	types.StatusExtracting, types.StatusChunking, types.StatusEmbedding,
}

// Brain decides the next action. It holds no state; every decision is a
// fresh scan so two ticks never disagree about priority order.
type Brain struct {
	store  Store
	logger *slog.Logger
}

func NewBrain(st Store, logger *slog.Logger) *Brain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Brain{store: st, logger: logger}
}

// NextAction scans the library in priority order and returns the first
// piece of work found, or nil when everything is caught up.
func (b *Brain) NextAction(ctx context.Context) (*Action, error) {
	// Priority 1: books that have never been processed.
	book, err := b.store.OldestPendingBook(ctx)
	switch {
	case err == nil:
		return &Action{Kind: ActionProcessBook, BookID: book.ID, Priority: 1}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("scan pending books: %w", err)
	}

	// Priority 2: books stuck mid-pipeline, oldest update first.
	stuck, err := b.store.BooksWithStatus(ctx, inflightStatuses, 1)
	if err != nil {
		return nil, fmt.Errorf("scan stuck books: %w", err)
	}
	if len(stuck) > 0 {
		return &Action{Kind: ActionResume, BookID: stuck[0].ID, Priority: 2}, nil
	}

	// Priority 3: completed books whose insights are still shallow. The
	// next pass goes one level deeper than the deepest already stored.
	book, level, err := b.store.CompletedBookNeedingRefinement(ctx, maxRefinementLevel)
	switch {
	case err == nil:
		return &Action{Kind: ActionRefineInsights, BookID: book.ID, Pass: level + 1, Priority: 3}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("scan shallow insights: %w", err)
	}

	// Priority 4: the feed is running dry.
	unread, err := b.store.UnreadFeedCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count unread feed: %w", err)
	}
	if unread < minUnreadFeed {
		return &Action{Kind: ActionGenerateFeed, Priority: 4}, nil
	}

	// Priority 5: completed books with no description.
	book, err = b.store.CompletedBookMissingDescription(ctx)
	switch {
	case err == nil:
		return &Action{Kind: ActionEnrichBook, BookID: book.ID, Priority: 5}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("scan enrichment gaps: %w", err)
	}

	return nil, nil
}

// Orchestrator runs the tick loop and the calendar schedules.
type Orchestrator struct {
	brain      *Brain
	dispatcher Dispatcher
	queue      Enqueuer
	logger     *slog.Logger

	mu           sync.RWMutex
	intensity    Intensity
	tickOverride time.Duration
	lastAction   *Action
	lastTick     time.Time
}

// New creates an Orchestrator. tickOverride, when positive, replaces the
// intensity-derived interval.
func New(brain *Brain, dispatcher Dispatcher, queue Enqueuer, intensity Intensity, tickOverride time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		brain:        brain,
		dispatcher:   dispatcher,
		queue:        queue,
		intensity:    intensity,
		tickOverride: tickOverride,
		logger:       logger,
	}
}

// SetIntensity changes the scan cadence at runtime.
func (o *Orchestrator) SetIntensity(intensity Intensity) {
	o.mu.Lock()
	o.intensity = intensity
	o.mu.Unlock()
	o.logger.Info("orchestrator intensity changed", "intensity", intensity)
}

// Intensity returns the current intensity.
func (o *Orchestrator) Intensity() Intensity {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.intensity
}

// interval returns the current wait between ticks.
func (o *Orchestrator) interval() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.intensity == IntensityPaused {
		return pausedPoll
	}
	if o.tickOverride > 0 {
		return o.tickOverride
	}
	return tickIntervals[o.intensity]
}

// Status is the introspection payload for the API.
type Status struct {
	Intensity    Intensity  `json:"intensity"`
	TickInterval float64    `json:"tick_interval_seconds"`
	LastTick     *time.Time `json:"last_tick,omitempty"`
	LastAction   *Action    `json:"last_action,omitempty"`
}

// Status reports the current loop state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := Status{Intensity: o.intensity}
	if o.intensity != IntensityPaused {
		if o.tickOverride > 0 {
			st.TickInterval = o.tickOverride.Seconds()
		} else {
			st.TickInterval = tickIntervals[o.intensity].Seconds()
		}
	}
	if !o.lastTick.IsZero() {
		t := o.lastTick
		st.LastTick = &t
	}
	st.LastAction = o.lastAction
	return st
}

// Tick runs one scan-and-dispatch cycle. It is safe to call concurrently
// with the background loop (the manual trigger endpoint does).
func (o *Orchestrator) Tick(ctx context.Context) (*Action, error) {
	if o.Intensity() == IntensityPaused {
		return nil, nil
	}

	action, err := o.brain.NextAction(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.lastTick = time.Now()
	o.lastAction = action
	o.mu.Unlock()

	if action == nil {
		o.logger.Debug("orchestrator idle, nothing to do")
		return nil, nil
	}

	o.logger.Info("orchestrator action",
		"action", action.Kind, "book_id", action.BookID, "priority", action.Priority)

	switch action.Kind {
	case ActionProcessBook:
		err = o.dispatcher.ProcessBook(ctx, action.BookID)
	case ActionResume:
		err = o.dispatcher.Dispatch(ctx, action.BookID, types.StageExtract)
	case ActionRefineInsights:
		err = o.dispatcher.Dispatch(ctx, action.BookID, types.InsightsStage(action.Pass))
	case ActionGenerateFeed:
		err = o.queue.Enqueue(ctx, jobs.Task{Stage: jobs.StageFeed})
	case ActionEnrichBook:
		err = o.dispatcher.Dispatch(ctx, action.BookID, types.StageEnrichment)
	}
	if err != nil {
		return action, fmt.Errorf("dispatch %s: %w", action.Kind, err)
	}
	return action, nil
}

// Run drives the tick loop and the two calendar schedules until ctx is
// cancelled: a feed refresh every morning and a topic rebuild every week.
func (o *Orchestrator) Run(ctx context.Context) {
	tick := time.NewTimer(o.interval())
	defer tick.Stop()

	now := time.Now()
	feed := time.NewTimer(time.Until(nextDailyFeed(now)))
	defer feed.Stop()
	topics := time.NewTimer(time.Until(nextTopicRebuild(now)))
	defer topics.Stop()

	o.logger.Info("orchestrator started", "intensity", o.Intensity(), "interval", o.interval())

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return

		case <-tick.C:
			if _, err := o.Tick(ctx); err != nil && ctx.Err() == nil {
				o.logger.Error("orchestrator tick failed", "error", err)
			}
			tick.Reset(o.interval())

		case <-feed.C:
			if err := o.queue.Enqueue(ctx, jobs.Task{Stage: jobs.StageFeed}); err != nil && ctx.Err() == nil {
				o.logger.Error("daily feed enqueue failed", "error", err)
			}
			feed.Reset(time.Until(nextDailyFeed(time.Now())))

		case <-topics.C:
			if err := o.queue.Enqueue(ctx, jobs.Task{Stage: types.StageTopic}); err != nil && ctx.Err() == nil {
				o.logger.Error("topic rebuild enqueue failed", "error", err)
			}
			topics.Reset(time.Until(nextTopicRebuild(time.Now())))
		}
	}
}

// nextDailyFeed returns the next 08:00 local time after now.
func nextDailyFeed(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextTopicRebuild returns the next Sunday 03:00 local time after now.
func nextTopicRebuild(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
	for next.Weekday() != time.Sunday || !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
