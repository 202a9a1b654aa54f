// Package types holds the domain records shared across the pipeline,
// retrieval, and HTTP layers.
package types

import (
	"encoding/json"
	"time"
)

// ProcessingStatus tracks a book through the pipeline.
type ProcessingStatus string

const (
	StatusPending            ProcessingStatus = "pending"
	StatusExtracting         ProcessingStatus = "extracting"
	StatusChunking           ProcessingStatus = "chunking"
	StatusEmbedding          ProcessingStatus = "embedding"
	StatusGeneratingInsights ProcessingStatus = "generating_insights"
	StatusCompleted          ProcessingStatus = "completed"
	StatusFailed             ProcessingStatus = "failed"
)

// Stage identifies one node in the per-book processing graph.
type Stage string

const (
	StageExtract       Stage = "extract"
	StageChunk         Stage = "chunk"
	StageEmbed         Stage = "embed"
	StageInsightsPass1 Stage = "insights_pass_1"
	StageInsightsPass2 Stage = "insights_pass_2"
	StageInsightsPass3 Stage = "insights_pass_3"
	StageEnrichment    Stage = "enrichment"
	StageTopic         Stage = "topic"
)

// InsightsStage returns the insights stage for a refinement pass (1-3).
func InsightsStage(pass int) Stage {
	switch pass {
	case 2:
		return StageInsightsPass2
	case 3:
		return StageInsightsPass3
	default:
		return StageInsightsPass1
	}
}

// PipelineStages is the initial job set created at import, in execution order.
var PipelineStages = []Stage{StageExtract, StageChunk, StageEmbed, StageInsightsPass1, StageEnrichment}

// JobStatus is the lifecycle of a ProcessingJob row.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
)

// InsightType classifies a BookInsight.
type InsightType string

const (
	InsightKeyConcept InsightType = "key_concept"
	InsightFramework  InsightType = "framework"
	InsightTakeaway   InsightType = "takeaway"
	InsightArgument   InsightType = "argument"
	InsightQuote      InsightType = "quote"
	InsightDefinition InsightType = "definition"
)

// FileType is a supported book file format.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeEPUB FileType = "epub"
)

// Book is one imported book, unique by file hash.
type Book struct {
	ID                 int64            `json:"id"`
	Title              string           `json:"title"`
	Author             string           `json:"author,omitempty"`
	ISBN               string           `json:"isbn,omitempty"`
	Description        string           `json:"description,omitempty"`
	Publisher          string           `json:"publisher,omitempty"`
	PublishedDate      string           `json:"published_date,omitempty"`
	Language           string           `json:"language"`
	PageCount          int              `json:"page_count"`
	FileHash           string           `json:"file_hash"`
	CoverPath          string           `json:"cover_path,omitempty"`
	ProcessingStatus   ProcessingStatus `json:"processing_status"`
	ProcessingProgress float64          `json:"processing_progress"`
	Rating             float64          `json:"rating,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// BookFile is the on-disk file backing a book.
type BookFile struct {
	ID       int64    `json:"id"`
	BookID   int64    `json:"book_id"`
	FilePath string   `json:"file_path"`
	FileType FileType `json:"file_type"`
	FileSize int64    `json:"file_size"`
}

// BookChunk is the unit of retrieval and embedding. ChunkIndex is dense and
// 0-based within a book. Embedding is nil until the embed stage runs.
type BookChunk struct {
	ID         int64     `json:"id"`
	BookID     int64     `json:"book_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	PageNumber int       `json:"page_number,omitempty"`
	Chapter    string    `json:"chapter,omitempty"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
}

// BookInsight is one AI-mined insight.
type BookInsight struct {
	ID              int64       `json:"id"`
	BookID          int64       `json:"book_id"`
	InsightType     InsightType `json:"insight_type"`
	Title           string      `json:"title"`
	Content         string      `json:"content"`
	SupportingQuote string      `json:"supporting_quote,omitempty"`
	Importance      int         `json:"importance"`
	RefinementLevel int         `json:"refinement_level"`
	Embedding       []float32   `json:"-"`
	CreatedAt       time.Time   `json:"created_at"`
}

// InsightConnection links two insights; InsightAID < InsightBID.
type InsightConnection struct {
	ID             int64   `json:"id"`
	InsightAID     int64   `json:"insight_a_id"`
	InsightBID     int64   `json:"insight_b_id"`
	ConnectionType string  `json:"connection_type"`
	Strength       float64 `json:"strength"`
	Description    string  `json:"description,omitempty"`
}

// Topic is a cluster of books in embedding space.
type Topic struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Embedding   []float32 `json:"-"`
	BookCount   int       `json:"book_count"`
	Color       string    `json:"color"`
}

// BookTopic associates a book with a topic.
type BookTopic struct {
	BookID    int64   `json:"book_id"`
	TopicID   int64   `json:"topic_id"`
	Relevance float64 `json:"relevance"`
}

// TopicRelation links two related topics.
type TopicRelation struct {
	TopicAID     int64   `json:"topic_a_id"`
	TopicBID     int64   `json:"topic_b_id"`
	Strength     float64 `json:"strength"`
	RelationType string  `json:"relation_type"`
}

// ProcessingJob is the durable job row for one (book, stage) pair.
type ProcessingJob struct {
	ID             int64      `json:"id"`
	BookID         int64      `json:"book_id"`
	Stage          Stage      `json:"stage"`
	Status         JobStatus  `json:"status"`
	Attempts       int        `json:"retry_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ExternalTaskID string     `json:"external_task_id,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FeedItem is one entry of the AI-generated feed.
type FeedItem struct {
	ID        int64           `json:"id"`
	ItemType  string          `json:"item_type"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	BookIDs   []int64         `json:"book_ids,omitempty"`
	InsightID int64           `json:"insight_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	IsRead    bool            `json:"is_read"`
	IsPinned  bool            `json:"is_pinned"`
	CreatedAt time.Time       `json:"created_at"`
}

// FeedItem types.
const (
	FeedTIL            = "til"
	FeedConnection     = "connection"
	FeedQuote          = "quote"
	FeedConcept        = "concept"
	FeedRecommendation = "recommendation"
	FeedMilestone      = "milestone"
	FeedDailyDigest    = "daily_digest"
)

// ChatSession groups chat messages, optionally scoped to books.
type ChatSession struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	BookIDs   []int64   `json:"book_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceChunk is one retrieval attribution on an assistant message.
type SourceChunk struct {
	ChunkID    int64  `json:"chunk_id"`
	BookTitle  string `json:"book_title,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
	Snippet    string `json:"snippet"`
}

// ChatMessage is one turn of a chat session.
type ChatMessage struct {
	ID           int64         `json:"id"`
	SessionID    int64         `json:"session_id"`
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	SourceChunks []SourceChunk `json:"source_chunks,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ReadingProgress tracks position in a book, one row per book.
type ReadingProgress struct {
	BookID          int64      `json:"book_id"`
	CurrentPage     int        `json:"current_page"`
	TotalPages      int        `json:"total_pages"`
	ProgressPercent float64    `json:"progress_percent"`
	EpubCFI         string     `json:"epub_cfi,omitempty"`
	Status          string     `json:"status"`
	TotalReadTime   int        `json:"total_read_time"`
	LastReadAt      *time.Time `json:"last_read_at,omitempty"`
}

// ReadingSession is one timed reading sitting.
type ReadingSession struct {
	ID        int64      `json:"id"`
	BookID    int64      `json:"book_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Duration  int        `json:"duration"`
	PagesRead int        `json:"pages_read"`
}

// ExternalMetadata is the raw payload from an external metadata source.
type ExternalMetadata struct {
	ID        int64           `json:"id"`
	BookID    int64           `json:"book_id"`
	Source    string          `json:"source"`
	Raw       json.RawMessage `json:"raw"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// LearningPath is an ordered sequence of books toward a goal.
type LearningPath struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LearningPathBook places a book at a position on a path.
type LearningPathBook struct {
	PathID    int64  `json:"path_id"`
	BookID    int64  `json:"book_id"`
	Position  int    `json:"position"`
	Rationale string `json:"rationale,omitempty"`
}
