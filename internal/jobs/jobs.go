// Package jobs provides the named-queue task broker and the worker pool
// that drains it. Delivery is at-least-once: a task popped by a crashed
// worker is lost from the queue, but the durable job row lets the
// orchestrator re-dispatch it.
package jobs

import (
	"encoding/json"

	"github.com/vmishra/bookflix/internal/types"
)

// Queue names.
const (
	QueueProcessing = "processing"
	QueueEmbedding  = "embedding"
	QueueLLM        = "llm"
)

// Queues lists all queue names in a stable order.
var Queues = []string{QueueProcessing, QueueEmbedding, QueueLLM}

// DefaultConcurrency is the worker count per queue.
var DefaultConcurrency = map[string]int{
	QueueProcessing: 2,
	QueueEmbedding:  2,
	QueueLLM:        4,
}

// StageFeed is a synthetic stage routed through the queues alongside the
// pipeline stages. The orchestrator enqueues it to rebuild the daily feed.
const StageFeed types.Stage = "feed"

// Task is the wire unit pushed onto a queue.
type Task struct {
	Stage  types.Stage     `json:"stage"`
	BookID int64           `json:"book_id,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// QueueForStage routes a stage to its queue. CPU-bound extraction and
// chunking share the processing queue; embedding has its own lane;
// everything that talks to an LLM or external API goes to the llm queue.
func QueueForStage(stage types.Stage) string {
	switch stage {
	case types.StageExtract, types.StageChunk:
		return QueueProcessing
	case types.StageEmbed:
		return QueueEmbedding
	default:
		return QueueLLM
	}
}
