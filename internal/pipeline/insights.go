package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmishra/bookflix/internal/extract"
	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/types"
)

const (
	insightTemperature = 0.7
	insightMaxTokens   = 4096
	insightContentMax  = 50000
)

// insightChunkLimit returns how many leading chunks feed an insight pass.
// The first pass reads a smaller slice; refinement passes read deeper.
func insightChunkLimit(pass int) int {
	if pass == 1 {
		return 20
	}
	return 50
}

// rawInsight is the shape each extraction prompt asks the model for.
type rawInsight struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	SupportingQuote string `json:"supporting_quote"`
	Importance      int    `json:"importance"`
}

// insightCall binds one extraction prompt to the JSON key and insight type
// it produces.
type insightCall struct {
	prompt      string
	key         string
	insightType types.InsightType
}

var insightCalls = []insightCall{
	{prompt: ExtractKeyConcepts, key: "concepts", insightType: types.InsightKeyConcept},
	{prompt: ExtractFrameworks, key: "frameworks", insightType: types.InsightFramework},
	{prompt: ExtractTakeaways, key: "takeaways", insightType: types.InsightTakeaway},
}

// insightSchemaTmpl constrains the envelope each extraction prompt returns:
// an object whose keyed array holds titled insight items.
const insightSchemaTmpl = `{
	"type": "object",
	"required": [%q],
	"properties": {
		%q: {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["title", "content"],
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"content": {"type": "string", "minLength": 1},
					"supporting_quote": {"type": "string"},
					"importance": {"type": "integer", "minimum": 0, "maximum": 10}
				}
			}
		}
	}
}`

func (c insightCall) schema() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(insightSchemaTmpl, c.key, c.key))
}

func (p *Pipeline) insightsRunner(pass int) stageFunc {
	return func(ctx context.Context, job *types.ProcessingJob, book *types.Book) error {
		return p.runInsights(ctx, job, book, pass)
	}
}

// runInsights performs the three extraction calls for one pass. Each call
// fails independently: a bad frameworks response does not discard the
// concepts already stored.
func (p *Pipeline) runInsights(ctx context.Context, job *types.ProcessingJob, book *types.Book, pass int) error {
	stage := types.InsightsStage(pass)
	if err := p.setStatus(ctx, book.ID, types.StatusGeneratingInsights, book.ProcessingProgress, stage); err != nil {
		return err
	}

	chunks, err := p.store.FirstChunks(ctx, book.ID, insightChunkLimit(pass))
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return p.store.MarkJob(ctx, job.ID, types.JobSkipped, "")
	}

	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Content
	}
	content := extract.Truncate(strings.Join(parts, "\n\n---\n\n"), insightContentMax)

	author := book.Author
	if author == "" {
		author = "Unknown"
	}

	total := 0
	for _, call := range insightCalls {
		n, cErr := p.extractInsights(ctx, book, call, content, author, pass)
		if cErr != nil {
			p.logger.Error("insight extraction failed",
				"book_id", book.ID, "type", call.insightType, "pass", pass, "error", cErr)
			continue
		}
		total += n
	}

	if err := p.setStatus(ctx, book.ID, types.StatusCompleted, 100, stage); err != nil {
		return err
	}
	if err := p.store.MarkJob(ctx, job.ID, types.JobCompleted, ""); err != nil {
		return err
	}
	p.logger.Info("insights generated", "book_id", book.ID, "pass", pass, "count", total)

	if pass == 1 {
		return p.Dispatch(ctx, book.ID, types.StageEnrichment)
	}
	return nil
}

// extractInsights runs one prompt, parses and schema-checks the response,
// embeds each item, and stores the batch.
func (p *Pipeline) extractInsights(ctx context.Context, book *types.Book, call insightCall, content, author string, pass int) (int, error) {
	result, err := p.llm.Chat(ctx, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: SystemInsight},
			{Role: "user", Content: fmt.Sprintf(call.prompt, book.Title, author, content)},
		},
		Model:       p.models.ModelFor(providers.TaskInsights),
		Temperature: insightTemperature,
		MaxTokens:   insightMaxTokens,
	})
	if err != nil {
		return 0, err
	}

	parsed, err := providers.ParseJSON(result.Content)
	if err != nil {
		return 0, fmt.Errorf("parse response: %w", err)
	}
	if err := providers.ValidateJSON(call.schema(), parsed); err != nil {
		return 0, fmt.Errorf("validate %s response: %w", call.key, err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(parsed, &envelope); err != nil {
		return 0, fmt.Errorf("decode response object: %w", err)
	}
	var items []rawInsight
	if raw, ok := envelope[call.key]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			return 0, fmt.Errorf("decode %q array: %w", call.key, err)
		}
	}
	if len(items) == 0 {
		return 0, nil
	}

	insights := make([]*types.BookInsight, 0, len(items))
	for _, it := range items {
		if it.Title == "" || it.Content == "" {
			continue
		}
		embedding, eErr := p.embedder.EmbedOne(ctx, it.Title+": "+it.Content)
		if eErr != nil {
			return 0, fmt.Errorf("embed insight: %w", eErr)
		}
		insights = append(insights, &types.BookInsight{
			BookID:          book.ID,
			InsightType:     call.insightType,
			Title:           it.Title,
			Content:         it.Content,
			SupportingQuote: it.SupportingQuote,
			Importance:      it.Importance,
			RefinementLevel: pass,
			Embedding:       embedding,
		})
	}
	if len(insights) == 0 {
		return 0, nil
	}
	if err := p.store.InsertInsights(ctx, insights); err != nil {
		return 0, fmt.Errorf("store insights: %w", err)
	}
	return len(insights), nil
}
