// Package chunker splits extracted page text into bounded, overlapping
// chunks suitable for embedding and retrieval.
package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultChunkSize is the token budget per chunk.
	DefaultChunkSize = 512

	// DefaultChunkOverlap is the token budget carried from the tail of one
	// chunk into the next.
	DefaultChunkOverlap = 64
)

// Page is one unit of extracted source text.
type Page struct {
	Text       string
	PageNumber int
	Chapter    string
}

// Chunk is one bounded text window. ChunkIndex is assigned strictly
// increasing from the caller-supplied base.
type Chunk struct {
	Text       string
	ChunkIndex int
	PageNumber int
	Chapter    string
	TokenCount int
}

// Chunker accumulates paragraphs into chunks. The zero value is not usable;
// call New.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a Chunker. Non-positive arguments fall back to the defaults.
func New(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap <= 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// EstimateTokens approximates token count as whitespace-delimited words.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// ChunkText splits a single page's text into chunks indexed from startIndex.
// Paragraphs are never split; empty chunks are never emitted.
func (c *Chunker) ChunkText(text string, pageNumber int, chapter string, startIndex int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var paragraphs []string
	for _, p := range paragraphSplit.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var chunks []Chunk
	var current []string
	currentTokens := 0
	idx := startIndex

	for _, para := range paragraphs {
		paraTokens := EstimateTokens(para)

		if currentTokens+paraTokens > c.chunkSize && len(current) > 0 {
			chunks = append(chunks, Chunk{
				Text:       strings.Join(current, "\n\n"),
				ChunkIndex: idx,
				PageNumber: pageNumber,
				Chapter:    chapter,
				TokenCount: currentTokens,
			})
			idx++

			// Seed the next chunk with a tail of prior paragraphs whose
			// cumulative token count stays within the overlap budget.
			var overlap []string
			overlapTokens := 0
			for i := len(current) - 1; i >= 0; i-- {
				t := EstimateTokens(current[i])
				if overlapTokens+t > c.chunkOverlap {
					break
				}
				overlap = append([]string{current[i]}, overlap...)
				overlapTokens += t
			}
			current = overlap
			currentTokens = overlapTokens
		}

		current = append(current, para)
		currentTokens += paraTokens
	}

	if len(current) > 0 {
		text := strings.Join(current, "\n\n")
		chunks = append(chunks, Chunk{
			Text:       text,
			ChunkIndex: idx,
			PageNumber: pageNumber,
			Chapter:    chapter,
			TokenCount: EstimateTokens(text),
		})
	}

	return chunks
}

// ChunkPages splits a sequence of pages, assigning dense 0-based indices
// across the whole book.
func (c *Chunker) ChunkPages(pages []Page) []Chunk {
	var all []Chunk
	idx := 0
	for _, page := range pages {
		chunks := c.ChunkText(page.Text, page.PageNumber, page.Chapter, idx)
		all = append(all, chunks...)
		idx += len(chunks)
	}
	return all
}
