package chunker

import (
	"fmt"
	"strings"
	"testing"
)

// para builds a paragraph with exactly n words.
func para(word string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", word, i)
	}
	return strings.Join(words, " ")
}

func TestChunkText_ThreeLargeParagraphs(t *testing.T) {
	p1 := para("alpha", 300)
	p2 := para("beta", 300)
	p3 := para("gamma", 300)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	c := New(512, 64)
	chunks := c.ChunkText(text, 1, "", 0)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d: index = %d", i, ch.ChunkIndex)
		}
	}
	// Each paragraph exceeds the overlap budget, so no tail carries over.
	if chunks[0].Text != p1 || chunks[1].Text != p2 || chunks[2].Text != p3 {
		t.Error("paragraphs were split or merged unexpectedly")
	}
}

func TestChunkText_OverlapCarriesTail(t *testing.T) {
	small := para("tail", 40) // fits within the 64-token overlap budget
	big1 := para("one", 400)
	big2 := para("two", 400)
	text := big1 + "\n\n" + small + "\n\n" + big2

	c := New(512, 64)
	chunks := c.ChunkText(text, 0, "", 0)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	// big1+small fit (440 <= 512); big2 overflows, so chunk 1 is seeded with
	// the small trailing paragraph.
	if !strings.HasPrefix(chunks[1].Text, small) {
		t.Error("expected second chunk to start with the overlap paragraph")
	}
	if !strings.Contains(chunks[1].Text, big2) {
		t.Error("expected second chunk to contain the overflowing paragraph")
	}
}

func TestChunkText_Deterministic(t *testing.T) {
	text := para("word", 200) + "\n\n" + para("more", 200) + "\n\n" + para("even", 200)
	c := New(256, 32)

	a := c.ChunkText(text, 3, "Ch 1", 0)
	b := c.ChunkText(text, 3, "Ch 1", 0)

	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunkText_EmptyInput(t *testing.T) {
	c := New(512, 64)
	if chunks := c.ChunkText("   \n\n  ", 0, "", 0); chunks != nil {
		t.Errorf("expected no chunks for blank input, got %d", len(chunks))
	}
}

func TestChunkText_NeverEmitsEmptyChunk(t *testing.T) {
	text := "one\n\n\n\n  \n\ntwo"
	c := New(512, 64)
	for _, ch := range c.ChunkText(text, 0, "", 0) {
		if strings.TrimSpace(ch.Text) == "" {
			t.Error("emitted empty chunk")
		}
	}
}

func TestChunkText_CoversAllContent(t *testing.T) {
	paras := make([]string, 10)
	for i := range paras {
		paras[i] = para(fmt.Sprintf("p%d", i), 100)
	}
	text := strings.Join(paras, "\n\n")

	c := New(256, 32)
	chunks := c.ChunkText(text, 0, "", 0)

	joined := make([]string, len(chunks))
	for i, ch := range chunks {
		joined[i] = ch.Text
	}
	all := strings.Join(joined, "\n\n")
	for _, p := range paras {
		if !strings.Contains(all, p) {
			t.Errorf("paragraph missing from output: %.30s...", p)
		}
	}
}

func TestChunkPages_DenseIndices(t *testing.T) {
	pages := []Page{
		{Text: para("a", 600), PageNumber: 1},
		{Text: para("b", 600), PageNumber: 2, Chapter: "Two"},
		{Text: "", PageNumber: 3},
		{Text: para("c", 100), PageNumber: 4},
	}

	c := New(512, 64)
	chunks := c.ChunkPages(pages)

	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Fatalf("indices not dense: chunk %d has index %d", i, ch.ChunkIndex)
		}
	}
}

func TestChunkPages_PageAttribution(t *testing.T) {
	pages := []Page{
		{Text: para("x", 50), PageNumber: 7, Chapter: "Intro"},
		{Text: para("y", 50), PageNumber: 8, Chapter: "Body"},
	}

	c := New(512, 64)
	chunks := c.ChunkPages(pages)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].PageNumber != 7 || chunks[0].Chapter != "Intro" {
		t.Errorf("chunk 0 attribution wrong: %+v", chunks[0])
	}
	if chunks[1].PageNumber != 8 || chunks[1].Chapter != "Body" {
		t.Errorf("chunk 1 attribution wrong: %+v", chunks[1])
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("one two  three\nfour"); got != 4 {
		t.Errorf("EstimateTokens = %d, want 4", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens empty = %d, want 0", got)
	}
}
