package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string

	// ResponseFunc, if set, computes the response from the request.
	ResponseFunc func(req *ChatRequest) string

	// StreamChunkSize controls how Stream slices the response into deltas.
	StreamChunkSize int

	// State
	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:         0,
		ResponseText:    "mock response",
		StreamChunkSize: 8,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// RequestCount returns the number of requests handled so far.
func (c *MockClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	if c.ShouldFail {
		return nil, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return nil, fmt.Errorf("mock client failed after %d requests", c.FailAfter)
	}

	// Simulate latency
	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Latency):
		}
	}

	content := c.ResponseText
	if c.ResponseFunc != nil {
		content = c.ResponseFunc(req)
	}

	return &ChatResult{
		Content:          content,
		PromptTokens:     promptTokenEstimate(req),
		CompletionTokens: len(strings.Fields(content)),
		TotalTokens:      promptTokenEstimate(req) + len(strings.Fields(content)),
		ExecutionTime:    time.Since(start),
		Provider:         MockClientName,
		ModelUsed:        req.Model,
		RequestID:        fmt.Sprintf("mock-%d", count),
		Attempts:         1,
	}, nil
}

// Stream sends a mock chat request, delivering the response in fixed-size
// deltas.
func (c *MockClient) Stream(ctx context.Context, req *ChatRequest, onDelta func(delta string)) (*ChatResult, error) {
	result, err := c.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	chunkSize := c.StreamChunkSize
	if chunkSize <= 0 {
		chunkSize = 8
	}
	if onDelta != nil {
		content := result.Content
		for i := 0; i < len(content); i += chunkSize {
			end := i + chunkSize
			if end > len(content) {
				end = len(content)
			}
			onDelta(content[i:end])
		}
	}
	return result, nil
}

func promptTokenEstimate(req *ChatRequest) int {
	n := 0
	for _, m := range req.Messages {
		n += len(strings.Fields(m.Content))
	}
	return n
}

// MockEmbedder is an Embedder for testing. Vectors are deterministic
// functions of the input text, so identical texts embed identically and
// different texts almost surely differ.
type MockEmbedder struct {
	Dim        int
	ShouldFail bool

	callCount atomic.Int64
}

// NewMockEmbedder creates a deterministic test embedder.
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &MockEmbedder{Dim: dim}
}

// Dimension returns the vector dimension.
func (e *MockEmbedder) Dimension() int {
	return e.Dim
}

// CallCount returns the number of Embed calls handled so far.
func (e *MockEmbedder) CallCount() int {
	return int(e.callCount.Load())
}

// Embed embeds a batch of texts deterministically.
func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.callCount.Add(1)
	if e.ShouldFail {
		return nil, fmt.Errorf("mock embedder configured to fail")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.vectorFor(text)
	}
	return vectors, nil
}

// EmbedOne embeds a single text deterministically.
func (e *MockEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// vectorFor derives a unit vector from the SHA-256 of the text.
func (e *MockEmbedder) vectorFor(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, e.Dim)
	var norm float64
	for i := range vec {
		// Re-hash when the digest runs out of bytes.
		offset := (i * 4) % len(sum)
		if i > 0 && offset == 0 {
			sum = sha256.Sum256(sum[:])
		}
		bits := binary.BigEndian.Uint32(sum[offset : offset+4])
		v := float64(bits)/float64(math.MaxUint32)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

// Verify interfaces
var (
	_ LLMClient = (*MockClient)(nil)
	_ Embedder  = (*MockEmbedder)(nil)
)
