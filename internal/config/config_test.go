package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.OpenRouterAPIKey != "${OPENROUTER_API_KEY}" {
		t.Error("expected openrouter API key placeholder")
	}
	if cfg.EmbeddingDimension != 384 {
		t.Errorf("expected embedding dimension 384, got %d", cfg.EmbeddingDimension)
	}
	if cfg.OrchestratorTickInterval != 300 {
		t.Errorf("expected tick interval 300, got %d", cfg.OrchestratorTickInterval)
	}
	if cfg.Queues.Processing != 2 || cfg.Queues.Embedding != 2 || cfg.Queues.LLM != 4 {
		t.Errorf("unexpected queue defaults: %+v", cfg.Queues)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestCORSOriginList(t *testing.T) {
	cfg := &Config{CORSOrigins: "http://a.test, http://b.test ,"}
	got := cfg.CORSOriginList()
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("unexpected origins: %v", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "# Bookflix configuration") {
		t.Error("expected comment header")
	}
	if !strings.Contains(content, "embedding_dimension: 384") {
		t.Error("expected embedding_dimension in written config")
	}
	if !strings.Contains(content, "${OPENROUTER_API_KEY}") {
		t.Error("expected env var placeholder for API key")
	}
}
