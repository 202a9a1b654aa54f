package providers

import (
	"encoding/json"
	"testing"
)

func TestParseJSONPlain(t *testing.T) {
	raw, err := ParseJSON(`{"title":"Deep Work","importance":8}`)
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got["title"] != "Deep Work" {
		t.Errorf("title = %v, want Deep Work", got["title"])
	}
}

func TestParseJSONCodeFence(t *testing.T) {
	content := "```json\n[{\"title\":\"Focus\"}]\n```"
	raw, err := ParseJSON(content)
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(got) != 1 || got[0]["title"] != "Focus" {
		t.Errorf("got %v, want one item titled Focus", got)
	}
}

func TestParseJSONSurroundingText(t *testing.T) {
	content := `Here are the concepts you asked for:

[{"title": "Spaced Repetition"}, {"title": "Active Recall"}]

Let me know if you need more.`
	raw, err := ParseJSON(content)
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestParseJSONGarbage(t *testing.T) {
	if _, err := ParseJSON("not json at all"); err == nil {
		t.Error("expected error for non-JSON content")
	}
	if _, err := ParseJSON(""); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestValidateJSON(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["title", "description"],
			"properties": {
				"title": {"type": "string"},
				"description": {"type": "string"},
				"importance": {"type": "integer"}
			}
		}
	}`)

	valid := json.RawMessage(`[{"title":"T","description":"D","importance":5}]`)
	if err := ValidateJSON(schema, valid); err != nil {
		t.Errorf("valid doc rejected: %v", err)
	}

	invalid := json.RawMessage(`[{"title":"T"}]`)
	if err := ValidateJSON(schema, invalid); err == nil {
		t.Error("expected validation error for missing description")
	}
}
