package providers

import "testing"

func TestModelRegistryDefault(t *testing.T) {
	r := NewModelRegistry("stepfun/step-3.5-flash:free")

	if got := r.ModelFor(TaskChat); got != "stepfun/step-3.5-flash:free" {
		t.Errorf("ModelFor(chat) = %q, want default", got)
	}
}

func TestModelRegistryOverride(t *testing.T) {
	r := NewModelRegistry("default-model")

	r.SetModel(TaskInsights, "big-model")
	if got := r.ModelFor(TaskInsights); got != "big-model" {
		t.Errorf("ModelFor(insights) = %q, want big-model", got)
	}
	if got := r.ModelFor(TaskChat); got != "default-model" {
		t.Errorf("ModelFor(chat) = %q, want default-model", got)
	}

	// Last write wins
	r.SetModel(TaskInsights, "bigger-model")
	if got := r.ModelFor(TaskInsights); got != "bigger-model" {
		t.Errorf("ModelFor(insights) = %q, want bigger-model", got)
	}

	// Clearing restores the default
	r.SetModel(TaskInsights, "")
	if got := r.ModelFor(TaskInsights); got != "default-model" {
		t.Errorf("ModelFor(insights) after clear = %q, want default-model", got)
	}
}

func TestModelRegistrySetDefault(t *testing.T) {
	r := NewModelRegistry("old")
	r.SetDefault("new")

	if got := r.Default(); got != "new" {
		t.Errorf("Default() = %q, want new", got)
	}
	if got := r.ModelFor(TaskFeed); got != "new" {
		t.Errorf("ModelFor(feed) = %q, want new", got)
	}
}

func TestModelRegistryOverridesCopy(t *testing.T) {
	r := NewModelRegistry("d")
	r.SetModel(TaskQuote, "q-model")

	overrides := r.Overrides()
	overrides[TaskQuote] = "mutated"

	if got := r.ModelFor(TaskQuote); got != "q-model" {
		t.Errorf("ModelFor(quote) = %q, want q-model (copy should not alias)", got)
	}
}
