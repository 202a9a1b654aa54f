package providers

import (
	"log/slog"
	"sync"
)

// Task types for per-task model routing.
const (
	TaskInsights   = "insights"
	TaskChat       = "chat"
	TaskFeed       = "feed"
	TaskTopicLabel = "topic_label"
	TaskQuote      = "quote"
)

// ModelRegistry maps task types to model names with a shared default.
// It provides thread-safe access and supports runtime updates; concurrent
// writers are last-write-wins.
type ModelRegistry struct {
	mu           sync.RWMutex
	defaultModel string
	overrides    map[string]string
	logger       *slog.Logger
}

// NewModelRegistry creates a registry resolving every task to defaultModel
// until overrides are set.
func NewModelRegistry(defaultModel string) *ModelRegistry {
	return &ModelRegistry{
		defaultModel: defaultModel,
		overrides:    make(map[string]string),
		logger:       slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *ModelRegistry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// ModelFor returns the model for a task type, falling back to the default.
func (r *ModelRegistry) ModelFor(task string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if model, ok := r.overrides[task]; ok && model != "" {
		return model
	}
	return r.defaultModel
}

// SetModel sets the model override for a task type. An empty model clears
// the override.
func (r *ModelRegistry) SetModel(task, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if model == "" {
		delete(r.overrides, task)
		if r.logger != nil {
			r.logger.Info("cleared model override", "task", task)
		}
		return
	}
	r.overrides[task] = model
	if r.logger != nil {
		r.logger.Info("set model override", "task", task, "model", model)
	}
}

// SetDefault updates the fallback model for all tasks without an override.
func (r *ModelRegistry) SetDefault(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultModel = model
	if r.logger != nil {
		r.logger.Info("set default model", "model", model)
	}
}

// Default returns the current fallback model.
func (r *ModelRegistry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultModel
}

// Overrides returns a copy of the current task overrides.
func (r *ModelRegistry) Overrides() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]string, len(r.overrides))
	for task, model := range r.overrides {
		result[task] = model
	}
	return result
}
