// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/vmishra/bookflix/internal/chat"
	"github.com/vmishra/bookflix/internal/config"
	"github.com/vmishra/bookflix/internal/feed"
	"github.com/vmishra/bookflix/internal/home"
	"github.com/vmishra/bookflix/internal/jobs"
	"github.com/vmishra/bookflix/internal/library"
	"github.com/vmishra/bookflix/internal/orchestrator"
	"github.com/vmishra/bookflix/internal/pipeline"
	"github.com/vmishra/bookflix/internal/providers"
	"github.com/vmishra/bookflix/internal/recommend"
	"github.com/vmishra/bookflix/internal/search"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/topics"
	"github.com/vmishra/bookflix/internal/ws"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store        *store.Store
	Broker       jobs.Broker
	Pool         *jobs.Pool
	Pipeline     *pipeline.Pipeline
	Orchestrator *orchestrator.Orchestrator
	Chat         *chat.Service
	Searcher     *search.Searcher
	Feed         *feed.Generator
	Topics       *topics.Builder
	Recommend    *recommend.Service
	Library      *library.Scanner
	Hub          *ws.Hub
	Models       *providers.ModelRegistry
	ConfigMgr    *config.Manager
	Logger       *slog.Logger
	Home         *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the database store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// BrokerFrom extracts the job broker from context.
func BrokerFrom(ctx context.Context) jobs.Broker {
	if s := ServicesFrom(ctx); s != nil {
		return s.Broker
	}
	return nil
}

// PoolFrom extracts the worker pool from context.
func PoolFrom(ctx context.Context) *jobs.Pool {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pool
	}
	return nil
}

// PipelineFrom extracts the processing pipeline from context.
func PipelineFrom(ctx context.Context) *pipeline.Pipeline {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pipeline
	}
	return nil
}

// OrchestratorFrom extracts the orchestrator from context.
func OrchestratorFrom(ctx context.Context) *orchestrator.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// ChatFrom extracts the chat service from context.
func ChatFrom(ctx context.Context) *chat.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Chat
	}
	return nil
}

// SearcherFrom extracts the hybrid searcher from context.
func SearcherFrom(ctx context.Context) *search.Searcher {
	if s := ServicesFrom(ctx); s != nil {
		return s.Searcher
	}
	return nil
}

// FeedFrom extracts the feed generator from context.
func FeedFrom(ctx context.Context) *feed.Generator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Feed
	}
	return nil
}

// TopicsFrom extracts the topic builder from context.
func TopicsFrom(ctx context.Context) *topics.Builder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Topics
	}
	return nil
}

// RecommendFrom extracts the recommendation service from context.
func RecommendFrom(ctx context.Context) *recommend.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Recommend
	}
	return nil
}

// LibraryFrom extracts the library scanner from context.
func LibraryFrom(ctx context.Context) *library.Scanner {
	if s := ServicesFrom(ctx); s != nil {
		return s.Library
	}
	return nil
}

// HubFrom extracts the websocket hub from context.
func HubFrom(ctx context.Context) *ws.Hub {
	if s := ServicesFrom(ctx); s != nil {
		return s.Hub
	}
	return nil
}

// ModelsFrom extracts the model registry from context.
func ModelsFrom(ctx context.Context) *providers.ModelRegistry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Models
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigMgr
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
