package endpoints

import (
	"github.com/vmishra/bookflix/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	ScanTracker *ScanTracker
	BooksPath   string
	CoversPath  string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	if cfg.ScanTracker == nil {
		cfg.ScanTracker = NewScanTracker()
	}
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},

		// Book endpoints
		&ListBooksEndpoint{},
		&RecentBooksEndpoint{},
		&ContinueReadingEndpoint{},
		&GetBookEndpoint{},
		&UpdateBookEndpoint{},
		&DeleteBookEndpoint{},
		&BookFileEndpoint{},
		&BookCoverEndpoint{},

		// Library endpoints
		&ScanLibraryEndpoint{Tracker: cfg.ScanTracker, BooksPath: cfg.BooksPath},
		&ScanStatusEndpoint{Tracker: cfg.ScanTracker},
		&ImportEndpoint{},
		&LibraryStatsEndpoint{},
		&ProcessingBooksEndpoint{},

		// Pipeline and job endpoints
		&ProcessBookEndpoint{},
		&ResumeBookEndpoint{},
		&BookJobsEndpoint{},
		&FailedJobsEndpoint{},
		&JobCountsEndpoint{},

		// Search endpoints
		&SearchEndpoint{},
		&SearchSuggestEndpoint{},
		&SearchBooksEndpoint{},

		// Insight endpoints
		&BookInsightsEndpoint{},
		&RegenerateInsightsEndpoint{},
		&ConceptsEndpoint{},
		&FrameworksEndpoint{},
		&GetInsightEndpoint{},
		&InsightConnectionsEndpoint{},

		// Chat endpoints
		&CreateSessionEndpoint{},
		&ListSessionsEndpoint{},
		&DeleteSessionEndpoint{},
		&SessionMessagesEndpoint{},
		&SendMessageEndpoint{},

		// Feed endpoints
		&GetFeedEndpoint{},
		&GenerateFeedEndpoint{},
		&DailyDigestEndpoint{},
		&PatchFeedEndpoint{},
		&DeleteFeedEndpoint{},

		// Topic endpoints
		&ListTopicsEndpoint{},
		&TopicGraphEndpoint{},
		&RebuildTopicsEndpoint{},
		&GetTopicEndpoint{},

		// Recommendation endpoints
		&RecommendationsEndpoint{},
		&SimilarBooksEndpoint{},

		// Reading endpoints
		&GetProgressEndpoint{},
		&PutProgressEndpoint{},
		&StartSessionEndpoint{},
		&EndSessionEndpoint{},
		&ReadingStatsEndpoint{},

		// Knowledge endpoints
		&KnowledgeConnectionsEndpoint{},
		&ListLearningPathsEndpoint{},
		&CreateLearningPathEndpoint{},
		&GetLearningPathEndpoint{},
		&DeleteLearningPathEndpoint{},
		&KnowledgeMapEndpoint{},

		// Config endpoints
		&GetConfigEndpoint{},
		&PatchConfigEndpoint{},
		&GetModelsEndpoint{},
		&PutModelsEndpoint{},

		// Orchestrator endpoints
		&OrchestratorStatusEndpoint{},
		&SetIntensityEndpoint{},
		&TriggerTickEndpoint{},

		// WebSocket endpoints
		&ProcessingWSEndpoint{},
		&ChatWSEndpoint{},

		// Static covers
		&CoversEndpoint{CoversPath: cfg.CoversPath},
	}
}
