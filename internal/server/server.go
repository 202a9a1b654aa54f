// Package server wires the bookflix services together and runs the HTTP
// surface plus the background workers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vmishra/bookflix/internal/api"
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
	"github.com/vmishra/bookflix/internal/server/endpoints"
	"github.com/vmishra/bookflix/internal/store"
	"github.com/vmishra/bookflix/internal/svcctx"
	"github.com/vmishra/bookflix/internal/topics"
	"github.com/vmishra/bookflix/internal/ws"
)

// Server is the main bookflix HTTP server. It owns the database pool, the
// job broker, the worker pool, and the orchestrator, starting them on
// Start and stopping them on shutdown.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	store  *store.Store
	broker jobs.Broker
	pool   *jobs.Pool
	orch   *orchestrator.Orchestrator
	hub    *ws.Hub
	models *providers.ModelRegistry

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	corsOrigins []string

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: from config manager)
	Host string
	// Port is the port to listen on (default: from config manager)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the bookflix home directory
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}

	appCfg := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = appCfg.APIHost
	}
	if cfg.Port == "" {
		cfg.Port = appCfg.APIPort
	}

	s := &Server{
		configMgr:   cfg.ConfigManager,
		home:        cfg.Home,
		logger:      cfg.Logger,
		corsOrigins: appCfg.CORSOriginList(),
	}

	// Model registry with per-task routing; the config API mutates it.
	s.models = providers.NewModelRegistry(appCfg.DefaultModel)
	s.models.SetLogger(cfg.Logger)
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		s.models.SetDefault(c.DefaultModel)
		cfg.Logger.Info("model registry reloaded from config")
	})

	s.hub = ws.NewHub(cfg.Logger, s.originAllowed)

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{
		ScanTracker: endpoints.NewScanTracker(),
		BooksPath:   appCfg.BooksPath,
		CoversPath:  s.coversPath(appCfg),
	}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withCORS(s.withServices(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// coversPath resolves the covers directory: explicit config wins, the
// home directory is the fallback.
func (s *Server) coversPath(cfg *config.Config) string {
	if cfg.CoversPath != "" {
		return cfg.CoversPath
	}
	return s.home.CoversPath()
}

// Start connects the database and broker, starts the workers and the
// orchestrator, and serves HTTP. It blocks until the context is
// cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.home.EnsureExists(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	appCfg := s.configMgr.Get()

	// Database
	st, err := store.New(ctx, appCfg.DatabaseURL)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.store = st

	s.logger.Info("running migrations", "embedding_dimension", appCfg.EmbeddingDimension)
	if err := st.Migrate(ctx, appCfg.EmbeddingDimension); err != nil {
		st.Close()
		s.setNotRunning()
		return fmt.Errorf("migration failed: %w", err)
	}

	// Job broker: Redis when reachable, in-process fallback otherwise.
	s.broker = s.connectBroker(ctx, appCfg.RedisURL)

	concurrency := map[string]int{
		jobs.QueueProcessing: appCfg.Queues.Processing,
		jobs.QueueEmbedding:  appCfg.Queues.Embedding,
		jobs.QueueLLM:        appCfg.Queues.LLM,
	}
	s.pool = jobs.NewPool(s.broker, concurrency, s.logger)

	// Providers
	llm := providers.NewOpenRouterClient(providers.OpenRouterConfig{
		APIKey:       appCfg.ResolvedOpenRouterKey(),
		DefaultModel: appCfg.DefaultModel,
	})
	embedder := providers.NewOpenAIEmbedder(providers.OpenAIEmbedderConfig{
		APIKey:    appCfg.EmbeddingAPIKey,
		BaseURL:   appCfg.EmbeddingBaseURL,
		Model:     appCfg.EmbeddingModel,
		Dimension: appCfg.EmbeddingDimension,
	})

	// Services
	coversPath := s.coversPath(appCfg)
	pipe := pipeline.New(st, s.pool, llm, embedder, s.models, s.hub, coversPath, s.logger)
	pipe.Register(s.pool)

	searcher := search.NewSearcher(st, embedder, s.logger)
	chatSvc := chat.NewService(st, searcher, llm, s.models, s.logger)

	feedGen := feed.NewGenerator(st, llm, s.models, s.logger)
	feedGen.Register(s.pool)

	topicBuilder := topics.NewBuilder(st, s.logger)
	topicBuilder.Register(s.pool)

	recommender := recommend.NewService(st, s.logger)
	scanner := library.NewScanner(st, appCfg.BooksPath, s.logger)

	intensity, err := orchestrator.ParseIntensity(appCfg.OrchestratorIntensity)
	if err != nil {
		s.logger.Warn("invalid orchestrator intensity, using normal", "value", appCfg.OrchestratorIntensity)
		intensity = orchestrator.IntensityNormal
	}
	var tickOverride time.Duration
	if appCfg.OrchestratorTickInterval > 0 && appCfg.OrchestratorTickInterval != 300 {
		tickOverride = time.Duration(appCfg.OrchestratorTickInterval) * time.Second
	}
	brain := orchestrator.NewBrain(st, s.logger)
	s.orch = orchestrator.New(brain, pipe, s.pool, intensity, tickOverride, s.logger)

	s.services = &svcctx.Services{
		Store:        st,
		Broker:       s.broker,
		Pool:         s.pool,
		Pipeline:     pipe,
		Orchestrator: s.orch,
		Chat:         chatSvc,
		Searcher:     searcher,
		Feed:         feedGen,
		Topics:       topicBuilder,
		Recommend:    recommender,
		Library:      scanner,
		Hub:          s.hub,
		Models:       s.models,
		ConfigMgr:    s.configMgr,
		Logger:       s.logger,
		Home:         s.home,
	}

	// Background surfaces
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	s.pool.Start(workerCtx)
	go s.orch.Run(workerCtx)

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			cancelWorkers()
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	cancelWorkers()
	return s.shutdown()
}

// connectBroker tries Redis first and falls back to the in-process broker
// so a missing Redis never blocks a single-user deployment.
func (s *Server) connectBroker(ctx context.Context, redisURL string) jobs.Broker {
	broker, err := jobs.NewRedisBroker(redisURL)
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err = broker.Ping(pingCtx); err == nil {
			s.logger.Info("connected to redis broker", "url", redisURL)
			return broker
		}
	}
	s.logger.Warn("redis unavailable, using in-process broker", "error", err)
	return jobs.NewMemoryBroker()
}

// shutdown performs graceful shutdown of the HTTP server and workers.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.pool != nil {
		s.pool.Stop()
	}
	if s.store != nil {
		s.store.Close()
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// originAllowed reports whether a WebSocket upgrade origin is accepted.
// An empty allowlist accepts everything (single-user deployments).
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.corsOrigins) == 0 {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// withCORS handles cross-origin headers and preflight requests for the
// configured origins.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, allowed := range s.corsOrigins {
				if origin == allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					break
				}
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the database or workers aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil || s.pool == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
