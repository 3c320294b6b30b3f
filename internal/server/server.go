// Package server exposes the guardrails pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/llm-guardrails/internal/config"
	"github.com/raaihank/llm-guardrails/internal/corpus"
	"github.com/raaihank/llm-guardrails/internal/guardrails"
	"github.com/raaihank/llm-guardrails/internal/logger"
	"github.com/raaihank/llm-guardrails/internal/metrics"
	"github.com/raaihank/llm-guardrails/internal/security"
	"github.com/raaihank/llm-guardrails/internal/stats"
	"github.com/raaihank/llm-guardrails/internal/web"
	"github.com/raaihank/llm-guardrails/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info
const Version = "0.1.0"

const statusInterval = 30 * time.Second

// StatsRecorder persists detection counters
type StatsRecorder interface {
	RecordInput(ctx context.Context, pre guardrails.PreProcessResult) error
	RecordOutput(ctx context.Context, post guardrails.PostProcessResult) error
	Snapshot(ctx context.Context) (*stats.Snapshot, error)
}

var _ StatsRecorder = (*stats.Counter)(nil)

// Server represents the guardrails HTTP service
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	pipeline   atomic.Pointer[guardrails.Pipeline]
	extraRules []corpus.Definition
	metrics    *metrics.Metrics
	stats      StatsRecorder
	limiter    *security.RateLimiter
	clientIP   *security.ClientIPResolver
	wsHub      *websocket.Hub
	router     *mux.Router
	server     *http.Server
	started    time.Time
}

// Option customises a Server
type Option func(*Server)

// WithStats records detection counters after every guard call
func WithStats(s StatsRecorder) Option {
	return func(srv *Server) { srv.stats = s }
}

// WithRuleDefinitions appends rules to the built-in corpus
func WithRuleDefinitions(defs []corpus.Definition) Option {
	return func(srv *Server) { srv.extraRules = append([]corpus.Definition(nil), defs...) }
}

// WithMetrics uses m instead of a private registry
func WithMetrics(m *metrics.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	if log == nil {
		log = logger.NewNop()
	}

	resolver, err := security.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		limiter:  security.NewRateLimiter(cfg.RateLimit),
		clientIP: resolver,
		wsHub:    websocket.NewHub(cfg.WebSocket, log.WithComponent("websocket").Logger),
		router:   mux.NewRouter(),
		started:  time.Now(),
	}
	s.wsHub.SetClientIPFunc(resolver.ClientIP)
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New("guardrails", nil)
	}

	p, err := s.buildPipeline(cfg.Guardrails)
	if err != nil {
		return nil, err
	}
	s.pipeline.Store(p)

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// PipelineConfig converts the guardrails config section
func PipelineConfig(g config.GuardrailsConfig) guardrails.Config {
	return guardrails.Config{
		InjectionThreshold:      g.InjectionThreshold,
		PIIEnabled:              g.PIIEnabled,
		InjectionEnabled:        g.InjectionEnabled,
		BiasEnabled:             g.BiasEnabled,
		OutputValidationEnabled: g.OutputValidationEnabled,
		MaxOutputLength:         g.MaxOutputLength,
		PIIDetectors:            g.PIIDetectors,
		RequiredKeywords:        g.RequiredKeywords,
		BlockedKeywords:         g.BlockedKeywords,
		JSONSchema:              g.JSONSchema,
		ReferenceBalance:        g.ReferenceBalance,
	}
}

func (s *Server) buildPipeline(g config.GuardrailsConfig) (*guardrails.Pipeline, error) {
	c, err := corpus.New(append(corpus.DefaultDefinitions(), s.extraRules...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule corpus: %w", err)
	}

	p, err := guardrails.New(PipelineConfig(g),
		guardrails.WithCorpus(c),
		guardrails.WithLogger(s.logger.WithComponent("guardrails").Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return p, nil
}

// Pipeline returns the pipeline currently serving requests
func (s *Server) Pipeline() *guardrails.Pipeline {
	return s.pipeline.Load()
}

// Reload swaps in a pipeline built from cfg. In-flight requests finish on
// the pipeline they started with. Only the guardrails section is applied;
// other sections need a restart.
func (s *Server) Reload(cfg *config.Config) error {
	p, err := s.buildPipeline(cfg.Guardrails)
	s.metrics.ObserveReload(err)
	if err != nil {
		s.logger.Error("Pipeline reload rejected, keeping current pipeline", zap.Error(err))
		return err
	}

	s.pipeline.Store(p)
	s.logger.Info("Pipeline reloaded",
		zap.String("corpus_version", p.Corpus().Version()),
		zap.Float64("injection_threshold", cfg.Guardrails.InjectionThreshold),
	)
	s.broadcastStatus("pipeline reloaded")
	return nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
		s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)
	}

	guard := s.router.PathPrefix("/guard").Subrouter()
	guard.Use(s.rateLimitMiddleware)
	guard.Use(s.bodyLimitMiddleware)
	guard.HandleFunc("/input", s.handleGuardInput).Methods(http.MethodPost)
	guard.HandleFunc("/output", s.handleGuardOutput).Methods(http.MethodPost)
	guard.HandleFunc("/full", s.handleGuardFull).Methods(http.MethodPost)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs background workers and serves until Stop is called
func (s *Server) Start(ctx context.Context) error {
	p := s.Pipeline()
	s.logger.Info("Starting LLM-Guardrails server",
		zap.Int("port", s.config.Server.Port),
		zap.String("corpus_version", p.Corpus().Version()),
		zap.Int("rules", p.Corpus().Len()),
		zap.Bool("stats_enabled", s.stats != nil),
	)

	go s.wsHub.Run(ctx)
	s.limiter.StartCleanupRoutine(ctx)
	go s.statusLoop(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping LLM-Guardrails server")
	return s.server.Shutdown(ctx)
}

func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.metrics.WebSocketClients.Set(float64(s.wsHub.ClientCount()))
			s.broadcastStatus("")
		}
	}
}

func (s *Server) broadcastStatus(message string) {
	p := s.Pipeline()
	s.wsHub.BroadcastStatus(websocket.SystemStatusEvent{
		Status:        "healthy",
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		CorpusVersion: p.Corpus().Version(),
		ActiveRules:   p.Corpus().Len(),
		Message:       message,
	})
}
