// Package api serves the operator HTTP API: health, status, decision
// history, a live event stream, Prometheus metrics, and manual utterances.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/go2voice/internal/auth"
	"github.com/mattjoyce/go2voice/internal/engine"
	"github.com/mattjoyce/go2voice/internal/events"
	"github.com/mattjoyce/go2voice/internal/executor"
	"github.com/mattjoyce/go2voice/internal/journal"
	"github.com/mattjoyce/go2voice/internal/log"
	"github.com/mattjoyce/go2voice/internal/policy"
	"github.com/mattjoyce/go2voice/internal/transcript"
)

// Dispatcher is the engine surface the API needs.
type Dispatcher interface {
	Handle(ctx context.Context, t transcript.Transcript) engine.Outcome
	State() policy.State
	Threshold() float64
}

// Executor exposes read-only subprocess state.
type Executor interface {
	State() executor.State
	PID() int
	ExitCode() int
	Output() []string
}

// History reads the decision journal.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Record, error)
	CountByReason(ctx context.Context) (map[policy.Reason]int, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey authenticates with full access.
	APIKey string
	Tokens []auth.TokenConfig
}

// Deps are the components the API reports on. History, Events and Metrics
// may be nil; their routes then answer 503.
type Deps struct {
	Dispatcher  Dispatcher
	Executor    Executor
	History     History
	Events      *events.Hub
	Metrics     http.Handler
	Fingerprint string
	Version     string
}

// Server represents the HTTP API server.
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance.
func New(config Config, deps Deps) *Server {
	return &Server{
		config:    config,
		deps:      deps,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No write timeout: /events streams indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeStatusRO)).Get("/status", s.handleStatus)
		r.With(s.requireScopes(auth.ScopeHistoryRO)).Get("/history", s.handleHistory)
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
		r.With(s.requireScopes(auth.ScopeMetricsRO)).Get("/metrics", s.handleMetrics)
		r.With(s.requireScopes(auth.ScopeDispatchRW)).Post("/utterances", s.handleUtterance)
	})

	return r
}

// loggingMiddleware logs HTTP requests. SSE connections log when they close.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
