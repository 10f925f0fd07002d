package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/go2voice/internal/engine"
	"github.com/mattjoyce/go2voice/internal/log"
	"github.com/mattjoyce/go2voice/internal/metrics"
	"github.com/mattjoyce/go2voice/internal/transcript"
)

// SourceName tags transcripts that arrived over ingress.
const SourceName = "ingress"

// Dispatcher handles one transcript. *engine.Engine satisfies it.
type Dispatcher interface {
	Handle(ctx context.Context, t transcript.Transcript) engine.Outcome
}

// Config holds the resolved ingress settings.
type Config struct {
	Listen          string
	Path            string
	Secret          string
	SignatureHeader string
	MaxBodySize     int64
}

// Request is the webhook body. Final defaults to true when omitted.
type Request struct {
	Text  string `json:"text"`
	Final *bool  `json:"final,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server is the ingress HTTP listener.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	server     *http.Server
}

// New builds a Server. m may be nil.
func New(cfg Config, d Dispatcher, m *metrics.Metrics) *Server {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 64 * 1024
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Signature-256"
	}
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		metrics:    m,
		logger:     log.WithComponent("ingress"),
		now:        time.Now,
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("ingress server starting", "listen", s.cfg.Listen, "path", s.cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("ingress server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ingress server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("ingress server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.cfg.Path, s.handleTranscript)
	return r
}

// loggingMiddleware logs requests without bodies.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("ingress request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.cfg.MaxBodySize {
		s.reject("too_large")
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if err := verifySignature(body, r.Header.Get(s.cfg.SignatureHeader), s.cfg.Secret); err != nil {
		s.logger.Warn("ingress signature rejected", "header", s.cfg.SignatureHeader)
		s.reject("signature")
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.reject("malformed")
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		s.reject("empty")
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	t := transcript.NewFinal(SourceName, req.Text, s.now())
	if req.Final != nil && !*req.Final {
		t = transcript.NewPartial(SourceName, req.Text, s.now())
	}

	// Detached from the request: a disconnect mid-write would otherwise
	// report send-failed for a line the executor still receives.
	out := s.dispatcher.Handle(context.WithoutCancel(r.Context()), t)
	s.respondJSON(w, http.StatusAccepted, out)
}

func (s *Server) reject(cause string) {
	if s.metrics != nil {
		s.metrics.ObserveIngressReject(cause)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
