package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/go2voice/internal/executor"
	"github.com/mattjoyce/go2voice/internal/transcript"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	maxUtteranceBody    = 4 << 10
)

// SourceName tags transcripts submitted through POST /utterances.
const SourceName = "api"

// handleHealthz handles GET /healthz (no auth). It reports 503 once the
// executor is gone so supervisors can restart the dispatcher.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := executor.StateNotStarted
	if s.deps.Executor != nil {
		state = s.deps.Executor.State()
	}

	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Executor:      state.String(),
		Version:       s.deps.Version,
	}
	status := http.StatusOK
	if state == executor.StateTerminated {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Fingerprint: s.deps.Fingerprint,
		StartedAt:   s.startedAt.UTC(),
		Executor:    ExecutorStatus{State: executor.StateNotStarted.String(), ExitCode: -1, Output: []string{}},
	}
	if ex := s.deps.Executor; ex != nil {
		resp.Executor = ExecutorStatus{
			State:    ex.State().String(),
			PID:      ex.PID(),
			ExitCode: ex.ExitCode(),
			Output:   ex.Output(),
		}
		if resp.Executor.Output == nil {
			resp.Executor.Output = []string{}
		}
	}
	if d := s.deps.Dispatcher; d != nil {
		resp.Policy = d.State()
		resp.Threshold = d.Threshold()
	}
	if s.deps.Events != nil {
		resp.LastEventID = s.deps.Events.LastID()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleHistory handles GET /history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	counts, err := s.deps.History.CountByReason(r.Context())
	if err != nil {
		s.logger.Error("failed to count journal reasons", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}

	s.writeJSON(w, http.StatusOK, HistoryResponse{Records: records, ByReason: counts})
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		s.writeError(w, http.StatusServiceUnavailable, "metrics disabled")
		return
	}
	s.deps.Metrics.ServeHTTP(w, r)
}

// handleUtterance handles POST /utterances: a typed final transcript that
// takes the same path as recognized speech.
func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "dispatcher not running")
		return
	}

	var req UtteranceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUtteranceBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	// A client hanging up must not abort a line already headed for the
	// executor; the write is bounded by write_timeout.
	ctx := context.WithoutCancel(r.Context())
	out := s.deps.Dispatcher.Handle(ctx, transcript.NewFinal(SourceName, text, time.Now()))
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
