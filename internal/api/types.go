package api

import (
	"time"

	"github.com/mattjoyce/go2voice/internal/journal"
	"github.com/mattjoyce/go2voice/internal/policy"
)

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Executor      string `json:"executor"`
	Version       string `json:"version,omitempty"`
}

// ExecutorStatus describes the go2_motion child.
type ExecutorStatus struct {
	State    string   `json:"state"`
	PID      int      `json:"pid"`
	ExitCode int      `json:"exit_code"`
	Output   []string `json:"output"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Executor    ExecutorStatus `json:"executor"`
	Policy      policy.State   `json:"policy"`
	Threshold   float64        `json:"threshold"`
	Fingerprint string         `json:"fingerprint"`
	LastEventID int64          `json:"last_event_id"`
	StartedAt   time.Time      `json:"started_at"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Records  []journal.Record      `json:"records"`
	ByReason map[policy.Reason]int `json:"by_reason"`
}

// UtteranceRequest is the body for POST /utterances.
type UtteranceRequest struct {
	Text string `json:"text"`
}
