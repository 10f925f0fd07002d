// Package engine turns transcripts into executor actions: normalize, match
// triggers, score, debounce, send, and record what happened.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/go2voice/internal/asr"
	"github.com/mattjoyce/go2voice/internal/events"
	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/journal"
	"github.com/mattjoyce/go2voice/internal/log"
	"github.com/mattjoyce/go2voice/internal/metrics"
	"github.com/mattjoyce/go2voice/internal/policy"
	"github.com/mattjoyce/go2voice/internal/transcript"
)

// ErrQuit is returned by Run when a QUIT command was heard.
var ErrQuit = errors.New("quit requested")

// DefaultThreshold is the minimum best score for a menu intent to count.
const DefaultThreshold = 1.2

// Options wires an Engine. Journal, Events and Metrics are optional.
type Options struct {
	Registry  *intent.Registry
	Policy    *policy.Policy
	Sender    Sender
	Threshold float64

	Journal Recorder
	Events  Publisher
	Metrics *metrics.Metrics

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Outcome describes what happened to one transcript.
type Outcome struct {
	UtteranceID string                        `json:"utterance_id"`
	Source      string                        `json:"source"`
	Text        string                        `json:"text"`
	Normalized  string                        `json:"normalized"`
	Final       bool                          `json:"final"`
	Scores      map[intent.ActionCode]float64 `json:"scores,omitempty"`
	Best        intent.Candidate              `json:"best"`
	Decision    policy.Decision               `json:"decision"`
	Sent        bool                          `json:"sent"`
	Quit        bool                          `json:"quit"`
	Posture     policy.Posture                `json:"posture"`
	Error       string                        `json:"error,omitempty"`
}

type Engine struct {
	registry  *intent.Registry
	policy    *policy.Policy
	sender    Sender
	threshold float64
	journal   Recorder
	events    Publisher
	metrics   *metrics.Metrics
	clock     func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	quit     chan struct{}
	quitOnce sync.Once
}

func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("engine requires an intent registry")
	}
	if opts.Policy == nil {
		return nil, errors.New("engine requires a dispatch policy")
	}
	if opts.Sender == nil {
		return nil, errors.New("engine requires a sender")
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		registry:  opts.Registry,
		policy:    opts.Policy,
		sender:    opts.Sender,
		threshold: opts.Threshold,
		journal:   opts.Journal,
		events:    opts.Events,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		logger:    log.WithComponent("engine"),
		quit:      make(chan struct{}),
	}, nil
}

// Quit is closed the first time any source delivers a QUIT command.
func (e *Engine) Quit() <-chan struct{} {
	return e.quit
}

// State returns the current debounce and posture state.
func (e *Engine) State() policy.State {
	return e.policy.Snapshot()
}

// Threshold is the minimum best score for a menu intent.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Handle processes one transcript. Calls are serialized.
func (e *Engine) Handle(ctx context.Context, t transcript.Transcript) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := Outcome{
		UtteranceID: t.ID,
		Source:      t.Source,
		Text:        t.Text,
		Final:       t.Final,
		Posture:     e.policy.Posture(),
	}

	if !t.Final {
		e.observePartial(t)
		return out
	}

	logger := e.logger.With("utterance_id", t.ID, "source", t.Source)
	now := e.clock()
	out.Normalized = transcript.Normalize(t.Text)

	switch {
	case out.Normalized == "":
		out.Decision = policy.Decision{Reason: policy.ReasonNoMatch}
	default:
		if code, ok := e.registry.Trigger(out.Normalized); ok {
			e.handleTrigger(ctx, code, now, &out)
		} else {
			e.handleMenu(ctx, now, &out)
		}
	}
	out.Posture = e.policy.Posture()

	e.report(ctx, logger, t, now, out)
	return out
}

func (e *Engine) handleTrigger(ctx context.Context, code intent.ActionCode, now time.Time, out *Outcome) {
	out.Best = intent.Candidate{Code: code}
	if code == intent.ActionQuit {
		out.Quit = true
		out.Decision = policy.Decision{
			Accepted: true,
			Intent:   intent.ActionQuit,
			Action:   intent.ActionQuit,
			Reason:   policy.ReasonQuit,
		}
		e.quitOnce.Do(func() { close(e.quit) })
		return
	}

	out.Decision = e.policy.Resolve(out.Best, now)
	if out.Decision.Accepted {
		e.send(ctx, out)
	}
}

func (e *Engine) handleMenu(ctx context.Context, now time.Time, out *Outcome) {
	out.Scores = e.registry.Score(out.Normalized)
	best, ok := intent.Select(out.Scores, e.threshold)
	out.Best = best

	switch {
	case len(out.Scores) == 0:
		out.Decision = policy.Decision{Reason: policy.ReasonNoMatch}
	case !ok:
		out.Decision = policy.Decision{Intent: best.Code, Reason: policy.ReasonBelowThreshold}
	default:
		out.Decision = e.policy.Resolve(best, now)
		if out.Decision.Accepted {
			e.send(ctx, out)
		}
	}
}

func (e *Engine) send(ctx context.Context, out *Outcome) {
	var err error
	if out.Decision.Action == intent.ActionGo {
		err = e.sender.SendGo(ctx)
	} else {
		err = e.sender.Send(ctx, out.Decision.Action)
	}

	if err != nil {
		out.Decision.Reason = policy.ReasonSendFailed
		out.Error = err.Error()
		if e.metrics != nil {
			e.metrics.ObserveSendFailure()
		}
		return
	}

	out.Sent = true
	e.policy.Confirm(out.Decision)
	if e.metrics != nil {
		e.metrics.ObserveSent(out.Decision.Action)
	}
}

func (e *Engine) observePartial(t transcript.Transcript) {
	e.logger.Debug("partial transcript", "utterance_id", t.ID, "text", t.Text)
	if e.metrics != nil {
		e.metrics.ObserveUtterance(false)
	}
	if e.events != nil {
		e.events.Publish(events.TypeUtterancePartial, t)
	}
}

// report writes exactly one log line, journal entry, event and metrics
// update for a final transcript.
func (e *Engine) report(ctx context.Context, logger *slog.Logger, t transcript.Transcript, now time.Time, out Outcome) {
	d := out.Decision
	attrs := []any{
		"text", out.Text,
		"normalized", out.Normalized,
		"intent", d.Intent.String(),
		"action", d.Action.String(),
		"score", out.Best.Score,
		"reason", string(d.Reason),
		"posture", out.Posture.String(),
	}
	switch {
	case d.Reason == policy.ReasonSendFailed:
		logger.Warn("dispatch failed", append(attrs, "error", out.Error)...)
	case out.Sent:
		logger.Info("dispatched", attrs...)
	case out.Quit:
		logger.Info("quit requested", attrs...)
	default:
		logger.Info("not dispatched", attrs...)
	}

	if e.metrics != nil {
		e.metrics.ObserveUtterance(true)
		lag := time.Duration(-1)
		if !t.Timestamp.IsZero() {
			lag = e.clock().Sub(t.Timestamp)
		}
		e.metrics.ObserveDecision(d, out.Best.Score, lag)
		e.metrics.SetPosture(out.Posture)
	}

	if e.journal != nil {
		heard := t.Timestamp
		if heard.IsZero() {
			heard = now
		}
		rec := journal.Record{
			UtteranceID: out.UtteranceID,
			Source:      out.Source,
			Text:        out.Text,
			Normalized:  out.Normalized,
			Intent:      d.Intent,
			Action:      d.Action,
			Score:       out.Best.Score,
			Reason:      d.Reason,
			Accepted:    d.Accepted,
			Sent:        out.Sent,
			Posture:     out.Posture,
			Error:       out.Error,
			HeardAt:     heard,
			DecidedAt:   now,
		}
		if _, err := e.journal.Record(ctx, rec); err != nil {
			logger.Error("failed to journal decision", "error", err)
		}
	}

	if e.events != nil {
		e.events.Publish(events.TypeDispatch, out)
	}
}

// Run feeds src into Handle until the source ends, ctx is cancelled, or a
// QUIT command arrives (ErrQuit). A source ending cleanly returns nil.
func (e *Engine) Run(ctx context.Context, src asr.Source) error {
	for {
		t, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.logger.Info("transcript source ended")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read transcript: %w", err)
		}

		if out := e.Handle(ctx, t); out.Quit {
			return ErrQuit
		}
	}
}
