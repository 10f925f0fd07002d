package engine

import (
	"context"

	"github.com/mattjoyce/go2voice/internal/events"
	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/journal"
)

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks github.com/mattjoyce/go2voice/internal/engine Sender

// Sender delivers protocol lines to the executor. *executor.Controller
// satisfies it.
type Sender interface {
	Send(ctx context.Context, code intent.ActionCode) error
	SendGo(ctx context.Context) error
}

// Recorder persists decisions. *journal.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, r journal.Record) (int64, error)
}

// Publisher fans decisions out to observers. *events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any) events.Event
}
