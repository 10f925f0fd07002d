// Package transcript defines recognized-speech values and the text
// normalization applied before intent matching.
package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Transcript is one unit of recognized speech. Only final transcripts are
// ever dispatched; partials are observational.
type Transcript struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Final     bool      `json:"final"`
	Source    string    `json:"source"`
}

// NewFinal builds a final transcript with a fresh ID.
func NewFinal(source, text string, at time.Time) Transcript {
	return Transcript{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: at,
		Final:     true,
		Source:    source,
	}
}

// NewPartial builds a partial (in-progress) transcript with a fresh ID.
func NewPartial(source, text string, at time.Time) Transcript {
	t := NewFinal(source, text, at)
	t.Final = false
	return t
}
