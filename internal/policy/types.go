package policy

import (
	"time"

	"github.com/mattjoyce/go2voice/internal/intent"
)

// Posture is the coarse body state inferred from actions we have sent.
// There is no feedback channel from the robot.
type Posture int

const (
	PostureUnknown Posture = iota
	PostureSit
	PostureStand
)

func (p Posture) String() string {
	switch p {
	case PostureSit:
		return "sit"
	case PostureStand:
		return "stand"
	default:
		return "unknown"
	}
}

// MarshalText renders the posture by name in JSON and logs.
func (p Posture) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Posture) UnmarshalText(b []byte) error {
	*p = ParsePosture(string(b))
	return nil
}

// ParsePosture is the inverse of Posture.String. Unrecognized names map to
// PostureUnknown.
func ParsePosture(s string) Posture {
	switch s {
	case "sit":
		return PostureSit
	case "stand":
		return PostureStand
	default:
		return PostureUnknown
	}
}

// Reason explains a dispatch decision. Rejections are expected outcomes,
// not faults.
type Reason string

const (
	ReasonAccepted         Reason = "accepted"
	ReasonCooldown         Reason = "cooldown"
	ReasonRepeatSuppressed Reason = "repeat-suppressed"
	ReasonBelowThreshold   Reason = "below-threshold"
	ReasonNoMatch          Reason = "no-match"
	ReasonGoRateLimited    Reason = "go-rate-limited"
	ReasonSendFailed       Reason = "send-failed"
	ReasonQuit             Reason = "quit"
)

// Decision is the outcome of Resolve. Intent is the scored intent; Action is
// what should be sent after posture resolution.
type Decision struct {
	Accepted bool              `json:"accepted"`
	Intent   intent.ActionCode `json:"intent"`
	Action   intent.ActionCode `json:"action"`
	Reason   Reason            `json:"reason"`
}

// Config tunes debounce behavior.
type Config struct {
	// Cooldown is the global minimum gap between dispatches. Repeats of the
	// same intent are suppressed for twice this long.
	Cooldown time.Duration
	// GoMinInterval rate-limits the GO trigger independently. Zero disables it.
	GoMinInterval time.Duration
}

// State is a point-in-time copy of the policy's mutable state.
type State struct {
	Posture    Posture           `json:"posture"`
	LastFire   time.Time         `json:"last_fire"`
	LastIntent intent.ActionCode `json:"last_intent"`
}
