// Package policy decides whether a scored intent becomes an action: debounce,
// repeat suppression, and posture-dependent remapping.
package policy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mattjoyce/go2voice/internal/intent"
)

// Policy owns debounce and posture state. Safe for concurrent use.
type Policy struct {
	cfg Config

	mu         sync.Mutex
	posture    Posture
	lastFire   time.Time
	lastIntent intent.ActionCode
	goLimiter  *rate.Limiter
}

// New creates a Policy with no dispatch history and unknown posture.
func New(cfg Config) *Policy {
	p := &Policy{cfg: cfg, lastIntent: intent.ActionNone}
	if cfg.GoMinInterval > 0 {
		p.goLimiter = rate.NewLimiter(rate.Every(cfg.GoMinInterval), 1)
	}
	return p
}

// Resolve evaluates a candidate at time now. Accepting a menu intent records
// it for debounce; posture is only changed later by Confirm.
func (p *Policy) Resolve(c intent.Candidate, now time.Time) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.Code == intent.ActionGo {
		// GO never touches menu debounce state or posture.
		if p.goLimiter != nil && !p.goLimiter.AllowN(now, 1) {
			return Decision{Intent: c.Code, Action: c.Code, Reason: ReasonGoRateLimited}
		}
		return Decision{Accepted: true, Intent: c.Code, Action: c.Code, Reason: ReasonAccepted}
	}

	if !c.Code.IsMenu() {
		return Decision{Intent: c.Code, Action: intent.ActionNone, Reason: ReasonNoMatch}
	}

	if !p.lastFire.IsZero() {
		elapsed := now.Sub(p.lastFire)
		if elapsed < p.cfg.Cooldown {
			return Decision{Intent: c.Code, Action: c.Code, Reason: ReasonCooldown}
		}
		if c.Code == p.lastIntent && elapsed < 2*p.cfg.Cooldown {
			return Decision{Intent: c.Code, Action: c.Code, Reason: ReasonRepeatSuppressed}
		}
	}

	action := c.Code
	if c.Code == intent.StandUp && p.posture == PostureSit {
		action = intent.RiseSit
	}

	if now.After(p.lastFire) {
		p.lastFire = now
	}
	p.lastIntent = c.Code

	return Decision{Accepted: true, Intent: c.Code, Action: action, Reason: ReasonAccepted}
}

// Confirm applies the posture effect of an accepted decision whose action
// was actually written to the executor. It reports whether posture changed.
func (p *Policy) Confirm(d Decision) (Posture, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !d.Accepted {
		return p.posture, false
	}
	next, ok := postureAfter(d.Action)
	if !ok || next == p.posture {
		return p.posture, false
	}
	p.posture = next
	return next, true
}

func postureAfter(action intent.ActionCode) (Posture, bool) {
	switch action {
	case intent.StandUp, intent.RiseSit, intent.BalanceStand, intent.RecoveryStand:
		return PostureStand, true
	case intent.Sit:
		return PostureSit, true
	}
	return PostureUnknown, false
}

// Posture returns the current tracked posture.
func (p *Policy) Posture() Posture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.posture
}

// Snapshot returns a copy of the mutable state.
func (p *Policy) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{Posture: p.posture, LastFire: p.lastFire, LastIntent: p.lastIntent}
}
