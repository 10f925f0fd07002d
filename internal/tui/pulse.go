package tui

import (
	"strings"
	"time"
)

const pulseDots = 5

// Pulse lights up when speech arrives and fades over ten seconds, so an
// operator can tell at a glance whether the recognizer is hearing anything.
type Pulse struct {
	lit       int
	lastHeard time.Time
}

func (p *Pulse) Heard(at time.Time) {
	p.lit = pulseDots
	p.lastHeard = at
}

// Decay dims one dot per two seconds of silence.
func (p *Pulse) Decay(now time.Time) {
	if p.lit == 0 {
		return
	}
	elapsed := now.Sub(p.lastHeard)
	p.lit = max(0, pulseDots-int(elapsed/(2*time.Second)))
}

func (p Pulse) Lit() int { return p.lit }

func (p Pulse) LastHeard() time.Time { return p.lastHeard }

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for i := range pulseDots {
		if i < p.lit {
			b.WriteString(theme.PulseOn.Render("●"))
		} else {
			b.WriteString(theme.PulseOff.Render("○"))
		}
	}
	return b.String()
}
