// Package intent holds the closed-vocabulary intent registry: weighted
// pattern rules per action code, scored against normalized transcripts.
package intent

import "fmt"

// ActionCode identifies one executor menu entry (1..13) or a control signal.
type ActionCode int

// Menu entries understood by the go2_motion executor.
const (
	ActionNone    ActionCode = 0
	StandUp       ActionCode = 1
	StandDown     ActionCode = 2
	Sit           ActionCode = 3
	RiseSit       ActionCode = 4
	BalanceStand  ActionCode = 5
	RecoveryStand ActionCode = 6
	StopMove      ActionCode = 7
	Hello         ActionCode = 8
	Stretch       ActionCode = 9
	Content       ActionCode = 10
	Heart         ActionCode = 11
	Scrape        ActionCode = 12
	FrontJump     ActionCode = 13
)

// Control signals. They never appear on the executor menu.
const (
	ActionQuit ActionCode = 100
	ActionGo   ActionCode = 101
)

const (
	minMenuCode = StandUp
	maxMenuCode = FrontJump
)

var actionNames = map[ActionCode]string{
	StandUp:       "StandUp",
	StandDown:     "StandDown",
	Sit:           "Sit",
	RiseSit:       "RiseSit",
	BalanceStand:  "BalanceStand",
	RecoveryStand: "RecoveryStand",
	StopMove:      "StopMove",
	Hello:         "Hello",
	Stretch:       "Stretch",
	Content:       "Content",
	Heart:         "Heart",
	Scrape:        "Scrape",
	FrontJump:     "FrontJump",
	ActionQuit:    "QUIT",
	ActionGo:      "GO",
}

// IsMenu reports whether c is one of the 13 numbered executor actions.
func (c ActionCode) IsMenu() bool {
	return c >= minMenuCode && c <= maxMenuCode
}

// IsControl reports whether c is QUIT or GO.
func (c ActionCode) IsControl() bool {
	return c == ActionQuit || c == ActionGo
}

// Valid reports whether c belongs to the closed action code space.
func (c ActionCode) Valid() bool {
	return c.IsMenu() || c.IsControl()
}

func (c ActionCode) String() string {
	if name, ok := actionNames[c]; ok {
		return name
	}
	if c == ActionNone {
		return "none"
	}
	return fmt.Sprintf("ActionCode(%d)", int(c))
}

// MenuCodes returns 1..13 in ascending order.
func MenuCodes() []ActionCode {
	out := make([]ActionCode, 0, int(maxMenuCode))
	for c := minMenuCode; c <= maxMenuCode; c++ {
		out = append(out, c)
	}
	return out
}
