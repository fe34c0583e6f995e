package waker

import (
	"fmt"
	"math/rand/v2"

	"github.com/talgya/swift-dreams/internal/agents"
)

// Actions a cycle can take.
const (
	ActionNone      = "none"
	ActionInterrupt = "interrupt"
)

// Strike chances per pressure level.
var strikeChance = map[string]float64{
	LevelSnoring: 1.0,
	LevelDrowsy:  0.5,
	LevelQuiet:   0,
}

// Decision is the waker's choice for one cycle.
type Decision struct {
	Action    string         `json:"action"`
	Agent     agents.AgentID `json:"agent,omitempty"`
	Rationale string         `json:"rationale"`
}

// Decide picks whom to strike. Dreamers are preferred since waking them is
// quicker, and the agent struck last cycle is skipped while others sleep.
func Decide(h *Health, mem *CycleMemory, rng *rand.Rand) *Decision {
	if h.RoundOver {
		return &Decision{Action: ActionNone, Rationale: "round is over"}
	}
	if len(h.Sleepers) == 0 {
		return &Decision{Action: ActionNone, Rationale: "nobody is asleep"}
	}
	if rng.Float64() >= strikeChance[h.Level] {
		return &Decision{Action: ActionNone, Rationale: fmt.Sprintf("%s: letting them sleep", h.Level)}
	}

	pool := h.Dreamers
	reason := "dreaming"
	if len(pool) == 0 {
		pool = h.Sleepers
		reason = "sleeping"
	}
	if last, ok := mem.LastStruck(); ok && len(pool) > 1 {
		filtered := make([]agents.AgentID, 0, len(pool))
		for _, id := range pool {
			if id != last {
				filtered = append(filtered, id)
			}
		}
		pool = filtered
	}

	target := pool[rng.IntN(len(pool))]
	return &Decision{
		Action:    ActionInterrupt,
		Agent:     target,
		Rationale: fmt.Sprintf("%s: agent %d is %s", h.Level, target, reason),
	}
}
