package engine

import (
	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/effects"
	"github.com/talgya/swift-dreams/internal/motion"
	"github.com/talgya/swift-dreams/internal/score"
	"github.com/talgya/swift-dreams/internal/world"
)

// Frame is everything one tick produced, published to observers and the
// replay log.
type Frame struct {
	Tick         uint64              `json:"tick"`
	Time         float64             `json:"time"` // Seconds since tick 0
	Agents       []AgentFrame        `json:"agents"`
	Destinations []DestinationStatus `json:"destinations"`
	Transitions  []Transition        `json:"transitions,omitempty"`
	Effects      []effects.Change    `json:"effects,omitempty"`
	Events       []Event             `json:"events,omitempty"`
	ScoreDelta   int                 `json:"score_delta,omitempty"`
	Score        score.Snapshot      `json:"score"`
	RoundOver    bool                `json:"round_over,omitempty"`
}

// AgentFrame is one agent's state at the end of a tick.
type AgentFrame struct {
	ID          agents.AgentID    `json:"id"`
	Name        string            `json:"name"`
	Behavior    behavior.Envelope `json:"behavior"`
	Position    world.Vec3        `json:"position"`
	Facing      world.Vec3        `json:"facing"`
	Grounded    bool              `json:"grounded"`
	Support     world.EntityID    `json:"support,omitempty"`
	Intent      motion.Intent     `json:"intent"`
	Effect      effects.Kind      `json:"effect"`
	Wakefulness float64           `json:"wakefulness,omitempty"`
}

// Transition records a committed behavior changing identity.
type Transition struct {
	Agent agents.AgentID `json:"agent"`
	From  string         `json:"from"`
	To    string         `json:"to"`
}

func agentFrame(a *agents.Agent, effect effects.Kind) AgentFrame {
	env, _ := behavior.Wrap(a.Behavior())
	return AgentFrame{
		ID:          a.ID,
		Name:        a.Name,
		Behavior:    env,
		Position:    a.Body.Position,
		Facing:      a.Body.Facing,
		Grounded:    a.Body.Grounded,
		Support:     a.Body.Support,
		Intent:      a.Intent,
		Effect:      effect,
		Wakefulness: a.Wakefulness,
	}
}
