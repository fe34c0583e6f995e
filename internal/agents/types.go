// Package agents provides the dweeb data model and the per-agent advisor that
// arbitrates between suggested behaviors.
package agents

import (
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/motion"
	"github.com/talgya/swift-dreams/internal/world"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Agent is a dweeb: one advisor, one body, one intent sink.
type Agent struct {
	ID   AgentID `json:"id"`
	Name string  `json:"name"`

	// Decision
	Advisor *Advisor `json:"-"`

	// Locomotion
	Body   motion.Body   `json:"body"`
	Intent motion.Intent `json:"intent"` // Written by the actor owning the committed behavior

	// Wakefulness counts down the seconds during which beds are ignored.
	Wakefulness float64 `json:"wakefulness"`

	// Interrupted is set by a strike on a sleeping agent and consumed when
	// the resulting Awaken commits.
	Interrupted bool `json:"interrupted,omitempty"`

	// Memory stream
	Memories []Memory `json:"memories,omitempty"`

	// Metadata
	SpawnTick uint64 `json:"spawn_tick"`
}

// New creates an agent at p with an advisor seeded with Idle.
func New(id AgentID, name string, p world.Vec3, depth float64) *Agent {
	return &Agent{
		ID:      id,
		Name:    name,
		Advisor: NewAdvisor(depth),
		Body:    motion.NewBody(p),
	}
}

// Behavior returns the committed behavior.
func (a *Agent) Behavior() behavior.Behavior {
	return a.Advisor.Active()
}

// Key returns the identity of the committed behavior.
func (a *Agent) Key() behavior.Key {
	return a.Advisor.Active().Key()
}

// Asleep reports whether the agent is committed to Sleep.
func (a *Agent) Asleep() bool {
	_, ok := a.Advisor.Active().(*behavior.Sleep)
	return ok
}

// Rested reports whether beds are attractive to the agent again.
func (a *Agent) Rested() bool {
	return a.Wakefulness <= 0
}

// Tire counts wakefulness down by dt seconds.
func (a *Agent) Tire(dt float64) {
	if a.Wakefulness <= 0 {
		return
	}
	a.Wakefulness -= dt
	if a.Wakefulness < 0 {
		a.Wakefulness = 0
	}
}
