package engine

import (
	"log/slog"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/world"
)

// Occupancy maps each held destination to the agent holding it. It is rebuilt
// from committed behaviors once per tick and only read afterwards.
type Occupancy struct {
	holders map[world.EntityID]agents.AgentID
}

// BuildOccupancy derives occupancy from the agents' committed behaviors.
// When two agents hold the same destination the first in agent order keeps it.
func BuildOccupancy(list []*agents.Agent) Occupancy {
	o := Occupancy{holders: make(map[world.EntityID]agents.AgentID)}
	for _, a := range list {
		ref, ok := behavior.Occupies(a.Behavior())
		if !ok {
			continue
		}
		if prev, taken := o.holders[ref.ID]; taken {
			slog.Debug("duplicate destination claim", "dest", ref.ID, "holder", prev, "agent", a.ID)
			continue
		}
		o.holders[ref.ID] = a.ID
	}
	return o
}

// Holder returns the agent holding id, if any.
func (o Occupancy) Holder(id world.EntityID) (agents.AgentID, bool) {
	h, ok := o.holders[id]
	return h, ok
}

// HeldByOther reports whether id is held by someone other than agent.
func (o Occupancy) HeldByOther(id world.EntityID, agent agents.AgentID) bool {
	h, ok := o.holders[id]
	return ok && h != agent
}

// Len returns the number of held destinations.
func (o Occupancy) Len() int {
	return len(o.holders)
}
