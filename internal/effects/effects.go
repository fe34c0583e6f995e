// Package effects derives the cosmetic overlay each agent should show from
// its committed behavior, and reports when that overlay changes.
package effects

import (
	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/world"
)

// Kind is the overlay discriminant.
type Kind uint8

const (
	None     Kind = iota
	Zs            // Non-REM sleep
	Dream         // REM sleep
	Confused      // Dazed after waking
	Thinking      // Scribing at a desk
)

var kindNames = [...]string{
	None:     "none",
	Zs:       "zs",
	Dream:    "dream",
	Confused: "confused",
	Thinking: "thinking",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "none"
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name; unknown names read as None.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = None
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			break
		}
	}
	return nil
}

// Of returns the overlay for a committed behavior.
func Of(b behavior.Behavior) Kind {
	switch b := b.(type) {
	case *behavior.Sleep:
		if b.State.IsREM {
			return Dream
		}
		return Zs
	case *behavior.Awaken:
		return Confused
	case *behavior.UseDestination:
		if b.Dest.Kind == world.DestDesk && !b.State.Done {
			return Thinking
		}
	}
	return None
}

// Change is emitted when an agent's overlay differs from last tick's.
type Change struct {
	Agent agents.AgentID `json:"agent"`
	From  Kind           `json:"from"`
	To    Kind           `json:"to"`
}

// Tracker remembers the last overlay per agent.
type Tracker struct {
	last map[agents.AgentID]Kind
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[agents.AgentID]Kind)}
}

// Observe records the current overlays and returns those that changed.
// Agents seen for the first time only count as changed when not None.
// Agents missing from the batch are forgotten.
func (t *Tracker) Observe(batch []*agents.Agent) (map[agents.AgentID]Kind, []Change) {
	current := make(map[agents.AgentID]Kind, len(batch))
	var changes []Change
	for _, a := range batch {
		k := Of(a.Behavior())
		current[a.ID] = k
		if prev := t.last[a.ID]; prev != k {
			changes = append(changes, Change{Agent: a.ID, From: prev, To: k})
		}
	}
	t.last = current
	return current, changes
}

// Current returns the last observed overlay for id.
func (t *Tracker) Current(id agents.AgentID) Kind {
	return t.last[id]
}
