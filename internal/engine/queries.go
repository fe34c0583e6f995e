package engine

import (
	"fmt"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/effects"
	"github.com/talgya/swift-dreams/internal/score"
	"github.com/talgya/swift-dreams/internal/world"
)

// Status is the run summary served by the API.
type Status struct {
	RunID    string         `json:"run_id"`
	Seed     int64          `json:"seed"`
	Tick     uint64         `json:"tick"`
	Time     float64        `json:"time"`
	Agents   int            `json:"agents"`
	Asleep   int            `json:"asleep"`
	Beds     int            `json:"beds"`
	Desks    int            `json:"desks"`
	Occupied int            `json:"occupied"`
	Score    score.Snapshot `json:"score"`
}

// Status summarises the run.
func (s *Simulation) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		RunID:  s.RunID,
		Seed:   s.cfg.Seed,
		Tick:   s.LastTick,
		Time:   float64(s.LastTick) * s.dt,
		Agents: len(s.Agents),
		Score:  s.Score.Snapshot(),
	}
	for _, a := range s.Agents {
		if a.Asleep() {
			st.Asleep++
		}
	}
	counts := world.KindCounts(s.Arena)
	st.Beds = counts[world.DestBed]
	st.Desks = counts[world.DestDesk]
	st.Occupied = BuildOccupancy(s.Agents).Len()
	return st
}

// AgentFrames returns every agent's current state.
func (s *Simulation) AgentFrames() []AgentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AgentFrame, len(s.Agents))
	for i, a := range s.Agents {
		out[i] = agentFrame(a, effects.Of(a.Behavior()))
	}
	return out
}

// AgentDetail is one agent plus its memory stream.
type AgentDetail struct {
	AgentFrame
	Interrupted bool            `json:"interrupted,omitempty"`
	Memories    []agents.Memory `json:"memories"`
}

// Agent returns the detail view of one agent.
func (s *Simulation) Agent(id agents.AgentID) (AgentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.AgentIndex[id]
	if a == nil {
		return AgentDetail{}, fmt.Errorf("%w: %d", ErrAgentNotFound, id)
	}
	return AgentDetail{
		AgentFrame:  agentFrame(a, effects.Of(a.Behavior())),
		Interrupted: a.Interrupted,
		Memories:    a.Recall("", agents.JournalSize),
	}, nil
}

// AgentExport is a detached copy of one agent for storage.
type AgentExport struct {
	Agent    agents.Agent
	Behavior []byte // behavior.Encode output
}

// Export is a detached copy of the run for storage.
type Export struct {
	RunID        string
	Seed         int64
	Tick         uint64
	ArenaSize    float64
	Destinations []world.Destination
	Agents       []AgentExport
	Score        score.Snapshot
}

// Export copies the run state under the simulation lock.
func (s *Simulation) Export() (Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex := Export{
		RunID:     s.RunID,
		Seed:      s.cfg.Seed,
		Tick:      s.LastTick,
		ArenaSize: s.Arena.Size,
		Score:     s.Score.Snapshot(),
	}
	for _, kind := range world.DestinationKinds {
		for _, d := range s.Arena.OfKind(kind) {
			ex.Destinations = append(ex.Destinations, *d)
		}
	}
	for _, a := range s.Agents {
		raw, err := behavior.Encode(a.Behavior())
		if err != nil {
			return Export{}, fmt.Errorf("export agent %d: %w", a.ID, err)
		}
		cp := *a
		cp.Advisor = nil
		cp.Memories = append([]agents.Memory(nil), a.Memories...)
		ex.Agents = append(ex.Agents, AgentExport{Agent: cp, Behavior: raw})
	}
	return ex, nil
}
