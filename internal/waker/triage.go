package waker

import (
	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/effects"
)

// Pressure levels, from most to least urgent.
const (
	LevelSnoring = "SNORING" // Every bed is taken
	LevelDrowsy  = "DROWSY"  // Some sleepers, beds still free
	LevelQuiet   = "QUIET"   // Nobody asleep
)

// Health holds signals derived from a Snapshot. It is deterministic and cheap.
type Health struct {
	Sleepers  []agents.AgentID // Asleep, in agent order
	Dreamers  []agents.AgentID // Subset of Sleepers in REM
	Dazed     int              // Currently awakening
	Beds      int
	FreeBeds  int
	Score     int
	RoundOver bool
	Level     string
}

// Triage computes Health from a snapshot.
func Triage(snap *Snapshot) *Health {
	h := &Health{
		Beds:      snap.Status.Beds,
		Score:     snap.Status.Score.Score,
		RoundOver: snap.Status.Score.Finished,
	}

	for _, a := range snap.Agents {
		switch a.Behavior.Kind {
		case behavior.KindSleep.String():
			h.Sleepers = append(h.Sleepers, a.ID)
			if a.Effect == effects.Dream {
				h.Dreamers = append(h.Dreamers, a.ID)
			}
		case behavior.KindAwaken.String():
			h.Dazed++
		}
	}

	h.FreeBeds = h.Beds - len(h.Sleepers)
	if h.FreeBeds < 0 {
		h.FreeBeds = 0
	}

	switch {
	case len(h.Sleepers) == 0:
		h.Level = LevelQuiet
	case h.FreeBeds == 0:
		h.Level = LevelSnoring
	default:
		h.Level = LevelDrowsy
	}
	return h
}
