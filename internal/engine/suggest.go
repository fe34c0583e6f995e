// Suggesters: one per behavior family. Each reads the tick's view and returns
// its own batch of proposals; nothing here mutates agents.
package engine

import (
	"context"
	"math"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/config"
	"github.com/talgya/swift-dreams/internal/entropy"
	"github.com/talgya/swift-dreams/internal/world"
)

// View is the read-only world state handed to every suggester for one tick.
type View struct {
	Tick      uint64
	DT        float64
	Arena     *world.Arena
	Agents    []*agents.Agent // Agent order: ascending ID
	Occupancy Occupancy
	Entropy   *entropy.Source
}

// Proposal is one scored candidate for the agent at Agent in View.Agents.
type Proposal struct {
	Agent    int
	Score    float64
	Behavior behavior.Behavior
}

// Batch is what one suggester produced in one tick.
type Batch struct {
	Proposals []Proposal
	Statuses  []DestinationStatus // Assignment policies only
}

func (b *Batch) add(agent int, score float64, candidate behavior.Behavior) {
	b.Proposals = append(b.Proposals, Proposal{Agent: agent, Score: score, Behavior: candidate})
}

// Suggester proposes candidates for one behavior family.
type Suggester interface {
	Name() string
	Suggest(ctx context.Context, v *View) (Batch, error)
}

// IdleSuggester proposes the Idle floor for every agent.
type IdleSuggester struct{}

func (IdleSuggester) Name() string { return "idle" }

func (IdleSuggester) Suggest(ctx context.Context, v *View) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	var b Batch
	b.Proposals = make([]Proposal, 0, len(v.Agents))
	for i := range v.Agents {
		b.add(i, 0, &behavior.Idle{})
	}
	return b, nil
}

// SleepSuggester proposes Sleep to agents standing on a free bed.
type SleepSuggester struct {
	Score float64
}

func (s *SleepSuggester) Name() string { return "sleep" }

func (s *SleepSuggester) Suggest(ctx context.Context, v *View) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	var b Batch
	landed := make(map[world.EntityID]agents.AgentID)
	for i, a := range v.Agents {
		if !a.Body.Grounded || a.Body.Support == 0 || !a.Rested() {
			continue
		}
		bed := v.Arena.Resolve(world.DestRef{Kind: world.DestBed, ID: a.Body.Support})
		if bed == nil || v.Occupancy.HeldByOther(bed.ID, a.ID) {
			continue
		}
		// Simultaneous landers: the first in agent order gets the bed.
		if first, ok := landed[bed.ID]; ok && first != a.ID {
			continue
		}
		landed[bed.ID] = a.ID
		b.add(i, s.Score, &behavior.Sleep{Bed: bed.ID})
	}
	return b, nil
}

// AwakenSuggester proposes waking to sleepers and keeps the dazed period
// going until its timer is spent.
type AwakenSuggester struct {
	SleepScore float64
	REMWait    [2]float64
	NREMWait   [2]float64
}

// NewAwakenSuggester builds the suggester from tuning.
func NewAwakenSuggester(sleep config.SleepConfig, awaken config.AwakenConfig) *AwakenSuggester {
	return &AwakenSuggester{SleepScore: sleep.Score, REMWait: awaken.REMWait, NREMWait: awaken.NREMWait}
}

func (s *AwakenSuggester) Name() string { return "awaken" }

// Hold is the score that keeps a pending wake just below Sleep, so a bed
// still under the agent can take it back.
func (s *AwakenSuggester) Hold() float64 {
	return s.SleepScore - 1
}

func (s *AwakenSuggester) Suggest(ctx context.Context, v *View) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	var b Batch
	for i, a := range v.Agents {
		switch cur := a.Behavior().(type) {
		case *behavior.Sleep:
			wait := s.NREMWait
			if cur.State.IsREM {
				wait = s.REMWait
			}
			rng := v.Entropy.For(v.Tick, uint64(a.ID), entropy.StreamAwaken)
			candidate := &behavior.Awaken{State: behavior.AwakenState{
				FromREM:     cur.State.IsREM,
				Timer:       entropy.Between(rng, wait[0], wait[1]),
				Bed:         cur.Bed,
				Interrupted: a.Interrupted,
			}}
			score := s.Hold()
			if a.Interrupted {
				score = math.Inf(1)
			}
			b.add(i, score, candidate)
		case *behavior.Awaken:
			if cur.State.Timer > 0 {
				b.add(i, s.Hold(), &behavior.Awaken{})
			} else {
				b.add(i, math.Inf(-1), &behavior.Awaken{})
			}
		}
	}
	return b, nil
}
