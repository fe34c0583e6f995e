// Destination assignment: turns the closeness of eligible agents to each
// live destination into WalkTo and UseDestination proposals, without two
// agents converging on one target or contending with a current user.
package engine

import (
	"context"
	"encoding/json"
	"math"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/config"
	"github.com/talgya/swift-dreams/internal/world"
)

// DestinationPolicy is the assignment policy for one destination kind.
type DestinationPolicy struct {
	Kind world.DestinationKind
	config.DestinationConfig

	// RequireRested limits claimants to agents whose wakefulness has run out.
	RequireRested bool
}

// BedPolicy returns the policy for beds.
func BedPolicy(cfg config.DestinationConfig) *DestinationPolicy {
	return &DestinationPolicy{Kind: world.DestBed, DestinationConfig: cfg, RequireRested: true}
}

// DeskPolicy returns the policy for desks.
func DeskPolicy(cfg config.DestinationConfig) *DestinationPolicy {
	return &DestinationPolicy{Kind: world.DestDesk, DestinationConfig: cfg}
}

// minDistSq keeps demand finite for an agent standing on the target point.
const minDistSq = 1e-6

// DestinationStatus is the per-tick assignment picture of one destination.
type DestinationStatus struct {
	ID       world.EntityID        `json:"id"`
	Kind     world.DestinationKind `json:"kind"`
	Position world.Vec3            `json:"position"` // Kind-specific target point

	Holder agents.AgentID `json:"holder,omitempty"` // Occupant, zero when free

	Closest       agents.AgentID `json:"closest,omitempty"` // Closest eligible claimant
	ClosestDistSq float64        `json:"-"`                 // +Inf when unclaimed
	Demand        float64        `json:"demand"`            // Σ 1/d² over eligible claimants
}

// MarshalJSON renders an unclaimed destination without a distance, since
// JSON has no infinity.
func (st DestinationStatus) MarshalJSON() ([]byte, error) {
	type plain DestinationStatus
	out := struct {
		plain
		ClosestDistSq *float64 `json:"closest_dist_sq,omitempty"`
	}{plain: plain(st)}
	if st.Claimed() {
		d := st.ClosestDistSq
		out.ClosestDistSq = &d
	}
	return json.Marshal(out)
}

// Claimed reports whether any eligible agent is a claimant.
func (st DestinationStatus) Claimed() bool {
	return st.Closest != 0
}

// Name implements Suggester.
func (p *DestinationPolicy) Name() string {
	return p.Kind.String() + "_assignment"
}

// Target returns the point agents aim for: the centre for beds, the working
// point in front of a desk.
func (p *DestinationPolicy) Target(d *world.Destination) world.Vec3 {
	if p.WorkOffset == 0 {
		return d.Position
	}
	return d.Position.Add(d.Forward.Flat().NormalizeOrZero().Scale(p.WorkOffset))
}

// InitialState is the use state a fresh UseDestination starts with.
func (p *DestinationPolicy) InitialState() behavior.UseState {
	return behavior.UseState{Timer: p.ScribeSeconds}
}

// claimant reports whether a may consider destinations of this kind. A
// non-zero own limits it to the destination it is already using.
func (p *DestinationPolicy) claimant(a *agents.Agent) (own world.EntityID, ok bool) {
	if p.RequireRested && !a.Rested() {
		return 0, false
	}
	switch b := a.Behavior().(type) {
	case *behavior.Idle:
		return 0, true
	case *behavior.WalkTo:
		return 0, b.Dest.Kind == p.Kind
	case *behavior.UseDestination:
		if b.Dest.Kind != p.Kind {
			return 0, false
		}
		return b.Dest.ID, true
	}
	return 0, false
}

// Statuses computes the status of every live destination of the policy's kind,
// ordered by ID. An occupied destination only counts its occupant as a claimant.
func (p *DestinationPolicy) Statuses(v *View) []DestinationStatus {
	dests := v.Arena.OfKind(p.Kind)
	if len(dests) == 0 {
		return nil
	}
	statuses := make([]DestinationStatus, len(dests))
	for i, d := range dests {
		st := DestinationStatus{
			ID:            d.ID,
			Kind:          d.Kind,
			Position:      p.Target(d),
			ClosestDistSq: math.Inf(1),
		}
		if h, ok := v.Occupancy.Holder(d.ID); ok {
			st.Holder = h
		}
		statuses[i] = st
	}

	for _, a := range v.Agents {
		own, ok := p.claimant(a)
		if !ok {
			continue
		}
		for i := range statuses {
			st := &statuses[i]
			if !p.considers(st, a.ID, own) {
				continue
			}
			d2 := world.FlatDistanceSquared(a.Body.Position, st.Position)
			if d2 < st.ClosestDistSq {
				st.Closest = a.ID
				st.ClosestDistSq = d2
			}
			st.Demand += 1 / math.Max(d2, minDistSq)
		}
	}
	return statuses
}

func (p *DestinationPolicy) considers(st *DestinationStatus, agent agents.AgentID, own world.EntityID) bool {
	if st.Holder != 0 && st.Holder != agent {
		return false
	}
	return own == 0 || own == st.ID
}

// Suggest implements Suggester.
func (p *DestinationPolicy) Suggest(ctx context.Context, v *View) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	statuses := p.Statuses(v)
	batch := Batch{Statuses: statuses}
	if len(statuses) == 0 {
		return batch, nil
	}

	target2 := p.TargetRadius * p.TargetRadius
	claim2 := p.ClaimRadius * p.ClaimRadius
	urgency := p.UrgencyNumerator * p.UrgencyNumerator

	for i, a := range v.Agents {
		own, ok := p.claimant(a)
		if !ok {
			continue
		}
		for si := range statuses {
			st := &statuses[si]
			if !p.considers(st, a.ID, own) || p.spent(a, st.ID) {
				continue
			}
			if st.Closest != a.ID && st.ClosestDistSq < claim2 {
				continue
			}
			ref := world.DestRef{Kind: p.Kind, ID: st.ID}
			d2 := world.FlatDistanceSquared(a.Body.Position, st.Position)
			if d2 >= target2 {
				batch.add(i, urgency/d2, &behavior.WalkTo{Dest: ref})
			} else {
				batch.add(i, p.UseScore, &behavior.UseDestination{Dest: ref, State: p.InitialState()})
			}
		}
	}
	return batch, nil
}

// spent reports whether a just finished using id; it is not re-proposed
// on the tick the use completed.
func (p *DestinationPolicy) spent(a *agents.Agent, id world.EntityID) bool {
	u, ok := a.Behavior().(*behavior.UseDestination)
	return ok && u.Dest.ID == id && u.State.Done
}
