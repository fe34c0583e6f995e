// Actors: one per behavior, each guarded by the committed variant. An actor
// only touches its own agent: the intent, the committed behavior's state and
// the agent's wakefulness.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/config"
	"github.com/talgya/swift-dreams/internal/entropy"
	"github.com/talgya/swift-dreams/internal/motion"
	"github.com/talgya/swift-dreams/internal/world"
)

// Outcome is what an actor reports back besides the intent it wrote.
type Outcome struct {
	ScoreDelta int
	Skipped    bool   // Dangling reference; no command emitted
	Note       string // Notable moment for the memory stream and event log
	Category   string
}

// Actors dispatches the committed behavior of each agent to its actor.
type Actors struct {
	Walk    config.WalkConfig
	Sleep   config.SleepConfig
	Awaken  config.AwakenConfig
	Bed     *DestinationPolicy
	Desk    *DestinationPolicy
	Kin     *motion.Kinematic
	Entropy *entropy.Source
}

func (x *Actors) policy(kind world.DestinationKind) *DestinationPolicy {
	if kind == world.DestDesk {
		return x.Desk
	}
	return x.Bed
}

func (x *Actors) walk(dir world.Vec3) motion.Intent {
	return motion.Walk(dir, x.Walk.Speed, x.Walk.FloatHeight)
}

// Act runs the actor for a's committed behavior.
func (x *Actors) Act(a *agents.Agent, tick uint64, dt float64, arena *world.Arena) Outcome {
	a.Intent = motion.Intent{}

	switch b := a.Behavior().(type) {
	case *behavior.Idle:
		a.Intent = x.walk(world.Vec3{})
	case *behavior.WalkTo:
		return x.walkTo(a, b, arena)
	case *behavior.UseDestination:
		if b.Dest.Kind == world.DestDesk {
			return x.scribe(a, b, dt, arena)
		}
		return x.jumpOnBed(a, b, arena)
	case *behavior.Sleep:
		return x.sleep(a, b, tick, dt, arena)
	case *behavior.Awaken:
		return x.awaken(a, b, dt, arena)
	}
	return Outcome{}
}

func (x *Actors) walkTo(a *agents.Agent, b *behavior.WalkTo, arena *world.Arena) Outcome {
	d := arena.Resolve(b.Dest)
	if d == nil {
		return Outcome{Skipped: true}
	}
	target := x.policy(b.Dest.Kind).Target(d)
	a.Intent = x.walk(target.Sub(a.Body.Position))
	return Outcome{}
}

// jumpOnBed carries the agent onto the bed centre over exactly one jump's
// flight time.
func (x *Actors) jumpOnBed(a *agents.Agent, b *behavior.UseDestination, arena *world.Arena) Outcome {
	bed := arena.Resolve(b.Dest)
	if bed == nil {
		return Outcome{Skipped: true}
	}
	height := x.Bed.JumpHeight
	offset := bed.Position.Sub(a.Body.Position).Flat()
	flight := x.Kin.FlightTime(height, x.Kin.RestHeight(bed)-a.Body.Position.Y)

	in := motion.Intent{
		Emitted:        true,
		DesiredForward: offset.NormalizeOrZero(),
		FloatHeight:    x.Walk.FloatHeight,
		Action:         &motion.Action{Kind: motion.ActionJump, Height: height},
	}
	if flight > 0 {
		in.DesiredVelocity = offset.Scale(1 / flight)
	}
	a.Intent = in
	return Outcome{}
}

// scribe holds the agent at the working point facing the desk and runs the
// scribe timer. Expiry scores once and marks the use spent.
func (x *Actors) scribe(a *agents.Agent, b *behavior.UseDestination, dt float64, arena *world.Arena) Outcome {
	desk := arena.Resolve(b.Dest)
	if desk == nil {
		return Outcome{Skipped: true}
	}
	target := x.Desk.Target(desk)
	offset := target.Sub(a.Body.Position).Flat()
	vel := offset.Scale(1 / dt)
	if speed := vel.Length(); speed > x.Walk.Speed {
		vel = vel.Scale(x.Walk.Speed / speed)
	}
	a.Intent = motion.Intent{
		Emitted:         true,
		DesiredVelocity: vel,
		DesiredForward:  desk.Forward.Flat().Scale(-1).NormalizeOrZero(),
		FloatHeight:     x.Walk.FloatHeight,
	}

	if b.State.Done {
		return Outcome{}
	}
	b.State.Timer -= dt
	if b.State.Timer > 0 {
		return Outcome{}
	}
	b.State.Timer = 0
	b.State.Done = true
	return Outcome{
		ScoreDelta: 1,
		Note:       fmt.Sprintf("%s finished a page at desk %d", a.Name, desk.ID),
		Category:   "score",
	}
}

// sleep pulls the agent towards the middle of the bed and advances the
// sleep cycle by a jittered increment.
func (x *Actors) sleep(a *agents.Agent, b *behavior.Sleep, tick uint64, dt float64, arena *world.Arena) Outcome {
	bed := arena.Resolve(world.DestRef{Kind: world.DestBed, ID: b.Bed})
	if bed == nil {
		return Outcome{Skipped: true}
	}
	a.Intent = motion.Intent{
		Emitted:         true,
		DesiredVelocity: bed.Position.Sub(a.Body.Position).Flat().Scale(x.Sleep.PullSpeed),
		FloatHeight:     x.Walk.FloatHeight,
	}

	rate, jitter := x.Sleep.NREMRate, x.Sleep.NREMJitter
	if b.State.IsREM {
		rate, jitter = x.Sleep.REMRate, x.Sleep.REMJitter
	}
	r := x.Entropy.Float(tick, uint64(a.ID), entropy.StreamSleep)
	inc := math.Max(0, rate+jitter*(2*r-1)) * dt

	wasREM := b.State.IsREM
	if !b.State.Advance(inc) || wasREM {
		return Outcome{}
	}
	return Outcome{
		Note:     fmt.Sprintf("%s is dreaming", a.Name),
		Category: "sleep",
	}
}

// awaken holds the agent still while the wake timer runs. An interrupted
// agent is first knocked off its bed; expiry keeps it away from beds for a
// while.
func (x *Actors) awaken(a *agents.Agent, b *behavior.Awaken, dt float64, arena *world.Arena) Outcome {
	a.Intent = x.walk(world.Vec3{})

	if b.State.Interrupted && !b.State.Launched {
		b.State.Launched = true
		a.Intent.Action = &motion.Action{Kind: motion.ActionDash, Displacement: x.knock(a, b, arena)}
	}

	if b.State.Timer <= 0 {
		return Outcome{}
	}
	b.State.Timer -= dt
	if b.State.Timer > 0 {
		return Outcome{}
	}
	b.State.Timer = 0
	a.Wakefulness = x.Awaken.BedCooldown
	return Outcome{
		Note:     fmt.Sprintf("%s is wide awake", a.Name),
		Category: "wake",
	}
}

// knock returns the dash that throws the agent sideways off its bed.
func (x *Actors) knock(a *agents.Agent, b *behavior.Awaken, arena *world.Arena) world.Vec3 {
	dir := a.Body.Facing.Flat().NormalizeOrZero()
	if bed := arena.Resolve(world.DestRef{Kind: world.DestBed, ID: b.State.Bed}); bed != nil {
		fwd := bed.Forward.Flat().NormalizeOrZero()
		dir = world.Vec3{X: fwd.Z, Z: -fwd.X}
	}
	if dir.IsZero() {
		dir = world.Vec3{X: 1}
	}
	return dir.Scale(x.Awaken.KnockDistance)
}
