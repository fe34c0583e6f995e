// Package motion is the locomotion collaborator: the intents actors emit and a
// minimal kinematic integrator that turns them into movement.
// There is no collision and no pathfinding; bodies move straight at their
// desired velocity and only beds are solid enough to stand on.
package motion

import (
	"math"

	"github.com/talgya/swift-dreams/internal/world"
)

// Gravity is standard gravity in units per second squared.
const Gravity = 9.81

// ActionKind enumerates discrete action requests.
type ActionKind uint8

const (
	ActionJump ActionKind = iota + 1
	ActionDash
)

func (k ActionKind) String() string {
	switch k {
	case ActionJump:
		return "jump"
	case ActionDash:
		return "dash"
	default:
		return "none"
	}
}

// Action is an optional one-shot request attached to an intent.
type Action struct {
	Kind         ActionKind `json:"kind"`
	Height       float64    `json:"height,omitempty"`       // Jump apex above takeoff
	Displacement world.Vec3 `json:"displacement,omitempty"` // Dash offset
}

// Intent is what an actor asks of the body for one tick. The zero value has
// Emitted false, meaning the actor issued no command.
type Intent struct {
	Emitted         bool       `json:"emitted"`
	DesiredVelocity world.Vec3 `json:"desired_velocity"`
	DesiredForward  world.Vec3 `json:"desired_forward"`
	FloatHeight     float64    `json:"float_height"`
	Action          *Action    `json:"action,omitempty"`
}

// Walk builds a walking intent along direction at speed. A zero direction
// stands still; facing is left to the body.
func Walk(direction world.Vec3, speed, floatHeight float64) Intent {
	dir := direction.Flat().NormalizeOrZero()
	return Intent{
		Emitted:         true,
		DesiredVelocity: dir.Scale(speed),
		DesiredForward:  dir,
		FloatHeight:     floatHeight,
	}
}

// Body is the kinematic state of one agent.
type Body struct {
	Position world.Vec3     `json:"position"`
	Velocity world.Vec3     `json:"velocity"`
	Facing   world.Vec3     `json:"facing"`
	Grounded bool           `json:"grounded"`
	Support  world.EntityID `json:"support,omitempty"` // Bed underfoot, zero on the floor
}

// NewBody places a grounded body on the floor at p. Its height is set by
// Kinematic.Settle.
func NewBody(p world.Vec3) Body {
	return Body{
		Position: p,
		Facing:   world.Vec3{Z: 1},
		Grounded: true,
	}
}

// Kinematic integrates intents into bodies.
type Kinematic struct {
	Gravity     float64
	FloatHeight float64 // Rest height above the surface underfoot
}

// NewKinematic returns an integrator using standard gravity that floats
// bodies floatHeight above the surface.
func NewKinematic(floatHeight float64) *Kinematic {
	return &Kinematic{Gravity: Gravity, FloatHeight: floatHeight}
}

// Settle puts a body standing on the floor at the float height.
func (k *Kinematic) Settle(b *Body) {
	if b.Grounded && b.Support == 0 {
		b.Position.Y = k.FloatHeight
	}
}

// TakeoffSpeed returns the vertical speed that reaches height h.
func (k *Kinematic) TakeoffSpeed(h float64) float64 {
	if h <= 0 {
		return 0
	}
	return math.Sqrt(2 * k.Gravity * h)
}

// FlightTime returns how long a jump of apex height h takes to come down
// at rise units above takeoff. It returns 0 when the apex never reaches rise.
func (k *Kinematic) FlightTime(h, rise float64) float64 {
	v := k.TakeoffSpeed(h)
	disc := v*v - 2*k.Gravity*rise
	if v == 0 || disc < 0 {
		return 0
	}
	return (v + math.Sqrt(disc)) / k.Gravity
}

// RestHeight returns the height a body floats at over bed d.
func (k *Kinematic) RestHeight(d *world.Destination) float64 {
	return d.Position.Y + d.HalfExtents.Y + k.FloatHeight
}

// Integrate advances body by dt under intent. A grounded body follows the
// desired velocity; an airborne body keeps its launch velocity and falls.
// Landing over a bed from above makes that bed the support.
func (k *Kinematic) Integrate(b *Body, in Intent, dt float64, arena *world.Arena) {
	if dt <= 0 {
		return
	}

	if in.Emitted {
		if fwd := in.DesiredForward.Flat().NormalizeOrZero(); !fwd.IsZero() {
			b.Facing = fwd
		}
		if b.Grounded {
			b.Velocity = in.DesiredVelocity.Flat()
		}
		if in.Action != nil && b.Grounded {
			k.apply(b, *in.Action)
		}
	} else if b.Grounded {
		b.Velocity = world.Vec3{}
	}

	prevY := b.Position.Y
	b.Position = b.Position.Add(b.Velocity.Flat().Scale(dt))
	k.clamp(b, arena)

	// Walking off the edge of a bed.
	if b.Grounded && b.Support != 0 {
		if d := arena.Get(b.Support); d == nil || !d.Contains(b.Position) {
			b.Grounded = false
			b.Support = 0
			b.Velocity.Y = 0
		}
	}
	if b.Grounded {
		return
	}

	b.Velocity.Y -= k.Gravity * dt
	b.Position.Y += b.Velocity.Y * dt

	surface, support := k.surfaceUnder(b.Position, prevY, arena)
	if b.Velocity.Y <= 0 && b.Position.Y <= surface {
		b.Position.Y = surface
		b.Velocity = world.Vec3{}
		b.Grounded = true
		b.Support = support
	}
}

func (k *Kinematic) apply(b *Body, a Action) {
	switch a.Kind {
	case ActionJump:
		b.Velocity.Y = k.TakeoffSpeed(a.Height)
		b.Grounded = false
		b.Support = 0
	case ActionDash:
		b.Position = b.Position.Add(a.Displacement.Flat())
		b.Velocity = world.Vec3{}
		b.Grounded = false
		b.Support = 0
	}
}

// surfaceUnder returns the rest height at p for a body that was at prevY,
// plus the bed providing it. Bodies below a bed top pass under it.
func (k *Kinematic) surfaceUnder(p world.Vec3, prevY float64, arena *world.Arena) (float64, world.EntityID) {
	if bed := arena.SupportAt(p); bed != nil {
		if rest := k.RestHeight(bed); prevY >= rest {
			return rest, bed.ID
		}
	}
	return k.FloatHeight, 0
}

func (k *Kinematic) clamp(b *Body, arena *world.Arena) {
	s := arena.Size
	b.Position.X = math.Max(-s, math.Min(s, b.Position.X))
	b.Position.Z = math.Max(-s, math.Min(s, b.Position.Z))
}
