// Package behavior defines the closed set of behaviors an agent can occupy.
//
// Every arm separates identity (its Key) from mutable state (its State
// sub-record). Two behaviors are "the same ongoing behavior" exactly when
// their keys are equal; state never takes part in that comparison.
package behavior

import (
	"fmt"

	"github.com/talgya/swift-dreams/internal/world"
)

// Kind is the variant discriminant.
type Kind uint8

const (
	KindIdle Kind = iota
	KindWalkTo
	KindUseDestination
	KindSleep
	KindAwaken
)

var kindNames = [...]string{
	KindIdle:           "idle",
	KindWalkTo:         "walk_to",
	KindUseDestination: "use_destination",
	KindSleep:          "sleep",
	KindAwaken:         "awaken",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Key is the identity sub-record of a behavior. It is comparable.
type Key struct {
	Kind Kind          `json:"kind"`
	Dest world.DestRef `json:"dest"`
}

func (k Key) String() string {
	if k.Dest.ID == 0 {
		return k.Kind.String()
	}
	return fmt.Sprintf("%s(%s#%d)", k.Kind, k.Dest.Kind, k.Dest.ID)
}

// Behavior is one arm of the variant. Arms are pointers so the owning actor
// can mutate state in place.
type Behavior interface {
	Key() Key
	sealed()
}

// Idle is the fallback floor.
type Idle struct{}

// WalkTo travels toward a destination.
type WalkTo struct {
	Dest world.DestRef
}

// UseDestination is the arrived-at-destination behavior. For a bed it is the
// jump onto the mattress; for a desk it is scribing.
type UseDestination struct {
	Dest  world.DestRef
	State UseState
}

// UseState is the destination-specific use progress.
type UseState struct {
	Timer float64 `json:"timer"` // Seconds left (desk)
	Done  bool    `json:"done"`  // Use completed; not re-proposed this tick
}

// Sleep occupies a bed through alternating non-REM and REM phases.
type Sleep struct {
	Bed   world.EntityID
	State SleepState
}

// SleepState tracks the two-phase sleep cycle.
type SleepState struct {
	IsREM    bool    `json:"is_rem"`
	Progress float64 `json:"progress"` // [0, 1) within the current phase
}

// Awaken is the dazed period after leaving a bed.
type Awaken struct {
	State AwakenState
}

// AwakenState holds the wake timer and how the agent got here.
type AwakenState struct {
	FromREM     bool           `json:"from_rem"`
	Timer       float64        `json:"timer"` // Seconds left
	Bed         world.EntityID `json:"bed"`   // Bed the agent woke in
	Interrupted bool           `json:"interrupted"`
	Launched    bool           `json:"launched"` // Knock-off dash already issued
}

func (*Idle) Key() Key { return Key{Kind: KindIdle} }
func (b *WalkTo) Key() Key {
	return Key{Kind: KindWalkTo, Dest: b.Dest}
}
func (b *UseDestination) Key() Key {
	return Key{Kind: KindUseDestination, Dest: b.Dest}
}
func (b *Sleep) Key() Key {
	return Key{Kind: KindSleep, Dest: world.DestRef{Kind: world.DestBed, ID: b.Bed}}
}
func (*Awaken) Key() Key { return Key{Kind: KindAwaken} }

func (*Idle) sealed()           {}
func (*WalkTo) sealed()         {}
func (*UseDestination) sealed() {}
func (*Sleep) sealed()          {}
func (*Awaken) sealed()         {}

// Same reports whether a and b are the same ongoing behavior.
func Same(a, b Behavior) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

// Occupies returns the destination a behavior holds exclusively, if any.
// Walking toward a destination does not hold it.
func Occupies(b Behavior) (world.DestRef, bool) {
	switch b := b.(type) {
	case *UseDestination:
		return b.Dest, true
	case *Sleep:
		return world.DestRef{Kind: world.DestBed, ID: b.Bed}, true
	}
	return world.DestRef{}, false
}

// Advance moves the sleep cycle forward by inc. Crossing 1.0 wraps progress
// modulo 1 and flips the phase; it returns true when that happened.
// inc is expected to be below 1.
func (s *SleepState) Advance(inc float64) bool {
	if inc <= 0 {
		return false
	}
	s.Progress += inc
	if s.Progress < 1 {
		return false
	}
	s.Progress -= 1
	if s.Progress >= 1 {
		s.Progress = 0
	}
	s.IsREM = !s.IsREM
	return true
}
