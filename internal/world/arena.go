package world

import (
	"fmt"
	"sort"
)

// EntityID identifies anything that lives in the arena. Zero means "none".
type EntityID uint64

// DestinationKind enumerates the scarce shared resources agents compete for.
type DestinationKind uint8

const (
	DestBed  DestinationKind = iota + 1 // Sleep surface
	DestDesk                            // Work station
)

// String returns the lowercase kind name used in logs and the API.
func (k DestinationKind) String() string {
	switch k {
	case DestBed:
		return "bed"
	case DestDesk:
		return "desk"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DestinationKinds lists every kind in evaluation order.
var DestinationKinds = [...]DestinationKind{DestBed, DestDesk}

// ParseDestinationKind is the inverse of DestinationKind.String.
func ParseDestinationKind(s string) (DestinationKind, bool) {
	for _, k := range DestinationKinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// DestRef is a kind-qualified reference to a destination.
type DestRef struct {
	Kind DestinationKind `json:"kind"`
	ID   EntityID        `json:"id"`
}

// Destination is a passive point of interest. Occupancy is not stored here;
// it is derived every tick from the agents' committed behaviors.
type Destination struct {
	ID       EntityID        `json:"id"`
	Kind     DestinationKind `json:"kind"`
	Position Vec3            `json:"position"`
	Forward  Vec3            `json:"forward"`

	// Horizontal half extents of the footprint (X, Z) and surface height (Y)
	// above the floor.
	HalfExtents Vec3 `json:"half_extents"`
}

// Ref returns the kind-qualified reference.
func (d *Destination) Ref() DestRef {
	return DestRef{Kind: d.Kind, ID: d.ID}
}

// Contains reports whether p lies over the footprint (horizontal only).
func (d *Destination) Contains(p Vec3) bool {
	dx := p.X - d.Position.X
	dz := p.Z - d.Position.Z
	if dx < 0 {
		dx = -dx
	}
	if dz < 0 {
		dz = -dz
	}
	return dx <= d.HalfExtents.X && dz <= d.HalfExtents.Z
}

// Default footprints.
var (
	BedHalfExtents  = Vec3{X: 0.5, Y: 0.7, Z: 1.0}
	DeskHalfExtents = Vec3{X: 1.0, Y: 1.0, Z: 0.4}
)

// Arena holds every live destination.
type Arena struct {
	Size         float64                   `json:"size"` // Half-width of the square floor
	Destinations map[EntityID]*Destination `json:"-"`

	nextID EntityID
}

// NewArena creates an empty arena. Entity IDs start above idBase so they never
// collide with agent IDs handed out by the spawner.
func NewArena(size float64) *Arena {
	return &Arena{
		Size:         size,
		Destinations: make(map[EntityID]*Destination),
		nextID:       idBase,
	}
}

// idBase separates destination IDs from agent IDs.
const idBase EntityID = 1 << 32

// Add registers a destination, assigning an ID when it has none.
func (a *Arena) Add(d *Destination) *Destination {
	if d.ID == 0 {
		d.ID = a.nextID
		a.nextID++
	} else if d.ID >= a.nextID {
		a.nextID = d.ID + 1
	}
	a.Destinations[d.ID] = d
	return d
}

// Remove deletes a destination. Behaviors that still reference it become
// dangling and are skipped by their actors.
func (a *Arena) Remove(id EntityID) bool {
	if _, ok := a.Destinations[id]; !ok {
		return false
	}
	delete(a.Destinations, id)
	return true
}

// Get returns the destination with the given ID, or nil.
func (a *Arena) Get(id EntityID) *Destination {
	return a.Destinations[id]
}

// Resolve returns the destination only if it still exists with the expected kind.
func (a *Arena) Resolve(ref DestRef) *Destination {
	d := a.Destinations[ref.ID]
	if d == nil || d.Kind != ref.Kind {
		return nil
	}
	return d
}

// OfKind returns the live destinations of one kind ordered by ID.
func (a *Arena) OfKind(kind DestinationKind) []*Destination {
	var out []*Destination
	for _, d := range a.Destinations {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SupportAt returns the bed whose footprint lies under p, or nil.
func (a *Arena) SupportAt(p Vec3) *Destination {
	var best *Destination
	for _, d := range a.Destinations {
		if d.Kind != DestBed || !d.Contains(p) {
			continue
		}
		if best == nil || d.ID < best.ID {
			best = d
		}
	}
	return best
}

// InBounds reports whether p lies on the floor.
func (a *Arena) InBounds(p Vec3) bool {
	return p.X >= -a.Size && p.X <= a.Size && p.Z >= -a.Size && p.Z <= a.Size
}

// String returns a summary of the arena.
func (a *Arena) String() string {
	return fmt.Sprintf("Arena(size=%.0f, beds=%d, desks=%d)",
		a.Size, len(a.OfKind(DestBed)), len(a.OfKind(DestDesk)))
}
