// Arena generation using layered simplex noise.
// A "calm" field decides where beds cluster (quiet corners) and where desks
// line up (busy middle ground); agent spawns fill what is left.
package world

import (
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds arena generation parameters.
type GenConfig struct {
	Size       float64 // Half-width of the floor
	Seed       int64   // Random seed (0 = random)
	Beds       int
	Desks      int
	Agents     int
	MinSpacing float64 // Minimum distance between any two placements
	GridStep   float64 // Candidate sampling resolution
}

// DefaultGenConfig returns the layout used by the demo level.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Size:       20,
		Seed:       0,
		Beds:       3,
		Desks:      3,
		Agents:     5,
		MinSpacing: 4,
		GridStep:   1,
	}
}

// SmallTestConfig returns a tiny arena for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Size:       8,
		Seed:       42,
		Beds:       1,
		Desks:      1,
		Agents:     2,
		MinSpacing: 3,
		GridStep:   1,
	}
}

// Layout is a generated arena plus agent spawn points.
type Layout struct {
	Arena  *Arena
	Spawns []Vec3
}

// Floor heights entities are pinned to.
const (
	BedHeight  = 2.0
	DeskHeight = 1.0
)

// Generate creates a complete arena. Placement may yield fewer entities than
// requested when the floor is too small for the spacing.
func Generate(cfg GenConfig) *Layout {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.GridStep <= 0 {
		cfg.GridStep = 1
	}

	calm := opensimplex.NewNormalized(seed)
	rng := rand.New(rand.NewSource(seed + 100))

	type scored struct {
		p     Vec3
		score float64
	}
	var candidates []scored

	// Keep a margin so footprints stay on the floor.
	margin := 2.0
	for x := -cfg.Size + margin; x <= cfg.Size-margin; x += cfg.GridStep {
		for z := -cfg.Size + margin; z <= cfg.Size-margin; z += cfg.GridStep {
			s := octaveNoise(calm, x, z, 3, 0.07, 0.5)
			candidates = append(candidates, scored{p: Vec3{X: x, Z: z}, score: s})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].p.X != candidates[j].p.X {
			return candidates[i].p.X < candidates[j].p.X
		}
		return candidates[i].p.Z < candidates[j].p.Z
	})

	var taken []Vec3
	free := func(p Vec3) bool {
		minSq := cfg.MinSpacing * cfg.MinSpacing
		for _, t := range taken {
			if FlatDistanceSquared(p, t) < minSq {
				return false
			}
		}
		return true
	}

	arena := NewArena(cfg.Size)

	// Beds: calmest cells first.
	for i := 0; i < len(candidates) && len(arena.OfKind(DestBed)) < cfg.Beds; i++ {
		p := candidates[i].p
		if !free(p) {
			continue
		}
		taken = append(taken, p)
		arena.Add(&Destination{
			Kind:        DestBed,
			Position:    Vec3{X: p.X, Y: BedHeight, Z: p.Z},
			Forward:     Vec3{Z: 1},
			HalfExtents: BedHalfExtents,
		})
	}

	// Desks: busiest cells first, facing the arena centre.
	for i := len(candidates) - 1; i >= 0 && len(arena.OfKind(DestDesk)) < cfg.Desks; i-- {
		p := candidates[i].p
		if !free(p) {
			continue
		}
		taken = append(taken, p)
		forward := p.Scale(-1).Flat().NormalizeOrZero()
		if forward.IsZero() {
			forward = Vec3{Z: 1}
		}
		arena.Add(&Destination{
			Kind:        DestDesk,
			Position:    Vec3{X: p.X, Y: DeskHeight, Z: p.Z},
			Forward:     forward,
			HalfExtents: DeskHalfExtents,
		})
	}

	// Spawns: random free cells from the middle band.
	var spawns []Vec3
	mid := candidates[len(candidates)/4 : len(candidates)*3/4]
	order := rng.Perm(len(mid))
	for _, idx := range order {
		if len(spawns) >= cfg.Agents {
			break
		}
		p := mid[idx].p
		if !free(p) {
			continue
		}
		taken = append(taken, p)
		spawns = append(spawns, Vec3{X: p.X, Z: p.Z})
	}

	return &Layout{Arena: arena, Spawns: spawns}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// KindCounts returns a summary of destinations per kind.
func KindCounts(a *Arena) map[DestinationKind]int {
	counts := make(map[DestinationKind]int)
	for _, d := range a.Destinations {
		counts[d.Kind]++
	}
	return counts
}

// Heading returns the yaw in degrees of a horizontal direction, 0 = +Z.
func Heading(dir Vec3) float64 {
	if dir.Flat().IsZero() {
		return 0
	}
	return math.Atan2(dir.X, dir.Z) * 180 / math.Pi
}
