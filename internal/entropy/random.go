// Package entropy provides the seeded randomness behaviors draw from.
// Every (tick, agent, purpose) triple gets its own PCG stream derived from the
// run seed, so results never depend on the order goroutines draw in.
package entropy

import (
	"math/rand/v2"
)

// Stream names a purpose that draws randomness.
type Stream uint64

const (
	StreamSleep  Stream = iota + 1 // Sleep progress jitter
	StreamAwaken                   // Wake wait durations
	StreamWaker                    // Strike targeting in the waker
)

// Source derives reproducible per-agent generators from a run seed.
type Source struct {
	seed uint64
}

// NewSource creates a source for seed.
func NewSource(seed int64) *Source {
	return &Source{seed: uint64(seed)}
}

// Seed returns the run seed.
func (s *Source) Seed() int64 {
	return int64(s.seed)
}

// For returns a fresh generator for one agent's purpose on one tick.
func (s *Source) For(tick, agent uint64, stream Stream) *rand.Rand {
	hi := mix(s.seed ^ mix(tick))
	lo := mix(agent ^ mix(uint64(stream)<<32^s.seed))
	return rand.New(rand.NewPCG(hi, lo))
}

// Float returns a single draw in [0, 1) for (tick, agent, stream).
func (s *Source) Float(tick, agent uint64, stream Stream) float64 {
	return s.For(tick, agent, stream).Float64()
}

// Between returns a uniform draw in [lo, hi).
func Between(r *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
