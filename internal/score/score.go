// Package score keeps the player's score and the round clock.
package score

import "sync"

// DefaultRoundSeconds is the length of a round.
const DefaultRoundSeconds = 60.0

// Keeper counts score increments against a round timer.
type Keeper struct {
	mu        sync.Mutex
	score     int
	round     float64
	remaining float64
	finished  bool
}

// NewKeeper starts a round of the given length. Zero or negative lengths
// make an endless round.
func NewKeeper(roundSeconds float64) *Keeper {
	return &Keeper{round: roundSeconds, remaining: roundSeconds}
}

// Increase adds n to the score. Increments after the round ended are dropped.
func (k *Keeper) Increase(n int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.finished {
		return
	}
	k.score += n
}

// Tick advances the round clock by dt and reports whether the round has
// just finished on this call.
func (k *Keeper) Tick(dt float64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.finished || k.round <= 0 {
		return false
	}
	k.remaining -= dt
	if k.remaining > 0 {
		return false
	}
	k.remaining = 0
	k.finished = true
	return true
}

// Restart zeroes the score and rewinds the clock.
func (k *Keeper) Restart() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.score = 0
	k.remaining = k.round
	k.finished = false
}

// Restore resumes a saved round.
func (k *Keeper) Restore(score int, remaining float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.score = score
	k.remaining = remaining
	k.finished = k.round > 0 && remaining <= 0
}

// Snapshot is the score state at an instant.
type Snapshot struct {
	Score     int     `json:"score"`
	Remaining float64 `json:"remaining"`
	Finished  bool    `json:"finished"`
}

// Snapshot returns the current score state.
func (k *Keeper) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Snapshot{Score: k.score, Remaining: k.remaining, Finished: k.finished}
}
