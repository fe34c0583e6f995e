// Advisor: the per-agent suggestion buffer and arbitration.
// Suggesters propose scored candidates during the suggest stage; Commit picks
// exactly one winner and decides whether the committed state carries over.
package agents

import (
	"math"

	"github.com/talgya/swift-dreams/internal/behavior"
)

// DefaultConsiderationDepth is the candidate capacity hint agents are seeded with.
const DefaultConsiderationDepth = 10.0

// Suggestion is one scored candidate, alive for a single tick.
type Suggestion struct {
	Score    float64
	Behavior behavior.Behavior
}

// CommitResult describes what a Commit did.
type CommitResult struct {
	Previous behavior.Key
	Current  behavior.Key
	Score    float64 // Winning score (undefined when Empty)
	Changed  bool    // A different key won; state was reinitialized
	Empty    bool    // No candidates; the previous behavior persists
}

// Advisor owns an agent's committed behavior and its candidate buffer.
type Advisor struct {
	active     behavior.Behavior
	candidates []Suggestion
}

// NewAdvisor creates an advisor seeded with Idle. depth is the consideration
// depth: how many candidates to make room for each tick.
func NewAdvisor(depth float64) *Advisor {
	if depth < 1 || math.IsNaN(depth) {
		depth = 1
	}
	return &Advisor{
		active:     &behavior.Idle{},
		candidates: make([]Suggestion, 0, int(depth)),
	}
}

// Suggest appends a candidate. Nil candidates and NaN scores never win, so
// they are dropped here.
func (a *Advisor) Suggest(score float64, candidate behavior.Behavior) {
	if candidate == nil || math.IsNaN(score) {
		return
	}
	a.candidates = append(a.candidates, Suggestion{Score: score, Behavior: candidate})
}

// Pending returns the number of candidates proposed so far this tick.
func (a *Advisor) Pending() int {
	return len(a.candidates)
}

// Commit selects the strictly highest-scoring candidate (first proposed wins
// ties) and clears the buffer. When the winner's key equals the active key,
// the active behavior and its state are kept untouched; otherwise the winner,
// carrying its declared initial state, replaces it.
func (a *Advisor) Commit() CommitResult {
	res := CommitResult{Previous: a.active.Key()}
	defer a.reset()

	if len(a.candidates) == 0 {
		res.Current = res.Previous
		res.Empty = true
		return res
	}

	best := 0
	for i := 1; i < len(a.candidates); i++ {
		if a.candidates[i].Score > a.candidates[best].Score {
			best = i
		}
	}
	winner := a.candidates[best]
	res.Score = winner.Score
	res.Current = winner.Behavior.Key()

	if res.Current == res.Previous {
		return res
	}
	a.active = winner.Behavior
	res.Changed = true
	return res
}

func (a *Advisor) reset() {
	clear(a.candidates)
	a.candidates = a.candidates[:0]
}

// Active returns the committed behavior. It is never nil.
func (a *Advisor) Active() behavior.Behavior {
	return a.active
}

// Restore replaces the committed behavior wholesale, state included. Used when
// loading a saved world; nil restores Idle.
func (a *Advisor) Restore(b behavior.Behavior) {
	if b == nil {
		b = &behavior.Idle{}
	}
	a.active = b
	a.reset()
}
