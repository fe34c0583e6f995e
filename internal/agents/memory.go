// Journal: a bounded per-agent record of notable moments (falling asleep,
// being struck awake, finishing a page at a desk). Weight comes from the
// moment's category so strikes outlive routine naps.
package agents

import "slices"

// JournalSize bounds every agent's journal.
const JournalSize = 32

// Memory is one journal entry.
type Memory struct {
	Tick     uint64  `json:"tick"`
	Category string  `json:"category"`
	Note     string  `json:"note"`
	Weight   float64 `json:"weight"`
}

var categoryWeight = map[string]float64{
	"strike": 1.0,
	"wake":   0.6,
	"sleep":  0.5,
	"score":  0.4,
}

// WeightOf returns how much a category matters. Unknown categories weigh 0.1.
func WeightOf(category string) float64 {
	if w, ok := categoryWeight[category]; ok {
		return w
	}
	return 0.1
}

// Remember journals a moment. A full journal evicts its lightest entry,
// oldest first among equals, unless the new moment is lighter still.
func (a *Agent) Remember(tick uint64, category, note string) {
	m := Memory{Tick: tick, Category: category, Note: note, Weight: WeightOf(category)}
	if len(a.Memories) < JournalSize {
		a.Memories = append(a.Memories, m)
		return
	}

	victim := 0
	for i, old := range a.Memories {
		v := a.Memories[victim]
		if old.Weight < v.Weight || (old.Weight == v.Weight && old.Tick < v.Tick) {
			victim = i
		}
	}
	if m.Weight < a.Memories[victim].Weight {
		return
	}
	a.Memories = slices.Delete(a.Memories, victim, victim+1)
	a.Memories = append(a.Memories, m)
}

// Recall returns up to n entries, newest first. An empty category matches all.
func (a *Agent) Recall(category string, n int) []Memory {
	if n <= 0 {
		return nil
	}
	var out []Memory
	for i := len(a.Memories) - 1; i >= 0 && len(out) < n; i-- {
		if category == "" || a.Memories[i].Category == category {
			out = append(out, a.Memories[i])
		}
	}
	return out
}
