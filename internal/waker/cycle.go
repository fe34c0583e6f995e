package waker

import (
	"errors"
	"log/slog"

	"github.com/talgya/swift-dreams/internal/entropy"
)

// Waker runs observe, decide and act cycles.
type Waker struct {
	Observer *Observer
	Actor    *Actor
	Memory   *CycleMemory
	Entropy  *entropy.Source

	cycles uint64
}

// New builds a waker against one API.
func New(baseURL, adminKey string, seed int64, mem *CycleMemory) *Waker {
	if mem == nil {
		mem = &CycleMemory{}
	}
	return &Waker{
		Observer: NewObserver(baseURL),
		Actor:    NewActor(baseURL, adminKey),
		Memory:   mem,
		Entropy:  entropy.NewSource(seed),
	}
}

// RunCycle executes one cycle and returns what was decided.
func (w *Waker) RunCycle() (*Decision, error) {
	w.cycles++
	slog.Debug("waker cycle starting", "cycle", w.cycles)

	snap, err := w.Observer.Observe()
	if err != nil {
		return nil, err
	}
	health := Triage(snap)
	slog.Info("observation complete",
		"tick", snap.Status.Tick,
		"level", health.Level,
		"sleepers", len(health.Sleepers),
		"dreamers", len(health.Dreamers),
		"score", health.Score,
	)

	rng := w.Entropy.For(w.cycles, 0, entropy.StreamWaker)
	decision := Decide(health, w.Memory, rng)
	record := CycleRecord{Tick: snap.Status.Tick, Action: decision.Action, Agent: decision.Agent,
		Level: health.Level, Rationale: decision.Rationale}

	if decision.Action == ActionInterrupt {
		if err := w.Actor.Interrupt(decision.Agent); err != nil {
			if !errors.Is(err, ErrMissed) {
				return decision, err
			}
			slog.Info("strike missed", "agent", decision.Agent)
			record.Action = ActionNone
			record.Rationale = "missed: " + decision.Rationale
		} else {
			slog.Info("strike landed", "agent", decision.Agent, "rationale", decision.Rationale)
		}
	}

	w.Memory.Record(record)
	if err := w.Memory.Save(); err != nil {
		slog.Warn("waker memory not saved", "error", err)
	}
	return decision, nil
}
