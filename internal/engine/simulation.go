// Simulation ties the decision core together and runs it each tick:
// suggest, commit, act, then motion, scoring and effects.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/config"
	"github.com/talgya/swift-dreams/internal/effects"
	"github.com/talgya/swift-dreams/internal/entropy"
	"github.com/talgya/swift-dreams/internal/motion"
	"github.com/talgya/swift-dreams/internal/score"
	"github.com/talgya/swift-dreams/internal/world"
)

var (
	ErrAgentNotFound       = errors.New("agent not found")
	ErrNotAsleep           = errors.New("agent is not asleep")
	ErrDestinationNotFound = errors.New("destination not found")
	ErrRoundOver           = errors.New("round is over")
)

// MaxEvents bounds the in-memory event log.
const MaxEvents = 1000

// Simulation holds the complete world state and wires systems together.
type Simulation struct {
	mu sync.Mutex

	Arena      *world.Arena
	Agents     []*agents.Agent // Ascending ID
	AgentIndex map[agents.AgentID]*agents.Agent
	Events     []Event
	LastTick   uint64
	RunID      string
	Score      *score.Keeper

	cfg        config.Config
	dt         float64
	suggesters []Suggester
	bed, desk  *DestinationPolicy
	actors     *Actors
	kin        *motion.Kinematic
	entropy    *entropy.Source
	effects    *effects.Tracker

	eventSeq  uint64
	statuses  []DestinationStatus
	lastFrame *Frame
	subs      map[int]chan *Frame
	nextSub   int
}

// Event is a notable occurrence in the run.
type Event struct {
	Seq         uint64         `json:"seq"` // Monotonic within a run, assigned on append
	Tick        uint64         `json:"tick"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "sleep", "wake", "strike", "score", "round", "arena"
	Meta        map[string]any `json:"meta,omitempty"`
}

// NewSimulation creates a Simulation over an arena and its agents.
func NewSimulation(cfg config.Config, arena *world.Arena, ag []*agents.Agent) *Simulation {
	sorted := make([]*agents.Agent, len(ag))
	copy(sorted, ag)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	index := make(map[agents.AgentID]*agents.Agent, len(sorted))
	for _, a := range sorted {
		index[a.ID] = a
	}

	s := &Simulation{
		Arena:      arena,
		Agents:     sorted,
		AgentIndex: index,
		Score:      score.NewKeeper(cfg.Round.Seconds),
		cfg:        cfg,
		dt:         cfg.DT(),
		bed:        BedPolicy(cfg.Bed),
		desk:       DeskPolicy(cfg.Desk),
		kin:        motion.NewKinematic(cfg.Walk.FloatHeight),
		entropy:    entropy.NewSource(cfg.Seed),
		effects:    effects.NewTracker(),
		subs:       make(map[int]chan *Frame),
	}
	for _, a := range sorted {
		s.kin.Settle(&a.Body)
	}
	s.actors = &Actors{
		Walk:    cfg.Walk,
		Sleep:   cfg.Sleep,
		Awaken:  cfg.Awaken,
		Bed:     s.bed,
		Desk:    s.desk,
		Kin:     s.kin,
		Entropy: s.entropy,
	}
	s.suggesters = []Suggester{
		IdleSuggester{},
		s.bed,
		s.desk,
		&SleepSuggester{Score: cfg.Sleep.Score},
		NewAwakenSuggester(cfg.Sleep, cfg.Awaken),
	}
	return s
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastTick
}

// DT returns the fixed timestep in seconds.
func (s *Simulation) DT() float64 {
	return s.dt
}

// Step runs one tick. Cancellation is only honoured before commit; once
// behaviors are committed the tick runs to completion.
func (s *Simulation) Step(ctx context.Context, tick uint64) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.Agents {
		a.Tire(s.dt)
	}

	view := &View{
		Tick:      tick,
		DT:        s.dt,
		Arena:     s.Arena,
		Agents:    s.Agents,
		Occupancy: BuildOccupancy(s.Agents),
		Entropy:   s.entropy,
	}

	statuses, err := s.suggest(ctx, view)
	if err != nil {
		return nil, fmt.Errorf("tick %d: suggest: %w", tick, err)
	}
	s.LastTick = tick
	s.statuses = statuses

	var events []Event
	emit := func(e Event) {
		events = append(events, s.appendEvent(e))
	}

	transitions := s.commit(tick, emit)
	outcomes := s.act(tick)

	delta := 0
	for i, a := range s.Agents {
		s.kin.Integrate(&a.Body, a.Intent, s.dt, s.Arena)

		o := outcomes[i]
		delta += o.ScoreDelta
		if o.Note != "" {
			a.Remember(tick, o.Category, o.Note)
			emit(Event{Tick: tick, Description: o.Note, Category: o.Category,
				Meta: map[string]any{"agent_id": a.ID}})
		}
	}
	if delta > 0 {
		s.Score.Increase(delta)
	}
	roundOver := s.Score.Tick(s.dt)
	snap := s.Score.Snapshot()
	if roundOver {
		emit(Event{Tick: tick, Description: fmt.Sprintf("Round over with a score of %d", snap.Score), Category: "round"})
		slog.Info("round over", "tick", tick, "score", snap.Score)
	}

	overlays, changes := s.effects.Observe(s.Agents)
	frame := &Frame{
		Tick:         tick,
		Time:         float64(tick) * s.dt,
		Agents:       make([]AgentFrame, len(s.Agents)),
		Destinations: statuses,
		Transitions:  transitions,
		Effects:      changes,
		Events:       events,
		ScoreDelta:   delta,
		Score:        snap,
		RoundOver:    roundOver,
	}
	for i, a := range s.Agents {
		frame.Agents[i] = agentFrame(a, overlays[a.ID])
	}
	s.publish(frame)
	return frame, nil
}

// suggest runs every suggester in parallel, then merges their batches into
// the advisors in registration order.
func (s *Simulation) suggest(ctx context.Context, v *View) ([]DestinationStatus, error) {
	batches := make([]Batch, len(s.suggesters))
	g, gctx := errgroup.WithContext(ctx)
	for i, sg := range s.suggesters {
		g.Go(func() error {
			b, err := sg.Suggest(gctx, v)
			if err != nil {
				return fmt.Errorf("%s: %w", sg.Name(), err)
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var statuses []DestinationStatus
	for _, b := range batches {
		for _, p := range b.Proposals {
			v.Agents[p.Agent].Advisor.Suggest(p.Score, p.Behavior)
		}
		statuses = append(statuses, b.Statuses...)
	}
	return statuses, nil
}

// commit arbitrates every agent before any actor runs.
func (s *Simulation) commit(tick uint64, emit func(Event)) []Transition {
	var transitions []Transition
	for _, a := range s.Agents {
		res := a.Advisor.Commit()
		if res.Empty {
			slog.Warn("no candidates proposed, keeping behavior", "tick", tick, "agent", a.ID, "behavior", res.Current)
		}
		if res.Changed {
			slog.Debug("behavior changed", "tick", tick, "agent", a.ID, "from", res.Previous, "to", res.Current, "score", res.Score)
			transitions = append(transitions, Transition{Agent: a.ID, From: res.Previous.String(), To: res.Current.String()})
			s.noteTransition(a, tick, emit)
		}
		if a.Interrupted && !a.Asleep() {
			a.Interrupted = false
		}
	}
	return transitions
}

func (s *Simulation) noteTransition(a *agents.Agent, tick uint64, emit func(Event)) {
	switch b := a.Behavior().(type) {
	case *behavior.Sleep:
		desc := fmt.Sprintf("%s fell asleep on bed %d", a.Name, b.Bed)
		a.Remember(tick, "sleep", desc)
		emit(Event{Tick: tick, Description: desc, Category: "sleep",
			Meta: map[string]any{"agent_id": a.ID, "bed_id": b.Bed}})
	case *behavior.Awaken:
		if !b.State.Interrupted {
			return
		}
		desc := fmt.Sprintf("%s was struck awake", a.Name)
		a.Remember(tick, "strike", desc)
		emit(Event{Tick: tick, Description: desc, Category: "strike",
			Meta: map[string]any{"agent_id": a.ID, "bed_id": b.State.Bed, "from_rem": b.State.FromREM}})
	}
}

// act runs the actors in parallel across agents; each touches only its own agent.
func (s *Simulation) act(tick uint64) []Outcome {
	outcomes := make([]Outcome, len(s.Agents))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, a := range s.Agents {
		g.Go(func() error {
			outcomes[i] = s.actors.Act(a, tick, s.dt, s.Arena)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		if o.Skipped {
			slog.Debug("dangling destination, no command", "tick", tick, "agent", s.Agents[i].ID, "behavior", s.Agents[i].Key())
		}
	}
	return outcomes
}

// Interrupt strikes a sleeping agent. The next tick wakes it.
func (s *Simulation) Interrupt(id agents.AgentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.AgentIndex[id]
	if a == nil {
		return fmt.Errorf("%w: %d", ErrAgentNotFound, id)
	}
	if !a.Asleep() {
		return fmt.Errorf("%w: %s", ErrNotAsleep, a.Name)
	}
	a.Interrupted = true
	slog.Info("interrupt queued", "agent", a.ID, "name", a.Name)
	return nil
}

// RemoveDestination deletes a destination. Agents still referencing it keep
// the dangling behavior until their suggesters stop proposing it.
func (s *Simulation) RemoveDestination(id world.EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.Arena.Get(id)
	if d == nil {
		return fmt.Errorf("%w: %d", ErrDestinationNotFound, id)
	}
	s.Arena.Remove(id)
	s.appendEvent(Event{
		Tick:        s.LastTick,
		Description: fmt.Sprintf("%s %d removed", d.Kind, id),
		Category:    "arena",
		Meta:        map[string]any{"dest_id": id},
	})
	return nil
}

// RestartRound zeroes the score and rewinds the round clock.
func (s *Simulation) RestartRound() {
	s.Score.Restart()
	s.EmitEvent(Event{Tick: s.CurrentTick(), Description: "A new round begins", Category: "round"})
}

// ResumeRound checks a restored round. A finished round is restarted when
// restart is set; otherwise ErrRoundOver is returned and nothing changes.
func (s *Simulation) ResumeRound(restart bool) error {
	snap := s.Score.Snapshot()
	if !snap.Finished {
		return nil
	}
	if !restart {
		return fmt.Errorf("%w: final score %d", ErrRoundOver, snap.Score)
	}
	s.RestartRound()
	return nil
}

// EmitEvent records an event.
func (s *Simulation) EmitEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendEvent(e)
}

func (s *Simulation) appendEvent(e Event) Event {
	s.eventSeq++
	e.Seq = s.eventSeq
	s.Events = append(s.Events, e)
	if len(s.Events) > MaxEvents {
		s.Events = s.Events[len(s.Events)-MaxEvents:]
	}
	return e
}

// EventSeq returns the sequence number of the latest event.
func (s *Simulation) EventSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventSeq
}

// ResumeEventSeq continues numbering after seq, for runs restored from storage.
func (s *Simulation) ResumeEventSeq(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq > s.eventSeq {
		s.eventSeq = seq
	}
}

// EventsSince returns the buffered events numbered after seq, oldest first.
func (s *Simulation) EventsSince(seq uint64) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.Events), func(i int) bool { return s.Events[i].Seq > seq })
	out := make([]Event, len(s.Events)-i)
	copy(out, s.Events[i:])
	return out
}

// RecentEvents returns up to n of the latest events, newest last.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.Events) - n
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(s.Events)-start)
	copy(out, s.Events[start:])
	return out
}

// Subscribe returns a channel receiving every published frame. Slow
// subscribers miss frames rather than stall the tick.
func (s *Simulation) Subscribe() (int, <-chan *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan *Frame, 16)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (s *Simulation) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Simulation) publish(f *Frame) {
	s.lastFrame = f
	for id, ch := range s.subs {
		select {
		case ch <- f:
		default:
			slog.Debug("frame dropped for slow subscriber", "sub_id", id, "tick", f.Tick)
		}
	}
}

// LastFrame returns the most recently published frame, or nil before the first tick.
func (s *Simulation) LastFrame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

// DestinationStatuses returns last tick's assignment picture.
func (s *Simulation) DestinationStatuses() []DestinationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DestinationStatus, len(s.statuses))
	copy(out, s.statuses)
	return out
}
