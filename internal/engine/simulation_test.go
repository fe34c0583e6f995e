package engine_test

import (
	"context"
	"math/rand"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/config"
	"github.com/talgya/swift-dreams/internal/effects"
	"github.com/talgya/swift-dreams/internal/motion"
	"github.com/talgya/swift-dreams/internal/world"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/talgya/swift-dreams/internal/engine"
)

// holdersOK fails when any destination is held by more than one agent.
func holdersOK(sim *Simulation) {
	seen := make(map[world.EntityID]agents.AgentID)
	for _, a := range sim.Agents {
		ref, ok := behavior.Occupies(a.Behavior())
		if !ok {
			continue
		}
		prev, taken := seen[ref.ID]
		Expect(taken).To(BeFalse(), "destination %d held by %d and %d", ref.ID, prev, a.ID)
		seen[ref.ID] = a.ID
	}
}

var _ = Describe("Simulation", func() {
	var (
		cfg   config.Config
		arena *world.Arena
		ctx   context.Context
	)

	BeforeEach(func() {
		cfg = testConfig()
		arena = world.NewArena(20)
		ctx = context.Background()
	})

	run := func(sim *Simulation, from, n int) {
		for i := 0; i < n; i++ {
			_, err := sim.Step(ctx, uint64(from+i))
			Expect(err).ToNot(HaveOccurred())
			holdersOK(sim)
		}
	}

	It("sends a lone agent walking to a far bed", func() {
		addBed(arena, 0, 0)
		a := agentAt(1, 0, -10)
		sim := NewSimulation(cfg, arena, []*agents.Agent{a})

		frame, err := sim.Step(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(a.Key().Kind).To(Equal(behavior.KindWalkTo))
		Expect(frame.Transitions).To(HaveLen(1))
		Expect(frame.Transitions[0].To).To(ContainSubstring("walk_to"))
		Expect(a.Intent.DesiredVelocity.Z).To(BeNumerically("~", cfg.Walk.Speed, 1e-9))
		Expect(a.Body.Position.Z).To(BeNumerically(">", -10))
		Expect(frame.Destinations).To(HaveLen(1))
		Expect(frame.Destinations[0].Closest).To(Equal(a.ID))
	})

	It("walks, jumps and falls asleep", func() {
		bed := addBed(arena, 0, 0)
		a := agentAt(1, 0, -10)
		sim := NewSimulation(cfg, arena, []*agents.Agent{a})

		seen := map[behavior.Kind]bool{}
		for i := 1; i <= 600 && !a.Asleep(); i++ {
			_, err := sim.Step(ctx, uint64(i))
			Expect(err).ToNot(HaveOccurred())
			seen[a.Key().Kind] = true
		}
		Expect(a.Asleep()).To(BeTrue())
		Expect(seen).To(HaveKey(behavior.KindWalkTo))
		Expect(seen).To(HaveKey(behavior.KindUseDestination))
		Expect(a.Body.Support).To(Equal(bed.ID))

		run(sim, 601, 300)
		Expect(a.Asleep()).To(BeTrue())
		Expect(sim.RecentEvents(10)).To(ContainElement(HaveField("Category", "sleep")))
	})

	It("lets only one of two equidistant agents have the bed", func() {
		addBed(arena, 0, 0)
		first, second := agentAt(1, -6, 0), agentAt(2, 6, 0)
		sim := NewSimulation(cfg, arena, []*agents.Agent{first, second})

		run(sim, 1, 300)
		Expect(first.Asleep()).To(BeTrue())
		Expect(second.Key().Kind).To(Equal(behavior.KindIdle))
	})

	It("keeps every destination exclusive across a generated arena", func() {
		cfg.Seed = 7
		layout := world.Generate(world.GenConfig{
			Size: 12, Seed: cfg.Seed, Beds: 3, Desks: 2, Agents: 6, MinSpacing: 4, GridStep: 1,
		})
		sp := agents.NewSpawner(cfg.Seed, agents.DefaultConsiderationDepth)
		sim := NewSimulation(cfg, layout.Arena, sp.SpawnAll(layout.Spawns, 0))

		rng := rand.New(rand.NewSource(1))
		for i := 1; i <= 1200; i++ {
			_, err := sim.Step(ctx, uint64(i))
			Expect(err).ToNot(HaveOccurred())
			holdersOK(sim)
			if i%45 == 0 {
				a := sim.Agents[rng.Intn(len(sim.Agents))]
				if a.Asleep() {
					Expect(sim.Interrupt(a.ID)).To(Succeed())
				}
			}
		}
	})

	It("scores when a desk use finishes", func() {
		desk := addDesk(arena, 0, 0)
		target := DeskPolicy(cfg.Desk).Target(desk)
		a := agentAt(1, target.X, target.Z)
		sim := NewSimulation(cfg, arena, []*agents.Agent{a})

		_, err := sim.Step(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(a.Key()).To(Equal(behavior.Key{Kind: behavior.KindUseDestination, Dest: desk.Ref()}))
		Expect(sim.LastFrame().Agents[0].Effect).To(Equal(effects.Thinking))

		run(sim, 2, 99)
		Expect(sim.Score.Snapshot().Score).To(Equal(1))
		Expect(sim.RecentEvents(MaxEvents)).To(ContainElement(HaveField("Category", "score")))
	})

	Context("interrupts", func() {
		var (
			bed *world.Destination
			a   *agents.Agent
			sim *Simulation
		)

		BeforeEach(func() {
			bed = addBed(arena, 0, 0)
			a = agentAt(1, 0, 0)
			putOnBed(a, bed)
			a.Advisor.Restore(&behavior.Sleep{Bed: bed.ID})
			sim = NewSimulation(cfg, arena, []*agents.Agent{a})
			_, err := sim.Step(ctx, 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Asleep()).To(BeTrue())
		})

		It("keeps sleepers asleep without an interrupt", func() {
			run(sim, 2, 600)
			Expect(a.Asleep()).To(BeTrue())
		})

		It("knocks a struck sleeper off the bed and keeps it awake for a while", func() {
			Expect(sim.Interrupt(a.ID)).To(Succeed())

			frame, err := sim.Step(ctx, 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Key().Kind).To(Equal(behavior.KindAwaken))
			Expect(a.Interrupted).To(BeFalse())
			Expect(frame.Agents[0].Intent.Action).ToNot(BeNil())
			Expect(frame.Agents[0].Intent.Action.Kind).To(Equal(motion.ActionDash))
			Expect(frame.Agents[0].Effect).To(Equal(effects.Confused))
			Expect(frame.Events).To(ContainElement(HaveField("Category", "strike")))
			Expect(a.Body.Support).To(BeZero())
			Expect(a.Body.Position.X).To(BeNumerically("~", cfg.Awaken.KnockDistance, 1e-9))

			tick := uint64(3)
			for ; tick < 400 && a.Wakefulness == 0; tick++ {
				_, err := sim.Step(ctx, tick)
				Expect(err).ToNot(HaveOccurred())
			}
			Expect(a.Wakefulness).To(BeNumerically(">", 0))
			Expect(a.Body.Grounded).To(BeTrue())

			_, err = sim.Step(ctx, tick)
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Key().Kind).To(Equal(behavior.KindIdle))
		})

		It("rejects agents that are not asleep", func() {
			Expect(sim.Interrupt(a.ID)).To(Succeed())
			_, err := sim.Step(ctx, 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(sim.Interrupt(a.ID)).To(MatchError(ErrNotAsleep))
			Expect(sim.Interrupt(99)).To(MatchError(ErrAgentNotFound))
		})
	})

	It("drops a removed destination on the next tick", func() {
		bed := addBed(arena, 0, 0)
		a := agentAt(1, 0, -10)
		sim := NewSimulation(cfg, arena, []*agents.Agent{a})
		run(sim, 1, 3)
		Expect(a.Key().Kind).To(Equal(behavior.KindWalkTo))

		Expect(sim.RemoveDestination(bed.ID)).To(Succeed())
		Expect(sim.RemoveDestination(bed.ID)).To(MatchError(ErrDestinationNotFound))

		frame, err := sim.Step(ctx, 4)
		Expect(err).ToNot(HaveOccurred())
		Expect(a.Key().Kind).To(Equal(behavior.KindIdle))
		Expect(frame.Destinations).To(BeEmpty())
		Expect(sim.RecentEvents(1)[0].Category).To(Equal("arena"))
	})

	It("publishes frames to subscribers", func() {
		addBed(arena, 0, 0)
		sim := NewSimulation(cfg, arena, []*agents.Agent{agentAt(1, 0, -10)})
		id, frames := sim.Subscribe()

		_, err := sim.Step(ctx, 1)
		Expect(err).ToNot(HaveOccurred())
		var f *Frame
		Eventually(frames).Should(Receive(&f))
		Expect(f.Tick).To(Equal(uint64(1)))
		Expect(sim.LastFrame()).To(BeIdenticalTo(f))

		sim.Unsubscribe(id)
		Eventually(frames).Should(BeClosed())
	})

	It("stops a cancelled tick before anything commits", func() {
		addBed(arena, 0, 0)
		a := agentAt(1, 0, -10)
		sim := NewSimulation(cfg, arena, []*agents.Agent{a})
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := sim.Step(cancelled, 1)
		Expect(err).To(MatchError(context.Canceled))
		Expect(a.Key().Kind).To(Equal(behavior.KindIdle))
		Expect(sim.CurrentTick()).To(BeZero())
	})

	It("summarises and exports the run", func() {
		bed := addBed(arena, 0, 0)
		addDesk(arena, 8, 8)
		sleeper := agentAt(1, 0, 0)
		putOnBed(sleeper, bed)
		sleeper.Advisor.Restore(&behavior.Sleep{Bed: bed.ID})
		sim := NewSimulation(cfg, arena, []*agents.Agent{sleeper, agentAt(2, -8, -8)})
		sim.RunID = "run-1"
		run(sim, 1, 2)

		st := sim.Status()
		Expect(st.RunID).To(Equal("run-1"))
		Expect(st.Tick).To(Equal(uint64(2)))
		Expect(st.Agents).To(Equal(2))
		Expect(st.Asleep).To(Equal(1))
		Expect(st.Beds).To(Equal(1))
		Expect(st.Desks).To(Equal(1))
		Expect(st.Occupied).To(BeNumerically(">=", 1))

		detail, err := sim.Agent(1)
		Expect(err).ToNot(HaveOccurred())
		Expect(detail.Effect).To(BeElementOf(effects.Zs, effects.Dream))
		_, err = sim.Agent(42)
		Expect(err).To(MatchError(ErrAgentNotFound))

		ex, err := sim.Export()
		Expect(err).ToNot(HaveOccurred())
		Expect(ex.Destinations).To(HaveLen(2))
		Expect(ex.Agents).To(HaveLen(2))
		Expect(ex.Agents[0].Agent.Advisor).To(BeNil())
		b, err := behavior.Decode(ex.Agents[0].Behavior)
		Expect(err).ToNot(HaveOccurred())
		Expect(b.Key()).To(Equal(sleeper.Key()))
	})

	It("restarts the round", func() {
		sim := NewSimulation(cfg, arena, nil)
		sim.Score.Increase(3)
		sim.RestartRound()
		Expect(sim.Score.Snapshot().Score).To(BeZero())
		Expect(sim.RecentEvents(1)[0].Category).To(Equal("round"))
	})

	Context("resuming a saved round", func() {
		var sim *Simulation

		BeforeEach(func() {
			cfg.Round.Seconds = 60
			sim = NewSimulation(cfg, arena, nil)
		})

		It("carries on with time left", func() {
			sim.Score.Restore(4, 12)
			Expect(sim.ResumeRound(false)).To(Succeed())
			sim.Score.Increase(1)
			Expect(sim.Score.Snapshot().Score).To(Equal(5))
		})

		It("refuses a finished round unless asked to restart", func() {
			sim.Score.Restore(7, 0)
			Expect(sim.ResumeRound(false)).To(MatchError(ErrRoundOver))
			Expect(sim.Score.Snapshot().Score).To(Equal(7))
		})

		It("restarts a finished round and lets it end again", func() {
			sim.Score.Restore(7, 0)
			Expect(sim.ResumeRound(true)).To(Succeed())

			snap := sim.Score.Snapshot()
			Expect(snap.Finished).To(BeFalse())
			Expect(snap.Score).To(BeZero())
			Expect(snap.Remaining).To(Equal(60.0))

			sim.Score.Increase(2)
			Expect(sim.Score.Snapshot().Score).To(Equal(2))
			Expect(sim.Score.Tick(61)).To(BeTrue())
		})
	})

	It("walks and floats agents at the configured speed and height", func() {
		cfg.Walk = config.WalkConfig{Speed: 4, FloatHeight: 0.75}
		addBed(arena, 0, 0)
		a := agents.New(1, "Low Flyer", world.Vec3{Z: -10}, agents.DefaultConsiderationDepth)
		sim := NewSimulation(cfg, arena, []*agents.Agent{a})
		Expect(a.Body.Position.Y).To(Equal(0.75))

		run(sim, 1, 1)
		Expect(a.Intent.FloatHeight).To(Equal(0.75))
		Expect(a.Intent.DesiredVelocity.Length()).To(BeNumerically("~", 4, 1e-9))
		Expect(a.Body.Position.Y).To(Equal(0.75))
		Expect(a.Body.Position.Z).To(BeNumerically("~", -10+4*cfg.DT(), 1e-9))
	})

	It("numbers events in order, across restores", func() {
		sim := NewSimulation(cfg, arena, nil)
		sim.ResumeEventSeq(40)
		sim.EmitEvent(Event{Description: "one", Category: "arena"})
		sim.RestartRound()
		sim.EmitEvent(Event{Description: "three", Category: "arena"})

		Expect(sim.EventSeq()).To(Equal(uint64(43)))
		since := sim.EventsSince(41)
		Expect(since).To(HaveLen(2))
		Expect(since[0].Seq).To(Equal(uint64(42)))
		Expect(since[1].Description).To(Equal("three"))
		Expect(sim.EventsSince(43)).To(BeEmpty())

		sim.ResumeEventSeq(10)
		Expect(sim.EventSeq()).To(Equal(uint64(43)))
	})
})
