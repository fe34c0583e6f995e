package waker_test

import (
	"context"
	"math/rand/v2"
	"net/http/httptest"
	"path/filepath"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/api"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/config"
	"github.com/talgya/swift-dreams/internal/engine"
	"github.com/talgya/swift-dreams/internal/motion"
	"github.com/talgya/swift-dreams/internal/world"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/talgya/swift-dreams/internal/waker"
)

func asleepOn(id agents.AgentID, bed *world.Destination, rem bool) *agents.Agent {
	a := agents.New(id, "Sleepy", world.Vec3{}, agents.DefaultConsiderationDepth)
	a.Body = motion.Body{
		Position: world.Vec3{X: bed.Position.X, Y: motion.NewKinematic(config.Default().Walk.FloatHeight).RestHeight(bed), Z: bed.Position.Z},
		Facing:   world.Vec3{Z: 1},
		Grounded: true,
		Support:  bed.ID,
	}
	a.Advisor.Restore(&behavior.Sleep{Bed: bed.ID, State: behavior.SleepState{IsREM: rem}})
	return a
}

var _ = Describe("Waker", func() {
	Describe("Decide", func() {
		rng := func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

		It("does nothing when nobody sleeps", func() {
			d := Decide(&Health{Level: LevelQuiet}, &CycleMemory{}, rng())
			Expect(d.Action).To(Equal(ActionNone))
		})

		It("does nothing once the round is over", func() {
			h := &Health{Sleepers: []agents.AgentID{1}, Level: LevelSnoring, RoundOver: true}
			Expect(Decide(h, &CycleMemory{}, rng()).Action).To(Equal(ActionNone))
		})

		It("prefers dreamers", func() {
			h := &Health{Sleepers: []agents.AgentID{1, 2, 3}, Dreamers: []agents.AgentID{2}, Level: LevelSnoring}
			d := Decide(h, &CycleMemory{}, rng())
			Expect(d.Action).To(Equal(ActionInterrupt))
			Expect(d.Agent).To(Equal(agents.AgentID(2)))
		})

		It("avoids striking the same agent twice in a row", func() {
			mem := &CycleMemory{}
			mem.Record(CycleRecord{Action: ActionInterrupt, Agent: 1})
			h := &Health{Sleepers: []agents.AgentID{1, 2}, Level: LevelSnoring}
			for i := 0; i < 20; i++ {
				Expect(Decide(h, mem, rng()).Agent).To(Equal(agents.AgentID(2)))
			}
		})
	})

	It("trims and persists its memory", func() {
		path := filepath.Join(GinkgoT().TempDir(), "waker.json")
		mem := LoadMemory(path)
		for i := 0; i < 30; i++ {
			mem.Record(CycleRecord{Tick: uint64(i), Action: ActionInterrupt, Agent: agents.AgentID(i)})
		}
		Expect(mem.Records).To(HaveLen(20))
		Expect(mem.Save()).To(Succeed())

		again := LoadMemory(path)
		Expect(again.Records).To(Equal(mem.Records))
		last, ok := again.LastStruck()
		Expect(ok).To(BeTrue())
		Expect(last).To(Equal(agents.AgentID(29)))
	})

	Context("against a running API", func() {
		var (
			sim *engine.Simulation
			ts  *httptest.Server
		)

		BeforeEach(func() {
			cfg := config.Default()
			cfg.Round.Seconds = 0
			arena := world.NewArena(20)
			bed := arena.Add(&world.Destination{
				Kind: world.DestBed, Position: world.Vec3{Y: world.BedHeight},
				Forward: world.Vec3{Z: 1}, HalfExtents: world.BedHalfExtents,
			})
			sim = engine.NewSimulation(cfg, arena, []*agents.Agent{asleepOn(1, bed, true)})
			_, err := sim.Step(context.Background(), 1)
			Expect(err).ToNot(HaveOccurred())

			srv := api.NewServer(sim, nil, nil, config.APIConfig{AdminKey: "secret", InterruptPerMinute: 10})
			ts = httptest.NewServer(srv.Handler())
			DeferCleanup(ts.Close)
		})

		It("observes the run", func() {
			snap, err := NewObserver(ts.URL).Observe()
			Expect(err).ToNot(HaveOccurred())
			h := Triage(snap)
			Expect(h.Sleepers).To(ConsistOf(agents.AgentID(1)))
			Expect(h.Dreamers).To(ConsistOf(agents.AgentID(1)))
			Expect(h.Level).To(Equal(LevelSnoring))
		})

		It("strikes the only sleeper of a full arena", func() {
			w := New(ts.URL, "secret", 3, nil)
			d, err := w.RunCycle()
			Expect(err).ToNot(HaveOccurred())
			Expect(d.Action).To(Equal(ActionInterrupt))
			Expect(d.Agent).To(Equal(agents.AgentID(1)))

			detail, err := sim.Agent(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(detail.Interrupted).To(BeTrue())
			Expect(w.Memory.Records).To(HaveLen(1))

			_, err = sim.Step(context.Background(), 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(NewActor(ts.URL, "secret").Interrupt(1)).To(MatchError(ErrMissed))
		})

		It("reports a bad admin key", func() {
			Expect(NewActor(ts.URL, "wrong").Interrupt(1)).To(HaveOccurred())
		})
	})
})
