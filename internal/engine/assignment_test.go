package engine_test

import (
	"context"
	"math"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/behavior"
	"github.com/talgya/swift-dreams/internal/world"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/talgya/swift-dreams/internal/engine"
)

var _ = Describe("DestinationPolicy", func() {
	var (
		arena *world.Arena
		beds  *DestinationPolicy
		desks *DestinationPolicy
		ctx   context.Context
	)

	BeforeEach(func() {
		arena = world.NewArena(20)
		beds = BedPolicy(testConfig().Bed)
		desks = DeskPolicy(testConfig().Desk)
		ctx = context.Background()
	})

	It("proposes WalkTo with inverse-square urgency when far", func() {
		bed := addBed(arena, 10, 0)
		a := agentAt(1, 0, 0)

		batch, err := beds.Suggest(ctx, viewOf(arena, a))
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.Proposals).To(HaveLen(1))
		p := batch.Proposals[0]
		Expect(p.Score).To(BeNumerically("~", 16, 1e-9))
		Expect(p.Behavior.Key()).To(Equal(behavior.Key{Kind: behavior.KindWalkTo, Dest: bed.Ref()}))
	})

	It("proposes UseDestination inside the target radius", func() {
		bed := addBed(arena, 2, 0)
		a := agentAt(1, 0, 0)

		batch, err := beds.Suggest(ctx, viewOf(arena, a))
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.Proposals).To(HaveLen(1))
		Expect(batch.Proposals[0].Score).To(Equal(100.0))
		Expect(batch.Proposals[0].Behavior.Key()).To(Equal(behavior.Key{Kind: behavior.KindUseDestination, Dest: bed.Ref()}))
	})

	It("lets only the closest claimant near a bed propose", func() {
		bed := addBed(arena, 0, 0)
		x := agentAt(1, 2.9, 0)
		y := agentAt(2, 0, 2.5)
		z := agentAt(3, -6, 0)

		v := viewOf(arena, x, y, z)
		statuses := beds.Statuses(v)
		Expect(statuses).To(HaveLen(1))
		Expect(statuses[0].Closest).To(Equal(y.ID))
		Expect(statuses[0].ClosestDistSq).To(BeNumerically("~", 6.25, 1e-9))
		Expect(statuses[0].Demand).To(BeNumerically("~", 1/8.41+1/6.25+1/36.0, 1e-9))

		batch, err := beds.Suggest(ctx, v)
		Expect(err).ToNot(HaveOccurred())
		Expect(proposalsFor(batch, 0)).To(BeEmpty())
		Expect(proposalsFor(batch, 2)).To(BeEmpty())
		ys := proposalsFor(batch, 1)
		Expect(ys).To(HaveLen(1))
		Expect(ys[0].Behavior.Key().Dest).To(Equal(bed.Ref()))
	})

	It("breaks equidistant claims by agent order", func() {
		addBed(arena, 0, 0)
		first := agentAt(1, 2, 0)
		second := agentAt(2, -2, 0)

		batch, err := beds.Suggest(ctx, viewOf(arena, first, second))
		Expect(err).ToNot(HaveOccurred())
		Expect(proposalsFor(batch, 0)).To(HaveLen(1))
		Expect(proposalsFor(batch, 1)).To(BeEmpty())
	})

	It("lets far rivals keep walking until one is inside the claim radius", func() {
		addBed(arena, 0, 0)
		batch, err := beds.Suggest(ctx, viewOf(arena, agentAt(1, 5, 0), agentAt(2, -6, 0)))
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.Proposals).To(HaveLen(2))
	})

	It("hides occupied destinations from everyone but the occupant", func() {
		bed := addBed(arena, 0, 0)
		other := addBed(arena, 10, 0)
		sleeper := agentAt(1, 0, 0)
		putOnBed(sleeper, bed)
		sleeper.Advisor.Restore(&behavior.Sleep{Bed: bed.ID})
		walker := agentAt(2, 1, 0)

		v := viewOf(arena, sleeper, walker)
		statuses := beds.Statuses(v)
		Expect(statuses).To(HaveLen(2))
		Expect(statuses[0].Holder).To(Equal(sleeper.ID))

		Expect(statuses[1].Closest).To(Equal(walker.ID))

		batch, err := beds.Suggest(ctx, v)
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.Proposals).ToNot(BeEmpty())
		for _, p := range batch.Proposals {
			Expect(p.Behavior.Key().Dest.ID).To(Equal(other.ID))
		}
	})

	It("keeps a user on its own destination", func() {
		near := addBed(arena, 0, 0)
		addBed(arena, 1, 0)
		user := agentAt(1, 0.5, 0)
		user.Advisor.Restore(&behavior.UseDestination{Dest: near.Ref()})

		batch, err := beds.Suggest(ctx, viewOf(arena, user))
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.Proposals).To(HaveLen(1))
		Expect(batch.Proposals[0].Behavior.Key().Dest).To(Equal(near.Ref()))
	})

	It("ignores beds while the agent is still wakeful", func() {
		addBed(arena, 5, 0)
		a := agentAt(1, 0, 0)
		a.Wakefulness = 3
		batch, err := beds.Suggest(ctx, viewOf(arena, a))
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.Proposals).To(BeEmpty())
	})

	It("only considers agents in an eligible behavior", func() {
		addBed(arena, 5, 0)
		sleeper := agentAt(1, 0, 0)
		sleeper.Advisor.Restore(&behavior.Awaken{State: behavior.AwakenState{Timer: 1}})
		deskWalker := agentAt(2, 0, 0)
		deskWalker.Advisor.Restore(&behavior.WalkTo{Dest: world.DestRef{Kind: world.DestDesk, ID: 99}})

		batch, err := beds.Suggest(ctx, viewOf(arena, sleeper, deskWalker))
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.Proposals).To(BeEmpty())
	})

	It("proposes nothing without live destinations", func() {
		batch, err := desks.Suggest(ctx, viewOf(arena, agentAt(1, 0, 0)))
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.Proposals).To(BeEmpty())
		Expect(batch.Statuses).To(BeEmpty())
	})

	Context("desks", func() {
		It("targets the working point in front of the desk", func() {
			desk := addDesk(arena, 0, 0)
			Expect(desks.Target(desk)).To(Equal(world.Vec3{X: 0, Y: world.DeskHeight, Z: 1.5}))

			a := agentAt(1, 0, 1.5)
			batch, err := desks.Suggest(ctx, viewOf(arena, a))
			Expect(err).ToNot(HaveOccurred())
			Expect(batch.Proposals).To(HaveLen(1))
			use, ok := batch.Proposals[0].Behavior.(*behavior.UseDestination)
			Expect(ok).To(BeTrue())
			Expect(use.State.Timer).To(Equal(testConfig().Desk.ScribeSeconds))
		})

		It("does not re-propose a spent desk on the tick it finished", func() {
			desk := addDesk(arena, 0, 0)
			a := agentAt(1, 0, 1.5)
			a.Advisor.Restore(&behavior.UseDestination{Dest: desk.Ref(), State: behavior.UseState{Done: true}})

			batch, err := desks.Suggest(ctx, viewOf(arena, a))
			Expect(err).ToNot(HaveOccurred())
			Expect(batch.Proposals).To(BeEmpty())
		})
	})

	It("stops when the context is cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := beds.Suggest(cctx, viewOf(arena, agentAt(1, 0, 0)))
		Expect(err).To(MatchError(context.Canceled))
	})

	It("serialises unclaimed destinations without a distance", func() {
		st := DestinationStatus{ID: 7, Kind: world.DestBed, ClosestDistSq: math.Inf(1)}
		raw, err := st.MarshalJSON()
		Expect(err).ToNot(HaveOccurred())
		Expect(string(raw)).ToNot(ContainSubstring("closest_dist_sq"))

		st.Closest = agents.AgentID(3)
		st.ClosestDistSq = 4
		raw, err = st.MarshalJSON()
		Expect(err).ToNot(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(`"closest_dist_sq":4`))
	})
})
