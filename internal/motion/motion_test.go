package motion_test

import (
	"github.com/talgya/swift-dreams/internal/world"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/talgya/swift-dreams/internal/motion"
)

var _ = Describe("Kinematic integrator", func() {
	var (
		arena *world.Arena
		bed   *world.Destination
		kin   *Kinematic
	)
	const (
		dt          = 1.0 / 30
		speed       = 2.5
		floatHeight = 2.0
	)

	floorBody := func(p world.Vec3) Body {
		body := NewBody(p)
		kin.Settle(&body)
		return body
	}
	walk := func(dir world.Vec3) Intent {
		return Walk(dir, speed, floatHeight)
	}

	BeforeEach(func() {
		arena = world.NewArena(20)
		bed = arena.Add(&world.Destination{
			Kind:        world.DestBed,
			Position:    world.Vec3{X: 5, Y: world.BedHeight},
			Forward:     world.Vec3{Z: 1},
			HalfExtents: world.BedHalfExtents,
		})
		kin = NewKinematic(floatHeight)
	})

	It("walks at walk speed along the flattened direction", func() {
		body := floorBody(world.Vec3{})
		kin.Integrate(&body, walk(world.Vec3{X: 3, Y: 7}), 1, arena)
		Expect(body.Position.X).To(BeNumerically("~", speed, 1e-9))
		Expect(body.Position.Y).To(Equal(floatHeight))
		Expect(body.Facing).To(Equal(world.Vec3{X: 1}))
		Expect(body.Grounded).To(BeTrue())
	})

	It("holds position when no command was emitted", func() {
		body := floorBody(world.Vec3{X: 1})
		body.Velocity = world.Vec3{X: 2}
		kin.Integrate(&body, Intent{}, dt, arena)
		Expect(body.Position.X).To(Equal(1.0))
	})

	It("keeps bodies on the floor", func() {
		body := floorBody(world.Vec3{X: 19.9})
		kin.Integrate(&body, walk(world.Vec3{X: 1}), 1, arena)
		Expect(body.Position.X).To(Equal(20.0))
	})

	It("lands a jump onto the bed it was aimed at", func() {
		body := floorBody(world.Vec3{X: 3.5})
		rise := kin.RestHeight(bed) - floatHeight
		flight := kin.FlightTime(4, rise)
		Expect(flight).To(BeNumerically(">", 0))

		in := Intent{
			Emitted:         true,
			DesiredVelocity: bed.Position.Sub(body.Position).Flat().Scale(1 / flight),
			FloatHeight:     floatHeight,
			Action:          &Action{Kind: ActionJump, Height: 4},
		}
		for i := 0; i < 120 && !(body.Grounded && i > 0); i++ {
			kin.Integrate(&body, in, dt, arena)
		}
		Expect(body.Grounded).To(BeTrue())
		Expect(body.Support).To(Equal(bed.ID))
		Expect(body.Position.Y).To(Equal(kin.RestHeight(bed)))
	})

	It("passes under a bed when walking on the floor", func() {
		body := floorBody(world.Vec3{X: 3})
		for i := 0; i < 24; i++ {
			kin.Integrate(&body, walk(world.Vec3{X: 1}), dt, arena)
		}
		Expect(bed.Contains(body.Position)).To(BeTrue())
		Expect(body.Support).To(BeZero())
		Expect(body.Position.Y).To(Equal(floatHeight))
	})

	It("drops a dashed body off its bed", func() {
		body := Body{
			Position: world.Vec3{X: 5, Y: kin.RestHeight(bed)},
			Grounded: true,
			Support:  bed.ID,
		}
		kin.Integrate(&body, Intent{
			Emitted: true,
			Action:  &Action{Kind: ActionDash, Displacement: world.Vec3{X: 3}},
		}, dt, arena)
		Expect(body.Support).To(BeZero())
		Expect(body.Position.X).To(Equal(8.0))

		for i := 0; i < 60 && !body.Grounded; i++ {
			kin.Integrate(&body, Intent{}, dt, arena)
		}
		Expect(body.Grounded).To(BeTrue())
		Expect(body.Position.Y).To(Equal(floatHeight))
	})

	It("loses its support when walking off a bed", func() {
		body := Body{
			Position: world.Vec3{X: 5, Y: kin.RestHeight(bed)},
			Grounded: true,
			Support:  bed.ID,
		}
		kin.Integrate(&body, walk(world.Vec3{X: 1}), 1, arena)
		Expect(body.Support).To(BeZero())
		Expect(body.Position.Y).To(Equal(floatHeight))
	})
	It("floats at the integrator's height on the floor and over beds", func() {
		kin = NewKinematic(0.5)
		body := floorBody(world.Vec3{X: 3})
		Expect(body.Position.Y).To(Equal(0.5))
		kin.Integrate(&body, Walk(world.Vec3{X: 1}, 1, 0.5), dt, arena)
		Expect(body.Position.Y).To(Equal(0.5))
		Expect(body.Position.X).To(BeNumerically("~", 3+dt, 1e-9))
		Expect(kin.RestHeight(bed)).To(Equal(bed.Position.Y + bed.HalfExtents.Y + 0.5))
	})

	It("leaves bodies on a bed where they are when settling", func() {
		body := Body{Position: world.Vec3{X: 5, Y: kin.RestHeight(bed)}, Grounded: true, Support: bed.ID}
		kin.Settle(&body)
		Expect(body.Position.Y).To(Equal(kin.RestHeight(bed)))
	})
})
