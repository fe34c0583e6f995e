package score_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/talgya/swift-dreams/internal/score"
)

var _ = Describe("Keeper", func() {
	It("finishes the round exactly once", func() {
		k := NewKeeper(1)
		k.Increase(2)
		Expect(k.Tick(0.5)).To(BeFalse())
		Expect(k.Tick(0.5)).To(BeTrue())
		Expect(k.Tick(0.5)).To(BeFalse())

		k.Increase(5)
		snap := k.Snapshot()
		Expect(snap.Score).To(Equal(2))
		Expect(snap.Finished).To(BeTrue())
		Expect(snap.Remaining).To(BeZero())
	})

	It("restarts a round", func() {
		k := NewKeeper(DefaultRoundSeconds)
		k.Increase(1)
		k.Tick(DefaultRoundSeconds)
		k.Restart()
		Expect(k.Snapshot()).To(Equal(Snapshot{Remaining: DefaultRoundSeconds}))
	})

	It("never ends an endless round", func() {
		k := NewKeeper(0)
		Expect(k.Tick(1e6)).To(BeFalse())
		k.Increase(3)
		Expect(k.Snapshot().Score).To(Equal(3))
	})

	It("resumes a saved round", func() {
		k := NewKeeper(60)
		k.Restore(4, 12.5)
		Expect(k.Snapshot()).To(Equal(Snapshot{Score: 4, Remaining: 12.5}))
	})
})
