package tagging_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpucache/internal/tagging"
	"github.com/sarchlab/gpucache/protocol"
)

var _ = Describe("TagArray", func() {
	var t *tagging.TagArray

	BeforeEach(func() {
		t = tagging.New(4, 2, tagging.LRU)
	})

	It("reports MISS with the first invalid way on a cold set", func() {
		pr := t.Probe(0, 0x10)
		Expect(pr.Status).To(Equal(protocol.Miss))
		Expect(pr.Way).To(Equal(0))
	})

	It("is pure: repeated probes with no mutation return identical results", func() {
		first := t.Probe(1, 0x20)
		second := t.Probe(1, 0x20)
		Expect(second).To(Equal(first))
	})

	It("resolves a fresh allocation then a later hit", func() {
		access := t.Access(0, 0x10, 0x1000, 1, tagging.OnMiss)
		Expect(access.Status).To(Equal(protocol.Miss))
		Expect(access.Writeback).To(BeFalse())

		t.FillWay(0, access.Way, 5, false)

		hit := t.Access(0, 0x10, 0x1000, 7, tagging.OnMiss)
		Expect(hit.Status).To(Equal(protocol.Hit))
		Expect(hit.Way).To(Equal(access.Way))
	})

	It("returns HIT_RESERVED for a second access to a way still RESERVED", func() {
		access := t.Access(0, 0x10, 0x1000, 1, tagging.OnMiss)
		Expect(access.Status).To(Equal(protocol.Miss))

		second := t.Access(0, 0x10, 0x1000, 2, tagging.OnMiss)
		Expect(second.Status).To(Equal(protocol.HitReserved))
		Expect(second.Way).To(Equal(access.Way))
		Expect(t.PendingHits()).To(Equal(uint64(1)))
	})

	It("returns RESERVATION_FAIL once every way in the set is RESERVED", func() {
		first := t.Access(0, 0x10, 0x1000, 1, tagging.OnMiss)
		Expect(first.Status).To(Equal(protocol.Miss))

		second := t.Access(0, 0x20, 0x2000, 1, tagging.OnMiss)
		Expect(second.Status).To(Equal(protocol.Miss))
		Expect(second.Way).NotTo(Equal(first.Way))

		third := t.Access(0, 0x30, 0x3000, 1, tagging.OnMiss)
		Expect(third.Status).To(Equal(protocol.ReservationFail))
		Expect(t.ReservationFails()).To(Equal(uint64(1)))
	})

	It("evicts the least-recently-used non-RESERVED line and reports the writeback", func() {
		a := t.Access(0, 0x10, 0x1000, 1, tagging.OnMiss)
		t.FillWay(0, a.Way, 2, false)

		b := t.Access(0, 0x20, 0x2000, 3, tagging.OnMiss)
		t.FillWay(0, b.Way, 4, false)

		// touch a again so b becomes the LRU victim
		t.Access(0, 0x10, 0x1000, 5, tagging.OnMiss)
		t.ForceModified(0, b.Way)

		evict := t.Access(0, 0x30, 0x3000, 6, tagging.OnMiss)
		Expect(evict.Status).To(Equal(protocol.Miss))
		Expect(evict.Way).To(Equal(b.Way))
		Expect(evict.Writeback).To(BeTrue())
		Expect(evict.Evicted.BlockAddr).To(Equal(uint64(0x2000)))
	})

	It("never lets a RESERVED line be chosen as a replacement victim", func() {
		first := t.Access(0, 0x10, 0x1000, 1, tagging.OnMiss)
		second := t.Access(0, 0x20, 0x2000, 1, tagging.OnMiss)
		Expect(first.Status).To(Equal(protocol.Miss))
		Expect(second.Status).To(Equal(protocol.Miss))

		// both ways now RESERVED; a third distinct tag must fail, never
		// silently evict a RESERVED way.
		third := t.Probe(0, 0x30)
		Expect(third.Status).To(Equal(protocol.ReservationFail))
	})

	It("invalidates every line on Flush and reports MISS afterward", func() {
		a := t.Access(0, 0x10, 0x1000, 1, tagging.OnMiss)
		t.FillWay(0, a.Way, 2, false)
		Expect(t.Access(0, 0x10, 0x1000, 3, tagging.OnMiss).Status).To(Equal(protocol.Hit))

		t.Flush()

		Expect(t.Probe(0, 0x10).Status).To(Equal(protocol.Miss))
		Expect(t.Line(0, a.Way).Status).To(Equal(tagging.Invalid))
	})

	It("computes windowed miss rate as misses over accesses since the last window", func() {
		t.NewWindow()
		Expect(t.WindowedMissRate()).To(Equal(0.0))

		t.Access(0, 0x10, 0x1000, 1, tagging.OnMiss) // miss
		a := t.Access(0, 0x10, 0x1000, 2, tagging.OnMiss)
		Expect(a.Status).To(Equal(protocol.HitReserved))

		Expect(t.WindowedMissRate()).To(BeNumerically("~", 0.5, 1e-9))
	})

	It("attributes a hit to the prefetcher when the line was filled unused by a prefetch", func() {
		a := t.Access(0, 0x10, 0x1000, 1, tagging.OnMiss)
		t.FillWay(0, a.Way, 2, true)

		hit := t.Access(0, 0x10, 0x1000, 3, tagging.OnMiss)
		Expect(hit.Status).To(Equal(protocol.Hit))
		Expect(hit.WasPrefetchUnused).To(BeTrue())

		again := t.Access(0, 0x10, 0x1000, 4, tagging.OnMiss)
		Expect(again.WasPrefetchUnused).To(BeFalse())
	})

	It("supports the ON_FILL allocation policy, coinciding allocate and fill", func() {
		array := tagging.New(4, 2, tagging.LRU)
		Expect(array.Probe(0, 0x10).Status).To(Equal(protocol.Miss))

		array.FillAddr(0, 0x10, 0x1000, 9)

		hit := array.Probe(0, 0x10)
		Expect(hit.Status).To(Equal(protocol.Hit))
	})

	It("panics when Access resolves to MISS under ON_FILL", func() {
		array := tagging.New(4, 2, tagging.LRU)
		Expect(func() {
			array.Access(0, 0x10, 0x1000, 1, tagging.OnFill)
		}).To(Panic())
	})
})
