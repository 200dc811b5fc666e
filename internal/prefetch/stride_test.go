package prefetch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpucache/internal/prefetch"
)

func newTrackedEntry(pc uint64) *prefetch.Entry {
	table := prefetch.NewTable()
	table.Observe(pc, true, 0, 0, 0x1000)
	e, _ := table.Lookup(pc)

	return e
}

var _ = Describe("stride confidence rule", func() {
	var e *prefetch.Entry

	BeforeEach(func() {
		e = newTrackedEntry(0xcafe)
	})

	It("commits no stride when the history is empty", func() {
		e.SelectInterStride()
		Expect(e.ValidStride).To(BeFalse())
	})

	It("is invalid when every observed stride disagrees", func() {
		e.Strides = []int64{4, 8, 16, 32, 64, 128, 256, 512}
		e.SelectInterStride()
		Expect(e.ValidStride).To(BeFalse())
	})

	It("commits once at least 4 of the last 8 strides agree", func() {
		e.Strides = []int64{4, 8, 4, 16, 4, 32, 4, 1}
		e.SelectInterStride()
		Expect(e.ValidStride).To(BeTrue())
		Expect(e.CommittedStride).To(Equal(int64(4)))
	})

	It("is invalid at exactly 3 of 8 agreeing", func() {
		e.Strides = []int64{4, 4, 4, 8, 16, 32, 64, 128}
		e.SelectInterStride()
		Expect(e.ValidStride).To(BeFalse())
	})

	It("only looks at the last 8 strides, ignoring older history", func() {
		// four leading 4s would have been enough on their own, but they
		// fall outside the 8-entry window once 8 more strides follow.
		e.Strides = []int64{4, 4, 4, 4, 8, 16, 32, 64, 128, 256, 512, 1024}
		e.SelectInterStride()
		Expect(e.ValidStride).To(BeFalse())
	})

	It("breaks ties toward the most recently appended stride", func() {
		e.Strides = []int64{4, 4, 4, 4, 8, 8, 8, 8}
		e.SelectInterStride()
		Expect(e.ValidStride).To(BeTrue())
		Expect(e.CommittedStride).To(Equal(int64(8)))
	})

	It("commits an intra-warp stride independently of the inter-warp one", func() {
		e.IntraStrides = []int64{128, 128, 128, 128, 256}
		e.SelectIntraStride()
		Expect(e.ValidIntraStride).To(BeTrue())
		Expect(e.CommittedIntra).To(Equal(int64(128)))

		e.SelectInterStride()
		Expect(e.ValidStride).To(BeFalse())
	})
})

var _ = Describe("ShouldSelect", func() {
	It("never selects on cycle 0", func() {
		Expect(prefetch.ShouldSelect(0)).To(BeFalse())
	})

	It("selects at offset 10 within every 200-cycle period", func() {
		Expect(prefetch.ShouldSelect(10)).To(BeTrue())
		Expect(prefetch.ShouldSelect(210)).To(BeTrue())
		Expect(prefetch.ShouldSelect(410)).To(BeTrue())
	})

	It("does not select elsewhere in the period", func() {
		Expect(prefetch.ShouldSelect(11)).To(BeFalse())
		Expect(prefetch.ShouldSelect(9)).To(BeFalse())
		Expect(prefetch.ShouldSelect(200)).To(BeFalse())
	})
})
