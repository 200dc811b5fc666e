package prefetch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpucache/internal/prefetch"
)

// driveLoads issues target more accesses by warp against the entry for pc,
// in the same CTA, raising its LoadCount by target. LoadCount is kept per
// warp ID, so loads the warp already made in other CTAs still count.
func driveLoads(table *prefetch.Table, pc uint64, cta, warp int, target int) {
	for i := 0; i < target; i++ {
		table.Observe(pc, true, cta, warp, uint64(0x1000+i*0x40))
	}
}

var _ = Describe("GenerateInterCandidate", func() {
	var (
		table *prefetch.Table
		pc    uint64 = 0x400
	)

	BeforeEach(func() {
		table = prefetch.NewTable()

		// three active CTAs: 0, 1, 2
		table.Observe(pc, true, 0, 0, 0x1000)
		table.Observe(pc, true, 1, 0, 0x1000)
		table.Observe(pc, true, 2, 0, 0x1000)
	})

	It("produces no candidate without a committed, valid stride", func() {
		e, _ := table.Lookup(pc)
		e.GenerateInterCandidate(0, 0)
		Expect(e.Candidate.Valid).To(BeFalse())
	})

	It("predicts an address for a warp lagging the leader by (20,25] loads", func() {
		e, _ := table.Lookup(pc)
		e.ValidStride = true
		e.CommittedStride = 64

		// leader warp 0 in CTA 2 (target = current+2 = position 2 = CTA
		// ID 2) races ahead to 53 loads (3 from BeforeEach plus 50);
		// warp 1 reaches 28 and lags by 25.
		driveLoads(table, pc, 2, 0, 50)
		driveLoads(table, pc, 2, 1, 28)

		e.GenerateInterCandidate(0, 0)

		Expect(e.Candidate.Valid).To(BeTrue())
		Expect(e.Candidate.WarpID).To(Equal(1))

		leader := e.Warps[0]
		expected := uint64(int64(leader.InterLastAddr) + 64*int64(1-0))
		Expect(e.Candidate.Addr).To(Equal(expected))
	})

	It("records the predicted address in the candidate warp's history", func() {
		e, _ := table.Lookup(pc)
		e.ValidStride = true
		e.CommittedStride = 64

		driveLoads(table, pc, 2, 0, 50)
		driveLoads(table, pc, 2, 1, 28)

		e.GenerateInterCandidate(0, 0)

		// the ordinal is the leader's load count: 3 BeforeEach loads of
		// warp 0 plus the 50 driven here.
		predicted, ok := e.Warps[1].PredictedHistory[53]
		Expect(ok).To(BeTrue())
		Expect(predicted).To(Equal(e.Candidate.Addr))
	})

	It("increments put_time and invalidates the candidate on every call", func() {
		e, _ := table.Lookup(pc)
		before := e.Candidate.PutTime
		e.GenerateInterCandidate(0, 0)
		Expect(e.Candidate.PutTime).To(Equal(before + 1))
	})
})

var _ = Describe("GenerateIntraCandidate", func() {
	It("projects one committed intra-stride past the target warp's last address", func() {
		table := prefetch.NewTable()
		pc := uint64(0x800)

		for w := 0; w <= 10; w++ {
			table.Observe(pc, true, 0, w, 0x5000)
		}

		e, _ := table.Lookup(pc)
		e.ValidIntraStride = true
		e.CommittedIntra = 256
		e.Warps[10].IntraLastAddr = 0x9000

		e.GenerateIntraCandidate(0, 0)

		Expect(e.Candidate.Valid).To(BeTrue())
		Expect(e.Candidate.WarpID).To(Equal(10))
		Expect(e.Candidate.Addr).To(Equal(uint64(0x9000 + 256)))
	})

	It("produces nothing without a committed intra-stride", func() {
		table := prefetch.NewTable()
		pc := uint64(0x800)
		table.Observe(pc, true, 0, 0, 0x1000)

		e, _ := table.Lookup(pc)
		e.GenerateIntraCandidate(0, 0)
		Expect(e.Candidate.Valid).To(BeFalse())
	})
})
