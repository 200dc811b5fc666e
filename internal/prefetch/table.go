// Package prefetch implements the inter-warp (and intra-warp) stride
// prefetch engine: a small, fixed-capacity table of stride entries keyed
// by the demand program counter that triggered them, periodic stride
// commitment, and round-robin candidate address generation.
package prefetch

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Capacity is the maximum number of distinct PCs the table tracks at
// once; once full, accesses from untracked PCs are simply not recorded.
const Capacity = 32

// CTAEntry is the per-CTA bookkeeping for one stride table entry: whether
// the CTA currently has traffic against this PC, which warps have been
// seen, and a rotating offset used when scanning those warps for a
// prefetch target.
type CTAEntry struct {
	Active bool

	warpSet    mapset.Set[int]
	WarpIDs    []int // kept sorted; membership is tested via warpSet first
	WarpOffset int
}

func (c *CTAEntry) addWarp(id int) {
	if c.warpSet == nil {
		c.warpSet = mapset.NewSet[int]()
	}

	if c.warpSet.Contains(id) {
		return
	}

	c.warpSet.Add(id)
	c.WarpIDs = append(c.WarpIDs, id)
	sort.Ints(c.WarpIDs)
}

// WarpEntry is the per-warp bookkeeping for one stride table entry.
type WarpEntry struct {
	LoadCount     int
	InterLastAddr uint64
	IntraLastAddr uint64

	// PredictedHistory maps a load ordinal to the address a prior
	// candidate-generation pass predicted for it, bounded to ordinals in
	// (0, 500) by the only code that writes into it.
	PredictedHistory map[int]uint64
}

// Candidate is the single in-flight prefetch address computed for an
// entry, replaced on every qualifying demand read.
type Candidate struct {
	Valid   bool
	Addr    uint64
	WarpID  int
	PutTime int
}

// Entry is one tracked PC's worth of stride-prefetcher state.
type Entry struct {
	PC uint64

	CTAs  map[int]*CTAEntry
	Warps map[int]*WarpEntry

	Strides      []int64
	IntraStrides []int64

	CommittedStride  int64
	ValidStride      bool
	CommittedIntra   int64
	ValidIntraStride bool

	PrefetchHit  uint64
	PrefetchMiss uint64

	ActiveCTANum int
	CTAOffset    int

	Candidate Candidate
}

func newEntry(pc uint64) *Entry {
	return &Entry{
		PC:    pc,
		CTAs:  map[int]*CTAEntry{},
		Warps: map[int]*WarpEntry{},
	}
}

func (e *Entry) ctaEntry(id int) *CTAEntry {
	c, ok := e.CTAs[id]
	if !ok {
		c = &CTAEntry{}
		e.CTAs[id] = c
	}

	return c
}

func (e *Entry) warpEntry(id int) *WarpEntry {
	w, ok := e.Warps[id]
	if !ok {
		w = &WarpEntry{PredictedHistory: map[int]uint64{}}
		e.Warps[id] = w
	}

	return w
}

func (e *Entry) activeCTAIDs() []int {
	ids := make([]int, 0, len(e.CTAs))
	for id, c := range e.CTAs {
		if c.Active {
			ids = append(ids, id)
		}
	}

	sort.Ints(ids)

	return ids
}

const strideHistoryCap = 64

func (e *Entry) appendStride(s int64) {
	e.Strides = append(e.Strides, s)
	if len(e.Strides) > strideHistoryCap {
		e.Strides = e.Strides[len(e.Strides)-strideHistoryCap:]
	}
}

func (e *Entry) appendIntraStride(s int64) {
	e.IntraStrides = append(e.IntraStrides, s)
	if len(e.IntraStrides) > strideHistoryCap {
		e.IntraStrides = e.IntraStrides[len(e.IntraStrides)-strideHistoryCap:]
	}
}

// recordAccess is calculate_inter_warp_stride plus trace_warp_addr fused
// into one pass over the entry's bookkeeping for a single access.
func (e *Entry) recordAccess(cta, warp int, addr uint64) (prefetchHit, prefetchMiss bool) {
	c := e.ctaEntry(cta)
	c.Active = true

	w := e.warpEntry(warp)
	w.LoadCount++
	ordinal := w.LoadCount

	if predicted, ok := w.PredictedHistory[ordinal]; ok {
		if predicted == addr {
			e.PrefetchHit++
			prefetchHit = true
		} else {
			e.PrefetchMiss++
			prefetchMiss = true
		}
	}

	c.addWarp(warp)

	for _, otherID := range c.WarpIDs {
		if otherID == warp {
			continue
		}

		other, ok := e.Warps[otherID]
		if !ok || other.LoadCount != ordinal {
			continue
		}

		denom := otherID - warp
		if denom == 0 {
			continue
		}

		stride := (int64(other.InterLastAddr) - int64(addr)) / int64(denom)
		if stride != 0 {
			e.appendStride(stride)
		}
	}

	if w.LoadCount > 1 {
		if intraStride := int64(addr) - int64(w.IntraLastAddr); intraStride != 0 {
			e.appendIntraStride(intraStride)
		}
	}

	w.InterLastAddr = addr
	w.IntraLastAddr = addr

	e.ActiveCTANum = len(e.activeCTAIDs())

	return prefetchHit, prefetchMiss
}

// CandidateEligible implements the anti-starvation gate at issue time: a
// candidate may be issued if it is currently valid, or if it went invalid
// fewer than RetryCap attempts ago.
func (e *Entry) CandidateEligible() bool {
	return e.Candidate.Valid || e.Candidate.PutTime < RetryCap
}

// Table is the fixed-capacity, PC-indexed stride table.
type Table struct {
	entries map[uint64]*Entry
}

// NewTable builds an empty stride table.
func NewTable() *Table {
	return &Table{entries: map[uint64]*Entry{}}
}

// Lookup returns the entry tracked for pc, if any.
func (t *Table) Lookup(pc uint64) (*Entry, bool) {
	e, ok := t.entries[pc]
	return e, ok
}

// Full reports whether the table is at its 32-PC capacity.
func (t *Table) Full() bool {
	return len(t.entries) >= Capacity
}

// Len is the number of tracked PCs.
func (t *Table) Len() int { return len(t.entries) }

// Observe implements table population plus the per-access update. A new
// entry is installed only for an access by an active leader thread, when
// the PC is not already tracked and the table has room; once an entry
// exists for a PC, every subsequent matching access updates it regardless
// of which thread issued it.
func (t *Table) Observe(pc uint64, leaderThreadActive bool, cta, warp int, addr uint64) (prefetchHit, prefetchMiss bool) {
	e, tracked := t.entries[pc]
	if !tracked {
		if !leaderThreadActive || t.Full() {
			return false, false
		}

		e = newEntry(pc)
		t.entries[pc] = e
	}

	return e.recordAccess(cta, warp, addr)
}

// SelectAll runs stride commitment (both inter- and intra-warp) against
// every tracked entry; Cache.Cycle calls this on the periodic tick
// computed by ShouldSelect.
func (t *Table) SelectAll() {
	for _, e := range t.entries {
		e.SelectInterStride()
		e.SelectIntraStride()
	}
}

// Reset discards every tracked entry.
func (t *Table) Reset() {
	t.entries = map[uint64]*Entry{}
}

const (
	// SelectionPeriod and SelectionOffset reproduce the source's cadence:
	// stride commitment runs every 200 cycles, at offset 10 within the
	// period, never on cycle 0.
	SelectionPeriod = 200
	SelectionOffset = 10
	// RetryCap bounds how many generation passes after going invalid
	// CandidateEligible still reports a candidate as eligible. The cache's
	// prefetch issue path issues valid candidates only.
	RetryCap = 10
)

// ShouldSelect reports whether stride commitment should run on this
// cycle.
func ShouldSelect(cycle uint64) bool {
	if cycle == 0 {
		return false
	}

	return cycle%SelectionPeriod == SelectionOffset
}
