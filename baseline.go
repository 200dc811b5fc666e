// Package gpucache implements the GPU memory-hierarchy cache core: a
// set-associative tag array, a non-blocking MSHR table, a read/write
// hit/miss policy dispatcher, and an inter-warp stride prefetcher, driven
// synchronously by a host simulator's own clock.
package gpucache

import (
	"fmt"

	"github.com/sarchlab/gpucache/internal/mshr"
	"github.com/sarchlab/gpucache/internal/prefetch"
	"github.com/sarchlab/gpucache/internal/tagging"
	"github.com/sarchlab/gpucache/protocol"
)

// missQueueEntry is one outgoing request waiting for the downstream port.
type missQueueEntry struct {
	req *protocol.Request
}

// sideTableEntry is the bookkeeping a demand or prefetch miss stashes
// between issuing its read and the matching Fill call. It is keyed by
// protocol.Request.ID, never by pointer identity, so a request that gets
// re-addressed in flight cannot desynchronize it from its own fill (the
// core itself never re-addresses a request; the prefetch path allocates a
// fresh one).
type sideTableEntry struct {
	setIndex     int
	way          int
	origDataSize uint32
	isPrefetch   bool
	// forceModified marks a write-allocate fetch: once the fill lands the
	// line must become MODIFIED even though no merged waiter was an
	// atomic, since the write that triggered the allocation is itself the
	// pending dirtying access.
	forceModified bool
}

// Cache is one cache instance: the tag array, MSHR table, bandwidth
// manager, stride prefetcher, locality evaluator, and stats it exclusively
// owns, plus the two bounded miss queues and the side table tying an
// in-flight miss back to the way it reserved.
type Cache struct {
	Config Config

	Tags       *tagging.TagArray
	MSHR       *mshr.Table
	Bandwidth  *BandwidthManager
	Stats      *Stats
	Locality   *LocalityEvaluator
	Prefetches *prefetch.Table

	downstream protocol.MemPort
	allocator  protocol.RequestAllocator

	demandMissQueue   []missQueueEntry
	prefetchMissQueue []missQueueEntry

	sideTable map[string]*sideTableEntry

	cycleCount uint64
}

// WaitingForFill reports whether req is still an outstanding miss: its
// side-table entry has not yet been consumed by Fill.
func (c *Cache) WaitingForFill(req *protocol.Request) bool {
	_, ok := c.sideTable[req.ID]
	return ok
}

// Cycle is one simulation tick: it drains at most one request from the
// miss queues into the downstream port (prefetch before demand, since the
// prefetch queue is capped tightly enough at enqueue time that this can
// never starve demand in practice), samples port utilization, advances
// the bandwidth counters, and — on the configured cadence — commits fresh
// strides in the prefetcher.
func (c *Cache) Cycle() {
	if !c.drainQueue(&c.prefetchMissQueue) {
		c.drainQueue(&c.demandMissQueue)
	}

	c.Stats.RecordPortUtilization(!c.Bandwidth.DataPortFree(), !c.Bandwidth.FillPortFree())
	c.Bandwidth.Replenish()

	c.cycleCount++
	if prefetch.ShouldSelect(c.cycleCount) {
		c.Prefetches.SelectAll()
	}
}

// drainQueue pops and pushes the head of queue to the downstream port if
// the port can accept it, reporting whether it did.
func (c *Cache) drainQueue(queue *[]missQueueEntry) bool {
	if len(*queue) == 0 {
		return false
	}

	head := (*queue)[0]
	if c.downstream.Full(head.req.DataSize, head.req.IsWrite) {
		return false
	}

	*queue = (*queue)[1:]
	c.downstream.Push(head.req)

	return true
}

// Fill ingresses a returned fill for req: it restores the request's
// original (sub-line) data size, installs the line (FillWay under
// ON_MISS, FillAddr under ON_FILL), marks the MSHR entry ready (its
// waiters stay in the table until drained through MSHR.NextAccess),
// promotes the line to MODIFIED if any merged waiter was atomic or the
// fill is a write-allocate fetch, and occupies the fill port.
func (c *Cache) Fill(req *protocol.Request, time uint64) {
	entry, ok := c.sideTable[req.ID]
	if !ok {
		panic(fmt.Sprintf("gpucache: fill for request %s with no side-table entry", req.ID))
	}

	req.SetDataSize(entry.origDataSize)

	blockAddr := c.Config.BlockAddr(req.Address)

	if c.Config.AllocPolicy == OnMiss {
		c.Tags.FillWay(entry.setIndex, entry.way, time, entry.isPrefetch)
	} else {
		tag := c.Config.Tag(req.Address)
		c.Tags.FillAddr(entry.setIndex, tag, blockAddr, time)
	}

	hasAtomic := c.MSHR.MarkReady(blockAddr)
	if hasAtomic || entry.forceModified {
		c.Tags.ForceModified(entry.setIndex, entry.way)
	}

	c.Bandwidth.UseFillPort()

	delete(c.sideTable, req.ID)
}

// readRequestOutcome is everything a hit-reserved/miss read handler needs
// from SendReadRequest to finish dispatching: the resolved status, any
// events generated, and eviction details for a MISS: Evicted is the line
// the MISS replaced, and Writeback is set if that line was MODIFIED.
type readRequestOutcome struct {
	Status    protocol.RequestStatus
	Events    protocol.EventList
	Writeback bool
	Evicted   tagging.Line
}

// SendReadRequest implements demand MSHR enlistment with merging. probe is
// the pure lookup the dispatcher already performed; admission (MSHR and
// queue room) is checked against it before the real, state-mutating
// tag-array access ever runs, so a rejected request never leaves a line
// RESERVED with no matching MSHR entry. A MISS resolution requires room
// for two demand-queue entries (itself plus a possible writeback of the
// line it evicts); a HIT_RESERVED resolution only merges into an existing
// MSHR entry and pushes nothing new downstream.
func (c *Cache) SendReadRequest(req *protocol.Request, probe tagging.ProbeResult, time uint64) readRequestOutcome {
	addr := req.Address
	setIndex := c.Config.SetIndex(addr)
	tag := c.Config.Tag(addr)
	blockAddr := c.Config.BlockAddr(addr)

	switch probe.Status {
	case protocol.HitReserved:
		if c.MSHR.Full(blockAddr) {
			return readRequestOutcome{Status: protocol.ReservationFail}
		}

		access := c.Tags.Access(setIndex, tag, blockAddr, time, c.Config.AllocPolicy)
		if access.WasPrefetchUnused {
			c.Stats.RecordPrefetchHitReserved()
		}

		if err := c.MSHR.Add(blockAddr, req); err != nil {
			panic(fmt.Sprintf("gpucache: %s", err))
		}

		return readRequestOutcome{Status: protocol.HitReserved}

	case protocol.Miss:
		// a read miss needs room for itself plus a possible writeback of
		// the victim it just evicted.
		if c.MSHR.Full(blockAddr) || c.Config.MissQueueSize-len(c.demandMissQueue) < 2 {
			return readRequestOutcome{Status: protocol.ReservationFail}
		}

		access := c.Tags.Access(setIndex, tag, blockAddr, time, c.Config.AllocPolicy)
		if access.Status != protocol.Miss {
			panic(fmt.Sprintf("gpucache: send_read_request: probe promised MISS but access resolved to %v", access.Status))
		}

		if err := c.MSHR.Add(blockAddr, req); err != nil {
			panic(fmt.Sprintf("gpucache: %s", err))
		}

		c.sideTable[req.ID] = &sideTableEntry{setIndex: setIndex, way: access.Way, origDataSize: req.DataSize}

		req.SetDataSize(c.Config.LineSize)

		c.demandMissQueue = append(c.demandMissQueue, missQueueEntry{req: req})

		events := protocol.EventList{protocol.ReadRequestSent}

		return readRequestOutcome{Status: protocol.Miss, Events: events, Writeback: access.Writeback, Evicted: access.Evicted}

	case protocol.ReservationFail:
		return readRequestOutcome{Status: protocol.ReservationFail}

	default:
		panic(fmt.Sprintf("gpucache: send_read_request saw unrecognized probe status %v", probe.Status))
	}
}

// SendWriteRequest appends event to events and pushes req to the demand
// miss queue, unconditionally; callers are responsible for having checked
// queue room first.
func (c *Cache) SendWriteRequest(req *protocol.Request, event protocol.Event, events protocol.EventList) protocol.EventList {
	c.demandMissQueue = append(c.demandMissQueue, missQueueEntry{req: req})
	return append(events, event)
}

// DemandMissQueueLen and PrefetchMissQueueLen expose the two bounded
// queues' current occupancy, for admission checks in policy.go and for
// tests asserting the queue-size invariant.
func (c *Cache) DemandMissQueueLen() int   { return len(c.demandMissQueue) }
func (c *Cache) PrefetchMissQueueLen() int { return len(c.prefetchMissQueue) }

// SendReadRequestPref implements prefetch issuance: independent of the
// demand path, gated much more tightly. A carrier whose block address is
// already covered by an outstanding miss is dropped (it would only
// duplicate a demand fetch already in flight); otherwise the prefetch
// must clear the MSHR, the prefetch miss queue, and a hard demand
// in-flight cap before it can touch any state at all.
func (c *Cache) SendReadRequestPref(req *protocol.Request, time uint64, readOnly bool) (accepted bool, writeback bool, evicted tagging.Line) {
	blockAddr := c.Config.BlockAddr(req.Address)

	if c.MSHR.Probe(blockAddr) {
		return false, false, tagging.Line{}
	}

	if c.MSHR.Full(blockAddr) {
		return false, false, tagging.Line{}
	}

	if len(c.prefetchMissQueue) >= c.Config.MissQueueSize {
		return false, false, tagging.Line{}
	}

	if len(c.demandMissQueue) > 2 {
		return false, false, tagging.Line{}
	}

	setIndex := c.Config.SetIndex(req.Address)
	tag := c.Config.Tag(req.Address)

	pr := c.Tags.Probe(setIndex, tag)
	if pr.Status != protocol.Miss {
		return false, false, tagging.Line{}
	}

	if readOnly && c.Tags.Line(setIndex, pr.Way).Status == tagging.Modified {
		return false, false, tagging.Line{}
	}

	access := c.Tags.Access(setIndex, tag, blockAddr, time, c.Config.AllocPolicy)
	if access.Status != protocol.Miss {
		// state shifted under us between Probe and Access (e.g. another
		// request just reserved the same victim way); refuse rather than
		// double-allocate.
		return false, false, tagging.Line{}
	}

	// mark the reserved line as prefetched so a demand read merging into
	// it before the fill is attributed as a prefetch hit-reserved.
	c.Tags.Sets[setIndex].Lines[access.Way].Prefetch = true

	if err := c.MSHR.Add(blockAddr, req); err != nil {
		panic(fmt.Sprintf("gpucache: %s", err))
	}

	c.sideTable[req.ID] = &sideTableEntry{setIndex: setIndex, way: access.Way, origDataSize: req.DataSize, isPrefetch: true}

	req.SetDataSize(c.Config.LineSize)
	c.prefetchMissQueue = append(c.prefetchMissQueue, missQueueEntry{req: req})

	return true, access.Writeback, access.Evicted
}
