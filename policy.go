package gpucache

import (
	"fmt"

	"github.com/sarchlab/gpucache/internal/tagging"
	"github.com/sarchlab/gpucache/protocol"
)

// Access is the single entry point a host drives every demand or
// write-allocate request through: probe, dispatch by read/write and by
// the probe's resolved status, record stats and port usage, and — for L1
// demand reads — feed and then consult the stride prefetcher.
func (c *Cache) Access(req *protocol.Request, time uint64) (protocol.RequestStatus, protocol.EventList) {
	setIndex := c.Config.SetIndex(req.Address)
	tag := c.Config.Tag(req.Address)
	blockAddr := c.Config.BlockAddr(req.Address)

	probe := c.Tags.Probe(setIndex, tag)

	if c.Config.IsL1 && probe.Way >= 0 && !req.IsWrite &&
		(req.AccessType == protocol.GlobalRead || req.AccessType == protocol.LocalRead) {
		c.Locality.Observe(setIndex, probe.Way, req.WarpID)
	}

	var status protocol.RequestStatus
	var events protocol.EventList

	if req.IsWrite {
		status, events = c.dispatchWrite(req, setIndex, tag, blockAddr, probe, time)
	} else {
		status, events = c.dispatchRead(req, setIndex, tag, blockAddr, probe, time)
	}

	c.Stats.Record(req.AccessType, SelectStatsStatus(probe.Status, status))
	c.Bandwidth.UseDataPort(req, status, events)

	if c.Config.IsL1 && !req.IsWrite && req.AccessType.IsRead() {
		c.feedPrefetcher(req, time)
	}

	return status, events
}

// recordEvictionIfUseless attributes a MISS's evicted line to a useless
// prefetch: installed by a prefetch, evicted before any demand access
// ever used it.
func (c *Cache) recordEvictionIfUseless(evicted tagging.Line) {
	if evicted.Prefetch && !evicted.Used {
		c.Stats.RecordUselessPrefetch()
	}
}

// dispatchRead routes a read by the probe's resolved status: a HIT is
// serviced (and promoted to MODIFIED if atomic) directly against the tag
// array; a MISS or HIT_RESERVED falls through to SendReadRequest for MSHR
// enlistment; RESERVATION_FAIL is reported as-is.
func (c *Cache) dispatchRead(req *protocol.Request, setIndex int, tag, blockAddr uint64, probe tagging.ProbeResult, time uint64) (protocol.RequestStatus, protocol.EventList) {
	switch probe.Status {
	case protocol.Hit:
		access := c.Tags.Access(setIndex, tag, blockAddr, time, c.Config.AllocPolicy)

		if req.IsAtomic {
			c.Tags.ForceModified(setIndex, access.Way)
		}

		if access.WasPrefetchUnused {
			line := c.Tags.Line(setIndex, access.Way)
			c.Stats.RecordPrefetchHit(time - line.FillTime)
		}

		return protocol.Hit, nil

	case protocol.ReservationFail:
		return protocol.ReservationFail, nil

	default: // Miss, HitReserved
		outcome := c.SendReadRequest(req, probe, time)

		events := outcome.Events
		if outcome.Writeback {
			events = append(events, c.issueWriteback(outcome.Evicted, time))
		}

		if outcome.Status == protocol.Miss {
			c.recordEvictionIfUseless(outcome.Evicted)
		}

		return outcome.Status, events
	}
}

// dispatchWrite routes a write by the probe's resolved status into the
// write-hit or write-miss handler matrix.
func (c *Cache) dispatchWrite(req *protocol.Request, setIndex int, tag, blockAddr uint64, probe tagging.ProbeResult, time uint64) (protocol.RequestStatus, protocol.EventList) {
	switch probe.Status {
	case protocol.Hit:
		access := c.Tags.Access(setIndex, tag, blockAddr, time, c.Config.AllocPolicy)
		return c.writeHit(req, setIndex, access.Way)

	case protocol.ReservationFail:
		return protocol.ReservationFail, nil

	default: // Miss, HitReserved
		return c.writeMiss(req, setIndex, tag, blockAddr, probe, time)
	}
}

// resolvedWritePolicy collapses LocalWbGlobalWe into WriteBack or
// WriteEvict based on the request's access type, so the handler below
// never has to special-case it again.
func (c *Cache) resolvedWritePolicy(req *protocol.Request) WritePolicy {
	if c.Config.WritePolicy != LocalWbGlobalWe {
		return c.Config.WritePolicy
	}

	if req.AccessType == protocol.LocalWrite {
		return WriteBack
	}

	return WriteEvict
}

// writeHit applies the configured write-hit policy against an already
// tag-matched way: WRITE_BACK promotes the line to MODIFIED in place;
// WRITE_THROUGH keeps the line VALID but still forwards the write
// downstream; WRITE_EVICT invalidates the line and forwards the write,
// bypassing the cache entirely.
func (c *Cache) writeHit(req *protocol.Request, setIndex, way int) (protocol.RequestStatus, protocol.EventList) {
	switch c.resolvedWritePolicy(req) {
	case ReadOnly:
		panic("gpucache: write dispatched against a READ_ONLY cache")

	case WriteBack:
		c.Tags.ForceModified(setIndex, way)
		return protocol.Hit, nil

	case WriteThrough:
		if len(c.demandMissQueue) >= c.Config.MissQueueSize {
			return protocol.ReservationFail, nil
		}

		events := c.SendWriteRequest(req, protocol.WriteRequestSent, nil)

		return protocol.Hit, events

	case WriteEvict:
		if len(c.demandMissQueue) >= c.Config.MissQueueSize {
			return protocol.ReservationFail, nil
		}

		c.Tags.Invalidate(setIndex, way)
		events := c.SendWriteRequest(req, protocol.WriteRequestSent, nil)

		return protocol.Hit, events

	default:
		panic(fmt.Sprintf("gpucache: unrecognized write policy %v", c.Config.WritePolicy))
	}
}

// writeMiss applies the configured write-allocate policy. Under
// NO_WRITE_ALLOCATE the write bypasses the cache outright, whether the
// probe found MISS or HIT_RESERVED — no line state is ever touched under
// this policy, so there is nothing to merge into. Under WRITE_ALLOCATE the
// original write is sent downstream immediately (it never waits on a
// fill), and a distinct allocate-fetch request is synthesized and routed
// through the same SendReadRequest path an ordinary demand read uses: on a
// MISS probe that allocates a fresh line and enlists a new MSHR entry; on
// a HIT_RESERVED probe (some other fetch already has this block in
// flight) it simply merges into that entry. Either way, the allocate
// fetch's side-table entry (when one is created) is marked so Fill forces
// the line MODIFIED once it lands, without needing an atomic waiter to
// trigger that promotion — the write that triggered the allocation is
// itself the pending dirtying access.
func (c *Cache) writeMiss(req *protocol.Request, setIndex int, tag, blockAddr uint64, probe tagging.ProbeResult, time uint64) (protocol.RequestStatus, protocol.EventList) {
	if c.Config.WriteAllocatePolicy == NoWriteAllocate {
		if len(c.demandMissQueue) >= c.Config.MissQueueSize {
			return protocol.ReservationFail, nil
		}

		events := c.SendWriteRequest(req, protocol.WriteRequestSent, nil)

		return protocol.Miss, events
	}

	if probe.Status != protocol.Miss && probe.Status != protocol.HitReserved {
		panic(fmt.Sprintf("gpucache: write_miss dispatched against probe status %v", probe.Status))
	}

	// the write always needs its own slot; a true MISS additionally needs
	// one for the synthesized allocate fetch and one for a possible
	// writeback of the line that fetch evicts, so the worst case needs
	// three. a HIT_RESERVED merge touches the queue for the write alone.
	needed := 1
	if probe.Status == protocol.Miss {
		needed = 3
	}

	if c.MSHR.Full(blockAddr) || c.Config.MissQueueSize-len(c.demandMissQueue) < needed {
		return protocol.ReservationFail, nil
	}

	accessType := protocol.L2WriteAllocateAccess
	if c.Config.IsL1 {
		accessType = protocol.L1WriteAllocateAccess
	}

	allocateReq := c.allocator.Alloc(blockAddr, accessType, c.Config.LineSize, false)

	outcome := c.SendReadRequest(allocateReq, probe, time)
	if outcome.Status == protocol.ReservationFail {
		panic("gpucache: write-allocate fetch refused after its admission was already checked")
	}

	if entry, ok := c.sideTable[allocateReq.ID]; ok {
		entry.forceModified = true
	}

	events := c.SendWriteRequest(req, protocol.WriteRequestSent, nil)
	events = append(events, outcome.Events...)

	if outcome.Writeback && c.resolvedWritePolicy(req) != WriteThrough {
		events = append(events, c.issueWriteback(outcome.Evicted, time))
	}

	if outcome.Status == protocol.Miss {
		c.recordEvictionIfUseless(outcome.Evicted)
	}

	return protocol.Miss, events
}

// issueWriteback allocates a writeback request for an evicted MODIFIED
// line and pushes it straight onto the demand miss queue; it is always
// accepted, never subject to the queue-size admission check a fresh miss
// goes through, since the data it is carrying downstream already left the
// cache the instant the victim way was reallocated.
func (c *Cache) issueWriteback(evicted tagging.Line, time uint64) protocol.Event {
	accessType := protocol.L2WritebackAccess
	if c.Config.IsL1 {
		accessType = protocol.L1WritebackAccess
	}

	wb := c.allocator.Alloc(evicted.BlockAddr, accessType, c.Config.LineSize, true)
	c.demandMissQueue = append(c.demandMissQueue, missQueueEntry{req: wb})

	return protocol.WriteBackRequestSent
}

// feedPrefetcher updates the stride table with this demand read and, if
// the PC it matched now has a valid candidate, issues it through
// SendReadRequestPref. A candidate that has gone invalid is not issued,
// even while CandidateEligible still reports it within RetryCap.
func (c *Cache) feedPrefetcher(req *protocol.Request, time uint64) {
	c.Prefetches.Observe(req.PC, req.ThreadZeroActive, req.CTAID, req.WarpID, req.Address)

	entry, ok := c.Prefetches.Lookup(req.PC)
	if !ok {
		return
	}

	if c.Config.SchedulerPolicy == GreedyThenOldest {
		entry.GenerateInterCandidate(req.CTAID, req.WarpID)
	} else {
		entry.GenerateIntraCandidate(req.CTAID, req.WarpID)
	}

	if !entry.Candidate.Valid || !entry.CandidateEligible() {
		return
	}

	pref := c.allocator.Alloc(c.Config.BlockAddr(entry.Candidate.Addr), req.AccessType, c.Config.LineSize, false)
	pref.WarpID = entry.Candidate.WarpID
	pref.CTAID = req.CTAID

	accepted, writeback, evicted := c.SendReadRequestPref(pref, time, c.Config.WritePolicy == ReadOnly)
	if !accepted {
		return
	}

	if writeback {
		c.issueWriteback(evicted, time)
	}

	c.recordEvictionIfUseless(evicted)
}
