// Package tagging implements the set-associative tag array: per-line
// state, probing, allocation, fill, and windowed miss-rate tracking. It has
// no notion of requests, MSHRs, or policy dispatch — callers decompose an
// address into (set, tag, block address) themselves and hand the pieces
// in, the way the teacher's directory/tagArrayImpl separates set lookup
// from block bookkeeping.
package tagging

// Status is a cache line's position in its lifecycle.
type Status int

const (
	Invalid Status = iota
	Valid
	Reserved
	Modified
)

func (s Status) String() string {
	switch s {
	case Invalid:
		return "INVALID"
	case Valid:
		return "VALID"
	case Reserved:
		return "RESERVED"
	case Modified:
		return "MODIFIED"
	default:
		return "UNKNOWN_STATUS"
	}
}

// Line is one way of one set. AllocTime/LastAccessTime/FillTime are the
// three clocks the replacement policy and prefetch-interval accounting
// read from; they are cycle counts supplied by the host, not wall-clock
// time.
type Line struct {
	Tag            uint64
	BlockAddr      uint64
	Status         Status
	AllocTime      uint64
	LastAccessTime uint64
	FillTime       uint64

	// Used records whether the line has served at least one demand
	// access since its current allocation.
	Used bool
	// Prefetch records that the line was installed by a prefetch; a demand
	// access does not clear it, so Prefetch && !Used is what identifies a
	// prefetched line demand has not yet touched. That pair feeds the
	// prefetch-hit / prefetch-hit-reserved / useless-prefetch counters.
	Prefetch bool
}

// matches reports whether this line currently holds the given tag; an
// INVALID line never matches, regardless of its stale Tag field.
func (l Line) matches(tag uint64) bool {
	return l.Status != Invalid && l.Tag == tag
}

// wasPrefetchUnused reports whether this line was installed by a prefetch
// and has not yet served a demand access — the condition the tag array
// uses to attribute a hit or hit-reserved to the prefetcher rather than to
// ordinary locality.
func (l Line) wasPrefetchUnused() bool {
	return l.Prefetch && !l.Used
}
