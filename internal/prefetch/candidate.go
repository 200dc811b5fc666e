package prefetch

// leaderMode selects how calcAddr picks the "lead" warp inside a target
// CTA.
type leaderMode int

const (
	// leaderAutoPick chooses the warp with the highest load count in the
	// target CTA.
	leaderAutoPick leaderMode = iota
	// leaderCurrentWarp forces the leader to be the warp that triggered
	// candidate generation, used only when the target CTA is the current
	// one.
	leaderCurrentWarp
)

// lagMin and lagMax bound the load-count lag a candidate warp must have
// behind the leader warp for this entry to predict an address for it; a
// tuning knob carried over from the source with no documented
// justification for its exact bounds.
const (
	lagMin = 20
	lagMax = 25
)

func indexOf(ids []int, id int) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}

	return -1
}

// ctaIDAtOffset returns the active CTA offset positions away from
// currentCTA in the entry's sorted active-CTA list, rotating. It reports
// false if currentCTA is not itself active or no CTAs are active.
func (e *Entry) ctaIDAtOffset(currentCTA, offset int) (int, bool) {
	ids := e.activeCTAIDs()

	n := len(ids)
	if n == 0 {
		return 0, false
	}

	pos := indexOf(ids, currentCTA)
	if pos < 0 {
		return 0, false
	}

	target := ((pos+offset)%n + n) % n

	return ids[target], true
}

func (e *Entry) pickLeader(cta *CTAEntry, mode leaderMode, currentWarp int) (int, bool) {
	if mode == leaderCurrentWarp {
		if cta.warpSet != nil && cta.warpSet.Contains(currentWarp) {
			return currentWarp, true
		}

		return -1, false
	}

	best := -1
	bestLoad := -1

	for _, id := range cta.WarpIDs {
		w, ok := e.Warps[id]
		if !ok {
			continue
		}

		if w.LoadCount > bestLoad {
			bestLoad = w.LoadCount
			best = id
		}
	}

	if best == -1 {
		return -1, false
	}

	return best, true
}

// pickCandidateWarp rotates through cta's warp set starting from its
// rotating offset, looking for the first warp (other than the leader)
// whose load-count lag behind the leader falls in (lagMin, lagMax].
func (e *Entry) pickCandidateWarp(cta *CTAEntry, leaderID, leaderLoad int) (int, bool) {
	n := len(cta.WarpIDs)
	if n == 0 {
		return -1, false
	}

	start := ((cta.WarpOffset % n) + n) % n

	for i := 0; i < n; i++ {
		pos := (start + i) % n
		id := cta.WarpIDs[pos]

		if id == leaderID {
			continue
		}

		w, ok := e.Warps[id]
		if !ok {
			continue
		}

		lag := leaderLoad - w.LoadCount
		if lag > lagMin && lag <= lagMax {
			cta.WarpOffset = pos + 1
			return id, true
		}
	}

	return -1, false
}

// calcAddr is calcu_addr: given a target CTA already resolved to a
// concrete ID, attempt to produce a prefetch candidate for one of its
// warps. It returns false (leaving e.Candidate untouched beyond the reset
// already performed by the caller) on every path that fails to produce a
// fresh candidate.
func (e *Entry) calcAddr(targetCTA int, mode leaderMode, currentWarp int) bool {
	cta, ok := e.CTAs[targetCTA]
	if !ok || !cta.Active {
		e.CTAOffset++
		return false
	}

	if !e.ValidStride {
		return false
	}

	leaderID, ok := e.pickLeader(cta, mode, currentWarp)
	if !ok {
		return false
	}

	leader := e.Warps[leaderID]

	candidateID, ok := e.pickCandidateWarp(cta, leaderID, leader.LoadCount)
	if !ok {
		return false
	}

	addr := uint64(int64(leader.InterLastAddr) + e.CommittedStride*int64(candidateID-leaderID))

	if e.Candidate.WarpID == candidateID && e.Candidate.Addr == addr && e.Candidate.Valid {
		return false
	}

	e.Candidate = Candidate{Valid: true, Addr: addr, WarpID: candidateID, PutTime: 0}

	ordinal := leader.LoadCount
	if ordinal > 0 && ordinal < 500 {
		e.warpEntry(candidateID).PredictedHistory[ordinal] = addr
	}

	return true
}

// GenerateInterCandidate is calculate_inter_pref_addr: run after every
// qualifying L1 demand read against the entry the read's PC matched.
func (e *Entry) GenerateInterCandidate(currentCTA, currentWarp int) {
	e.Candidate.Valid = false
	e.Candidate.PutTime++

	e.CTAOffset++
	if e.CTAOffset < 2 {
		e.CTAOffset = 2
	}

	if len(e.activeCTAIDs()) == 0 {
		return
	}

	if target, ok := e.ctaIDAtOffset(currentCTA, 2); ok && e.calcAddr(target, leaderAutoPick, currentWarp) {
		return
	}

	if e.calcAddr(currentCTA, leaderCurrentWarp, currentWarp) {
		return
	}

	if target, ok := e.ctaIDAtOffset(currentCTA, 1); ok {
		e.calcAddr(target, leaderAutoPick, currentWarp)
	}
}

// GenerateIntraCandidate is calculate_intra_pref_addr: the simpler
// sibling used when the host's scheduling policy is not
// greedy-then-oldest. It targets the warp 10 positions ahead of the
// current one in the same CTA's warp set and projects one intra-warp
// stride past that warp's last seen address.
func (e *Entry) GenerateIntraCandidate(currentCTA, currentWarp int) {
	e.Candidate.Valid = false
	e.Candidate.PutTime++

	cta, ok := e.CTAs[currentCTA]
	if !ok || !cta.Active || !e.ValidIntraStride {
		return
	}

	n := len(cta.WarpIDs)
	if n == 0 {
		return
	}

	pos := indexOf(cta.WarpIDs, currentWarp)
	if pos < 0 {
		return
	}

	targetPos := ((pos+10)%n + n) % n
	targetWarp := cta.WarpIDs[targetPos]

	w, ok := e.Warps[targetWarp]
	if !ok {
		return
	}

	addr := uint64(int64(w.IntraLastAddr) + e.CommittedIntra)

	if e.Candidate.Valid && e.Candidate.Addr == addr && e.Candidate.WarpID == targetWarp {
		return
	}

	e.Candidate = Candidate{Valid: true, Addr: addr, WarpID: targetWarp, PutTime: 0}
}
