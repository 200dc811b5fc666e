package gpucache

import mapset "github.com/deckarep/golang-set/v2"

// localityWindow bounds how many recent warp IDs are kept per tag
// position; just enough to report a useful "how many distinct warps have
// recently touched this line" locality figure without growing unbounded.
const localityWindow = 8

// LocalityEvaluator tracks, per (set, way), a bounded window of the warp
// IDs that have recently probed that position. It is pure instrumentation
// for hit/miss locality statistics — spec §3 is explicit that it is not
// load-bearing for correctness, and no cache operation consults it to
// make a decision.
type LocalityEvaluator struct {
	numSets int
	assoc   int
	windows [][][]int
}

// NewLocalityEvaluator builds an evaluator sized for the given tag array
// shape.
func NewLocalityEvaluator(numSets, assoc int) *LocalityEvaluator {
	windows := make([][][]int, numSets)
	for i := range windows {
		windows[i] = make([][]int, assoc)
	}

	return &LocalityEvaluator{numSets: numSets, assoc: assoc, windows: windows}
}

// Observe appends warpID to the window for (setIndex, way), evicting the
// oldest entry once the window is full.
func (l *LocalityEvaluator) Observe(setIndex, way, warpID int) {
	w := append(l.windows[setIndex][way], warpID)
	if len(w) > localityWindow {
		w = w[len(w)-localityWindow:]
	}

	l.windows[setIndex][way] = w
}

// DistinctWarps reports how many distinct warps appear in the current
// window for (setIndex, way).
func (l *LocalityEvaluator) DistinctWarps(setIndex, way int) int {
	seen := mapset.NewSet[int]()
	for _, id := range l.windows[setIndex][way] {
		seen.Add(id)
	}

	return seen.Cardinality()
}

// Reset clears every window.
func (l *LocalityEvaluator) Reset() {
	for i := range l.windows {
		for j := range l.windows[i] {
			l.windows[i][j] = nil
		}
	}
}
