// Package coverage extracts edge sets from the shared-memory coverage map
// and tracks global coverage, per spec.md §3 and §4.2.
package coverage

// MapSize is the fixed coverage map size: 2^16 possible edges.
const MapSize = 65536

// EdgeSet is the set of coverage-map indices hit during one run. Indices
// fit in a uint16 since MapSize is 65536.
type EdgeSet map[uint16]struct{}

// NewEdgeSet returns an empty edge set, optionally pre-sized.
func NewEdgeSet(hint int) EdgeSet {
	return make(EdgeSet, hint)
}

// ExtractEdges scans the map once and returns the set of indices whose
// byte is non-zero, i.e. the edges exercised in the last run. Hit-count
// bucketisation is intentionally not performed: any non-zero byte means
// "edge exercised in this run" per spec.md §3.
func ExtractEdges(mapBytes []byte) EdgeSet {
	edges := make(EdgeSet)
	for i, b := range mapBytes {
		if b != 0 {
			edges[uint16(i)] = struct{}{}
		}
	}
	return edges
}

// Classify reports whether edges contains at least one index not already
// in global, without mutating global. The returned edge set is the same
// one passed in.
func Classify(edges, global EdgeSet) (hasNew bool, result EdgeSet) {
	for e := range edges {
		if _, ok := global[e]; !ok {
			return true, edges
		}
	}
	return false, edges
}

// Diff returns the edges present in edges but not in global — the set of
// newly discovered edges. Must be called before Merge folds edges into
// global, or the result is always empty (spec.md §9's bandit-reward note).
func Diff(edges, global EdgeSet) EdgeSet {
	newEdges := make(EdgeSet)
	for e := range edges {
		if _, ok := global[e]; !ok {
			newEdges[e] = struct{}{}
		}
	}
	return newEdges
}

// Merge unions edges into global in place.
func Merge(global EdgeSet, edges EdgeSet) {
	for e := range edges {
		global[e] = struct{}{}
	}
}
