package seed

import (
	"sort"
	"sync"
)

// Queue is the append-only, id-indexed seed store plus the edge→seed
// inverted index (spec.md §3 "Edge→seed index"). Ids are dense and never
// reused: the i-th seed inserted has id i.
//
// Queue guards its state with a mutex even though spec.md §5 mandates a
// single fuzzing goroutine — the cost is negligible and it keeps Queue
// safe to exercise from parallel subtests, matching the defensive style
// of every stateful manager in the corpus this was grounded on.
type Queue struct {
	mu    sync.Mutex
	seeds []*Seed
	index map[uint16][]uint64 // edge -> seed ids covering it, never shrinks
}

// NewQueue returns an empty seed queue.
func NewQueue() *Queue {
	return &Queue{index: make(map[uint16][]uint64)}
}

// Add appends a seed, assigning it the next dense id, and extends the
// edge→seed index for every edge in its coverage. The favored flag is
// left false; it is set only by RecomputeFavored.
func (q *Queue) Add(s *Seed) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s.ID = uint64(len(q.seeds))
	s.Favored = false
	q.seeds = append(q.seeds, s)
	for e := range s.Edges {
		q.index[e] = append(q.index[e], s.ID)
	}
}

// Len returns the number of seeds in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.seeds)
}

// At returns the seed with the given id, or nil if out of range.
func (q *Queue) At(id uint64) *Seed {
	q.mu.Lock()
	defer q.mu.Unlock()
	if id >= uint64(len(q.seeds)) {
		return nil
	}
	return q.seeds[id]
}

// All returns a snapshot slice of every seed in insertion order. The
// returned slice shares Seed pointers with the queue; callers must not
// mutate fields other than Favored.
func (q *Queue) All() []*Seed {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Seed, len(q.seeds))
	copy(out, q.seeds)
	return out
}

// RecomputeFavored implements spec.md §4.2's favored-recomputation pass:
// unmark every seed, then for each edge with a non-empty covering-seed
// list, mark the seed with the smallest (valuation, id) as favored.
func (q *Queue) RecomputeFavored() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, s := range q.seeds {
		s.Favored = false
	}

	for _, ids := range q.index {
		if len(ids) == 0 {
			continue
		}
		best := ids[0]
		for _, id := range ids[1:] {
			if lessFavored(q.seeds[id], q.seeds[best]) {
				best = id
			}
		}
		q.seeds[best].Favored = true
	}
}

// lessFavored reports whether a should win over b as the favored seed for
// a shared edge: smaller valuation, ties broken by lower id.
func lessFavored(a, b *Seed) bool {
	va, vb := a.Valuation(), b.Valuation()
	if va != vb {
		return va < vb
	}
	return a.ID < b.ID
}

// EdgeCoverers returns the sorted seed ids that cover the given edge, or
// an empty slice if none do. Exposed for tests verifying the invariant that every
// edge a seed covers appears in the index under that seed's id.
func (q *Queue) EdgeCoverers(edge uint16) []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := q.index[edge]
	out := make([]uint64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
