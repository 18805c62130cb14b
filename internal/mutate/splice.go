package mutate

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/lopfuzz/lopfuzz/internal/seed"
)

// Splice combines two seeds at random split points, then immediately
// re-havocs the current seed, per spec.md §4.6.
type Splice struct {
	rng   *rand.Rand
	havoc *Havoc
}

// NewSplice returns a Splice mutator sharing the given RNG and Havoc
// fallback.
func NewSplice(rng *rand.Rand, havoc *Havoc) *Splice {
	return &Splice{rng: rng, havoc: havoc}
}

// Mutate implements spec.md §4.6's splice stage. If fewer than two seeds
// exist, or either participant is shorter than 4 bytes, it falls back to
// pure havoc on the current seed.
//
// Faithfully reproduces the original's observable quirk: after writing the
// spliced bytes to currentInputPath, it re-invokes havoc on the *original*
// current seed, which overwrites currentInputPath with a fresh havoc of
// the unspliced seed. The splice byte stream is therefore never actually
// the one executed. This is intentional — see DESIGN.md's open-question
// notes.
func (s *Splice) Mutate(current *seed.Seed, pool []*seed.Seed, currentInputPath string) error {
	others := make([]*seed.Seed, 0, len(pool))
	for _, sd := range pool {
		if sd.ID != current.ID {
			others = append(others, sd)
		}
	}
	if len(others) == 0 {
		return s.havoc.Mutate(current.Path, currentInputPath)
	}

	other := others[s.rng.Intn(len(others))]

	data1, err := os.ReadFile(current.Path)
	if err != nil {
		return fmt.Errorf("read seed %s: %w", current.Path, err)
	}
	data2, err := os.ReadFile(other.Path)
	if err != nil {
		return fmt.Errorf("read seed %s: %w", other.Path, err)
	}

	if len(data1) < 4 || len(data2) < 4 {
		return s.havoc.Mutate(current.Path, currentInputPath)
	}

	split1 := 1 + s.rng.Intn(len(data1)-2)
	split2 := 1 + s.rng.Intn(len(data2)-2)

	spliced := make([]byte, 0, split1+len(data2)-split2)
	spliced = append(spliced, data1[:split1]...)
	spliced = append(spliced, data2[split2:]...)

	if err := os.WriteFile(currentInputPath, spliced, 0o644); err != nil {
		return fmt.Errorf("write spliced input: %w", err)
	}

	return s.havoc.Mutate(current.Path, currentInputPath)
}
