// Package seed holds the seed record, the seed queue, and the edge→seed
// inverted index, plus favored-seed minimisation, per spec.md §3 and §4.4.
package seed

import (
	"fmt"
	"os"

	"github.com/lopfuzz/lopfuzz/internal/coverage"
)

// Seed is an immutable-after-creation descriptor of a retained input.
// Only ID (assigned by Queue.Add) and the Favored flag (cleared by
// Queue.Add, set by Queue.RecomputeFavored) change after construction.
type Seed struct {
	ID       uint64
	Path     string
	Edges    coverage.EdgeSet
	ExecTime float64 // seconds, fractional
	Size     int64   // bytes
	Favored  bool
}

// New constructs a Seed, measuring its file size off disk the way
// mini-lop-main/seed.py's Seed.__init__ does (os.path.getsize), rather
// than trusting a caller-supplied size.
func New(id uint64, path string, edges coverage.EdgeSet, execTime float64) (*Seed, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat seed %s: %w", path, err)
	}
	return &Seed{
		ID:       id,
		Path:     path,
		Edges:    edges,
		ExecTime: execTime,
		Size:     info.Size(),
	}, nil
}

// Valuation is the favored-selection minimisation key: exec_time * size.
// Lower is better.
func (s *Seed) Valuation() float64 {
	return s.ExecTime * float64(s.Size)
}
