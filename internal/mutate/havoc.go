// Package mutate implements the havoc/splice mutation engine and the
// ε-greedy bandit that arbitrates between them, per spec.md §4.6.
package mutate

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"os"
)

// interesting16/32/64 are the boundary-value tables from spec.md §6,
// little-endian, signed interpretation.
var (
	interesting16 = []int16{0, -32768, 32767, -1, 1, -128, 127, 255, -256, 256, 32767}
	interesting32 = []int32{0, -2147483648, 2147483647, -1, 1, -32768, 32767, -65536, 65535, -100663046, 100663046}
	interesting64 = []int64{0, -1, 1, -4294967296, 4294967296, -2147483648, 2147483647, 9223372036854775807, math.MinInt64}
)

// Havoc applies spec.md §4.6's seven-operator random mutation stage.
type Havoc struct {
	rng  *rand.Rand
	dict *Dictionary
}

// NewHavoc returns a Havoc mutator sharing the given RNG and dictionary.
func NewHavoc(rng *rand.Rand, dict *Dictionary) *Havoc {
	return &Havoc{rng: rng, dict: dict}
}

// Mutate reads seedPath, applies a random number of havoc operators, and
// writes the result to currentInputPath. Inputs shorter than 8 bytes are
// left untouched (the file is still copied to currentInputPath unmodified
// would be wrong per spec — spec.md says "skip", so nothing is written).
func (h *Havoc) Mutate(seedPath, currentInputPath string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return fmt.Errorf("read seed %s: %w", seedPath, err)
	}

	if len(data) < 8 {
		return nil
	}

	maxMutations := len(data) / 100
	if maxMutations < 4 {
		maxMutations = 4
	}
	numMutations := 1 + h.rng.Intn(maxMutations)

	for i := 0; i < numMutations; i++ {
		switch h.rng.Intn(7) {
		case 0:
			h.bitFlip(data)
		case 1:
			h.intRandomise(data)
		case 2:
			h.interestingValue(data)
		case 3:
			h.chunkCopy(data)
		case 4:
			data = h.dictInsert(data)
		case 5:
			h.dictReplace(data)
		default:
			h.arithmetic(data)
		}
	}

	if err := os.WriteFile(currentInputPath, data, 0o644); err != nil {
		return fmt.Errorf("write current input %s: %w", currentInputPath, err)
	}
	return nil
}

func (h *Havoc) bitFlip(data []byte) {
	idx := h.rng.Intn(len(data))
	bit := h.rng.Intn(8)
	data[idx] ^= 1 << uint(bit)
}

// widths enumerates the {2,4,8}-byte operand widths shared by several
// operators.
var widths = [3]int{2, 4, 8}

func (h *Havoc) intRandomise(data []byte) {
	w := widths[h.rng.Intn(3)]
	if len(data) < w {
		return
	}
	idx := h.rng.Intn(len(data) - w + 1)

	switch w {
	case 2:
		v := int16(h.rng.Intn(65536) - 32768)
		binary.LittleEndian.PutUint16(data[idx:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(data[idx:], h.rng.Uint32())
	case 8:
		binary.LittleEndian.PutUint64(data[idx:], h.rng.Uint64())
	}
}

func (h *Havoc) interestingValue(data []byte) {
	w := widths[h.rng.Intn(3)]
	if len(data) < w {
		return
	}
	idx := h.rng.Intn(len(data) - w + 1)

	switch w {
	case 2:
		v := interesting16[h.rng.Intn(len(interesting16))]
		binary.LittleEndian.PutUint16(data[idx:], uint16(v))
	case 4:
		v := interesting32[h.rng.Intn(len(interesting32))]
		binary.LittleEndian.PutUint32(data[idx:], uint32(v))
	case 8:
		v := interesting64[h.rng.Intn(len(interesting64))]
		binary.LittleEndian.PutUint64(data[idx:], uint64(v))
	}
}

func (h *Havoc) chunkCopy(data []byte) {
	if len(data) < 4 {
		return
	}
	maxChunk := len(data) / 2
	if maxChunk > 32 {
		maxChunk = 32
	}
	if maxChunk < 2 {
		return
	}
	chunkLen := 2 + h.rng.Intn(maxChunk-1)
	src := h.rng.Intn(len(data) - chunkLen + 1)
	dst := h.rng.Intn(len(data) - chunkLen + 1)

	chunk := make([]byte, chunkLen)
	copy(chunk, data[src:src+chunkLen])
	copy(data[dst:dst+chunkLen], chunk)
}

func (h *Havoc) arithmetic(data []byte) {
	type spec struct {
		width int
		delta int64
	}
	specs := []spec{{2, 256}, {4, 65536}, {8, 4294967296}}
	s := specs[h.rng.Intn(3)]
	if len(data) < s.width {
		return
	}
	idx := h.rng.Intn(len(data) - s.width + 1)
	delta := h.rng.Int63n(2*s.delta+1) - s.delta

	switch s.width {
	case 2:
		v := int64(int16(binary.LittleEndian.Uint16(data[idx:])))
		nv := arithmeticSaturate(v, delta, s.delta, math.MinInt16, math.MaxInt16)
		binary.LittleEndian.PutUint16(data[idx:], uint16(int16(nv)))
	case 4:
		v := int64(int32(binary.LittleEndian.Uint32(data[idx:])))
		nv := arithmeticSaturate(v, delta, s.delta, math.MinInt32, math.MaxInt32)
		binary.LittleEndian.PutUint32(data[idx:], uint32(int32(nv)))
	case 8:
		v := int64(binary.LittleEndian.Uint64(data[idx:]))
		nv := arithmeticSaturate(v, delta, s.delta, math.MinInt64, math.MaxInt64)
		binary.LittleEndian.PutUint64(data[idx:], uint64(nv))
	}
}

// arithmeticSaturate adds delta to v and, on overflow past [typeMin,
// typeMax], saturates to the delta's own bound rather than the operand
// type's bound: -deltaBound when delta was positive, +deltaBound when
// delta was negative. This mirrors mutation.py's arithmetic_mutation,
// which on a struct.pack overflow writes min_delta/max_delta directly
// instead of the packed type's true minimum/maximum.
func arithmeticSaturate(v, delta, deltaBound, typeMin, typeMax int64) int64 {
	nv := v + delta
	overflowed := nv < typeMin || nv > typeMax
	if delta > 0 && nv < v {
		overflowed = true // int64 wraparound at the width-8 case
	}
	if delta < 0 && nv > v {
		overflowed = true
	}
	if !overflowed {
		return nv
	}
	if delta > 0 {
		return -deltaBound
	}
	return deltaBound
}

func (h *Havoc) dictInsert(data []byte) []byte {
	if h.dict.Empty() {
		return data
	}
	token := h.dict.Token(h.rng.Intn(h.dict.Len()))

	if len(data) < 2 {
		return append(data, token...)
	}
	pos := h.rng.Intn(len(data))
	out := make([]byte, 0, len(data)+len(token))
	out = append(out, data[:pos]...)
	out = append(out, token...)
	out = append(out, data[pos:]...)
	return out
}

func (h *Havoc) dictReplace(data []byte) {
	if h.dict.Empty() || len(data) < 2 {
		return
	}
	token := h.dict.Token(h.rng.Intn(h.dict.Len()))
	if len(token) > len(data) {
		return
	}
	pos := h.rng.Intn(len(data) - len(token) + 1)
	copy(data[pos:pos+len(token)], token)
}
