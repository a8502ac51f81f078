// Package fountain implements the chunk-level erasure code: each chunk's k
// source symbols are emitted verbatim, and n-k repair symbols are formed by
// XORing a deterministic, seed-chosen subset of the source symbols. Decode
// recovers the source symbols from any sufficiently large subset of
// received symbols via peeling, falling back to bounded Gaussian
// elimination over GF(2) when peeling alone stalls.
//
// Seed derivation and index-set selection are pure functions of
// (fileID, chunkIndex, symbolIndex) so encode and decode agree bit-for-bit
// without exchanging any side information.
package fountain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"golang.org/x/crypto/blake2s"
)

// maxDegree bounds the number of source symbols XORed into one repair
// symbol; the degree is drawn uniformly from {2,...,min(k,8)}.
const maxDegree = 8

// Symbol is one fountain-coded unit: a source symbol (Seed == 0, Index < k)
// or a repair symbol (Seed != 0, Index >= k).
type Symbol struct {
	Index uint16
	Seed  uint32
	Data  []byte
}

// DeriveSeed computes the deterministic repair-symbol seed for
// (fileID, chunkIndex, symbolIndex): the first 4 bytes of
// blake2s256(fileID || chunkIndex_be4 || symbolIndex_be2), big-endian.
func DeriveSeed(fileID [16]byte, chunkIndex uint32, symbolIndex uint16) uint32 {
	var buf [16 + 4 + 2]byte
	copy(buf[:16], fileID[:])
	binary.BigEndian.PutUint32(buf[16:20], chunkIndex)
	binary.BigEndian.PutUint16(buf[20:22], symbolIndex)

	sum := blake2s.Sum256(buf[:])
	return binary.BigEndian.Uint32(sum[:4])
}

// deriveIndexSet reconstructs the deterministic subset of [0, k) that a
// repair symbol's seed selects: a degree d drawn uniformly from
// {2, ..., min(k, maxDegree)} (or forced to 1 when k < 2), followed by d
// distinct indices drawn uniformly via a PRNG seeded with seed itself.
func deriveIndexSet(seed uint32, k int) []int {
	rng := rand.New(rand.NewSource(int64(seed)))

	maxDeg := k
	if maxDeg > maxDegree {
		maxDeg = maxDegree
	}

	d := 1
	if maxDeg >= 2 {
		d = 2 + rng.Intn(maxDeg-1)
	}
	if d > k {
		d = k
	}

	perm := rng.Perm(k)
	indices := append([]int(nil), perm[:d]...)
	sort.Ints(indices)
	return indices
}

// Encode splits data into ceil(len(data)/symbolSize) source symbols
// (zero-padded in the last symbol if needed) and emits
// ceil(k*repairOverhead) total symbols: the k source symbols verbatim,
// followed by n-k repair symbols built from deterministically chosen XOR
// combinations.
func Encode(fileID [16]byte, chunkIndex uint32, data []byte, symbolSize int, repairOverhead float64) []Symbol {
	k := (len(data) + symbolSize - 1) / symbolSize
	if k == 0 {
		k = 1
	}

	source := make([][]byte, k)
	for i := 0; i < k; i++ {
		buf := make([]byte, symbolSize)
		start := i * symbolSize
		end := start + symbolSize
		if start < len(data) {
			if end > len(data) {
				end = len(data)
			}
			copy(buf, data[start:end])
		}
		source[i] = buf
	}

	n := int(ceilF(float64(k) * repairOverhead))
	if n < k {
		n = k
	}

	symbols := make([]Symbol, 0, n)
	for i := 0; i < k; i++ {
		symbols = append(symbols, Symbol{Index: uint16(i), Seed: 0, Data: source[i]})
	}
	for j := k; j < n; j++ {
		seed := DeriveSeed(fileID, chunkIndex, uint16(j))
		idxs := deriveIndexSet(seed, k)

		payload := make([]byte, symbolSize)
		for _, idx := range idxs {
			xorInto(payload, source[idx])
		}
		symbols = append(symbols, Symbol{Index: uint16(j), Seed: seed, Data: payload})
	}

	return symbols
}

func ceilF(v float64) float64 {
	i := float64(int64(v))
	if i < v {
		return i + 1
	}
	return i
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// ErrUnrecoverable is wrapped by Decoder.Recover when fewer than k linearly
// independent symbols were available.
var ErrUnrecoverable = errors.New("fountain: insufficient symbols to recover chunk")

// row is one GF(2) linear equation over the source-symbol unknowns: the
// XOR of the symbols at indices equals data.
type row struct {
	indices []int
	data    []byte
}

// Decoder accumulates symbols for one chunk and recovers the k source
// symbols from any subset that carries enough information.
type Decoder struct {
	k          int
	symbolSize int
	known      [][]byte
	equations  []*row
}

// NewDecoder creates a Decoder expecting k source symbols of symbolSize
// bytes each.
func NewDecoder(k, symbolSize int) *Decoder {
	return &Decoder{
		k:          k,
		symbolSize: symbolSize,
		known:      make([][]byte, k),
	}
}

// AddSymbol records one received symbol. Duplicate source symbols are
// ignored; duplicate or redundant repair equations are harmless (dropped
// during solving).
func (d *Decoder) AddSymbol(index uint16, seed uint32, data []byte) {
	buf := make([]byte, d.symbolSize)
	copy(buf, data)

	if seed == 0 && int(index) < d.k {
		if d.known[index] == nil {
			d.known[index] = buf
		}
		return
	}

	idxs := deriveIndexSet(seed, d.k)
	d.equations = append(d.equations, &row{indices: append([]int(nil), idxs...), data: buf})
}

// Recover returns the concatenated k*symbolSize source bytes, or
// ErrUnrecoverable (naming the indices still missing) if the received
// symbols don't carry enough information.
func (d *Decoder) Recover() ([]byte, error) {
	d.peel()

	if missing := d.missingIndices(); len(missing) > 0 {
		d.gaussianEliminate()
	}

	missing := d.missingIndices()
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: indices %v", ErrUnrecoverable, missing)
	}

	out := make([]byte, d.k*d.symbolSize)
	for i := 0; i < d.k; i++ {
		copy(out[i*d.symbolSize:], d.known[i])
	}
	return out, nil
}

func (d *Decoder) missingIndices() []int {
	var missing []int
	for i := 0; i < d.k; i++ {
		if d.known[i] == nil {
			missing = append(missing, i)
		}
	}
	return missing
}

// peel repeatedly reduces pending equations against newly-known symbols,
// resolving any equation that collapses to a single unknown index, until
// no further progress is made.
func (d *Decoder) peel() {
	for {
		progress := false
		var stillPending []*row

		for _, r := range d.equations {
			reduced := d.reduceAgainstKnown(r)
			switch len(reduced.indices) {
			case 0:
				// fully resolved or redundant; drop.
			case 1:
				idx := reduced.indices[0]
				if d.known[idx] == nil {
					d.known[idx] = reduced.data
					progress = true
				}
			default:
				stillPending = append(stillPending, reduced)
			}
		}

		d.equations = stillPending
		if !progress {
			return
		}
	}
}

func (d *Decoder) reduceAgainstKnown(r *row) *row {
	data := append([]byte(nil), r.data...)
	indices := make([]int, 0, len(r.indices))
	for _, idx := range r.indices {
		if known := d.known[idx]; known != nil {
			xorInto(data, known)
		} else {
			indices = append(indices, idx)
		}
	}
	return &row{indices: indices, data: data}
}

// gaussianEliminate builds a row-echelon form from the remaining pending
// equations (each already reduced against known symbols), bounded to k
// rows (one pivot slot per unknown source index), then closes over
// singleton pivots until no more unknowns can be resolved. This is the
// bounded GF(2) fallback used when peeling alone stalls.
func (d *Decoder) gaussianEliminate() {
	pivots := make([]*row, d.k)

	insert := func(r *row) {
		for len(r.indices) > 0 {
			lead := r.indices[0]
			existing := pivots[lead]
			if existing == nil {
				pivots[lead] = r
				return
			}
			r = xorRows(r, existing)
		}
		// r.indices empty: redundant or inconsistent equation; drop either way.
	}

	for _, r := range d.equations {
		insert(r)
	}

	// Closure: repeatedly eliminate resolved (singleton) pivots out of
	// every other pivot row until a fixed point is reached.
	changed := true
	for changed {
		changed = false
		for i, r := range pivots {
			if r == nil || len(r.indices) <= 1 {
				continue
			}
			for _, j := range r.indices[1:] {
				pv := pivots[j]
				if pv != nil && len(pv.indices) == 1 {
					r = xorRows(r, pv)
					pivots[i] = r
					changed = true
				}
			}
		}
	}

	for i := 0; i < d.k; i++ {
		if r := pivots[i]; r != nil && len(r.indices) == 1 && d.known[i] == nil {
			d.known[i] = r.data
		}
	}

	d.equations = nil
}

func xorRows(a, b *row) *row {
	data := append([]byte(nil), a.data...)
	xorInto(data, b.data)

	set := make(map[int]bool, len(a.indices)+len(b.indices))
	for _, idx := range a.indices {
		set[idx] = !set[idx]
	}
	for _, idx := range b.indices {
		set[idx] = !set[idx]
	}

	indices := make([]int, 0, len(set))
	for idx, present := range set {
		if present {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	return &row{indices: indices, data: data}
}
