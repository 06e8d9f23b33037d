// Package dedup maintains the content-hash ledger that keeps each paper
// in the index exactly once. A probabilistic filter answers "definitely
// new" in O(1); a SQLite ledger is the authoritative record. The filter
// is rebuildable from the ledger at any time.
package dedup

import (
	"hash/fnv"
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Filter is a bloom filter over 32-byte content hashes. False positives
// are possible; false negatives are not.
type Filter struct {
	mu     sync.RWMutex
	bits   *bitset.BitSet
	hashes uint
	size   uint
}

// NewFilter sizes a filter for n expected entries at the given
// false-positive rate (e.g. 0.01 for 1%).
func NewFilter(n uint, fpRate float64) *Filter {
	if n == 0 {
		n = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}

	// Standard sizing: m = -n·ln(p)/ln(2)², k = (m/n)·ln(2).
	m := uint(math.Ceil(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
	k := uint(math.Round(float64(m) / float64(n) * math.Ln2))
	if k == 0 {
		k = 1
	}

	return &Filter{
		bits:   bitset.New(m),
		hashes: k,
		size:   m,
	}
}

// indexes derives k bit positions from the content hash using the
// double-hashing scheme over two FNV-64 halves.
func (f *Filter) indexes(hash [32]byte) []uint {
	h1 := fnvSum(hash[:16])
	h2 := fnvSum(hash[16:])

	out := make([]uint, f.hashes)
	for i := uint(0); i < f.hashes; i++ {
		out[i] = uint((h1 + uint64(i)*h2) % uint64(f.size))
	}
	return out
}

func fnvSum(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Add marks a content hash as seen.
func (f *Filter) Add(hash [32]byte) {
	idx := f.indexes(hash)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range idx {
		f.bits.Set(i)
	}
}

// MayContain reports whether the hash may have been seen. A false result
// is definitive.
func (f *Filter) MayContain(hash [32]byte) bool {
	idx := f.indexes(hash)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, i := range idx {
		if !f.bits.Test(i) {
			return false
		}
	}
	return true
}

// SizeBytes returns the filter's bit-array size in bytes.
func (f *Filter) SizeBytes() uint {
	return f.size / 8
}
