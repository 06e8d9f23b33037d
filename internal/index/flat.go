package index

import "sort"

// flatANN scans the authoritative vector map directly. Exact results,
// full removal support, linear cost per query.
type flatANN struct {
	vecs map[uint64][]float32
}

var _ ann = (*flatANN)(nil)

func newFlatANN(vecs map[uint64][]float32) *flatANN {
	return &flatANN{vecs: vecs}
}

func (f *flatANN) add(id uint64, vec []float32) {
	// The shared vector map is the storage; nothing extra to maintain.
}

func (f *flatANN) remove(ids []uint64) bool {
	return true
}

func (f *flatANN) candidates(query []float32, k int) []uint64 {
	type scored struct {
		id    uint64
		score float64
	}

	all := make([]scored, 0, len(f.vecs))
	for id, vec := range f.vecs {
		all = append(all, scored{id: id, score: dot(query, vec)})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})

	if k > len(all) {
		k = len(all)
	}
	out := make([]uint64, k)
	for i := 0; i < k; i++ {
		out[i] = all[i].id
	}
	return out
}

func (f *flatANN) strategy() Strategy    { return StrategyFlat }
func (f *flatANN) supportsRemoval() bool { return true }
func (f *flatANN) approximate() bool     { return false }
