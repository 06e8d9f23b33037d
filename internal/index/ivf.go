package index

import (
	"math"
	"sort"
)

// IVF tuning parameters, sized like the bands they serve.
const (
	ivfFlatNProbe = 10
	ivfPQNProbe   = 20
	ivfMaxNList   = 1000
	pqMaxNList    = 4000
	pqSubDim      = 8   // dimensions per subquantizer
	pqCodebook    = 256 // centroids per subquantizer (8-bit codes)
	kmeansIters   = 5
)

// nlistFor sizes the coarse quantizer from the training-set size.
func nlistFor(n, cap int) int {
	nlist := int(math.Sqrt(float64(n)))
	if nlist < 1 {
		nlist = 1
	}
	if nlist > cap {
		nlist = cap
	}
	return nlist
}

// kmeans clusters the given vectors. Initial centroids are strided over
// the input (which callers pass in paper-ID order), keeping training
// deterministic across processes.
func kmeans(vectors [][]float32, k, iters int) [][]float32 {
	if len(vectors) == 0 || k <= 0 {
		return nil
	}
	if k > len(vectors) {
		k = len(vectors)
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)
	stride := len(vectors) / k
	if stride == 0 {
		stride = 1
	}
	for i := 0; i < k; i++ {
		src := vectors[(i*stride)%len(vectors)]
		c := make([]float32, dim)
		copy(c, src)
		centroids[i] = c
	}

	assign := make([]int, len(vectors))
	for iter := 0; iter < iters; iter++ {
		for i, v := range vectors {
			assign[i] = nearestCentroid(centroids, v)
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // keep the previous centroid for empty clusters
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}

	return centroids
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for i, c := range centroids {
		if s := dot(c, v); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// topCentroids returns the nprobe highest-scoring cluster indexes.
func topCentroids(centroids [][]float32, query []float32, nprobe int) []int {
	type scored struct {
		idx   int
		score float64
	}
	all := make([]scored, len(centroids))
	for i, c := range centroids {
		all[i] = scored{idx: i, score: dot(c, query)}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	if nprobe > len(all) {
		nprobe = len(all)
	}
	out := make([]int, nprobe)
	for i := 0; i < nprobe; i++ {
		out[i] = all[i].idx
	}
	return out
}

// ivfFlatANN partitions vectors into coarse clusters and rescans probed
// clusters exactly. Removal is supported (posting-list delete), which is
// what "limited" removal means in this band: deletes are cheap but leave
// cluster sizes unbalanced until the next rebuild.
type ivfFlatANN struct {
	vecs      map[uint64][]float32
	centroids [][]float32
	postings  [][]uint64
}

var _ ann = (*ivfFlatANN)(nil)

// newIVFFlatANN trains the coarse quantizer over the current contents of
// vecs. ids must be sorted so training is deterministic.
func newIVFFlatANN(vecs map[uint64][]float32, ids []uint64) *ivfFlatANN {
	training := make([][]float32, len(ids))
	for i, id := range ids {
		training[i] = vecs[id]
	}

	centroids := kmeans(training, nlistFor(len(ids), ivfMaxNList), kmeansIters)
	a := &ivfFlatANN{
		vecs:      vecs,
		centroids: centroids,
		postings:  make([][]uint64, len(centroids)),
	}
	for _, id := range ids {
		a.add(id, vecs[id])
	}
	return a
}

func (a *ivfFlatANN) add(id uint64, vec []float32) {
	if len(a.centroids) == 0 {
		a.centroids = [][]float32{append([]float32(nil), vec...)}
		a.postings = make([][]uint64, 1)
	}
	c := nearestCentroid(a.centroids, vec)
	a.postings[c] = append(a.postings[c], id)
}

func (a *ivfFlatANN) remove(ids []uint64) bool {
	drop := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	for c, list := range a.postings {
		kept := list[:0]
		for _, id := range list {
			if _, gone := drop[id]; !gone {
				kept = append(kept, id)
			}
		}
		a.postings[c] = kept
	}
	return true
}

func (a *ivfFlatANN) candidates(query []float32, k int) []uint64 {
	type scored struct {
		id    uint64
		score float64
	}

	var all []scored
	for _, c := range topCentroids(a.centroids, query, ivfFlatNProbe) {
		for _, id := range a.postings[c] {
			if vec, ok := a.vecs[id]; ok {
				all = append(all, scored{id: id, score: dot(query, vec)})
			}
		}
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

func (a *ivfFlatANN) strategy() Strategy    { return StrategyIVFFlat }
func (a *ivfFlatANN) supportsRemoval() bool { return true }
func (a *ivfFlatANN) approximate() bool     { return true }

// ivfPQANN adds 8-bit product quantization on top of the coarse
// clusters: each vector is stored as one code byte per subquantizer.
// Scores inside probed clusters come from an ADC lookup table, then the
// index rescans survivors exactly from the authoritative map.
type ivfPQANN struct {
	dim       int
	subs      int
	centroids [][]float32
	codebooks [][][]float32 // [sub][code] -> sub-vector centroid
	postings  [][]uint64
	codes     map[uint64][]byte
}

var _ ann = (*ivfPQANN)(nil)

func newIVFPQANN(vecs map[uint64][]float32, ids []uint64, dim int) *ivfPQANN {
	subs := dim / pqSubDim
	if subs < 1 {
		subs = 1
	}

	training := make([][]float32, len(ids))
	for i, id := range ids {
		training[i] = vecs[id]
	}

	a := &ivfPQANN{
		dim:       dim,
		subs:      subs,
		centroids: kmeans(training, nlistFor(len(ids), pqMaxNList), kmeansIters),
		codebooks: make([][][]float32, subs),
		codes:     make(map[uint64][]byte, len(ids)),
	}
	a.postings = make([][]uint64, len(a.centroids))

	// Train one codebook per subspace.
	subLen := dim / subs
	for s := 0; s < subs; s++ {
		subTraining := make([][]float32, len(training))
		for i, v := range training {
			subTraining[i] = subSlice(v, s, subs, subLen)
		}
		k := pqCodebook
		if k > len(subTraining) {
			k = len(subTraining)
		}
		a.codebooks[s] = kmeans(subTraining, k, kmeansIters)
	}

	for _, id := range ids {
		a.add(id, vecs[id])
	}
	return a
}

// subSlice extracts subquantizer s's view of the vector. The final
// subspace absorbs any remainder dimensions.
func subSlice(v []float32, s, subs, subLen int) []float32 {
	start := s * subLen
	end := start + subLen
	if s == subs-1 {
		end = len(v)
	}
	return v[start:end]
}

func (a *ivfPQANN) add(id uint64, vec []float32) {
	if len(a.centroids) == 0 {
		a.centroids = [][]float32{append([]float32(nil), vec...)}
		a.postings = make([][]uint64, 1)
	}
	c := nearestCentroid(a.centroids, vec)
	a.postings[c] = append(a.postings[c], id)

	subLen := a.dim / a.subs
	code := make([]byte, a.subs)
	for s := 0; s < a.subs; s++ {
		code[s] = byte(nearestCentroid(a.codebooks[s], subSlice(vec, s, a.subs, subLen)))
	}
	a.codes[id] = code
}

func (a *ivfPQANN) remove(ids []uint64) bool {
	return false
}

func (a *ivfPQANN) candidates(query []float32, k int) []uint64 {
	if len(a.codes) == 0 {
		return nil
	}

	// ADC table: similarity of each query subspace to each codebook entry.
	subLen := a.dim / a.subs
	table := make([][]float64, a.subs)
	for s := 0; s < a.subs; s++ {
		q := subSlice(query, s, a.subs, subLen)
		table[s] = make([]float64, len(a.codebooks[s]))
		for c, entry := range a.codebooks[s] {
			table[s][c] = dot(q, entry)
		}
	}

	type scored struct {
		id    uint64
		score float64
	}
	var all []scored
	for _, c := range topCentroids(a.centroids, query, ivfPQNProbe) {
		for _, id := range a.postings[c] {
			code, ok := a.codes[id]
			if !ok {
				continue
			}
			var s float64
			for sub, b := range code {
				s += table[sub][b]
			}
			all = append(all, scored{id: id, score: s})
		}
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

func (a *ivfPQANN) strategy() Strategy    { return StrategyIVFPQ }
func (a *ivfPQANN) supportsRemoval() bool { return false }
func (a *ivfPQANN) approximate() bool     { return true }
