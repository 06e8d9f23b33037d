package index

import (
	"github.com/coder/hnsw"
)

// HNSW tuning parameters, matching the sizing used for the 10k–100k
// band (~95% recall).
const (
	hnswM        = 32
	hnswEfSearch = 64
)

// hnswANN wraps the coder/hnsw graph. Removal is not supported in this
// band: deleting graph nodes degrades connectivity, so downgrades go
// through a full rebuild instead.
type hnswANN struct {
	graph *hnsw.Graph[uint64]
	// present tracks live IDs; the graph may briefly hold orphans while
	// a migration rebuild is prepared.
	present map[uint64]struct{}
}

var _ ann = (*hnswANN)(nil)

func newHNSWANN() *hnswANN {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = hnswM
	graph.EfSearch = hnswEfSearch
	graph.Ml = 0.25

	return &hnswANN{
		graph:   graph,
		present: make(map[uint64]struct{}),
	}
}

func (h *hnswANN) add(id uint64, vec []float32) {
	h.graph.Add(hnsw.MakeNode(id, vec))
	h.present[id] = struct{}{}
}

func (h *hnswANN) remove(ids []uint64) bool {
	return false
}

func (h *hnswANN) candidates(query []float32, k int) []uint64 {
	if h.graph.Len() == 0 {
		return nil
	}

	nodes := h.graph.Search(query, k)
	out := make([]uint64, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := h.present[node.Key]; ok {
			out = append(out, node.Key)
		}
	}
	return out
}

func (h *hnswANN) strategy() Strategy    { return StrategyHNSW }
func (h *hnswANN) supportsRemoval() bool { return false }
func (h *hnswANN) approximate() bool     { return true }
