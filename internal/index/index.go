package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/xplagiax/simengine/internal/dedup"
	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/pkg/types"
)

// Deduper is the slice of the deduplicator the index consults on insert.
type Deduper interface {
	SeenOrAdd(ctx context.Context, rec dedup.Record) (dedup.Outcome, error)
	Remove(ctx context.Context, hashes [][32]byte) error
}

// Config configures the index.
type Config struct {
	// Dimension is the embedding dimension all vectors must match.
	Dimension int
	// DataDir is where persistence files live.
	DataDir string
}

// Hit is one search result: the matched paper and its exact cosine score.
type Hit struct {
	Paper types.Paper
	Score float64
}

// Stats describes the index state.
type Stats struct {
	Count           int      `json:"count"`
	Dimension       int      `json:"dimension"`
	Strategy        Strategy `json:"strategy"`
	SupportsRemoval bool     `json:"supports_removal"`
	IsApproximate   bool     `json:"is_approximate"`
	Corrupted       bool     `json:"corrupted"`
	NextPaperID     uint64   `json:"next_paper_id"`
}

// Index is the process-local vector index. One reader/writer lock guards
// it: writers (add, migrate, remove, save, load) are exclusive, readers
// (search, stats) are concurrent. The papers map is authoritative; the
// ann structure is rebuilt from it on every migration.
type Index struct {
	cfg    Config
	deduper Deduper
	logger *slog.Logger

	mu          sync.RWMutex
	papers      map[uint64]*types.Paper
	vecs        map[uint64][]float32
	ann         ann
	nextPaperID uint64
	corrupted   bool
	// readOnly is set when a load found a strategy tag that does not
	// match the count band; inserts trigger the rebuild that clears it.
	readOnly bool
}

// New creates an empty flat index.
func New(cfg Config, deduper Deduper, logger *slog.Logger) *Index {
	vecs := make(map[uint64][]float32)
	return &Index{
		cfg:         cfg,
		deduper:     deduper,
		logger:      logger,
		papers:      make(map[uint64]*types.Paper),
		vecs:        vecs,
		ann:         newFlatANN(vecs),
		nextPaperID: 1,
	}
}

// Add inserts papers with precomputed embeddings. Duplicates (per the
// deduplicator) are skipped silently. Returns the count actually added.
func (ix *Index) Add(ctx context.Context, papers []types.Paper) (int, error) {
	if len(papers) == 0 {
		return 0, nil
	}

	for i := range papers {
		if len(papers[i].Embedding) != ix.cfg.Dimension {
			return 0, engerr.New(engerr.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector has %d dimensions, index wants %d",
					len(papers[i].Embedding), ix.cfg.Dimension), nil)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.readOnly {
		// A strategy-mismatched load serves reads until the first write,
		// which pays for the full rebuild into the correct band.
		ix.rebuildLocked(targetStrategy(len(ix.papers)))
		ix.readOnly = false
	}

	added := 0
	for i := range papers {
		p := papers[i]

		outcome, err := ix.deduper.SeenOrAdd(ctx, dedup.Record{
			ContentHash: p.ContentHash,
			DOI:         p.DOI,
			Title:       p.Title,
			Authors:     joinAuthors(p.Authors),
			Source:      p.Source,
			Type:        p.DocumentType,
			Year:        p.PublicationDate,
			PaperID:     ix.nextPaperID,
		})
		if err != nil {
			return added, engerr.Wrap(engerr.ErrCodeLedgerFailed, err)
		}
		if outcome == dedup.Duplicate {
			continue
		}

		p.PaperID = ix.nextPaperID
		ix.nextPaperID++

		ix.papers[p.PaperID] = &p
		ix.vecs[p.PaperID] = p.Embedding
		ix.ann.add(p.PaperID, p.Embedding)
		added++
	}

	if added > 0 {
		ix.maybeUpgradeLocked()
	}

	return added, nil
}

// Search returns the top-k matches with cosine score ≥ minScore. Ties
// break toward the lower paper ID.
func (ix *Index) Search(query []float32, k int, minScore float64) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.searchLocked(query, k, minScore)
}

// SearchBatch runs every query under one read lock using the underlying
// candidate structure, returning one result list per query.
func (ix *Index) SearchBatch(queries [][]float32, k int, minScore float64) ([][]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([][]Hit, len(queries))
	for i, q := range queries {
		hits, err := ix.searchLocked(q, k, minScore)
		if err != nil {
			return nil, err
		}
		out[i] = hits
	}
	return out, nil
}

func (ix *Index) searchLocked(query []float32, k int, minScore float64) ([]Hit, error) {
	if len(query) != ix.cfg.Dimension {
		return nil, engerr.New(engerr.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, index wants %d", len(query), ix.cfg.Dimension), nil)
	}
	if k <= 0 || len(ix.papers) == 0 {
		return []Hit{}, nil
	}

	ids := ix.ann.candidates(query, k)

	hits := make([]Hit, 0, len(ids))
	for _, id := range ids {
		vec, ok := ix.vecs[id]
		if !ok {
			continue
		}
		score := dot(query, vec)
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{Paper: *ix.papers[id], Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Paper.PaperID < hits[j].Paper.PaperID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove deletes papers by ID. Rejected with UnsupportedOperation when
// the current strategy cannot remove.
func (ix *Index) Remove(ctx context.Context, paperIDs []uint64) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !ix.ann.supportsRemoval() {
		return 0, engerr.Unsupported("strategy does not support removal").
			WithDetail("strategy", string(ix.ann.strategy()))
	}

	return ix.removeLocked(ctx, paperIDs, false)
}

// removeLocked deletes papers, optionally forcing a rebuild for
// strategies without native removal. Must hold the write lock.
func (ix *Index) removeLocked(ctx context.Context, paperIDs []uint64, viaRebuild bool) (int, error) {
	var hashes [][32]byte
	var present []uint64
	for _, id := range paperIDs {
		p, ok := ix.papers[id]
		if !ok {
			continue
		}
		hashes = append(hashes, p.ContentHash)
		present = append(present, id)
	}
	if len(present) == 0 {
		return 0, nil
	}

	for _, id := range present {
		delete(ix.papers, id)
		delete(ix.vecs, id)
	}

	if viaRebuild || !ix.ann.remove(present) {
		ix.rebuildLocked(targetStrategy(len(ix.papers)))
	}

	if err := ix.deduper.Remove(ctx, hashes); err != nil {
		return len(present), engerr.Wrap(engerr.ErrCodeLedgerFailed, err)
	}
	return len(present), nil
}

// RemoveDuplicates groups papers by content hash, keeps the lowest paper
// ID in each group, and removes the rest. Works on every strategy via a
// rebuild, so it is never rejected.
func (ix *Index) RemoveDuplicates(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	keeper := make(map[[32]byte]uint64)
	for id, p := range ix.papers {
		if best, ok := keeper[p.ContentHash]; !ok || id < best {
			keeper[p.ContentHash] = id
		}
	}

	var extra []uint64
	for id, p := range ix.papers {
		if keeper[p.ContentHash] != id {
			extra = append(extra, id)
		}
	}
	if len(extra) == 0 {
		return 0, nil
	}

	// The surviving copy keeps its ledger entry, so only the index-side
	// copies go; skip the ledger removal by deleting directly.
	for _, id := range extra {
		delete(ix.papers, id)
		delete(ix.vecs, id)
	}
	ix.rebuildLocked(targetStrategy(len(ix.papers)))

	return len(extra), nil
}

// Clear empties the index. Paper IDs stay monotonic: the counter is
// never reset, so logs remain sound across a session.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.papers = make(map[uint64]*types.Paper)
	ix.vecs = make(map[uint64][]float32)
	ix.ann = newFlatANN(ix.vecs)
	ix.corrupted = false
	ix.readOnly = false
}

// Stats returns a snapshot of the index state.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return Stats{
		Count:           len(ix.papers),
		Dimension:       ix.cfg.Dimension,
		Strategy:        ix.ann.strategy(),
		SupportsRemoval: ix.ann.supportsRemoval(),
		IsApproximate:   ix.ann.approximate(),
		Corrupted:       ix.corrupted,
		NextPaperID:     ix.nextPaperID,
	}
}

// Count returns the number of indexed papers.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.papers)
}

// maybeUpgradeLocked migrates to the strategy band for the current count.
// Must hold the write lock; readers never observe a partial structure
// because the swap happens under it.
func (ix *Index) maybeUpgradeLocked() {
	target := targetStrategy(len(ix.papers))
	if target == ix.ann.strategy() {
		return
	}

	ix.logger.Info("index strategy migration",
		slog.String("from", string(ix.ann.strategy())),
		slog.String("to", string(target)),
		slog.Int("count", len(ix.papers)))

	ix.rebuildLocked(target)
}

// rebuildLocked constructs the target structure from the authoritative
// vector map and swaps it in. Must hold the write lock.
func (ix *Index) rebuildLocked(target Strategy) {
	ids := ix.sortedIDsLocked()

	switch target {
	case StrategyHNSW:
		a := newHNSWANN()
		for _, id := range ids {
			a.add(id, ix.vecs[id])
		}
		ix.ann = a
	case StrategyIVFFlat:
		ix.ann = newIVFFlatANN(ix.vecs, ids)
	case StrategyIVFPQ:
		ix.ann = newIVFPQANN(ix.vecs, ids, ix.cfg.Dimension)
	default:
		ix.ann = newFlatANN(ix.vecs)
	}
}

func (ix *Index) sortedIDsLocked() []uint64 {
	ids := make([]uint64, 0, len(ix.vecs))
	for id := range ix.vecs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func joinAuthors(authors []string) string {
	return strings.Join(authors, "; ")
}

func splitAuthors(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "; ")
}
