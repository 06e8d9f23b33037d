package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplagiax/simengine/internal/dedup"
	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/internal/normalize"
	"github.com/xplagiax/simengine/pkg/types"
)

// fakeDeduper is an in-memory Deduper for index tests.
type fakeDeduper struct {
	mu   sync.Mutex
	seen map[[32]byte]struct{}
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[[32]byte]struct{})}
}

func (f *fakeDeduper) SeenOrAdd(_ context.Context, rec dedup.Record) (dedup.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[rec.ContentHash]; ok {
		return dedup.Duplicate, nil
	}
	f.seen[rec.ContentHash] = struct{}{}
	return dedup.New, nil
}

func (f *fakeDeduper) Remove(_ context.Context, hashes [][32]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range hashes {
		delete(f.seen, h)
	}
	return nil
}

func testIndex(t *testing.T, dim int) *Index {
	t.Helper()
	return New(Config{Dimension: dim, DataDir: t.TempDir()}, newFakeDeduper(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testPaper(title string, vec []float32) types.Paper {
	return types.Paper{
		ContentHash: normalize.ContentHash(title, title+" abstract"),
		Title:       title,
		Abstract:    title + " abstract",
		Source:      "arxiv",
		Embedding:   vec,
	}
}

func unit(vals ...float32) []float32 {
	var sum float64
	for _, v := range vals {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vals
	}
	inv := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = v * inv
	}
	return out
}

func TestIndex_AddAndSearch(t *testing.T) {
	// Given: an empty flat index
	ix := testIndex(t, 4)
	ctx := context.Background()

	// When: three papers are added
	added, err := ix.Add(ctx, []types.Paper{
		testPaper("exact", unit(1, 0, 0, 0)),
		testPaper("orthogonal", unit(0, 1, 0, 0)),
		testPaper("near", unit(0.9, 0.1, 0, 0)),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	// Then: search returns the exact match first, the near match second
	hits, err := ix.Search(unit(1, 0, 0, 0), 2, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].Paper.Title)
	assert.Equal(t, "near", hits[1].Paper.Title)
	assert.Greater(t, hits[0].Score, 0.99)
}

func TestIndex_ScoresMonotonicallyNonIncreasing(t *testing.T) {
	ix := testIndex(t, 4)
	ctx := context.Background()

	papers := make([]types.Paper, 0, 10)
	for i := 0; i < 10; i++ {
		papers = append(papers, testPaper(fmt.Sprintf("p%d", i),
			unit(float32(i+1), float32(10-i), 1, 0)))
	}
	_, err := ix.Add(ctx, papers)
	require.NoError(t, err)

	hits, err := ix.Search(unit(1, 1, 1, 0), 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 10)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestIndex_TiesBreakTowardLowerPaperID(t *testing.T) {
	ix := testIndex(t, 4)
	ctx := context.Background()

	// Two distinct papers with identical embeddings.
	_, err := ix.Add(ctx, []types.Paper{
		testPaper("first", unit(1, 1, 0, 0)),
		testPaper("second", unit(1, 1, 0, 0)),
	})
	require.NoError(t, err)

	hits, err := ix.Search(unit(1, 1, 0, 0), 2, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Less(t, hits[0].Paper.PaperID, hits[1].Paper.PaperID)
}

func TestIndex_DuplicateHashSkippedSilently(t *testing.T) {
	// Given: a paper already indexed
	ix := testIndex(t, 4)
	ctx := context.Background()

	p := testPaper("dup", unit(1, 0, 0, 0))
	added, err := ix.Add(ctx, []types.Paper{p})
	require.NoError(t, err)
	require.Equal(t, 1, added)

	// When: the same content hash arrives again (different source)
	q := p
	q.Source = "crossref"
	added, err = ix.Add(ctx, []types.Paper{q})
	require.NoError(t, err)

	// Then: nothing is added and exactly one copy exists
	assert.Zero(t, added)
	assert.Equal(t, 1, ix.Count())
}

func TestIndex_MinScoreFiltersResults(t *testing.T) {
	ix := testIndex(t, 4)
	ctx := context.Background()

	_, err := ix.Add(ctx, []types.Paper{
		testPaper("close", unit(1, 0.1, 0, 0)),
		testPaper("far", unit(0, 0, 1, 0)),
	})
	require.NoError(t, err)

	hits, err := ix.Search(unit(1, 0, 0, 0), 10, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "close", hits[0].Paper.Title)
}

func TestIndex_SearchBatch(t *testing.T) {
	ix := testIndex(t, 4)
	ctx := context.Background()

	_, err := ix.Add(ctx, []types.Paper{
		testPaper("x", unit(1, 0, 0, 0)),
		testPaper("y", unit(0, 1, 0, 0)),
	})
	require.NoError(t, err)

	results, err := ix.SearchBatch([][]float32{
		unit(1, 0, 0, 0),
		unit(0, 1, 0, 0),
	}, 1, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0][0].Paper.Title)
	assert.Equal(t, "y", results[1][0].Paper.Title)
}

func TestIndex_DimensionMismatchRejected(t *testing.T) {
	ix := testIndex(t, 4)

	_, err := ix.Add(context.Background(), []types.Paper{testPaper("bad", unit(1, 0))})
	require.Error(t, err)
	assert.Equal(t, engerr.ErrCodeDimensionMismatch, engerr.GetCode(err))

	_, err = ix.Search([]float32{1, 0}, 5, 0)
	require.Error(t, err)
}

func TestIndex_RemoveSupportedOnFlat(t *testing.T) {
	ix := testIndex(t, 4)
	ctx := context.Background()

	_, err := ix.Add(ctx, []types.Paper{
		testPaper("keep", unit(1, 0, 0, 0)),
		testPaper("drop", unit(0, 1, 0, 0)),
	})
	require.NoError(t, err)

	hits, err := ix.Search(unit(0, 1, 0, 0), 1, 0)
	require.NoError(t, err)
	dropID := hits[0].Paper.PaperID

	removed, err := ix.Remove(ctx, []uint64{dropID})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, ix.Count())

	// Removal frees the ledger entry, so the paper can come back.
	added, err := ix.Add(ctx, []types.Paper{testPaper("drop", unit(0, 1, 0, 0))})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestIndex_RemoveRejectedOnHNSW(t *testing.T) {
	// Given: an index migrated to the HNSW band
	ix := testIndex(t, 4)
	ctx := context.Background()

	_, err := ix.Add(ctx, []types.Paper{testPaper("a", unit(1, 0, 0, 0))})
	require.NoError(t, err)

	ix.mu.Lock()
	ix.rebuildLocked(StrategyHNSW)
	ix.mu.Unlock()

	// When: remove is attempted
	_, err = ix.Remove(ctx, []uint64{1})

	// Then: the operation is rejected as unsupported
	require.Error(t, err)
	assert.Equal(t, engerr.ErrCodeUnsupportedOperation, engerr.GetCode(err))
}

func TestIndex_RemoveDuplicatesKeepsLowestID(t *testing.T) {
	ix := testIndex(t, 4)
	ctx := context.Background()

	_, err := ix.Add(ctx, []types.Paper{
		testPaper("unique", unit(1, 0, 0, 0)),
		testPaper("twin", unit(0, 1, 0, 0)),
	})
	require.NoError(t, err)

	// Force a second copy of "twin" past the deduplicator.
	twin := testPaper("twin", unit(0, 1, 0, 0))
	ix.mu.Lock()
	twin.PaperID = ix.nextPaperID
	ix.nextPaperID++
	ix.papers[twin.PaperID] = &twin
	ix.vecs[twin.PaperID] = twin.Embedding
	ix.ann.add(twin.PaperID, twin.Embedding)
	ix.mu.Unlock()

	require.Equal(t, 3, ix.Count())

	removed, err := ix.RemoveDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, ix.Count())

	hits, err := ix.Search(unit(0, 1, 0, 0), 2, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(2), hits[0].Paper.PaperID)
}

func TestIndex_ClearPreservesPaperIDMonotonicity(t *testing.T) {
	ix := testIndex(t, 4)
	ctx := context.Background()

	_, err := ix.Add(ctx, []types.Paper{testPaper("one", unit(1, 0, 0, 0))})
	require.NoError(t, err)
	firstID := ix.Stats().NextPaperID

	ix.Clear()
	assert.Zero(t, ix.Count())

	_, err = ix.Add(ctx, []types.Paper{testPaper("two", unit(0, 1, 0, 0))})
	require.NoError(t, err)

	hits, err := ix.Search(unit(0, 1, 0, 0), 1, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.GreaterOrEqual(t, hits[0].Paper.PaperID, firstID)
}

func TestIndex_Stats(t *testing.T) {
	ix := testIndex(t, 4)

	s := ix.Stats()
	assert.Zero(t, s.Count)
	assert.Equal(t, 4, s.Dimension)
	assert.Equal(t, StrategyFlat, s.Strategy)
	assert.True(t, s.SupportsRemoval)
	assert.False(t, s.IsApproximate)
	assert.False(t, s.Corrupted)
}

func TestTargetStrategy_Bands(t *testing.T) {
	assert.Equal(t, StrategyFlat, targetStrategy(0))
	assert.Equal(t, StrategyFlat, targetStrategy(10_000))
	assert.Equal(t, StrategyHNSW, targetStrategy(10_001))
	assert.Equal(t, StrategyHNSW, targetStrategy(100_000))
	assert.Equal(t, StrategyIVFFlat, targetStrategy(100_001))
	assert.Equal(t, StrategyIVFPQ, targetStrategy(1_000_001))
}

func TestHNSWANN_SearchAfterRebuild(t *testing.T) {
	// The HNSW structure must return the same top hit as flat for an
	// easy query once rebuilt from the vector map.
	ix := testIndex(t, 4)
	ctx := context.Background()

	papers := make([]types.Paper, 0, 50)
	for i := 0; i < 50; i++ {
		papers = append(papers, testPaper(fmt.Sprintf("n%d", i),
			unit(float32(i%7+1), float32(i%5+1), float32(i%3+1), 1)))
	}
	papers = append(papers, testPaper("target", unit(0, 0, 0, 1)))
	_, err := ix.Add(ctx, papers)
	require.NoError(t, err)

	ix.mu.Lock()
	ix.rebuildLocked(StrategyHNSW)
	ix.mu.Unlock()

	hits, err := ix.Search(unit(0, 0, 0, 1), 3, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "target", hits[0].Paper.Title)
}

func TestIVFFlatANN_FindsNearNeighbors(t *testing.T) {
	ix := testIndex(t, 4)
	ctx := context.Background()

	papers := make([]types.Paper, 0, 120)
	for i := 0; i < 120; i++ {
		papers = append(papers, testPaper(fmt.Sprintf("v%d", i),
			unit(float32(i%11+1), float32(i%13+1), 1, 0)))
	}
	papers = append(papers, testPaper("needle", unit(0, 0, 0, 1)))
	_, err := ix.Add(ctx, papers)
	require.NoError(t, err)

	ix.mu.Lock()
	ix.rebuildLocked(StrategyIVFFlat)
	ix.mu.Unlock()

	hits, err := ix.Search(unit(0, 0, 0, 1), 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "needle", hits[0].Paper.Title)
	assert.True(t, ix.Stats().IsApproximate)
}

func TestIVFPQANN_FindsNearNeighbors(t *testing.T) {
	ix := testIndex(t, 8)
	ctx := context.Background()

	papers := make([]types.Paper, 0, 80)
	for i := 0; i < 80; i++ {
		papers = append(papers, testPaper(fmt.Sprintf("q%d", i),
			unit(float32(i%5+1), float32(i%7+1), 1, 0, 0, 0, 1, 0)))
	}
	papers = append(papers, testPaper("pq-needle", unit(0, 0, 0, 0, 0, 0, 0, 1)))
	_, err := ix.Add(ctx, papers)
	require.NoError(t, err)

	ix.mu.Lock()
	ix.rebuildLocked(StrategyIVFPQ)
	ix.mu.Unlock()

	// PQ is approximate: the needle must appear in the top results.
	hits, err := ix.Search(unit(0, 0, 0, 0, 0, 0, 0, 1), 10, 0)
	require.NoError(t, err)
	found := false
	for _, h := range hits {
		if h.Paper.Title == "pq-needle" {
			found = true
		}
	}
	assert.True(t, found)
}
