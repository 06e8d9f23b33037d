package dedup

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDedup(t *testing.T) *Deduplicator {
	t.Helper()
	d, err := Open(context.Background(), Config{
		LedgerPath:     filepath.Join(t.TempDir(), "papers.db"),
		ExpectedPapers: 1000,
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := NewFilter(1000, 0.01)

	for i := 0; i < 500; i++ {
		f.Add(testHash(fmt.Sprintf("paper-%d", i)))
	}
	for i := 0; i < 500; i++ {
		assert.True(t, f.MayContain(testHash(fmt.Sprintf("paper-%d", i))))
	}
}

func TestFilter_FalsePositiveRateBounded(t *testing.T) {
	f := NewFilter(1000, 0.01)

	for i := 0; i < 1000; i++ {
		f.Add(testHash(fmt.Sprintf("seen-%d", i)))
	}

	falsePositives := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if f.MayContain(testHash(fmt.Sprintf("unseen-%d", i))) {
			falsePositives++
		}
	}

	// 1% target; allow generous slack for hash variance.
	assert.Less(t, falsePositives, probes/25)
}

func TestSeenOrAdd_NewThenDuplicate(t *testing.T) {
	// Given: an empty deduplicator
	d := openTestDedup(t)
	ctx := context.Background()

	rec := Record{
		ContentHash: testHash("deep learning survey"),
		Title:       "Deep Learning",
		Source:      "arxiv",
	}

	// When: the same hash is probed twice
	first, err := d.SeenOrAdd(ctx, rec)
	require.NoError(t, err)
	second, err := d.SeenOrAdd(ctx, rec)
	require.NoError(t, err)

	// Then: first is New, second is Duplicate
	assert.Equal(t, New, first)
	assert.Equal(t, Duplicate, second)
}

func TestSeenOrAdd_SurvivesRestart(t *testing.T) {
	// Given: a ledger with one recorded paper
	dir := t.TempDir()
	path := filepath.Join(dir, "papers.db")
	ctx := context.Background()

	d1, err := Open(ctx, Config{LedgerPath: path, ExpectedPapers: 100}, discardLogger())
	require.NoError(t, err)

	rec := Record{ContentHash: testHash("persisted"), Title: "Persisted"}
	outcome, err := d1.SeenOrAdd(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, New, outcome)
	require.NoError(t, d1.Close())

	// When: the deduplicator reopens (filter rebuilt from ledger)
	d2, err := Open(ctx, Config{LedgerPath: path, ExpectedPapers: 100}, discardLogger())
	require.NoError(t, err)
	defer func() { _ = d2.Close() }()

	// Then: the hash is still a duplicate
	outcome, err = d2.SeenOrAdd(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, outcome)
}

func TestRemove_AllowsReinsertion(t *testing.T) {
	d := openTestDedup(t)
	ctx := context.Background()

	h := testHash("removable")
	_, err := d.SeenOrAdd(ctx, Record{ContentHash: h, Title: "Removable"})
	require.NoError(t, err)

	require.NoError(t, d.Remove(ctx, [][32]byte{h}))

	// The filter still over-approximates, but the ledger rules: New again.
	outcome, err := d.SeenOrAdd(ctx, Record{ContentHash: h, Title: "Removable"})
	require.NoError(t, err)
	assert.Equal(t, New, outcome)
}

func TestClear_EmptiesLedger(t *testing.T) {
	d := openTestDedup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := d.SeenOrAdd(ctx, Record{
			ContentHash: testHash(fmt.Sprintf("p%d", i)),
			Title:       fmt.Sprintf("Paper %d", i),
			Source:      "crossref",
		})
		require.NoError(t, err)
	}

	require.NoError(t, d.Clear(ctx))

	stats, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPapers)

	outcome, err := d.SeenOrAdd(ctx, Record{ContentHash: testHash("p0"), Title: "Paper 0"})
	require.NoError(t, err)
	assert.Equal(t, New, outcome)
}

func TestStats_CountsSources(t *testing.T) {
	d := openTestDedup(t)
	ctx := context.Background()

	_, err := d.SeenOrAdd(ctx, Record{ContentHash: testHash("a"), Title: "A", Source: "arxiv"})
	require.NoError(t, err)
	_, err = d.SeenOrAdd(ctx, Record{ContentHash: testHash("b"), Title: "B", Source: "arxiv"})
	require.NoError(t, err)
	_, err = d.SeenOrAdd(ctx, Record{ContentHash: testHash("c"), Title: "C", Source: "doaj"})
	require.NoError(t, err)

	stats, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalPapers)
	assert.Equal(t, 2, stats.UniqueSources)
}
