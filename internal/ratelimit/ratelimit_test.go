package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquire_BoundedByCapacityPlusRefill(t *testing.T) {
	// Given: a bucket with capacity 5 refilling 100 tokens/second
	l := New(map[string]Limit{
		"arxiv": {Capacity: 5, PerSecond: 100},
	})

	start := time.Now()
	granted := 0
	for time.Since(start) < 50*time.Millisecond {
		if l.TryAcquire("arxiv") {
			granted++
		}
	}
	elapsed := time.Since(start).Seconds()

	// Then: grants never exceed capacity + rate·elapsed (small slack for
	// scheduling jitter).
	maxAllowed := 5 + int(100*elapsed) + 2
	assert.LessOrEqual(t, granted, maxAllowed)
	assert.GreaterOrEqual(t, granted, 5, "the initial burst must be granted")
}

func TestTryAcquire_ExhaustsBurst(t *testing.T) {
	l := New(map[string]Limit{
		"pubmed": {Capacity: 2, PerSecond: 0.001},
	})

	assert.True(t, l.TryAcquire("pubmed"))
	assert.True(t, l.TryAcquire("pubmed"))
	assert.False(t, l.TryAcquire("pubmed"))
}

func TestTryAcquire_SourcesIndependent(t *testing.T) {
	l := New(map[string]Limit{
		"pubmed": {Capacity: 1, PerSecond: 0.001},
		"doaj":   {Capacity: 1, PerSecond: 0.001},
	})

	assert.True(t, l.TryAcquire("pubmed"))
	assert.False(t, l.TryAcquire("pubmed"))
	assert.True(t, l.TryAcquire("doaj"))
}

func TestTryAcquire_UnknownSourceUsesDefault(t *testing.T) {
	l := New(map[string]Limit{})
	assert.True(t, l.TryAcquire("brand-new-source"))
}

func TestReset_RestoresBuckets(t *testing.T) {
	l := New(map[string]Limit{
		"core": {Capacity: 1, PerSecond: 0.001},
	})

	assert.True(t, l.TryAcquire("core"))
	assert.False(t, l.TryAcquire("core"))

	l.Reset()
	assert.True(t, l.TryAcquire("core"))
}

func TestDefaultLimits_CoverTwelveSources(t *testing.T) {
	limits := DefaultLimits()
	assert.Len(t, limits, 12)
	for source, lim := range limits {
		assert.Positive(t, lim.Capacity, source)
		assert.Positive(t, lim.PerSecond, source)
	}
}
