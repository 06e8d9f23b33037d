package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_CountersAccumulate(t *testing.T) {
	r := NewRegistry()

	r.Inc(CounterIndexHits)
	r.Add(CounterPapersAdded, 3)
	r.Inc(CounterIndexHits)

	snap := r.Snapshot()
	assert.Equal(t, uint64(2), snap.Counters[CounterIndexHits])
	assert.Equal(t, uint64(3), snap.Counters[CounterPapersAdded])
}

func TestRegistry_ErrorsTaggedByKind(t *testing.T) {
	r := NewRegistry()

	r.IncError("ERR_401_INVALID_INPUT")
	r.IncError("ERR_401_INVALID_INPUT")
	r.IncError("ERR_304_DEADLINE_EXCEEDED")

	snap := r.Snapshot()
	assert.Equal(t, uint64(3), snap.Counters[CounterErrors])
	assert.Equal(t, uint64(2), snap.Counters[CounterErrors+":ERR_401_INVALID_INPUT"])
}

func TestRegistry_DerivedRates(t *testing.T) {
	r := NewRegistry()

	r.ObserveRequest(100 * time.Millisecond)
	r.ObserveRequest(300 * time.Millisecond)
	r.Inc(CounterCacheHits)
	r.Inc(CounterCacheHits)
	r.Inc(CounterCacheMisses)

	snap := r.Snapshot()
	assert.InDelta(t, 200.0, snap.AvgLatencyMS, 0.1)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRate, 1e-9)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Inc(CounterFederatorCalls)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(800), r.Snapshot().Counters[CounterFederatorCalls])
}
