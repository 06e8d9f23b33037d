// Package telemetry collects process-level counters for the similarity
// engine. The registry is constructed at startup and threaded through
// explicitly; there are no hidden globals.
package telemetry

import (
	"sort"
	"sync"
	"time"
)

// Well-known counter names.
const (
	CounterRequests         = "requests_total"
	CounterCacheHits        = "result_cache_hits_total"
	CounterCacheMisses      = "result_cache_misses_total"
	CounterIndexHits        = "index_hits_total"
	CounterFederatorCalls   = "federator_calls_total"
	CounterPapersAdded      = "papers_added_total"
	CounterDeadlineExceeded = "deadline_exceeded_total"
	CounterErrors           = "errors_total"
)

// Registry is a concurrency-safe counter and latency store.
type Registry struct {
	mu       sync.Mutex
	counters map[string]uint64

	requestCount uint64
	totalLatency time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]uint64)}
}

// Inc adds one to a counter.
func (r *Registry) Inc(name string) {
	r.Add(name, 1)
}

// Add increases a counter by n.
func (r *Registry) Add(name string, n uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += n
}

// IncError bumps the error counter tagged with the error kind.
func (r *Registry) IncError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[CounterErrors]++
	r.counters[CounterErrors+":"+kind]++
}

// ObserveRequest records one finished request and its latency.
func (r *Registry) ObserveRequest(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[CounterRequests]++
	r.requestCount++
	r.totalLatency += latency
}

// Snapshot is a point-in-time view of the registry.
type Snapshot struct {
	Counters     map[string]uint64 `json:"counters"`
	AvgLatencyMS float64           `json:"avg_latency_ms"`
	CacheHitRate float64           `json:"cache_hit_rate"`
}

// Snapshot returns the current counter values with derived rates.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	counters := make(map[string]uint64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}

	s := Snapshot{Counters: counters}
	if r.requestCount > 0 {
		s.AvgLatencyMS = float64(r.totalLatency.Milliseconds()) / float64(r.requestCount)
	}
	hits := counters[CounterCacheHits]
	misses := counters[CounterCacheMisses]
	if hits+misses > 0 {
		s.CacheHitRate = float64(hits) / float64(hits+misses)
	}
	return s
}

// Names lists the recorded counter names, sorted for stable output.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.counters))
	for k := range r.counters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
