// Package ratelimit provides per-source token buckets for outbound
// external-API calls. The default backend is in-process; a shared-cache
// backend can be plugged in when cross-worker accounting is configured.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limit describes one source's bucket: burst capacity and refill rate in
// tokens per second.
type Limit struct {
	Capacity  int     `yaml:"capacity"`
	PerSecond float64 `yaml:"per_second"`
}

// DefaultLimits mirrors the published request budgets of the configured
// sources, expressed as requests per minute converted to tokens/second.
func DefaultLimits() map[string]Limit {
	perMinute := map[string]int{
		"crossref":         50,
		"pubmed":           10,
		"semantic_scholar": 100,
		"arxiv":            30,
		"openalex":         100,
		"europepmc":        50,
		"doaj":             30,
		"zenodo":           60,
		"core":             30,
		"internet_archive": 30,
		"unpaywall":        50,
		"hal":              30,
	}

	limits := make(map[string]Limit, len(perMinute))
	for source, n := range perMinute {
		limits[source] = Limit{Capacity: n, PerSecond: float64(n) / 60.0}
	}
	return limits
}

// defaultLimit applies to sources without an explicit entry.
var defaultLimit = Limit{Capacity: 100, PerSecond: 100.0 / 60.0}

// Backend is the pluggable bucket store. The in-process implementation
// is per-worker: with N workers the effective budget is N times the
// configured one. Deployments needing exact cross-worker accounting
// plug in a shared-cache backend.
type Backend interface {
	// TryAcquire consumes one token for the source if available.
	TryAcquire(source string) bool
	// Reset restores all buckets to full.
	Reset()
}

// Limiter is the in-process token-bucket backend.
type Limiter struct {
	limits map[string]Limit

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// Verify interface implementation at compile time.
var _ Backend = (*Limiter)(nil)

// New creates a limiter with the given per-source limits. Unknown
// sources fall back to a generous default bucket.
func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{
		limits:  limits,
		buckets: make(map[string]*rate.Limiter),
	}
}

// TryAcquire consumes one token for the source if available. Never
// blocks.
func (l *Limiter) TryAcquire(source string) bool {
	return l.bucket(source).Allow()
}

// Reset restores all buckets to full.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*rate.Limiter)
}

func (l *Limiter) bucket(source string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[source]
	if !ok {
		lim, exists := l.limits[source]
		if !exists {
			lim = defaultLimit
		}
		b = rate.NewLimiter(rate.Limit(lim.PerSecond), lim.Capacity)
		l.buckets[source] = b
	}
	return b
}
