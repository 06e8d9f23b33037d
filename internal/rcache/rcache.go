// Package rcache caches finished similarity result sets by request
// fingerprint. The cache is advisory: a miss never fails a request and a
// backend outage falls through to live computation.
package rcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xplagiax/simengine/pkg/types"
)

// DefaultTTL is how long a result set stays valid.
const DefaultTTL = 24 * time.Hour

// DefaultSize bounds the in-memory backend.
const DefaultSize = 4096

// Fingerprint derives the deterministic cache key from the request
// shape. The execution path (index on or off) is deliberately excluded
// so cached results serve both paths.
func Fingerprint(theme, language, normalizedQuery string, threshold float64) string {
	content := fmt.Sprintf("%s\x00%s\x00%s\x00%.4f", theme, language, normalizedQuery, threshold)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}

// Backend is the pluggable result store. Implementations must be safe
// for concurrent use and must swallow their own failures.
type Backend interface {
	// Lookup returns the cached matches for a fingerprint, if present
	// and unexpired.
	Lookup(fingerprint string) ([]types.Match, bool)
	// Store caches matches under the fingerprint for ttl.
	Store(fingerprint string, matches []types.Match, ttl time.Duration)
	// Clear drops every entry.
	Clear()
}

type entry struct {
	matches []types.Match
	expiry  time.Time
}

// Memory is the in-process LRU backend.
type Memory struct {
	cache *lru.Cache[string, entry]
}

// Verify interface implementation at compile time.
var _ Backend = (*Memory)(nil)

// NewMemory creates the in-process backend with the given capacity.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	cache, _ := lru.New[string, entry](size)
	return &Memory{cache: cache}
}

// Lookup returns the cached matches if present and unexpired. Expired
// entries are removed on access.
func (m *Memory) Lookup(fingerprint string) ([]types.Match, bool) {
	e, ok := m.cache.Get(fingerprint)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiry) {
		m.cache.Remove(fingerprint)
		return nil, false
	}
	return e.matches, true
}

// Store caches matches under the fingerprint.
func (m *Memory) Store(fingerprint string, matches []types.Match, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.cache.Add(fingerprint, entry{
		matches: matches,
		expiry:  time.Now().Add(ttl),
	})
}

// Clear drops every entry.
func (m *Memory) Clear() {
	m.cache.Purge()
}
