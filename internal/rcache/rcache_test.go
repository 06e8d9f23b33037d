package rcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplagiax/simengine/pkg/types"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("ml", "en", "neural networks models", 0.7)
	b := Fingerprint("ml", "en", "neural networks models", 0.7)
	assert.Equal(t, a, b)
}

func TestFingerprint_VariesWithInputs(t *testing.T) {
	base := Fingerprint("ml", "en", "neural networks", 0.7)
	assert.NotEqual(t, base, Fingerprint("bio", "en", "neural networks", 0.7))
	assert.NotEqual(t, base, Fingerprint("ml", "es", "neural networks", 0.7))
	assert.NotEqual(t, base, Fingerprint("ml", "en", "other text", 0.7))
	assert.NotEqual(t, base, Fingerprint("ml", "en", "neural networks", 0.8))
}

func TestMemory_StoreAndLookup(t *testing.T) {
	m := NewMemory(10)
	matches := []types.Match{{Score: 0.9, Band: types.BandVeryHigh}}

	m.Store("fp", matches, time.Minute)

	got, ok := m.Lookup("fp")
	require.True(t, ok)
	assert.Equal(t, matches, got)
}

func TestMemory_MissReturnsFalse(t *testing.T) {
	m := NewMemory(10)
	_, ok := m.Lookup("absent")
	assert.False(t, ok)
}

func TestMemory_ExpiredEntryIsAMiss(t *testing.T) {
	m := NewMemory(10)
	m.Store("fp", []types.Match{{Score: 0.8}}, time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	_, ok := m.Lookup("fp")
	assert.False(t, ok)
}

func TestMemory_Clear(t *testing.T) {
	m := NewMemory(10)
	m.Store("fp", []types.Match{{Score: 0.8}}, time.Minute)

	m.Clear()

	_, ok := m.Lookup("fp")
	assert.False(t, ok)
}
