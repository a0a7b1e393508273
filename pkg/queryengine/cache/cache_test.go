package cache

import (
	"testing"
	"time"

	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL1SetGetRoundTrip(t *testing.T) {
	l1 := NewL1(1024, PolicyLRU)
	l1.Set("k", []byte("hello"), time.Minute)

	val, ok := l1.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), val)
}

func TestL1EvictsUnderByteCap(t *testing.T) {
	l1 := NewL1(10, PolicyLRU)
	l1.Set("a", []byte("12345"), 0)
	l1.Set("b", []byte("67890"), 0)
	assert.LessOrEqual(t, l1.UsedBytes(), int64(10))

	// third entry forces eviction of "a" (oldest touched)
	l1.Set("c", []byte("abcde"), 0)
	assert.LessOrEqual(t, l1.UsedBytes(), int64(10))
	_, aStillThere := l1.Get("a")
	assert.False(t, aStillThere)
}

func TestL1ExpiresLazily(t *testing.T) {
	l1 := NewL1(1024, PolicyLRU)
	l1.Set("k", []byte("v"), time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := l1.Get("k")
	assert.False(t, ok)
}

func TestCacheSetThenGetHitsL1(t *testing.T) {
	c := New(NewL1(1<<20, PolicyLRU))
	result := model.CachedResult{QueryHash: "h1", TTLSeconds: 60}

	require.NoError(t, c.Set("q1", result, nil))

	got, tier, ok := c.Get("q1")
	require.True(t, ok)
	assert.Equal(t, TierL1, tier)
	assert.Equal(t, "h1", got.QueryHash)
}

func TestCachePromotesFromL3ToL1(t *testing.T) {
	l3, err := NewL3(t.TempDir())
	require.NoError(t, err)

	c := New(NewL1(1<<20, PolicyLRU), WithL3(l3))
	result := model.CachedResult{QueryHash: "h2", TTLSeconds: 60}
	require.NoError(t, c.Set("q2", result, []string{"people"}))

	// Simulate "invalidate L1 only": drop straight from the L1 tier.
	c.l1.Delete("q2")

	got, tier, ok := c.Get("q2")
	require.True(t, ok)
	assert.Equal(t, TierL3, tier)
	assert.Equal(t, "h2", got.QueryHash)

	// Promotion should have repopulated L1.
	_, ok = c.l1.Get("q2")
	assert.True(t, ok)
}

func TestCacheMissReturnsFalse(t *testing.T) {
	c := New(NewL1(1024, PolicyLRU))
	_, tier, ok := c.Get("ghost")
	assert.False(t, ok)
	assert.Empty(t, tier)
}

func TestGetOrComputeDeduplicatesIdenticalKey(t *testing.T) {
	c := New(NewL1(1<<20, PolicyLRU))
	calls := 0

	compute := func() (model.CachedResult, []string, error) {
		calls++
		return model.CachedResult{QueryHash: "h3", TTLSeconds: 60}, nil, nil
	}

	_, _, err := c.GetOrCompute("q3", compute)
	require.NoError(t, err)
	_, _, err = c.GetOrCompute("q3", compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second call should hit the cache, not recompute")
}

func TestInvalidateTagsRemovesMatchingEntries(t *testing.T) {
	c := New(NewL1(1<<20, PolicyLRU))
	require.NoError(t, c.Set("q4", model.CachedResult{QueryHash: "h4", TTLSeconds: 60, Tags: []string{"people"}}, []string{"people"}))

	c.InvalidateTags([]string{"people"})

	_, _, ok := c.Get("q4")
	assert.False(t, ok)
}
