package cache

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
)

// Tier names used in QueryResult.CacheTier and the statistics surface.
const (
	TierL1 = "l1"
	TierL2 = "l2"
	TierL3 = "l3"
)

// Cache composes the three tiers behind the probe-then-promote policy of
// §4.7, and deduplicates concurrent identical lookups via single-flight
// (§5: "no lost updates", performance optimization not correctness
// requirement).
type Cache struct {
	l1 *L1
	l2 *L2
	l3 *L3

	group  singleflight.Group
	Stats  *Stats
}

// Option configures optional tiers at construction.
type Option func(*Cache)

func WithL2(l2 *L2) Option { return func(c *Cache) { c.l2 = l2 } }
func WithL3(l3 *L3) Option { return func(c *Cache) { c.l3 = l3 } }

// New returns a Cache with a mandatory L1 and any enabled optional tiers.
func New(l1 *L1, opts ...Option) *Cache {
	c := &Cache{l1: l1, Stats: NewStats()}
	l1.onEvict = func(expired bool) { c.Stats.recordEviction(TierL1, expired) }
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get probes L1, then L2, then L3 in order, promoting the value to every
// faster tier on a hit below L1. It returns the tier the value was found
// at, or "" on a full miss.
func (c *Cache) Get(key string) (model.CachedResult, string, bool) {
	start := time.Now()
	defer func() { c.Stats.observeLatency(time.Since(start)) }()

	if raw, ok := c.l1.Get(key); ok {
		c.Stats.recordHit(TierL1)
		return decode(raw), TierL1, true
	}
	c.Stats.recordMiss(TierL1)

	if c.l2 != nil {
		if raw, ok := c.l2.Get(key); ok {
			c.Stats.recordHit(TierL2)
			result := decode(raw)
			c.promote(key, raw, result, TierL2)
			return result, TierL2, true
		}
		c.Stats.recordMiss(TierL2)
	}

	if c.l3 != nil {
		if raw, ok := c.l3.Get(key); ok {
			c.Stats.recordHit(TierL3)
			result := decode(raw)
			c.promote(key, raw, result, TierL3)
			return result, TierL3, true
		}
		c.Stats.recordMiss(TierL3)
	}

	return model.CachedResult{}, "", false
}

// promote writes raw back to every tier faster than foundAt. Promotion
// MAY complete after the caller observes the value (§5), so no error from
// a promotion write is surfaced.
func (c *Cache) promote(key string, raw []byte, result model.CachedResult, foundAt string) {
	ttl := time.Duration(result.TTLSeconds) * time.Second

	c.l1.Set(key, raw, ttl)
	if foundAt == TierL3 && c.l2 != nil {
		c.l2.Set(key, raw, ttl)
	}
}

// Set writes value to L1 immediately and fires the L2/L3 writes; by the
// time Set returns, a subsequent Get for key is guaranteed to observe the
// value at whichever tier it was written to (§4.7 write path).
func (c *Cache) Set(key string, result model.CachedResult, tags []string) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return qerr.Wrap(qerr.CacheIOError, "cache.Set", "failed to encode cached result", err)
	}

	ttl := time.Duration(result.TTLSeconds) * time.Second
	c.l1.Set(key, raw, ttl)

	if c.l2 != nil {
		c.l2.Set(key, raw, ttl)
	}
	if c.l3 != nil {
		if err := c.l3.Set(key, raw, ttl, tags); err != nil {
			return qerr.Wrap(qerr.CacheIOError, "cache.Set", "L3 write failed", err)
		}
	}
	return nil
}

// GetOrCompute single-flights concurrent identical keys: the first caller
// for a key executes fn, later concurrent callers await and share its
// result instead of recomputing.
func (c *Cache) GetOrCompute(key string, fn func() (model.CachedResult, []string, error)) (model.CachedResult, string, error) {
	if result, tier, ok := c.Get(key); ok {
		return result, tier, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, tier, ok := c.Get(key); ok {
			return cacheAndTier{result, tier}, nil
		}

		result, tags, err := fn()
		if err != nil {
			return cacheAndTier{}, err
		}
		if setErr := c.Set(key, result, tags); setErr != nil {
			return cacheAndTier{result, ""}, nil
		}
		return cacheAndTier{result, ""}, nil
	})
	if err != nil {
		return model.CachedResult{}, "", err
	}

	ct := v.(cacheAndTier)
	return ct.result, ct.tier, nil
}

type cacheAndTier struct {
	result model.CachedResult
	tier   string
}

// Delete removes key from every enabled tier.
func (c *Cache) Delete(key string) {
	c.l1.Delete(key)
	if c.l2 != nil {
		c.l2.Delete(key)
	}
	if c.l3 != nil {
		c.l3.Delete(key)
	}
}

// InvalidatePattern removes every key containing substr, at every tier
// that supports pattern scanning (L1's map is bounded so it's scanned
// directly; L3 keeps its own index).
func (c *Cache) InvalidatePattern(substr string) {
	if c.l3 != nil {
		c.l3.InvalidatePattern(substr)
	}
	c.l1.mu.Lock()
	var victims []string
	for k := range c.l1.entries {
		if strings.Contains(k, substr) {
			victims = append(victims, k)
		}
	}
	c.l1.mu.Unlock()
	for _, k := range victims {
		c.l1.Delete(k)
	}
}

// InvalidateTags removes every key whose CachedResult.Tags intersects
// tags, checking L3's tag index and scanning L1 directly.
func (c *Cache) InvalidateTags(tags []string) {
	if c.l3 != nil {
		c.l3.InvalidateTags(tags)
	}

	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}

	c.l1.mu.Lock()
	var victims []string
	for k, e := range c.l1.entries {
		result := decode(e.value)
		for _, t := range result.Tags {
			if want[t] {
				victims = append(victims, k)
				break
			}
		}
	}
	c.l1.mu.Unlock()
	for _, k := range victims {
		c.l1.Delete(k)
	}
}

// Clear drops every entry at every enabled tier.
func (c *Cache) Clear() {
	c.l1.Clear()
	if c.l2 != nil {
		c.l2.Clear()
	}
	if c.l3 != nil {
		c.l3.Clear()
	}
}

func decode(raw []byte) model.CachedResult {
	var result model.CachedResult
	_ = json.Unmarshal(raw, &result)
	return result
}
