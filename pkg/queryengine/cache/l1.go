// Package cache implements the three-tier cache of §4.7: an in-process L1
// (LRU or LFU, byte-bounded), an optional networked L2, and an optional
// on-disk L3, composed behind a single Cache that probes tiers in order
// and promotes on hit.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Policy selects the L1 eviction strategy.
type Policy string

const (
	PolicyLRU Policy = "lru"
	PolicyLFU Policy = "lfu"
)

// l1Entry is the byte-accounted payload kept per key, mirroring the
// CacheEntry shape of §3 (size_bytes, created_at, accessed_at,
// access_count, ttl).
type l1Entry struct {
	value       []byte
	sizeBytes   int64
	createdAt   time.Time
	accessedAt  time.Time
	accessCount int64
	ttl         time.Duration
}

func (e *l1Entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// L1 is the byte-bounded in-process tier. A single mutex guards the map
// and eviction bookkeeping together, keeping every critical section O(1)
// as required by §5's shared-resource policy.
type L1 struct {
	mu            sync.Mutex
	policy        Policy
	capacityBytes int64
	usedBytes     int64

	lruOrder *lru.Cache[string, *l1Entry] // drives eviction order for PolicyLRU
	entries  map[string]*l1Entry          // always authoritative store

	onEvict func(expired bool) // optional hook wired by Cache for statistics
}

// NewL1 returns an L1 tier bounded at capacityBytes using policy.
func NewL1(capacityBytes int64, policy Policy) *L1 {
	// A large nominal entry count: eviction is actually driven by the byte
	// budget, not this count, but the underlying structure requires one.
	backing, _ := lru.New[string, *l1Entry](1 << 20)
	return &L1{
		policy:        policy,
		capacityBytes: capacityBytes,
		lruOrder:      backing,
		entries:       make(map[string]*l1Entry),
	}
}

// Get returns the cached bytes for key, evicting it lazily first if it has
// expired.
func (l *L1) Get(key string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(time.Now()) {
		l.removeLocked(key)
		if l.onEvict != nil {
			l.onEvict(true)
		}
		return nil, false
	}

	entry.accessedAt = time.Now()
	entry.accessCount++
	if l.policy == PolicyLRU {
		l.lruOrder.Get(key) // refresh recency
	}
	return entry.value, true
}

// Set inserts value under key, evicting the coldest entries first until
// the new total fits within capacityBytes. The invariant Σ size_bytes ≤
// capacity holds at every point other than inside this call. A value larger
// than capacityBytes is not stored (any previous entry under key is removed).
func (l *L1) Set(key string, value []byte, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := int64(len(value))
	l.removeLocked(key)
	if size > l.capacityBytes {
		return
	}

	for l.usedBytes+size > l.capacityBytes && len(l.entries) > 0 {
		l.evictOneLocked()
	}

	now := time.Now()
	entry := &l1Entry{value: value, sizeBytes: size, createdAt: now, accessedAt: now, ttl: ttl}
	l.entries[key] = entry
	l.usedBytes += size
	l.lruOrder.Add(key, entry)
}

func (l *L1) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(key)
}

func (l *L1) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*l1Entry)
	l.lruOrder.Purge()
	l.usedBytes = 0
}

// UsedBytes reports current occupancy, for tests and statistics.
func (l *L1) UsedBytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usedBytes
}

func (l *L1) removeLocked(key string) {
	entry, ok := l.entries[key]
	if !ok {
		return
	}
	l.usedBytes -= entry.sizeBytes
	delete(l.entries, key)
	l.lruOrder.Remove(key)
}

func (l *L1) evictOneLocked() {
	var victim string
	switch l.policy {
	case PolicyLFU:
		victim = l.leastFrequentLocked()
	default:
		if key, _, ok := l.lruOrder.GetOldest(); ok {
			victim = key
		}
	}
	if victim != "" {
		l.removeLocked(victim)
		if l.onEvict != nil {
			l.onEvict(false)
		}
	}
}

// leastFrequentLocked scans for the lowest access_count entry. L1's
// capacity is sized in the tens-to-hundreds-of-megabytes range, so a
// linear scan per eviction stays well within budget; it trades the O(1)
// bound LRU gets from the ordered list for LFU's frequency semantics.
func (l *L1) leastFrequentLocked() string {
	var victim string
	var lowest int64 = -1
	for k, e := range l.entries {
		if lowest == -1 || e.accessCount < lowest {
			lowest = e.accessCount
			victim = k
		}
	}
	return victim
}
