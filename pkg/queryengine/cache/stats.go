package cache

import (
	"sync"
	"time"

	mstats "github.com/montanaflynn/stats"
)

// tierCounters tracks one tier's hit/miss/eviction totals.
type tierCounters struct {
	hits            int64
	misses          int64
	evictions       int64
	expiredEvictions int64
}

// Stats aggregates per-tier counters and overall operation latency for
// the statistics surface of §4.7 (hit-rate, latency percentiles).
type Stats struct {
	mu         sync.Mutex
	tiers      map[string]*tierCounters
	latencies  []float64 // milliseconds, bounded below
}

const maxLatencySamples = 10000

func NewStats() *Stats {
	return &Stats{tiers: map[string]*tierCounters{
		TierL1: {}, TierL2: {}, TierL3: {},
	}}
}

func (s *Stats) recordHit(tier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[tier].hits++
}

func (s *Stats) recordMiss(tier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[tier].misses++
}

func (s *Stats) recordEviction(tier string, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expired {
		s.tiers[tier].expiredEvictions++
	} else {
		s.tiers[tier].evictions++
	}
}

func (s *Stats) observeLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) >= maxLatencySamples {
		s.latencies = s.latencies[1:]
	}
	s.latencies = append(s.latencies, float64(d.Microseconds())/1000)
}

// TierSnapshot is the reported view of one tier's counters plus hit rate.
type TierSnapshot struct {
	Hits             int64
	Misses           int64
	Evictions        int64
	ExpiredEvictions int64
	HitRate          float64
}

// LatencyPercentiles holds the p50/p90/p95/p99 of recorded Get latencies,
// in milliseconds.
type LatencyPercentiles struct {
	P50, P90, P95, P99 float64
}

// Snapshot returns a point-in-time view of every tier's counters plus
// overall latency percentiles.
func (s *Stats) Snapshot() (map[string]TierSnapshot, LatencyPercentiles) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiers := make(map[string]TierSnapshot, len(s.tiers))
	for name, c := range s.tiers {
		total := c.hits + c.misses
		rate := 0.0
		if total > 0 {
			rate = float64(c.hits) / float64(total)
		}
		tiers[name] = TierSnapshot{
			Hits: c.hits, Misses: c.misses,
			Evictions: c.evictions, ExpiredEvictions: c.expiredEvictions,
			HitRate: rate,
		}
	}

	return tiers, percentilesOf(s.latencies)
}

func percentilesOf(samples []float64) LatencyPercentiles {
	if len(samples) == 0 {
		return LatencyPercentiles{}
	}
	p := func(q float64) float64 {
		v, err := mstats.Percentile(samples, q)
		if err != nil {
			return 0
		}
		return v
	}
	return LatencyPercentiles{P50: p(50), P90: p(90), P95: p(95), P99: p(99)}
}
