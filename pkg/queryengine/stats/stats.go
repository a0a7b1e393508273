// Package stats collects process-wide query statistics: total counts,
// per-database and per-filter-field counters, a latency histogram, and
// bounded top-N tracking of popular databases/fields (§2, §4.9).
package stats

import (
	"container/heap"
	"sync"

	mstats "github.com/montanaflynn/stats"
)

// topN is the bound on popular-databases/popular-fields tracking, sized
// to stay small under long-running processes (original's statistics.py
// keeps an unbounded dict; this ports it to a fixed-size heap).
const topN = 20

// Collector is a process-wide, long-lived counters store. One instance is
// shared across the orchestrator's queries; all methods are safe for
// concurrent use.
type Collector struct {
	mu sync.Mutex

	totalQueries int64
	errorQueries int64

	databaseCounts map[string]int64
	filterCounts   map[string]int64

	latenciesMS []float64

	tierHits map[string]int64
}

func New() *Collector {
	return &Collector{
		databaseCounts: make(map[string]int64),
		filterCounts:   make(map[string]int64),
		tierHits:       make(map[string]int64),
	}
}

// RecordQuery registers one completed query's database, the fields it
// filtered on, its latency, and the cache tier it hit (empty for a miss
// that executed the full pipeline).
func (c *Collector) RecordQuery(database string, filterFields []string, latencyMS float64, cacheTier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalQueries++
	c.databaseCounts[database]++
	for _, f := range filterFields {
		c.filterCounts[f]++
	}
	if cacheTier != "" {
		c.tierHits[cacheTier]++
	}

	const maxSamples = 10000
	if len(c.latenciesMS) >= maxSamples {
		c.latenciesMS = c.latenciesMS[1:]
	}
	c.latenciesMS = append(c.latenciesMS, latencyMS)
}

// RecordError registers a failed query attempt in the separate error
// bucket required by §7 ("statistics still record the failed attempt").
func (c *Collector) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorQueries++
}

// Snapshot is the get_statistics() contract of §6.
type Snapshot struct {
	TotalQueries     int64
	ErrorQueries     int64
	CacheHitRate     float64
	AvgTimeMS        float64
	PopularDatabases []NamedCount
	PopularFilters   []NamedCount
	PerTierHits      map[string]int64
}

// NamedCount is one entry of a popularity ranking.
type NamedCount struct {
	Name  string
	Count int64
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalTierHits int64
	for _, n := range c.tierHits {
		totalTierHits += n
	}
	hitRate := 0.0
	if c.totalQueries > 0 {
		hitRate = float64(totalTierHits) / float64(c.totalQueries)
	}

	avg := 0.0
	if len(c.latenciesMS) > 0 {
		if m, err := mstats.Mean(c.latenciesMS); err == nil {
			avg = m
		}
	}

	return Snapshot{
		TotalQueries:     c.totalQueries,
		ErrorQueries:     c.errorQueries,
		CacheHitRate:     hitRate,
		AvgTimeMS:        avg,
		PopularDatabases: topNOf(c.databaseCounts),
		PopularFilters:   topNOf(c.filterCounts),
		PerTierHits:      cloneCounts(c.tierHits),
	}
}

func cloneCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// countHeap is a min-heap over NamedCount, letting topNOf keep only the
// topN largest counts without sorting the full map.
type countHeap []NamedCount

func (h countHeap) Len() int            { return len(h) }
func (h countHeap) Less(i, j int) bool  { return h[i].Count < h[j].Count }
func (h countHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *countHeap) Push(x interface{}) { *h = append(*h, x.(NamedCount)) }
func (h *countHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func topNOf(counts map[string]int64) []NamedCount {
	h := &countHeap{}
	heap.Init(h)

	for name, count := range counts {
		if h.Len() < topN {
			heap.Push(h, NamedCount{name, count})
			continue
		}
		if count > (*h)[0].Count {
			heap.Pop(h)
			heap.Push(h, NamedCount{name, count})
		}
	}

	out := make([]NamedCount, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(NamedCount)
	}
	return out
}
