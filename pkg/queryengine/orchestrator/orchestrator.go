// Package orchestrator composes the loader, filter, search, relate,
// sortpage, optimizer, and cache packages into the single execute()
// pipeline of §4.9.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	rediscache "github.com/blackcore/queryengine/pkg/cache"
	"github.com/blackcore/queryengine/pkg/logger"
	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/blackcore/queryengine/pkg/queryengine/cache"
	"github.com/blackcore/queryengine/pkg/queryengine/filter"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/queryengine/nlquery"
	"github.com/blackcore/queryengine/pkg/queryengine/optimizer"
	"github.com/blackcore/queryengine/pkg/queryengine/relate"
	"github.com/blackcore/queryengine/pkg/queryengine/search"
	"github.com/blackcore/queryengine/pkg/queryengine/sortpage"
	"github.com/blackcore/queryengine/pkg/queryengine/stats"
	"github.com/blackcore/queryengine/pkg/record"
)

// RecordLoader is the subset of loader.Loader the engine depends on.
type RecordLoader interface {
	Load(name string) ([]record.Record, error)
}

// Limits bounds query complexity; exceeding MaxFilters, MaxIncludes or
// MaxUnfilteredReach triggers TooComplex.
type Limits struct {
	MaxFilters  int
	MaxIncludes int
	// MaxUnfilteredReach bounds page*size for a query with zero filters,
	// where nothing has narrowed the dataset before pagination walks it.
	MaxUnfilteredReach int
	Timeout            time.Duration
	DefaultTTL         time.Duration
}

// Engine is the single entrypoint the HTTP/CLI bindings call.
type Engine struct {
	loader    RecordLoader
	resolver  *relate.Resolver
	cache     *cache.Cache
	collector *stats.Collector

	optimize  bool
	profile   bool
	limits    Limits
}

// Config wires an Engine's collaborators at construction time. Cache and
// Collector are optional; a nil Cache disables caching entirely and a nil
// Collector disables statistics.
type Config struct {
	Loader     RecordLoader
	Resolver   *relate.Resolver
	Cache      *cache.Cache
	Collector  *stats.Collector
	Optimize   bool
	Profile    bool
	Limits     Limits
}

func New(cfg Config) *Engine {
	if cfg.Limits.MaxFilters <= 0 {
		cfg.Limits.MaxFilters = 20
	}
	if cfg.Limits.MaxIncludes <= 0 {
		cfg.Limits.MaxIncludes = 5
	}
	if cfg.Limits.MaxUnfilteredReach <= 0 {
		cfg.Limits.MaxUnfilteredReach = 5000
	}
	if cfg.Limits.Timeout <= 0 {
		cfg.Limits.Timeout = 30 * time.Second
	}
	if cfg.Limits.DefaultTTL <= 0 {
		cfg.Limits.DefaultTTL = 5 * time.Minute
	}
	return &Engine{
		loader:    cfg.Loader,
		resolver:  cfg.Resolver,
		cache:     cfg.Cache,
		collector: cfg.Collector,
		optimize:  cfg.Optimize,
		profile:   cfg.Profile,
		limits:    cfg.Limits,
	}
}

// nlParseCacheTTL bounds how long a free-text query's parse result is
// reused from the (separate, untiered) Redis cache before nlquery.Parse
// runs again.
const nlParseCacheTTL = 10 * time.Minute

// ExecuteNL parses free text into a StructuredQuery via nlquery.Parse and
// delegates to Execute. The parse itself is cached independently of the
// structured-query result cache, since many distinct structured queries
// can share the same source text (e.g. different pagination cursors).
func (e *Engine) ExecuteNL(ctx context.Context, text string, nlContext map[string]interface{}) (model.QueryResult, error) {
	parsed := parseWithCache(text)

	q := model.StructuredQuery{
		SourceQuery: text,
		SortFields:  parsed.SortCriteria,
	}
	if db, ok := nlContext["database"].(string); ok {
		q.Database = db
	}
	for field, value := range parsed.Filters {
		q.Filters = append(q.Filters, model.Filter{Field: field, Operator: model.OpEq, Value: value})
	}
	if parsed.Limit > 0 {
		q.Pagination.Size = parsed.Limit
	}
	for _, rel := range parsed.RelationshipsToInclude {
		q.Includes = append(q.Includes, model.Include{RelationField: rel, MaxDepth: 1})
	}

	return e.Execute(ctx, q)
}

// Execute runs the full pipeline for a StructuredQuery: validate, derive a
// cache key, probe/compute (single-flight on a miss), and record
// statistics. A query that never completes within its timeout surfaces
// qerr.QueryTimeout; a caller-cancelled context surfaces qerr.QueryCancelled.
func (e *Engine) Execute(ctx context.Context, q model.StructuredQuery) (model.QueryResult, error) {
	q = normalizeDefaults(q)

	if err := e.validate(q); err != nil {
		if e.collector != nil {
			e.collector.RecordError()
		}
		return model.QueryResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.limits.Timeout)
	defer cancel()

	key := cacheKey(q)

	compute := func() (model.CachedResult, []string, error) {
		result, err := e.runPipeline(ctx, q)
		if err != nil {
			return model.CachedResult{}, nil, err
		}
		return model.CachedResult{
			QueryHash:  key,
			Result:     result,
			CreatedAt:  time.Now(),
			TTLSeconds: int(e.limits.DefaultTTL.Seconds()),
			Tags:       []string{q.Database},
		}, []string{q.Database}, nil
	}

	var cached model.CachedResult
	var tier string
	var err error

	if e.cache != nil {
		cached, tier, err = e.cache.GetOrCompute(key, compute)
	} else {
		cached, _, err = compute()
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = qerr.Wrap(qerr.QueryTimeout, "orchestrator.Execute", "pipeline exceeded timeout", err)
		} else if ctx.Err() == context.Canceled {
			err = qerr.Wrap(qerr.QueryCancelled, "orchestrator.Execute", "caller cancelled", err)
		}
		if e.collector != nil {
			e.collector.RecordError()
		}
		return model.QueryResult{}, err
	}

	result := cached.Result
	result.FromCache = tier != ""
	result.CacheTier = tier

	if e.collector != nil {
		e.collector.RecordQuery(q.Database, filterFields(q.Filters), result.ExecutionTimeMS, tier)
	}

	return result, nil
}

// parseWithCache wraps nlquery.Parse with a best-effort Redis cache; a
// nil/unreachable Redis client degrades silently to parsing every call.
func parseWithCache(text string) model.ParsedQuery {
	sum := sha256.Sum256([]byte(text))
	key := "nlquery:parse:" + hex.EncodeToString(sum[:])

	var cached model.ParsedQuery
	if rediscache.Get(key, &cached) {
		return cached
	}

	parsed := nlquery.Parse(text, nil)
	_ = rediscache.Set(key, parsed, nlParseCacheTTL)
	return parsed
}

func (e *Engine) validate(q model.StructuredQuery) error {
	if q.Database == "" {
		return qerr.New(qerr.BadDatabaseShape, "orchestrator.validate", "database is required")
	}
	if len(q.Filters) > e.limits.MaxFilters {
		return qerr.New(qerr.TooComplex, "orchestrator.validate",
			fmt.Sprintf("query has %d filters, limit is %d", len(q.Filters), e.limits.MaxFilters))
	}
	if len(q.Includes) > e.limits.MaxIncludes {
		return qerr.New(qerr.TooComplex, "orchestrator.validate",
			fmt.Sprintf("query has %d includes, limit is %d", len(q.Includes), e.limits.MaxIncludes))
	}
	if len(q.Filters) == 0 {
		if reach := q.Pagination.Page * q.Pagination.Size; reach > e.limits.MaxUnfilteredReach {
			return qerr.New(qerr.TooComplex, "orchestrator.validate",
				fmt.Sprintf("unfiltered query reaches page*size %d, limit is %d without filters", reach, e.limits.MaxUnfilteredReach))
		}
	}
	return nil
}

func normalizeDefaults(q model.StructuredQuery) model.StructuredQuery {
	if q.Pagination.Size <= 0 {
		q.Pagination.Size = 20
	}
	if q.Pagination.Size > 1000 {
		q.Pagination.Size = 1000
	}
	if q.Pagination.Page < 1 {
		q.Pagination.Page = 1
	}
	return q
}

// runPipeline executes stages 4-9 of §4.9 against already-validated,
// already-defaulted query q.
func (e *Engine) runPipeline(ctx context.Context, q model.StructuredQuery) (model.QueryResult, error) {
	start := time.Now()
	timings := map[string]float64{}
	log := logger.L.With("database", q.Database)

	stage := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t0 := time.Now()
		err := fn()
		timings[name] = float64(time.Since(t0).Microseconds()) / 1000
		log.Debug("orchestrator: stage complete", "stage", name, "ms", timings[name])
		return err
	}

	records, err := e.loader.Load(q.Database)
	if err != nil {
		return model.QueryResult{}, err
	}

	effectiveQuery := q
	var plan *model.ExecutionPlan
	if e.optimize {
		var optimized model.OptimizedQuery
		_ = stage("optimize", func() error {
			tableStats := model.TableStatistics{Database: q.Database, RowCount: len(records)}
			optimized = optimizer.Optimize(q, tableStats)
			return nil
		})
		effectiveQuery = optimized.Query
		plan = optimized.Plan
	}

	if err := stage("filter", func() error {
		filtered, ferr := filter.Apply(records, effectiveQuery.Filters)
		if ferr != nil {
			return ferr
		}
		records = filtered
		return nil
	}); err != nil {
		return model.QueryResult{}, err
	}

	var highlights map[string]map[string][]string
	if effectiveQuery.SourceQuery != "" {
		if err := stage("search", func() error {
			matches := search.Score(records, effectiveQuery.SourceQuery, search.Config{})
			sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
			scored := make([]record.Record, len(matches))
			highlights = make(map[string]map[string][]string, len(matches))
			for i, m := range matches {
				scored[i] = m.Record
				highlights[m.Record.ID] = m.Highlights
			}
			records = scored
			return nil
		}); err != nil {
			return model.QueryResult{}, err
		}
	}

	if len(effectiveQuery.Includes) > 0 && e.resolver != nil {
		if err := stage("relate", func() error {
			resolved, rerr := e.resolver.Resolve(records, effectiveQuery.Includes)
			if rerr != nil {
				return rerr
			}
			records = resolved
			return nil
		}); err != nil {
			return model.QueryResult{}, err
		}
	}

	totalCount := len(records)
	var page []record.Record
	var nextCursor, prevCursor string

	if err := stage("sortpage", func() error {
		if effectiveQuery.Pagination.Cursor != "" {
			sorted := sortpage.ApplySorting(records, effectiveQuery.SortFields)
			p, next, prev, perr := sortpage.ApplyCursorPagination(sorted, effectiveQuery.Pagination.Cursor, effectiveQuery.Pagination.Size, effectiveQuery.SortFields)
			if perr != nil {
				return perr
			}
			page, nextCursor, prevCursor = p, next, prev
			return nil
		}
		sorted := sortpage.ApplySorting(records, effectiveQuery.SortFields)
		p, _ := sortpage.ApplyPagination(sorted, effectiveQuery.Pagination.Page, effectiveQuery.Pagination.Size)
		page = p
		return nil
	}); err != nil {
		return model.QueryResult{}, err
	}

	data := make([]map[string]interface{}, len(page))
	for i, r := range page {
		data[i] = r.ToMap()
	}

	result := model.QueryResult{
		Data:            data,
		TotalCount:      totalCount,
		Page:            effectiveQuery.Pagination.Page,
		PageSize:        effectiveQuery.Pagination.Size,
		NextCursor:      nextCursor,
		PrevCursor:      prevCursor,
		ExecutionTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}

	if e.profile {
		slowest := ""
		worst := -1.0
		for name, ms := range timings {
			if ms > worst {
				worst, slowest = ms, name
			}
		}
		result.Diagnostics = &model.Diagnostics{
			StageTimingsMS: timings,
			SlowestStage:   slowest,
			Plan:           plan,
		}
	}

	return result, nil
}

func filterFields(filters []model.Filter) []string {
	out := make([]string, len(filters))
	for i, f := range filters {
		out[i] = f.Field
	}
	return out
}

// cacheKey canonicalizes q to a stable JSON encoding and hashes it, so
// identical queries always derive the same key regardless of map
// iteration order.
func cacheKey(q model.StructuredQuery) string {
	sortedFilters := append([]model.Filter{}, q.Filters...)
	sort.SliceStable(sortedFilters, func(i, j int) bool {
		if sortedFilters[i].Field != sortedFilters[j].Field {
			return sortedFilters[i].Field < sortedFilters[j].Field
		}
		return sortedFilters[i].Operator < sortedFilters[j].Operator
	})
	q.Filters = sortedFilters

	b, _ := json.Marshal(q)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
