// Package model defines the canonical request/response types that flow
// through the query execution pipeline: StructuredQuery in, QueryResult
// out, plus the cache, export, and statistics records shared by every
// stage package.
package model

import "time"

// Operator is one of the fixed, closed vocabulary of filter predicates.
type Operator string

const (
	OpEq           Operator = "eq"
	OpNe           Operator = "ne"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpGt           Operator = "gt"
	OpGte          Operator = "gte"
	OpLt           Operator = "lt"
	OpLte          Operator = "lte"
	OpBetween      Operator = "between"
	OpIsNull       Operator = "is_null"
	OpIsNotNull    Operator = "is_not_null"
	OpRegex        Operator = "regex"
	OpFuzzy        Operator = "fuzzy"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
)

// Filter is the (field, operator, value) triple of §3, plus the
// case-sensitivity flag and an optional fuzzy threshold override.
type Filter struct {
	Field         string      `json:"field"`
	Operator      Operator    `json:"operator"`
	Value         interface{} `json:"value,omitempty"`
	CaseSensitive bool        `json:"case_sensitive"`
	FuzzyThreshold float64    `json:"fuzzy_threshold,omitempty"`
}

// SortDirection is "asc" or "desc".
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// SortField is one (field, order) key of a compound sort.
type SortField struct {
	Field string        `json:"field"`
	Order SortDirection `json:"order"`
}

// Include names a relationship to resolve: the field holding related ids,
// an optional explicit target database (otherwise inferred), and a depth
// bound.
type Include struct {
	RelationField   string `json:"relation_field"`
	TargetDatabase  string `json:"target_database,omitempty"`
	MaxDepth        int    `json:"max_depth"`
}

// Pagination is either offset-based (Page/Size) or cursor-based (Cursor).
// Size defaults to 20 and is clamped to [1,1000]; Page < 1 is treated as 1.
type Pagination struct {
	Page   int    `json:"page,omitempty"`
	Size   int    `json:"size,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// StructuredQuery is the canonical pipeline input (§3).
type StructuredQuery struct {
	Database     string      `json:"database"`
	Filters      []Filter    `json:"filters,omitempty"`
	SortFields   []SortField `json:"sort_fields,omitempty"`
	Includes     []Include   `json:"includes,omitempty"`
	Pagination   Pagination  `json:"pagination,omitempty"`
	Distinct     bool        `json:"distinct,omitempty"`
	SourceQuery  string      `json:"source_query,omitempty"`
}

// QueryResult is the pipeline's output envelope (§3).
type QueryResult struct {
	Data            []map[string]interface{} `json:"data"`
	TotalCount      int                      `json:"total_count"`
	Page            int                      `json:"page"`
	PageSize        int                      `json:"page_size"`
	NextCursor      string                   `json:"next_cursor,omitempty"`
	PrevCursor      string                   `json:"prev_cursor,omitempty"`
	ExecutionTimeMS float64                  `json:"execution_time_ms"`
	FromCache       bool                     `json:"from_cache"`
	CacheTier       string                   `json:"cache_tier,omitempty"`
	Diagnostics     *Diagnostics             `json:"diagnostics,omitempty"`
}

// Diagnostics surfaces the per-stage breakdown when profiling is enabled.
type Diagnostics struct {
	StageTimingsMS  map[string]float64 `json:"stage_timings_ms"`
	SlowestStage    string             `json:"slowest_stage"`
	Plan            *ExecutionPlan     `json:"plan,omitempty"`
}

// CachedResult is the value stored at every cache tier (§3).
type CachedResult struct {
	QueryHash  string      `json:"query_hash"`
	Result     QueryResult `json:"result"`
	CreatedAt  time.Time   `json:"created_at"`
	TTLSeconds int         `json:"ttl_seconds"`
	HitCount   int64       `json:"hit_count"`
	Tags       []string    `json:"tags,omitempty"`
}

// IsExpired reports whether now-CreatedAt exceeds the TTL.
func (c CachedResult) IsExpired(now time.Time) bool {
	if c.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(c.CreatedAt) > time.Duration(c.TTLSeconds)*time.Second
}

// ExportStatus is one of the terminal/non-terminal states of an ExportJob.
type ExportStatus string

const (
	ExportPending   ExportStatus = "pending"
	ExportRunning   ExportStatus = "running"
	ExportCompleted ExportStatus = "completed"
	ExportFailed    ExportStatus = "failed"
	ExportCancelled ExportStatus = "cancelled"
)

// IsTerminal reports whether s can no longer transition.
func (s ExportStatus) IsTerminal() bool {
	switch s {
	case ExportCompleted, ExportFailed, ExportCancelled:
		return true
	default:
		return false
	}
}

// ExportProgress tracks a running job's throughput.
type ExportProgress struct {
	RowsProcessed int64     `json:"rows_processed"`
	BytesWritten  int64     `json:"bytes_written"`
	LastUpdate    time.Time `json:"last_update"`
}

// ExportJob is the job-manager's unit of work (§3).
type ExportJob struct {
	JobID        string         `json:"job_id"`
	Format       string         `json:"format"`
	OutputPath   string         `json:"output_path"`
	Status       ExportStatus   `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Progress     ExportProgress `json:"progress"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// TableStatistics is per-database metadata the optimizer consumes (§4.8).
type TableStatistics struct {
	Database           string             `json:"database"`
	RowCount           int                `json:"row_count"`
	DistinctValueCounts map[string]int    `json:"distinct_value_counts,omitempty"`
	IndexedFields       []string          `json:"indexed_fields,omitempty"`
	Histograms          map[string][]Bucket `json:"histograms,omitempty"`
}

// Bucket is one histogram bucket used for range-filter selectivity
// estimation.
type Bucket struct {
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	Count      int     `json:"count"`
}

// IndexHint suggests an index a caller's storage layer might create.
type IndexHint struct {
	Fields      []string `json:"fields"`
	Composite   bool     `json:"composite"`
	Reason      string   `json:"reason"`
}

// PlanStep is one advisory step of an ExecutionPlan.
type PlanStep struct {
	Operation      string  `json:"operation"`
	Description    string  `json:"description"`
	EstimatedRows  int     `json:"estimated_rows"`
	EstimatedCost  float64 `json:"estimated_cost"`
}

// ExecutionPlan is the optimizer's advisory, result-preserving plan.
type ExecutionPlan struct {
	Steps []PlanStep `json:"steps"`
}

// OptimizedQuery is the optimizer's output: a reordered query plus hints.
type OptimizedQuery struct {
	Query         StructuredQuery `json:"query"`
	IndexHints    []IndexHint     `json:"index_hints,omitempty"`
	EstimatedCost float64         `json:"estimated_cost"`
	Plan          *ExecutionPlan  `json:"plan,omitempty"`
}

// Intent is the NL parser's coarse classification of a free-text query.
type Intent string

const (
	IntentSearchEntity     Intent = "search_entity"
	IntentFindRelationship Intent = "find_relationship"
	IntentAggregateData    Intent = "aggregate_data"
	IntentFilterResults    Intent = "filter_results"
	IntentSortResults      Intent = "sort_results"
	IntentExplainEntity    Intent = "explain_entity"
	IntentCompareEntities  Intent = "compare_entities"
	IntentUnknown          Intent = "unknown"
)

// Entity is one span the NL parser recognized within the source text.
type Entity struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	SpanStart  int     `json:"span_start"`
	SpanEnd    int     `json:"span_end"`
}

// ParsedQuery is the NL parser's output contract (§4.6); internal
// heuristics are implementation-defined, this shape is not.
type ParsedQuery struct {
	Intent                 Intent                 `json:"intent"`
	Entities               []Entity               `json:"entities"`
	Filters                map[string]interface{} `json:"filters"`
	SortCriteria           []SortField            `json:"sort_criteria,omitempty"`
	Limit                  int                    `json:"limit,omitempty"`
	RelationshipsToInclude []string               `json:"relationships_to_include,omitempty"`
	Aggregations           []string               `json:"aggregations,omitempty"`
	Confidence             float64                `json:"confidence"`
}

// QueryStatistics captures one query's per-stage timings (§4.9).
type QueryStatistics struct {
	StageTimingsMS map[string]float64
	SlowestStage   string
	TotalMS        float64
}
