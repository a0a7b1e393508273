// Package optimizer reorders filters, promotes indexed sort fields, and
// proposes index hints and a cost estimate for a StructuredQuery (§4.8).
// The plan it emits is advisory and never changes observable results.
package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/blackcore/queryengine/pkg/queryengine/model"
)

// operatorCost is the small per-operator constant used in the priority
// formula; regex/fuzzy cost far more than an equality check.
var operatorCost = map[model.Operator]float64{
	model.OpEq:          1,
	model.OpNe:          1,
	model.OpIn:          2,
	model.OpNotIn:       2,
	model.OpStartsWith:  2,
	model.OpEndsWith:    2,
	model.OpContains:    3,
	model.OpNotContains: 3,
	model.OpGt:          2,
	model.OpGte:         2,
	model.OpLt:          2,
	model.OpLte:         2,
	model.OpBetween:     3,
	model.OpIsNull:      1,
	model.OpIsNotNull:   1,
	model.OpRegex:       12,
	model.OpFuzzy:       15,
}

// defaultSelectivity mirrors the §4.2 selectivity-hint table when no
// histogram-derived estimate is available.
var defaultSelectivity = map[model.Operator]float64{
	model.OpEq:          0.1,
	model.OpNe:          0.9,
	model.OpContains:    0.3,
	model.OpNotContains: 0.7,
	model.OpIn:          0.2,
	model.OpNotIn:       0.8,
	model.OpStartsWith:  0.7,
	model.OpEndsWith:    0.7,
	model.OpGt:          0.4,
	model.OpGte:         0.4,
	model.OpLt:          0.4,
	model.OpLte:         0.4,
	model.OpBetween:     0.25,
	model.OpIsNull:      0.05,
	model.OpIsNotNull:   0.95,
	model.OpRegex:       0.15,
	model.OpFuzzy:       0.2,
}

var indexSuggestOps = map[model.Operator]bool{
	model.OpEq: true, model.OpGt: true, model.OpLt: true,
	model.OpGte: true, model.OpLte: true, model.OpIn: true,
}

// Optimize reorders q's filters by ascending priority, promotes an
// indexed sort field to first position, and emits index hints and a cost
// estimate against stats.
func Optimize(q model.StructuredQuery, stats model.TableStatistics) model.OptimizedQuery {
	reordered := reorderFilters(q.Filters, stats)
	q.Filters = reordered
	q.SortFields = promoteSortFields(q.SortFields, stats)

	hints := indexHints(reordered, q.SortFields, stats)
	cost := estimateCost(reordered, q, stats)

	return model.OptimizedQuery{
		Query:         q,
		IndexHints:    hints,
		EstimatedCost: cost,
		Plan:          buildPlan(reordered, q, stats, cost),
	}
}

func selectivityOf(f model.Filter, stats model.TableStatistics) float64 {
	if hist, ok := stats.Histograms[f.Field]; ok && len(hist) > 0 {
		return histogramSelectivity(f, hist, stats.RowCount)
	}
	if f.Operator == model.OpEq {
		if counts, ok := stats.DistinctValueCounts[f.Field]; ok && counts > 0 {
			return 1.0 / float64(counts)
		}
	}
	if s, ok := defaultSelectivity[f.Operator]; ok {
		return s
	}
	return 0.5
}

func histogramSelectivity(f model.Filter, buckets []model.Bucket, rowCount int) float64 {
	if rowCount == 0 {
		return 0.5
	}
	target, ok := toFloat(f.Value)
	if !ok {
		return 0.5
	}

	matched := 0
	for _, b := range buckets {
		switch f.Operator {
		case model.OpGt, model.OpGte:
			if b.UpperBound > target {
				matched += b.Count
			}
		case model.OpLt, model.OpLte:
			if b.LowerBound < target {
				matched += b.Count
			}
		case model.OpBetween, model.OpEq:
			if b.LowerBound <= target && target <= b.UpperBound {
				matched += b.Count
			}
		}
	}
	return float64(matched) / float64(rowCount)
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func priority(f model.Filter, stats model.TableStatistics) float64 {
	cost := operatorCost[f.Operator]
	if cost == 0 {
		cost = 5
	}
	sel := math.Max(selectivityOf(f, stats), 0.001)
	return cost / sel
}

// reorderFilters sorts ascending by priority; stable so filters with
// identical priority keep their relative input order, preserving the
// order-invariance property (§8) of the composed result set.
func reorderFilters(filters []model.Filter, stats model.TableStatistics) []model.Filter {
	out := make([]model.Filter, len(filters))
	copy(out, filters)
	sort.SliceStable(out, func(i, j int) bool {
		return priority(out[i], stats) < priority(out[j], stats)
	})
	return out
}

func promoteSortFields(sortFields []model.SortField, stats model.TableStatistics) []model.SortField {
	if len(sortFields) < 2 {
		return sortFields
	}
	indexed := make(map[string]bool, len(stats.IndexedFields))
	for _, f := range stats.IndexedFields {
		indexed[f] = true
	}

	for i, sf := range sortFields {
		if !indexed[sf.Field] || i == 0 {
			continue
		}
		out := make([]model.SortField, 0, len(sortFields))
		out = append(out, sf)
		out = append(out, sortFields[:i]...)
		out = append(out, sortFields[i+1:]...)
		return out
	}
	return sortFields
}

func indexHints(filters []model.Filter, sortFields []model.SortField, stats model.TableStatistics) []model.IndexHint {
	indexed := make(map[string]bool, len(stats.IndexedFields))
	for _, f := range stats.IndexedFields {
		indexed[f] = true
	}

	var hints []model.IndexHint
	var topFields []string
	for _, f := range filters {
		if indexSuggestOps[f.Operator] && !indexed[f.Field] {
			hints = append(hints, model.IndexHint{
				Fields: []string{f.Field}, Reason: fmt.Sprintf("unindexed field used with %s", f.Operator),
			})
			topFields = append(topFields, f.Field)
		}
	}

	if len(topFields) > 0 && len(sortFields) > 0 {
		composite := append([]string{}, topFields...)
		for _, sf := range sortFields {
			composite = append(composite, sf.Field)
		}
		hints = append(hints, model.IndexHint{
			Fields: composite, Composite: true,
			Reason: "composite index combining top filter fields with sort fields",
		})
	}

	return hints
}

func estimateCost(filters []model.Filter, q model.StructuredQuery, stats model.TableStatistics) float64 {
	cost := float64(stats.RowCount)
	if cost == 0 {
		cost = 1
	}
	for _, f := range filters {
		cost *= selectivityOf(f, stats)
	}
	if len(q.SortFields) > 0 {
		n := math.Max(cost, 1)
		cost += n * math.Log2(n+1)
	}
	if q.Pagination.Page > 1 {
		cost += float64((q.Pagination.Page - 1) * q.Pagination.Size)
	}
	return cost
}

func buildPlan(filters []model.Filter, q model.StructuredQuery, stats model.TableStatistics, totalCost float64) *model.ExecutionPlan {
	rows := stats.RowCount
	plan := &model.ExecutionPlan{}

	plan.Steps = append(plan.Steps, model.PlanStep{
		Operation: "load", Description: fmt.Sprintf("load database %q", q.Database),
		EstimatedRows: rows, EstimatedCost: float64(rows),
	})

	running := float64(rows)
	for _, f := range filters {
		sel := selectivityOf(f, stats)
		running *= sel
		plan.Steps = append(plan.Steps, model.PlanStep{
			Operation: "filter", Description: fmt.Sprintf("%s %s", f.Field, f.Operator),
			EstimatedRows: int(math.Round(running)), EstimatedCost: running,
		})
	}

	if len(q.SortFields) > 0 {
		plan.Steps = append(plan.Steps, model.PlanStep{
			Operation: "sort", Description: "sort by requested fields",
			EstimatedRows: int(math.Round(running)), EstimatedCost: totalCost,
		})
	}

	plan.Steps = append(plan.Steps, model.PlanStep{
		Operation: "paginate", Description: "apply pagination",
		EstimatedRows: q.Pagination.Size, EstimatedCost: totalCost,
	})

	return plan
}
