package optimizer

import (
	"testing"

	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorderFiltersPutsCheapHighSelectivityFirst(t *testing.T) {
	q := model.StructuredQuery{
		Database: "people",
		Filters: []model.Filter{
			{Field: "bio", Operator: model.OpRegex, Value: "^A"},
			{Field: "dept", Operator: model.OpEq, Value: "Eng"},
		},
	}
	stats := model.TableStatistics{RowCount: 1000}

	out := Optimize(q, stats)
	require.Len(t, out.Query.Filters, 2)
	assert.Equal(t, model.OpEq, out.Query.Filters[0].Operator, "eq should be reordered ahead of regex")
}

func TestPromoteIndexedSortField(t *testing.T) {
	q := model.StructuredQuery{
		Database:   "people",
		SortFields: []model.SortField{{Field: "name", Order: model.Asc}, {Field: "id", Order: model.Asc}},
	}
	stats := model.TableStatistics{RowCount: 100, IndexedFields: []string{"id"}}

	out := Optimize(q, stats)
	require.Len(t, out.Query.SortFields, 2)
	assert.Equal(t, "id", out.Query.SortFields[0].Field)
}

func TestIndexHintsForUnindexedEqFilter(t *testing.T) {
	q := model.StructuredQuery{
		Database: "people",
		Filters:  []model.Filter{{Field: "dept", Operator: model.OpEq, Value: "Eng"}},
	}
	stats := model.TableStatistics{RowCount: 100}

	out := Optimize(q, stats)
	require.NotEmpty(t, out.IndexHints)
	assert.Equal(t, []string{"dept"}, out.IndexHints[0].Fields)
}

func TestPlanStepsChainRowsForward(t *testing.T) {
	q := model.StructuredQuery{
		Database:   "people",
		Filters:    []model.Filter{{Field: "dept", Operator: model.OpEq, Value: "Eng"}},
		SortFields: []model.SortField{{Field: "name", Order: model.Asc}},
		Pagination: model.Pagination{Page: 1, Size: 20},
	}
	stats := model.TableStatistics{RowCount: 1000}

	out := Optimize(q, stats)
	require.NotNil(t, out.Plan)
	assert.True(t, len(out.Plan.Steps) >= 3)
	assert.Equal(t, "load", out.Plan.Steps[0].Operation)
}
