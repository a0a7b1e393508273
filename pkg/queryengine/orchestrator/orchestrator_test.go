package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcore/queryengine/pkg/queryengine/cache"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/record"
)

type fakeLoader struct {
	byDB map[string][]record.Record
	err  error
}

func (f *fakeLoader) Load(name string) ([]record.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byDB[name], nil
}

func personRecords() []record.Record {
	mk := func(id, name, dept string) record.Record {
		return record.Record{ID: id, Database: "people", Fields: map[string]record.Value{
			"name": record.String(name),
			"dept": record.String(dept),
		}}
	}
	return []record.Record{
		mk("1", "Alice", "Eng"),
		mk("2", "Bob", "Sales"),
		mk("3", "Cara", "Eng"),
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	l1 := cache.NewL1(1<<20, cache.PolicyLRU)
	c := cache.New(l1)
	return New(Config{
		Loader: &fakeLoader{byDB: map[string][]record.Record{"people": personRecords()}},
		Cache:  c,
	})
}

func TestExecuteFiltersAndPaginates(t *testing.T) {
	e := newEngine(t)

	result, err := e.Execute(context.Background(), model.StructuredQuery{
		Database: "people",
		Filters:  []model.Filter{{Field: "dept", Operator: model.OpEq, Value: "Eng"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)
	assert.Len(t, result.Data, 2)
}

func TestExecuteRejectsTooManyFilters(t *testing.T) {
	e := New(Config{
		Loader: &fakeLoader{byDB: map[string][]record.Record{"people": personRecords()}},
		Limits: Limits{MaxFilters: 1},
	})

	var filters []model.Filter
	for i := 0; i < 3; i++ {
		filters = append(filters, model.Filter{Field: "dept", Operator: model.OpEq, Value: "Eng"})
	}

	_, err := e.Execute(context.Background(), model.StructuredQuery{Database: "people", Filters: filters})
	require.Error(t, err)
}

func TestExecuteRejectsHugeUnfilteredPage(t *testing.T) {
	e := New(Config{
		Loader: &fakeLoader{byDB: map[string][]record.Record{"people": personRecords()}},
		Limits: Limits{MaxUnfilteredReach: 100},
	})

	_, err := e.Execute(context.Background(), model.StructuredQuery{
		Database:   "people",
		Pagination: model.Pagination{Page: 10, Size: 50},
	})
	require.Error(t, err)
}

func TestExecuteIsReproducibleFromCache(t *testing.T) {
	e := newEngine(t)
	q := model.StructuredQuery{Database: "people"}

	first, err := e.Execute(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := e.Execute(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Data, second.Data)
}

func TestExecuteRequiresDatabase(t *testing.T) {
	e := newEngine(t)
	_, err := e.Execute(context.Background(), model.StructuredQuery{})
	assert.Error(t, err)
}

func TestExecuteNLDerivesStructuredQuery(t *testing.T) {
	e := newEngine(t)
	result, err := e.ExecuteNL(context.Background(), "find Alice in Eng", map[string]interface{}{"database": "people"})
	require.NoError(t, err)
	assert.NotNil(t, result.Data)
}
