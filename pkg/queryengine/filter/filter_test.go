package filter

import (
	"testing"

	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deptRecord(id, dept string) record.Record {
	return record.Record{ID: id, Fields: map[string]record.Value{"dept": record.String(dept)}}
}

func TestExactEqualityFilter(t *testing.T) {
	records := []record.Record{
		deptRecord("1", "Eng"),
		deptRecord("2", "Sales"),
		deptRecord("3", "Eng"),
	}

	out, err := Apply(records, []model.Filter{{Field: "dept", Operator: model.OpEq, Value: "Eng"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, "3", out[1].ID)
}

func TestInRequiresSequence(t *testing.T) {
	records := []record.Record{deptRecord("1", "Eng")}
	_, err := Apply(records, []model.Filter{{Field: "dept", Operator: model.OpIn, Value: "Eng"}})
	require.Error(t, err)
	assert.True(t, qerr.IsBadFilterShape(err))
}

func TestBetweenWrongArity(t *testing.T) {
	records := []record.Record{{Fields: map[string]record.Value{"age": record.Number(30)}}}
	_, err := Apply(records, []model.Filter{{Field: "age", Operator: model.OpBetween, Value: []interface{}{1.0}}})
	require.Error(t, err)
	assert.True(t, qerr.IsBadFilterShape(err))
}

func TestBadRegexSurfaces(t *testing.T) {
	records := []record.Record{deptRecord("1", "Eng")}
	_, err := Apply(records, []model.Filter{{Field: "dept", Operator: model.OpRegex, Value: "("}})
	require.Error(t, err)
	assert.True(t, qerr.IsBadRegex(err))
}

func TestEarlyTerminationOnEmptyResult(t *testing.T) {
	records := []record.Record{deptRecord("1", "Eng")}
	out, err := Apply(records, []model.Filter{
		{Field: "dept", Operator: model.OpEq, Value: "Sales"},
		{Field: "dept", Operator: model.OpRegex, Value: "("}, // would error if evaluated
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBetweenInclusiveBounds(t *testing.T) {
	records := []record.Record{
		{ID: "lo", Fields: map[string]record.Value{"age": record.Number(10)}},
		{ID: "mid", Fields: map[string]record.Value{"age": record.Number(20)}},
		{ID: "hi", Fields: map[string]record.Value{"age": record.Number(30)}},
	}
	out, err := Apply(records, []model.Filter{
		{Field: "age", Operator: model.OpBetween, Value: []interface{}{10.0, 20.0}},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestIsNullMatchesMissingEmptyAndNull(t *testing.T) {
	records := []record.Record{
		{ID: "missing", Fields: map[string]record.Value{}},
		{ID: "empty", Fields: map[string]record.Value{"x": record.String("")}},
		{ID: "present", Fields: map[string]record.Value{"x": record.String("v")}},
	}
	out, err := Apply(records, []model.Filter{{Field: "x", Operator: model.OpIsNull}})
	require.NoError(t, err)
	require.Len(t, out, 2)
}
