package sortpage

import (
	"fmt"
	"testing"

	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id string, a interface{}, n string) record.Record {
	fields := map[string]record.Value{"n": record.String(n)}
	if a == nil {
		fields["a"] = record.Null()
	} else {
		fields["a"] = record.Number(a.(float64))
	}
	return record.Record{ID: id, Fields: fields}
}

func TestMultiKeySortWithNulls(t *testing.T) {
	records := []record.Record{
		rec("A", 30.0, "A"),
		rec("D", nil, "D"),
		rec("B", 30.0, "B"),
		rec("C", 35.0, "C"),
	}

	sorted := ApplySorting(records, []model.SortField{
		{Field: "a", Order: model.Asc},
		{Field: "n", Order: model.Asc},
	})

	ids := make([]string, len(sorted))
	for i, r := range sorted {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids)
}

func TestSortIdempotenceAndPermutation(t *testing.T) {
	records := []record.Record{
		rec("A", 3.0, "x"), rec("B", 1.0, "y"), rec("C", 2.0, "z"),
	}
	sortFields := []model.SortField{{Field: "a", Order: model.Asc}}

	once := ApplySorting(records, sortFields)
	twice := ApplySorting(once, sortFields)

	require.Len(t, twice, 3)
	for i := range once {
		assert.Equal(t, once[i].ID, twice[i].ID)
	}
}

func TestTopKEqualsPrefixOfFullSort(t *testing.T) {
	records := []record.Record{
		rec("A", 5.0, "a"), rec("B", 1.0, "b"), rec("C", 3.0, "c"), rec("D", 2.0, "d"),
	}
	sortFields := []model.SortField{{Field: "a", Order: model.Asc}}

	full := ApplySorting(records, sortFields)
	top2 := GetTopK(records, 2, sortFields)

	require.Len(t, top2, 2)
	assert.Equal(t, full[0].ID, top2[0].ID)
	assert.Equal(t, full[1].ID, top2[1].ID)
}

func TestOffsetPaginationClampsPageBelowOne(t *testing.T) {
	records := make([]record.Record, 5)
	for i := range records {
		records[i] = rec(fmt.Sprintf("r%d", i), float64(i), "x")
	}

	page, total := ApplyPagination(records, 0, 2)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "r0", page[0].ID)
}

func TestCursorPaginationCoversWithoutGapsOrDuplicates(t *testing.T) {
	records := make([]record.Record, 100)
	for i := range records {
		records[i] = rec(fmt.Sprintf("r%03d", i), 0, fmt.Sprintf("name-%03d", i))
	}
	sortFields := []model.SortField{{Field: "n", Order: model.Asc}}

	var all []record.Record
	cursor := ""
	for i := 0; i < 4; i++ {
		page, next, _, err := ApplyCursorPagination(records, cursor, 25, sortFields)
		require.NoError(t, err)
		all = append(all, page...)
		cursor = next
	}

	require.Len(t, all, 100)
	seen := map[string]bool{}
	for _, r := range all {
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}

	full := ApplySorting(records, sortFields)
	for i, r := range full {
		assert.Equal(t, r.ID, all[i].ID)
	}
}

func TestCursorPaginationRejectsTamperedCursor(t *testing.T) {
	records := []record.Record{rec("a", 1.0, "x")}
	sortFields := []model.SortField{{Field: "n", Order: model.Asc}}
	_, _, _, err := ApplyCursorPagination(records, "not-a-real-cursor!!", 10, sortFields)
	require.Error(t, err)
	assert.True(t, qerr.IsBadCursor(err))
}
