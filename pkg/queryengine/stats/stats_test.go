package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordQueryAccumulatesCounters(t *testing.T) {
	c := New()
	c.RecordQuery("people", []string{"dept", "name"}, 12.5, "l1")
	c.RecordQuery("people", []string{"dept"}, 8.0, "")

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.InDelta(t, 10.25, snap.AvgTimeMS, 0.01)
	assert.Equal(t, int64(1), snap.PerTierHits["l1"])
}

func TestPopularDatabasesIsBoundedAndOrdered(t *testing.T) {
	c := New()
	for i := 0; i < 30; i++ {
		name := "db"
		if i%3 != 0 {
			name = "popular"
		}
		c.RecordQuery(name, nil, 1, "")
	}

	snap := c.Snapshot()
	require.LessOrEqual(t, len(snap.PopularDatabases), 20)
	assert.Equal(t, "popular", snap.PopularDatabases[0].Name)
}

func TestRecordErrorIsSeparateFromTotalQueries(t *testing.T) {
	c := New()
	c.RecordQuery("people", nil, 1, "")
	c.RecordError()

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ErrorQueries)
}
