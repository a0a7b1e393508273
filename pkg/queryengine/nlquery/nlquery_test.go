package nlquery

import (
	"testing"

	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIntentFiltersBeforeSearch(t *testing.T) {
	parsed := Parse("find people where department is Engineering", nil)
	assert.Equal(t, model.IntentFilterResults, parsed.Intent)
}

func TestClassifySearchEntity(t *testing.T) {
	parsed := Parse("find Alice Johnson", nil)
	assert.Equal(t, model.IntentSearchEntity, parsed.Intent)
}

func TestExtractEntitiesEmailAndQuoted(t *testing.T) {
	parsed := Parse(`find "Alice Johnson" with email alice@example.com`, nil)
	var sawEmail, sawLiteral bool
	for _, e := range parsed.Entities {
		if e.Type == "email" {
			sawEmail = true
		}
		if e.Type == "literal" {
			sawLiteral = true
		}
	}
	assert.True(t, sawEmail)
	assert.True(t, sawLiteral)
}

func TestExtractLimit(t *testing.T) {
	parsed := Parse("show top 10 contacts", nil)
	assert.Equal(t, 10, parsed.Limit)
}

func TestExtractSortCriteria(t *testing.T) {
	parsed := Parse("list contacts sorted by name descending", nil)
	require.Len(t, parsed.SortCriteria, 1)
	assert.Equal(t, "name", parsed.SortCriteria[0].Field)
	assert.Equal(t, model.Desc, parsed.SortCriteria[0].Order)
}

func TestConfidenceIsWithinUnitRange(t *testing.T) {
	parsed := Parse(`compare "A" and "B" and "C" and "D" and "E"`, nil)
	assert.GreaterOrEqual(t, parsed.Confidence, 0.0)
	assert.LessOrEqual(t, parsed.Confidence, 1.0)
}
