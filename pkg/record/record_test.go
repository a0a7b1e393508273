package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMapAssignsFallbackID(t *testing.T) {
	raw := map[string]interface{}{"dept": "Eng"}
	rec := FromMap(raw, "people", "people_3")

	assert.Equal(t, "people_3", rec.ID)
	assert.Equal(t, "people", rec.Database)
	assert.Equal(t, "Eng", rec.Fields["dept"].AsString())
}

func TestFromMapPrefersExplicitID(t *testing.T) {
	raw := map[string]interface{}{"id": "p-1"}
	rec := FromMap(raw, "people", "people_0")
	assert.Equal(t, "p-1", rec.ID)
}

func TestNormalizeTitleAndRichText(t *testing.T) {
	raw := map[string]interface{}{
		"properties": map[string]interface{}{
			"title": []interface{}{
				map[string]interface{}{"plain_text": "Alice "},
				map[string]interface{}{"plain_text": "Johnson"},
			},
		},
	}
	rec := FromMap(raw, "people", "people_0")
	props := rec.Fields["properties"]
	require.Equal(t, KindMap, props.Kind)
	assert.Equal(t, "Alice Johnson", props.Map["title"].AsString())
}

func TestNormalizeSelectAndMultiSelect(t *testing.T) {
	raw := map[string]interface{}{
		"properties": map[string]interface{}{
			"select": map[string]interface{}{"name": "Active"},
			"multi_select": []interface{}{
				map[string]interface{}{"name": "red"},
				map[string]interface{}{"name": "blue"},
			},
		},
	}
	rec := FromMap(raw, "tasks", "tasks_0")
	props := rec.Fields["properties"]

	assert.Equal(t, "Active", props.Map["select"].AsString())
	require.Len(t, props.Map["multi_select"].List, 2)
	assert.Equal(t, "red", props.Map["multi_select"].List[0].AsString())
}

func TestNormalizeRelationAndDate(t *testing.T) {
	raw := map[string]interface{}{
		"properties": map[string]interface{}{
			"relation": []interface{}{
				map[string]interface{}{"id": "org-1"},
			},
			"date": map[string]interface{}{"start": "2024-01-15", "end": nil},
		},
	}
	rec := FromMap(raw, "people", "people_0")
	props := rec.Fields["properties"]

	require.Len(t, props.Map["relation"].List, 1)
	assert.Equal(t, "org-1", props.Map["relation"].List[0].AsString())
	assert.Equal(t, "2024-01-15", props.Map["date"].AsString())
}

func TestResolveDotNotationAndListIndex(t *testing.T) {
	rec := Record{
		Fields: map[string]Value{
			"address": Map(map[string]Value{
				"city": String("Austin"),
			}),
			"tags": List([]Value{String("a"), String("b")}),
		},
	}

	assert.Equal(t, "Austin", rec.Resolve([]string{"address", "city"}).AsString())
	assert.Equal(t, "b", rec.Resolve([]string{"tags", "1"}).AsString())
	assert.True(t, rec.Resolve([]string{"tags", "5"}).IsNull())
	assert.True(t, rec.Resolve([]string{"missing", "x"}).IsNull())
}

func TestEqualCoercesNumericStrings(t *testing.T) {
	assert.True(t, Equal(Number(30), String("30")))
	assert.False(t, Equal(String("30"), String("thirty")))
}

func TestCompareFallsBackToLexicographic(t *testing.T) {
	assert.Equal(t, -1, Compare(String("apple"), String("banana")))
	assert.Equal(t, -1, Compare(Number(1), Number(2)))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, Null().IsEmpty())
	assert.True(t, String("").IsEmpty())
	assert.True(t, List(nil).IsEmpty())
	assert.False(t, String("x").IsEmpty())
	assert.False(t, Number(0).IsEmpty())
}
