package search

import (
	"testing"

	"github.com/blackcore/queryengine/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(id, name string) record.Record {
	return record.Record{
		ID:       id,
		Database: "people",
		Fields: map[string]record.Value{
			"title": record.String(name),
		},
	}
}

func TestCombinedSimilarityIdentical(t *testing.T) {
	assert.Equal(t, 1.0, CombinedSimilarity("alice", "alice"))
}

func TestCombinedSimilarityCloseMatch(t *testing.T) {
	sim := CombinedSimilarity("alise jonson", "alice johnson")
	assert.Greater(t, sim, 0.6)
}

func TestFuzzyMatchScenario(t *testing.T) {
	records := []record.Record{
		newRecord("1", "Alice Johnson"),
		newRecord("2", "Bob"),
	}

	matches := Score(records, "Alise Jonson", Config{
		Mode:           ModeFuzzy,
		FieldWeights:   map[string]float64{"title": 1.0},
		FuzzyThreshold: 0.7,
		MinScore:       0.05,
	})

	require.Len(t, matches, 1)
	assert.Equal(t, "1", matches[0].Record.ID)
}

func TestTokenizeDropsStopWordsUnlessAllStopWords(t *testing.T) {
	tokens := Tokenize("the Chief of the Staff", false)
	assert.NotContains(t, tokens, "the")
	assert.Contains(t, tokens, "chief")

	onlyStop := Tokenize("the of", false)
	assert.Equal(t, []string{"the", "of"}, onlyStop)
}

func TestSoundexGroupsSimilarSoundingNames(t *testing.T) {
	assert.Equal(t, soundex("Robert"), soundex("Rupert"))
	assert.NotEqual(t, soundex("Robert"), soundex("Ashcraft"))
}

func TestEntityPatternScoreDetectsEmail(t *testing.T) {
	assert.Equal(t, 3.0, entityPatternScore("contact alice@example.com for details"))
	assert.Equal(t, 0.0, entityPatternScore("no patterns here"))
}
