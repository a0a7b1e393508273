// Package search implements the token/fuzzy/phonetic/phrase relevance
// scorer of §4.4 and the field-weighted ranking it feeds into.
package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/blackcore/queryengine/pkg/record"
)

// Mode selects the scoring strategy requested by the caller.
type Mode string

const (
	ModeExact    Mode = "exact"
	ModeFuzzy    Mode = "fuzzy"
	ModePhonetic Mode = "phonetic"
	ModeSemantic Mode = "semantic"
)

// Config tunes the scorer; zero-valued fields fall back to the defaults
// documented alongside each one.
type Config struct {
	Mode            Mode
	MinScore        float64 // default 0
	MaxResults      int     // default: no cap
	FieldWeights    map[string]float64
	FuzzyThreshold  float64 // default 0.8, per §4.4 step 4
	CaseSensitive   bool
	ContextChars    int  // default 40, half-window for highlight snippets
	DatabaseIntent  string
}

// Match pairs a record with its computed score and highlight snippets.
type Match struct {
	Record     record.Record
	Score      float64
	Highlights map[string][]string
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "and": true, "or": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "by": true, "with": true,
}

var tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Tokenize splits on non-alphanumeric, lowercases unless caseSensitive,
// and drops stop words unless doing so would empty the result.
func Tokenize(s string, caseSensitive bool) []string {
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	raw := tokenSplit.Split(s, -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t != "" {
			tokens = append(tokens, t)
		}
	}

	filtered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !stopWords[strings.ToLower(t)] {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return tokens
	}
	return filtered
}

var quotedPhrase = regexp.MustCompile(`"([^"]+)"`)

// Score ranks records against query text Q per cfg, returning matches
// sorted by score descending and capped at cfg.MaxResults.
func Score(records []record.Record, q string, cfg Config) []Match {
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = 0.8
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = 40
	}
	if len(cfg.FieldWeights) == 0 {
		cfg.FieldWeights = map[string]float64{"title": 1.0, "properties": 0.8}
	}

	maxWeight := 0.0
	for _, w := range cfg.FieldWeights {
		if w > maxWeight {
			maxWeight = w
		}
	}

	queryTokens := Tokenize(q, cfg.CaseSensitive)
	phrases := extractQuotedPhrases(q)
	ngrams := extractPhraseNGrams(queryTokens, 2, 3)

	maxPossible := float64(len(queryTokens)) * maxWeight * 5
	if maxPossible <= 0 {
		maxPossible = 1
	}

	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		score, highlights := scoreRecord(rec, queryTokens, phrases, ngrams, cfg)
		normalized := clamp01(score / maxPossible)
		if normalized < cfg.MinScore {
			continue
		}
		matches = append(matches, Match{Record: rec, Score: normalized, Highlights: highlights})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	if cfg.MaxResults > 0 && len(matches) > cfg.MaxResults {
		matches = matches[:cfg.MaxResults]
	}
	return matches
}

func scoreRecord(rec record.Record, queryTokens, phrases, ngrams []string, cfg Config) (float64, map[string][]string) {
	total := 0.0
	highlights := make(map[string][]string)

	for field, weight := range cfg.FieldWeights {
		val := rec.Resolve(strings.Split(field, "."))
		if val.IsNull() {
			continue
		}
		text := val.AsString()
		if !cfg.CaseSensitive {
			text = strings.ToLower(text)
		}
		if text == "" {
			continue
		}

		fieldTokens := Tokenize(text, true) // already case-folded above

		total += exactPhraseScore(text, phrases, weight)
		total += tokenOverlapScore(queryTokens, fieldTokens, weight)
		total += synonymScore(queryTokens, fieldTokens, weight)
		total += fuzzyTokenScore(queryTokens, fieldTokens, weight, cfg.FuzzyThreshold)
		total += phraseNGramScore(text, ngrams, weight)
		total += entityPatternScore(text)
		total += intentBonus(field, cfg.DatabaseIntent)

		if snips := highlightSnippets(text, queryTokens, cfg.ContextChars); len(snips) > 0 {
			highlights[field] = snips
		}
	}

	return total, highlights
}

func extractQuotedPhrases(q string) []string {
	matches := quotedPhrase.FindAllStringSubmatch(q, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToLower(m[1]))
	}
	return out
}

// exactPhraseScore: add 5*w per quoted-phrase match found verbatim in text.
func exactPhraseScore(text string, phrases []string, weight float64) float64 {
	score := 0.0
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			score += 5 * weight
		}
	}
	return score
}

// tokenOverlapScore: for each query token matching a field token at
// position p, add w*(1/(1+0.1p)).
func tokenOverlapScore(queryTokens, fieldTokens []string, weight float64) float64 {
	score := 0.0
	for _, qt := range queryTokens {
		for p, ft := range fieldTokens {
			if qt == ft {
				score += weight * (1 / (1 + 0.1*float64(p)))
			}
		}
	}
	return score
}

// synonymExpansions is a small static thesaurus; swapped for a real
// synonym service would be a drop-in replacement of this map.
var synonymExpansions = map[string][]string{
	"ceo":     {"chief", "executive"},
	"company": {"organization", "firm", "business"},
	"person":  {"individual", "contact"},
	"find":    {"search", "locate"},
}

func synonymScore(queryTokens, fieldTokens []string, weight float64) float64 {
	score := 0.0
	for _, qt := range queryTokens {
		for _, syn := range synonymExpansions[qt] {
			for p, ft := range fieldTokens {
				if syn == ft {
					score += weight * 0.8 * (1 / (1 + 0.1*float64(p)))
				}
			}
		}
	}
	return score
}

// fuzzyTokenScore: per token pair, best combined similarity >= threshold
// adds w*similarity*0.7.
func fuzzyTokenScore(queryTokens, fieldTokens []string, weight, threshold float64) float64 {
	score := 0.0
	for _, qt := range queryTokens {
		best := 0.0
		for _, ft := range fieldTokens {
			if sim := CombinedSimilarity(qt, ft); sim > best {
				best = sim
			}
		}
		if best >= threshold {
			score += weight * best * 0.7
		}
	}
	return score
}

func extractPhraseNGrams(tokens []string, minN, maxN int) []string {
	out := make([]string, 0)
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			gram := tokens[i : i+n]
			if allStopWords(gram) {
				continue
			}
			out = append(out, strings.Join(gram, " "))
		}
	}
	return out
}

func allStopWords(tokens []string) bool {
	for _, t := range tokens {
		if !stopWords[t] {
			return false
		}
	}
	return true
}

func phraseNGramScore(text string, ngrams []string, weight float64) float64 {
	score := 0.0
	for _, g := range ngrams {
		if strings.Contains(text, g) {
			score += weight * 2
		}
	}
	return score
}

var entityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`),                 // email
	regexp.MustCompile(`\+?\d[\d\-. ]{7,}\d`),                      // phone
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),                        // date
	regexp.MustCompile(`https?://[^\s]+`),                         // URL
	regexp.MustCompile(`@\w+`),                                    // mention
	regexp.MustCompile(`#\w+`),                                    // hashtag
	regexp.MustCompile(`\b\d+\b`),                                  // number
	regexp.MustCompile(`[$€£]\s?\d+(\.\d+)?`),                     // currency
}

func entityPatternScore(text string) float64 {
	for _, re := range entityPatterns {
		if re.MatchString(text) {
			return 3
		}
	}
	return 0
}

// intentDatabaseMap names which field prefixes count as a hit for a given
// intent-derived entity type (e.g. "find_person" against a people field).
var intentDatabaseMap = map[string][]string{
	"find_person":       {"people", "properties"},
	"find_organization":  {"organizations", "properties"},
}

func intentBonus(field, intent string) float64 {
	if intent == "" {
		return 0
	}
	for _, prefix := range intentDatabaseMap[intent] {
		if strings.HasPrefix(field, prefix) {
			return 3
		}
	}
	return 0
}

// highlightSnippets emits up to 3 windows of +/-contextChars around the
// first match of each token, trimmed to word boundaries and ellipsized.
func highlightSnippets(text string, tokens []string, contextChars int) []string {
	out := make([]string, 0, 3)
	seen := map[string]bool{}
	for _, tok := range tokens {
		if len(out) >= 3 {
			break
		}
		idx := strings.Index(text, tok)
		if idx < 0 {
			continue
		}
		start := idx - contextChars
		if start < 0 {
			start = 0
		}
		end := idx + len(tok) + contextChars
		if end > len(text) {
			end = len(text)
		}
		snippet := trimToWordBoundary(text, start, end)
		if seen[snippet] {
			continue
		}
		seen[snippet] = true
		out = append(out, snippet)
	}
	return out
}

func trimToWordBoundary(text string, start, end int) string {
	for start > 0 && text[start] != ' ' {
		start--
	}
	for end < len(text) && text[end] != ' ' {
		end++
	}
	snippet := strings.TrimSpace(text[start:end])
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(text) {
		snippet = snippet + "…"
	}
	return snippet
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
