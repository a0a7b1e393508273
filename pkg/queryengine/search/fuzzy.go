package search

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// CombinedSimilarity averages four independent similarity signals into a
// single [0,1] score, grounding spec.md's "Levenshtein+Jaro-Winkler+n-gram+
// soundex combined as mean" literally as an arithmetic mean of four
// component scores.
func CombinedSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	lev := levenshteinRatio(a, b)
	jw := jaroWinkler(a, b)
	ngram := fuzzy.RankMatchNormalized(a, b)
	ng := ngramScore(ngram)
	sx := 0.0
	if soundex(a) == soundex(b) {
		sx = 1.0
	}

	return (lev + jw + ng + sx) / 4
}

func levenshteinRatio(a, b string) float64 {
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

// ngramScore converts fuzzysearch's RankMatchNormalized (-1 on no match,
// else a non-negative edit-distance-like rank) into a [0,1] similarity.
func ngramScore(rank int) float64 {
	if rank < 0 {
		return 0
	}
	return 1 / (1 + float64(rank))
}

// jaroWinkler computes the Jaro-Winkler similarity directly; no suitable
// library for this specific metric was found in the retrieval pack (see
// SPEC_FULL.md).
func jaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j <= 0 {
		return j
	}

	prefix := 0
	maxPrefix := 4
	for prefix < len(a) && prefix < len(b) && prefix < maxPrefix && a[prefix] == b[prefix] {
		prefix++
	}

	const scalingFactor = 0.1
	return j + float64(prefix)*scalingFactor*(1-j)
}

func jaro(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	matchDistance := la
	if lb > la {
		matchDistance = lb
	}
	matchDistance = matchDistance/2 - 1
	if matchDistance < 0 {
		matchDistance = 0
	}

	aMatches := make([]bool, la)
	bMatches := make([]bool, lb)

	matches := 0
	for i := 0; i < la; i++ {
		start := i - matchDistance
		if start < 0 {
			start = 0
		}
		end := i + matchDistance + 1
		if end > lb {
			end = lb
		}
		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := 0; i < la; i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}
	transpositions /= 2

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions))/m) / 3
}

// soundexCodes maps each letter to its Soundex digit group.
var soundexCodes = map[byte]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// soundex implements the standard American Soundex algorithm.
func soundex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var firstLetter byte
	i := 0
	for ; i < len(s); i++ {
		if s[i] >= 'a' && s[i] <= 'z' {
			firstLetter = s[i]
			i++
			break
		}
	}
	if firstLetter == 0 {
		return ""
	}

	code := []byte{firstLetter - 'a' + 'A'}
	lastDigit := soundexCodes[firstLetter]

	for ; i < len(s) && len(code) < 4; i++ {
		c := s[i]
		if c < 'a' || c > 'z' {
			continue
		}
		digit, ok := soundexCodes[c]
		if !ok {
			lastDigit = 0
			continue
		}
		if digit != lastDigit {
			code = append(code, digit)
		}
		lastDigit = digit
	}

	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}
