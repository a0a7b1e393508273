// Package filter applies the closed vocabulary of relational, textual, and
// range operators over records (§4.2).
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/blackcore/queryengine/pkg/collection"
	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/queryengine/search"
	"github.com/blackcore/queryengine/pkg/record"
)

// regexCache compiles each distinct pattern once per process, as required
// by §4.2 ("compile once per distinct pattern").
var regexCache sync.Map // map[string]*regexp.Regexp

// Apply runs filters over records in order, short-circuiting to an empty
// result as soon as any filter leaves nothing to test further (§4.2:
// "apply_filters early-terminates on empty result").
func Apply(records []record.Record, filters []model.Filter) ([]record.Record, error) {
	result := records
	for _, f := range filters {
		if len(result) == 0 {
			return result, nil
		}
		next, err := applyOne(result, f)
		if err != nil {
			return nil, err
		}
		result = next
	}
	return result, nil
}

func applyOne(records []record.Record, f model.Filter) ([]record.Record, error) {
	fn, err := predicate(f)
	if err != nil {
		return nil, err
	}

	path := strings.Split(f.Field, ".")
	var predErr error
	out := collection.Filter(records, func(rec record.Record) bool {
		if predErr != nil {
			return false
		}
		ok, err := fn(rec.Resolve(path))
		if err != nil {
			predErr = err
			return false
		}
		return ok
	})
	if predErr != nil {
		return nil, predErr
	}
	return out, nil
}

type predicateFunc func(record.Value) (bool, error)

func predicate(f model.Filter) (predicateFunc, error) {
	switch f.Operator {
	case model.OpEq:
		return eqPredicate(f, true), nil
	case model.OpNe:
		return eqPredicate(f, false), nil
	case model.OpContains:
		return containsPredicate(f, true), nil
	case model.OpNotContains:
		return containsPredicate(f, false), nil
	case model.OpIn:
		return inPredicate(f, true)
	case model.OpNotIn:
		return inPredicate(f, false)
	case model.OpStartsWith:
		return affixPredicate(f, true), nil
	case model.OpEndsWith:
		return affixPredicate(f, false), nil
	case model.OpGt, model.OpGte, model.OpLt, model.OpLte:
		return comparePredicate(f), nil
	case model.OpBetween:
		return betweenPredicate(f)
	case model.OpIsNull:
		return func(v record.Value) (bool, error) { return v.IsEmpty(), nil }, nil
	case model.OpIsNotNull:
		return func(v record.Value) (bool, error) { return !v.IsEmpty(), nil }, nil
	case model.OpRegex:
		return regexPredicate(f)
	case model.OpFuzzy:
		return fuzzyPredicate(f), nil
	default:
		return nil, qerr.New(qerr.BadFilterShape, "filter.predicate", fmt.Sprintf("unknown operator %q", f.Operator))
	}
}

func toValue(v interface{}) record.Value { return record.FromNative(v) }

func eqPredicate(f model.Filter, wantEqual bool) predicateFunc {
	target := toValue(f.Value)
	return func(v record.Value) (bool, error) {
		eq := valuesEqual(v, target, f.CaseSensitive)
		return eq == wantEqual, nil
	}
}

func valuesEqual(a, b record.Value, caseSensitive bool) bool {
	if !caseSensitive && a.Kind == record.KindString && b.Kind == record.KindString {
		return strings.EqualFold(a.Str, b.Str)
	}
	return record.Equal(a, b)
}

func containsPredicate(f model.Filter, wantContains bool) predicateFunc {
	target := toValue(f.Value)
	return func(v record.Value) (bool, error) {
		var found bool
		switch v.Kind {
		case record.KindList:
			for _, e := range v.List {
				if valuesEqual(e, target, f.CaseSensitive) {
					found = true
					break
				}
			}
		default:
			hay, needle := v.AsString(), target.AsString()
			if !f.CaseSensitive {
				hay, needle = strings.ToLower(hay), strings.ToLower(needle)
			}
			found = strings.Contains(hay, needle)
		}
		return found == wantContains, nil
	}
}

func inPredicate(f model.Filter, wantIn bool) (predicateFunc, error) {
	seq, ok := f.Value.([]interface{})
	if !ok {
		return nil, qerr.New(qerr.BadFilterShape, "filter.inPredicate", "IN/NOT_IN requires a sequence value")
	}
	targets := make([]record.Value, len(seq))
	for i, e := range seq {
		targets[i] = toValue(e)
	}
	return func(v record.Value) (bool, error) {
		member := false
		for _, t := range targets {
			if valuesEqual(v, t, f.CaseSensitive) {
				member = true
				break
			}
		}
		return member == wantIn, nil
	}, nil
}

func affixPredicate(f model.Filter, prefix bool) predicateFunc {
	target := toValue(f.Value).AsString()
	if !f.CaseSensitive {
		target = strings.ToLower(target)
	}
	return func(v record.Value) (bool, error) {
		s := v.AsString()
		if !f.CaseSensitive {
			s = strings.ToLower(s)
		}
		if prefix {
			return strings.HasPrefix(s, target), nil
		}
		return strings.HasSuffix(s, target), nil
	}
}

func comparePredicate(f model.Filter) predicateFunc {
	target := toValue(f.Value)
	return func(v record.Value) (bool, error) {
		cmp := record.Compare(v, target)
		switch f.Operator {
		case model.OpGt:
			return cmp > 0, nil
		case model.OpGte:
			return cmp >= 0, nil
		case model.OpLt:
			return cmp < 0, nil
		case model.OpLte:
			return cmp <= 0, nil
		default:
			return false, nil
		}
	}
}

func betweenPredicate(f model.Filter) (predicateFunc, error) {
	seq, ok := f.Value.([]interface{})
	if !ok || len(seq) != 2 {
		return nil, qerr.New(qerr.BadFilterShape, "filter.betweenPredicate", "BETWEEN requires a 2-element sequence")
	}
	lo, hi := toValue(seq[0]), toValue(seq[1])
	return func(v record.Value) (bool, error) {
		return record.Compare(v, lo) >= 0 && record.Compare(v, hi) <= 0, nil
	}, nil
}

func regexPredicate(f model.Filter) (predicateFunc, error) {
	pattern, _ := f.Value.(string)
	key := pattern
	if !f.CaseSensitive {
		key = "(?i)" + pattern
	}

	if cached, ok := regexCache.Load(key); ok {
		re := cached.(*regexp.Regexp)
		return regexMatchFunc(re), nil
	}

	re, err := regexp.Compile(key)
	if err != nil {
		return nil, qerr.Wrap(qerr.BadRegex, "filter.regexPredicate", fmt.Sprintf("invalid pattern %q", pattern), err)
	}
	regexCache.Store(key, re)
	return regexMatchFunc(re), nil
}

func regexMatchFunc(re *regexp.Regexp) predicateFunc {
	return func(v record.Value) (bool, error) {
		return re.MatchString(v.AsString()), nil
	}
}

func fuzzyPredicate(f model.Filter) predicateFunc {
	threshold := f.FuzzyThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	target := toValue(f.Value).AsString()
	if !f.CaseSensitive {
		target = strings.ToLower(target)
	}
	return func(v record.Value) (bool, error) {
		s := v.AsString()
		if !f.CaseSensitive {
			s = strings.ToLower(s)
		}
		return search.CombinedSimilarity(s, target) >= threshold, nil
	}
}
