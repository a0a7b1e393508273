// Package record defines the tagged-variant value model every pipeline
// stage operates on, plus normalization of the platform's native record
// encoding (nested "properties" cells) into that variant.
package record

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the shapes a record cell can take. Exactly
// one of the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	List []Value
	Map  map[string]Value
	Time time.Time
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value     { return Value{Kind: KindNumber, Num: n} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func List(vs []Value) Value      { return Value{Kind: KindList, List: vs} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }
func Time(t time.Time) Value     { return Value{Kind: KindTime, Time: t} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsEmpty reports the "empty" test used by is_null/is_not_null: null,
// missing, empty string, or empty list all count as empty.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == ""
	case KindList:
		return len(v.List) == 0
	default:
		return false
	}
}

// FromNative converts a decoded-JSON value (as produced by
// encoding/json.Unmarshal into interface{}) into a Value.
func FromNative(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case json.Number:
		f, _ := t.Float64()
		return Number(f)
	case string:
		if ts, ok := parseISO8601(t); ok {
			return Value{Kind: KindString, Str: t, Time: ts}
		}
		return String(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromNative(e)
		}
		return List(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromNative(e)
		}
		return Map(out)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

func parseISO8601(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AsFloat reports whether v is coercible to a number (Number kind, or a
// String kind that parses cleanly) and returns that number.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsTime reports whether v carries (or parses as) an ISO-8601 timestamp.
func (v Value) AsTime() (time.Time, bool) {
	if !v.Time.IsZero() {
		return v.Time, true
	}
	if v.Kind == KindString {
		return parseISO8601(v.Str)
	}
	return time.Time{}, false
}

// AsString renders v for substring/prefix/suffix comparisons and for
// text-search tokenization.
func (v Value) AsString() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindTime:
		return v.Time.Format(time.RFC3339)
	case KindList:
		out := make([]string, len(v.List))
		for i, e := range v.List {
			out[i] = e.AsString()
		}
		return fmt.Sprint(out)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Equal implements type-preserving equality used by eq/ne, with the
// case-insensitive string relaxation the filter engine applies itself.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		// Numbers and numeric strings compare equal, matching the coercion
		// rule used elsewhere by gt/gte/lt/lte.
		if af, aok := a.AsFloat(); aok {
			if bf, bok := b.AsFloat(); bok {
				return af == bf
			}
		}
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders a against b for sort/range operators: numbers and
// ISO-8601 timestamps compare numerically, everything else falls back to
// lexicographic string comparison. It returns -1, 0 or 1.
func Compare(a, b Value) int {
	if at, aok := a.AsTime(); aok {
		if bt, bok := b.AsTime(); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	if af, aok := a.AsFloat(); aok {
		if bf, bok := b.AsFloat(); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := a.AsString(), b.AsString()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// SortedKeys returns m's keys in a deterministic order, used anywhere a
// Map is iterated for output (CSV header inference, JSON key ordering).
func (v Value) SortedKeys() []string {
	if v.Kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.Map))
	for k := range v.Map {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
