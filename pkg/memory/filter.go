package memory

import (
	"fmt"
	"reflect"
)

/*
Condition is one predicate over a payload field. Exactly one of Match, Any,
Range or IsEmpty is meaningful, following the shape of Qdrant's filter
conditions so a backend can translate it one to one.
*/
type Condition struct {
	Key     string
	Match   any
	Any     []any
	Range   *Range
	IsEmpty bool
}

type Range struct {
	GTE *float64
	LTE *float64
}

/*
Filter combines conditions: every Must holds, no MustNot holds, and when
Should is non-empty at least one of it holds.
*/
type Filter struct {
	Must    []Condition
	MustNot []Condition
	Should  []Condition
}

func Match(key string, value any) Condition {
	return Condition{Key: key, Match: value}
}

func MatchAny(key string, values ...string) Condition {
	anys := make([]any, len(values))

	for i, v := range values {
		anys[i] = v
	}

	return Condition{Key: key, Any: anys}
}

func AtLeast(key string, value float64) Condition {
	return Condition{Key: key, Range: &Range{GTE: &value}}
}

func IsEmpty(key string) Condition {
	return Condition{Key: key, IsEmpty: true}
}

// And returns a copy of f with extra Must conditions.
func (f Filter) And(conditions ...Condition) Filter {
	out := f.clone()
	out.Must = append(out.Must, conditions...)
	return out
}

// Not returns a copy of f with extra MustNot conditions.
func (f Filter) Not(conditions ...Condition) Filter {
	out := f.clone()
	out.MustNot = append(out.MustNot, conditions...)
	return out
}

func (f Filter) Empty() bool {
	return len(f.Must) == 0 && len(f.MustNot) == 0 && len(f.Should) == 0
}

func (f Filter) clone() Filter {
	return Filter{
		Must:    append([]Condition(nil), f.Must...),
		MustNot: append([]Condition(nil), f.MustNot...),
		Should:  append([]Condition(nil), f.Should...),
	}
}

/*
Matches evaluates the filter against a decoded payload, for backends that
cannot push filtering down. Array fields match when any element matches,
as they do in Qdrant.
*/
func (f Filter) Matches(payload map[string]any) bool {
	for _, c := range f.Must {
		if !c.Matches(payload) {
			return false
		}
	}

	for _, c := range f.MustNot {
		if c.Matches(payload) {
			return false
		}
	}

	if len(f.Should) == 0 {
		return true
	}

	for _, c := range f.Should {
		if c.Matches(payload) {
			return true
		}
	}

	return false
}

func (c Condition) Matches(payload map[string]any) bool {
	value, present := payload[c.Key]

	switch {
	case c.IsEmpty:
		return !present || isEmptyValue(value)
	case c.Range != nil:
		return anyElement(value, func(v any) bool {
			n, ok := toFloat(v)
			if !ok {
				return false
			}
			if c.Range.GTE != nil && n < *c.Range.GTE {
				return false
			}
			if c.Range.LTE != nil && n > *c.Range.LTE {
				return false
			}
			return true
		})
	case c.Any != nil:
		return anyElement(value, func(v any) bool {
			for _, want := range c.Any {
				if equalValues(v, want) {
					return true
				}
			}
			return false
		})
	default:
		return anyElement(value, func(v any) bool {
			return equalValues(v, c.Match)
		})
	}
}

func anyElement(value any, fn func(any) bool) bool {
	if value == nil {
		return false
	}

	if items, ok := value.([]any); ok {
		for _, item := range items {
			if fn(item) {
				return true
			}
		}
		return false
	}

	if items, ok := value.([]string); ok {
		for _, item := range items {
			if fn(item) {
				return true
			}
		}
		return false
	}

	return fn(value)
}

func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}

	return false
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}

	return 0, false
}
