// Package condition evaluates field predicates against documents.
package condition

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/pitabwire/signoff/model"
)

// Operators lists every supported operator.
var Operators = []string{
	model.OpEquals, model.OpNotEquals,
	model.OpGreater, model.OpLess,
	model.OpContains, model.OpNotContain,
	model.OpEmpty, model.OpNotEmpty,
}

// Known reports whether op is a supported operator.
func Known(op string) bool {
	for _, o := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// Evaluate reports whether cond holds for doc. Unknown operators evaluate to
// false. Numeric operators parse both sides as numbers and are false when
// either side is not numeric. Every other operator compares as text.
func Evaluate(cond model.Condition, doc map[string]any) bool {
	actual := Lookup(doc, cond.Field)

	switch cond.Operator {
	case model.OpEquals:
		return equal(actual, cond.Value)
	case model.OpNotEquals:
		return !equal(actual, cond.Value)
	case model.OpGreater:
		a, okA := toFloat(actual)
		b, okB := toFloat(cond.Value)
		return okA && okB && a > b
	case model.OpLess:
		a, okA := toFloat(actual)
		b, okB := toFloat(cond.Value)
		return okA && okB && a < b
	case model.OpContains:
		return contains(actual, cond.Value)
	case model.OpNotContain:
		return !contains(actual, cond.Value)
	case model.OpEmpty:
		return isEmpty(actual)
	case model.OpNotEmpty:
		return !isEmpty(actual)
	default:
		return false
	}
}

// All reports whether every condition holds. An empty list holds.
func All(conds []model.Condition, doc map[string]any) bool {
	for _, c := range conds {
		if !Evaluate(c, doc) {
			return false
		}
	}
	return true
}

// Lookup resolves a dot-separated path within nested maps.
func Lookup(data map[string]any, path string) any {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		switch m := current.(type) {
		case map[string]any:
			current = m[part]
		case model.Document:
			current = m[part]
		default:
			return nil
		}
	}
	return current
}

// equal compares both sides as text.
func equal(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	return text(actual) == text(expected)
}

// text renders v for string comparison. Floats use the shortest decimal form
// so a JSON 25000 reads as "25000".
func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func contains(actual, expected any) bool {
	switch v := actual.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(v, text(expected))
	case []any:
		for _, item := range v {
			if equal(item, expected) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if item == text(expected) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(text(v), text(expected))
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x) == ""
	case bool:
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
