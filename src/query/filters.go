package query

import (
	"regexp"
	"strings"

	"github.com/forgeapps/localbase/src/models"
)

type filterOp int

const (
	opEq filterOp = iota
	opNeq
	opGt
	opGte
	opLt
	opLte
	opLike
	opIlike
	opIn
)

type predicate struct {
	op     filterOp
	column string
	value  any
	values []any
	regex  *regexp.Regexp
}

// matches evaluates one predicate against a row. Type mismatches fail
// closed: a filter over heterogeneous rows simply skips rows it cannot
// compare instead of erroring.
func (p predicate) matches(row models.Row) bool {
	actual, present := row[p.column]

	switch p.op {
	case opEq:
		return present && valuesEqual(actual, p.value)
	case opNeq:
		return present && !valuesEqual(actual, p.value)
	case opGt, opGte, opLt, opLte:
		if !present {
			return false
		}
		cmp, ok := compareValues(actual, p.value)
		if !ok {
			return false
		}
		switch p.op {
		case opGt:
			return cmp > 0
		case opGte:
			return cmp >= 0
		case opLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case opLike, opIlike:
		str, ok := actual.(string)
		if !ok || p.regex == nil {
			return false
		}
		return p.regex.MatchString(str)
	case opIn:
		if !present {
			return false
		}
		for _, candidate := range p.values {
			if valuesEqual(actual, candidate) {
				return true
			}
		}
		return false
	}
	return false
}

// valuesEqual compares two JSON-ish scalars. Numbers are unified through
// float64 so an int filter value matches a decoded float64 row value.
func valuesEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an == bn
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

// compareValues orders two values when they are mutually comparable:
// both numbers or both strings. The bool result is false otherwise.
func compareValues(a, b any) (int, bool) {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// compilePattern translates a SQL-ish LIKE pattern into an anchored regexp:
// % becomes .* and everything else matches literally.
func compilePattern(pattern string, caseInsensitive bool) *regexp.Regexp {
	var sb strings.Builder
	if caseInsensitive {
		sb.WriteString("(?i)")
	}
	sb.WriteString("^")
	for i, part := range strings.Split(pattern, "%") {
		if i > 0 {
			sb.WriteString(".*")
		}
		sb.WriteString(regexp.QuoteMeta(part))
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil
	}
	return re
}
