package rule

import (
	"github.com/shopspring/decimal"
)

// matches evaluates a rule's applicability predicate against the named
// context fields: conditions within a group AND together, groups OR. A
// rule with no groups always matches.
func matches(groups []ConditionGroup, fields map[string]string) bool {
	if len(groups) == 0 {
		return true
	}

	for _, g := range groups {
		if groupMatches(g, fields) {
			return true
		}
	}

	return false
}

func groupMatches(g ConditionGroup, fields map[string]string) bool {
	for _, c := range g.Conditions {
		if !conditionMatches(c, fields) {
			return false
		}
	}

	return true
}

func conditionMatches(c Condition, fields map[string]string) bool {
	got, ok := fields[c.Field]
	if !ok {
		return false
	}

	switch c.Op {
	case OpEq:
		return compare(got, c.Value) == 0
	case OpNe:
		return compare(got, c.Value) != 0
	case OpGt:
		return compare(got, c.Value) > 0
	case OpGte:
		return compare(got, c.Value) >= 0
	case OpLt:
		return compare(got, c.Value) < 0
	case OpLte:
		return compare(got, c.Value) <= 0
	case OpIn:
		for _, v := range c.Values {
			if compare(got, v) == 0 {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// compare orders two field values numerically when both parse as
// decimals, lexically otherwise.
func compare(a, b string) int {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)

	if errA == nil && errB == nil {
		return da.Cmp(db)
	}

	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
