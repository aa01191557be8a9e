package filter

import (
	"time"
)

// Eval evaluates a validated Filter against a property getter in memory; the
// package's tests use it. get returns a property's value and whether it is present;
// missing properties never match a Compare node.
func Eval(f Filter, get func(propID string) (any, bool)) bool {
	switch {
	case f.Compare != nil:
		return evalCompare(*f.Compare, get)
	case f.And != nil:
		for _, clause := range f.And {
			if !Eval(clause, get) {
				return false
			}
		}
		return true // $and: [] matches everything
	case f.Or != nil:
		for _, clause := range f.Or {
			if Eval(clause, get) {
				return true
			}
		}
		return false // $or: [] matches nothing
	default:
		return true // zero filter matches everything
	}
}

func evalCompare(c CompareNode, get func(string) (any, bool)) bool {
	actual, ok := get(c.PropID)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return equal(actual, c.Literal)
	case OpIn:
		lits, _ := c.Literal.([]any)
		if arr, ok := actual.([]string); ok {
			// string-array: non-empty intersection semantics
			for _, a := range arr {
				for _, l := range lits {
					if equal(a, l) {
						return true
					}
				}
			}
			return false
		}
		for _, l := range lits {
			if equal(actual, l) {
				return true
			}
		}
		return false
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := compare(actual, c.Literal)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	default:
		return false
	}
}

func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok2 := toFloat(b); ok2 {
			return af == bf
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok2 := b.(time.Time); ok2 {
			return at.Equal(bt)
		}
	}
	return a == b
}

// compare returns -1/0/1 for a</=/> b, and false if not comparable.
func compare(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bf, ok2 := toFloat(b); ok2 {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok2 := b.(time.Time); ok2 {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
