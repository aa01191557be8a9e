package vectorstore

import (
	"time"

	"github.com/qdrant/go-client/qdrant"

	"centroid/internal/filter"
)

// translateFilter compiles a validated internal/filter.Filter into Qdrant's
// native filter expression — the one place in the system that knows the
// vector store's query dialect (filter.Filter itself stays backend-agnostic
// per its package doc).
func translateFilter(f filter.Filter, excluded map[string]bool) *qdrant.Filter {
	must := compileNode(f)
	out := &qdrant.Filter{}
	if must != nil {
		out.Must = []*qdrant.Condition{must}
	}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for id := range excluded {
			ids = append(ids, id)
		}
		out.MustNot = append(out.MustNot, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "snippet_id",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: ids}}},
				},
			},
		})
	}
	if out.Must == nil && out.MustNot == nil {
		return nil
	}
	return out
}

func compileNode(f filter.Filter) *qdrant.Condition {
	switch {
	case f.Compare != nil:
		return compileCompare(f.Compare)
	case f.And != nil:
		if len(f.And) == 0 {
			return nil // matches everything
		}
		conds := make([]*qdrant.Condition, 0, len(f.And))
		for _, sub := range f.And {
			if c := compileNode(sub); c != nil {
				conds = append(conds, c)
			}
		}
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{Must: conds},
			},
		}
	case f.Or != nil:
		if len(f.Or) == 0 {
			return neverMatch()
		}
		conds := make([]*qdrant.Condition, 0, len(f.Or))
		for _, sub := range f.Or {
			if c := compileNode(sub); c != nil {
				conds = append(conds, c)
			}
		}
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{Should: conds},
			},
		}
	default:
		return nil
	}
}

// neverMatch compiles `$or: []` ("matches nothing", per spec.md §4.3) into
// an always-false Qdrant condition: "point id is in the empty set" never
// holds, the standard Qdrant idiom for an unsatisfiable filter.
func neverMatch() *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_HasId{
			HasId: &qdrant.HasIdCondition{HasId: []*qdrant.PointId{}},
		},
	}
}

func compileCompare(c *filter.CompareNode) *qdrant.Condition {
	key := "properties." + c.PropID

	switch c.Op {
	case filter.OpEq:
		return compileEq(key, c.Literal)
	case filter.OpIn:
		return compileIn(key, c.Literal)
	case filter.OpGt:
		return fieldCondition(key, nil, rangeOp(c.Literal, rangeGt))
	case filter.OpGte:
		return fieldCondition(key, nil, rangeOp(c.Literal, rangeGte))
	case filter.OpLt:
		return fieldCondition(key, nil, rangeOp(c.Literal, rangeLt))
	case filter.OpLte:
		return fieldCondition(key, nil, rangeOp(c.Literal, rangeLte))
	default:
		return nil
	}
}

func fieldCondition(key string, m *qdrant.Match, r *qdrant.Range) *qdrant.Condition {
	if m == nil && r == nil {
		return nil
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{Field: &qdrant.FieldCondition{Key: key, Match: m, Range: r}},
	}
}

// compileEq handles $eq. Qdrant's Match has no exact-float variant (only
// Integer, which would truncate a fractional number literal), so a number
// equality compiles to a single-point Range (Gte == Lte) instead of a Match
// — the standard Qdrant idiom for exact numeric equality.
func compileEq(key string, lit any) *qdrant.Condition {
	if f, ok := lit.(float64); ok {
		return fieldCondition(key, nil, exactRange(f))
	}
	return fieldCondition(key, matchValue(lit), nil)
}

// compileIn handles $in. A string (or string-array) literal compiles to a
// Match_Keywords set lookup; a number literal has no equivalent numeric set
// match in Qdrant's Match message, so it compiles to an OR (Should) of
// per-value exact-equality Ranges instead, keeping fractional literals exact.
func compileIn(key string, lit any) *qdrant.Condition {
	arr, ok := lit.([]any)
	if !ok || len(arr) == 0 {
		return neverMatch()
	}
	if _, numeric := arr[0].(float64); numeric {
		conds := make([]*qdrant.Condition, 0, len(arr))
		for _, v := range arr {
			f, ok := v.(float64)
			if !ok {
				continue
			}
			if c := fieldCondition(key, nil, exactRange(f)); c != nil {
				conds = append(conds, c)
			}
		}
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{Filter: &qdrant.Filter{Should: conds}},
		}
	}
	return fieldCondition(key, matchIn(arr), nil)
}

func exactRange(f float64) *qdrant.Range {
	return &qdrant.Range{Gte: &f, Lte: &f}
}

func matchValue(lit any) *qdrant.Match {
	switch v := lit.(type) {
	case bool:
		return &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	case string:
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case time.Time:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v.Unix()}}
	default:
		return nil
	}
}

// matchIn compiles a string (or string-array) $in literal into a keyword-set
// match; internal/filter's coercion guarantees every element is a string
// once a number literal has been routed to compileIn's Range-based path.
func matchIn(arr []any) *qdrant.Match {
	strs := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			strs = append(strs, s)
		}
	}
	return &qdrant.Match{MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: strs}}}
}

type rangeKind int

const (
	rangeGt rangeKind = iota
	rangeGte
	rangeLt
	rangeLte
)

func rangeOp(lit any, kind rangeKind) *qdrant.Range {
	var f float64
	switch v := lit.(type) {
	case float64:
		f = v
	case time.Time:
		f = float64(v.Unix())
	default:
		return nil
	}
	r := &qdrant.Range{}
	switch kind {
	case rangeGt:
		r.Gt = &f
	case rangeGte:
		r.Gte = &f
	case rangeLt:
		r.Lt = &f
	case rangeLte:
		r.Lte = &f
	}
	return r
}
