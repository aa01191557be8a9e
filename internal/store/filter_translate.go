package store

import (
	"fmt"
	"strings"
	"time"

	"centroid/internal/filter"
)

// compileFilter translates a validated internal/filter.Filter into a
// parameterized SQL boolean expression over the documents table's
// properties JSONB column, mirroring internal/vectorstore/filter_translate.go's
// structure for the Postgres dialect (this is the lexical-search side's
// equivalent of that Qdrant translator). schema resolves each compared
// property's declared type — needed here, unlike the Qdrant translator,
// because JSONB scalar vs array storage takes different operators ($in
// against a string property is an equality-in-list; $in against a
// string-array property is an overlap test).
//
// Both the property id and every literal are passed as query parameters
// (JSONB's ->>/-> operators take their key as an ordinary text argument,
// not an identifier), so no part of a filter is ever interpolated into the
// SQL text.
func compileFilter(f filter.Filter, schema filter.Schema, args *[]any) (string, error) {
	switch {
	case f.Compare != nil:
		return compileCompareSQL(f.Compare, schema, args)
	case f.And != nil:
		if len(f.And) == 0 {
			return "TRUE", nil // matches everything
		}
		parts := make([]string, 0, len(f.And))
		for _, sub := range f.And {
			p, err := compileFilter(sub, schema, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+p+")")
		}
		return strings.Join(parts, " AND "), nil
	case f.Or != nil:
		if len(f.Or) == 0 {
			return "FALSE", nil // $or: [] matches nothing, per spec.md §4.3
		}
		parts := make([]string, 0, len(f.Or))
		for _, sub := range f.Or {
			p, err := compileFilter(sub, schema, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+p+")")
		}
		return strings.Join(parts, " OR "), nil
	default:
		return "TRUE", nil
	}
}

func compileCompareSQL(c *filter.CompareNode, schema filter.Schema, args *[]any) (string, error) {
	t, ok := schema.TypeOf(c.PropID)
	if !ok {
		// Not a declared property: nothing was indexed for it, so it can
		// never satisfy a filter (documents may carry arbitrary unindexed
		// properties per spec.md §4.9, but only declared ones are queryable).
		return "FALSE", nil
	}

	keyParam := nextParam(args, c.PropID)

	switch c.Op {
	case filter.OpEq:
		return compileEq(t, keyParam, c.Literal, args)
	case filter.OpIn:
		return compileIn(t, keyParam, c.Literal, args)
	case filter.OpGt:
		return compileRange(t, keyParam, c.Literal, args, ">")
	case filter.OpGte:
		return compileRange(t, keyParam, c.Literal, args, ">=")
	case filter.OpLt:
		return compileRange(t, keyParam, c.Literal, args, "<")
	case filter.OpLte:
		return compileRange(t, keyParam, c.Literal, args, "<=")
	default:
		return "", &filter.InvalidFilter{Reason: fmt.Sprintf("unsupported operator %q", c.Op)}
	}
}

func compileEq(t filter.PropertyType, keyParam string, lit any, args *[]any) (string, error) {
	switch t {
	case filter.TypeBool:
		v, ok := lit.(bool)
		if !ok {
			return "", badLiteral(t, lit)
		}
		return fmt.Sprintf("(d.properties ->> %s)::boolean = %s", keyParam, nextParam(args, v)), nil
	case filter.TypeNumber:
		v, ok := lit.(float64)
		if !ok {
			return "", badLiteral(t, lit)
		}
		return fmt.Sprintf("(d.properties ->> %s)::numeric = %s", keyParam, nextParam(args, v)), nil
	case filter.TypeString:
		v, ok := lit.(string)
		if !ok {
			return "", badLiteral(t, lit)
		}
		return fmt.Sprintf("d.properties ->> %s = %s", keyParam, nextParam(args, v)), nil
	case filter.TypeDate:
		ts, err := parseDateLiteral(lit)
		if err != nil {
			return "", badLiteral(t, lit)
		}
		return fmt.Sprintf("(d.properties ->> %s)::timestamptz = %s", keyParam, nextParam(args, ts)), nil
	default:
		return "", badLiteral(t, lit)
	}
}

func compileIn(t filter.PropertyType, keyParam string, lit any, args *[]any) (string, error) {
	arr, ok := lit.([]any)
	if !ok {
		return "", badLiteral(t, lit)
	}
	switch t {
	case filter.TypeNumber:
		vals := make([]float64, 0, len(arr))
		for _, e := range arr {
			v, ok := e.(float64)
			if !ok {
				return "", badLiteral(t, lit)
			}
			vals = append(vals, v)
		}
		return fmt.Sprintf("(d.properties ->> %s)::numeric = ANY(%s::numeric[])", keyParam, nextParam(args, vals)), nil
	case filter.TypeString:
		vals := make([]string, 0, len(arr))
		for _, e := range arr {
			v, ok := e.(string)
			if !ok {
				return "", badLiteral(t, lit)
			}
			vals = append(vals, v)
		}
		return fmt.Sprintf("d.properties ->> %s = ANY(%s::text[])", keyParam, nextParam(args, vals)), nil
	case filter.TypeStringArray:
		vals := make([]string, 0, len(arr))
		for _, e := range arr {
			v, ok := e.(string)
			if !ok {
				return "", badLiteral(t, lit)
			}
			vals = append(vals, v)
		}
		// ?| reports whether any of the given strings appear as elements of
		// the JSON array stored at this key — an overlap test, matching the
		// Qdrant translator's MatchAny semantics for a list-valued field.
		return fmt.Sprintf("d.properties -> %s ?| %s::text[]", keyParam, nextParam(args, vals)), nil
	default:
		return "", badLiteral(t, lit)
	}
}

func compileRange(t filter.PropertyType, keyParam string, lit any, args *[]any, op string) (string, error) {
	switch t {
	case filter.TypeNumber:
		v, ok := lit.(float64)
		if !ok {
			return "", badLiteral(t, lit)
		}
		return fmt.Sprintf("(d.properties ->> %s)::numeric %s %s", keyParam, op, nextParam(args, v)), nil
	case filter.TypeDate:
		ts, err := parseDateLiteral(lit)
		if err != nil {
			return "", badLiteral(t, lit)
		}
		return fmt.Sprintf("(d.properties ->> %s)::timestamptz %s %s", keyParam, op, nextParam(args, ts)), nil
	default:
		return "", badLiteral(t, lit)
	}
}

func parseDateLiteral(lit any) (time.Time, error) {
	if ts, ok := lit.(time.Time); ok {
		return ts, nil // filter.Parse has already coerced the RFC3339 string
	}
	s, ok := lit.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("date literal must be a string")
	}
	return time.Parse(time.RFC3339, s)
}

func badLiteral(t filter.PropertyType, lit any) error {
	return &filter.InvalidFilter{Reason: fmt.Sprintf("literal %v incompatible with property type %q", lit, t)}
}

// nextParam appends v to args and returns its positional placeholder.
func nextParam(args *[]any, v any) string {
	*args = append(*args, v)
	return fmt.Sprintf("$%d", len(*args))
}
