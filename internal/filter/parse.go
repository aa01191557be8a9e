package filter

import (
	"fmt"
	"time"
)

// Parse parses a raw JSON-decoded filter object (map[string]any, as produced
// by encoding/json.Unmarshal into an any) into a Filter AST and validates it
// against schema. A nil or empty raw value is the zero Filter (matches
// everything).
func Parse(raw map[string]any, schema Schema) (Filter, error) {
	if len(raw) == 0 {
		return Filter{}, nil
	}
	if len(raw) > 1 {
		return Filter{}, &InvalidFilter{Reason: "filter object must have exactly one key (a property id or $and/$or)"}
	}
	for key, val := range raw {
		switch key {
		case "$and":
			clauses, err := parseCombine(val, schema)
			if err != nil {
				return Filter{}, err
			}
			return Filter{And: clauses}, nil
		case "$or":
			clauses, err := parseCombine(val, schema)
			if err != nil {
				return Filter{}, err
			}
			return Filter{Or: clauses}, nil
		default:
			cmp, err := parseCompare(key, val, schema)
			if err != nil {
				return Filter{}, err
			}
			return Filter{Compare: cmp}, nil
		}
	}
	return Filter{}, nil // unreachable
}

func parseCombine(val any, schema Schema) ([]Filter, error) {
	arr, ok := val.([]any)
	if !ok {
		return nil, &InvalidFilter{Reason: "$and/$or value must be an array"}
	}
	out := make([]Filter, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &InvalidFilter{Reason: "$and/$or entries must be filter objects"}
		}
		f, err := Parse(obj, schema)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseCompare(propID string, val any, schema Schema) (*CompareNode, error) {
	propType, ok := schema.TypeOf(propID)
	if !ok {
		return nil, &InvalidFilter{Reason: fmt.Sprintf("property %q is not in the indexed-property schema", propID)}
	}
	opMap, ok := val.(map[string]any)
	if !ok || len(opMap) != 1 {
		return nil, &InvalidFilter{Reason: fmt.Sprintf("property %q comparison must be a single-key {op: literal} object", propID)}
	}
	for rawOp, lit := range opMap {
		op := Op(rawOp)
		legal, knownOp := legalOps[propType][op]
		if _, exists := legalOps[propType]; !exists || !knownOp || !legal {
			return nil, &InvalidFilter{Reason: fmt.Sprintf("operator %q is not legal for property %q of type %s", rawOp, propID, propType)}
		}
		literal, err := coerceLiteral(propType, op, lit)
		if err != nil {
			return nil, err
		}
		return &CompareNode{PropID: propID, Op: op, Literal: literal}, nil
	}
	return nil, &InvalidFilter{Reason: "empty comparison object"}
}

func coerceLiteral(t PropertyType, op Op, lit any) (any, error) {
	if op == OpIn {
		arr, ok := lit.([]any)
		if !ok {
			return nil, &InvalidFilter{Reason: "$in requires an array literal"}
		}
		elemType := t
		if t == TypeStringArray {
			elemType = TypeString
		}
		out := make([]any, 0, len(arr))
		for _, e := range arr {
			v, err := coerceScalar(elemType, e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return coerceScalar(t, lit)
}

func coerceScalar(t PropertyType, v any) (any, error) {
	switch t {
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return b, nil
	case TypeNumber:
		f, ok := v.(float64)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return f, nil
	case TypeString, TypeStringArray:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return s, nil
	case TypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, &InvalidFilter{Reason: fmt.Sprintf("date literal %q is not RFC3339: %v", s, err)}
		}
		return ts, nil
	default:
		return nil, &InvalidFilter{Reason: fmt.Sprintf("unknown property type %q", t)}
	}
}

func typeMismatch(t PropertyType, v any) error {
	return &InvalidFilter{Reason: fmt.Sprintf("literal %v does not match expected type %s", v, t)}
}
