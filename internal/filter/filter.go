// Package filter implements the property-filter DSL (C3): parsing a small
// JSON filter grammar, validating it against a tenant's indexed-property
// schema, and exposing the validated AST for compilation to a vector
// store's native filter expression (internal/vectorstore does that
// translation — this package stays backend-agnostic).
package filter

import "fmt"

// PropertyType is one of the five declared indexed-property types.
type PropertyType string

const (
	TypeBool        PropertyType = "bool"
	TypeNumber      PropertyType = "number"
	TypeString      PropertyType = "string"
	TypeStringArray PropertyType = "string-array"
	TypeDate        PropertyType = "date"
)

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "$eq"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
)

// legalOps maps each property type to the operators it supports, per spec.md §4.3.
var legalOps = map[PropertyType]map[Op]bool{
	TypeBool:        {OpEq: true},
	TypeNumber:      {OpEq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpIn: true},
	TypeString:      {OpEq: true, OpIn: true},
	TypeStringArray: {OpIn: true},
	TypeDate:        {OpEq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true},
}

// Schema is a tenant's ordered indexed-property mapping. publication_date is
// always present implicitly (internal/store seeds it on tenant creation).
type Schema struct {
	order []string
	types map[string]PropertyType
}

// NewSchema builds a Schema from an ordered list of (id, type) pairs.
func NewSchema(entries []Entry) Schema {
	s := Schema{types: make(map[string]PropertyType, len(entries))}
	for _, e := range entries {
		if _, exists := s.types[e.ID]; exists {
			continue
		}
		s.order = append(s.order, e.ID)
		s.types[e.ID] = e.Type
	}
	return s
}

// Entry is one (property_id, type) pair.
type Entry struct {
	ID   string
	Type PropertyType
}

// Has reports whether prop is declared in the schema.
func (s Schema) Has(prop string) bool {
	_, ok := s.types[prop]
	return ok
}

// TypeOf returns the declared type of prop and whether it exists.
func (s Schema) TypeOf(prop string) (PropertyType, bool) {
	t, ok := s.types[prop]
	return t, ok
}

// Len returns the number of declared properties.
func (s Schema) Len() int { return len(s.order) }

// Entries returns the schema's (id, type) pairs in declaration order.
func (s Schema) Entries() []Entry {
	out := make([]Entry, len(s.order))
	for i, id := range s.order {
		out[i] = Entry{ID: id, Type: s.types[id]}
	}
	return out
}

// Extend appends new entries, rejecting any id already present. Returns the
// extended schema; callers enforce the configured max-entries limit.
func (s Schema) Extend(entries []Entry) (Schema, error) {
	out := NewSchema(s.Entries())
	for _, e := range entries {
		if out.Has(e.ID) {
			return Schema{}, fmt.Errorf("filter: property %q already in schema", e.ID)
		}
		out.order = append(out.order, e.ID)
		out.types[e.ID] = e.Type
	}
	return out, nil
}

// InvalidFilter reports a malformed filter expression.
type InvalidFilter struct {
	Reason string
}

func (e *InvalidFilter) Error() string { return fmt.Sprintf("invalid filter: %s", e.Reason) }

// Filter is the validated AST. Exactly one of Compare, And, Or is set.
type Filter struct {
	Compare *CompareNode
	And     []Filter
	Or      []Filter
}

// CompareNode is a single `{prop: {op: literal}}` leaf.
type CompareNode struct {
	PropID  string
	Op      Op
	Literal any // scalar for all ops except $in, where it's []any
}

// IsZero reports whether f is the empty filter (matches everything).
func (f Filter) IsZero() bool {
	return f.Compare == nil && f.And == nil && f.Or == nil
}
