package filter

import (
	"testing"
	"time"
)

func testSchema() Schema {
	return NewSchema([]Entry{
		{ID: "publication_date", Type: TypeDate},
		{ID: "featured", Type: TypeBool},
		{ID: "views", Type: TypeNumber},
		{ID: "category", Type: TypeString},
		{ID: "tags", Type: TypeStringArray},
	})
}

func TestParse_SimpleCompare(t *testing.T) {
	f, err := Parse(map[string]any{"views": map[string]any{"$gte": float64(10)}}, testSchema())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Compare == nil || f.Compare.PropID != "views" || f.Compare.Op != OpGte {
		t.Fatalf("unexpected filter: %+v", f)
	}
}

func TestParse_UnknownProperty(t *testing.T) {
	_, err := Parse(map[string]any{"unknown": map[string]any{"$eq": "x"}}, testSchema())
	if err == nil {
		t.Fatal("expected error for unknown property")
	}
}

func TestParse_IllegalOperatorForType(t *testing.T) {
	_, err := Parse(map[string]any{"featured": map[string]any{"$gt": true}}, testSchema())
	if err == nil {
		t.Fatal("expected error: bool only supports $eq")
	}
}

func TestParse_TypeMismatch(t *testing.T) {
	_, err := Parse(map[string]any{"views": map[string]any{"$eq": "not-a-number"}}, testSchema())
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestParse_StringArrayRequiresIn(t *testing.T) {
	_, err := Parse(map[string]any{"tags": map[string]any{"$eq": "go"}}, testSchema())
	if err == nil {
		t.Fatal("expected error: string-array only supports $in")
	}
	f, err := Parse(map[string]any{"tags": map[string]any{"$in": []any{"go", "rust"}}}, testSchema())
	if err != nil {
		t.Fatalf("parse $in: %v", err)
	}
	if f.Compare.Op != OpIn {
		t.Fatalf("expected $in op, got %v", f.Compare.Op)
	}
}

func TestParse_DateRFC3339(t *testing.T) {
	f, err := Parse(map[string]any{"publication_date": map[string]any{"$gte": "2022-01-01T00:00:00Z"}}, testSchema())
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	ts, ok := f.Compare.Literal.(time.Time)
	if !ok || ts.Year() != 2022 {
		t.Fatalf("expected parsed RFC3339 time, got %v", f.Compare.Literal)
	}
}

func TestParse_AndOr(t *testing.T) {
	raw := map[string]any{
		"$and": []any{
			map[string]any{"featured": map[string]any{"$eq": true}},
			map[string]any{"views": map[string]any{"$gt": float64(5)}},
		},
	}
	f, err := Parse(raw, testSchema())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.And) != 2 {
		t.Fatalf("expected 2 and-clauses, got %d", len(f.And))
	}
}

func TestParse_EmptyAndMatchesEverything(t *testing.T) {
	f, err := Parse(map[string]any{"$and": []any{}}, testSchema())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !Eval(f, func(string) (any, bool) { return nil, false }) {
		t.Fatal("expected $and: [] to match everything")
	}
}

func TestParse_EmptyOrMatchesNothing(t *testing.T) {
	f, err := Parse(map[string]any{"$or": []any{}}, testSchema())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if Eval(f, func(string) (any, bool) { return nil, false }) {
		t.Fatal("expected $or: [] to match nothing")
	}
}

func TestEval_CompareAgainstValues(t *testing.T) {
	schema := testSchema()
	f, _ := Parse(map[string]any{"views": map[string]any{"$gte": float64(10)}}, schema)
	props := map[string]any{"views": float64(12)}
	if !Eval(f, func(id string) (any, bool) { v, ok := props[id]; return v, ok }) {
		t.Fatal("expected match: 12 >= 10")
	}
	props["views"] = float64(3)
	if Eval(f, func(id string) (any, bool) { v, ok := props[id]; return v, ok }) {
		t.Fatal("expected no match: 3 >= 10 is false")
	}
}

func TestSchema_ExtendRejectsDuplicate(t *testing.T) {
	s := testSchema()
	if _, err := s.Extend([]Entry{{ID: "views", Type: TypeNumber}}); err == nil {
		t.Fatal("expected error for duplicate property id")
	}
	extended, err := s.Extend([]Entry{{ID: "author", Type: TypeString}})
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if !extended.Has("author") || !extended.Has("views") {
		t.Fatal("expected extended schema to retain old and add new entries")
	}
}
