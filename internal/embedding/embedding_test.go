package embedding

import (
	"context"
	"math"
	"testing"
)

func TestLocalBackend_UnitLength(t *testing.T) {
	b := NewLocal("test", 32, 7)
	vecs, err := b.Embed(context.Background(), Content, []string{"hello world", ""})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	var sumSq float64
	for _, x := range vecs[0] {
		sumSq += float64(x) * float64(x)
	}
	if math.Abs(sumSq-1) > 1e-6 {
		t.Fatalf("expected unit length, got norm^2=%v", sumSq)
	}
}

func TestLocalBackend_QueryContentDiffer(t *testing.T) {
	b := NewLocal("test", 32, 0)
	q, _ := b.Embed(context.Background(), Query, []string{"golang"})
	c, _ := b.Embed(context.Background(), Content, []string{"golang"})
	if Dot(q[0], c[0]) > 0.999 {
		t.Fatalf("expected query/content embeddings of the same text to differ")
	}
}

func TestNormalize_RejectsZeroVector(t *testing.T) {
	_, err := Normalize("test", make([]float32, 8))
	if err == nil {
		t.Fatal("expected InvalidEmbedding for zero vector")
	}
	var ie *InvalidEmbedding
	if _, ok := err.(*InvalidEmbedding); !ok {
		t.Fatalf("expected *InvalidEmbedding, got %T", err)
	}
	_ = ie
}

func TestNormalize_RejectsNonFinite(t *testing.T) {
	_, err := Normalize("test", []float32{float32(math.NaN()), 1})
	if err == nil {
		t.Fatal("expected error for NaN component")
	}
}

func TestRegistry_DefaultAndNamed(t *testing.T) {
	r, err := NewRegistry(map[string]Backend{
		"a": NewLocal("a", 16, 1),
		"b": NewLocal("b", 16, 2),
	}, "a")
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := r.Backend(""); err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, err := r.Backend("b"); err != nil {
		t.Fatalf("named backend: %v", err)
	}
	if _, err := r.Backend("missing"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewRegistry_UnknownDefault(t *testing.T) {
	_, err := NewRegistry(map[string]Backend{"a": NewLocal("a", 8, 0)}, "b")
	if err == nil {
		t.Fatal("expected error when default backend is not configured")
	}
}
