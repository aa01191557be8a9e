package retrieve

import (
	"context"
	"errors"
	"testing"

	"centroid/internal/embedding"
	"centroid/internal/filter"
)

type fakeVector struct {
	hits []Hit
	err  error
}

func (f *fakeVector) Search(context.Context, embedding.Vector, int, int, filter.Filter, map[string]bool) ([]Hit, error) {
	return f.hits, f.err
}

type fakeLexical struct {
	hits []Hit
	err  error
}

func (f *fakeLexical) Search(context.Context, string, int, filter.Filter, map[string]bool) ([]Hit, error) {
	return f.hits, f.err
}

func TestKnn_ReturnsHits(t *testing.T) {
	vs := &fakeVector{hits: []Hit{{SnippetID: "s1", Score: 0.9}, {SnippetID: "s2", Score: 0.5}}}
	hits, err := Knn(context.Background(), vs, embedding.Vector{1, 0}, Params{Count: 2})
	if err != nil {
		t.Fatalf("knn: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
}

func TestKnn_BackendUnavailable(t *testing.T) {
	vs := &fakeVector{err: errors.New("connection refused")}
	_, err := Knn(context.Background(), vs, embedding.Vector{1, 0}, Params{Count: 2})
	var bu *BackendUnavailable
	if !errors.As(err, &bu) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

func TestHybrid_MergesBothStreams(t *testing.T) {
	vs := &fakeVector{hits: []Hit{{SnippetID: "a", Score: 0.9}, {SnippetID: "b", Score: 0.3}}}
	lex := &fakeLexical{hits: []Hit{{SnippetID: "b", Score: 5}, {SnippetID: "c", Score: 1}}}
	hits, warnings, err := Hybrid(context.Background(), vs, lex, embedding.Vector{1}, "query", Params{Count: 3})
	if err != nil {
		t.Fatalf("hybrid: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if len(hits) != 3 {
		t.Fatalf("expected union of 3 ids, got %d: %v", len(hits), hits)
	}
	// "b" appears in both streams so should outrank "c" (lexical only) and
	// likely "a" (vector only, rank 1) depending on weights; at minimum it
	// must be present with a positive fused score.
	found := false
	for _, h := range hits {
		if h.SnippetID == "b" && h.Score > 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected snippet 'b' fused with positive score, got %v", hits)
	}
}

func TestHybrid_DegradesToKnnOnLexicalFailure(t *testing.T) {
	vs := &fakeVector{hits: []Hit{{SnippetID: "a", Score: 0.9}}}
	lex := &fakeLexical{err: errors.New("fts index down")}
	hits, warnings, err := Hybrid(context.Background(), vs, lex, embedding.Vector{1}, "query", Params{Count: 1})
	if err != nil {
		t.Fatalf("expected no hard failure, got %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	if len(hits) != 1 || hits[0].SnippetID != "a" {
		t.Fatalf("expected knn-only fallback, got %v", hits)
	}
}

func TestHybridDev_MergesWithCustomFunctions(t *testing.T) {
	vs := &fakeVector{hits: []Hit{{SnippetID: "a", Score: 0.9}, {SnippetID: "b", Score: 0.3}}}
	lex := &fakeLexical{hits: []Hit{{SnippetID: "b", Score: 5}, {SnippetID: "c", Score: 1}}}
	params := HybridDevParams{
		Params:           Params{Count: 3},
		NormalizeVector:  Identity,
		NormalizeLexical: MinMaxNormalize,
		Merge:            Sum,
	}
	hits, warnings, err := HybridDev(context.Background(), vs, lex, embedding.Vector{1}, "query", params)
	if err != nil {
		t.Fatalf("hybriddev: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if len(hits) != 3 {
		t.Fatalf("expected union of 3 ids, got %d: %v", len(hits), hits)
	}
	for _, h := range hits {
		if h.SnippetID == "b" && h.Score <= 0 {
			t.Fatalf("expected 'b' fused with positive score, got %v", hits)
		}
	}
}

func TestHybridDev_DegradesToWarningOnLexicalFailure(t *testing.T) {
	vs := &fakeVector{hits: []Hit{{SnippetID: "a", Score: 0.9}}}
	lex := &fakeLexical{err: errors.New("fts index down")}
	params := HybridDevParams{Params: Params{Count: 1}, Merge: RRF(60)}
	hits, warnings, err := HybridDev(context.Background(), vs, lex, embedding.Vector{1}, "query", params)
	if err != nil {
		t.Fatalf("expected no hard failure, got %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	if len(hits) != 1 || hits[0].SnippetID != "a" {
		t.Fatalf("expected knn-only fallback, got %v", hits)
	}
}

func TestRRFFuseMaps_AbsentContributesZero(t *testing.T) {
	a := map[string]float64{"x": 1.0}
	b := map[string]float64{}
	fused := RRFFuseMaps([]map[string]float64{a, b}, []float64{1, 1}, 60)
	if fused["x"] != 1.0/61.0 {
		t.Fatalf("expected 1/61, got %v", fused["x"])
	}
}

func TestMinMaxNormalize(t *testing.T) {
	out := MinMaxNormalize(map[string]float64{"a": 0, "b": 5, "c": 10})
	if out["a"] != 0 || out["c"] != 1 || out["b"] != 0.5 {
		t.Fatalf("unexpected normalization: %v", out)
	}
}

func TestNormalizeIfMaxGT1(t *testing.T) {
	bounded := NormalizeIfMaxGT1(map[string]float64{"a": 0.2, "b": 0.8})
	if bounded["a"] != 0.2 {
		t.Fatalf("expected identity when max<=1, got %v", bounded)
	}
	unbounded := NormalizeIfMaxGT1(map[string]float64{"a": 2, "b": 8})
	if unbounded["a"] != 0 || unbounded["b"] != 1 {
		t.Fatalf("expected min-max normalization when max>1, got %v", unbounded)
	}
}

func TestAverageDuplicatesOnly(t *testing.T) {
	out := AverageDuplicatesOnly(map[string]float64{"x": 1, "y": 2}, map[string]float64{"x": 3}, 1, 1)
	if out["x"] != 2 {
		t.Fatalf("expected average of duplicate, got %v", out["x"])
	}
	if out["y"] != 2 {
		t.Fatalf("expected raw score for non-duplicate, got %v", out["y"])
	}
}
