package rerank

import (
	"testing"
	"time"

	"centroid/internal/coi"
	"centroid/internal/embedding"
)

func unit(dim, hot int) embedding.Vector {
	v := make(embedding.Vector, dim)
	v[hot] = 1
	return v
}

func TestRerank_NoSignalLeavesOrderUnchanged(t *testing.T) {
	candidates := []Candidate{
		{SnippetID: "b", RawScore: 0.1},
		{SnippetID: "a", RawScore: 0.9},
	}
	out := Rerank(candidates, nil, coi.Config{}, nil, Weights{Interest: 1, Tag: 1, Search: 1}, time.Now())
	if out[0].SnippetID != "b" || out[1].SnippetID != "a" {
		t.Fatalf("expected unchanged order, got %+v", out)
	}
}

func TestRerank_InterestSignalReordersTowardsMatchingCoI(t *testing.T) {
	now := time.Unix(10000, 0)
	cfg := coi.Config{Horizon: time.Hour}
	cois := []coi.CoI{{ID: "c1", Point: unit(4, 0), Stats: coi.Stats{ViewCount: 1, LastView: now}}}
	candidates := []Candidate{
		{SnippetID: "matches", RawScore: 0.1, Embedding: unit(4, 0)},
		{SnippetID: "orthogonal", RawScore: 0.1, Embedding: unit(4, 1)},
	}
	out := Rerank(candidates, cois, cfg, nil, Weights{Interest: 1, Tag: 0, Search: 0}, now)
	if out[0].SnippetID != "matches" {
		t.Fatalf("expected CoI-matching candidate to rank first, got %+v", out)
	}
}

func TestRerank_TagWeightContributesSignal(t *testing.T) {
	candidates := []Candidate{
		{SnippetID: "tagged", RawScore: 0.1, Tags: []string{"go"}},
		{SnippetID: "untagged", RawScore: 0.1},
	}
	tagWeights := map[string]int{"go": 5}
	out := Rerank(candidates, nil, coi.Config{}, tagWeights, Weights{Interest: 0, Tag: 1, Search: 0}, time.Now())
	if out[0].SnippetID != "tagged" {
		t.Fatalf("expected tagged candidate to rank first, got %+v", out)
	}
}

func TestRerank_TieBreaksBySnippetIDDescending(t *testing.T) {
	// 'a' ranks first on tags and 'b' first on search, so with equal weights
	// both fuse to 1/61 + 1/62 and only the snippet_id tie-break separates them.
	candidates := []Candidate{
		{SnippetID: "a", RawScore: 0.1, Tags: []string{"x"}},
		{SnippetID: "b", RawScore: 0.9, Tags: []string{"y"}},
	}
	tagWeights := map[string]int{"x": 2, "y": 1}
	out := Rerank(candidates, nil, coi.Config{}, tagWeights, Weights{Interest: 0, Tag: 1, Search: 1}, time.Now())
	if out[0].SnippetID != "b" {
		t.Fatalf("expected tie-break to prefer 'b' (descending), got %+v", out)
	}
}

func TestRerankScored_ScoresAreMonotoneWithOrder(t *testing.T) {
	candidates := []Candidate{
		{SnippetID: "low", RawScore: 0.1, Tags: []string{"go"}},
		{SnippetID: "high", RawScore: 0.9, Tags: []string{"go"}},
	}
	tagWeights := map[string]int{"go": 1}
	out, scores := RerankScored(candidates, nil, coi.Config{}, tagWeights, Weights{Interest: 0, Tag: 1, Search: 1}, time.Now())
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if scores[out[i-1].SnippetID] < scores[out[i].SnippetID] {
			t.Fatalf("expected non-increasing fused scores in output order, got %+v over %+v", scores, out)
		}
	}
}

func TestRerankScored_NoSignalReturnsRawScoresAsFused(t *testing.T) {
	candidates := []Candidate{
		{SnippetID: "a", RawScore: 0.3},
		{SnippetID: "b", RawScore: 0.7},
	}
	out, scores := RerankScored(candidates, nil, coi.Config{}, nil, Weights{Interest: 1, Tag: 1, Search: 1}, time.Now())
	if out[0].SnippetID != "a" || out[1].SnippetID != "b" {
		t.Fatalf("expected unchanged order with no signal, got %+v", out)
	}
	if scores["a"] != 0.3 || scores["b"] != 0.7 {
		t.Fatalf("expected fused map to fall back to raw scores, got %+v", scores)
	}
}
