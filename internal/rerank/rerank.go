// Package rerank implements the rerank stage (C5): blending semantic
// (raw retrieval), interest (CoI), and tag-weight signals via weighted
// reciprocal-rank fusion into one final ranking.
package rerank

import (
	"sort"
	"time"

	"centroid/internal/coi"
	"centroid/internal/embedding"
	"centroid/internal/retrieve"
)

// Candidate is one document entering rerank, carrying everything the three
// signal streams need.
type Candidate struct {
	SnippetID string
	RawScore  float64
	Embedding embedding.Vector
	Tags      []string
}

// Weights is the (w_interest, w_tag, w_search) 3-tuple from spec.md §4.5.
// Need not sum to 1; negative weights are treated as 0.
type Weights struct {
	Interest float64
	Tag      float64
	Search   float64
}

// Rerank fuses the three signal streams and returns candidates sorted by
// fused score descending, ties broken by snippet_id descending. If cois and
// tagWeights are both empty (no interest or tag signal at all), the order
// is left unchanged per spec.md §4.5.
func Rerank(candidates []Candidate, cois []coi.CoI, coiCfg coi.Config, tagWeights map[string]int, weights Weights, now time.Time) []Candidate {
	out, _ := RerankScored(candidates, cois, coiCfg, tagWeights, weights, now)
	return out
}

// RerankScored is Rerank plus the fused score each returned candidate was
// sorted by, so a caller building a PersonalizedDocument response (spec.md
// §6, "ordered by the fused score") can surface it without recomputing RRF.
func RerankScored(candidates []Candidate, cois []coi.CoI, coiCfg coi.Config, tagWeights map[string]int, weights Weights, now time.Time) ([]Candidate, map[string]float64) {
	interestScores := interestScoreMap(candidates, cois, coiCfg, now)
	tagScores := tagScoreMap(candidates, tagWeights)
	searchScores := searchScoreMap(candidates)

	if len(interestScores) == 0 && len(tagScores) == 0 {
		return candidates, searchScores
	}

	w := clampWeights(weights)
	fused := retrieve.RRFFuseMaps(
		[]map[string]float64{interestScores, tagScores, searchScores},
		[]float64{w.Interest, w.Tag, w.Search},
		60,
	)

	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.Slice(out, func(i, j int) bool {
		si, sj := fused[out[i].SnippetID], fused[out[j].SnippetID]
		if si != sj {
			return si > sj
		}
		return out[i].SnippetID > out[j].SnippetID // descending, per spec.md §4.5
	})
	return out, fused
}

func clampWeights(w Weights) Weights {
	if w.Interest < 0 {
		w.Interest = 0
	}
	if w.Tag < 0 {
		w.Tag = 0
	}
	if w.Search < 0 {
		w.Search = 0
	}
	return w
}

func interestScoreMap(candidates []Candidate, cois []coi.CoI, cfg coi.Config, now time.Time) map[string]float64 {
	if len(cois) == 0 {
		return map[string]float64{}
	}
	docs := make(map[string]embedding.Vector, len(candidates))
	for _, c := range candidates {
		docs[c.SnippetID] = c.Embedding
	}
	return coi.Score(cfg, docs, cois, now)
}

func tagScoreMap(candidates []Candidate, tagWeights map[string]int) map[string]float64 {
	var total float64
	for _, w := range tagWeights {
		total += float64(w)
	}
	if total <= 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		var sum float64
		for _, tag := range c.Tags {
			sum += float64(tagWeights[tag])
		}
		out[c.SnippetID] = sum / total
	}
	return out
}

func searchScoreMap(candidates []Candidate) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		out[c.SnippetID] = c.RawScore
	}
	return out
}
