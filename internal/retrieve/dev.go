package retrieve

import (
	"context"

	"centroid/internal/embedding"
)

// HybridDev customizes Hybrid with two per-stream normalization functions
// and a merge function, exposed only when a tenant's enable_dev config flag
// is set (enforced by the caller — internal/service — not this package).

// NormalizeFn rescales a stream's raw score map before merge.
type NormalizeFn func(scores map[string]float64) map[string]float64

// Identity returns scores unchanged.
func Identity(scores map[string]float64) map[string]float64 { return scores }

// MinMaxNormalize rescales scores to [0, 1] over the returned page. A map
// with a single distinct value (or empty) is returned unchanged.
func MinMaxNormalize(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := minMax(scores)
	if max == min {
		return scores
	}
	out := make(map[string]float64, len(scores))
	for id, s := range scores {
		out[id] = (s - min) / (max - min)
	}
	return out
}

// NormalizeIfMaxGT1 applies MinMaxNormalize only when the raw max exceeds 1
// (e.g. BM25 scores are unbounded while cosine similarity is already in
// [-1, 1]); otherwise behaves as Identity.
func NormalizeIfMaxGT1(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}
	_, max := minMax(scores)
	if max > 1 {
		return MinMaxNormalize(scores)
	}
	return scores
}

func minMax(scores map[string]float64) (min, max float64) {
	first := true
	for _, s := range scores {
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}

// MergeFn combines two normalized streams (weighted by wA/wB) into one score map.
type MergeFn func(a, b map[string]float64, wA, wB float64) map[string]float64

// Sum computes a weighted linear combination; a stream missing an id
// contributes 0.
func Sum(a, b map[string]float64, wA, wB float64) map[string]float64 {
	out := make(map[string]float64, len(a)+len(b))
	for id, s := range a {
		out[id] += wA * s
	}
	for id, s := range b {
		out[id] += wB * s
	}
	return out
}

// AverageDuplicatesOnly takes the arithmetic mean of the two weighted scores
// for ids present in both streams; ids present in only one stream keep
// their raw (weighted) score.
func AverageDuplicatesOnly(a, b map[string]float64, wA, wB float64) map[string]float64 {
	out := make(map[string]float64, len(a)+len(b))
	for id, s := range a {
		if bs, ok := b[id]; ok {
			out[id] = (wA*s + wB*bs) / 2
		} else {
			out[id] = wA * s
		}
	}
	for id, s := range b {
		if _, ok := a[id]; !ok {
			out[id] = wB * s
		}
	}
	return out
}

// RRF builds a merge function that fuses the two streams via RRFFuseMaps
// with the given rank constant k, matching the merge-function enumeration
// in spec.md §4.4 (`rrf(k, knn_weight, bm25_weight)`).
func RRF(k int) MergeFn {
	return func(a, b map[string]float64, wA, wB float64) map[string]float64 {
		return RRFFuseMaps([]map[string]float64{a, b}, []float64{wA, wB}, k)
	}
}

// HybridDevParams configures a HybridDev retrieval call.
type HybridDevParams struct {
	Params
	NormalizeVector  NormalizeFn
	NormalizeLexical NormalizeFn
	Merge            MergeFn
}

// HybridDev runs the same concurrent kNN + BM25 fetch Hybrid does, then
// fuses the two streams via HybridDevMerge's caller-chosen normalization and
// merge functions instead of Hybrid's fixed RRF, per spec.md §4.4's dev-mode
// retrieval customization.
func HybridDev(ctx context.Context, vs VectorSearcher, lex LexicalSearcher, q embedding.Vector, queryText string, p HybridDevParams) ([]Hit, []Warning, error) {
	params := p.Params.withDefaults()
	knnHits, lexHits, warnings, err := fetchConcurrently(ctx, vs, lex, q, queryText, params)
	if err != nil {
		return nil, warnings, err
	}
	p.Params = params
	return HybridDevMerge(knnHits, lexHits, p), warnings, nil
}

// HybridDevMerge applies p's normalization functions to the raw knn/lexical
// hit lists and fuses them with p.Merge. Callers (internal/service) gate
// this path on the tenant's enable_dev flag.
func HybridDevMerge(knn, lex []Hit, p HybridDevParams) []Hit {
	normVec := p.NormalizeVector
	if normVec == nil {
		normVec = Identity
	}
	normLex := p.NormalizeLexical
	if normLex == nil {
		normLex = Identity
	}
	merge := p.Merge
	if merge == nil {
		merge = RRF(60)
	}

	vecScores := normVec(toScoreMap(knn))
	lexScores := normLex(toScoreMap(lex))
	wVec, wLex := p.VectorWeight, p.LexicalWeight
	if wVec == 0 && wLex == 0 {
		wVec, wLex = 1, 1
	}
	fused := merge(vecScores, lexScores, wVec, wLex)

	docOf := make(map[string]string, len(knn)+len(lex))
	for _, h := range knn {
		docOf[h.SnippetID] = h.DocID
	}
	for _, h := range lex {
		if _, ok := docOf[h.SnippetID]; !ok {
			docOf[h.SnippetID] = h.DocID
		}
	}
	out := make([]Hit, 0, len(fused))
	for id, score := range fused {
		out = append(out, Hit{SnippetID: id, DocID: docOf[id], Score: score})
	}
	sortHitsDesc(out)
	if len(out) > p.Count {
		out = out[:p.Count]
	}
	return out
}
