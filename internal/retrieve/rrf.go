package retrieve

import "sort"

// RRFFuseMaps fuses arbitrarily many score maps into one score map using
// weighted reciprocal-rank fusion: each list's scores are first ranked
// (descending, ties broken by ID ascending for a stable rank order), then
// fused_score(d) = sum_i w_i / (k + rank_i(d)), where rank_i(d) is d's
// 1-based position in list i or absent (contributing 0) if d is not in
// that list. Shared by the default Hybrid merge (C4) and the rerank blend
// (C5) per spec.md §4.4/§4.5.
func RRFFuseMaps(maps []map[string]float64, weights []float64, k int) map[string]float64 {
	if k <= 0 {
		k = 60
	}
	ranks := make([]map[string]int, len(maps))
	ids := map[string]struct{}{}
	for i, m := range maps {
		ranks[i] = rankOf(m)
		for id := range m {
			ids[id] = struct{}{}
		}
	}

	out := make(map[string]float64, len(ids))
	for id := range ids {
		var fused float64
		for i, r := range ranks {
			rank, ok := r[id]
			if !ok {
				continue
			}
			w := 1.0
			if i < len(weights) {
				w = weights[i]
			}
			fused += w / float64(k+rank)
		}
		out[id] = fused
	}
	return out
}

// rankOf converts a score map into 1-based ranks, descending by score, ties
// broken by ID ascending.
func rankOf(m map[string]float64) map[string]int {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if m[ids[i]] != m[ids[j]] {
			return m[ids[i]] > m[ids[j]]
		}
		return ids[i] < ids[j]
	})
	out := make(map[string]int, len(ids))
	for i, id := range ids {
		out[id] = i + 1
	}
	return out
}
