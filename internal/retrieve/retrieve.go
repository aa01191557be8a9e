// Package retrieve implements the retrieval engine (C4): Knn, Hybrid and
// HybridDev strategies over a vector store (kNN) and a lexical BM25 store,
// merged by reciprocal-rank fusion or (in dev mode) a configurable
// normalization + merge pipeline.
package retrieve

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"centroid/internal/embedding"
	"centroid/internal/filter"
)

// Hit is one candidate returned by a single backend, carrying its raw score
// from that backend (cosine similarity for kNN, ts_rank for lexical).
type Hit struct {
	SnippetID string
	DocID     string
	Score     float64
}

// VectorSearcher is the kNN surface a vector store adapter (internal/vectorstore)
// must satisfy. Results are returned in descending-score order, already
// restricted to is_candidate=true and the given filter/exclusion set.
type VectorSearcher interface {
	Search(ctx context.Context, q embedding.Vector, count, numCandidates int, f filter.Filter, excluded map[string]bool) ([]Hit, error)
}

// LexicalSearcher is the BM25 surface a metadata store (internal/store) must
// satisfy.
type LexicalSearcher interface {
	Search(ctx context.Context, queryText string, count int, f filter.Filter, excluded map[string]bool) ([]Hit, error)
}

// BackendUnavailable signals that a required backend (the vector store, for
// Knn/Hybrid) could not be reached. Per spec.md §4.4 a single lexical-search
// failure in Hybrid is recoverable and does not produce this error.
type BackendUnavailable struct {
	Backend string
	Cause   error
}

func (e *BackendUnavailable) Error() string {
	return fmt.Sprintf("retrieve: backend %q unavailable: %v", e.Backend, e.Cause)
}

func (e *BackendUnavailable) Unwrap() error { return e.Cause }

// Warning reports a non-fatal degradation of a retrieval request (e.g. a
// lexical search failure that caused Hybrid to fall back to Knn-only).
type Warning struct {
	Source string
	Detail string
}

// Params configures a single retrieval call. Weights apply to the default
// RRF merge of (vector, lexical) streams; RRFK is the rank constant (0 ->
// default 60).
type Params struct {
	Count         int
	NumCandidates int // over-fetch budget for kNN recall; 0 -> Count
	VectorWeight  float64
	LexicalWeight float64
	RRFK          int
	Filter        filter.Filter
	Excluded      map[string]bool
}

func (p Params) withDefaults() Params {
	if p.NumCandidates < p.Count {
		p.NumCandidates = p.Count
	}
	if p.VectorWeight == 0 && p.LexicalWeight == 0 {
		p.VectorWeight, p.LexicalWeight = 1, 1
	}
	if p.RRFK <= 0 {
		p.RRFK = 60
	}
	return p
}

// Knn returns the top Count snippets by cosine similarity to q.
func Knn(ctx context.Context, vs VectorSearcher, q embedding.Vector, p Params) ([]Hit, error) {
	p = p.withDefaults()
	hits, err := vs.Search(ctx, q, p.Count, p.NumCandidates, p.Filter, p.Excluded)
	if err != nil {
		return nil, &BackendUnavailable{Backend: "vector", Cause: err}
	}
	return hits, nil
}

// Hybrid runs Knn and a BM25 lexical query concurrently and merges them via
// default-weighted RRF (k=60 unless overridden). A lexical-search failure
// degrades to Knn-only results and is reported as a Warning rather than
// failing the request.
func Hybrid(ctx context.Context, vs VectorSearcher, lex LexicalSearcher, q embedding.Vector, queryText string, p Params) ([]Hit, []Warning, error) {
	p = p.withDefaults()

	knnHits, lexHits, warnings, err := fetchConcurrently(ctx, vs, lex, q, queryText, p)
	if err != nil {
		return nil, warnings, err
	}
	fused := mergeRRF(knnHits, lexHits, p.VectorWeight, p.LexicalWeight, p.RRFK)
	if len(fused) > p.Count {
		fused = fused[:p.Count]
	}
	return fused, warnings, nil
}

// fetchConcurrently launches the kNN and BM25 sub-queries on the shared
// cooperative task runtime and joins them before merging, per spec.md §5.
// A vector-store failure aborts the group (group.Wait returns it); a
// lexical-search failure is captured separately so it can degrade to a
// warning instead of failing the whole request.
func fetchConcurrently(ctx context.Context, vs VectorSearcher, lex LexicalSearcher, q embedding.Vector, queryText string, p Params) ([]Hit, []Hit, []Warning, error) {
	var vecHits, lexHits []Hit
	var lexErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := vs.Search(gctx, q, p.Count, p.NumCandidates, p.Filter, p.Excluded)
		if err != nil {
			return &BackendUnavailable{Backend: "vector", Cause: err}
		}
		vecHits = hits
		return nil
	})
	g.Go(func() error {
		if lex == nil {
			return nil
		}
		hits, err := lex.Search(gctx, queryText, p.Count, p.Filter, p.Excluded)
		if err != nil {
			lexErr = err // recoverable: reported as a Warning, not joined into g's error
			return nil
		}
		lexHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	var warnings []Warning
	if lexErr != nil {
		warnings = append(warnings, Warning{Source: "lexical", Detail: lexErr.Error()})
		return vecHits, nil, warnings, nil
	}
	return vecHits, lexHits, warnings, nil
}

// mergeRRF fuses two ranked hit lists by weighted reciprocal-rank fusion.
// Tie-break: higher raw kNN score, then lexicographic snippet_id, per
// spec.md §4.4.
func mergeRRF(knn, lex []Hit, wKnn, wLex float64, k int) []Hit {
	knnScore := toScoreMap(knn)
	lexScore := toScoreMap(lex)
	fused := RRFFuseMaps([]map[string]float64{knnScore, lexScore}, []float64{wKnn, wLex}, k)

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
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		ri, rj := knnScore[out[i].SnippetID], knnScore[out[j].SnippetID]
		if ri != rj {
			return ri > rj
		}
		return out[i].SnippetID < out[j].SnippetID
	})
	return out
}

func sortHitsDesc(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].SnippetID < hits[j].SnippetID
	})
}

func toScoreMap(hits []Hit) map[string]float64 {
	m := make(map[string]float64, len(hits))
	for _, h := range hits {
		m[h.SnippetID] = h.Score
	}
	return m
}
