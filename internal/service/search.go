package service

import (
	"context"

	"centroid/internal/coi"
	"centroid/internal/embedding"
	"centroid/internal/filter"
	"centroid/internal/rerank"
	"centroid/internal/retrieve"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

// DocumentSelector is spec.md §6's `document: { id | {document_id,sub_id} |
// query: string }` union. Query non-empty selects "search by free text";
// otherwise DocumentID (with SubID defaulting to 0) selects "more like this
// snippet".
type DocumentSelector struct {
	DocumentID string
	SubID      int
	Query      string
}

func (d DocumentSelector) isQuery() bool { return d.Query != "" }

// SemanticSearchRequest is spec.md §6's POST /semantic_search body. UserID
// is not part of the documented JSON shape (semantic_search has no {uid}
// path segment) but is accepted here so a caller wiring an authenticated
// request can still ask for Personalize; without one, Personalize is
// silently treated as a plain similarity search — see DESIGN.md's Open
// Question log.
type SemanticSearchRequest struct {
	Document          DocumentSelector
	Count             int
	EnableHybridSearch bool
	Personalize       bool
	UserID            string
	Filter            filter.Filter
	ResultOptions
}

// SemanticSearch resolves the request's document selector to a query vector
// (+ query text, for the hybrid lexical half), retrieves via Knn or Hybrid,
// optionally reranks against a user's CoIs/tag weights, and shapes the
// result per spec.md §6.
func (s *Service) SemanticSearch(ctx context.Context, tenantID string, req SemanticSearchRequest) ([]PersonalizedDocument, []retrieve.Warning, error) {
	t0 := s.clock.Now()
	ssCfg := s.cfg.SemanticSearch
	count := req.Count
	if count == 0 {
		count = ssCfg.DefaultNumberDocuments
	}
	if count <= 0 || count > ssCfg.MaxNumberDocuments {
		return nil, nil, &InvalidCount{Count: count, Max: ssCfg.MaxNumberDocuments}
	}

	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	q, queryText, excluded, err := s.resolveQuery(ctx, tenant.IndexName, tenantID, req.Document)
	if err != nil {
		return nil, nil, err
	}

	schema, err := s.schema.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	s.stage(tenantID, "semantic_search", "resolve_query", ms(s.clock.Now().Sub(t0)))

	t1 := s.clock.Now()
	vs := vectorstore.NewTenantIndex(s.vec, tenant.IndexName)
	params := retrieve.Params{Count: count, NumCandidates: count, Filter: req.Filter, Excluded: excluded}

	var hits []retrieve.Hit
	var warnings []retrieve.Warning
	if req.EnableHybridSearch {
		lex := store.NewTenantSearcher(s.store, tenantID, schema)
		hits, warnings, err = retrieve.Hybrid(ctx, vs, lex, q, queryText, params)
	} else {
		hits, err = retrieve.Knn(ctx, vs, q, params)
	}
	if err != nil {
		return nil, warnings, err
	}
	s.stage(tenantID, "semantic_search", "retrieve", ms(s.clock.Now().Sub(t1)))
	for i := 0; i < len(hits); i++ {
		s.metrics.IncCounter("semantic_search_candidates_total", map[string]string{"tenant": tenantID})
	}

	t2 := s.clock.Now()
	candidates, err := s.buildCandidates(ctx, tenantID, tenant.IndexName, hits)
	if err != nil {
		return nil, warnings, err
	}

	fused := make(map[string]float64, len(candidates))
	final := candidates
	if req.Personalize && req.UserID != "" {
		cois, err := s.store.GetCoIs(ctx, tenantID, req.UserID)
		if err != nil {
			return nil, warnings, err
		}
		tagWeights, err := s.store.GetTagWeights(ctx, tenantID, req.UserID)
		if err != nil {
			return nil, warnings, err
		}
		coiCfg := coi.Config{
			ShiftFactor: s.cfg.CoI.ShiftFactor,
			Threshold:   s.cfg.CoI.Threshold,
			MinCoIs:     s.cfg.CoI.MinCoIs,
			Horizon:     s.cfg.CoI.Horizon,
		}
		weights := rerank.Weights{Interest: ssCfg.ScoreWeights[0], Tag: ssCfg.ScoreWeights[1], Search: ssCfg.ScoreWeights[2]}
		final, fused = rerank.RerankScored(candidates, cois, coiCfg, tagWeights, weights, s.clock.Now())
	} else {
		for _, c := range candidates {
			fused[c.SnippetID] = c.RawScore
		}
	}
	if len(final) > count {
		final = final[:count]
	}
	s.stage(tenantID, "semantic_search", "rerank", ms(s.clock.Now().Sub(t2)))

	docs, err := s.toPersonalizedDocuments(ctx, tenantID, final, fused, req.ResultOptions)
	if err != nil {
		return nil, warnings, err
	}
	for i := 0; i < len(docs); i++ {
		s.metrics.IncCounter("semantic_search_results_total", map[string]string{"tenant": tenantID})
	}
	s.stage(tenantID, "semantic_search", "total", ms(s.clock.Now().Sub(t0)))
	return docs, warnings, nil
}

// SemanticSearchDevRequest is spec.md §4.4's HybridDev customization of a
// semantic_search call: the caller names one of the enumerated
// normalization functions per stream and one of the enumerated merge
// functions, instead of Hybrid's fixed RRF-of-raw-scores pipeline.
type SemanticSearchDevRequest struct {
	Document         DocumentSelector
	Count            int
	Filter           filter.Filter
	NormalizeVector  string // "identity" | "normalize" | "normalize_if_max_gt_1"
	NormalizeLexical string
	Merge            string // "sum" | "average_duplicates_only" | "rrf"
	MergeK           int    // rrf's rank constant; 0 -> 60
	ResultOptions
}

func resolveNormalizeFn(name string) retrieve.NormalizeFn {
	switch name {
	case "normalize":
		return retrieve.MinMaxNormalize
	case "normalize_if_max_gt_1":
		return retrieve.NormalizeIfMaxGT1
	default:
		return retrieve.Identity
	}
}

func resolveMergeFn(name string, k int) retrieve.MergeFn {
	switch name {
	case "average_duplicates_only":
		return retrieve.AverageDuplicatesOnly
	case "rrf":
		if k <= 0 {
			k = 60
		}
		return retrieve.RRF(k)
	default:
		return retrieve.Sum
	}
}

// SemanticSearchDev is SemanticSearch's dev-mode sibling: same query
// resolution, but fused via HybridDevMerge's configurable normalization and
// merge functions instead of Hybrid's fixed weighted RRF. Disabled unless
// cfg.Tenants.EnableDev is set, per spec.md §4.4.
func (s *Service) SemanticSearchDev(ctx context.Context, tenantID string, req SemanticSearchDevRequest) ([]PersonalizedDocument, []retrieve.Warning, error) {
	if !s.cfg.Tenants.EnableDev {
		return nil, nil, &DevDisabled{}
	}

	t0 := s.clock.Now()
	ssCfg := s.cfg.SemanticSearch
	count := req.Count
	if count == 0 {
		count = ssCfg.DefaultNumberDocuments
	}
	if count <= 0 || count > ssCfg.MaxNumberDocuments {
		return nil, nil, &InvalidCount{Count: count, Max: ssCfg.MaxNumberDocuments}
	}

	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	q, queryText, excluded, err := s.resolveQuery(ctx, tenant.IndexName, tenantID, req.Document)
	if err != nil {
		return nil, nil, err
	}

	schema, err := s.schema.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	s.stage(tenantID, "semantic_search_dev", "resolve_query", ms(s.clock.Now().Sub(t0)))

	t1 := s.clock.Now()
	vs := vectorstore.NewTenantIndex(s.vec, tenant.IndexName)
	lex := store.NewTenantSearcher(s.store, tenantID, schema)
	params := retrieve.HybridDevParams{
		Params:           retrieve.Params{Count: count, NumCandidates: count, Filter: req.Filter, Excluded: excluded},
		NormalizeVector:  resolveNormalizeFn(req.NormalizeVector),
		NormalizeLexical: resolveNormalizeFn(req.NormalizeLexical),
		Merge:            resolveMergeFn(req.Merge, req.MergeK),
	}

	hits, warnings, err := retrieve.HybridDev(ctx, vs, lex, q, queryText, params)
	if err != nil {
		return nil, warnings, err
	}
	s.stage(tenantID, "semantic_search_dev", "retrieve", ms(s.clock.Now().Sub(t1)))
	for i := 0; i < len(hits); i++ {
		s.metrics.IncCounter("semantic_search_dev_candidates_total", map[string]string{"tenant": tenantID})
	}

	candidates, err := s.buildCandidates(ctx, tenantID, tenant.IndexName, hits)
	if err != nil {
		return nil, warnings, err
	}
	fused := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		fused[c.SnippetID] = c.RawScore
	}

	docs, err := s.toPersonalizedDocuments(ctx, tenantID, candidates, fused, req.ResultOptions)
	if err != nil {
		return nil, warnings, err
	}
	for i := 0; i < len(docs); i++ {
		s.metrics.IncCounter("semantic_search_dev_results_total", map[string]string{"tenant": tenantID})
	}
	s.stage(tenantID, "semantic_search_dev", "total", ms(s.clock.Now().Sub(t0)))
	return docs, warnings, nil
}

// resolveQuery turns a DocumentSelector into a query vector, a query text
// (used by Hybrid's lexical half; empty disables it), and an exclusion set
// (the source snippet itself, for a by-snippet "more like this" query, so it
// never matches against itself).
func (s *Service) resolveQuery(ctx context.Context, indexName, tenantID string, sel DocumentSelector) (embedding.Vector, string, map[string]bool, error) {
	if sel.isQuery() {
		if len(sel.Query) < s.cfg.SemanticSearch.MinQuerySize || len(sel.Query) > s.cfg.SemanticSearch.MaxQuerySize {
			return nil, "", nil, &InvalidQuery{Reason: "query length out of bounds"}
		}
		q, err := s.emb.Embed(ctx, embedding.Query, sel.Query)
		if err != nil {
			return nil, "", nil, err
		}
		return q, sel.Query, nil, nil
	}

	if sel.DocumentID == "" {
		return nil, "", nil, &InvalidQuery{Reason: "document selector names neither id nor query"}
	}

	embeddings, err := s.vec.GetEmbeddings(ctx, indexName, [][2]any{{sel.DocumentID, sel.SubID}})
	if err != nil {
		return nil, "", nil, err
	}
	key := snippetKey(sel.DocumentID, sel.SubID)
	q, ok := embeddings[key]
	if !ok {
		return nil, "", nil, &SnippetNotFound{DocumentID: sel.DocumentID, SubID: sel.SubID}
	}

	text, _, err := s.store.GetSnippetText(ctx, tenantID, sel.DocumentID, sel.SubID)
	if err != nil {
		return nil, "", nil, err
	}

	return q, text, map[string]bool{key: true}, nil
}
