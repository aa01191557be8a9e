package service

import (
	"context"

	"centroid/internal/coi"
	"centroid/internal/embedding"
	"centroid/internal/filter"
	"centroid/internal/rerank"
	"centroid/internal/retrieve"
	"centroid/internal/vectorstore"
)

// RecommendRequest is spec.md §6's POST /users/{uid}/recommendations body.
type RecommendRequest struct {
	Count   int
	Filter  filter.Filter
	ResultOptions
}

// Recommend returns a user's personalized document feed: retrieve a
// candidate pool via kNN around the user's interest centroid, then rerank
// it by the blended interest/tag/search signal (C2 + C4 + C5). Fails with
// NotEnoughInteractions (409) if the user has fewer than min_cois CoIs, per
// spec.md §6/§8.
func (s *Service) Recommend(ctx context.Context, tenantID, userID string, req RecommendRequest) ([]PersonalizedDocument, error) {
	t0 := s.clock.Now()
	pCfg := s.cfg.Personalization
	coiCfg := coi.Config{
		ShiftFactor: s.cfg.CoI.ShiftFactor,
		Threshold:   s.cfg.CoI.Threshold,
		MinCoIs:     s.cfg.CoI.MinCoIs,
		Horizon:     s.cfg.CoI.Horizon,
	}

	count := req.Count
	if count == 0 {
		count = pCfg.DefaultNumberDocuments
	}
	if count <= 0 || count > pCfg.MaxNumberDocuments {
		return nil, &InvalidCount{Count: count, Max: pCfg.MaxNumberDocuments}
	}

	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	cois, err := s.store.GetCoIs(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if len(cois) < coiCfg.MinCoIs {
		return nil, &NotEnoughInteractions{UserID: userID, Have: len(cois), Need: coiCfg.MinCoIs}
	}
	s.stage(tenantID, "recommend", "load_cois", ms(s.clock.Now().Sub(t0)))

	q, ok := centroidQuery(cois)
	if !ok {
		return nil, &NotEnoughInteractions{UserID: userID, Have: len(cois), Need: coiCfg.MinCoIs}
	}

	numCandidates := pCfg.MaxNumberCandidates
	if numCandidates < count {
		numCandidates = count
	}

	t1 := s.clock.Now()
	vs := vectorstore.NewTenantIndex(s.vec, tenant.IndexName)
	hits, err := retrieve.Knn(ctx, vs, q, retrieve.Params{Count: numCandidates, NumCandidates: numCandidates, Filter: req.Filter})
	if err != nil {
		return nil, err
	}
	s.stage(tenantID, "recommend", "retrieve", ms(s.clock.Now().Sub(t1)))
	for i := 0; i < len(hits); i++ {
		s.metrics.IncCounter("recommend_candidates_total", map[string]string{"tenant": tenantID})
	}

	t2 := s.clock.Now()
	candidates, err := s.buildCandidates(ctx, tenantID, tenant.IndexName, hits)
	if err != nil {
		return nil, err
	}

	tagWeights, err := s.store.GetTagWeights(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	weights := rerank.Weights{Interest: pCfg.ScoreWeights[0], Tag: pCfg.ScoreWeights[1], Search: pCfg.ScoreWeights[2]}
	reranked, fused := rerank.RerankScored(candidates, cois, coiCfg, tagWeights, weights, s.clock.Now())
	if len(reranked) > count {
		reranked = reranked[:count]
	}
	s.stage(tenantID, "recommend", "rerank", ms(s.clock.Now().Sub(t2)))

	docs, err := s.toPersonalizedDocuments(ctx, tenantID, reranked, fused, req.ResultOptions)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(docs); i++ {
		s.metrics.IncCounter("recommend_results_total", map[string]string{"tenant": tenantID})
	}
	s.stage(tenantID, "recommend", "total", ms(s.clock.Now().Sub(t0)))
	return docs, nil
}

// centroidQuery collapses a user's CoI set into one unit-length query vector
// (the normalized sum of their interest points; every CoI counts equally,
// relevance is not applied here) for the kNN retrieval pass. This is a
// deliberate simplification of the original multi-interest engine's per-CoI
// probing: recall here only needs a reasonable candidate pool, since
// rerank's coi.Score does the exact per-document, per-CoI scoring
// afterwards, so a single representative vector is used instead of one kNN
// query per CoI.
func centroidQuery(cois []coi.CoI) (embedding.Vector, bool) {
	if len(cois) == 0 {
		return nil, false
	}
	dim := 0
	for _, c := range cois {
		if len(c.Point) > dim {
			dim = len(c.Point)
		}
	}
	sum := make([]float32, dim)
	for _, c := range cois {
		for i, v := range c.Point {
			sum[i] += v
		}
	}
	norm, err := embedding.Normalize("coi-centroid", sum)
	if err != nil {
		return cois[0].Point, true
	}
	return norm, true
}
