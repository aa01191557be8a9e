package service

import (
	"context"

	"centroid/internal/rerank"
	"centroid/internal/retrieve"
)

// PersonalizedDocument is one result entry shared by Recommend and
// SemanticSearch (spec.md §6's PersonalizedDocument).
type PersonalizedDocument struct {
	DocumentID string
	SubID      int
	Score      float64
	Properties map[string]any // only populated if requested
	Snippet    string          // only populated if requested
}

// ResultOptions controls how much of a document's record Recommend/
// SemanticSearch attach to each result, per spec.md §6's
// include_properties/include_snippet flags.
type ResultOptions struct {
	IncludeProperties bool
	IncludeSnippet    bool
}

// buildCandidates turns a retrieval engine's hit list into rerank
// candidates: each hit's embedding (needed for CoI interest scoring) and its
// document's tags (needed for tag-weight scoring) are fetched in one batch
// apiece, rather than round-tripping per hit.
func (s *Service) buildCandidates(ctx context.Context, tenantID, indexName string, hits []retrieve.Hit) ([]rerank.Candidate, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	keys := make([][2]any, 0, len(hits))
	docIDs := map[string]bool{}
	for _, h := range hits {
		_, subID, err := parseSnippetKey(h.SnippetID)
		if err != nil {
			return nil, err
		}
		keys = append(keys, [2]any{h.DocID, subID})
		docIDs[h.DocID] = true
	}

	embeddings, err := s.vec.GetEmbeddings(ctx, indexName, keys)
	if err != nil {
		return nil, err
	}

	tags := make(map[string][]string, len(docIDs))
	for docID := range docIDs {
		doc, ok, err := s.store.GetDocument(ctx, tenantID, docID)
		if err != nil {
			return nil, err
		}
		if ok {
			tags[docID] = doc.Tags
		}
	}

	out := make([]rerank.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, rerank.Candidate{
			SnippetID: h.SnippetID,
			RawScore:  h.Score,
			Embedding: embeddings[h.SnippetID],
			Tags:      tags[h.DocID],
		})
	}
	return out, nil
}

// toPersonalizedDocuments shapes rerank output into the response type,
// attaching properties/snippet text only when requested (spec.md §6).
func (s *Service) toPersonalizedDocuments(ctx context.Context, tenantID string, candidates []rerank.Candidate, fused map[string]float64, opts ResultOptions) ([]PersonalizedDocument, error) {
	out := make([]PersonalizedDocument, 0, len(candidates))
	for _, c := range candidates {
		docID, subID, err := parseSnippetKey(c.SnippetID)
		if err != nil {
			return nil, err
		}
		pd := PersonalizedDocument{DocumentID: docID, SubID: subID, Score: fused[c.SnippetID]}
		if opts.IncludeProperties {
			props, err := s.store.GetProperties(ctx, tenantID, docID)
			if err != nil {
				return nil, err
			}
			pd.Properties = props
		}
		if opts.IncludeSnippet {
			text, _, err := s.store.GetSnippetText(ctx, tenantID, docID, subID)
			if err != nil {
				return nil, err
			}
			pd.Snippet = text
		}
		out = append(out, pd)
	}
	return out, nil
}
