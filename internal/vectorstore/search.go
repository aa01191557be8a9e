package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"centroid/internal/embedding"
	"centroid/internal/filter"
	"centroid/internal/retrieve"
)

// TenantIndex binds a Client to one tenant's index name, implementing
// internal/retrieve.VectorSearcher so internal/retrieve and internal/service
// can depend on the interface rather than this package directly.
type TenantIndex struct {
	client    *Client
	indexName string
}

// NewTenantIndex returns a VectorSearcher bound to indexName.
func NewTenantIndex(client *Client, indexName string) *TenantIndex {
	return &TenantIndex{client: client, indexName: indexName}
}

var _ retrieve.VectorSearcher = (*TenantIndex)(nil)

// Search runs a cosine-similarity kNN query restricted to is_candidate
// points, applying f and excluding snippet ids in excluded, per spec.md
// §4.4's Knn definition. numCandidates is unused: this client version
// doesn't expose Qdrant's HNSW search-ef, so oversampling is left to count.
func (t *TenantIndex) Search(ctx context.Context, q embedding.Vector, count int, _ int, f filter.Filter, excluded map[string]bool) ([]retrieve.Hit, error) {
	qf := translateFilter(f, excluded)
	if qf == nil {
		qf = &qdrant.Filter{}
	}
	qf.Must = append(qf.Must, &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   "is_candidate",
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: true}},
			},
		},
	})

	limit := uint64(count)
	var results []*qdrant.ScoredPoint
	err := t.client.retry(ctx, func() error {
		res, err := t.client.qc.Query(ctx, &qdrant.QueryPoints{
			CollectionName: t.indexName,
			Query:          qdrant.NewQueryDense(q),
			Limit:          &limit,
			Filter:         qf,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, &retrieve.BackendUnavailable{Backend: "qdrant", Cause: fmt.Errorf("vectorstore: query %s: %w", t.indexName, err)}
	}

	hits := make([]retrieve.Hit, 0, len(results))
	for _, p := range results {
		docID := ""
		snippetID := ""
		if p.Payload != nil {
			if v, ok := p.Payload["document_id"]; ok {
				docID = v.GetStringValue()
			}
			if v, ok := p.Payload["snippet_id"]; ok {
				snippetID = v.GetStringValue()
			}
		}
		hits = append(hits, retrieve.Hit{SnippetID: snippetID, DocID: docID, Score: float64(p.Score)})
	}
	return hits, nil
}
