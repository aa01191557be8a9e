package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"centroid/internal/filter"
	"centroid/internal/retrieve"
)

// TenantSearcher binds a Store to one tenant's schema, implementing
// internal/retrieve.LexicalSearcher the same way internal/vectorstore's
// TenantIndex binds a Client to one tenant's index for VectorSearcher —
// internal/retrieve and internal/service depend on the interface, never on
// this package's concrete Store type.
type TenantSearcher struct {
	store  *Store
	tenant string
	schema filter.Schema
}

// NewTenantSearcher returns a LexicalSearcher bound to tenant/schema.
func NewTenantSearcher(store *Store, tenant string, schema filter.Schema) *TenantSearcher {
	return &TenantSearcher{store: store, tenant: tenant, schema: schema}
}

var _ retrieve.LexicalSearcher = (*TenantSearcher)(nil)

// Search runs Store.Search scoped to the bound tenant and schema.
func (ts *TenantSearcher) Search(ctx context.Context, queryText string, count int, f filter.Filter, excluded map[string]bool) ([]retrieve.Hit, error) {
	return ts.store.Search(ctx, ts.tenant, ts.schema, queryText, count, f, excluded)
}

// Search implements the BM25-style lexical half of the retrieval engine
// (C4): a ts_rank ranking over the snippets table's generated tsvector
// column (simple-config, per EnsureTenantSchema's `_snippets_ts_idx` GIN
// index), restricted to candidate documents and the given property filter,
// with already-seen snippet ids excluded. Grounded on the sibling repo's
// pgSearch.Search (ts_rank/plainto_tsquery over a generated tsvector
// column), generalized here to join against the documents table so the
// property-filter DSL and is_candidate gate apply the same way Knn's
// vector-store side applies them.
func (s *Store) Search(ctx context.Context, tenant string, schema filter.Schema, queryText string, count int, f filter.Filter, excluded map[string]bool) ([]retrieve.Hit, error) {
	q := strings.TrimSpace(queryText)
	if q == "" || count <= 0 {
		return nil, nil
	}

	docTbl := qualify(SchemaName(tenant), "documents")
	snipTbl := qualify(SchemaName(tenant), "snippets")

	args := []any{q}
	where := []string{"d.is_candidate = true", "sn.ts @@ plainto_tsquery('simple', $1)"}

	if !f.IsZero() {
		clause, err := compileFilter(f, schema, &args)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
	}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for id := range excluded {
			ids = append(ids, id)
		}
		where = append(where, fmt.Sprintf("(sn.document_id || '/' || sn.sub_id::text) <> ALL(%s::text[])", nextParam(&args, ids)))
	}

	limitParam := nextParam(&args, count)

	query := fmt.Sprintf(`
		SELECT sn.document_id, sn.sub_id, ts_rank(sn.ts, plainto_tsquery('simple', $1)) AS score
		FROM %s sn
		JOIN %s d ON d.document_id = sn.document_id
		WHERE %s
		ORDER BY score DESC
		LIMIT %s
	`, snipTbl, docTbl, strings.Join(where, " AND "), limitParam)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: lexical search: %w", err)
	}
	defer rows.Close()

	var hits []retrieve.Hit
	for rows.Next() {
		var docID string
		var subID int
		var score float64
		if err := rows.Scan(&docID, &subID, &score); err != nil {
			return nil, err
		}
		hits = append(hits, retrieve.Hit{SnippetID: lexicalSnippetKey(docID, subID), DocID: docID, Score: score})
	}
	return hits, rows.Err()
}

// lexicalSnippetKey must match internal/vectorstore's snippetKey format
// exactly: the two stores' Hit.SnippetID values are merged by RRF in
// internal/retrieve, so the same snippet needs the same id from either
// backend.
func lexicalSnippetKey(documentID string, subID int) string {
	return documentID + "/" + strconv.Itoa(subID)
}
