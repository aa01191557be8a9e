package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"centroid/internal/filter"
)

// Document is a document record as persisted by the metadata store. It does
// not carry embeddings — those live only in the vector store (§3's
// ownership split).
type Document struct {
	DocumentID  string
	IsCandidate bool
	Tags        []string
	Properties  map[string]any
}

// IngestedDocument is one document in an insert(docs) batch. IsCandidate is
// a pointer so "unset" (preserve existing/default) is distinguishable from
// explicit false.
type IngestedDocument struct {
	DocumentID         string
	Tags               []string
	Properties         map[string]any
	IsCandidate        *bool
	DefaultIsCandidate bool
}

// InsertDocuments upserts a batch of documents. Each document is committed
// in its own transaction so that a failure on one document does not roll
// back the others (per-document failure isolation per spec.md §4.6/§4.9).
// Reingesting an existing id preserves its candidate flag unless the
// request overrides it. Returns a map of failed document ids to their
// errors; a nil/empty map means every document in the batch is now visible.
func (s *Store) InsertDocuments(ctx context.Context, tenant string, schema filter.Schema, docs []IngestedDocument) map[string]error {
	tbl := qualify(SchemaName(tenant), "documents")
	failed := make(map[string]error)
	for _, d := range docs {
		if err := validateProperties(d.Properties, schema); err != nil {
			failed[d.DocumentID] = err
			continue
		}
		if err := s.insertOneDocument(ctx, tbl, d); err != nil {
			failed[d.DocumentID] = err
		}
	}
	return failed
}

func (s *Store) insertOneDocument(ctx context.Context, tbl string, d IngestedDocument) error {
	props, err := json.Marshal(nonNilProps(d.Properties))
	if err != nil {
		return fmt.Errorf("store: marshal properties: %w", err)
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}

	isCandidate := d.DefaultIsCandidate
	if d.IsCandidate != nil {
		isCandidate = *d.IsCandidate
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var existingCandidate bool
	err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT is_candidate FROM %s WHERE document_id=$1`, tbl), d.DocumentID).Scan(&existingCandidate)
	switch err {
	case nil:
		if d.IsCandidate == nil {
			isCandidate = existingCandidate // preserve on reingest unless overridden
		}
	case pgx.ErrNoRows:
		// fresh insert; isCandidate as computed above
	default:
		return err
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (document_id, is_candidate, tags, properties, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (document_id) DO UPDATE SET
			is_candidate = EXCLUDED.is_candidate,
			tags = EXCLUDED.tags,
			properties = EXCLUDED.properties,
			updated_at = now()
	`, tbl), d.DocumentID, isCandidate, tags, props)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteDocuments removes documents (and their snippets) from the tenant
// schema. Deleting an already-absent document is reported as a failure so
// the caller surfaces the documented partial-failure warning on repeat
// deletes.
func (s *Store) DeleteDocuments(ctx context.Context, tenant string, ids []string) map[string]error {
	schema := SchemaName(tenant)
	docTbl := qualify(schema, "documents")
	snipTbl := qualify(schema, "snippets")
	failed := make(map[string]error)
	for _, id := range ids {
		tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id=$1`, snipTbl), id)
		_ = tag
		if err != nil {
			failed[id] = err
			continue
		}
		cmd, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id=$1`, docTbl), id)
		if err != nil {
			failed[id] = err
			continue
		}
		if cmd.RowsAffected() == 0 {
			failed[id] = &DocumentNotFound{DocumentID: id}
		}
	}
	return failed
}

// GetDocument fetches one document record.
func (s *Store) GetDocument(ctx context.Context, tenant, id string) (Document, bool, error) {
	tbl := qualify(SchemaName(tenant), "documents")
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT document_id, is_candidate, tags, properties FROM %s WHERE document_id=$1`, tbl), id)
	var d Document
	var props []byte
	if err := row.Scan(&d.DocumentID, &d.IsCandidate, &d.Tags, &props); err != nil {
		if err == pgx.ErrNoRows {
			return Document{}, false, nil
		}
		return Document{}, false, err
	}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &d.Properties); err != nil {
			return Document{}, false, err
		}
	}
	return d, true, nil
}

// PutSnippet upserts the indexable text for (document_id, sub_id).
func (s *Store) PutSnippet(ctx context.Context, tenant, documentID string, subID int, text string) error {
	tbl := qualify(SchemaName(tenant), "snippets")
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s(document_id, sub_id, text) VALUES ($1,$2,$3)
		ON CONFLICT (document_id, sub_id) DO UPDATE SET text=EXCLUDED.text
	`, tbl), documentID, subID, text)
	return err
}

// GetSnippetText returns the indexable text stored for (document_id, sub_id),
// or ("", false, nil) if no such snippet exists.
func (s *Store) GetSnippetText(ctx context.Context, tenant, documentID string, subID int) (string, bool, error) {
	tbl := qualify(SchemaName(tenant), "snippets")
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT text FROM %s WHERE document_id=$1 AND sub_id=$2`, tbl), documentID, subID)
	var text string
	if err := row.Scan(&text); err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return text, true, nil
}

func nonNilProps(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
