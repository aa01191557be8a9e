package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BackfillCursor returns the last document_id processed by the background
// index-update worker (C10), or "" if the worker has never run for this
// tenant. Resumability per spec.md §4.10.
func (s *Store) BackfillCursor(ctx context.Context, tenant string) (string, error) {
	tbl := qualify(SchemaName(tenant), "schema_backfill_cursor")
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT document_id FROM %s LIMIT 1`, tbl))
	var id string
	if err := row.Scan(&id); err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("store: read backfill cursor: %w", err)
	}
	return id, nil
}

// SetBackfillCursor records documentID as the last one the worker finished,
// replacing any prior cursor. A single-row table: the worker only ever
// processes documents in one pass, tenant-wide.
func (s *Store) SetBackfillCursor(ctx context.Context, tenant, documentID string) error {
	tbl := qualify(SchemaName(tenant), "schema_backfill_cursor")
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, tbl))
	if err != nil {
		return fmt.Errorf("store: clear backfill cursor: %w", err)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (document_id) VALUES ($1)`, tbl), documentID)
	if err != nil {
		return fmt.Errorf("store: set backfill cursor: %w", err)
	}
	return nil
}

// ClearBackfillCursor resets the worker to start from the beginning, called
// after a full pass completes.
func (s *Store) ClearBackfillCursor(ctx context.Context, tenant string) error {
	tbl := qualify(SchemaName(tenant), "schema_backfill_cursor")
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, tbl))
	if err != nil {
		return fmt.Errorf("store: clear backfill cursor: %w", err)
	}
	return nil
}

// DocumentsAfter returns up to limit documents with document_id > after,
// ordered by document_id, for the background worker's resumable scan.
func (s *Store) DocumentsAfter(ctx context.Context, tenant, after string, limit int) ([]Document, error) {
	tbl := qualify(SchemaName(tenant), "documents")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT document_id, is_candidate, tags, properties FROM %s WHERE document_id > $1 ORDER BY document_id ASC LIMIT $2`,
		tbl), after, limit)
	if err != nil {
		return nil, fmt.Errorf("store: scan documents after %q: %w", after, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var props []byte
		if err := rows.Scan(&d.DocumentID, &d.IsCandidate, &d.Tags, &props); err != nil {
			return nil, err
		}
		if len(props) > 0 {
			if err := json.Unmarshal(props, &d.Properties); err != nil {
				return nil, err
			}
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
