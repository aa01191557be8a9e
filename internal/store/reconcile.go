package store

import (
	"context"
	"fmt"
)

// EnqueueReconciliation records documentID as needing a retried vector-store
// upsert, per spec.md §4.9: "If steps 3 and 4 disagree (commit succeeds,
// upsert fails), the document is queued for background reconciliation."
// Idempotent — re-enqueuing an already-queued document is a no-op.
func (s *Store) EnqueueReconciliation(ctx context.Context, tenant, documentID string) error {
	tbl := qualify(SchemaName(tenant), "reconcile_queue")
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (document_id) VALUES ($1) ON CONFLICT (document_id) DO NOTHING`, tbl), documentID)
	if err != nil {
		return fmt.Errorf("store: enqueue reconciliation for %q: %w", documentID, err)
	}
	return nil
}

// ReconciliationBatch returns up to limit queued document ids, oldest first,
// for the background reconciliation worker to retry.
func (s *Store) ReconciliationBatch(ctx context.Context, tenant string, limit int) ([]string, error) {
	tbl := qualify(SchemaName(tenant), "reconcile_queue")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT document_id FROM %s ORDER BY enqueued_at ASC LIMIT $1`, tbl), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list reconciliation batch: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkReconciled removes documentID from the reconciliation queue after a
// successful retry.
func (s *Store) MarkReconciled(ctx context.Context, tenant, documentID string) error {
	tbl := qualify(SchemaName(tenant), "reconcile_queue")
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, tbl), documentID)
	if err != nil {
		return fmt.Errorf("store: mark reconciled %q: %w", documentID, err)
	}
	return nil
}

// BumpReconcileAttempt increments documentID's retry-attempt counter,
// returning the updated count so the worker can apply backoff or give up.
func (s *Store) BumpReconcileAttempt(ctx context.Context, tenant, documentID string) (int, error) {
	tbl := qualify(SchemaName(tenant), "reconcile_queue")
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`UPDATE %s SET attempts = attempts + 1 WHERE document_id = $1 RETURNING attempts`, tbl), documentID)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, fmt.Errorf("store: bump reconcile attempt %q: %w", documentID, err)
	}
	return attempts, nil
}
