package store

import (
	"context"
	"fmt"
)

// SetCandidates replaces the tenant's global candidate set: every listed id
// becomes a candidate, every other document becomes a non-candidate. ids
// absent from the tenant are reported as a partial-failure warning but do
// not block the rest of the batch.
func (s *Store) SetCandidates(ctx context.Context, tenant string, ids []string) map[string]error {
	tbl := qualify(SchemaName(tenant), "documents")
	failed := make(map[string]error)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		failed["*"] = err
		return failed
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET is_candidate=false`, tbl)); err != nil {
		failed["*"] = err
		return failed
	}
	for _, id := range ids {
		cmd, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET is_candidate=true WHERE document_id=$1`, tbl), id)
		if err != nil {
			failed[id] = err
			continue
		}
		if cmd.RowsAffected() == 0 {
			failed[id] = &DocumentNotFound{DocumentID: id}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return map[string]error{"*": err}
	}
	return failed
}

// AddCandidates marks the listed ids as candidates without touching others.
func (s *Store) AddCandidates(ctx context.Context, tenant string, ids []string) map[string]error {
	return s.setCandidateFlag(ctx, tenant, ids, true)
}

// RemoveCandidates clears the candidate flag on the listed ids.
func (s *Store) RemoveCandidates(ctx context.Context, tenant string, ids []string) map[string]error {
	return s.setCandidateFlag(ctx, tenant, ids, false)
}

func (s *Store) setCandidateFlag(ctx context.Context, tenant string, ids []string, value bool) map[string]error {
	tbl := qualify(SchemaName(tenant), "documents")
	failed := make(map[string]error)
	for _, id := range ids {
		cmd, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET is_candidate=$2, updated_at=now() WHERE document_id=$1`, tbl), id, value)
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

// GetCandidates returns the current candidate set.
func (s *Store) GetCandidates(ctx context.Context, tenant string) ([]string, error) {
	tbl := qualify(SchemaName(tenant), "documents")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT document_id FROM %s WHERE is_candidate=true ORDER BY document_id`, tbl))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
