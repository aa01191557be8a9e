package store

import (
	"context"
	"fmt"

	"centroid/internal/filter"
)

// SchemaLimitExceeded reports an extend_schema call that would push a
// tenant's indexed-property count past MaxSchemaEntries.
type SchemaLimitExceeded struct {
	Limit   int
	Current int
	Adding  int
}

func (e *SchemaLimitExceeded) Error() string {
	return fmt.Sprintf("schema limit %d exceeded: %d existing + %d new", e.Limit, e.Current, e.Adding)
}

// SchemaEntryConflict reports an extend_schema call naming a property id
// already present in the tenant's schema.
type SchemaEntryConflict struct {
	PropertyID string
}

func (e *SchemaEntryConflict) Error() string {
	return fmt.Sprintf("property %q already indexed", e.PropertyID)
}

// LoadSchema returns the tenant's indexed-property schema, ordered as it was
// extended (ord ascending).
func (s *Store) LoadSchema(ctx context.Context, tenant string) (filter.Schema, error) {
	tbl := qualify(SchemaName(tenant), "indexed_properties")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT property_id, prop_type FROM %s ORDER BY ord`, tbl))
	if err != nil {
		return filter.Schema{}, err
	}
	defer rows.Close()

	var entries []filter.Entry
	for rows.Next() {
		var id, typ string
		if err := rows.Scan(&id, &typ); err != nil {
			return filter.Schema{}, err
		}
		entries = append(entries, filter.Entry{ID: id, Type: filter.PropertyType(typ)})
	}
	if err := rows.Err(); err != nil {
		return filter.Schema{}, err
	}
	return filter.NewSchema(entries), nil
}

// ExtendSchema appends new property entries to the tenant's schema. Rejects
// ids already present (SchemaEntryConflict) and the whole batch if it would
// push the schema past maxEntries (SchemaLimitExceeded), per spec.md §4.10.
// Existing data is left untouched; the caller is responsible for enqueuing
// the index-update job the new properties require (internal/indexworker).
func (s *Store) ExtendSchema(ctx context.Context, tenant string, additions []filter.Entry, maxEntries int) error {
	schema := SchemaName(tenant)
	tbl := qualify(schema, "indexed_properties")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current int
	if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, tbl)).Scan(&current); err != nil {
		return err
	}
	if maxEntries > 0 && current+len(additions) > maxEntries {
		return &SchemaLimitExceeded{Limit: maxEntries, Current: current, Adding: len(additions)}
	}

	var maxOrd int
	if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT coalesce(max(ord),-1) FROM %s`, tbl)).Scan(&maxOrd); err != nil {
		return err
	}

	for i, entry := range additions {
		var exists bool
		if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT exists(SELECT 1 FROM %s WHERE property_id=$1)`, tbl), entry.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return &SchemaEntryConflict{PropertyID: entry.ID}
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s(property_id, prop_type, ord) VALUES ($1,$2,$3)`, tbl),
			entry.ID, string(entry.Type), maxOrd+1+i); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
