// Package store implements the tenant-scoped metadata store (C6): documents,
// snippets, properties, the candidate flag, interactions, users, CoIs, tag
// weights, and the indexed-property schema, each isolated in a per-tenant
// Postgres schema. Grounded on the teacher's pgx bootstrap idiom
// (internal/persistence/databases/postgres_search.go, postgres_vector.go):
// plain SQL, CREATE ... IF NOT EXISTS in the constructor, pgxpool for
// connection pooling.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a tenant-scoped metadata store handle backed by a single pool
// shared across tenants; each tenant's tables live in their own Postgres
// schema (see SchemaName).
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pgxpool.Pool. Callers construct the pool (see
// internal/config for DSN/pool sizing) so it can be shared with other
// per-process consumers.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SchemaName returns the sanitized per-tenant schema identifier. tenant_id is
// an opaque string (§3); prefixing avoids collision with the shared admin
// schema and keeps generated identifiers valid regardless of tenant_id's
// exact character set.
func SchemaName(tenantID string) string {
	return "tenant_" + sanitizeIdent(tenantID)
}

func sanitizeIdent(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		out = []byte("default")
	}
	return string(out)
}

// qualify returns a safely-quoted "schema"."table" identifier.
func qualify(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// EnsureTenantSchema creates the per-tenant schema and its tables if they do
// not already exist. Idempotent; called by internal/silo on tenant creation
// and legacy-tenant adoption.
func (s *Store) EnsureTenantSchema(ctx context.Context, tenantID string) error {
	schema := SchemaName(tenantID)
	schemaIdent := pgx.Identifier{schema}.Sanitize()

	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schemaIdent),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id TEXT PRIMARY KEY,
			is_candidate BOOLEAN NOT NULL DEFAULT true,
			tags TEXT[] NOT NULL DEFAULT '{}',
			properties JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, qualify(schema, "documents")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id TEXT NOT NULL,
			sub_id INT NOT NULL,
			text TEXT NOT NULL,
			ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(text,''))) STORED,
			PRIMARY KEY (document_id, sub_id)
		)`, qualify(schema, "snippets")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (ts)`,
			pgx.Identifier{schema + "_snippets_ts_idx"}.Sanitize(), qualify(schema, "snippets")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT PRIMARY KEY,
			last_seen TIMESTAMPTZ
		)`, qualify(schema, "users")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			coi_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES %s(user_id) ON DELETE CASCADE,
			point REAL[] NOT NULL,
			view_count INT NOT NULL DEFAULT 0,
			view_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_view TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, qualify(schema, "cois"), qualify(schema, "users")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (user_id)`,
			pgx.Identifier{schema + "_cois_user_idx"}.Sanitize(), qualify(schema, "cois")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			weight INT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, tag)
		)`, qualify(schema, "tag_weights")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			sub_id INT NOT NULL DEFAULT 0,
			ts TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, qualify(schema, "interactions")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			property_id TEXT PRIMARY KEY,
			prop_type TEXT NOT NULL,
			ord INT NOT NULL
		)`, qualify(schema, "indexed_properties")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id TEXT PRIMARY KEY,
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			attempts INT NOT NULL DEFAULT 0
		)`, qualify(schema, "reconcile_queue")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id TEXT PRIMARY KEY
		)`, qualify(schema, "schema_backfill_cursor")),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: bootstrap tenant schema %q: %w", tenantID, err)
		}
	}
	// publication_date is implicitly present in every schema, per spec.md §3.
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s(property_id, prop_type, ord) VALUES ('publication_date','date',0) ON CONFLICT DO NOTHING`,
		qualify(schema, "indexed_properties")))
	if err != nil {
		return fmt.Errorf("store: seed publication_date schema entry: %w", err)
	}
	return nil
}

// DropTenantSchema deletes a tenant's schema and all its data. Called by
// internal/silo on tenant deletion.
func (s *Store) DropTenantSchema(ctx context.Context, tenantID string) error {
	schemaIdent := pgx.Identifier{SchemaName(tenantID)}.Sanitize()
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, schemaIdent))
	if err != nil {
		return fmt.Errorf("store: drop tenant schema %q: %w", tenantID, err)
	}
	return nil
}
