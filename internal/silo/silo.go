// Package silo implements the tenant lifecycle manager (C8): create/delete/
// list tenants, legacy-tenant adoption, and index-pointer migration
// (change_es_index), co-ordinating a per-tenant internal/store schema with
// a per-tenant internal/vectorstore index. Grounded on internal/store's own
// admin-schema bootstrap idiom (plain SQL, CREATE ... IF NOT EXISTS,
// pgx.Identifier quoting) applied to a shared catalog schema rather than a
// per-tenant one.
package silo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

// Tenant is one row of the silo catalog, mirroring the original
// discovery-engine's Tenant record: an opaque id, the index it currently
// points to, and whether it is the adopted legacy tenant.
type Tenant struct {
	TenantID  string
	IndexName string
	IsLegacy  bool
	CreatedAt time.Time
}

// TenantExists reports a CreateTenant call for a tenant_id already present
// in the catalog.
type TenantExists struct{ TenantID string }

func (e *TenantExists) Error() string { return fmt.Sprintf("silo: tenant %q already exists", e.TenantID) }

// TenantNotFound reports an operation (ChangeIndex) naming a tenant_id the
// catalog has no row for.
type TenantNotFound struct{ TenantID string }

func (e *TenantNotFound) Error() string { return fmt.Sprintf("silo: tenant %q not found", e.TenantID) }

// LegacyTenantExists reports a CreateTenant{is_legacy: true} call when
// another tenant already holds the legacy slot (spec.md §4.8: "exactly one
// tenant MAY be marked legacy").
type LegacyTenantExists struct{ ExistingTenantID string }

func (e *LegacyTenantExists) Error() string {
	return fmt.Sprintf("silo: legacy tenant already assigned to %q", e.ExistingTenantID)
}

// IndexNotFound reports a ChangeIndex call naming a vector index that
// doesn't exist yet; per spec.md §4.8 the switch never creates one.
type IndexNotFound struct{ IndexName string }

func (e *IndexNotFound) Error() string {
	return fmt.Sprintf("silo: index %q the tenant is supposed to switch to doesn't exist", e.IndexName)
}

var indexNameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func defaultIndexName(tenantID string) string {
	out := indexNameInvalidChars.ReplaceAllString(tenantID, "_")
	if out == "" {
		out = "default"
	}
	if len(out) > 55 { // keep "centroid_"+out within the 64-character index-name limit
		out = out[:55]
	}
	return "centroid_" + out
}

// Manager owns the silo catalog (in a shared admin schema) and co-ordinates
// per-tenant store schema and vector index lifecycle.
type Manager struct {
	pool        *pgxpool.Pool
	store       *store.Store
	vec         *vectorstore.Client
	adminSchema string
	dims        int
}

// New constructs a Manager. dims is the embedding dimension new tenant
// indexes are created with (internal/config's VectorConfig.Dimensions).
func New(pool *pgxpool.Pool, st *store.Store, vec *vectorstore.Client, adminSchema string, dims int) *Manager {
	return &Manager{pool: pool, store: st, vec: vec, adminSchema: adminSchema, dims: dims}
}

func (m *Manager) schemaIdent() string { return pgx.Identifier{m.adminSchema}.Sanitize() }
func (m *Manager) tenantsTable() string {
	return pgx.Identifier{m.adminSchema, "tenants"}.Sanitize()
}

// EnsureCatalog creates the admin schema and its tenants table if absent.
// Idempotent; called once at process start-up before any other Manager method.
func (m *Manager) EnsureCatalog(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, m.schemaIdent()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			tenant_id TEXT PRIMARY KEY,
			index_name TEXT NOT NULL,
			is_legacy BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, m.tenantsTable()),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (is_legacy) WHERE is_legacy`,
			pgx.Identifier{m.adminSchema + "_tenants_legacy_uidx"}.Sanitize(), m.tenantsTable()),
	}
	for _, stmt := range stmts {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("silo: bootstrap catalog: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
