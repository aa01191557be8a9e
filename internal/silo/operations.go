package silo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateTenant provisions a new tenant: a catalog row, a metadata schema
// (internal/store), and a vector index (internal/vectorstore), in that
// order. If a step after the catalog insert fails, the catalog row is
// removed again so CreateTenant can be retried (the insert itself is the
// only step that can conflict). isLegacy requests the legacy slot; at most
// one tenant may hold it (LegacyTenantExists otherwise).
func (m *Manager) CreateTenant(ctx context.Context, tenantID string, isLegacy bool) (Tenant, error) {
	indexName := defaultIndexName(tenantID)

	if isLegacy {
		existing, err := m.legacyTenant(ctx)
		if err != nil {
			return Tenant{}, err
		}
		if existing != nil {
			return Tenant{}, &LegacyTenantExists{ExistingTenantID: existing.TenantID}
		}
	}

	row := m.pool.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (tenant_id, index_name, is_legacy) VALUES ($1,$2,$3) RETURNING created_at`,
		m.tenantsTable()), tenantID, indexName, isLegacy)
	t := Tenant{TenantID: tenantID, IndexName: indexName, IsLegacy: isLegacy}
	if err := row.Scan(&t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Tenant{}, &TenantExists{TenantID: tenantID}
		}
		return Tenant{}, fmt.Errorf("silo: insert tenant %q: %w", tenantID, err)
	}

	err := m.store.EnsureTenantSchema(ctx, tenantID)
	if err == nil {
		err = m.ensureIndex(ctx, indexName)
	}
	if err != nil {
		_, _ = m.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, m.tenantsTable()), tenantID)
		return Tenant{}, err
	}
	return t, nil
}

// ensureIndex creates indexName if absent, aliasing it (leaving it
// untouched) if it already exists — spec.md §4.8's "if an index exists it
// is aliased rather than copied".
func (m *Manager) ensureIndex(ctx context.Context, indexName string) error {
	exists, err := m.vec.IndexExists(ctx, indexName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return m.vec.CreateIndex(ctx, indexName, m.dims)
}

// GetTenant returns the catalog row for tenantID, or (nil, nil) if unknown.
// internal/service calls this to resolve a tenant's current index_name
// before every store/vectorstore operation, since ChangeIndex can repoint
// it at any time.
func (m *Manager) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	return m.getTenant(ctx, tenantID)
}

// DeleteTenant removes a tenant's catalog row, metadata schema, and vector
// index. Returns (nil, nil) — not an error — when tenantID is unknown,
// mirroring the original silo-management API's Option<Tenant> result.
func (m *Manager) DeleteTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	tenant, err := m.getTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, nil
	}

	if _, err := m.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, m.tenantsTable()), tenantID); err != nil {
		return nil, fmt.Errorf("silo: delete tenant %q: %w", tenantID, err)
	}
	if err := m.store.DropTenantSchema(ctx, tenantID); err != nil {
		return nil, err
	}

	stillReferenced, err := m.indexReferenced(ctx, tenant.IndexName)
	if err != nil {
		return nil, err
	}
	if !stillReferenced {
		if err := m.vec.DeleteIndex(ctx, tenant.IndexName); err != nil {
			return nil, err
		}
	}
	return tenant, nil
}

// ListTenants returns every tenant in the catalog, ordered by tenant_id for
// deterministic output.
func (m *Manager) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := m.pool.Query(ctx, fmt.Sprintf(
		`SELECT tenant_id, index_name, is_legacy, created_at FROM %s ORDER BY tenant_id`, m.tenantsTable()))
	if err != nil {
		return nil, fmt.Errorf("silo: list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.TenantID, &t.IndexName, &t.IsLegacy, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// ChangeIndex repoints tenantID at newIndexName. newIndexName must already
// exist (IndexNotFound otherwise); the switch never creates, copies, or
// deletes index data, per spec.md §4.8.
func (m *Manager) ChangeIndex(ctx context.Context, tenantID, newIndexName string) error {
	tenant, err := m.getTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return &TenantNotFound{TenantID: tenantID}
	}

	exists, err := m.vec.IndexExists(ctx, newIndexName)
	if err != nil {
		return err
	}
	if !exists {
		return &IndexNotFound{IndexName: newIndexName}
	}

	_, err = m.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET index_name = $1 WHERE tenant_id = $2`, m.tenantsTable()),
		newIndexName, tenantID)
	if err != nil {
		return fmt.Errorf("silo: change index for tenant %q: %w", tenantID, err)
	}
	return nil
}

// AdoptLegacyTenant runs the startup legacy-migration step (spec.md §4.8):
// if a legacy tenant is already recorded it is returned unchanged
// (idempotent across restarts); otherwise tenantID is adopted with
// legacyIndexName as its index, aliasing it if it already exists or
// creating it fresh otherwise.
func (m *Manager) AdoptLegacyTenant(ctx context.Context, tenantID, legacyIndexName string) (Tenant, error) {
	existing, err := m.legacyTenant(ctx)
	if err != nil {
		return Tenant{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	row := m.pool.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (tenant_id, index_name, is_legacy) VALUES ($1,$2,true) RETURNING created_at`,
		m.tenantsTable()), tenantID, legacyIndexName)
	t := Tenant{TenantID: tenantID, IndexName: legacyIndexName, IsLegacy: true}
	if err := row.Scan(&t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Tenant{}, &TenantExists{TenantID: tenantID}
		}
		return Tenant{}, fmt.Errorf("silo: adopt legacy tenant %q: %w", tenantID, err)
	}

	if err := m.store.EnsureTenantSchema(ctx, tenantID); err != nil {
		return Tenant{}, err
	}
	if err := m.ensureIndex(ctx, legacyIndexName); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func (m *Manager) getTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	row := m.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT tenant_id, index_name, is_legacy, created_at FROM %s WHERE tenant_id = $1`, m.tenantsTable()), tenantID)
	var t Tenant
	if err := row.Scan(&t.TenantID, &t.IndexName, &t.IsLegacy, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("silo: get tenant %q: %w", tenantID, err)
	}
	return &t, nil
}

func (m *Manager) legacyTenant(ctx context.Context) (*Tenant, error) {
	row := m.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT tenant_id, index_name, is_legacy, created_at FROM %s WHERE is_legacy LIMIT 1`, m.tenantsTable()))
	var t Tenant
	if err := row.Scan(&t.TenantID, &t.IndexName, &t.IsLegacy, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("silo: load legacy tenant: %w", err)
	}
	return &t, nil
}

func (m *Manager) indexReferenced(ctx context.Context, indexName string) (bool, error) {
	row := m.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT exists(SELECT 1 FROM %s WHERE index_name = $1)`, m.tenantsTable()), indexName)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("silo: check index reference %q: %w", indexName, err)
	}
	return exists, nil
}
