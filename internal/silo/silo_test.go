package silo_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"centroid/internal/silo"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CENTROID_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CENTROID_TEST_POSTGRES_DSN not set — skipping silo integration tests")
	}
	return dsn
}

func testQdrantConfig(t *testing.T) vectorstore.Config {
	t.Helper()
	host := os.Getenv("CENTROID_TEST_QDRANT_HOST")
	if host == "" {
		t.Skip("CENTROID_TEST_QDRANT_HOST not set — skipping silo integration tests")
	}
	return vectorstore.Config{Host: host}
}

func newTestManager(t *testing.T) (*silo.Manager, string) {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	vec, err := vectorstore.NewClient(testQdrantConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vec.Close() })

	adminSchema := "test_silo_" + t.Name()
	st := store.New(pool)
	m := silo.New(pool, st, vec, adminSchema, 4)
	require.NoError(t, m.EnsureCatalog(ctx))

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+adminSchema+` CASCADE`)
	})
	return m, adminSchema
}

func TestCreateListDeleteTenant(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	tenantID := "t_" + t.Name()
	t.Cleanup(func() { _, _ = m.DeleteTenant(context.Background(), tenantID) })

	tenant, err := m.CreateTenant(ctx, tenantID, false)
	require.NoError(t, err)
	require.Equal(t, tenantID, tenant.TenantID)
	require.False(t, tenant.IsLegacy)

	_, err = m.CreateTenant(ctx, tenantID, false)
	require.Error(t, err)
	var exists *silo.TenantExists
	require.ErrorAs(t, err, &exists)

	tenants, err := m.ListTenants(ctx)
	require.NoError(t, err)
	found := false
	for _, tn := range tenants {
		if tn.TenantID == tenantID {
			found = true
		}
	}
	require.True(t, found)

	deleted, err := m.DeleteTenant(ctx, tenantID)
	require.NoError(t, err)
	require.NotNil(t, deleted)

	again, err := m.DeleteTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestCreateTenant_RejectsSecondLegacy(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	a := "a_" + t.Name()
	b := "b_" + t.Name()
	t.Cleanup(func() {
		_, _ = m.DeleteTenant(context.Background(), a)
		_, _ = m.DeleteTenant(context.Background(), b)
	})

	_, err := m.CreateTenant(ctx, a, true)
	require.NoError(t, err)

	_, err = m.CreateTenant(ctx, b, true)
	require.Error(t, err)
	var legacyErr *silo.LegacyTenantExists
	require.ErrorAs(t, err, &legacyErr)
}

func TestChangeIndex_RequiresExistingIndex(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	tenantID := "t_" + t.Name()
	t.Cleanup(func() { _, _ = m.DeleteTenant(context.Background(), tenantID) })

	tenant, err := m.CreateTenant(ctx, tenantID, false)
	require.NoError(t, err)

	err = m.ChangeIndex(ctx, tenantID, "nonexistent_index_"+t.Name())
	require.Error(t, err)
	var notFound *silo.IndexNotFound
	require.ErrorAs(t, err, &notFound)

	err = m.ChangeIndex(ctx, tenantID, tenant.IndexName)
	require.NoError(t, err)
}
