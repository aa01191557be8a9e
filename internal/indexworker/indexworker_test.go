package indexworker_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"centroid/internal/embedding"
	"centroid/internal/filter"
	"centroid/internal/indexworker"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

type fakeBackend struct{ dim int }

func (f *fakeBackend) Embed(_ context.Context, _ embedding.Kind, texts []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(texts))
	for i := range texts {
		v := make(embedding.Vector, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}
func (f *fakeBackend) Name() string               { return "fake" }
func (f *fakeBackend) Dimension() int             { return f.dim }
func (f *fakeBackend) Ping(context.Context) error { return nil }

type staticTenants []indexworker.Tenant

func (s staticTenants) Tenants(context.Context) ([]indexworker.Tenant, error) { return s, nil }

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CENTROID_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CENTROID_TEST_POSTGRES_DSN not set — skipping indexworker integration tests")
	}
	return dsn
}

func testQdrantConfig(t *testing.T) vectorstore.Config {
	t.Helper()
	host := os.Getenv("CENTROID_TEST_QDRANT_HOST")
	if host == "" {
		t.Skip("CENTROID_TEST_QDRANT_HOST not set — skipping indexworker integration tests")
	}
	return vectorstore.Config{Host: host}
}

func TestWorker_ReconcilesQueuedDocument(t *testing.T) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testDSN(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	vec, err := vectorstore.NewClient(testQdrantConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vec.Close() })

	st := store.New(pool)
	tenant := "worker_" + t.Name()
	require.NoError(t, st.EnsureTenantSchema(ctx, tenant))
	t.Cleanup(func() { _ = st.DropTenantSchema(context.Background(), tenant) })

	indexName := "centroid_test_" + t.Name()
	require.NoError(t, vec.CreateIndex(ctx, indexName, 4))
	t.Cleanup(func() { _ = vec.DeleteIndex(context.Background(), indexName) })

	// Simulate C9's commit-succeeds/upsert-fails split directly: commit the
	// document and snippet text, but never call vec.Upsert, then enqueue it.
	require.Empty(t, st.InsertDocuments(ctx, tenant, filter.NewSchema(nil), []store.IngestedDocument{
		{DocumentID: "doc-1", DefaultIsCandidate: true},
	}))
	require.NoError(t, st.PutSnippet(ctx, tenant, "doc-1", 0, "hello world"))
	require.NoError(t, st.EnqueueReconciliation(ctx, tenant, "doc-1"))

	reg, err := embedding.NewRegistry(map[string]embedding.Backend{"default": &fakeBackend{dim: 4}}, "default")
	require.NoError(t, err)

	w := indexworker.New(st, vec, reg, staticTenants{{TenantID: tenant, IndexName: indexName}}, 10, time.Millisecond)
	w.Start(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		batch, err := st.ReconciliationBatch(ctx, tenant, 10)
		return err == nil && len(batch) == 0
	}, 2*time.Second, 20*time.Millisecond, "queued document should be reconciled")
}
