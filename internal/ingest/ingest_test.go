package ingest_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"centroid/internal/embedding"
	"centroid/internal/filter"
	"centroid/internal/ingest"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

// fakeBackend returns a deterministic unit vector so embedding never fails
// in these tests; documents that fail validation (empty snippet, NUL byte)
// never reach it.
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

type failingBackend struct{ err error }

func (f *failingBackend) Embed(context.Context, embedding.Kind, []string) ([]embedding.Vector, error) {
	return nil, f.err
}
func (f *failingBackend) Name() string               { return "failing" }
func (f *failingBackend) Dimension() int             { return 4 }
func (f *failingBackend) Ping(context.Context) error { return nil }

func newRegistry(t *testing.T, backend embedding.Backend) *embedding.Registry {
	t.Helper()
	reg, err := embedding.NewRegistry(map[string]embedding.Backend{"default": backend}, "default")
	require.NoError(t, err)
	return reg
}

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CENTROID_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CENTROID_TEST_POSTGRES_DSN not set — skipping ingest integration tests")
	}
	return dsn
}

func testQdrantConfig(t *testing.T) vectorstore.Config {
	t.Helper()
	host := os.Getenv("CENTROID_TEST_QDRANT_HOST")
	if host == "" {
		t.Skip("CENTROID_TEST_QDRANT_HOST not set — skipping ingest integration tests")
	}
	return vectorstore.Config{Host: host}
}

func newTestEnv(t *testing.T, backend embedding.Backend) (*ingest.Orchestrator, *store.Store, string, string) {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	vec, err := vectorstore.NewClient(testQdrantConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vec.Close() })

	st := store.New(pool)
	tenant := "ingest_" + t.Name()
	require.NoError(t, st.EnsureTenantSchema(ctx, tenant))
	t.Cleanup(func() { _ = st.DropTenantSchema(context.Background(), tenant) })

	indexName := "ingest_" + t.Name()
	require.NoError(t, vec.CreateIndex(ctx, indexName, backend.Dimension()))
	t.Cleanup(func() { _ = vec.DeleteIndex(context.Background(), indexName) })

	o := ingest.New(st, vec, newRegistry(t, backend))
	return o, st, tenant, indexName
}

func TestIngest_ValidationFailuresDoNotReachEmbeddingOrStorage(t *testing.T) {
	o, _, tenant, indexName := newTestEnv(t, &fakeBackend{dim: 4})
	ctx := context.Background()
	schema := filter.NewSchema(nil)

	outcomes, err := o.Ingest(ctx, tenant, indexName, schema, []ingest.Document{
		{DocumentID: "empty", Snippet: ""},
		{DocumentID: "nul", Snippet: "bad\x00text"},
		{DocumentID: "ok", Snippet: "hello world", DefaultIsCandidate: true},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	kinds := map[string]ingest.FailureKind{}
	for _, o := range outcomes {
		kinds[o.DocumentID] = o.Kind
	}
	require.Equal(t, ingest.KindInvalidDocument, kinds["empty"])
	require.Equal(t, ingest.KindInvalidDocument, kinds["nul"])
}

func TestIngest_EmbeddingFailureIsolatesDocument(t *testing.T) {
	wantErr := errors.New("backend down")
	o, _, tenant, indexName := newTestEnv(t, &failingBackend{err: wantErr})
	ctx := context.Background()
	schema := filter.NewSchema(nil)

	outcomes, err := o.Ingest(ctx, tenant, indexName, schema, []ingest.Document{
		{DocumentID: "a", Snippet: "hello", DefaultIsCandidate: true},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, ingest.KindEmbeddingFailed, outcomes[0].Kind)
}

func TestIngest_CommitAndUpsertSucceed(t *testing.T) {
	o, st, tenant, indexName := newTestEnv(t, &fakeBackend{dim: 4})
	ctx := context.Background()
	schema := filter.NewSchema(nil)

	outcomes, err := o.Ingest(ctx, tenant, indexName, schema, []ingest.Document{
		{DocumentID: "doc-1", Snippet: "hello world", DefaultIsCandidate: true},
	})
	require.NoError(t, err)
	require.Empty(t, outcomes)

	doc, ok, err := st.GetDocument(ctx, tenant, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, doc.IsCandidate)
}

func TestIngest_Delete(t *testing.T) {
	o, _, tenant, indexName := newTestEnv(t, &fakeBackend{dim: 4})
	ctx := context.Background()
	schema := filter.NewSchema(nil)

	_, err := o.Ingest(ctx, tenant, indexName, schema, []ingest.Document{
		{DocumentID: "doc-1", Snippet: "hello world", DefaultIsCandidate: true},
	})
	require.NoError(t, err)

	failed := o.Delete(ctx, tenant, indexName, []string{"doc-1"})
	require.Empty(t, failed)

	failed = o.Delete(ctx, tenant, indexName, []string{"doc-1"})
	require.NotEmpty(t, failed)
}
