package service_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"centroid/internal/config"
	"centroid/internal/embedding"
	"centroid/internal/filter"
	"centroid/internal/ingest"
	"centroid/internal/service"
	"centroid/internal/silo"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

// fakeBackend maps snippet text to one of three one-hot vectors by keyword,
// giving Recommend/SemanticSearch something non-degenerate to rank, the same
// deterministic-embedding idiom internal/indexworker's test suite uses.
type fakeBackend struct{ dim int }

func (f *fakeBackend) Embed(_ context.Context, _ embedding.Kind, texts []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(texts))
	for i, text := range texts {
		v := make(embedding.Vector, f.dim)
		switch {
		case contains(text, "cats"):
			v[0] = 1
		case contains(text, "dogs"):
			v[1] = 1
		default:
			v[2] = 1
		}
		out[i] = v
	}
	return out, nil
}
func (f *fakeBackend) Name() string               { return "fake" }
func (f *fakeBackend) Dimension() int             { return f.dim }
func (f *fakeBackend) Ping(context.Context) error { return nil }

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CENTROID_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CENTROID_TEST_POSTGRES_DSN not set — skipping service integration tests")
	}
	return dsn
}

func testQdrantConfig(t *testing.T) vectorstore.Config {
	t.Helper()
	host := os.Getenv("CENTROID_TEST_QDRANT_HOST")
	if host == "" {
		t.Skip("CENTROID_TEST_QDRANT_HOST not set — skipping service integration tests")
	}
	return vectorstore.Config{Host: host}
}

// testHarness wires one Service plus its tenant over throwaway Postgres
// schema / Qdrant collection, cleaned up on test completion.
type testHarness struct {
	svc      *service.Service
	silo     *silo.Manager
	tenantID string
}

func newTestHarness(t *testing.T, dim int) *testHarness {
	t.Helper()
	return newTestHarnessWithConfig(t, dim, nil)
}

// newTestHarnessWithConfig is newTestHarness with a hook to tweak the
// config.Defaults() before the Service is constructed, e.g. to flip on a
// tenant-level flag like enable_dev.
func newTestHarnessWithConfig(t *testing.T, dim int, tweak func(*config.Config)) *testHarness {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	vec, err := vectorstore.NewClient(testQdrantConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vec.Close() })

	st := store.New(pool)
	adminSchema := "test_silo_svc_" + t.Name()
	mgr := silo.New(pool, st, vec, adminSchema, dim)
	require.NoError(t, mgr.EnsureCatalog(ctx))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+adminSchema+` CASCADE`)
	})

	reg, err := embedding.NewRegistry(map[string]embedding.Backend{"default": &fakeBackend{dim: dim}}, "default")
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.CoI.MinCoIs = 1
	cfg.CoI.Threshold = 0.99 // force every reaction onto a new CoI so 2 distinct topics -> 2 CoIs
	cfg.Vector.Dimensions = dim
	if tweak != nil {
		tweak(&cfg)
	}

	svc, err := service.New(st, vec, reg, mgr, cfg)
	require.NoError(t, err)

	tenantID := "svc_" + t.Name()
	tenant, err := mgr.CreateTenant(ctx, tenantID, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = mgr.DeleteTenant(context.Background(), tenantID)
	})
	require.NotEmpty(t, tenant.IndexName)

	return &testHarness{svc: svc, silo: mgr, tenantID: tenantID}
}

func TestService_IngestRecordRecommendSearch(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, 4)

	outcomes, err := h.svc.IngestDocuments(ctx, h.tenantID, []ingest.Document{
		{DocumentID: "doc-cats", Snippet: "all about cats", DefaultIsCandidate: true},
		{DocumentID: "doc-dogs", Snippet: "all about dogs", DefaultIsCandidate: true},
		{DocumentID: "doc-other", Snippet: "something else entirely", DefaultIsCandidate: true},
	})
	require.NoError(t, err)
	require.Empty(t, outcomes)

	userID := "user-1"
	err = h.svc.RecordInteractions(ctx, h.tenantID, userID, []service.InteractionRef{
		{DocumentID: "doc-cats", SubID: 0},
	})
	require.NoError(t, err)

	err = h.svc.RecordInteractions(ctx, h.tenantID, userID, []service.InteractionRef{
		{DocumentID: "doc-dogs", SubID: 0},
	})
	require.NoError(t, err)

	docs, err := h.svc.Recommend(ctx, h.tenantID, userID, service.RecommendRequest{Count: 3})
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	for i := 1; i < len(docs); i++ {
		require.GreaterOrEqual(t, docs[i-1].Score, docs[i].Score, "recommend results must be non-increasing by score")
	}

	results, warnings, err := h.svc.SemanticSearch(ctx, h.tenantID, service.SemanticSearchRequest{
		Document: service.DocumentSelector{Query: "cats"},
		Count:    3,
	})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.NotEmpty(t, results)
	require.Equal(t, "doc-cats", results[0].DocumentID)
}

func TestService_SemanticSearchDev_DisabledByDefault(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, 4)

	_, _, err := h.svc.SemanticSearchDev(ctx, h.tenantID, service.SemanticSearchDevRequest{
		Document: service.DocumentSelector{Query: "cats"},
		Count:    3,
	})
	var disabled *service.DevDisabled
	require.ErrorAs(t, err, &disabled)
}

func TestService_SemanticSearchDev_CustomNormalizeAndMerge(t *testing.T) {
	ctx := context.Background()
	h := newTestHarnessWithConfig(t, 4, func(cfg *config.Config) { cfg.Tenants.EnableDev = true })

	outcomes, err := h.svc.IngestDocuments(ctx, h.tenantID, []ingest.Document{
		{DocumentID: "doc-cats", Snippet: "all about cats", DefaultIsCandidate: true},
		{DocumentID: "doc-dogs", Snippet: "all about dogs", DefaultIsCandidate: true},
	})
	require.NoError(t, err)
	require.Empty(t, outcomes)

	docs, warnings, err := h.svc.SemanticSearchDev(ctx, h.tenantID, service.SemanticSearchDevRequest{
		Document:         service.DocumentSelector{Query: "cats"},
		Count:            2,
		NormalizeVector:  "normalize",
		NormalizeLexical: "normalize_if_max_gt_1",
		Merge:            "rrf",
		MergeK:           60,
	})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.NotEmpty(t, docs)
	require.Equal(t, "doc-cats", docs[0].DocumentID)
}

func TestService_RecommendFailsBelowMinCoIs(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, 4)

	_, err := h.svc.Recommend(ctx, h.tenantID, "brand-new-user", service.RecommendRequest{Count: 3})
	require.Error(t, err)
	var notEnough *service.NotEnoughInteractions
	require.ErrorAs(t, err, &notEnough)
}

func TestService_RunSiloOperations_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, 4)

	results := h.svc.RunSiloOperations(ctx, []service.SiloOperation{
		{Kind: service.SiloOpListTenants},
	})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.NotEmpty(t, results[0].Tenants)

	del := h.svc.RunSiloOperations(ctx, []service.SiloOperation{
		{Kind: service.SiloOpDeleteTenant, TenantID: h.tenantID},
	})
	require.Len(t, del, 1)
	require.NoError(t, del[0].Err)
	require.NotNil(t, del[0].Tenant)

	_, err := h.svc.Recommend(ctx, h.tenantID, "user-1", service.RecommendRequest{Count: 3})
	require.Error(t, err)
	var unknown *service.UnknownTenant
	require.ErrorAs(t, err, &unknown)
}

func TestService_UnknownTenantRejected(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, 4)

	_, err := h.svc.Recommend(ctx, "no-such-tenant-"+time.Now().Format("20060102150405"), "user-1", service.RecommendRequest{Count: 1})
	require.Error(t, err)
	var unknown *service.UnknownTenant
	require.ErrorAs(t, err, &unknown)
}

func TestService_SchemaAndPropertyCRUD(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, 4)

	_, err := h.svc.IngestDocuments(ctx, h.tenantID, []ingest.Document{
		{DocumentID: "doc-1", Snippet: "a document", DefaultIsCandidate: true},
	})
	require.NoError(t, err)

	require.NoError(t, h.svc.ExtendSchema(ctx, h.tenantID, []filter.Entry{{ID: "rating", Type: filter.TypeNumber}}))

	schema, err := h.svc.GetSchema(ctx, h.tenantID)
	require.NoError(t, err)
	require.True(t, schema.Has("rating"))

	require.NoError(t, h.svc.PutProperty(ctx, h.tenantID, "doc-1", "rating", 4.5))

	got, err := h.svc.GetProperty(ctx, h.tenantID, "doc-1", "rating")
	require.NoError(t, err)
	require.EqualValues(t, 4.5, got)

	props, err := h.svc.GetProperties(ctx, h.tenantID, "doc-1")
	require.NoError(t, err)
	require.Contains(t, props, "rating")

	require.NoError(t, h.svc.DeleteProperty(ctx, h.tenantID, "doc-1", "rating"))
}

func TestService_CandidateFlagToggle(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, 4)

	_, err := h.svc.IngestDocuments(ctx, h.tenantID, []ingest.Document{
		{DocumentID: "doc-1", Snippet: "a document", DefaultIsCandidate: false},
	})
	require.NoError(t, err)

	errs := h.svc.AddCandidates(ctx, h.tenantID, []string{"doc-1"})
	require.Empty(t, errs)

	ids, err := h.svc.GetCandidates(ctx, h.tenantID)
	require.NoError(t, err)
	require.Contains(t, ids, "doc-1")

	errs = h.svc.RemoveCandidates(ctx, h.tenantID, []string{"doc-1"})
	require.Empty(t, errs)

	ids, err = h.svc.GetCandidates(ctx, h.tenantID)
	require.NoError(t, err)
	require.NotContains(t, ids, "doc-1")
}
