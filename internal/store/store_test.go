package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"centroid/internal/coi"
	"centroid/internal/embedding"
	"centroid/internal/filter"
	"centroid/internal/store"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if CENTROID_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CENTROID_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CENTROID_TEST_POSTGRES_DSN not set — skipping Postgres integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tenant := "test_" + t.Name()
	s := store.New(pool)
	t.Cleanup(func() { _ = s.DropTenantSchema(context.Background(), tenant) })
	require.NoError(t, s.DropTenantSchema(ctx, tenant))
	require.NoError(t, s.EnsureTenantSchema(ctx, tenant))
	return s, tenant
}

func TestEnsureTenantSchema_Idempotent(t *testing.T) {
	s, tenant := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureTenantSchema(ctx, tenant))

	schema, err := s.LoadSchema(ctx, tenant)
	require.NoError(t, err)
	typ, ok := schema.TypeOf("publication_date")
	require.True(t, ok)
	require.Equal(t, filter.TypeDate, typ)
}

func TestInsertAndGetDocument(t *testing.T) {
	s, tenant := newTestStore(t)
	ctx := context.Background()
	schema, err := s.LoadSchema(ctx, tenant)
	require.NoError(t, err)

	failed := s.InsertDocuments(ctx, tenant, schema, []store.IngestedDocument{
		{DocumentID: "d1", Tags: []string{"tech"}, Properties: map[string]any{"author": "a"}, DefaultIsCandidate: true},
	})
	require.Empty(t, failed)

	doc, ok, err := s.GetDocument(ctx, tenant, "d1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, doc.IsCandidate)
	require.Equal(t, []string{"tech"}, doc.Tags)
}

func TestInsertDocuments_PreservesCandidateFlagOnReingest(t *testing.T) {
	s, tenant := newTestStore(t)
	ctx := context.Background()
	schema, err := s.LoadSchema(ctx, tenant)
	require.NoError(t, err)

	s.InsertDocuments(ctx, tenant, schema, []store.IngestedDocument{
		{DocumentID: "d1", DefaultIsCandidate: true},
	})
	falseVal := false
	s.RemoveCandidates(ctx, tenant, []string{"d1"})

	failed := s.InsertDocuments(ctx, tenant, schema, []store.IngestedDocument{
		{DocumentID: "d1", DefaultIsCandidate: true, IsCandidate: nil},
	})
	require.Empty(t, failed)
	doc, _, err := s.GetDocument(ctx, tenant, "d1")
	require.NoError(t, err)
	require.False(t, doc.IsCandidate, "reingest without explicit override must preserve the cleared flag")

	failed = s.InsertDocuments(ctx, tenant, schema, []store.IngestedDocument{
		{DocumentID: "d1", IsCandidate: &falseVal},
	})
	require.Empty(t, failed)
}

func TestDeleteDocuments_RepeatDeleteReportsPartialFailure(t *testing.T) {
	s, tenant := newTestStore(t)
	ctx := context.Background()
	schema, err := s.LoadSchema(ctx, tenant)
	require.NoError(t, err)
	s.InsertDocuments(ctx, tenant, schema, []store.IngestedDocument{{DocumentID: "d1"}})

	failed := s.DeleteDocuments(ctx, tenant, []string{"d1"})
	require.Empty(t, failed)

	failed = s.DeleteDocuments(ctx, tenant, []string{"d1"})
	require.Len(t, failed, 1)
	require.Contains(t, failed, "d1")
}

func TestCandidateSetOperations(t *testing.T) {
	s, tenant := newTestStore(t)
	ctx := context.Background()
	schema, err := s.LoadSchema(ctx, tenant)
	require.NoError(t, err)
	s.InsertDocuments(ctx, tenant, schema, []store.IngestedDocument{
		{DocumentID: "d1"}, {DocumentID: "d2"}, {DocumentID: "d3"},
	})

	s.SetCandidates(ctx, tenant, []string{"d1", "d2"})
	cands, err := s.GetCandidates(ctx, tenant)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"d1", "d2"}, cands)

	s.RemoveCandidates(ctx, tenant, []string{"d1"})
	cands, err = s.GetCandidates(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, []string{"d2"}, cands)

	s.AddCandidates(ctx, tenant, []string{"d3"})
	cands, err = s.GetCandidates(ctx, tenant)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"d2", "d3"}, cands)
}

func TestUpdateInteractions_PersistsCoIsAndTagWeights(t *testing.T) {
	s, tenant := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	vec, err := embedding.Normalize("test", []float32{1, 0, 0, 0})
	require.NoError(t, err)

	err = s.UpdateInteractions(ctx, tenant, "u1", []string{"snippet-1"}, 0, true, now, func(cois []coi.CoI, tags map[string]int) ([]coi.CoI, map[string]int) {
		require.Empty(t, cois)
		tags["tech"] = tags["tech"] + 1
		return []coi.CoI{{ID: "c1", Point: vec, Stats: coi.Stats{ViewCount: 1, LastView: now}}}, tags
	})
	require.NoError(t, err)

	cois, err := s.GetCoIs(ctx, tenant, "u1")
	require.NoError(t, err)
	require.Len(t, cois, 1)
	require.Equal(t, "c1", cois[0].ID)

	weights, err := s.GetTagWeights(ctx, tenant, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, weights["tech"])
}

func TestExtendSchema_RejectsConflictAndOverLimit(t *testing.T) {
	s, tenant := newTestStore(t)
	ctx := context.Background()

	err := s.ExtendSchema(ctx, tenant, []filter.Entry{{ID: "author", Type: filter.TypeString}}, 0)
	require.NoError(t, err)

	err = s.ExtendSchema(ctx, tenant, []filter.Entry{{ID: "author", Type: filter.TypeString}}, 0)
	require.Error(t, err)
	var conflict *store.SchemaEntryConflict
	require.ErrorAs(t, err, &conflict)

	err = s.ExtendSchema(ctx, tenant, []filter.Entry{{ID: "a", Type: filter.TypeString}, {ID: "b", Type: filter.TypeString}}, 2)
	require.Error(t, err)
	var limitErr *store.SchemaLimitExceeded
	require.ErrorAs(t, err, &limitErr)
}
