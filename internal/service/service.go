// Package service is the façade (composing C1-C10) that turns the
// component packages into spec.md §6's external operations:
// RecordInteractions, Recommend, SemanticSearch, the ingestion/property/
// candidate/schema CRUD surface, and the silo-management operation list.
// Grounded on the teacher's internal/rag/service.Service: a thin struct of
// component handles plus Logger/Metrics/Clock, built with the functional
// options pattern, with each exported method timing its own stages via
// metrics.ObserveHistogram("..._stage_ms", ...) the way Service.Ingest does.
package service

import (
	"context"
	"fmt"
	"strconv"

	"centroid/internal/config"
	"centroid/internal/embedding"
	"centroid/internal/ingest"
	"centroid/internal/silo"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

// Service composes the component packages into the operations spec.md §6
// describes. One Service instance is shared process-wide across tenants;
// every method takes a tenant id and resolves its current index name via
// the silo catalog, since ChangeIndex can repoint it between calls.
type Service struct {
	store  *store.Store
	vec    *vectorstore.Client
	emb    *embedding.Registry
	silo   *silo.Manager
	ing    *ingest.Orchestrator
	schema *store.SchemaCache

	cfg config.Config

	log     Logger
	metrics Metrics
	clock   Clock
}

// New constructs a Service over the shared component handles and
// configuration. Callers must have already run silo.Manager.EnsureCatalog.
// When cfg.Redis.Enabled, the schema cache dials Redis to confirm
// connectivity up front, so New can fail; callers should also invoke
// Service.Start once, to subscribe to cross-instance invalidations.
func New(st *store.Store, vec *vectorstore.Client, emb *embedding.Registry, siloMgr *silo.Manager, cfg config.Config, opts ...Option) (*Service, error) {
	schemaCache, err := store.NewSchemaCache(st, cfg.Redis, cfg.Tenants.SchemaCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("service: build schema cache: %w", err)
	}
	s := &Service{
		store:   st,
		vec:     vec,
		emb:     emb,
		silo:    siloMgr,
		ing:     ingest.New(st, vec, emb),
		schema:  schemaCache,
		cfg:     cfg,
		log:     defaultLogger{},
		metrics: NoopMetrics{},
		clock:   SystemClock{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start subscribes the schema cache to cross-instance invalidations; a
// no-op when Redis isn't configured. Safe to call once per process after
// New.
func (s *Service) Start(ctx context.Context) {
	s.schema.Start(ctx)
}

// tenant resolves tenantID's current catalog row, failing with UnknownTenant
// if the silo has no record of it.
func (s *Service) tenant(ctx context.Context, tenantID string) (silo.Tenant, error) {
	t, err := s.silo.GetTenant(ctx, tenantID)
	if err != nil {
		return silo.Tenant{}, err
	}
	if t == nil {
		return silo.Tenant{}, &UnknownTenant{TenantID: tenantID}
	}
	return *t, nil
}

// snippetKey must match internal/vectorstore's and internal/store's private
// key formats exactly ("document_id/sub_id") — all three packages merge
// results keyed this way.
func snippetKey(documentID string, subID int) string {
	return documentID + "/" + strconv.Itoa(subID)
}

func parseSnippetKey(key string) (string, int, error) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			sub, err := strconv.Atoi(key[i+1:])
			if err != nil {
				return "", 0, fmt.Errorf("service: malformed snippet key %q", key)
			}
			return key[:i], sub, nil
		}
	}
	return "", 0, fmt.Errorf("service: malformed snippet key %q", key)
}

func (s *Service) stage(tenantID, op, stage string, ms int64) {
	s.metrics.ObserveHistogram("service_stage_ms", float64(ms), map[string]string{"op": op, "stage": stage, "tenant": tenantID})
}
