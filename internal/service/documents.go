package service

import (
	"context"

	"centroid/internal/filter"
	"centroid/internal/ingest"
)

// IngestDocuments runs the ingestion pipeline (C9) for tenantID, passing
// through internal/ingest.Orchestrator.Ingest. Returns one Outcome per
// document that failed validation/embedding/commit/upsert; an empty slice
// means every document in the batch is now visible, per spec.md §6's
// `POST /documents` "201, or partial success with a warning list" contract.
func (s *Service) IngestDocuments(ctx context.Context, tenantID string, docs []ingest.Document) ([]ingest.Outcome, error) {
	t0 := s.clock.Now()
	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	schema, err := s.schema.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.stage(tenantID, "ingest", "load_schema", ms(s.clock.Now().Sub(t0)))

	t1 := s.clock.Now()
	outcomes, err := s.ing.Ingest(ctx, tenantID, tenant.IndexName, schema, docs)
	s.stage(tenantID, "ingest", "commit", ms(s.clock.Now().Sub(t1)))
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(docs); i++ {
		s.metrics.IncCounter("ingest_documents_total", map[string]string{"tenant": tenantID})
	}
	for i := 0; i < len(outcomes); i++ {
		s.metrics.IncCounter("ingest_failures_total", map[string]string{"tenant": tenantID})
	}
	return outcomes, nil
}

// DeleteDocuments removes a batch of documents from both stores, per
// spec.md §6's `DELETE /documents`.
func (s *Service) DeleteDocuments(ctx context.Context, tenantID string, ids []string) map[string]error {
	t0 := s.clock.Now()
	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return map[string]error{"*": err}
	}
	errs := s.ing.Delete(ctx, tenantID, tenant.IndexName, ids)
	s.stage(tenantID, "delete_documents", "commit", ms(s.clock.Now().Sub(t0)))
	for i := 0; i < len(ids); i++ {
		s.metrics.IncCounter("delete_documents_total", map[string]string{"tenant": tenantID})
	}
	return errs
}

// GetProperties, PutProperties, GetProperty, PutProperty, DeleteProperty
// pass through to internal/store after loading the tenant's current schema
// for validation, per spec.md §6's `/documents/{id}/properties[/{prop_id}]`
// surface.

func (s *Service) GetProperties(ctx context.Context, tenantID, documentID string) (map[string]any, error) {
	return s.store.GetProperties(ctx, tenantID, documentID)
}

func (s *Service) PutProperties(ctx context.Context, tenantID, documentID string, props map[string]any) error {
	schema, err := s.schema.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := s.store.PutProperties(ctx, tenantID, documentID, props, schema); err != nil {
		return err
	}
	doc, ok, err := s.store.GetDocument(ctx, tenantID, documentID)
	if err != nil || !ok {
		return err
	}
	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.vec.SetProperties(ctx, tenant.IndexName, documentID, props, doc.Tags, doc.IsCandidate)
}

func (s *Service) GetProperty(ctx context.Context, tenantID, documentID, propID string) (any, error) {
	return s.store.GetProperty(ctx, tenantID, documentID, propID)
}

func (s *Service) PutProperty(ctx context.Context, tenantID, documentID, propID string, value any) error {
	schema, err := s.schema.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := s.store.PutProperty(ctx, tenantID, documentID, propID, value, schema); err != nil {
		return err
	}
	props, err := s.store.GetProperties(ctx, tenantID, documentID)
	if err != nil {
		return err
	}
	doc, ok, err := s.store.GetDocument(ctx, tenantID, documentID)
	if err != nil || !ok {
		return err
	}
	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.vec.SetProperties(ctx, tenant.IndexName, documentID, props, doc.Tags, doc.IsCandidate)
}

func (s *Service) DeleteProperty(ctx context.Context, tenantID, documentID, propID string) error {
	return s.store.DeleteProperty(ctx, tenantID, documentID, propID)
}

// GetCandidates, SetCandidates, AddCandidates, RemoveCandidates pass through
// to internal/store, per spec.md §6's `/documents/_candidates` surface.

func (s *Service) GetCandidates(ctx context.Context, tenantID string) ([]string, error) {
	return s.store.GetCandidates(ctx, tenantID)
}

func (s *Service) SetCandidates(ctx context.Context, tenantID string, ids []string) map[string]error {
	return s.store.SetCandidates(ctx, tenantID, ids)
}

func (s *Service) AddCandidates(ctx context.Context, tenantID string, ids []string) map[string]error {
	return s.store.AddCandidates(ctx, tenantID, ids)
}

func (s *Service) RemoveCandidates(ctx context.Context, tenantID string, ids []string) map[string]error {
	return s.store.RemoveCandidates(ctx, tenantID, ids)
}

// GetSchema returns the tenant's indexed-property schema, served from the
// process-local TTL cache (internal/store.SchemaCache).
func (s *Service) GetSchema(ctx context.Context, tenantID string) (filter.Schema, error) {
	return s.schema.Get(ctx, tenantID)
}

// ExtendSchema adds new indexed properties to the tenant's schema. The
// backfill those new properties require (re-projecting existing documents'
// values into the vector store) is the background worker's job
// (internal/indexworker.Worker.backfillTenant); ExtendSchema itself only
// commits the schema row, per spec.md §4.10's "existing data left untouched".
func (s *Service) ExtendSchema(ctx context.Context, tenantID string, additions []filter.Entry) error {
	if err := s.store.ExtendSchema(ctx, tenantID, additions, s.cfg.Ingestion.MaxIndexedProperties); err != nil {
		return err
	}
	s.schema.Invalidate(ctx, tenantID)
	return nil
}
