// Package indexworker implements the background index-update worker (C10):
// after extend_schema adds new indexed-property ids, this worker walks every
// existing document and re-emits its properties sub-document to the vector
// index so the new fields become queryable (spec.md §4.10). It also drains
// internal/ingest's reconciliation queue — commit-succeeded/upsert-failed
// documents from C9 — on the same cadence, since both are "catch the vector
// index up with the metadata store" work over the same per-tenant scan.
//
// Grounded on the teacher's internal/mcpclient/pool.go StartReaper: a
// goroutine wrapping a time.Ticker in a select against ctx.Done(), started
// and stopped by the caller rather than self-scheduling.
package indexworker

import (
	"context"
	"time"

	"centroid/internal/embedding"
	"centroid/internal/observability"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

// Tenant is the slice of silo state the worker needs per tenant: its id and
// its current vector index name.
type Tenant struct {
	TenantID  string
	IndexName string
}

// TenantSource supplies the current tenant list on each pass; internal/silo
// satisfies this via a thin adapter in the service façade, keeping this
// package free of a direct dependency on internal/silo.
type TenantSource interface {
	Tenants(ctx context.Context) ([]Tenant, error)
}

// Metrics is the counters/histograms surface the worker emits against;
// internal/obsmetrics.OtelMetrics satisfies this structurally, the same way
// it satisfies internal/service.Metrics, so the same instance can be handed
// to both without either package importing the other.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, map[string]string)                {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// Option configures a Worker during construction.
type Option func(*Worker)

// WithMetrics sets a custom metrics collector in place of the no-op default.
func WithMetrics(m Metrics) Option { return func(w *Worker) { w.metrics = m } }

// Worker runs the backfill and reconciliation passes. BatchSize and Sleep
// come from config.IngestionConfig.IndexUpdate, per spec.md §4.10's
// "configurable batch size and inter-batch sleep".
type Worker struct {
	store      *store.Store
	vec        *vectorstore.Client
	embeddings *embedding.Registry
	tenants    TenantSource
	batchSize  int
	sleep      time.Duration
	metrics    Metrics
}

// New constructs a Worker. batchSize and sleep are clamped to sane minimums
// so a zero-value config doesn't spin the backfill loop hot.
func New(st *store.Store, vec *vectorstore.Client, embeddings *embedding.Registry, tenants TenantSource, batchSize int, sleep time.Duration, opts ...Option) *Worker {
	if batchSize <= 0 {
		batchSize = 200
	}
	if sleep <= 0 {
		sleep = 50 * time.Millisecond
	}
	w := &Worker{store: st, vec: vec, embeddings: embeddings, tenants: tenants, batchSize: batchSize, sleep: sleep, metrics: noopMetrics{}}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start runs one pass every interval until ctx is cancelled. Each pass
// iterates every tenant once; foreground reads never block on this
// goroutine, per spec.md §4.10.
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runPass(ctx)
			}
		}
	}()
}

func (w *Worker) runPass(ctx context.Context) {
	logger := observability.LoggerWithTrace(ctx)
	tenants, err := w.tenants.Tenants(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("indexworker: list tenants failed")
		return
	}
	for _, t := range tenants {
		if err := w.backfillTenant(ctx, t); err != nil {
			logger.Error().Err(err).Str("tenant", t.TenantID).Msg("indexworker: backfill pass failed")
		}
		if err := w.reconcileTenant(ctx, t); err != nil {
			logger.Error().Err(err).Str("tenant", t.TenantID).Msg("indexworker: reconcile pass failed")
		}
	}
}

// backfillTenant resumes the schema-extension backfill from its saved
// cursor, processing at most one batch per call so a slow tenant doesn't
// starve the others in the same pass.
func (w *Worker) backfillTenant(ctx context.Context, t Tenant) error {
	t0 := time.Now()
	cursor, err := w.store.BackfillCursor(ctx, t.TenantID)
	if err != nil {
		return err
	}

	docs, err := w.store.DocumentsAfter(ctx, t.TenantID, cursor, w.batchSize)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		if cursor != "" {
			return w.store.ClearBackfillCursor(ctx, t.TenantID)
		}
		return nil
	}

	if err := w.reemitProperties(ctx, t, docs); err != nil {
		return err
	}
	for i := 0; i < len(docs); i++ {
		w.metrics.IncCounter("indexworker_backfill_docs_total", map[string]string{"tenant": t.TenantID})
	}
	w.metrics.ObserveHistogram("indexworker_stage_ms", float64(time.Since(t0).Milliseconds()), map[string]string{"stage": "backfill", "tenant": t.TenantID})

	last := docs[len(docs)-1].DocumentID
	if err := w.store.SetBackfillCursor(ctx, t.TenantID, last); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-time.After(w.sleep):
	}
	return nil
}

func (w *Worker) reemitProperties(ctx context.Context, t Tenant, docs []store.Document) error {
	for _, d := range docs {
		if err := w.vec.SetProperties(ctx, t.IndexName, d.DocumentID, d.Properties, d.Tags, d.IsCandidate); err != nil {
			return err
		}
	}
	return nil
}

// reconcileTenant retries the full C9 upsert (re-embed, then vectorstore
// Upsert) for documents queued after a commit-succeeds/upsert-fails split —
// a payload-only update can't fix this, since the point was never created in
// the first place. A document whose metadata record has since been deleted
// is dropped from the queue without retrying.
func (w *Worker) reconcileTenant(ctx context.Context, t Tenant) error {
	t0 := time.Now()
	ids, err := w.store.ReconciliationBatch(ctx, t.TenantID, w.batchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	defer func() {
		w.metrics.ObserveHistogram("indexworker_stage_ms", float64(time.Since(t0).Milliseconds()), map[string]string{"stage": "reconcile", "tenant": t.TenantID})
	}()

	backend, err := w.embeddings.Default()
	if err != nil {
		return err
	}

	for _, id := range ids {
		doc, ok, err := w.store.GetDocument(ctx, t.TenantID, id)
		if err != nil {
			return err
		}
		if !ok {
			if err := w.store.MarkReconciled(ctx, t.TenantID, id); err != nil {
				return err
			}
			continue
		}

		text, ok, err := w.store.GetSnippetText(ctx, t.TenantID, id, 0)
		if err != nil {
			return err
		}
		if !ok {
			// Nothing to embed yet; leave queued for a later pass once the
			// snippet text is written.
			continue
		}

		vecs, err := backend.Embed(ctx, embedding.Content, []string{text})
		if err != nil {
			if _, bumpErr := w.store.BumpReconcileAttempt(ctx, t.TenantID, id); bumpErr != nil {
				return bumpErr
			}
			continue
		}

		failed := w.vec.Upsert(ctx, t.IndexName, []vectorstore.Snippet{{
			DocumentID:  id,
			SubID:       0,
			Embedding:   vecs[0],
			Properties:  doc.Properties,
			Tags:        doc.Tags,
			IsCandidate: doc.IsCandidate,
		}})
		if len(failed) > 0 {
			w.metrics.IncCounter("indexworker_reconcile_total", map[string]string{"tenant": t.TenantID, "outcome": "failed"})
			if _, bumpErr := w.store.BumpReconcileAttempt(ctx, t.TenantID, id); bumpErr != nil {
				return bumpErr
			}
			continue
		}
		if err := w.store.MarkReconciled(ctx, t.TenantID, id); err != nil {
			return err
		}
		w.metrics.IncCounter("indexworker_reconcile_total", map[string]string{"tenant": t.TenantID, "outcome": "ok"})
	}
	return nil
}
