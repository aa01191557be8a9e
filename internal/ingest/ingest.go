// Package ingest implements the ingestion orchestrator (C9): the per-document
// validate -> embed -> commit -> upsert pipeline of spec.md §4.9, composing
// internal/embedding (C1), internal/store (C6), and internal/vectorstore
// (C7) with per-document failure isolation. Grounded on the teacher's
// internal/rag/ingest pipeline (the same embed-then-persist shape, batched,
// with per-item error capture rather than an all-or-nothing transaction).
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"centroid/internal/embedding"
	"centroid/internal/filter"
	"centroid/internal/observability"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

// Document is one entry of an ingestion batch, mirroring spec.md §4.9's
// IngestedDocument: { id, snippet, properties?, tags?, is_candidate?,
// default_is_candidate? }.
type Document struct {
	DocumentID         string
	Snippet            string
	Properties         map[string]any
	Tags               []string
	IsCandidate        *bool
	DefaultIsCandidate bool
}

// FailureKind identifies which pipeline step rejected a document, carried in
// the batch response so callers can distinguish a retryable backend failure
// from a caller error, per spec.md §4.9/§7.
type FailureKind string

const (
	KindInvalidDocument         FailureKind = "InvalidDocument"
	KindInvalidDocumentProperty FailureKind = "InvalidDocumentProperty"
	KindEmbeddingFailed         FailureKind = "EmbeddingFailed"
	KindCommitFailed            FailureKind = "CommitFailed"
	KindUpsertFailed            FailureKind = "UpsertFailed"
)

// Outcome reports one document's ingestion failure. A batch with zero
// Outcomes succeeded in full.
type Outcome struct {
	DocumentID string
	Kind       FailureKind
	Cause      error
}

func (o Outcome) Error() string {
	return fmt.Sprintf("document %q: %s: %v", o.DocumentID, o.Kind, o.Cause)
}

// Orchestrator runs the ingestion pipeline for one tenant at a time; callers
// pass the tenant id and its current index name per call since both are
// silo-managed state the orchestrator does not cache.
type Orchestrator struct {
	store      *store.Store
	vec        *vectorstore.Client
	embeddings *embedding.Registry
}

// New constructs an Orchestrator over the shared metadata store, vector
// store client, and embedding registry.
func New(st *store.Store, vec *vectorstore.Client, embeddings *embedding.Registry) *Orchestrator {
	return &Orchestrator{store: st, vec: vec, embeddings: embeddings}
}

// Ingest runs the four-step pipeline over docs for tenant/indexName,
// returning one Outcome per failed document. Steps 1-2 (validate, embed) run
// per document; step 3 (commit) batches the documents that passed steps 1-2
// into a single internal/store call; step 4 (upsert) batches the snippets
// whose commit succeeded into a single internal/vectorstore call. A
// commit-succeeds/upsert-fails document is both reported as failed (so the
// caller retries) and queued for background reconciliation (so it converges
// without a retry), per spec.md §4.9.
func (o *Orchestrator) Ingest(ctx context.Context, tenant, indexName string, schema filter.Schema, docs []Document) ([]Outcome, error) {
	var outcomes []Outcome

	type staged struct {
		doc Document
		vec embedding.Vector
	}
	ready := make([]staged, 0, len(docs))

	for _, d := range docs {
		if err := validateSnippet(d.Snippet); err != nil {
			outcomes = append(outcomes, Outcome{DocumentID: d.DocumentID, Kind: KindInvalidDocument, Cause: err})
			continue
		}
		if err := store.ValidateProperties(d.Properties, schema); err != nil {
			logRejectedProperties(ctx, tenant, d.DocumentID, d.Properties, err)
			outcomes = append(outcomes, Outcome{DocumentID: d.DocumentID, Kind: KindInvalidDocumentProperty, Cause: err})
			continue
		}

		backend, err := o.embeddings.Default()
		if err != nil {
			outcomes = append(outcomes, Outcome{DocumentID: d.DocumentID, Kind: KindEmbeddingFailed, Cause: err})
			continue
		}
		vecs, err := backend.Embed(ctx, embedding.Content, []string{d.Snippet})
		if err != nil {
			outcomes = append(outcomes, Outcome{DocumentID: d.DocumentID, Kind: KindEmbeddingFailed, Cause: &embedding.EmbeddingFailed{Backend: backend.Name(), Cause: err}})
			continue
		}
		ready = append(ready, staged{doc: d, vec: vecs[0]})
	}

	if len(ready) == 0 {
		return outcomes, nil
	}

	commitBatch := make([]store.IngestedDocument, 0, len(ready))
	for _, r := range ready {
		commitBatch = append(commitBatch, store.IngestedDocument{
			DocumentID:         r.doc.DocumentID,
			Tags:               r.doc.Tags,
			Properties:         r.doc.Properties,
			IsCandidate:        r.doc.IsCandidate,
			DefaultIsCandidate: r.doc.DefaultIsCandidate,
		})
	}
	commitFailed := o.store.InsertDocuments(ctx, tenant, schema, commitBatch)
	for id, err := range commitFailed {
		outcomes = append(outcomes, Outcome{DocumentID: id, Kind: KindCommitFailed, Cause: err})
	}

	upsertBatch := make([]vectorstore.Snippet, 0, len(ready))
	for _, r := range ready {
		if _, failed := commitFailed[r.doc.DocumentID]; failed {
			continue
		}
		isCandidate := r.doc.DefaultIsCandidate
		if r.doc.IsCandidate != nil {
			isCandidate = *r.doc.IsCandidate
		}
		if err := o.store.PutSnippet(ctx, tenant, r.doc.DocumentID, 0, r.doc.Snippet); err != nil {
			outcomes = append(outcomes, Outcome{DocumentID: r.doc.DocumentID, Kind: KindCommitFailed, Cause: err})
			continue
		}
		upsertBatch = append(upsertBatch, vectorstore.Snippet{
			DocumentID:  r.doc.DocumentID,
			SubID:       0,
			Embedding:   r.vec,
			Properties:  r.doc.Properties,
			Tags:        r.doc.Tags,
			IsCandidate: isCandidate,
		})
	}

	if len(upsertBatch) == 0 {
		return outcomes, nil
	}

	upsertFailed := o.vec.Upsert(ctx, indexName, upsertBatch)
	if len(upsertFailed) > 0 {
		bySnippetKey := make(map[string]string, len(upsertBatch))
		for _, sn := range upsertBatch {
			bySnippetKey[snippetKey(sn.DocumentID, sn.SubID)] = sn.DocumentID
		}
		for key, err := range upsertFailed {
			docID := bySnippetKey[key]
			if docID == "" {
				docID = key
			}
			outcomes = append(outcomes, Outcome{DocumentID: docID, Kind: KindUpsertFailed, Cause: err})
			if qerr := o.store.EnqueueReconciliation(ctx, tenant, docID); qerr != nil {
				outcomes = append(outcomes, Outcome{DocumentID: docID, Kind: KindUpsertFailed, Cause: fmt.Errorf("enqueue reconciliation: %w", qerr)})
			}
		}
	}

	return outcomes, nil
}

func validateSnippet(s string) error {
	if s == "" {
		return errEmptySnippet
	}
	if strings.IndexByte(s, 0) != -1 {
		return errNulByteSnippet
	}
	return nil
}

var (
	errEmptySnippet   = errors.New("snippet must not be empty")
	errNulByteSnippet = errors.New("snippet must not contain a NUL byte")
)

func snippetKey(documentID string, subID int) string {
	return fmt.Sprintf("%s/%d", documentID, subID)
}

// logRejectedProperties logs a rejected document's property payload at debug
// level, redacted (a caller-supplied property map is free-form JSON and may
// carry a key a future schema names "api_key" or "token").
func logRejectedProperties(ctx context.Context, tenant, documentID string, props map[string]any, cause error) {
	raw, err := json.Marshal(props)
	if err != nil {
		return
	}
	observability.LoggerWithTrace(ctx).Debug().
		Str("tenant", tenant).
		Str("doc_id", documentID).
		Err(cause).
		RawJSON("properties", observability.RedactJSON(raw)).
		Msg("ingest: rejected document properties")
}

// Delete removes documents from both the metadata store and the vector
// index, per spec.md §6's DELETE /documents. Each id's two deletes are
// independent; a store failure for one id does not block the vector-store
// delete for another, matching InsertDocuments' per-document isolation.
func (o *Orchestrator) Delete(ctx context.Context, tenant, indexName string, ids []string) map[string]error {
	failed := o.store.DeleteDocuments(ctx, tenant, ids)
	for _, id := range ids {
		if err := o.vec.DeleteDocument(ctx, indexName, id); err != nil {
			if failed == nil {
				failed = make(map[string]error, len(ids))
			}
			if _, already := failed[id]; !already {
				failed[id] = err
			}
		}
	}
	return failed
}
