package service

import "fmt"

// NotEnoughInteractions reports a Recommend call for a user whose CoI count
// is below coi.Config.MinCoIs — the Conflict error
// kind of spec.md §7, surfaced as 409.
type NotEnoughInteractions struct {
	UserID string
	Have   int
	Need   int
}

func (e *NotEnoughInteractions) Error() string {
	return fmt.Sprintf("user %q has %d CoI(s), needs %d", e.UserID, e.Have, e.Need)
}

// InvalidCount reports an effective count outside [1, max], the Validation
// error kind's count-bounds case. Recommend and SemanticSearch read a request
// Count of 0 as "use the configured default", so an explicit count of 0 is
// not rejected; only a count above max, or a default outside [1, max], is.
type InvalidCount struct {
	Count int
	Max   int
}

func (e *InvalidCount) Error() string {
	return fmt.Sprintf("count %d out of bounds [1, %d]", e.Count, e.Max)
}

// InvalidQuery reports a semantic_search request whose query text falls
// outside the configured [min_query_size, max_query_size] bounds, or whose
// `document` selector names none of id/document_id+sub_id/query.
type InvalidQuery struct {
	Reason string
}

func (e *InvalidQuery) Error() string { return "invalid query: " + e.Reason }

// UnknownTenant reports an operation naming a tenant_id the silo catalog has
// no row for — distinct from silo.TenantNotFound, which is ChangeIndex's own
// error; this is the façade-level check every other operation performs
// before touching store/vectorstore.
type UnknownTenant struct {
	TenantID string
}

func (e *UnknownTenant) Error() string { return fmt.Sprintf("unknown tenant %q", e.TenantID) }

// DevDisabled reports a SemanticSearchDev call made while the deployment's
// enable_dev config flag is off, per spec.md §4.4's "exposed only when
// tenant config enable_dev = true".
type DevDisabled struct{}

func (e *DevDisabled) Error() string { return "dev retrieval endpoints are disabled (enable_dev = false)" }

// SnippetNotFound reports a semantic_search "by id" selector, or an
// interaction ref, naming a (document_id, sub_id) with no stored embedding.
type SnippetNotFound struct {
	DocumentID string
	SubID      int
}

func (e *SnippetNotFound) Error() string {
	return fmt.Sprintf("snippet %s/%d not found", e.DocumentID, e.SubID)
}
