package service

import (
	"context"
	"encoding/json"

	"centroid/internal/indexworker"
	"centroid/internal/observability"
	"centroid/internal/silo"
)

// SiloOperation is one entry of spec.md §6's
// `POST /_ops/silo_management { operations: [...] }` request. Kind selects
// which of the four operations to run; only the fields that operation needs
// are read.
type SiloOperation struct {
	Kind         SiloOpKind
	TenantID     string
	IsLegacy     bool   // CreateTenant
	NewIndexName string // ChangeEsIndex
}

// SiloOpKind names one of the four silo-management operations.
type SiloOpKind string

const (
	SiloOpCreateTenant  SiloOpKind = "CreateTenant"
	SiloOpDeleteTenant  SiloOpKind = "DeleteTenant"
	SiloOpListTenants   SiloOpKind = "ListTenants"
	SiloOpChangeEsIndex SiloOpKind = "ChangeEsIndex"
)

// SiloOperationResult is one entry of the response's `results` list:
// on success Tenant or Tenants is populated (neither, for a DeleteTenant of
// an unknown tenant_id), Err on failure.
type SiloOperationResult struct {
	Tenant  *silo.Tenant
	Tenants []silo.Tenant
	Err     error
}

// RunSiloOperations executes a batch of silo-management operations in
// order, capturing each operation's error independently rather than
// aborting the batch, per spec.md §6 ("executed in order with per-operation
// error capture").
func (s *Service) RunSiloOperations(ctx context.Context, ops []SiloOperation) []SiloOperationResult {
	out := make([]SiloOperationResult, len(ops))
	for i, op := range ops {
		out[i] = s.runSiloOperation(ctx, op)
	}
	return out
}

func (s *Service) runSiloOperation(ctx context.Context, op SiloOperation) SiloOperationResult {
	if raw, err := json.Marshal(op); err == nil {
		s.log.Debug("silo_operation", map[string]any{"op": string(observability.RedactJSON(raw))})
	}
	switch op.Kind {
	case SiloOpCreateTenant:
		t, err := s.silo.CreateTenant(ctx, op.TenantID, op.IsLegacy)
		if err != nil {
			return SiloOperationResult{Err: err}
		}
		return SiloOperationResult{Tenant: &t}
	case SiloOpDeleteTenant:
		t, err := s.silo.DeleteTenant(ctx, op.TenantID)
		if err != nil {
			return SiloOperationResult{Err: err}
		}
		return SiloOperationResult{Tenant: t}
	case SiloOpListTenants:
		tenants, err := s.silo.ListTenants(ctx)
		if err != nil {
			return SiloOperationResult{Err: err}
		}
		return SiloOperationResult{Tenants: tenants}
	case SiloOpChangeEsIndex:
		if err := s.silo.ChangeIndex(ctx, op.TenantID, op.NewIndexName); err != nil {
			return SiloOperationResult{Err: err}
		}
		t, err := s.silo.GetTenant(ctx, op.TenantID)
		if err != nil {
			return SiloOperationResult{Err: err}
		}
		return SiloOperationResult{Tenant: t}
	default:
		return SiloOperationResult{Err: &InvalidQuery{Reason: "unknown silo operation kind"}}
	}
}

// siloTenantSource adapts silo.Manager.ListTenants to
// internal/indexworker.TenantSource's narrow Tenants(ctx) interface, so the
// worker package keeps no direct dependency on internal/silo.
type siloTenantSource struct{ mgr *silo.Manager }

// NewIndexWorkerTenantSource returns an indexworker.TenantSource backed by
// the silo catalog.
func NewIndexWorkerTenantSource(mgr *silo.Manager) indexworker.TenantSource {
	return siloTenantSource{mgr: mgr}
}

func (t siloTenantSource) Tenants(ctx context.Context) ([]indexworker.Tenant, error) {
	tenants, err := t.mgr.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]indexworker.Tenant, len(tenants))
	for i, tn := range tenants {
		out[i] = indexworker.Tenant{TenantID: tn.TenantID, IndexName: tn.IndexName}
	}
	return out, nil
}
