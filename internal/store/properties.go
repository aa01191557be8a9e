package store

import (
	"encoding/json"
	"fmt"
	"time"

	"context"

	"github.com/jackc/pgx/v5"

	"centroid/internal/filter"
)

// ValidateProperties checks a document's properties against the tenant's
// indexed-property schema without writing anything; internal/ingest calls
// this as the batch's step-1 validation, ahead of the embed/commit/upsert
// pipeline, so a schema violation is caught before spending an embedding call.
func ValidateProperties(props map[string]any, schema filter.Schema) error {
	return validateProperties(props, schema)
}

// validateProperties checks a document's properties against the tenant's
// indexed-property schema. Out-of-schema properties are accepted but
// unindexed, per spec.md §4.9 step 1; only properties that ARE in the
// schema are type-checked.
func validateProperties(props map[string]any, schema filter.Schema) error {
	for id, val := range props {
		t, ok := schema.TypeOf(id)
		if !ok {
			continue
		}
		if err := checkPropertyType(id, val, t); err != nil {
			return err
		}
	}
	return nil
}

func checkPropertyType(id string, val any, t filter.PropertyType) error {
	switch t {
	case filter.TypeBool:
		if _, ok := val.(bool); !ok {
			return &InvalidDocumentProperty{PropertyID: id, InvalidValue: val, ExpectedType: string(t)}
		}
	case filter.TypeNumber:
		if _, ok := val.(float64); !ok {
			return &InvalidDocumentProperty{PropertyID: id, InvalidValue: val, ExpectedType: string(t)}
		}
	case filter.TypeString:
		if _, ok := val.(string); !ok {
			return &InvalidDocumentProperty{PropertyID: id, InvalidValue: val, ExpectedType: string(t)}
		}
	case filter.TypeStringArray:
		arr, ok := val.([]any)
		if !ok {
			return &InvalidDocumentProperty{PropertyID: id, InvalidValue: val, ExpectedType: string(t)}
		}
		for _, e := range arr {
			if _, ok := e.(string); !ok {
				return &InvalidDocumentProperty{PropertyID: id, InvalidValue: val, ExpectedType: string(t)}
			}
		}
	case filter.TypeDate:
		s, ok := val.(string)
		if !ok {
			return &InvalidDocumentProperty{PropertyID: id, InvalidValue: val, ExpectedType: string(t)}
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return &InvalidDocumentProperty{PropertyID: id, InvalidValue: val, ExpectedType: string(t)}
		}
	}
	return nil
}

// GetProperties returns a document's full property map.
func (s *Store) GetProperties(ctx context.Context, tenant, documentID string) (map[string]any, error) {
	tbl := qualify(SchemaName(tenant), "documents")
	var raw []byte
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT properties FROM %s WHERE document_id=$1`, tbl), documentID).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &DocumentNotFound{DocumentID: documentID}
		}
		return nil, err
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PutProperties replaces a document's entire property map, after validating
// it against schema.
func (s *Store) PutProperties(ctx context.Context, tenant, documentID string, props map[string]any, schema filter.Schema) error {
	if err := validateProperties(props, schema); err != nil {
		return err
	}
	return s.putPropertiesRaw(ctx, tenant, documentID, props)
}

// GetProperty returns a single property's value.
func (s *Store) GetProperty(ctx context.Context, tenant, documentID, propID string) (any, error) {
	props, err := s.GetProperties(ctx, tenant, documentID)
	if err != nil {
		return nil, err
	}
	v, ok := props[propID]
	if !ok {
		return nil, &DocumentPropertyNotFound{DocumentID: documentID, PropertyID: propID}
	}
	return v, nil
}

// PutProperty sets a single property, validating it if it is in schema.
func (s *Store) PutProperty(ctx context.Context, tenant, documentID, propID string, value any, schema filter.Schema) error {
	if t, ok := schema.TypeOf(propID); ok {
		if err := checkPropertyType(propID, value, t); err != nil {
			return err
		}
	}
	props, err := s.GetProperties(ctx, tenant, documentID)
	if err != nil {
		return err
	}
	props[propID] = value
	return s.putPropertiesRaw(ctx, tenant, documentID, props)
}

func (s *Store) putPropertiesRaw(ctx context.Context, tenant, documentID string, props map[string]any) error {
	tbl := qualify(SchemaName(tenant), "documents")
	raw, err := json.Marshal(nonNilProps(props))
	if err != nil {
		return err
	}
	cmd, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET properties=$2, updated_at=now() WHERE document_id=$1`, tbl), documentID, raw)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return &DocumentNotFound{DocumentID: documentID}
	}
	return nil
}

// DeleteProperty removes a single property from a document.
func (s *Store) DeleteProperty(ctx context.Context, tenant, documentID, propID string) error {
	props, err := s.GetProperties(ctx, tenant, documentID)
	if err != nil {
		return err
	}
	if _, ok := props[propID]; !ok {
		return &DocumentPropertyNotFound{DocumentID: documentID, PropertyID: propID}
	}
	delete(props, propID)
	tbl := qualify(SchemaName(tenant), "documents")
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET properties=$2, updated_at=now() WHERE document_id=$1`, tbl), documentID, raw)
	return err
}
