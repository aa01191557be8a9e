package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"centroid/internal/embedding"
	"centroid/internal/retrieve"
)

// Snippet is one point to upsert: a snippet's embedding plus the
// denormalized payload fields the vector store needs to answer filtered
// kNN queries without round-tripping to the metadata store (spec.md §3's
// "denormalized projection").
type Snippet struct {
	DocumentID  string
	SubID       int
	Embedding   embedding.Vector
	Properties  map[string]any
	Tags        []string
	IsCandidate bool
}

// Upsert writes snippets into indexName's collection. Returns a per-snippet
// outcome map (keyed by "document_id/sub_id") so a partial batch failure
// can be reported per-item, per spec.md §4.9's bulk-write contract.
func (c *Client) Upsert(ctx context.Context, indexName string, snippets []Snippet) map[string]error {
	failed := make(map[string]error)
	if len(snippets) == 0 {
		return failed
	}

	points := make([]*qdrant.PointStruct, 0, len(snippets))
	for _, sn := range snippets {
		flat := map[string]any{
			"document_id":  sn.DocumentID,
			"snippet_id":   snippetKey(sn.DocumentID, sn.SubID),
			"sub_id":       int64(sn.SubID),
			"is_candidate": sn.IsCandidate,
			"tags":         sn.Tags,
		}
		payload := qdrant.NewValueMap(flat)
		for k, v := range sn.Properties {
			if val := propertyValue(v); val != nil {
				payload["properties."+k] = val
			}
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(sn.DocumentID, sn.SubID).String()),
			Vectors: qdrant.NewVectorsDense(sn.Embedding),
			Payload: payload,
		})
	}

	err := c.retry(ctx, func() error {
		_, err := c.qc.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: indexName,
			Points:         points,
		})
		return err
	})
	if err != nil {
		for _, sn := range snippets {
			failed[snippetKey(sn.DocumentID, sn.SubID)] = err
		}
	}
	return failed
}

// DeleteSnippets removes individual (document_id, sub_id) points.
func (c *Client) DeleteSnippets(ctx context.Context, indexName string, keys [][2]any) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, len(keys))
	for _, k := range keys {
		docID, _ := k[0].(string)
		subID, _ := k[1].(int)
		ids = append(ids, qdrant.NewIDUUID(pointID(docID, subID).String()))
	}
	return c.retry(ctx, func() error {
		_, err := c.qc.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: indexName,
			Points:         qdrant.NewPointsSelector(ids...),
		})
		return err
	})
}

// DeleteDocument removes every point whose payload document_id matches,
// i.e. every snippet owned by that document.
func (c *Client) DeleteDocument(ctx context.Context, indexName, documentID string) error {
	return c.retry(ctx, func() error {
		_, err := c.qc.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: indexName,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key:   "document_id",
									Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: documentID}},
								},
							},
						}},
					},
				},
			},
		})
		return err
	})
}

// SetProperties overwrites the payload properties/tags/is_candidate fields
// of every point belonging to documentID, via a payload-only update (no
// vector re-embed needed).
func (c *Client) SetProperties(ctx context.Context, indexName, documentID string, props map[string]any, tags []string, isCandidate bool) error {
	payload := qdrant.NewValueMap(map[string]any{
		"is_candidate": isCandidate,
		"tags":         tags,
	})
	for k, v := range props {
		if val := propertyValue(v); val != nil {
			payload["properties."+k] = val
		}
	}
	return c.retry(ctx, func() error {
		_, err := c.qc.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: indexName,
			Payload:        payload,
			PointsSelector: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key:   "document_id",
									Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: documentID}},
								},
							},
						}},
					},
				},
			},
		})
		return err
	})
}

// GetEmbeddings fetches the stored vectors for a set of (document_id,
// sub_id) keys, keyed by "document_id/sub_id". The rerank stage (C5) and
// CoI scoring (C2) both need a retrieved candidate's embedding alongside
// its retrieval score, so the service façade fetches them in one batch
// after Knn/Hybrid returns its hit list.
func (c *Client) GetEmbeddings(ctx context.Context, indexName string, keys [][2]any) (map[string]embedding.Vector, error) {
	out := make(map[string]embedding.Vector, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	ids := make([]*qdrant.PointId, 0, len(keys))
	for _, k := range keys {
		docID, _ := k[0].(string)
		subID, _ := k[1].(int)
		ids = append(ids, qdrant.NewIDUUID(pointID(docID, subID).String()))
	}

	var points []*qdrant.RetrievedPoint
	err := c.retry(ctx, func() error {
		res, err := c.qc.Get(ctx, &qdrant.GetPoints{
			CollectionName: indexName,
			Ids:            ids,
			WithVectors:    qdrant.NewWithVectors(true),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, &retrieve.BackendUnavailable{Backend: "qdrant", Cause: fmt.Errorf("vectorstore: get %s: %w", indexName, err)}
	}

	for _, p := range points {
		snippetID := ""
		if p.Payload != nil {
			if v, ok := p.Payload["snippet_id"]; ok {
				snippetID = v.GetStringValue()
			}
		}
		if snippetID == "" {
			continue
		}
		data := p.GetVectors().GetVector().GetData()
		vec := make(embedding.Vector, len(data))
		copy(vec, data)
		out[snippetID] = vec
	}
	return out, nil
}

func strValue(s string) *qdrant.Value { return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}} }
func intValue(i int64) *qdrant.Value  { return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}} }
func boolValue(b bool) *qdrant.Value  { return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: b}} }

// propertyValue converts a document property value into a Qdrant payload
// value, tolerating types ignore_malformed would otherwise reject (spec.md
// §4.7) by simply skipping them (returning nil) rather than failing the
// whole upsert.
func propertyValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case bool:
		return boolValue(val)
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case string:
		return strValue(val)
	case time.Time:
		return intValue(val.Unix())
	case []any:
		vals := make([]*qdrant.Value, 0, len(val))
		for _, e := range val {
			if s, ok := e.(string); ok {
				vals = append(vals, strValue(s))
			}
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: vals}}}
	default:
		return nil
	}
}
