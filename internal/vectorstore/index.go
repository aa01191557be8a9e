package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// DimensionMismatch reports an existing index whose dense-vector dims do not
// match the tenant's configured embedding dimension.
type DimensionMismatch struct {
	IndexName string
	Existing  int
	Requested int
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf("vectorstore: index %q has dims=%d, requested dims=%d", e.IndexName, e.Existing, e.Requested)
}

// IndexExists reports whether an index (Qdrant collection) already exists.
func (c *Client) IndexExists(ctx context.Context, indexName string) (bool, error) {
	if err := ValidateIndexName(indexName); err != nil {
		return false, err
	}
	var exists bool
	err := c.retry(ctx, func() error {
		var err error
		exists, err = c.qc.CollectionExists(ctx, indexName)
		return err
	})
	return exists, err
}

// CreateIndex creates a new index with a cosine-similarity dense-vector
// field of dimension D (spec.md §4.7: "a dense-vector field of dimension D
// with cosine similarity"). Lexical search lives in internal/store's
// tsvector column, so no sparse/text field is created here.
func (c *Client) CreateIndex(ctx context.Context, indexName string, dim int) error {
	if err := ValidateIndexName(indexName); err != nil {
		return err
	}
	return c.retry(ctx, func() error {
		return c.qc.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: indexName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
}

// DeleteIndex drops an index and all its points.
func (c *Client) DeleteIndex(ctx context.Context, indexName string) error {
	if err := ValidateIndexName(indexName); err != nil {
		return err
	}
	return c.retry(ctx, func() error {
		return c.qc.DeleteCollection(ctx, indexName)
	})
}

// IndexDimension returns an existing index's configured vector size.
func (c *Client) IndexDimension(ctx context.Context, indexName string) (int, error) {
	if err := ValidateIndexName(indexName); err != nil {
		return 0, err
	}
	var dim int
	err := c.retry(ctx, func() error {
		info, err := c.qc.GetCollectionInfo(ctx, indexName)
		if err != nil {
			return err
		}
		params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
		dim = int(params.GetSize())
		return nil
	})
	return dim, err
}

// MigrateIndex validates that an existing index's dense-vector dimension
// matches dim, creating the index if it does not yet exist. Per spec.md
// §4.7/§4.8, an existing index's dims must match exactly; other mapping
// fields (payload schema) may be extended but never re-typed — payload
// fields in Qdrant have no fixed schema, so no migration step is needed for
// them beyond the index-update worker (C10) backfilling new properties.
func (c *Client) MigrateIndex(ctx context.Context, indexName string, dim int) error {
	exists, err := c.IndexExists(ctx, indexName)
	if err != nil {
		return err
	}
	if !exists {
		return c.CreateIndex(ctx, indexName, dim)
	}
	existingDim, err := c.IndexDimension(ctx, indexName)
	if err != nil {
		return err
	}
	if existingDim != dim {
		return &DimensionMismatch{IndexName: indexName, Existing: existingDim, Requested: dim}
	}
	return nil
}

// ListIndexes returns every index (collection) name known to Qdrant.
func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	var names []string
	err := c.retry(ctx, func() error {
		result, err := c.qc.ListCollections(ctx)
		if err != nil {
			return err
		}
		names = result
		return nil
	})
	return names, err
}
