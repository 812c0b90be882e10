package engine

import (
	"context"
	"fmt"

	"github.com/vormlabs/vorm/orm"
	"github.com/vormlabs/vorm/store"
)

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// Vector is the query embedding. Its length must equal the schema's
	// declared dimensionality.
	Vector []float32
	// Limit is the maximum number of results. Values <= 0 default to 5.
	Limit int
	// Expr optionally pre-filters candidates in the engine's expression
	// grammar.
	Expr string
	// Metric, when non-zero, must match the schema's metric: the store fixes
	// the distance function at collection creation, so a different one
	// cannot be honored and fails with orm.ErrInvalidQuery.
	Metric orm.Metric
	// Params passes store-specific search tuning (e.g. hnsw_ef, exact).
	Params map[string]any
	// OutputFields restricts the returned columns. Nil returns all fields.
	OutputFields []string
}

// SearchBySimilarity returns the records whose vectors are nearest to the
// query embedding, best match first. A dimensionality mismatch fails with
// orm.ErrSchema before any store call.
//
// Searching requires a loaded collection; an unloaded one is loaded
// implicitly (Load is idempotent, so this is free when already loaded).
func (e *Engine[T]) SearchBySimilarity(ctx context.Context, opts SearchOptions) ([]T, error) {
	vf, ok := e.schema.VectorField()
	if !ok {
		return nil, &orm.SchemaError{Collection: e.coll.Name(), Reason: "no vector field declared"}
	}
	if len(opts.Vector) != vf.Dim {
		return nil, &orm.SchemaError{
			Collection: e.coll.Name(),
			Field:      vf.Name,
			Reason:     fmt.Sprintf("query vector has %d dimensions, schema declares %d", len(opts.Vector), vf.Dim),
		}
	}
	if opts.Metric != orm.MetricUnspecified && opts.Metric != e.schema.Index.Metric {
		return nil, fmt.Errorf("engine: search: %w: metric %s differs from collection metric %s",
			orm.ErrInvalidQuery, opts.Metric, e.schema.Index.Metric)
	}
	if err := e.validateOutputFields(opts.OutputFields); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	if err := e.coll.Load(ctx); err != nil {
		return nil, fmt.Errorf("engine: search: %w: %w", orm.ErrNotLoaded, err)
	}

	var rows []orm.Row
	err := e.storeCall(ctx, "search", func(ctx context.Context) error {
		r, err := e.driver.Search(ctx, e.coll.Name(), e.schema, store.Search{
			Vector:       opts.Vector,
			Limit:        limit,
			Expr:         opts.Expr,
			Params:       opts.Params,
			OutputFields: opts.OutputFields,
		})
		rows = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.decodeRows(rows, len(opts.OutputFields) > 0)
}
