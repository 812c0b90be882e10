package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vormlabs/vorm/orm"
	"github.com/vormlabs/vorm/store"
)

// ListOptions controls GetAll pagination and projection.
type ListOptions struct {
	// Offset is the number of rows to skip. Must be >= 0.
	Offset int
	// Limit caps the result. Zero retrieves everything, paged internally.
	Limit int
	// OutputFields restricts the returned columns. Nil returns all fields.
	OutputFields []string
	// OrderBy names a field to sort on; empty leaves store order.
	OrderBy string
	// Desc reverses the sort when OrderBy is set.
	Desc bool
}

// GetAll retrieves records with pagination and optional ordering. With a
// zero Limit it pages through the whole collection internally, checking ctx
// between pages so long retrievals cancel promptly.
//
// Consistency under concurrent writers is best-effort: the store offers no
// snapshot isolation across pages.
func (e *Engine[T]) GetAll(ctx context.Context, opts ListOptions) ([]T, error) {
	if opts.Offset < 0 {
		return nil, fmt.Errorf("engine: get all: %w: offset must be >= 0", orm.ErrInvalidQuery)
	}
	if err := e.validateOutputFields(opts.OutputFields); err != nil {
		return nil, err
	}
	partial := len(opts.OutputFields) > 0

	if opts.Limit > 0 {
		rows, err := e.queryRows(ctx, store.Query{
			Offset:       opts.Offset,
			Limit:        opts.Limit,
			OutputFields: opts.OutputFields,
			OrderBy:      opts.OrderBy,
			Desc:         opts.Desc,
		})
		if err != nil {
			return nil, err
		}
		return e.decodeRows(rows, partial)
	}

	var out []T
	offset := opts.Offset
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := e.queryRows(ctx, store.Query{
			Offset:       offset,
			Limit:        e.opts.PageSize,
			OutputFields: opts.OutputFields,
			OrderBy:      opts.OrderBy,
			Desc:         opts.Desc,
		})
		if err != nil {
			return nil, err
		}
		page, err := e.decodeRows(rows, partial)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(rows) < e.opts.PageSize {
			return out, nil
		}
		offset += len(rows)
	}
}

// GetByID retrieves the record with the given primary key. Absence is a
// normal outcome: ok is false and err is nil.
func (e *Engine[T]) GetByID(ctx context.Context, id any, outputFields ...string) (T, bool, error) {
	var zero T
	lit, err := e.pkLiteral(id)
	if err != nil {
		return zero, false, err
	}
	if err := e.validateOutputFields(outputFields); err != nil {
		return zero, false, err
	}

	rows, err := e.queryRows(ctx, store.Query{
		Expr:         e.schema.PrimaryKey().Name + " == " + lit,
		Limit:        1,
		OutputFields: outputFields,
	})
	if err != nil {
		return zero, false, err
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	recs, err := e.decodeRows(rows[:1], len(outputFields) > 0)
	if err != nil {
		return zero, false, err
	}
	return recs[0], true, nil
}

// Filter retrieves records matching every criterion exactly (logical AND).
// Criteria keys must name declared scalar fields; anything else fails with
// orm.ErrInvalidQuery. Empty criteria match everything.
func (e *Engine[T]) Filter(ctx context.Context, criteria map[string]any, outputFields ...string) ([]T, error) {
	expr, err := e.criteriaExpr(criteria)
	if err != nil {
		return nil, err
	}
	if err := e.validateOutputFields(outputFields); err != nil {
		return nil, err
	}

	rows, err := e.queryRows(ctx, store.Query{
		Expr:         expr,
		OutputFields: outputFields,
	})
	if err != nil {
		return nil, err
	}
	return e.decodeRows(rows, len(outputFields) > 0)
}

// Count returns the number of rows matching expr. An empty expr counts the
// whole collection.
func (e *Engine[T]) Count(ctx context.Context, expr string) (int64, error) {
	var n int64
	err := e.storeCall(ctx, "count", func(ctx context.Context) error {
		c, err := e.driver.Count(ctx, e.coll.Name(), e.schema, expr)
		n = c
		return err
	})
	return n, err
}

// Save upserts a single record, replacing any existing row with its primary
// key.
func (e *Engine[T]) Save(ctx context.Context, rec T) error {
	row, err := orm.ToRow(rec)
	if err != nil {
		return err
	}
	return e.storeCall(ctx, "upsert", func(ctx context.Context) error {
		return e.driver.Upsert(ctx, e.coll.Name(), e.schema, []orm.Row{row})
	})
}

// Delete removes exactly the row holding the record's primary key. Zero
// matching rows fail with orm.ErrNotFound so "nothing to delete" stays
// distinguishable from a store fault. The existence check and the delete are
// two store calls; a concurrent deleter can win the race between them.
func (e *Engine[T]) Delete(ctx context.Context, rec T) error {
	pk := e.schema.PrimaryKey()
	id, ok := rec.Values()[pk.Name]
	if !ok || id == nil {
		return &orm.FieldError{Field: pk.Name, Wrapped: orm.ErrSerialization, Reason: "primary key is not set"}
	}
	lit, err := e.pkLiteral(id)
	if err != nil {
		return err
	}
	expr := pk.Name + " == " + lit

	n, err := e.Count(ctx, expr)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("engine: delete %s %v: %w", e.coll.Name(), id, orm.ErrNotFound)
	}
	return e.storeCall(ctx, "delete", func(ctx context.Context) error {
		return e.driver.Delete(ctx, e.coll.Name(), e.schema, expr)
	})
}

// DeleteMany removes every row matching expr. There is no way to preview
// the affected count first; callers who need one should Count before
// deleting and accept the race. An empty expr is rejected so a typo cannot
// clear a collection.
func (e *Engine[T]) DeleteMany(ctx context.Context, expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("engine: delete many: %w: empty expression", orm.ErrInvalidQuery)
	}
	return e.storeCall(ctx, "delete", func(ctx context.Context) error {
		return e.driver.Delete(ctx, e.coll.Name(), e.schema, expr)
	})
}

func (e *Engine[T]) validateOutputFields(fields []string) error {
	for _, name := range fields {
		if _, ok := e.schema.Field(name); !ok {
			return fmt.Errorf("engine: %w: unknown output field %q", orm.ErrInvalidQuery, name)
		}
	}
	return nil
}

// criteriaExpr renders exact-match criteria as a deterministic conjunction.
func (e *Engine[T]) criteriaExpr(criteria map[string]any) (string, error) {
	if len(criteria) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		field, ok := e.schema.Field(k)
		if !ok {
			return "", fmt.Errorf("engine: filter: %w: unknown field %q", orm.ErrInvalidQuery, k)
		}
		lit, err := literal(field, criteria[k])
		if err != nil {
			return "", err
		}
		parts = append(parts, k+" == "+lit)
	}
	return strings.Join(parts, " && "), nil
}

// literal renders a Go value as an expression literal for the given field.
func literal(f orm.Field, v any) (string, error) {
	switch f.Kind {
	case orm.KindString:
		if s, ok := v.(string); ok {
			return strconv.Quote(s), nil
		}
	case orm.KindInt64:
		switch n := v.(type) {
		case int64:
			return strconv.FormatInt(n, 10), nil
		case int:
			return strconv.Itoa(n), nil
		}
	case orm.KindFloat64:
		if n, ok := v.(float64); ok {
			return strconv.FormatFloat(n, 'g', -1, 64), nil
		}
	case orm.KindBool:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case orm.KindTimestamp:
		if t, ok := v.(time.Time); ok {
			return strconv.Quote(t.Format(time.RFC3339Nano)), nil
		}
	}
	return "", fmt.Errorf("engine: %w: field %q cannot match value %v (%T)", orm.ErrInvalidQuery, f.Name, v, v)
}
