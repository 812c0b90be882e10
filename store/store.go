// Package store defines the boundary between the mapping layer and the
// vector database driver. The engine treats every method as a potentially
// slow, potentially failing remote call.
package store

import (
	"context"

	"github.com/vormlabs/vorm/orm"
)

// Query describes a filtered, paginated retrieval.
type Query struct {
	// Expr is a filter expression in the driver's native grammar. Empty
	// matches everything.
	Expr string
	// Offset is the number of matching rows to skip.
	Offset int
	// Limit caps the number of rows returned. Limit <= 0 asks for the
	// driver's maximum page.
	Limit int
	// OutputFields restricts the returned columns. Nil returns all declared
	// fields.
	OutputFields []string
	// OrderBy names a field to sort on; empty leaves store order.
	OrderBy string
	// Desc reverses the sort when OrderBy is set.
	Desc bool
}

// Search describes a similarity search.
type Search struct {
	Vector       []float32
	Limit        int
	Expr         string
	Params       map[string]any
	OutputFields []string
}

// Driver is what the mapping layer requires from a vector database.
//
// Implementations translate orm.Row values (canonical Go types, see orm.Row)
// to and from their wire representation, and surface transient connectivity
// faults wrapped in orm.ErrStoreUnavailable so the engine can retry them.
type Driver interface {
	CreateCollection(ctx context.Context, schema orm.Schema) error
	DropCollection(ctx context.Context, name string) error
	HasCollection(ctx context.Context, name string) (bool, error)

	Insert(ctx context.Context, collection string, schema orm.Schema, rows []orm.Row) error
	Upsert(ctx context.Context, collection string, schema orm.Schema, rows []orm.Row) error
	Delete(ctx context.Context, collection string, schema orm.Schema, expr string) error
	Count(ctx context.Context, collection string, schema orm.Schema, expr string) (int64, error)
	Query(ctx context.Context, collection string, schema orm.Schema, q Query) ([]orm.Row, error)
	Search(ctx context.Context, collection string, schema orm.Schema, s Search) ([]orm.Row, error)

	Load(ctx context.Context, collection string) error
	Release(ctx context.Context, collection string) error

	Close() error
}
