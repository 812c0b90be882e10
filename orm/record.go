package orm

// Row is the flat attribute mapping exchanged with the store driver.
// Values are the canonical Go types for each Kind: int64, float64, string,
// bool, time.Time, []float32, and map[string]any for JSON fields.
type Row map[string]any

// Schematized is the capability to describe one's own collection schema.
// Field lists are static declarations, built once per type; they must be
// identical across instances of the same type.
type Schematized interface {
	CollectionName() string
	Fields() []Field
}

// Record is a typed instance that can move between its in-memory form and
// the store's row representation. Values returns every declared attribute
// keyed by field name; SetValues replaces them from a row holding canonical
// Go types (see Row).
type Record interface {
	Schematized
	Values() Row
	SetValues(Row) error
}
