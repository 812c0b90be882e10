package orm

// Schema is the canonical wire-level description of a collection: its name,
// its fields in declaration order, and the vector index parameters.
type Schema struct {
	Collection string
	Fields     []Field
	Index      IndexSpec
}

// DefaultIndex is the index spec applied when a record type does not supply
// its own (see Indexed).
var DefaultIndex = IndexSpec{Metric: MetricL2}

// Indexed is an optional capability: record types that want a non-default
// distance metric or index parameters implement it alongside Schematized.
type Indexed interface {
	Index() IndexSpec
}

// Derive computes the collection schema for a record type. It is pure and
// deterministic: two types with identical field sequences derive equal
// schemas. The type must declare exactly one primary-key field, and every
// vector field must declare a positive dimensionality.
func Derive(s Schematized) (Schema, error) {
	name := s.CollectionName()
	fields := s.Fields()
	if len(fields) == 0 {
		return Schema{}, &SchemaError{Collection: name, Reason: "no fields declared"}
	}

	pks := 0
	for _, f := range fields {
		if f.Kind == KindInvalid || f.Kind > KindJSON {
			return Schema{}, &SchemaError{Collection: name, Field: f.Name, Reason: "invalid kind"}
		}
		if f.Kind == KindFloatVector && f.Dim <= 0 {
			return Schema{}, &SchemaError{Collection: name, Field: f.Name, Reason: "vector dimensionality must be positive"}
		}
		if f.PrimaryKey {
			pks++
			if f.Nullable {
				return Schema{}, &SchemaError{Collection: name, Field: f.Name, Reason: "primary key cannot be nullable"}
			}
		}
	}
	switch {
	case pks == 0:
		return Schema{}, &SchemaError{Collection: name, Reason: "no primary key"}
	case pks > 1:
		return Schema{}, &SchemaError{Collection: name, Reason: "multiple primary keys"}
	}

	idx := DefaultIndex
	if ix, ok := s.(Indexed); ok {
		idx = ix.Index()
		if idx.Metric == MetricUnspecified {
			idx.Metric = DefaultIndex.Metric
		}
	}

	out := make([]Field, len(fields))
	copy(out, fields)
	return Schema{Collection: name, Fields: out, Index: idx}, nil
}

// PrimaryKey returns the primary-key field. Schemas produced by Derive
// always have exactly one.
func (s Schema) PrimaryKey() Field {
	for _, f := range s.Fields {
		if f.PrimaryKey {
			return f
		}
	}
	return Field{}
}

// VectorField returns the first vector field and whether one exists.
func (s Schema) VectorField() (Field, bool) {
	for _, f := range s.Fields {
		if f.Kind == KindFloatVector {
			return f, true
		}
	}
	return Field{}, false
}

// Field returns the named field and whether it is declared.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Equal reports structural equality: same collection name, same field
// sequence, same metric. Index params do not participate, so tuning them is
// not a schema change.
func (s Schema) Equal(other Schema) bool {
	if s.Collection != other.Collection || len(s.Fields) != len(other.Fields) {
		return false
	}
	if s.Index.Metric != other.Index.Metric {
		return false
	}
	for i, f := range s.Fields {
		if f != other.Fields[i] {
			return false
		}
	}
	return true
}
