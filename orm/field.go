// Package orm declares record types, derives collection schemas from them,
// and converts record instances to and from the store's row representation.
package orm

import "fmt"

// Kind is the semantic type of a declared field.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt64
	KindFloat64
	KindString
	KindBool
	KindTimestamp
	KindFloatVector
	KindJSON
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "Int64"
	case KindFloat64:
		return "Float64"
	case KindString:
		return "String"
	case KindBool:
		return "Bool"
	case KindTimestamp:
		return "Timestamp"
	case KindFloatVector:
		return "FloatVector"
	case KindJSON:
		return "JSON"
	default:
		return "Invalid"
	}
}

// Metric is the distance metric used for similarity search.
type Metric uint8

const (
	MetricUnspecified Metric = iota
	MetricL2
	MetricIP
	MetricCosine
)

// String returns the string representation of the Metric.
func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricIP:
		return "IP"
	case MetricCosine:
		return "COSINE"
	default:
		return "UNSPECIFIED"
	}
}

// Field describes one declared attribute of a record type.
// A Field is plain data; it is never mutated after declaration.
type Field struct {
	Name       string
	Kind       Kind
	Dim        int // vector dimensionality, only meaningful for KindFloatVector
	PrimaryKey bool
	Nullable   bool
}

func (f Field) String() string {
	s := fmt.Sprintf("%s %s", f.Name, f.Kind)
	if f.Kind == KindFloatVector {
		s += fmt.Sprintf("(%d)", f.Dim)
	}
	if f.PrimaryKey {
		s += " pk"
	}
	if f.Nullable {
		s += " nullable"
	}
	return s
}

// IndexSpec holds the vector index parameters of a collection.
type IndexSpec struct {
	Metric Metric
	Params map[string]any
}
