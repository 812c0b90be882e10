package orm

import (
	"time"

	"github.com/vormlabs/vorm/codec"
)

// ToRow converts a record instance into the flat attribute mapping the store
// insert/upsert API expects. Every declared field is present in the output.
// A vector of the wrong length, a missing or null primary key, or a null
// non-nullable value fails with ErrSerialization; nothing is silently
// truncated, padded, or coerced.
func ToRow(r Record) (Row, error) {
	values := r.Values()
	out := make(Row, len(r.Fields()))
	for _, f := range r.Fields() {
		v, ok := values[f.Name]
		if !ok || v == nil {
			if f.PrimaryKey {
				return nil, &FieldError{Field: f.Name, Wrapped: ErrSerialization, Reason: "primary key is not set"}
			}
			if !f.Nullable {
				return nil, &FieldError{Field: f.Name, Wrapped: ErrSerialization, Reason: "non-nullable field is not set"}
			}
			out[f.Name] = nil
			continue
		}
		cv, err := checkValue(f, v)
		if err != nil {
			return nil, err
		}
		out[f.Name] = cv
	}
	return out, nil
}

// FromRow populates a record instance from a row returned by the store.
// Unknown extra keys are ignored so administrative fields the store adds do
// not break decoding. A missing non-nullable field fails with
// ErrDeserialization. Values are normalized to the canonical Go type of each
// field's kind before SetValues runs, so wire-level representations
// (float64 integers, []any vectors, RFC 3339 strings) decode uniformly.
func FromRow(r Record, raw Row) error {
	clean := make(Row, len(r.Fields()))
	for _, f := range r.Fields() {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			if !f.Nullable {
				return &FieldError{Field: f.Name, Wrapped: ErrDeserialization, Reason: "missing non-nullable field"}
			}
			continue
		}
		cv, err := normalize(f, v)
		if err != nil {
			return err
		}
		clean[f.Name] = cv
	}
	return r.SetValues(clean)
}

// FromRowPartial is FromRow for rows that intentionally carry a subset of
// the declared fields (restricted output-field projections). Missing fields
// are skipped regardless of nullability; present values are normalized and
// validated exactly as FromRow does.
func FromRowPartial(r Record, raw Row) error {
	clean := make(Row, len(raw))
	for _, f := range r.Fields() {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			continue
		}
		cv, err := normalize(f, v)
		if err != nil {
			return err
		}
		clean[f.Name] = cv
	}
	return r.SetValues(clean)
}

// checkValue validates that v already holds the canonical Go type for f.
func checkValue(f Field, v any) (any, error) {
	switch f.Kind {
	case KindInt64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
	case KindFloat64:
		if n, ok := v.(float64); ok {
			return n, nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindTimestamp:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	case KindFloatVector:
		vec, ok := v.([]float32)
		if !ok {
			break
		}
		if len(vec) != f.Dim {
			return nil, &FieldError{
				Field: f.Name, Value: len(vec), Wrapped: ErrSerialization,
				Reason: "vector length does not match declared dimensionality",
			}
		}
		return vec, nil
	case KindJSON:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, &FieldError{Field: f.Name, Value: v, Wrapped: ErrSerialization, Reason: "value does not match kind " + f.Kind.String()}
}

// normalize coerces a wire-level value into the canonical Go type for f.
func normalize(f Field, v any) (any, error) {
	switch f.Kind {
	case KindInt64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64:
			if n == float64(int64(n)) {
				return int64(n), nil
			}
		}
	case KindFloat64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err == nil {
				return parsed, nil
			}
		}
	case KindFloatVector:
		vec, err := toFloat32Slice(v)
		if err != nil {
			break
		}
		if len(vec) != f.Dim {
			return nil, &FieldError{
				Field: f.Name, Value: len(vec), Wrapped: ErrDeserialization,
				Reason: "vector length does not match declared dimensionality",
			}
		}
		return vec, nil
	case KindJSON:
		switch m := v.(type) {
		case map[string]any:
			return m, nil
		case string:
			var decoded map[string]any
			if err := codec.Default.Unmarshal([]byte(m), &decoded); err == nil {
				return decoded, nil
			}
		}
	}
	return nil, &FieldError{Field: f.Name, Value: v, Wrapped: ErrDeserialization, Reason: "value does not match kind " + f.Kind.String()}
}

func toFloat32Slice(v any) ([]float32, error) {
	switch vec := v.(type) {
	case []float32:
		return vec, nil
	case []float64:
		out := make([]float32, len(vec))
		for i, x := range vec {
			out[i] = float32(x)
		}
		return out, nil
	case []any:
		out := make([]float32, len(vec))
		for i, x := range vec {
			switch n := x.(type) {
			case float64:
				out[i] = float32(n)
			case float32:
				out[i] = n
			case int64:
				out[i] = float32(n)
			default:
				return nil, ErrDeserialization
			}
		}
		return out, nil
	}
	return nil, ErrDeserialization
}
