package orm

import (
	"time"

	"github.com/vormlabs/vorm/codec"
)

// MarshalText encodes a record as a JSON object whose keys and value shapes
// match the collection schema exactly. This is the documented interop format
// for moving a record outside the process (message queues, file export).
//
// Timestamps are encoded as RFC 3339 with nanosecond precision and
// round-trip to the same instant. Vector values are encoded with the
// shortest float32 representation and round-trip bit-exactly.
func MarshalText(r Record) ([]byte, error) {
	row, err := ToRow(r)
	if err != nil {
		return nil, err
	}
	obj := make(map[string]any, len(row))
	for k, v := range row {
		if t, ok := v.(time.Time); ok {
			obj[k] = t.Format(time.RFC3339Nano)
			continue
		}
		obj[k] = v
	}
	data, err := codec.Default.Marshal(obj)
	if err != nil {
		return nil, &FieldError{Wrapped: ErrSerialization, Reason: err.Error()}
	}
	return data, nil
}

// UnmarshalText populates a record from its MarshalText form. Unknown keys
// are ignored; a missing non-nullable field fails with ErrDeserialization.
func UnmarshalText(r Record, data []byte) error {
	var raw map[string]any
	if err := codec.Default.Unmarshal(data, &raw); err != nil {
		return &FieldError{Wrapped: ErrDeserialization, Reason: err.Error()}
	}
	return FromRow(r, Row(raw))
}
