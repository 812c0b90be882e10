package orm

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match with errors.Is.
var (
	// ErrSchema marks a malformed or mismatched schema. Caller bug, never retried.
	ErrSchema = errors.New("schema error")
	// ErrRegistryConflict marks a duplicate incompatible registration.
	ErrRegistryConflict = errors.New("registry conflict")
	// ErrSerialization marks a record that cannot be encoded as a row.
	ErrSerialization = errors.New("serialization error")
	// ErrDeserialization marks a row that cannot be decoded into a record.
	ErrDeserialization = errors.New("deserialization error")
	// ErrNotFound marks an expected absence, not a store fault.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuery marks a malformed filter or criteria set.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrStoreUnavailable marks a transient infrastructure fault. Safe to
	// retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotLoaded marks an operation that requires a loaded collection.
	ErrNotLoaded = errors.New("collection not loaded")
)

// SchemaError wraps ErrSchema with the offending collection and field.
type SchemaError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema %s: %s", e.Collection, e.Reason)
	}
	return fmt.Sprintf("schema %s: field %s: %s", e.Collection, e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// FieldError wraps a serialization or deserialization sentinel with the
// field that violated its declared shape.
type FieldError struct {
	Field   string
	Value   any
	Wrapped error
	Reason  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %s: %s (value=%v)", e.Wrapped, e.Field, e.Reason, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Wrapped }

// ConflictError wraps ErrRegistryConflict with both schemas' names.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("registry conflict: %s already registered with a different schema", e.Name)
}

func (e *ConflictError) Unwrap() error { return ErrRegistryConflict }
