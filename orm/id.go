package orm

import "github.com/google/uuid"

// NewID returns a fresh UUID string for use as a primary key. Qdrant point
// ids must be UUIDs or unsigned integers, so string-keyed record types
// should mint their keys with this.
func NewID() string {
	return uuid.NewString()
}
