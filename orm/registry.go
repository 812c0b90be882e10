package orm

import "sync"

// Entry is one registered record type: its name, derived schema, factory for
// decoding, and whether it backs migration bookkeeping rather than
// application data.
type Entry struct {
	Name        string
	Schema      Schema
	New         func() Record
	IsMigration bool
}

// Registry maps record-type names to their entries. It is constructed
// explicitly and passed to whatever needs it; the intended lifecycle is
// register everything during startup, read-only afterwards. Registration is
// still safe against concurrent readers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// RegisterOption customizes a registration.
type RegisterOption func(*Entry)

// WithMigration marks the type as a migration collection so schema tooling
// enumerating All can distinguish bookkeeping collections from data.
func WithMigration() RegisterOption {
	return func(e *Entry) { e.IsMigration = true }
}

// Register derives the schema for the type produced by factory and stores it
// under name. Re-registering an identical type is a no-op; re-registering
// name with a structurally different schema fails with ErrRegistryConflict.
func (r *Registry) Register(name string, factory func() Record, opts ...RegisterOption) (*Entry, error) {
	schema, err := Derive(factory())
	if err != nil {
		return nil, err
	}

	entry := &Entry{Name: name, Schema: schema, New: factory}
	for _, opt := range opts {
		opt(entry)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[name]; ok {
		if existing.Schema.Equal(schema) {
			return existing, nil
		}
		return nil, &ConflictError{Name: name}
	}
	r.entries[name] = entry
	r.order = append(r.order, name)
	return entry, nil
}

// Get looks up a registered type by name. Lookup is case-sensitive and
// exact; absence is a normal outcome, not an error.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// All returns every registered entry in registration order, so migration
// tooling can enumerate deterministically.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}
