// Package session owns collection handle lifecycles: get-or-create the
// store-side collection for a registered record type, and track its
// loaded/unloaded state.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vormlabs/vorm/orm"
	"github.com/vormlabs/vorm/store"
)

// Session hands out one Collection handle per record type. Handles are
// created lazily on first access and cached for the session's lifetime.
type Session struct {
	driver store.Driver
	logger *slog.Logger

	mu          sync.Mutex
	collections map[string]*Collection
}

// New creates a Session over the given driver.
func New(driver store.Driver, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		driver:      driver,
		logger:      logger,
		collections: make(map[string]*Collection),
	}
}

// Driver exposes the underlying store driver.
func (s *Session) Driver() store.Driver { return s.driver }

// Collection returns the handle for a registered type, creating the
// store-side collection on first access if it does not exist.
func (s *Session) Collection(ctx context.Context, entry *orm.Entry) (*Collection, error) {
	s.mu.Lock()
	if c, ok := s.collections[entry.Schema.Collection]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	// Creation happens outside the session lock: it is a network round-trip
	// and the driver call is idempotent.
	if err := s.driver.CreateCollection(ctx, entry.Schema); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[entry.Schema.Collection]; ok {
		return c, nil
	}
	c := &Collection{
		name:   entry.Schema.Collection,
		schema: entry.Schema,
		driver: s.driver,
		logger: s.logger,
	}
	s.collections[entry.Schema.Collection] = c
	s.logger.Info("collection ready", "collection", c.name)
	return c, nil
}

// DropAll drops every collection this session has handed out.
func (s *Session) DropAll(ctx context.Context) error {
	s.mu.Lock()
	handles := make([]*Collection, 0, len(s.collections))
	for _, c := range s.collections {
		handles = append(handles, c)
	}
	s.collections = make(map[string]*Collection)
	s.mu.Unlock()

	for _, c := range handles {
		if err := s.driver.DropCollection(ctx, c.name); err != nil {
			return err
		}
		s.logger.Info("dropped collection", "collection", c.name)
	}
	return nil
}

// Close closes the underlying driver.
func (s *Session) Close() error {
	return s.driver.Close()
}

// Collection is the per-record-type handle. It tracks whether the collection
// is loaded for querying; Load and Unload are idempotent, and a failed
// transition leaves the logical state unchanged.
type Collection struct {
	name   string
	schema orm.Schema
	driver store.Driver
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Schema returns the collection schema. Read-only use.
func (c *Collection) Schema() orm.Schema { return c.schema }

// Loaded reports whether the collection is loaded.
func (c *Collection) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Load brings the collection into memory for querying. Loading an already
// loaded collection is a no-op.
func (c *Collection) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	if err := c.driver.Load(ctx, c.name); err != nil {
		return err
	}
	c.loaded = true
	c.logger.Debug("collection loaded", "collection", c.name)
	return nil
}

// Unload frees store-side query resources. Unloading an unloaded collection
// is a no-op.
func (c *Collection) Unload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil
	}
	if err := c.driver.Release(ctx, c.name); err != nil {
		return err
	}
	c.loaded = false
	c.logger.Debug("collection unloaded", "collection", c.name)
	return nil
}
