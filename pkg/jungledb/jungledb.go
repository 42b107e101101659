// Package jungledb implements an embedded, transactional key/value storage
// engine with secondary indices, layered optimistic transactions, and
// atomic multi-store commits. See doc.go for the architecture overview.
package jungledb

import (
	"context"
	"sync"
)

// BackendFactory constructs the PersistentBackend for a named object store.
// A JungleDB is given one at Connect and calls it once per distinct store
// name the first time CreateObjectStore sees it.
type BackendFactory func(storeName string) (PersistentBackend, error)

// JungleDB is the top-level database handle: a named
// collection of ObjectStores sharing one Synchronizer, so that a
// CombinedTransaction spanning several of them commits as a single
// serialized step.
type JungleDB struct {
	mu        sync.Mutex
	name      string
	sync      *Synchronizer
	stores    map[string]*ObjectStore
	factory   BackendFactory
	cacheSize int
	closed    bool
}

// Connect opens (creating if necessary) a database named name, using
// factory to construct each object store's backend on first use. cacheSize
// is the per-store LRU read-cache capacity (0 disables caching).
func Connect(name string, cacheSize int, factory BackendFactory) *JungleDB {
	return &JungleDB{
		name:      name,
		sync:      NewSynchronizer(),
		stores:    make(map[string]*ObjectStore),
		factory:   factory,
		cacheSize: cacheSize,
	}
}

// Name returns the database's name.
func (db *JungleDB) Name() string { return db.name }

// CreateObjectStore returns the named store, creating and connecting its
// backend on first use. Subsequent calls with the same name return the
// same *ObjectStore.
func (db *JungleDB) CreateObjectStore(ctx context.Context, name string) (*ObjectStore, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if s, exists := db.stores[name]; exists {
		return s, nil
	}
	backend, err := db.factory(name)
	if err != nil {
		return nil, backendErrorf("CreateObjectStore", false, err)
	}
	if err := backend.Connect(ctx); err != nil {
		return nil, backendErrorf("CreateObjectStore", false, err)
	}
	store := newObjectStore(name, backend, db.cacheSize, db.sync)
	db.stores[name] = store
	return store, nil
}

// ObjectStore returns the named store if it has already been created.
func (db *JungleDB) ObjectStore(name string) (*ObjectStore, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.stores[name]
	return s, ok
}

// DeleteObjectStore closes and forgets the named store. It does not erase
// the backend's durable data; call Destroy for that.
func (db *JungleDB) DeleteObjectStore(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	store, ok := db.stores[name]
	if !ok {
		return schemaErrorf("DeleteObjectStore", "no such object store %q", name)
	}
	if err := store.backend.Close(); err != nil {
		return backendErrorf("DeleteObjectStore", false, err)
	}
	delete(db.stores, name)
	return nil
}

// Close closes every object store's backend and stops the Synchronizer.
// The JungleDB must not be used afterwards.
func (db *JungleDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	var firstErr error
	for _, s := range db.stores {
		if err := s.backend.Close(); err != nil && firstErr == nil {
			firstErr = backendErrorf("Close", false, err)
		}
	}
	db.sync.Stop()
	db.closed = true
	return firstErr
}

// Destroy closes the database and removes every store's durable data, for
// backends implementing Destroyer. Stores whose backend doesn't support
// destruction are simply closed.
func (db *JungleDB) Destroy(ctx context.Context) error {
	db.mu.Lock()
	stores := make([]*ObjectStore, 0, len(db.stores))
	for _, s := range db.stores {
		stores = append(stores, s)
	}
	db.mu.Unlock()

	for _, s := range stores {
		if d, ok := s.backend.(Destroyer); ok {
			if err := d.Destroy(ctx); err != nil {
				return backendErrorf("Destroy", false, err)
			}
		}
	}
	return db.Close()
}

// CreateVolatileObjectStore returns a standalone ObjectStore with no
// persistence and no relation to any JungleDB instance: every commit lives
// only in memory, and Flush moves the oldest committed transaction into an
// in-memory backend. It is useful for scratch data and
// for tests that want JungleDB's transactional semantics without a backend.
func CreateVolatileObjectStore(name string, cacheSize int) *ObjectStore {
	return newObjectStore(name, newVolatileBackend(), cacheSize, NewSynchronizer())
}

// CommitCombined builds and commits a CombinedTransaction over txs in one
// call.
func CommitCombined(ctx context.Context, txs ...*Transaction) error {
	ct, err := NewCombinedTransaction(txs...)
	if err != nil {
		return err
	}
	return ct.Commit(ctx)
}
