// Package boltbackend adapts go.etcd.io/bbolt's memory-mapped B+-tree file
// format to the jungledb.PersistentBackend contract. One bbolt file holds
// one object store: a "data" bucket of primary-key to encoded-value pairs,
// and a "schema" bucket recording declared index descriptors so they
// survive a process restart.
//
// Secondary indices themselves are not bbolt buckets; they are rebuilt into
// an in-memory jungledb.InMemoryIndex on Connect (backfilled from the data
// bucket) and kept coherent on every Flush/Put/Remove/Truncate/CreateIndex,
// the same shape jungledb.InMemoryBackend uses. Only the primary key space
// is read through bbolt's mmap, since that is the one collection expected
// to outgrow memory.
package boltbackend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/jungledb/jungledb/pkg/jlog"
	"github.com/jungledb/jungledb/pkg/jungledb"
)

var (
	bucketData   = []byte("data")
	bucketSchema = []byte("schema")
)

// Backend is a jungledb.PersistentBackend backed by a single bbolt file.
type Backend struct {
	path  string
	codec jungledb.Codec

	mu      sync.RWMutex
	db      *bolt.DB
	indices map[string]*jungledb.InMemoryIndex
	order   []string
}

// New returns a Backend that will open (or create) <dataDir>/<store>.db on
// Connect. codec encodes values for storage; a nil codec defaults to
// JSONCodec.
func New(dataDir, store string, codec jungledb.Codec) *Backend {
	if codec == nil {
		codec = jungledb.JSONCodec{}
	}
	return &Backend{
		path:    filepath.Join(dataDir, store+".db"),
		codec:   codec,
		indices: make(map[string]*jungledb.InMemoryIndex),
	}
}

// Connect opens the underlying file, creates the data/schema buckets if
// absent, and rebuilds every previously declared index from the data
// bucket.
func (b *Backend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	db, err := bolt.Open(b.path, 0600, nil)
	if err != nil {
		return err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketData); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketSchema)
		return err
	}); err != nil {
		db.Close()
		return err
	}
	b.db = db

	descs, err := b.loadSchemaLocked()
	if err != nil {
		db.Close()
		return err
	}
	for _, desc := range descs {
		if err := b.backfillIndexLocked(desc); err != nil {
			db.Close()
			return err
		}
	}
	jlog.WithComponent("boltbackend").Info().Str("path", b.path).Int("indices", len(descs)).Msg("connected")
	return nil
}

// Close releases the file handle without removing it.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Destroy closes and removes the backing file, implementing
// jungledb.Destroyer.
func (b *Backend) Destroy(ctx context.Context) error {
	if err := b.Close(); err != nil {
		return err
	}
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *Backend) loadSchemaLocked() ([]jungledb.IndexDescriptor, error) {
	var descs []jungledb.IndexDescriptor
	err := b.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketSchema)
		return sb.ForEach(func(k, v []byte) error {
			var desc jungledb.IndexDescriptor
			if err := json.Unmarshal(v, &desc); err != nil {
				return err
			}
			descs = append(descs, desc)
			return nil
		})
	})
	return descs, err
}

// backfillIndexLocked builds desc's in-memory index by scanning every
// record currently in the data bucket. b.mu must be held for writing.
func (b *Backend) backfillIndexLocked(desc jungledb.IndexDescriptor) error {
	idx := jungledb.NewInMemoryIndex(desc)
	err := b.db.View(func(tx *bolt.Tx) error {
		db := tx.Bucket(bucketData)
		c := db.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			value, err := b.decodeLocked(v)
			if err != nil {
				return err
			}
			if err := idx.Put(string(k), value, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if _, exists := b.indices[desc.Name]; !exists {
		b.order = append(b.order, desc.Name)
	}
	b.indices[desc.Name] = idx
	return nil
}

func (b *Backend) decodeLocked(data []byte) (any, error) {
	var out any
	if err := b.codec.Decode(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get reads a single record directly from the mmap'd data bucket.
func (b *Backend) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var value any
	var found bool
	_ = b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketData).Get([]byte(key))
		if data == nil {
			return nil
		}
		v, err := b.decodeLocked(data)
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	return value, found
}

// Put writes key synchronously, outside of the flush protocol, keeping
// every declared index coherent.
func (b *Backend) Put(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old, _ := b.getLocked(key)
	data, err := b.codec.Encode(value)
	if err != nil {
		panic(err)
	}
	if err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Put([]byte(key), data)
	}); err != nil {
		panic(err)
	}
	for _, idx := range b.indices {
		if err := idx.Put(key, value, old); err != nil {
			panic(err)
		}
	}
}

func (b *Backend) getLocked(key string) (any, bool) {
	var value any
	var found bool
	_ = b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketData).Get([]byte(key))
		if data == nil {
			return nil
		}
		v, err := b.decodeLocked(data)
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	return value, found
}

// Remove deletes key synchronously, outside of the flush protocol.
func (b *Backend) Remove(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old, ok := b.getLocked(key)
	if !ok {
		return
	}
	if err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Delete([]byte(key))
	}); err != nil {
		panic(err)
	}
	for _, idx := range b.indices {
		idx.Remove(key, old)
	}
}

// Truncate drops every record and clears every index.
func (b *Backend) Truncate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketData); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketData)
		return err
	}); err != nil {
		panic(err)
	}
	for _, idx := range b.indices {
		idx.Truncate()
	}
}

// Keys lists, in bbolt's native byte order, the keys within rng.
func (b *Backend) Keys(rng *jungledb.KeyRange, limit int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	_ = b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketData).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			key := string(k)
			if rng != nil && !rng.Includes(key) {
				continue
			}
			out = append(out, key)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out
}

// Values resolves Keys(rng, limit) to their decoded values.
func (b *Backend) Values(rng *jungledb.KeyRange, limit int) []any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []any
	_ = b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketData).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			key := string(k)
			if rng != nil && !rng.Includes(key) {
				continue
			}
			value, err := b.decodeLocked(v)
			if err != nil {
				return err
			}
			out = append(out, value)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out
}

// Count returns len(Keys(rng, 0)), or the bucket's total key count for an
// unbounded range.
func (b *Backend) Count(rng *jungledb.KeyRange) int {
	if rng == nil {
		return b.Length()
	}
	return len(b.Keys(rng, 0))
}

// Length returns the total number of records in the data bucket.
func (b *Backend) Length() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketData).Stats().KeyN
		return nil
	})
	return n
}

// Index returns the named index's current in-memory view.
func (b *Backend) Index(name string) (*jungledb.InMemoryIndex, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, ok := b.indices[name]
	return idx, ok
}

// CreateIndex declares desc, backfills it from the data bucket already on
// disk, and then persists it to the schema bucket. A failed backfill (such
// as a uniqueness violation) panics before the schema bucket is written.
func (b *Backend) CreateIndex(desc jungledb.IndexDescriptor) {
	b.mu.Lock()
	data, err := json.Marshal(desc)
	if err != nil {
		b.mu.Unlock()
		panic(err)
	}
	if err := b.backfillIndexLocked(desc); err != nil {
		b.mu.Unlock()
		panic(err)
	}
	if err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchema).Put([]byte(desc.Name), data)
	}); err != nil {
		b.mu.Unlock()
		panic(err)
	}
	b.mu.Unlock()
}

// DropIndex removes a previously declared index.
func (b *Backend) DropIndex(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchema).Delete([]byte(name))
	}); err != nil {
		panic(err)
	}
	delete(b.indices, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Indices lists every currently declared index descriptor, in creation
// order.
func (b *Backend) Indices() []jungledb.IndexDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]jungledb.IndexDescriptor, 0, len(b.order))
	for _, n := range b.order {
		out = append(out, b.indices[n].Descriptor())
	}
	return out
}

// Flush applies a committed transaction's deltas in a single bbolt
// read-write transaction, keeping every in-memory index coherent in the
// same pass.
func (b *Backend) Flush(ctx context.Context, modified map[string]any, removed map[string]struct{}, truncated bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.Update(func(tx *bolt.Tx) error {
		db := tx.Bucket(bucketData)
		if truncated {
			if err := tx.DeleteBucket(bucketData); err != nil {
				return err
			}
			nb, err := tx.CreateBucket(bucketData)
			if err != nil {
				return err
			}
			db = nb
			for _, idx := range b.indices {
				idx.Truncate()
			}
		}
		for key := range removed {
			old, err := b.decodeFromBucket(db, key)
			if err != nil {
				return err
			}
			if err := db.Delete([]byte(key)); err != nil {
				return err
			}
			if old != nil {
				for _, idx := range b.indices {
					idx.Remove(key, old)
				}
			}
		}
		for key, value := range modified {
			old, err := b.decodeFromBucket(db, key)
			if err != nil {
				return err
			}
			data, err := b.codec.Encode(value)
			if err != nil {
				return err
			}
			if err := db.Put([]byte(key), data); err != nil {
				return err
			}
			for _, idx := range b.indices {
				if err := idx.Put(key, value, old); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (b *Backend) decodeFromBucket(db *bolt.Bucket, key string) (any, error) {
	data := db.Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	return b.decodeLocked(data)
}
