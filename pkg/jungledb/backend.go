package jungledb

import "context"

// Backend is the storage contract an ObjectStore reads through and flushes
// committed transactions into. InMemoryBackend implements it directly; a
// PersistentBackend implements it too, backed by durable storage, and is an
// external collaborator — only its contract lives in this package, not an
// implementation (see pkg/boltbackend for the one concrete adapter this
// module ships).
type Backend interface {
	Get(key string) (any, bool)
	Put(key string, value any)
	Remove(key string)
	Truncate()
	Keys(rng *KeyRange, limit int) []string
	Values(rng *KeyRange, limit int) []any
	Count(rng *KeyRange) int
	Length() int

	Index(name string) (*InMemoryIndex, bool)
	CreateIndex(desc IndexDescriptor)
	DropIndex(name string)
	Indices() []IndexDescriptor
}

// PersistentBackend is a Backend whose state survives process restarts. Its
// Flush is the only place committed transaction deltas reach durable
// storage; modified maps primary key to new value, removed
// is the set of deleted primary keys, and truncated means the whole store
// was cleared before modified/removed are applied.
type PersistentBackend interface {
	Backend
	Connect(ctx context.Context) error
	Close() error
	Flush(ctx context.Context, modified map[string]any, removed map[string]struct{}, truncated bool) error
}

// Destroyer is implemented by a PersistentBackend that can remove its
// underlying storage entirely, rather than merely closing its handle to it.
// JungleDB.Destroy uses it opportunistically; a backend that cannot support
// it (or a volatile one, which has nothing to remove) simply doesn't
// implement it.
type Destroyer interface {
	Destroy(ctx context.Context) error
}

// volatileBackend adapts an InMemoryBackend to the PersistentBackend
// contract for stores with no durability requirement at all — Connect and
// Close are no-ops, and Flush applies deltas straight to the same
// in-memory structures CreateVolatileObjectStore's ObjectStore reads.
type volatileBackend struct {
	*InMemoryBackend
}

func newVolatileBackend() *volatileBackend {
	return &volatileBackend{InMemoryBackend: NewInMemoryBackend()}
}

func (v *volatileBackend) Connect(context.Context) error { return nil }
func (v *volatileBackend) Close() error                  { return nil }

func (v *volatileBackend) Flush(_ context.Context, modified map[string]any, removed map[string]struct{}, truncated bool) error {
	if truncated {
		v.Truncate()
	}
	for k := range removed {
		v.Remove(k)
	}
	for k, val := range modified {
		v.Put(k, val)
	}
	return nil
}

// InMemoryBackend is a volatile Backend: a primary orderedMap of key to
// value plus a set of secondary InMemoryIndex trees kept coherent with
// every Put/Remove/Truncate.
type InMemoryBackend struct {
	primary *orderedMap // string -> any
	indices map[string]*InMemoryIndex
	order   []string // index names in creation order, for Indices()
}

// NewInMemoryBackend returns an empty backend with no declared indices.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{primary: newOrderedMap(), indices: make(map[string]*InMemoryIndex)}
}

func (b *InMemoryBackend) Get(key string) (any, bool) { return b.primary.Get(key) }

func (b *InMemoryBackend) Put(key string, value any) {
	old, _ := b.primary.Get(key)
	b.primary.Set(key, value)
	for _, idx := range b.indices {
		if err := idx.Put(key, value, old); err != nil {
			// Index maintenance here only fails for a uniqueness
			// violation; transactions check unique indices before their
			// writes reach a backend (Transaction.Put for a root
			// transaction, Commit for a nested one).
			panic(err)
		}
	}
}

func (b *InMemoryBackend) Remove(key string) {
	old, ok := b.primary.Get(key)
	if !ok {
		return
	}
	b.primary.Remove(key)
	for _, idx := range b.indices {
		idx.Remove(key, old)
	}
}

func (b *InMemoryBackend) Truncate() {
	b.primary = newOrderedMap()
	for _, idx := range b.indices {
		idx.Truncate()
	}
}

func (b *InMemoryBackend) Keys(rng *KeyRange, limit int) []string {
	var out []string
	c, ok := startCursor(b.primary, rng)
	for ok {
		k := c.CurrentKey().(string)
		if rng != nil && !rng.Includes(k) {
			break
		}
		out = append(out, k)
		if limit > 0 && len(out) >= limit {
			break
		}
		ok = c.Next()
	}
	return out
}

func (b *InMemoryBackend) Values(rng *KeyRange, limit int) []any {
	var out []any
	c, ok := startCursor(b.primary, rng)
	for ok {
		k := c.CurrentKey().(string)
		if rng != nil && !rng.Includes(k) {
			break
		}
		out = append(out, c.CurrentRecord())
		if limit > 0 && len(out) >= limit {
			break
		}
		ok = c.Next()
	}
	return out
}

func (b *InMemoryBackend) Count(rng *KeyRange) int {
	if rng == nil {
		return b.primary.Length()
	}
	return len(b.Keys(rng, 0))
}

func (b *InMemoryBackend) Length() int { return b.primary.Length() }

func (b *InMemoryBackend) Index(name string) (*InMemoryIndex, bool) {
	idx, ok := b.indices[name]
	return idx, ok
}

// CreateIndex declares a new secondary index and backfills it from every
// record already present in the backend: creating an index on a non-empty
// store indexes the existing rows immediately.
func (b *InMemoryBackend) CreateIndex(desc IndexDescriptor) {
	idx := NewInMemoryIndex(desc)
	c, ok := b.primary.GoTop()
	for ok {
		key := c.CurrentKey().(string)
		if err := idx.Put(key, c.CurrentRecord(), nil); err != nil {
			panic(err)
		}
		ok = c.Next()
	}
	if _, exists := b.indices[desc.Name]; !exists {
		b.order = append(b.order, desc.Name)
	}
	b.indices[desc.Name] = idx
}

func (b *InMemoryBackend) DropIndex(name string) {
	delete(b.indices, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *InMemoryBackend) Indices() []IndexDescriptor {
	out := make([]IndexDescriptor, 0, len(b.order))
	for _, n := range b.order {
		out = append(out, b.indices[n].Descriptor())
	}
	return out
}

func startCursor(m *orderedMap, rng *KeyRange) (*Cursor, bool) {
	if rng != nil && rng.HasLower {
		return m.GoToLowerBound(rng.Lower, rng.LowerOpen)
	}
	return m.GoTop()
}
