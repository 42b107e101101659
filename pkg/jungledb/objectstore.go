package jungledb

import (
	"context"
	"sync"

	"github.com/jungledb/jungledb/pkg/jlog"
	"github.com/jungledb/jungledb/pkg/jmetrics"
)

// ObjectStore is a single named collection of records plus its secondary
// indices. It owns a PersistentBackend (or an in-memory one
// for volatile stores) and a FIFO stack of committed-but-unflushed root
// transactions layered on top of it.
type ObjectStore struct {
	mu      sync.Mutex
	name    string
	backend PersistentBackend
	cache   *lruCache
	sync    *Synchronizer

	head *Transaction // most recently committed, unflushed transaction
	tail *Transaction // oldest committed, unflushed transaction
}

func newObjectStore(name string, backend PersistentBackend, cacheSize int, sync *Synchronizer) *ObjectStore {
	return &ObjectStore{name: name, backend: backend, cache: newLRUCache(cacheSize), sync: sync}
}

// Name returns the object store's name.
func (s *ObjectStore) Name() string { return s.name }

// get implements txParent for a root transaction pinned directly to the
// backend (the committed stack was empty when it opened).
func (s *ObjectStore) get(key string) (any, bool) {
	if v, ok := s.cache.get(key); ok {
		return v, true
	}
	v, ok := s.backend.Get(key)
	if ok {
		s.cache.put(key, v)
	}
	return v, ok
}

func (s *ObjectStore) indexView(name string) (Index, bool) {
	idx, ok := s.backend.Index(name)
	if !ok {
		return nil, false
	}
	return idx, true
}

func (s *ObjectStore) keysList(rng *KeyRange) []string { return s.backend.Keys(rng, 0) }

func (s *ObjectStore) headOrSelf() txParent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.head != nil {
		return s.head
	}
	return s
}

// Get reads key as of the most recent commit to this store, whether or not
// it has been flushed to the backend yet.
func (s *ObjectStore) Get(key string) (any, bool) { return s.headOrSelf().get(key) }

// Keys lists, in order, the primary keys within rng (nil for unbounded),
// capped at limit (0 unlimited), as of the most recent commit.
func (s *ObjectStore) Keys(rng *KeyRange, limit int) []string {
	if tx, ok := s.headOrSelf().(*Transaction); ok {
		return tx.Keys(rng, limit)
	}
	return s.backend.Keys(rng, limit)
}

// Values resolves Keys(rng, limit) to their current values.
func (s *ObjectStore) Values(rng *KeyRange, limit int) []any {
	if tx, ok := s.headOrSelf().(*Transaction); ok {
		return tx.Values(rng, limit)
	}
	return s.backend.Values(rng, limit)
}

// Count returns len(Keys(rng, 0)).
func (s *ObjectStore) Count(rng *KeyRange) int {
	if tx, ok := s.headOrSelf().(*Transaction); ok {
		return tx.Count(rng)
	}
	return s.backend.Count(rng)
}

// Index returns the store's current view of the named secondary index.
func (s *ObjectStore) Index(name string) (Index, bool) { return s.headOrSelf().indexView(name) }

// Begin opens a new root transaction layered on top of this store's most
// recently committed state.
func (s *ObjectStore) Begin() *Transaction {
	s.mu.Lock()
	var parent txParent = s
	if s.head != nil {
		parent = s.head
	}
	s.mu.Unlock()
	jmetrics.TransactionsOpened.WithLabelValues(s.name, "root").Inc()
	return newTransaction(s, parent, false)
}

// CreateIndex declares a new index, backfilling it from every record
// already committed to the backend. It is serialized
// against transaction commits through the shared Synchronizer.
func (s *ObjectStore) CreateIndex(desc IndexDescriptor) error {
	timer := jmetrics.NewTimer()
	err := s.sync.Execute(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.backend.Index(desc.Name); exists {
			return schemaErrorf("CreateIndex", "index %q already exists on store %q", desc.Name, s.name)
		}
		s.backend.CreateIndex(desc)
		return nil
	})
	timer.ObserveDurationVec(jmetrics.IndexBackfillDuration, s.name, desc.Name)
	if err != nil {
		jlog.WithStore(s.name).Warn().Err(err).Str("index", desc.Name).Msg("create index failed")
	}
	return err
}

// DropIndex removes a previously declared index.
func (s *ObjectStore) DropIndex(name string) error {
	return s.sync.Execute(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.backend.DropIndex(name)
		return nil
	})
}

// commitRoot validates and, if clean, commits a root transaction, all on
// the store's shared Synchronizer lane so concurrent commits serialize.
func (s *ObjectStore) commitRoot(ctx context.Context, t *Transaction) error {
	timer := jmetrics.NewTimer()
	err := s.sync.Execute(func() error {
		if err := s.validateRoot(t); err != nil {
			return err
		}
		s.pushRoot(t)
		return nil
	})
	timer.ObserveDurationVec(jmetrics.CommitDuration, s.name)
	log := jlog.WithStore(s.name)
	if err != nil {
		jmetrics.TransactionsConflicted.WithLabelValues(s.name).Inc()
		log.Debug().Str("tx_id", t.ID()).Err(err).Msg("transaction commit rejected")
		return err
	}
	jmetrics.TransactionsCommitted.WithLabelValues(s.name, "root").Inc()
	log.Debug().Str("tx_id", t.ID()).Msg("transaction committed")
	return nil
}

// validateRoot enforces that at most one child of a given parent may
// commit: t may only commit if the store's frontier — its head committed
// transaction, or the store itself if nothing has committed yet — is still
// the exact parent t opened against. Any other open transaction sharing
// that parent, overlapping writes or not, is CONFLICTED once a sibling
// commits first. Must run on the Synchronizer lane.
func (s *ObjectStore) validateRoot(t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.mu.Lock()
	snapshotParent := t.parent
	t.mu.Unlock()

	var frontier txParent = s
	if s.head != nil {
		frontier = s.head
	}
	if frontier == snapshotParent {
		return nil
	}
	t.mu.Lock()
	t.state = TxConflicted
	t.mu.Unlock()
	return ErrOptimisticConflict
}

// pushRoot commits an already-validated transaction onto the stack. Must
// run on the Synchronizer lane, immediately after a successful
// validateRoot for the same transaction.
func (s *ObjectStore) pushRoot(t *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.mu.Lock()
	t.state = TxCommitted
	t.committedPrev = s.head
	modified := cloneValues(t.modified)
	removed := cloneKeys(t.removed)
	truncated := t.isTruncated
	t.mu.Unlock()

	if s.head != nil {
		s.head.committedNext = t
	}
	s.head = t
	if s.tail == nil {
		s.tail = t
	}

	if truncated {
		s.cache.clear()
	}
	for k := range removed {
		s.cache.remove(k)
	}
	for k, v := range modified {
		s.cache.put(k, v)
	}

	jmetrics.CommittedStackDepth.WithLabelValues(s.name).Set(float64(s.stackDepthLocked()))
}

// stackDepthLocked counts the committed-but-unflushed stack. s.mu must be
// held.
func (s *ObjectStore) stackDepthLocked() int {
	n := 0
	for node := s.head; node != nil; node = node.committedPrev {
		n++
	}
	return n
}

// Flush writes the oldest committed-but-unflushed transaction to the
// backend and removes it from the stack. It is a no-op if
// nothing is pending.
func (s *ObjectStore) Flush(ctx context.Context) error {
	timer := jmetrics.NewTimer()
	err := s.sync.Execute(func() error { return s.doFlushOldest(ctx) })
	timer.ObserveDurationVec(jmetrics.FlushDuration, s.name)
	if err != nil {
		jlog.WithStore(s.name).Error().Err(err).Msg("flush failed")
	}
	return err
}

func (s *ObjectStore) doFlushOldest(ctx context.Context) error {
	s.mu.Lock()
	oldest := s.tail
	if oldest == nil {
		s.mu.Unlock()
		return nil
	}
	oldest.mu.Lock()
	modified := cloneValues(oldest.modified)
	removed := cloneKeys(oldest.removed)
	truncated := oldest.isTruncated
	oldest.mu.Unlock()
	s.mu.Unlock()

	if err := s.backend.Flush(ctx, modified, removed, truncated); err != nil {
		return backendErrorf("Flush", true, err)
	}

	s.mu.Lock()
	s.tail = oldest.committedNext
	if s.tail == nil {
		s.head = nil
	} else {
		s.tail.committedPrev = nil
	}
	jmetrics.CommittedStackDepth.WithLabelValues(s.name).Set(float64(s.stackDepthLocked()))
	s.mu.Unlock()

	oldest.mu.Lock()
	oldest.state = TxFlushed
	oldest.mu.Unlock()
	return nil
}

func cloneValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneKeys(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
