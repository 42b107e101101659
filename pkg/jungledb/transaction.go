package jungledb

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jungledb/jungledb/pkg/jmetrics"
)

// TxState is a point in the transaction lifecycle.
type TxState int

const (
	// TxOpen is the initial state: reads and writes are accepted.
	TxOpen TxState = iota
	// TxCommitted is a root transaction accepted onto its ObjectStore's
	// committed stack, awaiting flush to the backend.
	TxCommitted
	// TxAborted is a terminal state reached by an explicit Abort.
	TxAborted
	// TxConflicted is a terminal state reached when Commit finds that the
	// store's newest committed state is no longer the one this transaction
	// was opened against, whether or not the writes overlap.
	TxConflicted
	// TxNested is a terminal state reached when a nested transaction's
	// writes have been merged into its parent.
	TxNested
	// TxFlushed is reached once a committed root transaction's deltas
	// have been written to the backend and it has left the stack.
	TxFlushed
)

func (s TxState) String() string {
	switch s {
	case TxOpen:
		return "open"
	case TxCommitted:
		return "committed"
	case TxAborted:
		return "aborted"
	case TxConflicted:
		return "conflicted"
	case TxNested:
		return "nested"
	case TxFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// txParent is satisfied by both *ObjectStore and *Transaction, letting a
// Transaction read through an arbitrary depth of committed-but-unflushed
// root transactions and open nested transactions without caring which kind
// sits above it.
type txParent interface {
	get(key string) (any, bool)
	indexView(name string) (Index, bool)
	keysList(rng *KeyRange) []string
}

// Transaction is the engine's layered optimistic transaction. Reads
// resolve against its own write set first, then its parent; writes are
// invisible to anyone but this transaction until Commit succeeds.
type Transaction struct {
	mu sync.Mutex

	id     string
	store  *ObjectStore
	parent txParent
	nested bool

	state TxState

	modified       map[string]any
	removed        map[string]struct{}
	originalValues map[string]any // first-observed value per touched key, or `absent`
	isTruncated    bool

	txIndices map[string]*TransactionIndex

	dependency *Transaction // the currently open nested child, if any

	// committedPrev/committedNext link this transaction into its
	// ObjectStore's FIFO stack of committed-but-unflushed transactions
	// once Commit succeeds for a root transaction.
	committedPrev *Transaction
	committedNext *Transaction
}

func newTransaction(store *ObjectStore, parent txParent, nested bool) *Transaction {
	t := &Transaction{
		id: uuid.NewString(), store: store, parent: parent, nested: nested, state: TxOpen,
		modified:       make(map[string]any),
		removed:        make(map[string]struct{}),
		originalValues: make(map[string]any),
		txIndices:      make(map[string]*TransactionIndex),
	}
	for _, desc := range store.backend.Indices() {
		if pv, ok := parent.indexView(desc.Name); ok {
			t.txIndices[desc.Name] = NewTransactionIndex(pv, t)
		}
	}
	return t
}

// ID returns the transaction's correlation identifier, stable for its
// whole lifetime, used only for logging and metrics.
func (t *Transaction) ID() string { return t.id }

// State reports the transaction's current lifecycle state.
func (t *Transaction) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) requireOpenLocked(op string) error {
	if t.state != TxOpen {
		return usageErrorf(op, "transaction is %s, not open", t.state)
	}
	if t.dependency != nil {
		return usageErrorf(op, "an open nested transaction must be committed or aborted first")
	}
	return nil
}

func (t *Transaction) getLocked(key string) (any, bool) {
	if _, ok := t.removed[key]; ok {
		return nil, false
	}
	if v, ok := t.modified[key]; ok {
		return v, true
	}
	if t.isTruncated {
		return nil, false
	}
	return t.parent.get(key)
}

// get implements txParent, letting a nested child or layered root
// transaction read through this one.
func (t *Transaction) get(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(key)
}

func (t *Transaction) trackReadLocked(key string) {
	if _, ok := t.originalValues[key]; ok {
		return
	}
	if _, ok := t.modified[key]; ok {
		return
	}
	if _, ok := t.removed[key]; ok {
		return
	}
	if t.isTruncated {
		t.originalValues[key] = absent
		return
	}
	if v, ok := t.parent.get(key); ok {
		t.originalValues[key] = v
	} else {
		t.originalValues[key] = absent
	}
}

// Get reads key as this transaction currently sees it.
func (t *Transaction) Get(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.getLocked(key)
	t.trackReadLocked(key)
	return v, ok
}

func (t *Transaction) indexViewLocked(name string) (Index, bool) {
	ti, ok := t.txIndices[name]
	if !ok {
		return nil, false
	}
	return ti, true
}

func (t *Transaction) indexView(name string) (Index, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.indexViewLocked(name)
}

// Index returns the transaction's view of the named secondary index,
// overlaying this transaction's own uncommitted writes on its parent's.
func (t *Transaction) Index(name string) (Index, bool) {
	return t.indexView(name)
}

// Put writes value under key, visible only within this transaction until
// Commit. It returns ErrUniquenessViolation without mutating anything if
// the write would violate a unique index. A nested transaction's Put checks
// only that transaction's own writes; any other collision is reported by
// Commit, at the latest when the writes are merged into a root transaction.
func (t *Transaction) Put(key string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOpenLocked("Put"); err != nil {
		return err
	}
	old, _ := t.getLocked(key)
	t.trackReadLocked(key)

	appliers := make([]func(), 0, len(t.txIndices))
	for _, ti := range t.txIndices {
		apply, err := ti.checkReindex(key, value, old, false)
		if err != nil {
			return err
		}
		appliers = append(appliers, apply)
	}
	for _, apply := range appliers {
		apply()
	}

	t.modified[key] = value
	delete(t.removed, key)
	return nil
}

// Remove deletes key within this transaction. It is a no-op if key is not
// visible to this transaction.
func (t *Transaction) Remove(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOpenLocked("Remove"); err != nil {
		return err
	}
	old, ok := t.getLocked(key)
	if !ok {
		return nil
	}
	t.trackReadLocked(key)
	for _, ti := range t.txIndices {
		ti.overlay.Remove(key, old)
	}
	t.removed[key] = struct{}{}
	delete(t.modified, key)
	return nil
}

// Truncate clears every key this transaction sees, committed or not.
func (t *Transaction) Truncate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOpenLocked("Truncate"); err != nil {
		return err
	}
	t.isTruncated = true
	t.modified = make(map[string]any)
	t.removed = make(map[string]struct{})
	for _, ti := range t.txIndices {
		ti.overlay.Truncate()
	}
	return nil
}

// Keys lists, in order, the primary keys this transaction would return
// from Get within rng (nil for unbounded), capped at limit (0 unlimited).
func (t *Transaction) Keys(rng *KeyRange, limit int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	combined := newOrderedMap()
	if !t.isTruncated {
		for _, k := range t.parent.keysList(rng) {
			if _, removed := t.removed[k]; removed {
				continue
			}
			combined.Set(k, struct{}{})
		}
	}
	for k := range t.modified {
		if rng == nil || rng.Includes(k) {
			combined.Set(k, struct{}{})
		}
	}

	var out []string
	c, ok := combined.GoTop()
	for ok {
		out = append(out, c.CurrentKey().(string))
		if limit > 0 && len(out) >= limit {
			break
		}
		ok = c.Next()
	}
	return out
}

// keysList implements txParent for a layered child transaction.
func (t *Transaction) keysList(rng *KeyRange) []string { return t.Keys(rng, 0) }

// Values resolves Keys(rng, limit) through Get.
func (t *Transaction) Values(rng *KeyRange, limit int) []any {
	keys := t.Keys(rng, limit)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		if v, ok := t.Get(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// Count returns len(Keys(rng, 0)).
func (t *Transaction) Count(rng *KeyRange) int { return len(t.Keys(rng, 0)) }

// OpenNested opens a child transaction layered on top of this one. Only one
// nested child may be open at a time; this transaction rejects Put, Remove,
// Truncate and Commit until the child is committed or aborted.
func (t *Transaction) OpenNested() (*Transaction, error) {
	t.mu.Lock()
	if err := t.requireOpenLocked("OpenNested"); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.mu.Unlock()
	// newTransaction reads t's index views, which takes t.mu, so the child
	// is built unlocked and t is checked again before it is attached.
	child := newTransaction(t.store, t, true)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOpenLocked("OpenNested"); err != nil {
		return nil, err
	}
	t.dependency = child
	jmetrics.TransactionsOpened.WithLabelValues(t.store.name, "nested").Inc()
	return child, nil
}

// touched and truncated implement the delta interface TransactionIndex
// overlays consult to know which primary keys a transaction's write set
// has claimed.
func (t *Transaction) touched(primaryKey string) (newValue, oldValue any, removed bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, isRemoved := t.removed[primaryKey]; isRemoved {
		return nil, originalOrNil(t, primaryKey), true, true
	}
	if v, isMod := t.modified[primaryKey]; isMod {
		return v, originalOrNil(t, primaryKey), false, true
	}
	return nil, nil, false, false
}

func (t *Transaction) truncated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isTruncated
}

func originalOrNil(t *Transaction, key string) any {
	v, ok := t.originalValues[key]
	if !ok || isAbsent(v) {
		return nil
	}
	return v
}

// Commit finalizes the transaction. A nested transaction merges its writes
// into its parent and becomes TxNested; a root transaction is validated
// against its ObjectStore and, on success, pushed onto the committed stack
// awaiting flush. It returns ErrOptimisticConflict,
// leaving the transaction TxConflicted, if the store's newest committed
// state is no longer the one this transaction opened against (another
// transaction committed first, even one with disjoint writes).
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	if err := t.requireOpenLocked("Commit"); err != nil {
		t.mu.Unlock()
		return err
	}
	nested := t.nested
	t.mu.Unlock()

	if nested {
		return t.commitNested()
	}
	return t.store.commitRoot(ctx, t)
}

func (t *Transaction) commitNested() error {
	parent, ok := t.parent.(*Transaction)
	if !ok {
		return usageErrorf("Commit", "nested transaction has no transaction parent")
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if parent.dependency != t {
		return usageErrorf("Commit", "transaction is not its parent's open nested transaction")
	}

	var appliers []func()
	for k, v := range t.modified {
		old := originalOrNil(t, k)
		for _, pti := range parent.txIndices {
			apply, err := pti.checkReindex(k, v, old, false)
			if err != nil {
				parent.dependency = nil
				t.state = TxAborted
				jmetrics.TransactionsAborted.WithLabelValues(t.store.name).Inc()
				return err
			}
			appliers = append(appliers, apply)
		}
	}
	for k := range t.removed {
		old := originalOrNil(t, k)
		for _, pti := range parent.txIndices {
			pk, ov := k, old
			appliers = append(appliers, func() { pti.overlay.Remove(pk, ov) })
		}
	}

	if t.isTruncated {
		parent.isTruncated = true
		parent.modified = make(map[string]any)
		parent.removed = make(map[string]struct{})
		for _, pti := range parent.txIndices {
			pti.overlay.Truncate()
		}
	}
	for _, apply := range appliers {
		apply()
	}
	for k, v := range t.modified {
		delete(parent.removed, k)
		parent.modified[k] = v
	}
	for k := range t.removed {
		delete(parent.modified, k)
		parent.removed[k] = struct{}{}
	}
	for k, v := range t.originalValues {
		if _, ok := parent.originalValues[k]; !ok {
			parent.originalValues[k] = v
		}
	}

	parent.dependency = nil
	t.state = TxNested
	jmetrics.TransactionsCommitted.WithLabelValues(t.store.name, "nested").Inc()
	return nil
}

// Abort discards the transaction's writes without applying them.
func (t *Transaction) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TxOpen {
		return usageErrorf("Abort", "transaction is %s, not open", t.state)
	}
	if t.dependency != nil {
		return usageErrorf("Abort", "an open nested transaction must be committed or aborted first")
	}
	if t.nested {
		if parent, ok := t.parent.(*Transaction); ok {
			parent.mu.Lock()
			if parent.dependency == t {
				parent.dependency = nil
			}
			parent.mu.Unlock()
		}
	}
	t.state = TxAborted
	jmetrics.TransactionsAborted.WithLabelValues(t.store.name).Inc()
	return nil
}
