package jungledb

import "sync"

// Index is the read surface shared by InMemoryIndex and TransactionIndex,
// letting a transaction's index view and its parent's committed index be
// queried through the same calls regardless of nesting depth.
type Index interface {
	Descriptor() IndexDescriptor
	Keys(rng *KeyRange, limit int) []string
	Values(rng *KeyRange, limit int, get func(string) (any, bool)) []any
	Count(rng *KeyRange) int
	MinKeys(rng *KeyRange) []string
	MaxKeys(rng *KeyRange) []string
	MinValues(rng *KeyRange, get func(string) (any, bool)) []any
	MaxValues(rng *KeyRange, get func(string) (any, bool)) []any
	KeyStream(cb func(secondaryKey any, primaryKey string) bool, ascending bool, rng *KeyRange)
}

// delta is the write-set view a Transaction exposes to its TransactionIndex
// overlays: which primary keys it touched, and with what old/new value.
type delta interface {
	touched(primaryKey string) (newValue any, oldValue any, removed bool, ok bool)
	truncated() bool
}

// TransactionIndex is the overlay type that answers index queries
// for a transaction by merging its parent's index (already-committed state,
// or an enclosing transaction's own TransactionIndex) with the small
// overlay index built only from this transaction's own write set, rather
// than ever materializing the full merged index.
type TransactionIndex struct {
	desc    IndexDescriptor
	parent  Index
	overlay *InMemoryIndex // indexes only primary keys this transaction modified
	d       delta
}

// NewTransactionIndex builds the overlay for parent (the enclosing
// committed or transactional index) given this transaction's delta.
func NewTransactionIndex(parent Index, d delta) *TransactionIndex {
	return &TransactionIndex{desc: parent.Descriptor(), parent: parent, overlay: NewInMemoryIndex(parent.Descriptor()), d: d}
}

// checkReindex validates a pending Put/Remove without mutating anything,
// returning a closure that performs the mutation on the overlay. A put is
// checked against the overlay and, for a unique index owned by a root
// transaction that has not truncated, against the parent's view too
// (entries for primary keys this transaction touched are skipped). A
// nested transaction's put is checked against its overlay only. The
// owning Transaction calls checkReindex across every declared index first,
// and only invokes the returned closures once all of them succeed, so a
// uniqueness violation on one index never leaves another half-updated.
func (ti *TransactionIndex) checkReindex(primaryKey string, newValue, oldValue any, isRemove bool) (apply func(), err error) {
	if isRemove {
		return func() { ti.overlay.Remove(primaryKey, oldValue) }, nil
	}
	newKeys, oldKeys, err := ti.overlay.CheckPut(primaryKey, newValue, oldValue)
	if err != nil {
		return nil, err
	}
	if t, ok := ti.d.(*Transaction); ok && ti.desc.Unique && !t.nested && !t.isTruncated {
		for _, sk := range newKeys {
			rng := Only(sk)
			for _, pk := range ti.parent.Keys(&rng, 0) {
				_, inMod := t.modified[pk]
				_, inRem := t.removed[pk]
				if pk != primaryKey && !inMod && !inRem {
					return nil, uniquenessViolation(ti.desc.Name, sk)
				}
			}
		}
	}
	return func() { ti.overlay.ApplyPut(primaryKey, newKeys, oldKeys) }, nil
}

func (ti *TransactionIndex) Descriptor() IndexDescriptor { return ti.desc }

type kv struct {
	sk any
	pk string
}

// pull turns idx.KeyStream's push callback into a goroutine-fed channel so
// the merge below can consume two ordered streams lazily instead of
// collecting either side into a slice first.
func pull(idx Index, ascending bool, rng *KeyRange) (next func() (kv, bool), stop func()) {
	ch := make(chan kv)
	stopCh := make(chan struct{})
	go func() {
		defer close(ch)
		idx.KeyStream(func(sk any, pk string) bool {
			select {
			case ch <- kv{sk, pk}:
				return true
			case <-stopCh:
				return false
			}
		}, ascending, rng)
	}()
	var once sync.Once
	stop = func() { once.Do(func() { close(stopCh) }) }
	next = func() (kv, bool) {
		v, ok := <-ch
		return v, ok
	}
	return
}

// KeyStream merges the parent stream (skipping any primary key this
// transaction touched, since the overlay carries the authoritative entry
// for those) with the overlay stream, in secondary-key order and, on ties,
// primary-key order matching the requested direction.
func (ti *TransactionIndex) KeyStream(cb func(sk any, pk string) bool, ascending bool, rng *KeyRange) {
	if ti.d.truncated() {
		ti.overlay.KeyStream(cb, ascending, rng)
		return
	}

	pNext, pStop := pull(ti.parent, ascending, rng)
	oNext, oStop := pull(ti.overlay, ascending, rng)
	defer pStop()
	defer oStop()

	pv, pOK := pNext()
	for pOK {
		if _, _, _, touched := ti.d.touched(pv.pk); touched {
			pv, pOK = pNext()
			continue
		}
		break
	}
	ov, oOK := oNext()

	less := func(a, b kv) bool {
		c := compare(a.sk, b.sk)
		if c != 0 {
			if ascending {
				return c < 0
			}
			return c > 0
		}
		if ascending {
			return a.pk < b.pk
		}
		return a.pk > b.pk
	}

	for pOK || oOK {
		var take kv
		fromParent := false
		switch {
		case pOK && oOK:
			if less(pv, ov) {
				take, fromParent = pv, true
			} else {
				take = ov
			}
		case pOK:
			take, fromParent = pv, true
		default:
			take = ov
		}
		if !cb(take.sk, take.pk) {
			return
		}
		if fromParent {
			pv, pOK = pNext()
			for pOK {
				if _, _, _, touched := ti.d.touched(pv.pk); touched {
					pv, pOK = pNext()
					continue
				}
				break
			}
		} else {
			ov, oOK = oNext()
		}
	}
}

func (ti *TransactionIndex) Keys(rng *KeyRange, limit int) []string {
	var out []string
	ti.KeyStream(func(_ any, pk string) bool {
		out = append(out, pk)
		return limit <= 0 || len(out) < limit
	}, true, rng)
	return out
}

func (ti *TransactionIndex) Values(rng *KeyRange, limit int, get func(string) (any, bool)) []any {
	return resolveAll(ti.Keys(rng, limit), get)
}

func (ti *TransactionIndex) Count(rng *KeyRange) int {
	n := 0
	ti.KeyStream(func(_ any, _ string) bool { n++; return true }, true, rng)
	return n
}

func (ti *TransactionIndex) MinKeys(rng *KeyRange) []string {
	var out []string
	var minSK any
	ti.KeyStream(func(sk any, pk string) bool {
		if out == nil {
			minSK, out = sk, []string{pk}
			return true
		}
		if compare(sk, minSK) == 0 {
			out = append(out, pk)
			return true
		}
		return false
	}, true, rng)
	return out
}

func (ti *TransactionIndex) MaxKeys(rng *KeyRange) []string {
	var out []string
	var maxSK any
	ti.KeyStream(func(sk any, pk string) bool {
		if out == nil {
			maxSK, out = sk, []string{pk}
			return true
		}
		if compare(sk, maxSK) == 0 {
			out = append(out, pk)
			return true
		}
		return false
	}, false, rng)
	return out
}

func (ti *TransactionIndex) MinValues(rng *KeyRange, get func(string) (any, bool)) []any {
	return resolveAll(ti.MinKeys(rng), get)
}

func (ti *TransactionIndex) MaxValues(rng *KeyRange, get func(string) (any, bool)) []any {
	return resolveAll(ti.MaxKeys(rng), get)
}
