package jungledb

import "sort"

// IndexDescriptor names a secondary index and how its key is extracted.
type IndexDescriptor struct {
	Name       string
	KeyPath    KeyPath
	MultiEntry bool
	Unique     bool
}

// InMemoryIndex maintains a B+-tree from secondary key to either a single
// primary key (unique index) or an ordered set of primary keys
// (non-unique / multiEntry index).
type InMemoryIndex struct {
	desc IndexDescriptor
	tree *orderedMap // secondaryKey -> string (unique) or *orderedMap of primaryKey->struct{} (non-unique)
}

// NewInMemoryIndex creates an empty index for desc.
func NewInMemoryIndex(desc IndexDescriptor) *InMemoryIndex {
	return &InMemoryIndex{desc: desc, tree: newOrderedMap()}
}

// Descriptor returns the index's declaration.
func (idx *InMemoryIndex) Descriptor() IndexDescriptor { return idx.desc }

func (idx *InMemoryIndex) secondaryKeys(value any) []any {
	extracted := idx.desc.KeyPath.Extract(value)
	if isAbsent(extracted) {
		return nil
	}
	if idx.desc.MultiEntry {
		if elems, ok := isMultiEntryCollection(extracted); ok {
			return elems
		}
		return []any{extracted}
	}
	return []any{extracted}
}

// Put indexes newValue under primaryKey, first removing any association
// coming from oldValue (pass nil if there was none). It returns
// ErrUniquenessViolation, wrapped with the offending index/key, without
// mutating the index, if any new secondary key would create a second
// primary key under a unique index.
func (idx *InMemoryIndex) Put(primaryKey string, newValue, oldValue any) error {
	newKeys, oldKeys, err := idx.CheckPut(primaryKey, newValue, oldValue)
	if err != nil {
		return err
	}
	idx.ApplyPut(primaryKey, newKeys, oldKeys)
	return nil
}

// CheckPut validates a future Put without mutating the index, returning the
// secondary keys the caller should pass to ApplyPut. Splitting Put this way
// lets a caller that reindexes the same primary key across several indices
// validate all of them before committing to any single mutation.
func (idx *InMemoryIndex) CheckPut(primaryKey string, newValue, oldValue any) (newKeys, oldKeys []any, err error) {
	if oldValue != nil {
		oldKeys = idx.secondaryKeys(oldValue)
	}
	newKeys = idx.secondaryKeys(newValue)

	if idx.desc.Unique {
		for _, sk := range newKeys {
			if existing, ok := idx.tree.Get(sk); ok && existing.(string) != primaryKey {
				return nil, nil, uniquenessViolation(idx.desc.Name, sk)
			}
		}
	}
	return newKeys, oldKeys, nil
}

// ApplyPut performs the mutations CheckPut validated.
func (idx *InMemoryIndex) ApplyPut(primaryKey string, newKeys, oldKeys []any) {
	for _, sk := range oldKeys {
		if !containsAny(newKeys, sk) {
			idx.removeOne(sk, primaryKey)
		}
	}
	for _, sk := range newKeys {
		idx.addOne(sk, primaryKey)
	}
}

// Remove drops the association between primaryKey and oldValue.
func (idx *InMemoryIndex) Remove(primaryKey string, oldValue any) {
	for _, sk := range idx.secondaryKeys(oldValue) {
		idx.removeOne(sk, primaryKey)
	}
}

// Truncate empties the index.
func (idx *InMemoryIndex) Truncate() { idx.tree = newOrderedMap() }

func (idx *InMemoryIndex) addOne(sk any, primaryKey string) {
	if idx.desc.Unique {
		idx.tree.Set(sk, primaryKey)
		return
	}
	bucket, ok := idx.tree.Get(sk)
	var set *orderedMap
	if !ok {
		set = newOrderedMap()
		idx.tree.Set(sk, set)
	} else {
		set = bucket.(*orderedMap)
	}
	set.Set(primaryKey, struct{}{})
}

func (idx *InMemoryIndex) removeOne(sk any, primaryKey string) {
	if idx.desc.Unique {
		if existing, ok := idx.tree.Get(sk); ok && existing.(string) == primaryKey {
			idx.tree.Remove(sk)
		}
		return
	}
	bucket, ok := idx.tree.Get(sk)
	if !ok {
		return
	}
	set := bucket.(*orderedMap)
	set.Remove(primaryKey)
	if set.Length() == 0 {
		idx.tree.Remove(sk)
	}
}

func containsAny(xs []any, v any) bool {
	for _, x := range xs {
		if compare(x, v) == 0 {
			return true
		}
	}
	return false
}

// primaryKeysAt returns the primary keys under secondary key sk, in
// primary-key order.
func (idx *InMemoryIndex) primaryKeysAt(sk any) []string {
	v, ok := idx.tree.Get(sk)
	if !ok {
		return nil
	}
	if idx.desc.Unique {
		return []string{v.(string)}
	}
	set := v.(*orderedMap)
	out := make([]string, 0, set.Length())
	c, ok := set.GoTop()
	for ok {
		out = append(out, c.CurrentKey().(string))
		ok = c.Next()
	}
	return out
}

func effectiveRange(r *KeyRange) KeyRange {
	if r == nil {
		return KeyRange{}
	}
	return *r
}

// forEachSecondaryKey iterates (secondaryKey, []primaryKey) pairs within
// rng in ascending order, stopping early if cb returns false.
func (idx *InMemoryIndex) forEachSecondaryKey(rng *KeyRange, cb func(sk any, primaryKeys []string) bool) {
	r := effectiveRange(rng)
	var c *Cursor
	var ok bool
	if r.HasLower {
		c, ok = idx.tree.GoToLowerBound(r.Lower, r.LowerOpen)
	} else {
		c, ok = idx.tree.GoTop()
	}
	for ok {
		sk := c.CurrentKey()
		if r.HasUpper {
			cmp := compare(sk, r.Upper)
			if cmp > 0 || (cmp == 0 && r.UpperOpen) {
				break
			}
		}
		if !cb(sk, idx.primaryKeysAt(sk)) {
			break
		}
		ok = c.Next()
	}
}

// Keys returns, in secondary-key then primary-key order, every primary key
// whose secondary key falls within rng (nil means unbounded), capped at
// limit entries (0 means unlimited).
func (idx *InMemoryIndex) Keys(rng *KeyRange, limit int) []string {
	var out []string
	idx.forEachSecondaryKey(rng, func(_ any, pks []string) bool {
		for _, pk := range pks {
			out = append(out, pk)
			if limit > 0 && len(out) >= limit {
				return false
			}
		}
		return true
	})
	return out
}

// Values calls get(primaryKey) for every key Keys(rng, limit) would return,
// in the same order, and returns the resolved values.
func (idx *InMemoryIndex) Values(rng *KeyRange, limit int, get func(string) (any, bool)) []any {
	keys := idx.Keys(rng, limit)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		if v, ok := get(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// Count returns len(Keys(rng, 0)).
func (idx *InMemoryIndex) Count(rng *KeyRange) int {
	n := 0
	idx.forEachSecondaryKey(rng, func(_ any, pks []string) bool {
		n += len(pks)
		return true
	})
	return n
}

// MinKeys returns all primary keys sharing the least secondary key inside
// rng, in primary-key order.
func (idx *InMemoryIndex) MinKeys(rng *KeyRange) []string {
	var out []string
	idx.forEachSecondaryKey(rng, func(_ any, pks []string) bool {
		sorted := append([]string(nil), pks...)
		sort.Strings(sorted)
		out = sorted
		return false
	})
	return out
}

// MaxKeys returns all primary keys sharing the greatest secondary key
// inside rng, in primary-key order.
func (idx *InMemoryIndex) MaxKeys(rng *KeyRange) []string {
	r := effectiveRange(rng)
	var c *Cursor
	var ok bool
	if r.HasUpper {
		c, ok = idx.tree.GoToUpperBound(r.Upper, r.UpperOpen)
	} else {
		c, ok = idx.tree.GoBottom()
	}
	if !ok {
		return nil
	}
	sk := c.CurrentKey()
	if r.HasLower {
		cmp := compare(sk, r.Lower)
		if cmp < 0 || (cmp == 0 && r.LowerOpen) {
			return nil
		}
	}
	out := append([]string(nil), idx.primaryKeysAt(sk)...)
	sort.Strings(out)
	return out
}

// MinValues/MaxValues resolve MinKeys/MaxKeys through get.
func (idx *InMemoryIndex) MinValues(rng *KeyRange, get func(string) (any, bool)) []any {
	return resolveAll(idx.MinKeys(rng), get)
}

func (idx *InMemoryIndex) MaxValues(rng *KeyRange, get func(string) (any, bool)) []any {
	return resolveAll(idx.MaxKeys(rng), get)
}

func resolveAll(keys []string, get func(string) (any, bool)) []any {
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		if v, ok := get(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// KeyStream iterates (secondaryKey, primaryKey) pairs within rng, by
// secondary key first and primary key second, in the requested direction,
// until cb returns false.
func (idx *InMemoryIndex) KeyStream(cb func(secondaryKey any, primaryKey string) bool, ascending bool, rng *KeyRange) {
	r := effectiveRange(rng)
	var c *Cursor
	var ok bool
	if ascending {
		if r.HasLower {
			c, ok = idx.tree.GoToLowerBound(r.Lower, r.LowerOpen)
		} else {
			c, ok = idx.tree.GoTop()
		}
	} else {
		if r.HasUpper {
			c, ok = idx.tree.GoToUpperBound(r.Upper, r.UpperOpen)
		} else {
			c, ok = idx.tree.GoBottom()
		}
	}
	for ok {
		sk := c.CurrentKey()
		if ascending && r.HasUpper {
			cmp := compare(sk, r.Upper)
			if cmp > 0 || (cmp == 0 && r.UpperOpen) {
				break
			}
		}
		if !ascending && r.HasLower {
			cmp := compare(sk, r.Lower)
			if cmp < 0 || (cmp == 0 && r.LowerOpen) {
				break
			}
		}
		pks := idx.primaryKeysAt(sk)
		if !ascending {
			for i, j := 0, len(pks)-1; i < j; i, j = i+1, j-1 {
				pks[i], pks[j] = pks[j], pks[i]
			}
		}
		cont := true
		for _, pk := range pks {
			if !cb(sk, pk) {
				cont = false
				break
			}
		}
		if !cont {
			break
		}
		if ascending {
			ok = c.Next()
		} else {
			ok = c.Prev()
		}
	}
}
