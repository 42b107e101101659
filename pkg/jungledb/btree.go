package jungledb

import "github.com/tidwall/btree"

// Near selects how Seek behaves when the exact key is absent from the map.
type Near int

const (
	// NearNone requires an exact match; Seek fails if key is absent.
	NearNone Near = iota
	// NearLE seeks the greatest key <= the requested key.
	NearLE
	// NearGE seeks the least key >= the requested key.
	NearGE
)

type mapEntry struct {
	key   any
	value any
}

// orderedMap is the engine's in-memory B+-tree: a sorted map keyed by an
// arbitrary totally-ordered key with cursor semantics sufficient for
// backend scans and index maintenance. It is backed by
// github.com/tidwall/btree.
type orderedMap struct {
	tree *btree.BTreeG[mapEntry]
}

func newOrderedMap() *orderedMap {
	less := func(a, b mapEntry) bool { return compare(a.key, b.key) < 0 }
	return &orderedMap{tree: btree.NewBTreeG(less)}
}

// Insert adds key/rec if key is not already present. It reports false if
// the key already existed (the map is unchanged).
func (m *orderedMap) Insert(key, rec any) bool {
	if _, exists := m.tree.Get(mapEntry{key: key}); exists {
		return false
	}
	m.tree.Set(mapEntry{key: key, value: rec})
	return true
}

// Set unconditionally associates key with rec, inserting or overwriting.
func (m *orderedMap) Set(key, rec any) {
	m.tree.Set(mapEntry{key: key, value: rec})
}

// Get returns the record stored under key, if any.
func (m *orderedMap) Get(key any) (any, bool) {
	e, ok := m.tree.Get(mapEntry{key: key})
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Remove deletes key, reporting whether it was present.
func (m *orderedMap) Remove(key any) bool {
	_, ok := m.tree.Delete(mapEntry{key: key})
	return ok
}

// Length returns the number of keys in the map.
func (m *orderedMap) Length() int { return m.tree.Len() }

// Pack is a no-op rebalance hook; github.com/tidwall/btree keeps itself
// balanced on every mutation, so there is nothing to defer.
func (m *orderedMap) Pack() {}

// Cursor walks an orderedMap in key order, starting from a seek point.
type Cursor struct {
	m     *orderedMap
	key   any
	value any
	valid bool
}

// CurrentKey returns the key the cursor currently sits on.
func (c *Cursor) CurrentKey() any { return c.key }

// CurrentRecord returns the record the cursor currently sits on.
func (c *Cursor) CurrentRecord() any { return c.value }

// Valid reports whether the cursor sits on an element.
func (c *Cursor) Valid() bool { return c.valid }

// Seek positions a new cursor at key using the given nearness rule,
// reporting whether the cursor landed on a valid element.
func (m *orderedMap) Seek(key any, near Near) (*Cursor, bool) {
	c := &Cursor{m: m}
	switch near {
	case NearNone:
		if e, ok := m.tree.Get(mapEntry{key: key}); ok {
			c.set(e)
			return c, true
		}
		return c, false
	case NearGE:
		m.tree.Ascend(mapEntry{key: key}, func(item mapEntry) bool {
			c.set(item)
			return false
		})
	case NearLE:
		m.tree.Descend(mapEntry{key: key}, func(item mapEntry) bool {
			c.set(item)
			return false
		})
	}
	return c, c.valid
}

func (c *Cursor) set(e mapEntry) {
	c.key, c.value, c.valid = e.key, e.value, true
}

func (c *Cursor) invalidate() {
	c.key, c.value, c.valid = nil, nil, false
}

// GoTop positions the cursor at the smallest key.
func (m *orderedMap) GoTop() (*Cursor, bool) {
	c := &Cursor{m: m}
	if e, ok := m.tree.Min(); ok {
		c.set(e)
	}
	return c, c.valid
}

// GoBottom positions the cursor at the largest key.
func (m *orderedMap) GoBottom() (*Cursor, bool) {
	c := &Cursor{m: m}
	if e, ok := m.tree.Max(); ok {
		c.set(e)
	}
	return c, c.valid
}

// GoToLowerBound positions the cursor at the smallest key >= v (or > v if
// open), i.e. the start of LowerBound(v, open).
func (m *orderedMap) GoToLowerBound(v any, open bool) (*Cursor, bool) {
	c, ok := m.Seek(v, NearGE)
	if ok && open && compare(c.key, v) == 0 {
		return c, c.Next()
	}
	return c, ok
}

// GoToUpperBound positions the cursor at the largest key <= v (or < v if
// open), i.e. the end of UpperBound(v, open).
func (m *orderedMap) GoToUpperBound(v any, open bool) (*Cursor, bool) {
	c, ok := m.Seek(v, NearLE)
	if ok && open && compare(c.key, v) == 0 {
		return c, c.Prev()
	}
	return c, ok
}

// Next advances the cursor to the next key in ascending order.
func (c *Cursor) Next() bool {
	if !c.valid {
		return false
	}
	skip := true
	found := false
	c.m.tree.Ascend(mapEntry{key: c.key}, func(item mapEntry) bool {
		if skip {
			skip = false
			return true
		}
		c.set(item)
		found = true
		return false
	})
	if !found {
		c.invalidate()
	}
	return found
}

// Prev retreats the cursor to the previous key in ascending order.
func (c *Cursor) Prev() bool {
	if !c.valid {
		return false
	}
	skip := true
	found := false
	c.m.tree.Descend(mapEntry{key: c.key}, func(item mapEntry) bool {
		if skip {
			skip = false
			return true
		}
		c.set(item)
		found = true
		return false
	})
	if !found {
		c.invalidate()
	}
	return found
}

// Skip moves the cursor forward n steps (or backward, if n is negative).
// It stops early (and returns false) if it runs off either end.
func (c *Cursor) Skip(n int) bool {
	if !c.valid {
		return false
	}
	for n > 0 {
		if !c.Next() {
			return false
		}
		n--
	}
	for n < 0 {
		if !c.Prev() {
			return false
		}
		n++
	}
	return true
}

// Keynum returns the 0-based rank of the cursor's current key among all
// keys in the map. It is O(n) — github.com/tidwall/btree exposes no
// order-statistics operation, so rank is computed by walking from the
// start.
func (c *Cursor) Keynum() int {
	if !c.valid {
		return -1
	}
	n := -1
	c.m.tree.Scan(func(item mapEntry) bool {
		n++
		return compare(item.key, c.key) < 0
	})
	return n
}
