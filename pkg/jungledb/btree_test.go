package jungledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedMapInsertGetRemove(t *testing.T) {
	m := newOrderedMap()

	assert.True(t, m.Insert("a", 1))
	assert.False(t, m.Insert("a", 2), "Insert must not replace an existing key")
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	m.Set("a", 2)
	v, ok = m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	assert.True(t, m.Remove("a"))
	assert.False(t, m.Remove("a"))
	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestOrderedMapLength(t *testing.T) {
	m := newOrderedMap()
	assert.Equal(t, 0, m.Length())
	m.Set("a", 1)
	m.Set("b", 2)
	assert.Equal(t, 2, m.Length())
	m.Remove("a")
	assert.Equal(t, 1, m.Length())
}

func seeded(t *testing.T, keys ...string) *orderedMap {
	t.Helper()
	m := newOrderedMap()
	for i, k := range keys {
		m.Set(k, i)
	}
	return m
}

func TestCursorGoTopGoBottom(t *testing.T) {
	m := seeded(t, "c", "a", "b")

	c, ok := m.GoTop()
	require.True(t, ok)
	assert.Equal(t, "a", c.CurrentKey())

	c, ok = m.GoBottom()
	require.True(t, ok)
	assert.Equal(t, "c", c.CurrentKey())
}

func TestCursorNextPrev(t *testing.T) {
	m := seeded(t, "a", "b", "c")
	c, ok := m.GoTop()
	require.True(t, ok)

	var seen []string
	seen = append(seen, c.CurrentKey().(string))
	for c.Next() {
		seen = append(seen, c.CurrentKey().(string))
	}
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	c, ok = m.GoBottom()
	require.True(t, ok)
	var rev []string
	rev = append(rev, c.CurrentKey().(string))
	for c.Prev() {
		rev = append(rev, c.CurrentKey().(string))
	}
	assert.Equal(t, []string{"c", "b", "a"}, rev)
}

func TestCursorSeekNearNone(t *testing.T) {
	m := seeded(t, "a", "c")
	_, ok := m.Seek("b", NearNone)
	assert.False(t, ok)
	c, ok := m.Seek("a", NearNone)
	require.True(t, ok)
	assert.Equal(t, "a", c.CurrentKey())
}

func TestCursorSeekNearGE(t *testing.T) {
	m := seeded(t, "a", "c", "e")
	c, ok := m.Seek("b", NearGE)
	require.True(t, ok)
	assert.Equal(t, "c", c.CurrentKey())

	_, ok = m.Seek("f", NearGE)
	assert.False(t, ok)
}

func TestCursorSeekNearLE(t *testing.T) {
	m := seeded(t, "a", "c", "e")
	c, ok := m.Seek("d", NearLE)
	require.True(t, ok)
	assert.Equal(t, "c", c.CurrentKey())

	_, ok = m.Seek("0", NearLE)
	assert.False(t, ok)
}

func TestGoToLowerBoundOpenClosed(t *testing.T) {
	m := seeded(t, "a", "b", "c")

	c, ok := m.GoToLowerBound("b", false)
	require.True(t, ok)
	assert.Equal(t, "b", c.CurrentKey())

	c, ok = m.GoToLowerBound("b", true)
	require.True(t, ok)
	assert.Equal(t, "c", c.CurrentKey())
}

func TestGoToUpperBoundOpenClosed(t *testing.T) {
	m := seeded(t, "a", "b", "c")

	c, ok := m.GoToUpperBound("b", false)
	require.True(t, ok)
	assert.Equal(t, "b", c.CurrentKey())

	c, ok = m.GoToUpperBound("b", true)
	require.True(t, ok)
	assert.Equal(t, "a", c.CurrentKey())
}

func TestCursorSkip(t *testing.T) {
	m := seeded(t, "a", "b", "c", "d")
	c, ok := m.GoTop()
	require.True(t, ok)

	assert.True(t, c.Skip(2))
	assert.Equal(t, "c", c.CurrentKey())

	assert.True(t, c.Skip(-1))
	assert.Equal(t, "b", c.CurrentKey())

	assert.False(t, c.Skip(10))
}

func TestCursorKeynum(t *testing.T) {
	m := seeded(t, "a", "b", "c", "d")
	c, ok := m.Seek("c", NearNone)
	require.True(t, ok)
	assert.Equal(t, 2, c.Keynum())

	c, ok = m.GoTop()
	require.True(t, ok)
	assert.Equal(t, 0, c.Keynum())
}

func TestCursorInvalidAfterRunningOff(t *testing.T) {
	m := seeded(t, "a")
	c, ok := m.GoTop()
	require.True(t, ok)
	assert.False(t, c.Next())
	assert.False(t, c.Valid())
}
