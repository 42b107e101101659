package jungledb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionIndexOverlaysParentWithoutTouchingIt(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateIndex(IndexDescriptor{Name: "byName", KeyPath: NewKeyPath("name")}))

	seed := s.Begin()
	require.NoError(t, seed.Put("1", map[string]any{"name": "alice"}))
	require.NoError(t, seed.Commit(context.Background()))

	tx := s.Begin()
	require.NoError(t, tx.Put("2", map[string]any{"name": "bob"}))

	idx, ok := tx.Index("byName")
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2"}, idx.Keys(nil, 0))

	// Parent index must be unaffected by the transaction's overlay.
	parentIdx, _ := s.Index("byName")
	assert.Equal(t, []string{"1"}, parentIdx.Keys(nil, 0))
}

func TestTransactionIndexHidesRemovedParentEntries(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateIndex(IndexDescriptor{Name: "byName", KeyPath: NewKeyPath("name")}))

	seed := s.Begin()
	require.NoError(t, seed.Put("1", map[string]any{"name": "alice"}))
	require.NoError(t, seed.Commit(context.Background()))

	tx := s.Begin()
	require.NoError(t, tx.Remove("1"))

	idx, _ := tx.Index("byName")
	assert.Empty(t, idx.Keys(nil, 0))
}

func TestTransactionIndexReflectsReindexOnPut(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateIndex(IndexDescriptor{Name: "byName", KeyPath: NewKeyPath("name")}))

	seed := s.Begin()
	require.NoError(t, seed.Put("1", map[string]any{"name": "alice"}))
	require.NoError(t, seed.Commit(context.Background()))

	tx := s.Begin()
	require.NoError(t, tx.Put("1", map[string]any{"name": "alicia"}))

	idx, _ := tx.Index("byName")
	assert.Empty(t, idx.Keys(rng(Only("alice")), 0))
	assert.Equal(t, []string{"1"}, idx.Keys(rng(Only("alicia")), 0))
}

func TestTransactionIndexTruncationHidesEverything(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateIndex(IndexDescriptor{Name: "byName", KeyPath: NewKeyPath("name")}))

	seed := s.Begin()
	require.NoError(t, seed.Put("1", map[string]any{"name": "alice"}))
	require.NoError(t, seed.Commit(context.Background()))

	tx := s.Begin()
	require.NoError(t, tx.Truncate())
	require.NoError(t, tx.Put("2", map[string]any{"name": "bob"}))

	idx, _ := tx.Index("byName")
	assert.Equal(t, []string{"2"}, idx.Keys(nil, 0))
}

func TestTransactionIndexDescendingOrder(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateIndex(IndexDescriptor{Name: "byName", KeyPath: NewKeyPath("name")}))

	seed := s.Begin()
	require.NoError(t, seed.Put("1", map[string]any{"name": "alice"}))
	require.NoError(t, seed.Commit(context.Background()))

	tx := s.Begin()
	require.NoError(t, tx.Put("2", map[string]any{"name": "carol"}))

	idx, _ := tx.Index("byName")
	assert.Equal(t, []string{"2"}, idx.MaxKeys(nil))
	assert.Equal(t, []string{"1"}, idx.MinKeys(nil))
}

func TestTransactionIndexNestedParentIsAnotherTransactionIndex(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateIndex(IndexDescriptor{Name: "byName", KeyPath: NewKeyPath("name")}))

	parent := s.Begin()
	require.NoError(t, parent.Put("1", map[string]any{"name": "alice"}))

	child, err := parent.OpenNested()
	require.NoError(t, err)
	require.NoError(t, child.Put("2", map[string]any{"name": "bob"}))

	idx, ok := child.Index("byName")
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2"}, idx.Keys(nil, 0))
}
