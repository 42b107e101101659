package jungledb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ObjectStore {
	t.Helper()
	return CreateVolatileObjectStore("test", 0)
}

func TestTransactionReadYourWrites(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()

	_, ok := tx.Get("1")
	assert.False(t, ok)

	require.NoError(t, tx.Put("1", "alice"))
	v, ok := tx.Get("1")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestTransactionRemoveIsInvisibleUntilCommit(t *testing.T) {
	s := newTestStore(t)
	seed := s.Begin()
	require.NoError(t, seed.Put("1", "alice"))
	require.NoError(t, seed.Commit(context.Background()))

	tx := s.Begin()
	require.NoError(t, tx.Remove("1"))
	_, ok := tx.Get("1")
	assert.False(t, ok)

	// The store itself still sees the value until the removal commits.
	v, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestTransactionTruncate(t *testing.T) {
	s := newTestStore(t)
	seed := s.Begin()
	require.NoError(t, seed.Put("1", "a"))
	require.NoError(t, seed.Put("2", "b"))
	require.NoError(t, seed.Commit(context.Background()))

	tx := s.Begin()
	require.NoError(t, tx.Truncate())
	assert.Empty(t, tx.Keys(nil, 0))
	require.NoError(t, tx.Put("3", "c"))
	assert.Equal(t, []string{"3"}, tx.Keys(nil, 0))

	require.NoError(t, tx.Commit(context.Background()))
	assert.Equal(t, []string{"3"}, s.Keys(nil, 0))
}

func TestTransactionCommitIsInvisibleBeforeCommit(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()
	require.NoError(t, tx.Put("1", "alice"))

	_, ok := s.Get("1")
	assert.False(t, ok, "uncommitted writes must not be visible on the store")

	require.NoError(t, tx.Commit(context.Background()))
	v, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestTransactionSnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	seed := s.Begin()
	require.NoError(t, seed.Put("1", "alice"))
	require.NoError(t, seed.Commit(context.Background()))

	reader := s.Begin()

	writer := s.Begin()
	require.NoError(t, writer.Put("1", "bob"))
	require.NoError(t, writer.Commit(context.Background()))

	// reader opened before writer committed, so it must not observe bob.
	v, ok := reader.Get("1")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestTransactionAbortDiscardsWrites(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()
	require.NoError(t, tx.Put("1", "alice"))
	require.NoError(t, tx.Abort())

	_, ok := s.Get("1")
	assert.False(t, ok)
	assert.Equal(t, TxAborted, tx.State())
}

func TestTransactionAbortTwiceFails(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()
	require.NoError(t, tx.Abort())
	assert.Error(t, tx.Abort())
}

func TestTransactionOptimisticConflictOnOverlappingCommits(t *testing.T) {
	s := newTestStore(t)
	seed := s.Begin()
	require.NoError(t, seed.Put("1", "alice"))
	require.NoError(t, seed.Commit(context.Background()))

	txA := s.Begin()
	txB := s.Begin()

	require.NoError(t, txA.Put("1", "from-a"))
	require.NoError(t, txA.Commit(context.Background()))

	require.NoError(t, txB.Put("1", "from-b"))
	err := txB.Commit(context.Background())
	assert.ErrorIs(t, err, ErrOptimisticConflict)
	assert.Equal(t, TxConflicted, txB.State())
}

func TestTransactionNonOverlappingSiblingStillConflicts(t *testing.T) {
	s := newTestStore(t)
	txA := s.Begin()
	txB := s.Begin()

	require.NoError(t, txA.Put("1", "a"))
	require.NoError(t, txB.Put("2", "b"))

	require.NoError(t, txA.Commit(context.Background()))

	// txB touches a disjoint key, but it shares txA's parent and txA
	// already claimed that parent's one commit slot.
	err := txB.Commit(context.Background())
	assert.ErrorIs(t, err, ErrOptimisticConflict)
	assert.Equal(t, TxConflicted, txB.State())

	assert.ElementsMatch(t, []string{"1"}, s.Keys(nil, 0))
}

func TestTransactionReadOnlySiblingStillConflicts(t *testing.T) {
	s := newTestStore(t)
	seed := s.Begin()
	require.NoError(t, seed.Put("1", "alice"))
	require.NoError(t, seed.Commit(context.Background()))

	txA := s.Begin()
	txB := s.Begin()

	require.NoError(t, txA.Put("2", "bob"))
	require.NoError(t, txA.Commit(context.Background()))

	// txB made no writes at all, yet it still loses its commit slot to
	// txA because both opened against the same parent.
	_, _ = txB.Get("1")
	err := txB.Commit(context.Background())
	assert.ErrorIs(t, err, ErrOptimisticConflict)
	assert.Equal(t, TxConflicted, txB.State())
}

func TestTransactionOperationsRejectedAfterCommit(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()
	require.NoError(t, tx.Commit(context.Background()))

	assert.Error(t, tx.Put("1", "x"))
	assert.Error(t, tx.Remove("1"))
	assert.Error(t, tx.Truncate())
	assert.Error(t, tx.Commit(context.Background()))
}

func TestTransactionUniquenessViolationAcrossMultipleIndices(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateIndex(IndexDescriptor{Name: "byName", KeyPath: NewKeyPath("name"), Unique: true}))
	require.NoError(t, s.CreateIndex(IndexDescriptor{Name: "byEmail", KeyPath: NewKeyPath("email"), Unique: true}))

	seed := s.Begin()
	require.NoError(t, seed.Put("1", map[string]any{"name": "alice", "email": "alice@example.com"}))
	require.NoError(t, seed.Commit(context.Background()))

	tx := s.Begin()
	// "name" collides with the seeded row; "email" does not. Neither
	// index may end up mutated by the rejected put.
	err := tx.Put("2", map[string]any{"name": "alice", "email": "new@example.com"})
	assert.ErrorIs(t, err, ErrUniquenessViolation)

	byName, _ := tx.Index("byName")
	assert.Equal(t, []string{"1"}, byName.Keys(nil, 0))
	byEmail, _ := tx.Index("byEmail")
	assert.Equal(t, []string{"1"}, byEmail.Keys(nil, 0))
}

func TestTransactionOpenNestedExclusivity(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()

	child, err := tx.OpenNested()
	require.NoError(t, err)
	require.NotNil(t, child)

	_, err = tx.OpenNested()
	assert.Error(t, err, "only one nested child may be open at a time")

	assert.Error(t, tx.Put("1", "x"))
	assert.Error(t, tx.Commit(context.Background()))

	require.NoError(t, child.Commit(context.Background()))

	// Now that the child is gone, the parent accepts writes again.
	require.NoError(t, tx.Put("1", "x"))
}

func TestNestedTransactionCommitMergesIntoParent(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()
	require.NoError(t, tx.Put("1", "a"))

	child, err := tx.OpenNested()
	require.NoError(t, err)
	require.NoError(t, child.Put("2", "b"))
	require.NoError(t, child.Commit(context.Background()))
	assert.Equal(t, TxNested, child.State())

	v, ok := tx.Get("2")
	require.True(t, ok)
	assert.Equal(t, "b", v)

	require.NoError(t, tx.Commit(context.Background()))
	v, ok = s.Get("2")
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestNestedTransactionAbortDoesNotAffectParent(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()
	require.NoError(t, tx.Put("1", "a"))

	child, err := tx.OpenNested()
	require.NoError(t, err)
	require.NoError(t, child.Put("2", "b"))
	require.NoError(t, child.Abort())

	_, ok := tx.Get("2")
	assert.False(t, ok)

	require.NoError(t, tx.Commit(context.Background()))
	_, ok = s.Get("2")
	assert.False(t, ok)
}

func TestNestedTransactionCannotBeCombined(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()
	child, err := tx.OpenNested()
	require.NoError(t, err)

	_, err = NewCombinedTransaction(child)
	assert.Error(t, err)
}

func TestNestedTransactionUniquenessViolationLeavesParentUntouched(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateIndex(IndexDescriptor{Name: "byName", KeyPath: NewKeyPath("name"), Unique: true}))

	tx := s.Begin()
	require.NoError(t, tx.Put("1", map[string]any{"name": "alice"}))

	child, err := tx.OpenNested()
	require.NoError(t, err)
	require.NoError(t, child.Put("2", map[string]any{"name": "alice"}))
	err = child.Commit(context.Background())
	assert.ErrorIs(t, err, ErrUniquenessViolation)

	byName, _ := tx.Index("byName")
	assert.Equal(t, []string{"1"}, byName.Keys(nil, 0))
}
