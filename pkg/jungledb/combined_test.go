package jungledb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinedTransactionRejectsEmpty(t *testing.T) {
	_, err := NewCombinedTransaction()
	assert.Error(t, err)
}

func TestCombinedTransactionRejectsDuplicateStore(t *testing.T) {
	s := newTestStore(t)
	tx1 := s.Begin()
	tx2 := s.Begin()
	_, err := NewCombinedTransaction(tx1, tx2)
	assert.Error(t, err)

	// Neither member is left open: a transaction rejected from a combined
	// group does not remain available to commit standalone.
	assert.Equal(t, TxAborted, tx1.State())
	assert.Equal(t, TxAborted, tx2.State())
}

func TestCombinedTransactionRejectsNonOpenMember(t *testing.T) {
	s1 := newTestStore(t)
	s2 := CreateVolatileObjectStore("other", 0)
	tx1 := s1.Begin()
	tx2 := s2.Begin()
	require.NoError(t, tx1.Abort())

	_, err := NewCombinedTransaction(tx1, tx2)
	assert.Error(t, err)
	assert.Equal(t, TxAborted, tx1.State())
	assert.Equal(t, TxAborted, tx2.State())
}

func TestCombinedTransactionCommitsAllOrNothingOnSuccess(t *testing.T) {
	s1 := newTestStore(t)
	s2 := CreateVolatileObjectStore("other", 0)

	tx1 := s1.Begin()
	tx2 := s2.Begin()
	require.NoError(t, tx1.Put("1", "a"))
	require.NoError(t, tx2.Put("1", "b"))

	ct, err := NewCombinedTransaction(tx1, tx2)
	require.NoError(t, err)
	require.NoError(t, ct.Commit(context.Background()))

	v1, ok := s1.Get("1")
	require.True(t, ok)
	assert.Equal(t, "a", v1)

	v2, ok := s2.Get("1")
	require.True(t, ok)
	assert.Equal(t, "b", v2)
}

func TestCombinedTransactionConflictAbortsEveryMemberUniformly(t *testing.T) {
	s1 := newTestStore(t)
	s2 := CreateVolatileObjectStore("other", 0)

	seed := s1.Begin()
	require.NoError(t, seed.Put("1", "alice"))
	require.NoError(t, seed.Commit(context.Background()))

	tx1 := s1.Begin()
	tx2 := s2.Begin()
	require.NoError(t, tx1.Put("1", "from-combined"))
	require.NoError(t, tx2.Put("1", "b"))

	// A third transaction commits against s1 after tx1 opened, so tx1's
	// combined commit must fail validation.
	interloper := s1.Begin()
	require.NoError(t, interloper.Put("1", "from-interloper"))
	require.NoError(t, interloper.Commit(context.Background()))

	ct, err := NewCombinedTransaction(tx1, tx2)
	require.NoError(t, err)
	err = ct.Commit(context.Background())
	assert.ErrorIs(t, err, ErrOptimisticConflict)

	// s2 must not have committed tx2 even though it validated cleanly, and
	// tx2 must not be left open: the whole group aborts uniformly.
	_, ok := s2.Get("1")
	assert.False(t, ok)
	assert.Equal(t, TxConflicted, tx1.State())
	assert.Equal(t, TxAborted, tx2.State())
}

func TestCombinedTransactionAbortDiscardsEveryMember(t *testing.T) {
	s1 := newTestStore(t)
	s2 := CreateVolatileObjectStore("other", 0)

	tx1 := s1.Begin()
	tx2 := s2.Begin()
	require.NoError(t, tx1.Put("1", "a"))
	require.NoError(t, tx2.Put("1", "b"))

	ct, err := NewCombinedTransaction(tx1, tx2)
	require.NoError(t, err)
	require.NoError(t, ct.Abort())

	assert.Equal(t, TxAborted, tx1.State())
	assert.Equal(t, TxAborted, tx2.State())
}
