package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionDiscardLeavesStoreUntouched(t *testing.T) {
	ldb, err := NewMemLevelDB()
	require.NoError(t, err)
	defer ldb.Close()

	tx, err := ldb.OpenTransaction()
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("a"), []byte("1")))

	// The transaction sees its own write.
	v, err := tx.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	tx.Discard()
	tx.DiscardUnlessClosed()

	empty, err := ldb.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestSnapshotIsolatedFromLaterCommit(t *testing.T) {
	ldb, err := NewMemLevelDB()
	require.NoError(t, err)
	defer ldb.Close()

	snap, err := ldb.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	tx, err := ldb.OpenTransaction()
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("k/1"), nil))
	require.NoError(t, tx.Put([]byte("k/2"), nil))
	require.NoError(t, tx.Put([]byte("x/1"), nil))
	require.NoError(t, tx.Commit())

	has, err := snap.Has([]byte("k/1"))
	require.NoError(t, err)
	require.False(t, has)
	_, err = snap.Get([]byte("k/1"))
	require.ErrorIs(t, err, ErrNotFound)

	after, err := ldb.Snapshot()
	require.NoError(t, err)
	defer after.Release()

	iter := after.NewIterator([]byte("k/"))
	defer iter.Release()
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	require.NoError(t, iter.Error())
	require.Equal(t, []string{"k/1", "k/2"}, keys)
}

func TestOpenExistingLevelDBMissing(t *testing.T) {
	_, err := OpenExistingLevelDB(t.TempDir() + "/absent")
	require.Error(t, err)
}
