// Package kvtest holds the conformance checks every kv.Store backend runs.
package kvtest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greydoubt/cozo/internal/kv"
)

// Opener returns a fresh, empty store.
type Opener func(t *testing.T) kv.Store

// Run executes the conformance checks against stores from open.
func Run(t *testing.T, open Opener) {
	t.Run("GetPutDelete", func(t *testing.T) { testGetPutDelete(t, open(t)) })
	t.Run("EmptyValue", func(t *testing.T) { testEmptyValue(t, open(t)) })
	t.Run("IteratorOrder", func(t *testing.T) { testIteratorOrder(t, open(t)) })
	t.Run("DeleteRange", func(t *testing.T) { testDeleteRange(t, open(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("ReadOnly", func(t *testing.T) { testReadOnly(t, open(t)) })
	t.Run("FinishedTxn", func(t *testing.T) { testFinishedTxn(t, open(t)) })
	t.Run("ScanPrefix", func(t *testing.T) { testScanPrefix(t, open(t)) })
}

func begin(t *testing.T, s kv.Store, writable bool) kv.Txn {
	txn, err := s.Begin(writable)
	require.NoError(t, err)
	return txn
}

func testGetPutDelete(t *testing.T, s kv.Store) {
	defer s.Close()
	txn := begin(t, s, true)

	_, err := txn.Get([]byte("missing"))
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, txn.Put([]byte("k"), []byte("v1")))
	got, err := txn.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, txn.Put([]byte("k"), []byte("v2")))
	require.NoError(t, txn.Commit())

	txn = begin(t, s, true)
	got, err = txn.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, txn.Delete([]byte("k")))
	_, err = txn.Get([]byte("k"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
	require.NoError(t, txn.Commit())
}

func testEmptyValue(t *testing.T, s kv.Store) {
	defer s.Close()
	txn := begin(t, s, true)
	require.NoError(t, txn.Put([]byte("empty"), nil))
	require.NoError(t, txn.Commit())

	txn = begin(t, s, false)
	defer txn.Rollback()
	got, err := txn.Get([]byte("empty"))
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func testIteratorOrder(t *testing.T, s kv.Store) {
	defer s.Close()
	txn := begin(t, s, true)
	keys := []string{"b", "a", "c\x00", "c", "ab"}
	for _, k := range keys {
		require.NoError(t, txn.Put([]byte(k), []byte("v-"+k)))
	}

	var seen []string
	it := txn.Iterator()
	for it.Seek([]byte("a")); it.Valid(); it.Next() {
		seen = append(seen, string(it.Key()))
		assert.Equal(t, "v-"+string(it.Key()), string(it.Value()))
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.Equal(t, []string{"a", "ab", "b", "c", "c\x00"}, seen)

	it = txn.Iterator()
	it.Seek([]byte("aa"))
	require.True(t, it.Valid())
	assert.Equal(t, "ab", string(it.Key()))
	require.NoError(t, it.Close())

	it = txn.Iterator()
	it.Seek([]byte("d"))
	assert.False(t, it.Valid())
	require.NoError(t, it.Close())

	require.NoError(t, txn.Commit())
}

func testDeleteRange(t *testing.T, s kv.Store) {
	defer s.Close()
	txn := begin(t, s, true)
	for i := 0; i < 20; i++ {
		require.NoError(t, txn.Put([]byte(fmt.Sprintf("r%02d", i)), []byte{byte(i)}))
	}
	require.NoError(t, txn.Put([]byte("s"), []byte("keep")))
	require.NoError(t, txn.DeleteRange([]byte("r05"), []byte("r15")))

	keys, err := kv.CollectRange(txn, []byte("r"), []byte("t"))
	require.NoError(t, err)
	assert.Len(t, keys, 11)
	assert.Equal(t, []byte("r04"), keys[4])
	assert.Equal(t, []byte("r15"), keys[5])
	assert.Equal(t, []byte("s"), keys[10])
	require.NoError(t, txn.Commit())
}

func testRollback(t *testing.T, s kv.Store) {
	defer s.Close()
	txn := begin(t, s, true)
	require.NoError(t, txn.Put([]byte("gone"), []byte("x")))
	require.NoError(t, txn.Rollback())

	txn = begin(t, s, false)
	defer txn.Rollback()
	_, err := txn.Get([]byte("gone"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testReadOnly(t *testing.T, s kv.Store) {
	defer s.Close()
	txn := begin(t, s, false)
	defer txn.Rollback()
	assert.ErrorIs(t, txn.Put([]byte("k"), []byte("v")), kv.ErrReadOnly)
	assert.ErrorIs(t, txn.Delete([]byte("k")), kv.ErrReadOnly)
	assert.ErrorIs(t, txn.DeleteRange([]byte("a"), []byte("b")), kv.ErrReadOnly)
}

func testFinishedTxn(t *testing.T, s kv.Store) {
	defer s.Close()
	txn := begin(t, s, true)
	require.NoError(t, txn.Commit())
	_, err := txn.Get([]byte("k"))
	assert.True(t, errors.Is(err, kv.ErrTxnDone))
	assert.ErrorIs(t, txn.Commit(), kv.ErrTxnDone)
	assert.NoError(t, txn.Rollback())
}

func testScanPrefix(t *testing.T, s kv.Store) {
	defer s.Close()
	txn := begin(t, s, true)
	defer txn.Rollback()
	for _, k := range []string{"p/1", "p/2", "p/3", "q/1", "o/9"} {
		require.NoError(t, txn.Put([]byte(k), []byte(k)))
	}

	var got []string
	err := kv.ScanPrefix(txn, []byte("p/"), func(k, v []byte) (bool, error) {
		got = append(got, string(k))
		return len(got) < 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p/1", "p/2"}, got)

	boom := errors.New("boom")
	err = kv.ScanPrefix(txn, []byte("p/"), func(k, v []byte) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
