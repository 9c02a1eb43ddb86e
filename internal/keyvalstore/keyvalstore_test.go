package keyvalstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStoreChecksDirectory(t *testing.T) {
	_, err := NewStore(StoreConfig{Path: ""})
	assert.Error(t, err)

	_, err = NewStore(StoreConfig{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestSetGetDelete(t *testing.T) {
	store := newTestStore(t)

	txn := store.Begin()
	require.NoError(t, txn.Set([]byte("k"), []byte("v")))
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.BeginRead()
	value, err := txn.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	_, err = txn.Get([]byte("absent"))
	assert.Equal(t, ErrNotFound, err)
	txn.Discard()

	txn = store.Begin()
	require.NoError(t, txn.Delete([]byte("k")))
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.BeginRead()
	_, err = txn.Get([]byte("k"))
	assert.Equal(t, ErrNotFound, err)
	txn.Discard()
}

func TestDupSetMembership(t *testing.T) {
	store := newTestStore(t)
	key := []byte("set")

	txn := store.Begin()
	require.NoError(t, txn.AddDup(key, []byte("b")))
	require.NoError(t, txn.AddDup(key, []byte("a")))
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.BeginRead()
	has, err := txn.HasDup(key, []byte("a"))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = txn.HasDup(key, []byte("c"))
	require.NoError(t, err)
	assert.False(t, has)
	txn.Discard()
}

func TestDupMembersSortedLexicographically(t *testing.T) {
	store := newTestStore(t)
	key := []byte("set")

	txn := store.Begin()
	for _, member := range [][]byte{{0x03}, {0x01}, {0x02, 0x00}, {0x02}} {
		require.NoError(t, txn.AddDup(key, member))
	}
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.BeginRead()
	members, err := txn.DupMembers(key)
	require.NoError(t, err)
	txn.Discard()

	assert.Equal(t, [][]byte{{0x01}, {0x02}, {0x02, 0x00}, {0x03}}, members)
}

func TestAddDupTwiceIsNoOp(t *testing.T) {
	store := newTestStore(t)
	key := []byte("set")

	txn := store.Begin()
	require.NoError(t, txn.AddDup(key, []byte("m")))
	require.NoError(t, txn.AddDup(key, []byte("m")))
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.BeginRead()
	members, err := txn.DupMembers(key)
	require.NoError(t, err)
	txn.Discard()
	assert.Len(t, members, 1)
}

func TestDeleteDup(t *testing.T) {
	store := newTestStore(t)
	key := []byte("set")

	txn := store.Begin()
	require.NoError(t, txn.AddDup(key, []byte("m")))

	found, err := txn.DeleteDup(key, []byte("absent"))
	require.NoError(t, err)
	assert.False(t, found)

	found, err = txn.DeleteDup(key, []byte("m"))
	require.NoError(t, err)
	assert.True(t, found)
	require.NoError(t, txn.Commit())
	txn.Discard()
}

func TestDeleteDupsCountsRemovals(t *testing.T) {
	store := newTestStore(t)
	key := []byte("set")

	txn := store.Begin()
	for _, member := range [][]byte{{0x01}, {0x02}, {0x03}} {
		require.NoError(t, txn.AddDup(key, member))
	}
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.Begin()
	count, err := txn.DeleteDups(key)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.BeginRead()
	members, err := txn.DupMembers(key)
	require.NoError(t, err)
	assert.Empty(t, members)
	txn.Discard()
}

func TestDupSetsDoNotCollideWithValueRows(t *testing.T) {
	store := newTestStore(t)

	txn := store.Begin()
	require.NoError(t, txn.AddDup([]byte("stores/u"), []byte("idx")))
	require.NoError(t, txn.Set([]byte("stores/u/idx"), []byte("blob")))
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.BeginRead()
	members, err := txn.DupMembers([]byte("stores/u"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("idx")}, members)

	value, err := txn.Get([]byte("stores/u/idx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), value)
	txn.Discard()
}

func TestDiscardLeavesNoState(t *testing.T) {
	store := newTestStore(t)

	txn := store.Begin()
	require.NoError(t, txn.Set([]byte("k"), []byte("v")))
	require.NoError(t, txn.AddDup([]byte("set"), []byte("m")))
	txn.Discard()

	txn = store.BeginRead()
	_, err := txn.Get([]byte("k"))
	assert.Equal(t, ErrNotFound, err)

	has, err := txn.HasDup([]byte("set"), []byte("m"))
	require.NoError(t, err)
	assert.False(t, has)
	txn.Discard()
}

func TestKeysPrefixScan(t *testing.T) {
	store := newTestStore(t)

	txn := store.Begin()
	require.NoError(t, txn.AddDup([]byte("ns/a"), []byte("m1")))
	require.NoError(t, txn.AddDup([]byte("ns/b"), []byte("m2")))
	require.NoError(t, txn.Set([]byte("other"), []byte("v")))
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.BeginRead()
	keys, err := txn.Keys([]byte("ns/"))
	require.NoError(t, err)
	txn.Discard()
	assert.Len(t, keys, 2)
}

func TestCursorWalk(t *testing.T) {
	store := newTestStore(t)
	key := []byte("set")

	txn := store.Begin()
	for _, member := range [][]byte{{0x02}, {0x01}, {0x03}} {
		require.NoError(t, txn.AddDup(key, member))
	}
	require.NoError(t, txn.Commit())
	txn.Discard()

	txn = store.BeginRead()
	cursor := txn.Dups(key)
	var walked [][]byte
	for ok := cursor.First(); ok; ok = cursor.Next() {
		walked = append(walked, cursor.Member())
	}
	cursor.Close()
	txn.Discard()

	assert.Equal(t, [][]byte{{0x01}, {0x02}, {0x03}}, walked)
}

func TestReopenAfterClose(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(StoreConfig{Path: dir})
	require.NoError(t, err)

	txn := store.Begin()
	require.NoError(t, txn.Set([]byte("k"), []byte("v")))
	require.NoError(t, txn.Commit())
	txn.Discard()
	require.NoError(t, store.Close())

	store, err = NewStore(StoreConfig{Path: dir})
	require.NoError(t, err)
	defer store.Close()

	txn = store.BeginRead()
	value, err := txn.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
	txn.Discard()
}
