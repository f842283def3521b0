package nodestore

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldb/quill/internal/storage"
	"github.com/quilldb/quill/internal/storage/btree"
)

type blockFixture struct {
	device *storage.SimFile
	wal    *storage.SimFile
	file   *storage.FreeBlockFile
	store  *Block[string, []byte]
}

func newBlockFixture(t *testing.T) *blockFixture {
	t.Helper()
	device := storage.NewSimFile(32, rand.New(rand.NewSource(11)))
	wal := storage.NewSimFile(32, rand.New(rand.NewSource(12)))
	return openFixture(t, device, wal)
}

func openFixture(t *testing.T, device, wal *storage.SimFile) *blockFixture {
	t.Helper()
	backend := storage.NewAtomicFile(device, wal)
	require.NoError(t, backend.Recover())
	file, err := storage.NewFreeBlockFile(backend, 32)
	require.NoError(t, err)
	require.NoError(t, file.Open())
	return &blockFixture{
		device: device,
		wal:    wal,
		file:   file,
		store:  NewBlock[string, []byte](file, StringCodec{}, BytesCodec{}),
	}
}

// reopen simulates a clean restart: close the files and build a fresh
// stack over them.
func (fx *blockFixture) reopen(t *testing.T) *blockFixture {
	t.Helper()
	require.NoError(t, fx.device.Close())
	require.NoError(t, fx.wal.Close())
	return openFixture(t, fx.device, fx.wal)
}

func TestBlockPersistAssignsRef(t *testing.T) {
	fx := newBlockFixture(t)

	leaf := btree.NewLeaf[string, []byte]()
	leaf.Keys = []string{"a"}
	leaf.Vals = [][]byte{[]byte("doc")}

	require.NoError(t, fx.store.Persist(leaf))
	assert.NotEqual(t, btree.NilRef, leaf.Ref)
	require.NoError(t, fx.store.CommitAndReclaim())

	got, err := fx.store.Load(leaf.Ref)
	require.NoError(t, err)
	assert.Same(t, leaf, got, "load inside one session must hit the cache")

	fx.store.ClearCache()
	got, err = fx.store.Load(leaf.Ref)
	require.NoError(t, err)
	assert.NotSame(t, leaf, got)
	assert.Equal(t, leaf.Keys, got.Keys)
	assert.Equal(t, leaf.Ref, got.Ref)
}

func TestBlockPersistKeepsRefWhileChainFits(t *testing.T) {
	fx := newBlockFixture(t)

	leaf := btree.NewLeaf[string, []byte]()
	leaf.Keys = []string{"k"}
	leaf.Vals = [][]byte{[]byte("v1")}
	require.NoError(t, fx.store.Persist(leaf))
	require.NoError(t, fx.store.CommitAndReclaim())
	ref := leaf.Ref

	leaf.Vals[0] = []byte("v2")
	require.NoError(t, fx.store.Persist(leaf))
	assert.Equal(t, ref, leaf.Ref, "same-size rewrite must stay in place")
}

func TestBlockPersistMovesGrownNode(t *testing.T) {
	fx := newBlockFixture(t)

	leaf := btree.NewLeaf[string, []byte]()
	leaf.Keys = []string{"k"}
	leaf.Vals = [][]byte{[]byte("v")}
	require.NoError(t, fx.store.Persist(leaf))
	require.NoError(t, fx.store.CommitAndReclaim())
	oldRef := leaf.Ref

	leaf.Vals[0] = make([]byte, 200)
	require.NoError(t, fx.store.Persist(leaf))
	assert.NotEqual(t, oldRef, leaf.Ref)
	require.NoError(t, fx.store.CommitAndReclaim())

	// The old single-block blob went back to the free list after the
	// move committed.
	free, err := fx.file.FreeBlockCount()
	require.NoError(t, err)
	assert.Equal(t, 1, free)

	fx.store.ClearCache()
	got, err := fx.store.Load(leaf.Ref)
	require.NoError(t, err)
	assert.Equal(t, 200, len(got.Vals[0]))
}

func TestBlockReleaseDefersReclamation(t *testing.T) {
	fx := newBlockFixture(t)

	leaf := btree.NewLeaf[string, []byte]()
	leaf.Keys = []string{"gone"}
	leaf.Vals = [][]byte{[]byte("soon")}
	require.NoError(t, fx.store.Persist(leaf))
	require.NoError(t, fx.store.CommitAndReclaim())

	fx.store.Release(leaf.Ref)
	free, err := fx.file.FreeBlockCount()
	require.NoError(t, err)
	assert.Equal(t, 0, free, "blocks must stay allocated until commit")

	require.NoError(t, fx.store.CommitAndReclaim())
	free, err = fx.file.FreeBlockCount()
	require.NoError(t, err)
	assert.Equal(t, 1, free)
}

func TestBlockRootInClientHeader(t *testing.T) {
	fx := newBlockFixture(t)

	root, err := fx.store.Root()
	require.NoError(t, err)
	assert.Equal(t, btree.NilRef, root)

	require.NoError(t, fx.store.SetRoot(btree.Ref(7)))
	require.NoError(t, fx.store.CommitAndReclaim())

	fx2 := fx.reopen(t)
	root, err = fx2.store.Root()
	require.NoError(t, err)
	assert.Equal(t, btree.Ref(7), root)
}

func TestBlockRejectsOversizedKey(t *testing.T) {
	fx := newBlockFixture(t)

	leaf := btree.NewLeaf[string, []byte]()
	leaf.Keys = []string{string(make([]byte, DefaultMaxKeySize+1))}
	leaf.Vals = [][]byte{nil}
	assert.ErrorIs(t, fx.store.Persist(leaf), btree.ErrKeyTooLarge)
}

func TestTreeOverBlockStorage(t *testing.T) {
	fx := newBlockFixture(t)

	tree, err := btree.New[string, []byte](fx.store, btree.Ordered[string], 3)
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		require.NoError(t, tree.Insert(fmt.Sprintf("key-%02d", i), []byte(fmt.Sprintf("doc %d", i))))
	}
	for i := 0; i < 40; i += 2 {
		found, err := tree.Delete(fmt.Sprintf("key-%02d", i))
		require.NoError(t, err)
		require.True(t, found)
	}

	// A fresh stack over the same device must see exactly the
	// committed tree.
	fx2 := fx.reopen(t)
	tree2, err := btree.New[string, []byte](fx2.store, btree.Ordered[string], 3)
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		v, ok, err := tree2.Search(fmt.Sprintf("key-%02d", i))
		require.NoError(t, err)
		if i%2 == 0 {
			assert.False(t, ok, "key-%02d should be deleted", i)
		} else {
			require.True(t, ok, "key-%02d should exist", i)
			assert.Equal(t, []byte(fmt.Sprintf("doc %d", i)), v)
		}
	}
	n, err := tree2.Len()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestTreeSurvivesCrashBetweenOperations(t *testing.T) {
	fx := newBlockFixture(t)

	tree, err := btree.New[string, []byte](fx.store, btree.Ordered[string], 3)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, tree.Insert(fmt.Sprintf("k%d", i), []byte("v")))
	}

	// Each Insert commits and checkpoints, so losing unsynced state
	// right after one loses nothing.
	fx.device.CrashDropPending()
	fx.wal.CrashDropPending()

	fx2 := openFixture(t, fx.device, fx.wal)
	tree2, err := btree.New[string, []byte](fx2.store, btree.Ordered[string], 3)
	require.NoError(t, err)
	n, err := tree2.Len()
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestMemStoreReclaim(t *testing.T) {
	m := NewMem[string, string]()

	n := btree.NewLeaf[string, string]()
	n.Keys = []string{"a"}
	n.Vals = []string{"1"}
	require.NoError(t, m.Persist(n))
	require.Equal(t, 1, m.Len())

	m.Release(n.Ref)
	require.Equal(t, 1, m.Len(), "release is deferred until commit")
	require.NoError(t, m.CommitAndReclaim())
	require.Equal(t, 0, m.Len())

	_, err := m.Load(n.Ref)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}
