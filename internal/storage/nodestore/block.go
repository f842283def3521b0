package nodestore

import (
	"encoding/binary"
	"errors"

	"github.com/dolthub/swiss"

	"github.com/quilldb/quill/internal/storage"
	"github.com/quilldb/quill/internal/storage/btree"
)

// DefaultMaxKeySize bounds encoded keys accepted by a Block store. The
// bound keeps any plausible node from degenerating into a blob chain
// dominated by a single key.
const DefaultMaxKeySize = 1024

const rootHeaderSize = 4

// Block persists tree nodes as blobs in a free-block file, one blob per
// node. A node's ref is the id of its blob's first block.
//
// Persisting an existing node rewrites its blob in place while the
// encoded size fits the same block chain. When the node outgrows or
// undershoots the chain it moves to a fresh blob and the old one is
// queued so its blocks return to the free list only after the commit
// that made the move durable. A node whose bytes are already staged is
// also served from an in-memory cache, keyed by ref, so repeated loads
// inside one operation see one object.
//
// The root ref lives in the block file's client header.
type Block[K, V any] struct {
	file *storage.FreeBlockFile
	keys Codec[K]
	vals Codec[V]

	cache   *swiss.Map[uint32, *btree.Node[K, V]]
	reclaim []uint32
	maxKey  int
}

// NewBlock returns a node store over file using the given codecs.
func NewBlock[K, V any](file *storage.FreeBlockFile, keys Codec[K], vals Codec[V]) *Block[K, V] {
	return &Block[K, V]{
		file:   file,
		keys:   keys,
		vals:   vals,
		cache:  swiss.NewMap[uint32, *btree.Node[K, V]](64),
		maxKey: DefaultMaxKeySize,
	}
}

func (b *Block[K, V]) Load(ref btree.Ref) (*btree.Node[K, V], error) {
	if ref == btree.NilRef {
		return nil, ErrNodeNotFound
	}
	if n, ok := b.cache.Get(uint32(ref)); ok {
		return n, nil
	}
	data, err := b.file.ReadBlob(uint32(ref))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNodeNotFound
	}
	n, err := decodeNode(data, b.keys, b.vals)
	if err != nil {
		return nil, err
	}
	n.Ref = ref
	b.cache.Put(uint32(ref), n)
	return n, nil
}

func (b *Block[K, V]) Persist(n *btree.Node[K, V]) error {
	for _, k := range n.Keys {
		kb, err := b.keys.Encode(k)
		if err != nil {
			return err
		}
		if len(kb) > b.maxKey {
			return btree.ErrKeyTooLarge
		}
	}
	data, err := encodeNode(n, b.keys, b.vals)
	if err != nil {
		return err
	}

	if n.Ref == btree.NilRef {
		id, err := b.file.AllocateAndWrite(data)
		if err != nil {
			return err
		}
		n.Ref = btree.Ref(id)
		b.cache.Put(id, n)
		return nil
	}

	old := uint32(n.Ref)
	err = b.file.RewriteBlob(old, data)
	if err == nil {
		b.cache.Put(old, n)
		return nil
	}
	if !errors.Is(err, storage.ErrChainLength) {
		return err
	}

	// The node no longer fits its chain; move it and retire the old
	// blob after the next commit.
	id, err := b.file.AllocateAndWrite(data)
	if err != nil {
		return err
	}
	b.cache.Delete(old)
	b.reclaim = append(b.reclaim, old)
	n.Ref = btree.Ref(id)
	b.cache.Put(id, n)
	return nil
}

func (b *Block[K, V]) Release(ref btree.Ref) {
	if ref == btree.NilRef {
		return
	}
	b.cache.Delete(uint32(ref))
	b.reclaim = append(b.reclaim, uint32(ref))
}

func (b *Block[K, V]) Root() (btree.Ref, error) {
	h := b.file.ReadHeader()
	if len(h) < rootHeaderSize {
		return btree.NilRef, nil
	}
	return btree.Ref(binary.LittleEndian.Uint32(h)), nil
}

func (b *Block[K, V]) SetRoot(ref btree.Ref) error {
	var h [rootHeaderSize]byte
	binary.LittleEndian.PutUint32(h[:], uint32(ref))
	return b.file.WriteHeader(h[:])
}

// CommitAndReclaim commits the staged node writes, then frees retired
// blobs in a second commit. Blocks of a superseded node never return to
// the free list before the write that superseded them is durable; a
// crash between the two commits leaks the blocks but corrupts nothing.
func (b *Block[K, V]) CommitAndReclaim() error {
	if err := b.file.Commit(); err != nil {
		return err
	}
	if len(b.reclaim) == 0 {
		return nil
	}
	for _, id := range b.reclaim {
		if err := b.file.FreeBlob(id); err != nil {
			return err
		}
	}
	b.reclaim = nil
	return b.file.Commit()
}

func (b *Block[K, V]) MaxKeySize() int {
	return b.maxKey
}

// ClearCache drops every cached node. Refs handed out earlier stay
// valid; subsequent loads decode from the file again.
func (b *Block[K, V]) ClearCache() {
	b.cache.Clear()
}
