package nodestore

import (
	"errors"
	"math"

	"github.com/quilldb/quill/internal/storage/btree"
)

// ErrNodeNotFound reports a Load of a ref the store never persisted.
var ErrNodeNotFound = errors.New("no node stored at ref")

// Mem keeps nodes in a map, by identity. Refs are stable for a node's
// lifetime and commit is a no-op beyond reclaiming released refs. It
// backs tests and ephemeral indexes.
type Mem[K, V any] struct {
	nodes    map[btree.Ref]*btree.Node[K, V]
	released []btree.Ref
	next     btree.Ref
	root     btree.Ref
}

// NewMem returns an empty in-memory node store.
func NewMem[K, V any]() *Mem[K, V] {
	return &Mem[K, V]{
		nodes: make(map[btree.Ref]*btree.Node[K, V]),
		root:  btree.NilRef,
	}
}

func (m *Mem[K, V]) Load(ref btree.Ref) (*btree.Node[K, V], error) {
	n, ok := m.nodes[ref]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

func (m *Mem[K, V]) Persist(n *btree.Node[K, V]) error {
	if n.Ref == btree.NilRef {
		n.Ref = m.next
		m.next++
	}
	m.nodes[n.Ref] = n
	return nil
}

func (m *Mem[K, V]) Release(ref btree.Ref) {
	m.released = append(m.released, ref)
}

func (m *Mem[K, V]) Root() (btree.Ref, error) {
	return m.root, nil
}

func (m *Mem[K, V]) SetRoot(ref btree.Ref) error {
	m.root = ref
	return nil
}

func (m *Mem[K, V]) CommitAndReclaim() error {
	for _, ref := range m.released {
		delete(m.nodes, ref)
	}
	m.released = nil
	return nil
}

func (m *Mem[K, V]) MaxKeySize() int {
	return math.MaxUint16
}

// Len returns the number of stored nodes.
func (m *Mem[K, V]) Len() int {
	return len(m.nodes)
}
