package btree

import (
	"errors"
	"fmt"
)

// Tree errors.
var (
	ErrInvalidOrder = errors.New("tree order must be positive")
	ErrKeyTooLarge  = errors.New("key exceeds maximum size")
)

// Storage is the pluggable persistence layer under the tree. The
// trivial in-memory implementation keeps nodes by identity; the
// block-backed implementation serializes each node to one blob and may
// move a node to a new ref when its blob outgrows or undershoots its
// chain. Staged changes become durable only at CommitAndReclaim, which
// also releases superseded blocks for reuse (deferred reclamation).
type Storage[K, V any] interface {
	// Load returns the node stored at ref, memoized per ref where the
	// implementation caches.
	Load(ref Ref) (*Node[K, V], error)

	// Persist stages the node's current state. It assigns a ref to a
	// new node and may reassign the ref of an existing one, retiring
	// the old blocks for deferred reclamation.
	Persist(n *Node[K, V]) error

	// Release enqueues a superseded node's storage for reclamation
	// after the next CommitAndReclaim.
	Release(ref Ref)

	// Root returns the persisted root ref, or NilRef when the storage
	// is empty.
	Root() (Ref, error)

	// SetRoot stages a new root ref.
	SetRoot(ref Ref) error

	// CommitAndReclaim makes all staged changes durable as one
	// transaction, then frees every released node's blocks.
	CommitAndReclaim() error

	// MaxKeySize returns the largest encoded key the storage accepts.
	MaxKeySize() int
}

// Tree is an order-parameterized B+Tree over comparator-ordered keys.
// A leaf holds at most order entries; an internal node holds at most
// order+1 children. The tree is not safe for concurrent use.
type Tree[K, V any] struct {
	order int
	cmp   Comparator[K]
	store Storage[K, V]
}

// New opens a tree over the given storage, creating an empty root leaf
// if the storage holds none.
func New[K, V any](store Storage[K, V], cmp Comparator[K], order int) (*Tree[K, V], error) {
	if order < 1 {
		return nil, ErrInvalidOrder
	}
	t := &Tree[K, V]{order: order, cmp: cmp, store: store}

	root, err := store.Root()
	if err != nil {
		return nil, err
	}
	if root == NilRef {
		leaf := NewLeaf[K, V]()
		if err := store.Persist(leaf); err != nil {
			return nil, err
		}
		if err := store.SetRoot(leaf.Ref); err != nil {
			return nil, err
		}
		if err := store.CommitAndReclaim(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Order returns the tree's order.
func (t *Tree[K, V]) Order() int {
	return t.order
}

// minLeafEntries is the smallest legal entry count of a non-root leaf.
func (t *Tree[K, V]) minLeafEntries() int {
	return (t.order + 1) / 2
}

// minChildren is the smallest legal child count of a non-root internal
// node, per the ceil((m+1)/2) occupancy invariant.
func (t *Tree[K, V]) minChildren() int {
	return (t.order + 2) / 2
}

// maxChildren is the largest legal child count of an internal node.
func (t *Tree[K, V]) maxChildren() int {
	return t.order + 1
}

func (t *Tree[K, V]) loadRoot() (*Node[K, V], error) {
	ref, err := t.store.Root()
	if err != nil {
		return nil, err
	}
	if ref == NilRef {
		return nil, fmt.Errorf("tree has no root")
	}
	return t.store.Load(ref)
}

// pathEntry records one internal node of a descent and the child index
// taken from it.
type pathEntry[K, V any] struct {
	node     *Node[K, V]
	childIdx int
}

// descendToLeaf walks from the root to the leaf covering key, recording
// every internal node on the way.
func (t *Tree[K, V]) descendToLeaf(key K) (*Node[K, V], []pathEntry[K, V], error) {
	node, err := t.loadRoot()
	if err != nil {
		return nil, nil, err
	}
	var path []pathEntry[K, V]
	for node.Kind == KindInternal {
		idx := node.childIndex(t.cmp, key)
		path = append(path, pathEntry[K, V]{node: node, childIdx: idx})
		node, err = t.store.Load(node.Children[idx])
		if err != nil {
			return nil, nil, err
		}
	}
	return node, path, nil
}

// leftmostLeaf descends to the first leaf of the subtree rooted at n.
func (t *Tree[K, V]) leftmostLeaf(n *Node[K, V]) (*Node[K, V], error) {
	var err error
	for n.Kind == KindInternal {
		n, err = t.store.Load(n.Children[0])
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// rightmostLeaf descends to the last leaf of the subtree rooted at n.
func (t *Tree[K, V]) rightmostLeaf(n *Node[K, V]) (*Node[K, V], error) {
	var err error
	for n.Kind == KindInternal {
		n, err = t.store.Load(n.Children[len(n.Children)-1])
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// repairPredecessor rewires the sibling link of the leaf preceding the
// leaf that moved from oldRef to newRef. path is the descent path to
// the moved leaf. Rewriting a next pointer never changes a node's
// serialized size, so the predecessor keeps its own ref and the repair
// cannot cascade.
func (t *Tree[K, V]) repairPredecessor(path []pathEntry[K, V], oldRef, newRef Ref) error {
	if oldRef == newRef || oldRef == NilRef {
		return nil
	}
	var pred *Node[K, V]
	for j := len(path) - 1; j >= 0; j-- {
		if path[j].childIdx == 0 {
			continue
		}
		left, err := t.store.Load(path[j].node.Children[path[j].childIdx-1])
		if err != nil {
			return err
		}
		pred, err = t.rightmostLeaf(left)
		if err != nil {
			return err
		}
		break
	}
	if pred == nil {
		// The moved leaf is the leftmost leaf of the tree.
		return nil
	}
	pred.Next = newRef
	return t.store.Persist(pred)
}

// pathTo returns a copy of path with the final child index replaced,
// for repairs addressed to a sibling of the descent target.
func pathTo[K, V any](path []pathEntry[K, V], childIdx int) []pathEntry[K, V] {
	out := make([]pathEntry[K, V], len(path))
	copy(out, path)
	if len(out) > 0 {
		out[len(out)-1].childIdx = childIdx
	}
	return out
}
