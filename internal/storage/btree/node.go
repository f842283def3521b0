// Package btree provides the order-parameterized B+Tree index for
// QuillDB, generic over comparator-ordered keys and pluggable node
// storage.
package btree

import "cmp"

// Ref identifies a node within its storage. For block-backed storage it
// is the id of the first block of the node's blob.
type Ref uint32

// NilRef is the sentinel for "no node". Its bit pattern matches the
// allocator's NO_BLOCK sentinel so leaf chains serialize directly.
const NilRef Ref = 0xFFFFFFFF

// Kind tags a node as leaf or internal. The tree layer switches on the
// tag exhaustively instead of using interface dispatch.
type Kind uint8

const (
	// KindLeaf marks a node holding sorted keys with parallel values
	// and a forward sibling link.
	KindLeaf Kind = iota + 1
	// KindInternal marks a node holding k keys and k+1 child refs.
	KindInternal
)

// Comparator imposes a total order on keys: negative when a < b, zero
// when equal, positive when a > b.
type Comparator[K any] func(a, b K) int

// Ordered is the natural comparator for ordered key types.
func Ordered[K cmp.Ordered](a, b K) int {
	return cmp.Compare(a, b)
}

// Node is the in-memory view of a tree node, tagged by Kind.
//
// For a leaf, Keys[i] pairs with Vals[i] and Next links the forward
// sibling chain. For an internal node, Children[i] covers keys smaller
// than Keys[i] (and not smaller than Keys[i-1]), so len(Children) is
// always len(Keys)+1.
type Node[K, V any] struct {
	Kind     Kind
	Ref      Ref
	Keys     []K
	Vals     []V
	Children []Ref
	Next     Ref
}

// NewLeaf creates an empty, unpersisted leaf.
func NewLeaf[K, V any]() *Node[K, V] {
	return &Node[K, V]{
		Kind: KindLeaf,
		Ref:  NilRef,
		Next: NilRef,
	}
}

// NewInternal creates an unpersisted internal node over the given keys
// and children. len(children) must be len(keys)+1.
func NewInternal[K, V any](keys []K, children []Ref) *Node[K, V] {
	return &Node[K, V]{
		Kind:     KindInternal,
		Ref:      NilRef,
		Keys:     keys,
		Children: children,
		Next:     NilRef,
	}
}

// EntryCount returns the number of keys in the node.
func (n *Node[K, V]) EntryCount() int {
	return len(n.Keys)
}

// ChildCount returns the number of children of an internal node.
func (n *Node[K, V]) ChildCount() int {
	return len(n.Children)
}

// childIndex returns the index of the child that covers key: the first
// child whose upper separator is greater than key. Keys equal to a
// separator belong to the child on its right.
func (n *Node[K, V]) childIndex(cmp Comparator[K], key K) int {
	low, high := 0, len(n.Keys)
	for low < high {
		mid := (low + high) / 2
		if cmp(key, n.Keys[mid]) < 0 {
			high = mid
		} else {
			low = mid + 1
		}
	}
	return low
}

// insertChildAt inserts separator key at index i and the new right
// child at index i+1, as produced by a child split.
func (n *Node[K, V]) insertChildAt(i int, key K, right Ref) {
	var zeroK K
	n.Keys = append(n.Keys, zeroK)
	copy(n.Keys[i+1:], n.Keys[i:])
	n.Keys[i] = key

	n.Children = append(n.Children, NilRef)
	copy(n.Children[i+2:], n.Children[i+1:])
	n.Children[i+1] = right
}

// removeChildAt removes separator key i and child i+1, as needed after
// merging child i+1 into child i.
func (n *Node[K, V]) removeChildAt(i int) {
	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Children = append(n.Children[:i+1], n.Children[i+2:]...)
}
