package btree

import "errors"

// Cursor errors.
var (
	ErrCursorAtEnd = errors.New("cursor is at or after the last entry")
)

// LeafCursor is a position between the entries of one leaf. A cursor at
// position i sits before entry i; a cursor at the entry count is after
// the last entry. Insert and remove operate on the entry directly after
// the cursor, so callers express mutations without re-deriving the
// position each time.
type LeafCursor[K, V any] struct {
	node *Node[K, V]
	pos  int
}

// CursorBeforeFirst returns a cursor before the first entry.
func (n *Node[K, V]) CursorBeforeFirst() *LeafCursor[K, V] {
	return &LeafCursor[K, V]{node: n}
}

// CursorBeforeKey binary-searches the leaf and returns a cursor before
// the first entry whose key is not less than key, reporting whether it
// landed exactly on the key.
func (n *Node[K, V]) CursorBeforeKey(cmp Comparator[K], key K) (*LeafCursor[K, V], bool) {
	low, high := 0, len(n.Keys)
	for low < high {
		mid := (low + high) / 2
		if cmp(n.Keys[mid], key) < 0 {
			low = mid + 1
		} else {
			high = mid
		}
	}
	found := low < len(n.Keys) && cmp(n.Keys[low], key) == 0
	return &LeafCursor[K, V]{node: n, pos: low}, found
}

// MoveNext advances the cursor past the entry after it.
func (c *LeafCursor[K, V]) MoveNext() error {
	if c.IsAfterLast() {
		return ErrCursorAtEnd
	}
	c.pos++
	return nil
}

// IsAfterLast reports whether no entry remains after the cursor.
func (c *LeafCursor[K, V]) IsAfterLast() bool {
	return c.pos >= len(c.node.Keys)
}

// PairAfter returns the entry directly after the cursor.
func (c *LeafCursor[K, V]) PairAfter() (K, V, error) {
	if c.IsAfterLast() {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, ErrCursorAtEnd
	}
	return c.node.Keys[c.pos], c.node.Vals[c.pos], nil
}

// Insert places a new entry directly after the cursor. The caller is
// responsible for choosing a position that keeps the leaf sorted.
func (c *LeafCursor[K, V]) Insert(key K, value V) {
	n := c.node
	var zeroK K
	var zeroV V
	n.Keys = append(n.Keys, zeroK)
	copy(n.Keys[c.pos+1:], n.Keys[c.pos:])
	n.Keys[c.pos] = key

	n.Vals = append(n.Vals, zeroV)
	copy(n.Vals[c.pos+1:], n.Vals[c.pos:])
	n.Vals[c.pos] = value
}

// RemoveAfter removes and returns the entry directly after the cursor.
func (c *LeafCursor[K, V]) RemoveAfter() (K, V, error) {
	key, value, err := c.PairAfter()
	if err != nil {
		return key, value, err
	}
	n := c.node
	n.Keys = append(n.Keys[:c.pos], n.Keys[c.pos+1:]...)
	n.Vals = append(n.Vals[:c.pos], n.Vals[c.pos+1:]...)
	return key, value, nil
}

// Position returns the cursor's entry index.
func (c *LeafCursor[K, V]) Position() int {
	return c.pos
}

// SetPosition moves the cursor before entry i.
func (c *LeafCursor[K, V]) SetPosition(i int) {
	c.pos = i
}

// SetToEnd moves the cursor after the last entry.
func (c *LeafCursor[K, V]) SetToEnd() {
	c.pos = len(c.node.Keys)
}

// ChildCursor is a position over the children of one internal node.
type ChildCursor[K, V any] struct {
	node *Node[K, V]
	pos  int
}

// ChildCursorAtFirst returns a cursor at the first child.
func (n *Node[K, V]) ChildCursorAtFirst() *ChildCursor[K, V] {
	return &ChildCursor[K, V]{node: n}
}

// SetPosition moves the cursor to child i.
func (c *ChildCursor[K, V]) SetPosition(i int) {
	c.pos = i
}

// IsFirstChild reports whether the cursor is at the leftmost child.
func (c *ChildCursor[K, V]) IsFirstChild() bool {
	return c.pos == 0
}

// IsLastChild reports whether the cursor is at the rightmost child.
func (c *ChildCursor[K, V]) IsLastChild() bool {
	return c.pos == len(c.node.Children)-1
}

// ChildRef returns the ref of the child under the cursor.
func (c *ChildCursor[K, V]) ChildRef() Ref {
	return c.node.Children[c.pos]
}

// KeyAfter returns the separator key to the right of the child under
// the cursor.
func (c *ChildCursor[K, V]) KeyAfter() (K, error) {
	if c.pos >= len(c.node.Keys) {
		var zero K
		return zero, ErrCursorAtEnd
	}
	return c.node.Keys[c.pos], nil
}
