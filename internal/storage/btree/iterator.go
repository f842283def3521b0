package btree

// Entry is one key/value pair yielded during iteration.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// RangeOptions controls which endpoints a Range iteration includes.
// The zero bounds used when no options are given are inclusive start,
// exclusive end.
type RangeOptions struct {
	InclusiveStart bool
	InclusiveEnd   bool
}

// Iterator walks leaf entries in key order by following the sibling
// links between leaves. It is a snapshot of nothing: mutating the tree
// during iteration invalidates the iterator.
type Iterator[K, V any] struct {
	t    *Tree[K, V]
	leaf *Node[K, V]
	pos  int

	end    *K
	incEnd bool
	key    K
	val    V
	err    error
	done   bool
}

// Entries returns an iterator over every entry, in ascending key order.
func (t *Tree[K, V]) Entries() (*Iterator[K, V], error) {
	root, err := t.loadRoot()
	if err != nil {
		return nil, err
	}
	leaf, err := t.leftmostLeaf(root)
	if err != nil {
		return nil, err
	}
	return &Iterator[K, V]{t: t, leaf: leaf}, nil
}

// EntriesFrom returns an iterator over every entry whose key is not
// less than start, in ascending key order.
func (t *Tree[K, V]) EntriesFrom(start K) (*Iterator[K, V], error) {
	leaf, _, err := t.descendToLeaf(start)
	if err != nil {
		return nil, err
	}
	c, _ := leaf.CursorBeforeKey(t.cmp, start)
	return &Iterator[K, V]{t: t, leaf: leaf, pos: c.Position()}, nil
}

// Range returns an iterator over the entries between start and end.
// With nil opts the start bound is inclusive and the end bound is
// exclusive.
func (t *Tree[K, V]) Range(start, end K, opts *RangeOptions) (*Iterator[K, V], error) {
	if opts == nil {
		opts = &RangeOptions{InclusiveStart: true}
	}
	leaf, _, err := t.descendToLeaf(start)
	if err != nil {
		return nil, err
	}
	c, found := leaf.CursorBeforeKey(t.cmp, start)
	pos := c.Position()
	if found && !opts.InclusiveStart {
		pos++
	}
	e := end
	return &Iterator[K, V]{t: t, leaf: leaf, pos: pos, end: &e, incEnd: opts.InclusiveEnd}, nil
}

// Next advances to the next entry, reporting whether one was produced.
// Once it returns false, check Err to distinguish exhaustion from a
// storage failure.
func (it *Iterator[K, V]) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	for it.pos >= it.leaf.EntryCount() {
		if it.leaf.Next == NilRef {
			it.done = true
			return false
		}
		next, err := it.t.store.Load(it.leaf.Next)
		if err != nil {
			it.err = err
			return false
		}
		it.leaf = next
		it.pos = 0
	}
	key := it.leaf.Keys[it.pos]
	if it.end != nil {
		c := it.t.cmp(key, *it.end)
		if c > 0 || (c == 0 && !it.incEnd) {
			it.done = true
			return false
		}
	}
	it.key = key
	it.val = it.leaf.Vals[it.pos]
	it.pos++
	return true
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K { return it.key }

// Value returns the value of the current entry.
func (it *Iterator[K, V]) Value() V { return it.val }

// Err returns the storage error that stopped iteration, if any.
func (it *Iterator[K, V]) Err() error { return it.err }

// ForEach calls fn for every entry in ascending key order, stopping at
// the first error fn returns.
func (t *Tree[K, V]) ForEach(fn func(key K, value V) error) error {
	it, err := t.Entries()
	if err != nil {
		return err
	}
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Len walks the leaf chain and counts entries.
func (t *Tree[K, V]) Len() (int, error) {
	n := 0
	err := t.ForEach(func(K, V) error {
		n++
		return nil
	})
	return n, err
}
