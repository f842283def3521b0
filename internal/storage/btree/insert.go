package btree

// Insert adds key/value to the tree, overwriting the value of an
// already-present key. A leaf that grows past the tree order splits at
// its midpoint, links the new right sibling into the leaf chain, and
// propagates the separator upward, splitting internal nodes as needed
// up to a new root. The whole operation commits as one storage
// transaction.
func (t *Tree[K, V]) Insert(key K, value V) error {
	rootRef, err := t.store.Root()
	if err != nil {
		return err
	}
	leaf, path, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	oldLeafRef := leaf.Ref

	c, found := leaf.CursorBeforeKey(t.cmp, key)
	if found {
		if _, _, err := c.RemoveAfter(); err != nil {
			return err
		}
	}
	c.Insert(key, value)

	var sepKey K
	rightRef := NilRef
	hasSplit := false

	if leaf.EntryCount() > t.order {
		right := NewLeaf[K, V]()
		mid := (leaf.EntryCount() + 1) / 2

		mc := leaf.CursorBeforeFirst()
		for i := 0; i < mid; i++ {
			if err := mc.MoveNext(); err != nil {
				return err
			}
		}
		rc := right.CursorBeforeFirst()
		for !mc.IsAfterLast() {
			k, v, err := mc.RemoveAfter()
			if err != nil {
				return err
			}
			rc.Insert(k, v)
			if err := rc.MoveNext(); err != nil {
				return err
			}
		}

		right.Next = leaf.Next
		if err := t.store.Persist(right); err != nil {
			return err
		}
		leaf.Next = right.Ref
		sepKey = right.Keys[0]
		rightRef = right.Ref
		hasSplit = true
	}

	if err := t.store.Persist(leaf); err != nil {
		return err
	}
	if err := t.repairPredecessor(path, oldLeafRef, leaf.Ref); err != nil {
		return err
	}

	childRef := leaf.Ref
	for i := len(path) - 1; i >= 0; i-- {
		parent := path[i].node
		idx := path[i].childIdx

		parent.Children[idx] = childRef
		if hasSplit {
			parent.insertChildAt(idx, sepKey, rightRef)
			hasSplit = false
			if parent.ChildCount() > t.maxChildren() {
				sepKey, rightRef, err = t.splitInternal(parent)
				if err != nil {
					return err
				}
				hasSplit = true
			}
		}
		if err := t.store.Persist(parent); err != nil {
			return err
		}
		childRef = parent.Ref
	}

	if hasSplit {
		newRoot := NewInternal[K, V]([]K{sepKey}, []Ref{childRef, rightRef})
		if err := t.store.Persist(newRoot); err != nil {
			return err
		}
		childRef = newRoot.Ref
	}
	if childRef != rootRef {
		if err := t.store.SetRoot(childRef); err != nil {
			return err
		}
	}
	return t.store.CommitAndReclaim()
}

// splitInternal splits an overfull internal node at its middle key,
// which moves up as the new separator. The node keeps the left half.
func (t *Tree[K, V]) splitInternal(n *Node[K, V]) (K, Ref, error) {
	mid := len(n.Keys) / 2
	sep := n.Keys[mid]

	right := NewInternal[K, V](
		append([]K(nil), n.Keys[mid+1:]...),
		append([]Ref(nil), n.Children[mid+1:]...),
	)
	n.Keys = n.Keys[:mid]
	n.Children = n.Children[:mid+1]

	if err := t.store.Persist(right); err != nil {
		var zero K
		return zero, NilRef, err
	}
	return sep, right.Ref, nil
}
