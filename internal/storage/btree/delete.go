package btree

// Delete removes key from the tree, reporting whether it was present.
// A leaf that falls below its minimum occupancy first tries to borrow
// one entry from an adjacent sibling, then merges with one, removing
// the separator from the parent and propagating underflow checks
// upward. A root reduced to a single-child internal node collapses so
// its child becomes the new root. The whole operation commits as one
// storage transaction.
func (t *Tree[K, V]) Delete(key K) (bool, error) {
	rootRef, err := t.store.Root()
	if err != nil {
		return false, err
	}
	leaf, path, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}

	c, found := leaf.CursorBeforeKey(t.cmp, key)
	if !found {
		return false, nil
	}
	if _, _, err := c.RemoveAfter(); err != nil {
		return false, err
	}

	// Root leaf: no occupancy minimum applies.
	if len(path) == 0 {
		if err := t.store.Persist(leaf); err != nil {
			return false, err
		}
		if leaf.Ref != rootRef {
			if err := t.store.SetRoot(leaf.Ref); err != nil {
				return false, err
			}
		}
		return true, t.store.CommitAndReclaim()
	}

	oldLeafRef := leaf.Ref
	parent := path[len(path)-1].node
	idx := path[len(path)-1].childIdx

	if leaf.EntryCount() >= t.minLeafEntries() || parent.ChildCount() < 2 {
		if err := t.store.Persist(leaf); err != nil {
			return false, err
		}
		if err := t.repairPredecessor(path, oldLeafRef, leaf.Ref); err != nil {
			return false, err
		}
		parent.Children[idx] = leaf.Ref
	} else if err := t.rebalanceLeaf(leaf, path); err != nil {
		return false, err
	}

	// Ascend, rebalancing internal nodes that lost a child.
	for i := len(path) - 1; i >= 1; i-- {
		node := path[i].node
		up := path[i-1]
		if node.ChildCount() < t.minChildren() && up.node.ChildCount() >= 2 {
			if err := t.rebalanceInternal(node, path[:i]); err != nil {
				return false, err
			}
			continue
		}
		if err := t.store.Persist(node); err != nil {
			return false, err
		}
		up.node.Children[up.childIdx] = node.Ref
	}

	root := path[0].node
	if root.Kind == KindInternal && root.ChildCount() == 1 {
		// Collapse: the lone child becomes the new root.
		if err := t.store.SetRoot(root.Children[0]); err != nil {
			return false, err
		}
		t.store.Release(root.Ref)
		return true, t.store.CommitAndReclaim()
	}
	if err := t.store.Persist(root); err != nil {
		return false, err
	}
	if root.Ref != rootRef {
		if err := t.store.SetRoot(root.Ref); err != nil {
			return false, err
		}
	}
	return true, t.store.CommitAndReclaim()
}

// rebalanceLeaf restores the occupancy of an underfull leaf by
// borrowing from or merging with an adjacent sibling under the same
// parent. It persists the touched leaves, repairs sibling links, and
// updates the parent's keys and child refs in memory; the caller
// persists the parent.
func (t *Tree[K, V]) rebalanceLeaf(leaf *Node[K, V], path []pathEntry[K, V]) error {
	parent := path[len(path)-1].node
	idx := path[len(path)-1].childIdx
	oldLeafRef := leaf.Ref

	// Borrow the first entry of the right sibling.
	if idx+1 < parent.ChildCount() {
		right, err := t.store.Load(parent.Children[idx+1])
		if err != nil {
			return err
		}
		if right.EntryCount() > t.minLeafEntries() {
			rc := right.CursorBeforeFirst()
			k, v, err := rc.RemoveAfter()
			if err != nil {
				return err
			}
			lc := leaf.CursorBeforeFirst()
			lc.SetToEnd()
			lc.Insert(k, v)

			if err := t.store.Persist(right); err != nil {
				return err
			}
			leaf.Next = right.Ref
			if err := t.store.Persist(leaf); err != nil {
				return err
			}
			if err := t.repairPredecessor(path, oldLeafRef, leaf.Ref); err != nil {
				return err
			}
			parent.Children[idx] = leaf.Ref
			parent.Children[idx+1] = right.Ref
			parent.Keys[idx] = right.Keys[0]
			return nil
		}
	}

	// Borrow the last entry of the left sibling.
	if idx > 0 {
		left, err := t.store.Load(parent.Children[idx-1])
		if err != nil {
			return err
		}
		if left.EntryCount() > t.minLeafEntries() {
			oldLeftRef := left.Ref
			lc := left.CursorBeforeFirst()
			lc.SetPosition(left.EntryCount() - 1)
			k, v, err := lc.RemoveAfter()
			if err != nil {
				return err
			}
			fc := leaf.CursorBeforeFirst()
			fc.Insert(k, v)

			if err := t.store.Persist(leaf); err != nil {
				return err
			}
			left.Next = leaf.Ref
			if err := t.store.Persist(left); err != nil {
				return err
			}
			if err := t.repairPredecessor(pathTo(path, idx-1), oldLeftRef, left.Ref); err != nil {
				return err
			}
			parent.Children[idx-1] = left.Ref
			parent.Children[idx] = leaf.Ref
			parent.Keys[idx-1] = leaf.Keys[0]
			return nil
		}
	}

	// Merge the right sibling into the leaf.
	if idx+1 < parent.ChildCount() {
		right, err := t.store.Load(parent.Children[idx+1])
		if err != nil {
			return err
		}
		if err := t.drainInto(right, leaf); err != nil {
			return err
		}
		leaf.Next = right.Next
		t.store.Release(right.Ref)
		if err := t.store.Persist(leaf); err != nil {
			return err
		}
		if err := t.repairPredecessor(path, oldLeafRef, leaf.Ref); err != nil {
			return err
		}
		parent.Children[idx] = leaf.Ref
		parent.removeChildAt(idx)
		return nil
	}

	// Rightmost child: merge the leaf into the left sibling.
	left, err := t.store.Load(parent.Children[idx-1])
	if err != nil {
		return err
	}
	oldLeftRef := left.Ref
	if err := t.drainInto(leaf, left); err != nil {
		return err
	}
	left.Next = leaf.Next
	t.store.Release(leaf.Ref)
	if err := t.store.Persist(left); err != nil {
		return err
	}
	if err := t.repairPredecessor(pathTo(path, idx-1), oldLeftRef, left.Ref); err != nil {
		return err
	}
	parent.Children[idx-1] = left.Ref
	parent.removeChildAt(idx - 1)
	return nil
}

// drainInto appends every entry of src onto the end of dst, in order.
func (t *Tree[K, V]) drainInto(src, dst *Node[K, V]) error {
	dc := dst.CursorBeforeFirst()
	dc.SetToEnd()
	sc := src.CursorBeforeFirst()
	for !sc.IsAfterLast() {
		k, v, err := sc.RemoveAfter()
		if err != nil {
			return err
		}
		dc.Insert(k, v)
		if err := dc.MoveNext(); err != nil {
			return err
		}
	}
	return nil
}

// rebalanceInternal restores the occupancy of an underfull internal
// node by redistributing a single child from an adjacent sibling or by
// merging with one, rotating separator keys through the parent. The
// parent's keys and child refs are updated in memory; the caller
// persists the parent.
func (t *Tree[K, V]) rebalanceInternal(node *Node[K, V], path []pathEntry[K, V]) error {
	parent := path[len(path)-1].node
	idx := path[len(path)-1].childIdx

	// Move the right sibling's first child over.
	if idx+1 < parent.ChildCount() {
		right, err := t.store.Load(parent.Children[idx+1])
		if err != nil {
			return err
		}
		if right.ChildCount() > t.minChildren() {
			node.Keys = append(node.Keys, parent.Keys[idx])
			node.Children = append(node.Children, right.Children[0])
			parent.Keys[idx] = right.Keys[0]
			right.Keys = right.Keys[1:]
			right.Children = right.Children[1:]

			if err := t.store.Persist(node); err != nil {
				return err
			}
			if err := t.store.Persist(right); err != nil {
				return err
			}
			parent.Children[idx] = node.Ref
			parent.Children[idx+1] = right.Ref
			return nil
		}
	}

	// Move the left sibling's last child over.
	if idx > 0 {
		left, err := t.store.Load(parent.Children[idx-1])
		if err != nil {
			return err
		}
		if left.ChildCount() > t.minChildren() {
			last := left.ChildCount() - 1
			node.Keys = append([]K{parent.Keys[idx-1]}, node.Keys...)
			node.Children = append([]Ref{left.Children[last]}, node.Children...)
			parent.Keys[idx-1] = left.Keys[last-1]
			left.Keys = left.Keys[:last-1]
			left.Children = left.Children[:last]

			if err := t.store.Persist(node); err != nil {
				return err
			}
			if err := t.store.Persist(left); err != nil {
				return err
			}
			parent.Children[idx-1] = left.Ref
			parent.Children[idx] = node.Ref
			return nil
		}
	}

	// Merge the right sibling into node.
	if idx+1 < parent.ChildCount() {
		right, err := t.store.Load(parent.Children[idx+1])
		if err != nil {
			return err
		}
		node.Keys = append(node.Keys, parent.Keys[idx])
		node.Keys = append(node.Keys, right.Keys...)
		node.Children = append(node.Children, right.Children...)
		t.store.Release(right.Ref)

		if err := t.store.Persist(node); err != nil {
			return err
		}
		parent.Children[idx] = node.Ref
		parent.removeChildAt(idx)
		return nil
	}

	// Rightmost child: merge node into the left sibling.
	left, err := t.store.Load(parent.Children[idx-1])
	if err != nil {
		return err
	}
	left.Keys = append(left.Keys, parent.Keys[idx-1])
	left.Keys = append(left.Keys, node.Keys...)
	left.Children = append(left.Children, node.Children...)
	t.store.Release(node.Ref)

	if err := t.store.Persist(left); err != nil {
		return err
	}
	parent.Children[idx-1] = left.Ref
	parent.removeChildAt(idx - 1)
	return nil
}
