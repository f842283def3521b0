package btree

// Search descends from the root following the key/child mapping and
// returns the value stored under key, reporting whether it was present.
func (t *Tree[K, V]) Search(key K) (V, bool, error) {
	var zero V

	leaf, _, err := t.descendToLeaf(key)
	if err != nil {
		return zero, false, err
	}
	c, found := leaf.CursorBeforeKey(t.cmp, key)
	if !found {
		return zero, false, nil
	}
	_, value, err := c.PairAfter()
	if err != nil {
		return zero, false, err
	}
	return value, true, nil
}

// Contains reports whether key is present.
func (t *Tree[K, V]) Contains(key K) (bool, error) {
	_, ok, err := t.Search(key)
	return ok, err
}
