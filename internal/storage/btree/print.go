package btree

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a one-line-per-level rendering of the tree to w, for
// debugging. Internal nodes print their separator keys, leaves print
// their entries.
func (t *Tree[K, V]) Dump(w io.Writer) error {
	root, err := t.loadRoot()
	if err != nil {
		return err
	}
	level := []*Node[K, V]{root}
	for len(level) > 0 {
		var next []*Node[K, V]
		var parts []string
		for _, n := range level {
			parts = append(parts, t.renderNode(n))
			if n.Kind == KindInternal {
				for _, ref := range n.Children {
					child, err := t.store.Load(ref)
					if err != nil {
						return err
					}
					next = append(next, child)
				}
			}
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return err
		}
		level = next
	}
	return nil
}

func (t *Tree[K, V]) renderNode(n *Node[K, V]) string {
	var b strings.Builder
	if n.Kind == KindInternal {
		b.WriteByte('<')
		for i, k := range n.Keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%v", k)
		}
		b.WriteByte('>')
		return b.String()
	}
	b.WriteByte('[')
	for i, k := range n.Keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%v", k, n.Vals[i])
	}
	b.WriteByte(']')
	return b.String()
}

// String renders the whole tree as produced by Dump.
func (t *Tree[K, V]) String() string {
	var b strings.Builder
	if err := t.Dump(&b); err != nil {
		return "btree: " + err.Error()
	}
	return b.String()
}
