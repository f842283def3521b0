// Package btree implements an order-m B+ tree over pluggable node
// storage. Keys and values are generic; ordering comes from a
// Comparator, with Ordered covering the common case.
//
// All entries live in leaves. An internal node with keys k0..kn-1 and
// children c0..cn routes a lookup for key k to child i where i is the
// count of keys not greater than k, so keys equal to a separator sit in
// the subtree to its right. Leaves carry a link to their right sibling,
// which gives ordered iteration without re-descending from the root.
//
// A leaf holds at most order entries and an internal node at most
// order+1 children. Inserting into a full leaf splits it at the
// midpoint and pushes the right half's first key into the parent;
// deleting below the minimum borrows from a sibling or merges with
// one. Every mutating operation persists the nodes it touched and then
// commits the backing storage, so each Insert or Delete is atomic with
// respect to crashes when the storage provides that guarantee.
package btree
