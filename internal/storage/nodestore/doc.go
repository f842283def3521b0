// Package nodestore provides btree.Storage implementations: Mem keeps
// nodes in a map for tests and ephemeral trees, Block serializes each
// node to a blob in a free-block file so a tree survives restarts and
// crashes. Codecs translate keys and values to their stored byte form.
package nodestore
