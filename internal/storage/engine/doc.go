// Package engine is the embeddable document store API. It wires the
// durable pieces together: an OS-backed data file and write-ahead log
// under an atomic transaction layer, a free-block allocator over that,
// and a B+Tree keyed by document id on top. Opening a store always
// runs crash recovery first, so a process killed mid-commit comes back
// with either all of a transaction or none of it.
package engine
