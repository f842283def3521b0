// Package storage provides the durable storage stack for QuillDB, a
// small embeddable document store.
//
// # Overview
//
// The stack is built bottom-up, each layer depending only on the one
// below it:
//
//   - File: a fixed-sector random-access block device contract, with an
//     OS-backed implementation and an in-memory simulator whose seeded
//     crash injection validates the recovery logic.
//   - WALManager: an append-only redo log of byte-range writes. A
//     record group counts as committed only when it is immediately
//     followed by the complete "COMMIT\n" marker; anything else is
//     discarded during recovery, never partially applied.
//   - AtomicFile: the transaction orchestrator. Begin, journal writes,
//     commit with a double-sync marker protocol, checkpoint the log
//     into the device, recover at startup. One FIFO exclusive lock
//     serializes every operation.
//   - FreeBlockFile: a fixed-size block allocator with an intrusive
//     free list and length-prefixed blob chains, staged in memory and
//     committed through a single atomic write.
//
// # Durability protocol
//
// A write is guaranteed durable only after it has been logged, a commit
// marker has been logged after it, and the WAL has been synced, in that
// order. Checkpoint is the only path that mutates the primary data
// file; it replays validated groups, syncs the device, then clears the
// log.
//
// # Transaction usage
//
//	af := storage.NewAtomicFile(device, walFile)
//	if err := af.Recover(); err != nil {
//	    return err
//	}
//	if err := af.Begin(); err != nil {
//	    return err
//	}
//	if err := af.JournalWrite(0, data); err != nil {
//	    return err
//	}
//	if err := af.Commit(); err != nil {
//	    return err
//	}
//	return af.Checkpoint()
//
// Higher layers (node storage, the B+Tree, the document engine) live in
// the btree, nodestore and engine subpackages.
package storage
