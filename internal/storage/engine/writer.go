package engine

import "github.com/quilldb/quill/internal/storage"

// TxWriter exposes the raw transaction surface of an atomic file for
// collaborators that manage their own layout instead of going through
// the document API.
type TxWriter struct {
	file *storage.AtomicFile
}

// NewTxWriter wraps an atomic file.
func NewTxWriter(file *storage.AtomicFile) *TxWriter {
	return &TxWriter{file: file}
}

// BeginTransaction opens a transaction.
func (w *TxWriter) BeginTransaction() error {
	return w.file.Begin()
}

// WriteData journals one write at the given file offset. The data is
// not visible in the file until the transaction commits and
// checkpoints.
func (w *TxWriter) WriteData(offset uint32, data []byte) error {
	return w.file.JournalWrite(offset, data)
}

// CommitTransaction makes the journaled writes durable and applies
// them to the file.
func (w *TxWriter) CommitTransaction() error {
	if err := w.file.Commit(); err != nil {
		return err
	}
	return w.file.Checkpoint()
}

// RecoverFromWAL replays or discards whatever the log holds, leaving
// the file consistent. Call it before the first transaction after a
// restart.
func (w *TxWriter) RecoverFromWAL() error {
	return w.file.Recover()
}
