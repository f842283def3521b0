package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAL constants.
const (
	// walRecordHeaderSize is the size of the offset and length fields
	// that prefix every record.
	walRecordHeaderSize = 8

	// maxWALRecordLength bounds a single record's data so a corrupted
	// length field cannot trigger a huge allocation during the scan.
	maxWALRecordLength = 1 << 30
)

// commitMarker terminates the records belonging to one transaction.
// Records not followed by a complete marker are uncommitted and must be
// discarded on recovery.
var commitMarker = []byte("COMMIT\n")

// WAL errors.
var (
	ErrWALRecordTooLarge = errors.New("WAL record exceeds maximum length")
)

// walWrite is one decoded redo record: data destined for a byte offset
// in the device file.
type walWrite struct {
	offset uint32
	data   []byte
}

// WALManager is the append-only redo log of byte-range writes. Records
// are applied to the device only during Checkpoint, and only when the
// forward scan proves they were followed by a complete commit marker.
type WALManager struct {
	wal    File
	device File

	// end caches the append position; -1 until first use.
	end int64
}

// NewWALManager creates a WAL manager over the given log file and
// target device. Both files are owned and opened by the caller.
func NewWALManager(wal, device File) *WALManager {
	return &WALManager{wal: wal, device: device, end: -1}
}

func (w *WALManager) ensureEnd() error {
	if w.end >= 0 {
		return nil
	}
	size, err := w.wal.Size()
	if err != nil {
		return err
	}
	w.end = size
	return nil
}

// LogWrite appends an {offset, length, data} record at the current end
// of the log. The record is not durable until Sync.
func (w *WALManager) LogWrite(offset uint32, data []byte) error {
	if len(data) > maxWALRecordLength {
		return ErrWALRecordTooLarge
	}
	if err := w.ensureEnd(); err != nil {
		return err
	}

	header := make([]byte, walRecordHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], offset)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(data)))

	if err := w.wal.WriteV([][]byte{header, data}, w.end); err != nil {
		return err
	}
	w.end += walRecordHeaderSize + int64(len(data))
	return nil
}

// AddCommitMarker appends the commit marker, sealing all records logged
// since the previous marker into one atomically applicable group.
func (w *WALManager) AddCommitMarker() error {
	if err := w.ensureEnd(); err != nil {
		return err
	}
	if err := w.wal.WriteV([][]byte{commitMarker}, w.end); err != nil {
		return err
	}
	w.end += int64(len(commitMarker))
	return nil
}

// Checkpoint scans the whole log and applies every committed group to
// the device in log order, so the last writer for an offset wins.
// Records after the final complete marker are ignored, never applied.
func (w *WALManager) Checkpoint() error {
	writes, _, err := w.scan()
	if err != nil {
		return err
	}
	return w.apply(writes)
}

// Recover handles the log found at startup: an empty log is a no-op, a
// log with no marker at all is dirty and gets truncated, and anything
// else is checkpointed. Corruption is handled conservatively by
// dropping the suffix that failed to validate.
func (w *WALManager) Recover() error {
	if err := w.ensureEnd(); err != nil {
		return err
	}
	if w.end == 0 {
		return nil
	}

	writes, sawMarker, err := w.scan()
	if err != nil {
		return err
	}
	if !sawMarker {
		return w.Clear()
	}
	return w.apply(writes)
}

// Clear truncates the log to zero length.
func (w *WALManager) Clear() error {
	if err := w.wal.Truncate(0); err != nil {
		return err
	}
	w.end = 0
	return nil
}

// Sync forces log durability.
func (w *WALManager) Sync() error {
	return w.wal.Sync()
}

func (w *WALManager) apply(writes []walWrite) error {
	for _, wr := range writes {
		if err := w.device.WriteV([][]byte{wr.data}, int64(wr.offset)); err != nil {
			return fmt.Errorf("apply WAL record at offset %d: %w", wr.offset, err)
		}
	}
	return nil
}

// scan reads the entire log and returns the writes of every committed
// group in log order, plus whether any complete marker was seen. A
// record whose declared length runs past the available bytes, or a
// trailing group with no marker, is dropped.
func (w *WALManager) scan() ([]walWrite, bool, error) {
	size, err := w.wal.Size()
	if err != nil {
		return nil, false, err
	}
	if size == 0 {
		return nil, false, nil
	}

	buf := make([]byte, size)
	if err := w.wal.Read(buf, 0); err != nil {
		return nil, false, err
	}

	var committed, group []walWrite
	sawMarker := false
	pos := 0

	for pos < len(buf) {
		if bytes.HasPrefix(buf[pos:], commitMarker) {
			committed = append(committed, group...)
			group = nil
			sawMarker = true
			pos += len(commitMarker)
			continue
		}
		if len(buf)-pos < walRecordHeaderSize {
			break
		}
		offset := binary.LittleEndian.Uint32(buf[pos : pos+4])
		length := binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
		if length > maxWALRecordLength || int(length) > len(buf)-pos-walRecordHeaderSize {
			break
		}
		data := make([]byte, length)
		copy(data, buf[pos+walRecordHeaderSize:])
		group = append(group, walWrite{offset: offset, data: data})
		pos += walRecordHeaderSize + int(length)
	}

	return committed, sawMarker, nil
}
