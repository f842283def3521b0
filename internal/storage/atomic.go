package storage

import (
	"errors"
	"fmt"
)

// Transaction states for the atomic file.
type txState int

const (
	// txInactive means no transaction is in flight.
	txInactive txState = iota
	// txOpen means Begin has been called and writes may be journaled.
	txOpen
	// txLogged means the commit marker is durable in the WAL but the
	// group has not been checkpointed into the device yet.
	txLogged
)

// String returns the string representation of a transaction state.
func (s txState) String() string {
	switch s {
	case txInactive:
		return "inactive"
	case txOpen:
		return "open"
	case txLogged:
		return "logged"
	default:
		return "unknown"
	}
}

// Atomic file errors.
var (
	ErrNoTransaction   = errors.New("no transaction is open")
	ErrTransactionOpen = errors.New("a transaction is already open")
	ErrNotOpen         = errors.New("atomic file is not open")
)

// Write is one byte-range write staged inside a transaction.
type Write struct {
	Offset uint32
	Data   []byte
}

// AtomicWriter is the collaborator contract the free block file builds
// on: a way to read the device, learn its size, and persist a batch of
// writes as one atomic, durable transaction.
type AtomicWriter interface {
	AtomicWrite(writes []Write) error
	Read(p []byte, off int64) error
	Size() (int64, error)
	Sync() error
}

// AtomicFile turns a block device plus a WAL into an all-or-nothing
// transaction log. At most one transaction is open at a time; a second
// Begin fails immediately rather than queueing. Every public operation
// holds the file's FIFO lock for its full duration.
//
// Read is a plain pass-through to the device: it does not consult the
// open transaction's journaled writes. Callers that need
// read-your-writes semantics must track their pending writes
// themselves.
type AtomicFile struct {
	lk      *queueLock
	device  File
	walFile File
	wal     *WALManager

	opened  bool
	state   txState
	pending []Write
}

// NewAtomicFile creates an atomic file over the given device and WAL
// files. The files are opened lazily on first use, created if they do
// not exist yet.
func NewAtomicFile(device, walFile File) *AtomicFile {
	return &AtomicFile{
		lk:      newQueueLock(),
		device:  device,
		walFile: walFile,
		wal:     NewWALManager(walFile, device),
	}
}

func (a *AtomicFile) ensureOpen() error {
	if a.opened {
		return nil
	}
	if err := openOrCreate(a.device); err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	if err := openOrCreate(a.walFile); err != nil {
		return fmt.Errorf("open WAL: %w", err)
	}
	a.opened = true
	return nil
}

func openOrCreate(f File) error {
	err := f.Open()
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFileNotExist) {
		return f.Create()
	}
	return err
}

// Begin opens a transaction. The underlying files are opened on first
// use. Begin fails while another transaction is open; it is legal after
// Commit, so a second group can be logged before the first group's
// checkpoint.
func (a *AtomicFile) Begin() error {
	a.lk.Lock()
	defer a.lk.Unlock()

	if err := a.ensureOpen(); err != nil {
		return err
	}
	if a.state == txOpen {
		return ErrTransactionOpen
	}
	a.state = txOpen
	a.pending = nil
	return nil
}

// JournalWrite logs a byte-range write to the WAL and stages it in the
// in-memory pending list. The pending list is diagnostic; the WAL is
// the durable source of truth.
func (a *AtomicFile) JournalWrite(offset uint32, data []byte) error {
	a.lk.Lock()
	defer a.lk.Unlock()

	if a.state != txOpen {
		return ErrNoTransaction
	}
	if err := a.wal.LogWrite(offset, data); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.pending = append(a.pending, Write{Offset: offset, Data: buf})
	return nil
}

// Read fills p with device bytes at off. See the type comment for the
// read-your-writes caveat.
func (a *AtomicFile) Read(p []byte, off int64) error {
	a.lk.Lock()
	defer a.lk.Unlock()

	if err := a.ensureOpen(); err != nil {
		return err
	}
	return a.device.Read(p, off)
}

// Commit makes the open transaction's writes durable in the WAL. The
// WAL is synced before the marker is written and again after, so a
// crash between the two syncs leaves the log either fully pre-commit or
// fully committed, never ambiguous.
func (a *AtomicFile) Commit() error {
	a.lk.Lock()
	defer a.lk.Unlock()
	return a.commitLocked()
}

func (a *AtomicFile) commitLocked() error {
	if a.state != txOpen {
		return ErrNoTransaction
	}
	if err := a.wal.Sync(); err != nil {
		return err
	}
	if err := a.wal.AddCommitMarker(); err != nil {
		return err
	}
	if err := a.wal.Sync(); err != nil {
		return err
	}
	a.state = txLogged
	a.pending = nil
	return nil
}

// Checkpoint replays the committed WAL groups into the device, syncs
// the device, then clears and syncs the WAL. This is the only path that
// mutates the primary data file.
func (a *AtomicFile) Checkpoint() error {
	a.lk.Lock()
	defer a.lk.Unlock()
	return a.checkpointLocked()
}

func (a *AtomicFile) checkpointLocked() error {
	if !a.opened {
		return ErrNotOpen
	}
	if a.state == txOpen {
		return ErrTransactionOpen
	}
	if err := a.wal.Checkpoint(); err != nil {
		return err
	}
	if err := a.device.Sync(); err != nil {
		return err
	}
	if err := a.wal.Clear(); err != nil {
		return err
	}
	if err := a.wal.Sync(); err != nil {
		return err
	}
	a.state = txInactive
	return nil
}

// Recover runs startup crash handling: committed WAL groups are
// replayed, anything not provably committed is discarded, and the WAL
// ends up empty. It must be called before any other operation.
func (a *AtomicFile) Recover() error {
	a.lk.Lock()
	defer a.lk.Unlock()

	if a.state == txOpen {
		return ErrTransactionOpen
	}
	if err := a.ensureOpen(); err != nil {
		return err
	}
	if err := a.wal.Recover(); err != nil {
		return err
	}
	if err := a.device.Sync(); err != nil {
		return err
	}
	if err := a.wal.Clear(); err != nil {
		return err
	}
	if err := a.wal.Sync(); err != nil {
		return err
	}
	a.state = txInactive
	return nil
}

// Abort discards the open transaction: the pending list is dropped and
// the WAL is cleared.
func (a *AtomicFile) Abort() error {
	a.lk.Lock()
	defer a.lk.Unlock()

	if a.state != txOpen {
		return ErrNoTransaction
	}
	a.pending = nil
	if err := a.wal.Clear(); err != nil {
		return err
	}
	if err := a.wal.Sync(); err != nil {
		return err
	}
	a.state = txInactive
	return nil
}

// SafeShutdown syncs and closes both files and resets the open state.
func (a *AtomicFile) SafeShutdown() error {
	a.lk.Lock()
	defer a.lk.Unlock()

	if !a.opened {
		return nil
	}
	if a.state == txOpen {
		return ErrTransactionOpen
	}
	if err := a.device.Sync(); err != nil {
		return err
	}
	if err := a.walFile.Sync(); err != nil {
		return err
	}
	if err := a.device.Close(); err != nil {
		return err
	}
	if err := a.walFile.Close(); err != nil {
		return err
	}
	a.opened = false
	a.state = txInactive
	return nil
}

// Size returns the device file size.
func (a *AtomicFile) Size() (int64, error) {
	a.lk.Lock()
	defer a.lk.Unlock()

	if err := a.ensureOpen(); err != nil {
		return 0, err
	}
	return a.device.Size()
}

// Sync forces device durability.
func (a *AtomicFile) Sync() error {
	a.lk.Lock()
	defer a.lk.Unlock()

	if !a.opened {
		return ErrNotOpen
	}
	return a.device.Sync()
}

// AtomicWrite persists a batch of writes as one transaction: begin,
// journal every write, commit, checkpoint. The FIFO lock is held for
// the whole sequence so other callers cannot interleave.
func (a *AtomicFile) AtomicWrite(writes []Write) error {
	a.lk.Lock()
	defer a.lk.Unlock()

	if err := a.ensureOpen(); err != nil {
		return err
	}
	if a.state == txOpen {
		return ErrTransactionOpen
	}
	a.state = txOpen
	a.pending = nil
	for _, wr := range writes {
		if err := a.wal.LogWrite(wr.Offset, wr.Data); err != nil {
			a.state = txInactive
			return err
		}
	}
	if err := a.commitLocked(); err != nil {
		a.state = txInactive
		return err
	}
	return a.checkpointLocked()
}

// PendingWrites returns a snapshot of the open transaction's staged
// writes, for diagnostics and tests.
func (a *AtomicFile) PendingWrites() []Write {
	a.lk.Lock()
	defer a.lk.Unlock()

	out := make([]Write, len(a.pending))
	copy(out, a.pending)
	return out
}
