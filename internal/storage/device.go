// Package storage provides the core storage engine components for QuillDB.
package storage

import "errors"

// Device constants.
const (
	// DefaultSectorSize is the sector size used by the simulated device
	// when none is specified.
	DefaultSectorSize = 512
)

// Device errors.
var (
	ErrFileOpen       = errors.New("file is already open")
	ErrFileClosed     = errors.New("file is not open")
	ErrFileExists     = errors.New("file already exists")
	ErrFileNotExist   = errors.New("file does not exist")
	ErrNegativeOffset = errors.New("negative offset")
	ErrOutOfBounds    = errors.New("read past end of file")
	ErrPendingWrites  = errors.New("file has unsynced pending writes")
	ErrNegativeSize   = errors.New("negative size")
)

// File is the fixed-sector random-access storage contract that the WAL
// manager and the atomic file are built on. Implementations provide
// sector-granular durability: a write is visible immediately but only
// guaranteed durable after Sync returns.
//
// Create and Open are exclusive: Create fails on an existing file and
// Open fails on a missing one. Close fails while unsynced pending
// writes exist so callers cannot silently drop staged data.
type File interface {
	// Create creates the file and opens it for use.
	Create() error

	// Open opens an existing file.
	Open() error

	// Close closes the file. It fails if pending writes have not been
	// synced.
	Close() error

	// Read fills p with the bytes at the given offset. It fails when the
	// offset is negative or the range extends past the end of the file.
	Read(p []byte, off int64) error

	// WriteV writes the concatenation of bufs at the given offset,
	// extending the file if the write reaches past its current size.
	WriteV(bufs [][]byte, off int64) error

	// Truncate resizes the file. New bytes read as zero; pending writes
	// for removed sectors are dropped.
	Truncate(size int64) error

	// Size returns the exact byte size of the file.
	Size() (int64, error)

	// Sync commits all pending sector writes. It is idempotent.
	Sync() error
}
