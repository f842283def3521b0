package storage

import (
	"io"
	"os"
)

// OSFile adapts an operating system file to the File contract. The
// kernel page cache plays the role of the pending-write set: writes are
// visible immediately and durable after Sync.
type OSFile struct {
	path string
	file *os.File
}

// NewOSFile returns an OSFile for the given path. The file is not
// touched until Create or Open is called.
func NewOSFile(path string) *OSFile {
	return &OSFile{path: path}
}

// Create creates the file and opens it. It fails if the file exists.
func (f *OSFile) Create() error {
	if f.file != nil {
		return ErrFileOpen
	}
	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ErrFileExists
		}
		return err
	}
	f.file = file
	return nil
}

// Open opens an existing file.
func (f *OSFile) Open() error {
	if f.file != nil {
		return ErrFileOpen
	}
	file, err := os.OpenFile(f.path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotExist
		}
		return err
	}
	f.file = file
	return nil
}

// Close closes the file.
func (f *OSFile) Close() error {
	if f.file == nil {
		return ErrFileClosed
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Read fills p with the bytes at off.
func (f *OSFile) Read(p []byte, off int64) error {
	if f.file == nil {
		return ErrFileClosed
	}
	if off < 0 {
		return ErrNegativeOffset
	}
	n, err := f.file.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == io.EOF {
		return ErrOutOfBounds
	}
	return err
}

// WriteV writes the concatenation of bufs at off.
func (f *OSFile) WriteV(bufs [][]byte, off int64) error {
	if f.file == nil {
		return ErrFileClosed
	}
	if off < 0 {
		return ErrNegativeOffset
	}
	var total int
	for _, b := range bufs {
		total += len(b)
	}
	if total == 0 {
		return nil
	}
	data := make([]byte, 0, total)
	for _, b := range bufs {
		data = append(data, b...)
	}
	_, err := f.file.WriteAt(data, off)
	return err
}

// Truncate resizes the file.
func (f *OSFile) Truncate(size int64) error {
	if f.file == nil {
		return ErrFileClosed
	}
	if size < 0 {
		return ErrNegativeSize
	}
	return f.file.Truncate(size)
}

// Size returns the exact byte size of the file.
func (f *OSFile) Size() (int64, error) {
	if f.file == nil {
		return 0, ErrFileClosed
	}
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Sync flushes the file to stable storage.
func (f *OSFile) Sync() error {
	if f.file == nil {
		return ErrFileClosed
	}
	return f.file.Sync()
}
