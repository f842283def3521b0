package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Free block file constants.
const (
	// NoBlock is the sentinel block id terminating free-list and blob
	// chains.
	NoBlock uint32 = 0xFFFFFFFF

	// DefaultBlockSize is the block size used when none is configured.
	DefaultBlockSize = 4096

	// MinBlockSize is the smallest usable block size: the next pointer,
	// the blob length prefix, and at least one payload byte must fit.
	MinBlockSize = 16

	// blockPtrSize is the size of the next-pointer field of a block.
	blockPtrSize = 4

	// blobLenSize is the size of the total-length prefix of a blob.
	blobLenSize = 8

	// headerFixedSize is the size of the free-list head and client
	// header length fields in block 0.
	headerFixedSize = 8
)

// Free block file errors.
var (
	ErrBlockFileClosed   = errors.New("free block file is not open")
	ErrInvalidBlockCount = errors.New("block count must be positive")
	ErrInvalidBlockSize  = errors.New("invalid block size")
	ErrBlockOutOfRange   = errors.New("block id out of range")
	ErrWrongBlockLength  = errors.New("raw block must be exactly one block long")
	ErrHeaderTooLarge    = errors.New("client header exceeds block capacity")
	ErrCorruptChain      = errors.New("block chain is corrupt")
	ErrChainLength       = errors.New("replacement blob needs a different chain length")
)

// FreeBlockFile is a fixed-size block allocator layered on an atomic
// writer. Block 0 carries the free-list head and opaque client
// metadata; unused blocks form a singly linked free list threaded
// through their own next-pointer fields; variable-length blobs are
// stored as block chains with a leading total-length prefix.
//
// Mutations are staged in memory and made durable by Commit as a single
// atomic write, so a crash can never expose a half-updated free list.
type FreeBlockFile struct {
	backend   AtomicWriter
	blockSize int

	opened       bool
	freeHead     uint32
	clientHeader []byte

	// staged maps block id to its full pending image.
	staged map[uint32][]byte

	// blockCount includes staged extension blocks; deviceBlocks is what
	// the backing file actually holds.
	blockCount   uint32
	deviceBlocks uint32

	mu sync.Mutex
}

// NewFreeBlockFile creates an allocator over the given backend with the
// given block size.
func NewFreeBlockFile(backend AtomicWriter, blockSize int) (*FreeBlockFile, error) {
	if blockSize < MinBlockSize {
		return nil, ErrInvalidBlockSize
	}
	return &FreeBlockFile{
		backend:   backend,
		blockSize: blockSize,
		freeHead:  NoBlock,
		staged:    make(map[uint32][]byte),
	}, nil
}

// Open reads the header block if the file already holds one, otherwise
// starts with an empty header and free list.
func (f *FreeBlockFile) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.opened {
		return nil
	}
	size, err := f.backend.Size()
	if err != nil {
		return err
	}
	f.blockCount = uint32(size / int64(f.blockSize))
	f.deviceBlocks = f.blockCount
	f.freeHead = NoBlock
	f.clientHeader = nil

	if f.blockCount > 0 {
		block := make([]byte, f.blockSize)
		if err := f.backend.Read(block, 0); err != nil {
			return fmt.Errorf("read header block: %w", err)
		}
		if err := f.parseHeader(block); err != nil {
			return err
		}
	}
	f.opened = true
	return nil
}

func (f *FreeBlockFile) parseHeader(block []byte) error {
	head := binary.LittleEndian.Uint32(block[0:4])
	length := binary.LittleEndian.Uint32(block[4:8])
	if int(length) > f.blockSize-headerFixedSize {
		return fmt.Errorf("%w: client header length %d", ErrHeaderTooLarge, length)
	}
	f.freeHead = head
	f.clientHeader = append([]byte(nil), block[headerFixedSize:headerFixedSize+int(length)]...)
	return nil
}

// PayloadSize returns the usable payload bytes per block.
func (f *FreeBlockFile) PayloadSize() int {
	return f.blockSize - blockPtrSize
}

// BlockSize returns the configured block size.
func (f *FreeBlockFile) BlockSize() int {
	return f.blockSize
}

// HeaderCapacity returns the maximum client header length.
func (f *FreeBlockFile) HeaderCapacity() int {
	return f.blockSize - headerFixedSize
}

// BlockCount returns the number of blocks, counting staged extensions.
func (f *FreeBlockFile) BlockCount() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockCount
}

// readRaw returns the current image of a block: staged if present, the
// device content otherwise, zeroes for staged-extension territory.
func (f *FreeBlockFile) readRaw(id uint32) ([]byte, error) {
	if img, ok := f.staged[id]; ok {
		return append([]byte(nil), img...), nil
	}
	block := make([]byte, f.blockSize)
	if id < f.deviceBlocks {
		if err := f.backend.Read(block, int64(id)*int64(f.blockSize)); err != nil {
			return nil, err
		}
	}
	return block, nil
}

func (f *FreeBlockFile) nextPointer(id uint32) (uint32, error) {
	block, err := f.readRaw(id)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(block[0:blockPtrSize]), nil
}

// AllocateBlocks pops up to count ids from the free list, extending the
// file with zero blocks once the list is exhausted.
func (f *FreeBlockFile) AllocateBlocks(count int) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocateLocked(count)
}

func (f *FreeBlockFile) allocateLocked(count int) ([]uint32, error) {
	if !f.opened {
		return nil, ErrBlockFileClosed
	}
	if count <= 0 {
		return nil, ErrInvalidBlockCount
	}
	// Block 0 is the header and never handed out.
	if f.blockCount == 0 {
		f.blockCount = 1
	}

	ids := make([]uint32, 0, count)
	for len(ids) < count {
		if f.freeHead != NoBlock {
			id := f.freeHead
			next, err := f.nextPointer(id)
			if err != nil {
				return nil, err
			}
			f.freeHead = next
			ids = append(ids, id)
			continue
		}
		id := f.blockCount
		f.blockCount++
		f.staged[id] = make([]byte, f.blockSize)
		ids = append(ids, id)
	}
	return ids, nil
}

// FreeBlob walks the blob chain starting at blockID and pushes every
// block onto the head of the free list. The change is staged in memory
// and becomes durable at the next Commit. NoBlock is accepted as a
// no-op.
func (f *FreeBlockFile) FreeBlob(blockID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return ErrBlockFileClosed
	}
	if blockID == NoBlock {
		return nil
	}
	if blockID >= f.blockCount {
		return ErrBlockOutOfRange
	}

	id := blockID
	var visited uint32
	for id != NoBlock {
		if visited++; visited > f.blockCount {
			return ErrCorruptChain
		}
		block, err := f.readRaw(id)
		if err != nil {
			return err
		}
		next := binary.LittleEndian.Uint32(block[0:blockPtrSize])
		binary.LittleEndian.PutUint32(block[0:blockPtrSize], f.freeHead)
		f.staged[id] = block
		f.freeHead = id
		id = next
	}
	return nil
}

// AllocateAndWrite stores payload as a chain of blocks with an 8-byte
// length prefix and returns the first block id.
func (f *FreeBlockFile) AllocateAndWrite(payload []byte) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return 0, ErrBlockFileClosed
	}
	total := blobLenSize + len(payload)
	count := (total + f.PayloadSize() - 1) / f.PayloadSize()
	ids, err := f.allocateLocked(count)
	if err != nil {
		return 0, err
	}
	f.stageChain(ids, payload)
	return ids[0], nil
}

// RewriteBlob replaces the payload of an existing blob in place,
// reusing its chain. The new payload must need exactly the same number
// of blocks as the old one.
func (f *FreeBlockFile) RewriteBlob(blockID uint32, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return ErrBlockFileClosed
	}
	if blockID == NoBlock || blockID >= f.blockCount {
		return ErrBlockOutOfRange
	}

	ids := make([]uint32, 0, 4)
	id := blockID
	for id != NoBlock {
		if uint32(len(ids)) >= f.blockCount {
			return ErrCorruptChain
		}
		ids = append(ids, id)
		next, err := f.nextPointer(id)
		if err != nil {
			return err
		}
		id = next
	}

	total := blobLenSize + len(payload)
	count := (total + f.PayloadSize() - 1) / f.PayloadSize()
	if count != len(ids) {
		return ErrChainLength
	}
	f.stageChain(ids, payload)
	return nil
}

// stageChain writes the length prefix plus payload across the chain,
// linking next pointers in order.
func (f *FreeBlockFile) stageChain(ids []uint32, payload []byte) {
	content := make([]byte, blobLenSize+len(payload))
	binary.LittleEndian.PutUint64(content[0:blobLenSize], uint64(len(payload)))
	copy(content[blobLenSize:], payload)

	ps := f.PayloadSize()
	for i, id := range ids {
		block := make([]byte, f.blockSize)
		next := NoBlock
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		binary.LittleEndian.PutUint32(block[0:blockPtrSize], next)
		start := i * ps
		end := start + ps
		if end > len(content) {
			end = len(content)
		}
		copy(block[blockPtrSize:], content[start:end])
		f.staged[id] = block
	}
}

// ReadBlob returns the payload stored at blockID. NoBlock and
// out-of-range ids read as empty. Trailing garbage in the final block
// is ignored; a chain that ends before the declared length is corrupt.
func (f *FreeBlockFile) ReadBlob(blockID uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return nil, ErrBlockFileClosed
	}
	if blockID == NoBlock || blockID >= f.blockCount {
		return []byte{}, nil
	}

	first, err := f.readRaw(blockID)
	if err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint64(first[blockPtrSize : blockPtrSize+blobLenSize])
	ps := uint64(f.PayloadSize())
	if length > uint64(f.blockCount)*ps {
		return nil, fmt.Errorf("%w: blob length %d", ErrCorruptChain, length)
	}

	out := make([]byte, 0, length)
	avail := first[blockPtrSize+blobLenSize:]
	if uint64(len(avail)) > length {
		avail = avail[:length]
	}
	out = append(out, avail...)

	id := binary.LittleEndian.Uint32(first[0:blockPtrSize])
	var visited uint32
	for uint64(len(out)) < length {
		if id == NoBlock {
			return nil, fmt.Errorf("%w: chain ends at %d of %d bytes", ErrCorruptChain, len(out), length)
		}
		if visited++; visited > f.blockCount {
			return nil, ErrCorruptChain
		}
		block, err := f.readRaw(id)
		if err != nil {
			return nil, err
		}
		chunk := block[blockPtrSize:]
		if remaining := length - uint64(len(out)); uint64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		out = append(out, chunk...)
		id = binary.LittleEndian.Uint32(block[0:blockPtrSize])
	}
	return out, nil
}

// ReadHeader returns a copy of the client metadata stored in block 0.
func (f *FreeBlockFile) ReadHeader() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.clientHeader...)
}

// WriteHeader stages new client metadata inside block 0.
func (f *FreeBlockFile) WriteHeader(header []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return ErrBlockFileClosed
	}
	if len(header) > f.blockSize-headerFixedSize {
		return ErrHeaderTooLarge
	}
	f.clientHeader = append([]byte(nil), header...)
	f.staged[0] = f.buildHeaderBlock()
	return nil
}

// StageRawBlock stages a fully formed block image at the given id. If
// the id is 0 the cached free-list head and client header are updated
// from the staged bytes.
func (f *FreeBlockFile) StageRawBlock(id uint32, block []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return ErrBlockFileClosed
	}
	if len(block) != f.blockSize {
		return ErrWrongBlockLength
	}
	img := append([]byte(nil), block...)
	if id == 0 {
		if err := f.parseHeader(img); err != nil {
			return err
		}
	}
	f.staged[id] = img
	if id != NoBlock && id >= f.blockCount {
		f.blockCount = id + 1
	}
	return nil
}

// Commit persists all staged blocks as one atomic write. The header
// block is always included so the free-list head on disk matches the
// staged state. With nothing staged, Commit is a no-op.
func (f *FreeBlockFile) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return ErrBlockFileClosed
	}
	if len(f.staged) == 0 {
		return nil
	}
	f.staged[0] = f.buildHeaderBlock()
	if f.blockCount == 0 {
		f.blockCount = 1
	}

	ids := make([]uint32, 0, len(f.staged))
	for id := range f.staged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	writes := make([]Write, 0, len(ids))
	for _, id := range ids {
		writes = append(writes, Write{
			Offset: id * uint32(f.blockSize),
			Data:   f.staged[id],
		})
	}
	if err := f.backend.AtomicWrite(writes); err != nil {
		return err
	}
	f.deviceBlocks = f.blockCount
	f.staged = make(map[uint32][]byte)
	return nil
}

// Sync forces backend durability.
func (f *FreeBlockFile) Sync() error {
	return f.backend.Sync()
}

// FreeBlockCount walks the free list and returns its length, mainly
// for diagnostics.
func (f *FreeBlockFile) FreeBlockCount() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return 0, ErrBlockFileClosed
	}
	count := 0
	id := f.freeHead
	for id != NoBlock {
		if count++; uint32(count) > f.blockCount {
			return 0, ErrCorruptChain
		}
		next, err := f.nextPointer(id)
		if err != nil {
			return 0, err
		}
		id = next
	}
	return count, nil
}

func (f *FreeBlockFile) buildHeaderBlock() []byte {
	block := make([]byte, f.blockSize)
	binary.LittleEndian.PutUint32(block[0:4], f.freeHead)
	binary.LittleEndian.PutUint32(block[4:8], uint32(len(f.clientHeader)))
	copy(block[headerFixedSize:], f.clientHeader)
	return block
}

