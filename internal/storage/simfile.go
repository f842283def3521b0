package storage

import (
	"math/rand"
	"sort"
	"sync"
)

// SimFile is an in-memory File used for testing the recovery stack. It
// models power-loss semantics where individual sector writes are atomic
// but ordering and durability across sectors are not guaranteed until
// Sync: every write stages a new full-sector image, reads observe the
// most recent staged image, and the crash methods decide which staged
// images survive.
//
// All randomness comes from the *rand.Rand handed to NewSimFile, so any
// crash scenario is exactly reproducible from its seed.
type SimFile struct {
	sectorSize int
	rng        *rand.Rand

	created bool
	open    bool
	size    int64

	// committed holds the durable image of each sector.
	committed map[int][]byte

	// pending holds the staged images of each sector in write order.
	// The last image is the one visible to reads.
	pending map[int][][]byte

	mu sync.Mutex
}

// NewSimFile creates a simulated file with the given sector size. A nil
// rng falls back to a fixed seed so accidental nondeterminism cannot
// leak into tests.
func NewSimFile(sectorSize int, rng *rand.Rand) *SimFile {
	if sectorSize <= 0 {
		sectorSize = DefaultSectorSize
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &SimFile{
		sectorSize: sectorSize,
		rng:        rng,
		committed:  make(map[int][]byte),
		pending:    make(map[int][][]byte),
	}
}

// Create creates the file and opens it.
func (f *SimFile) Create() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.open {
		return ErrFileOpen
	}
	if f.created {
		return ErrFileExists
	}
	f.created = true
	f.open = true
	return nil
}

// Open opens a previously created file.
func (f *SimFile) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.open {
		return ErrFileOpen
	}
	if !f.created {
		return ErrFileNotExist
	}
	f.open = true
	return nil
}

// Close closes the file. It fails while unsynced pending writes exist.
func (f *SimFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return ErrFileClosed
	}
	if len(f.pending) > 0 {
		return ErrPendingWrites
	}
	f.open = false
	return nil
}

// visible returns the current image of a sector: the newest pending
// write if one exists, the committed image otherwise, zeroes if neither.
func (f *SimFile) visible(sector int) []byte {
	if imgs, ok := f.pending[sector]; ok && len(imgs) > 0 {
		return imgs[len(imgs)-1]
	}
	if img, ok := f.committed[sector]; ok {
		return img
	}
	return make([]byte, f.sectorSize)
}

// Read fills p with the bytes at off.
func (f *SimFile) Read(p []byte, off int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return ErrFileClosed
	}
	if off < 0 {
		return ErrNegativeOffset
	}
	if off+int64(len(p)) > f.size {
		return ErrOutOfBounds
	}

	for n := 0; n < len(p); {
		pos := off + int64(n)
		sector := int(pos / int64(f.sectorSize))
		within := int(pos % int64(f.sectorSize))
		n += copy(p[n:], f.visible(sector)[within:])
	}
	return nil
}

// WriteV writes the concatenation of bufs at off, extending the file if
// necessary. Writes that do not fill a whole sector are merged against
// the latest visible image of that sector before staging.
func (f *SimFile) WriteV(bufs [][]byte, off int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
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

	if end := off + int64(total); end > f.size {
		if err := f.truncateLocked(end); err != nil {
			return err
		}
	}

	for n := 0; n < total; {
		pos := off + int64(n)
		sector := int(pos / int64(f.sectorSize))
		within := int(pos % int64(f.sectorSize))

		img := make([]byte, f.sectorSize)
		copy(img, f.visible(sector))
		n += copy(img[within:], data[n:])
		f.pending[sector] = append(f.pending[sector], img)
	}
	return nil
}

// Truncate resizes the file, zero-filling grown regions and dropping
// pending writes for removed sectors.
func (f *SimFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return ErrFileClosed
	}
	return f.truncateLocked(size)
}

func (f *SimFile) truncateLocked(size int64) error {
	if size < 0 {
		return ErrNegativeSize
	}
	if size < f.size {
		last := int(size / int64(f.sectorSize))
		within := int(size % int64(f.sectorSize))
		if within == 0 {
			last--
		}
		for sector := range f.pending {
			if sector > last {
				delete(f.pending, sector)
			}
		}
		for sector := range f.committed {
			if sector > last {
				delete(f.committed, sector)
			}
		}
		// Zero the tail of the boundary sector so a later extension
		// reads zeroes, not stale bytes.
		if within > 0 {
			img := make([]byte, f.sectorSize)
			copy(img, f.visible(last)[:within])
			f.pending[last] = append(f.pending[last], img)
		}
	}
	f.size = size
	return nil
}

// Size returns the exact byte size of the file.
func (f *SimFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, ErrFileClosed
	}
	return f.size, nil
}

// Sync commits all pending sector writes.
func (f *SimFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return ErrFileClosed
	}
	for sector, imgs := range f.pending {
		f.committed[sector] = imgs[len(imgs)-1]
	}
	f.pending = make(map[int][][]byte)
	return nil
}

// pendingSectors returns the sectors with staged writes in ascending
// order, so crash injection consumes the RNG deterministically.
func (f *SimFile) pendingSectors() []int {
	sectors := make([]int, 0, len(f.pending))
	for s := range f.pending {
		sectors = append(sectors, s)
	}
	sort.Ints(sectors)
	return sectors
}

// CrashFullLoss simulates total device loss: committed and pending
// state are dropped and the file is closed.
func (f *SimFile) CrashFullLoss() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.committed = make(map[int][]byte)
	f.pending = make(map[int][][]byte)
	f.size = 0
	f.open = false
}

// CrashDropPending simulates a crash where nothing staged since the
// last sync survives. It is fully deterministic.
func (f *SimFile) CrashDropPending() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending = make(map[int][][]byte)
	f.open = false
}

// CrashBasic simulates a crash where, for each sector with staged
// writes, a uniformly random prefix of them (possibly none) persists.
func (f *SimFile) CrashBasic() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sector := range f.pendingSectors() {
		imgs := f.pending[sector]
		keep := f.rng.Intn(len(imgs) + 1)
		if keep > 0 {
			f.committed[sector] = imgs[keep-1]
		}
	}
	f.pending = make(map[int][][]byte)
	f.open = false
}

// CrashPartialCorruption simulates a crash that flips one random bit of
// the most recent staged write of every dirty sector, or of one random
// committed sector when nothing is staged.
func (f *SimFile) CrashPartialCorruption() {
	f.mu.Lock()
	defer f.mu.Unlock()

	dirty := f.pendingSectors()
	if len(dirty) > 0 {
		for _, sector := range dirty {
			imgs := f.pending[sector]
			img := append([]byte(nil), imgs[len(imgs)-1]...)
			f.flipRandomBit(img)
			f.committed[sector] = img
		}
	} else if len(f.committed) > 0 {
		sectors := make([]int, 0, len(f.committed))
		for s := range f.committed {
			sectors = append(sectors, s)
		}
		sort.Ints(sectors)
		sector := sectors[f.rng.Intn(len(sectors))]
		img := append([]byte(nil), f.committed[sector]...)
		f.flipRandomBit(img)
		f.committed[sector] = img
	}
	f.pending = make(map[int][][]byte)
	f.open = false
}

// CrashMixed simulates a crash where each dirty sector independently
// suffers either total loss of its staged writes or a random-prefix
// keep with an even chance of one-bit corruption.
func (f *SimFile) CrashMixed() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sector := range f.pendingSectors() {
		imgs := f.pending[sector]
		if f.rng.Intn(2) == 0 {
			continue
		}
		keep := f.rng.Intn(len(imgs) + 1)
		if keep == 0 {
			continue
		}
		img := append([]byte(nil), imgs[keep-1]...)
		if f.rng.Intn(2) == 0 {
			f.flipRandomBit(img)
		}
		f.committed[sector] = img
	}
	f.pending = make(map[int][][]byte)
	f.open = false
}

func (f *SimFile) flipRandomBit(img []byte) {
	if len(img) == 0 {
		return
	}
	bit := f.rng.Intn(len(img) * 8)
	img[bit/8] ^= 1 << (bit % 8)
}
