package engine

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quilldb/quill/internal/storage"
	"github.com/quilldb/quill/internal/storage/btree"
	"github.com/quilldb/quill/internal/storage/nodestore"
)

// Engine errors.
var (
	ErrEngineClosed = errors.New("engine is closed")
	ErrEmptyID      = errors.New("document id must not be empty")
	ErrIDTooLarge   = errors.New("document id exceeds the maximum key size")
	ErrNotFound     = errors.New("no document with that id")
)

// Options configures an Engine.
type Options struct {
	// Path is the data file; the write-ahead log is Path + ".wal".
	Path string
	// BlockSize is the allocation unit of the data file. Zero means
	// storage.DefaultBlockSize. It must match the value the file was
	// created with.
	BlockSize int
	// Order bounds the entries per index node. Zero means 64.
	Order int
	// CacheMaxBytes enables a read-through document cache bounded by
	// that many bytes. Zero disables the cache.
	CacheMaxBytes int64
	// Log receives operational events. Nil discards them.
	Log *zap.SugaredLogger
}

// Engine is the embeddable document store: a B+Tree keyed by document
// id over a free-block file, made crash-safe by the write-ahead log.
// Every mutation is one atomic transaction; recovery runs when the
// store opens, before anything else touches the file.
type Engine struct {
	mu     sync.Mutex
	closed bool

	atomic *storage.AtomicFile
	blocks *storage.FreeBlockFile
	tree   *btree.Tree[string, []byte]
	store  *nodestore.Block[string, []byte]
	cache  *ristretto.Cache[string, []byte]
	log    *zap.SugaredLogger
}

// Stats is a point-in-time snapshot of the store.
type Stats struct {
	Documents  int
	FreeBlocks int
	FileBytes  int64
}

// Open opens (or creates) the store at opts.Path and runs crash
// recovery before handing the engine out.
func Open(opts Options) (*Engine, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("engine: data file path is required")
	}
	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = storage.DefaultBlockSize
	}
	order := opts.Order
	if order == 0 {
		order = 64
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	data := storage.NewOSFile(opts.Path)
	wal := storage.NewOSFile(opts.Path + ".wal")
	atomic := storage.NewAtomicFile(data, wal)
	if err := atomic.Recover(); err != nil {
		return nil, fmt.Errorf("recover %s: %w", opts.Path, err)
	}

	blocks, err := storage.NewFreeBlockFile(atomic, blockSize)
	if err != nil {
		return nil, err
	}
	if err := blocks.Open(); err != nil {
		return nil, fmt.Errorf("open block file %s: %w", opts.Path, err)
	}

	store := nodestore.NewBlock[string, []byte](blocks, nodestore.StringCodec{}, nodestore.BytesCodec{})
	tree, err := btree.New[string, []byte](store, btree.Ordered[string], order)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		atomic: atomic,
		blocks: blocks,
		tree:   tree,
		store:  store,
		log:    log,
	}
	if opts.CacheMaxBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
			NumCounters: 1e6,
			MaxCost:     opts.CacheMaxBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}
	log.Infow("store opened",
		"path", opts.Path, "blockSize", blockSize, "order", order,
		"cache", e.cache != nil)
	return e, nil
}

func (e *Engine) checkID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(id) > e.store.MaxKeySize() {
		return ErrIDTooLarge
	}
	return nil
}

// Put stores doc under id, replacing any previous document with that
// id.
func (e *Engine) Put(id string, doc []byte) error {
	if err := e.checkID(id); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if err := e.tree.Insert(id, append([]byte(nil), doc...)); err != nil {
		return err
	}
	if e.cache != nil {
		e.cache.Del(id)
	}
	e.log.Debugw("put", "id", id, "bytes", len(doc))
	return nil
}

// PutNew stores doc under a fresh random id and returns the id.
func (e *Engine) PutNew(doc []byte) (string, error) {
	id := uuid.NewString()
	if err := e.Put(id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the document stored under id, or ErrNotFound.
func (e *Engine) Get(id string) ([]byte, error) {
	if err := e.checkID(id); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if e.cache != nil {
		if doc, ok := e.cache.Get(id); ok {
			return doc, nil
		}
	}
	doc, ok, err := e.tree.Search(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if e.cache != nil {
		e.cache.Set(id, doc, int64(len(doc)))
	}
	return doc, nil
}

// Delete removes the document stored under id, reporting whether one
// was there.
func (e *Engine) Delete(id string) (bool, error) {
	if err := e.checkID(id); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrEngineClosed
	}
	found, err := e.tree.Delete(id)
	if err != nil {
		return false, err
	}
	if e.cache != nil {
		e.cache.Del(id)
	}
	e.log.Debugw("delete", "id", id, "found", found)
	return found, nil
}

// Scan calls fn for every document whose id is in [start, end), in id
// order. An empty end means no upper bound. fn's doc slice is only
// valid during the call.
func (e *Engine) Scan(start, end string, fn func(id string, doc []byte) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	var it *btree.Iterator[string, []byte]
	var err error
	if end == "" {
		it, err = e.tree.EntriesFrom(start)
	} else {
		it, err = e.tree.Range(start, end, nil)
	}
	if err != nil {
		return err
	}
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Count returns the number of stored documents.
func (e *Engine) Count() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrEngineClosed
	}
	return e.tree.Len()
}

// Stats reports store-level counters.
func (e *Engine) Stats() (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Stats{}, ErrEngineClosed
	}
	n, err := e.tree.Len()
	if err != nil {
		return Stats{}, err
	}
	free, err := e.blocks.FreeBlockCount()
	if err != nil {
		return Stats{}, err
	}
	size, err := e.atomic.Size()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Documents: n, FreeBlocks: free, FileBytes: size}, nil
}

// DumpIndex writes a per-level rendering of the primary index to w.
func (e *Engine) DumpIndex(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	return e.tree.Dump(w)
}

// Close syncs and closes the underlying files. The engine rejects
// every operation afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err := e.atomic.SafeShutdown(); err != nil {
		return err
	}
	if e.cache != nil {
		e.cache.Close()
	}
	e.closed = true
	e.log.Infow("store closed")
	return nil
}
