package engine

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldb/quill/internal/storage"
)

func openTestEngine(t *testing.T, path string) *Engine {
	t.Helper()
	e, err := Open(Options{Path: path, BlockSize: 64, Order: 3})
	require.NoError(t, err)
	return e
}

func TestPutGetDelete(t *testing.T) {
	e := openTestEngine(t, filepath.Join(t.TempDir(), "docs.db"))
	defer e.Close()

	require.NoError(t, e.Put("a", []byte("alpha")))
	doc, err := e.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), doc)

	require.NoError(t, e.Put("a", []byte("alpha2")))
	doc, err = e.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha2"), doc)

	found, err := e.Delete("a")
	require.NoError(t, err)
	assert.True(t, found)

	_, err = e.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err = e.Delete("a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIDValidation(t *testing.T) {
	e := openTestEngine(t, filepath.Join(t.TempDir(), "docs.db"))
	defer e.Close()

	assert.ErrorIs(t, e.Put("", []byte("x")), ErrEmptyID)
	_, err := e.Get("")
	assert.ErrorIs(t, err, ErrEmptyID)

	long := make([]byte, e.store.MaxKeySize()+1)
	for i := range long {
		long[i] = 'k'
	}
	assert.ErrorIs(t, e.Put(string(long), []byte("x")), ErrIDTooLarge)
}

func TestPutNewGeneratesDistinctIDs(t *testing.T) {
	e := openTestEngine(t, filepath.Join(t.TempDir(), "docs.db"))
	defer e.Close()

	a, err := e.PutNew([]byte("one"))
	require.NoError(t, err)
	b, err := e.PutNew([]byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	doc, err := e.Get(a)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), doc)
}

func TestScanAndCount(t *testing.T) {
	e := openTestEngine(t, filepath.Join(t.TempDir(), "docs.db"))
	defer e.Close()

	for _, id := range []string{"b", "d", "a", "c", "e"} {
		require.NoError(t, e.Put(id, []byte("doc-"+id)))
	}

	var ids []string
	require.NoError(t, e.Scan("b", "e", func(id string, _ []byte) error {
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []string{"b", "c", "d"}, ids)

	ids = nil
	require.NoError(t, e.Scan("", "", func(id string, _ []byte) error {
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)

	n, err := e.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestReopenSeesCommittedDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")

	e := openTestEngine(t, path)
	for i := 0; i < 50; i++ {
		require.NoError(t, e.Put(fmt.Sprintf("doc-%03d", i), []byte(fmt.Sprintf("payload %d", i))))
	}
	require.NoError(t, e.Close())

	e = openTestEngine(t, path)
	defer e.Close()
	n, err := e.Count()
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	doc, err := e.Get("doc-031")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload 31"), doc)
}

func TestStats(t *testing.T) {
	e := openTestEngine(t, filepath.Join(t.TempDir(), "docs.db"))
	defer e.Close()

	require.NoError(t, e.Put("a", []byte("alpha")))
	st, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Documents)
	assert.Greater(t, st.FileBytes, int64(0))
}

func TestClosedEngineRejectsOperations(t *testing.T) {
	e := openTestEngine(t, filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	assert.ErrorIs(t, e.Put("a", nil), ErrEngineClosed)
	_, err := e.Get("a")
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = e.Delete("a")
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = e.Count()
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestTxWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := storage.NewOSFile(filepath.Join(dir, "raw.db"))
	wal := storage.NewOSFile(filepath.Join(dir, "raw.db.wal"))
	af := storage.NewAtomicFile(data, wal)

	w := NewTxWriter(af)
	require.NoError(t, w.RecoverFromWAL())
	require.NoError(t, w.BeginTransaction())
	require.NoError(t, w.WriteData(0, []byte("hello")))
	require.NoError(t, w.WriteData(5, []byte(" world")))
	require.NoError(t, w.CommitTransaction())

	got := make([]byte, 11)
	require.NoError(t, af.Read(got, 0))
	assert.Equal(t, []byte("hello world"), got)
	require.NoError(t, af.SafeShutdown())
}
