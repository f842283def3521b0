package storage

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func newWALPair(t *testing.T) (*WALManager, *SimFile, *SimFile) {
	t.Helper()
	wal := newOpenSimFile(t, 32)
	device := newOpenSimFile(t, 32)
	return NewWALManager(wal, device), wal, device
}

func TestCheckpointAppliesCommittedGroup(t *testing.T) {
	w, _, device := newWALPair(t)

	if err := w.LogWrite(0, []byte("hello")); err != nil {
		t.Fatalf("LogWrite: %v", err)
	}
	if err := w.LogWrite(5, []byte(" world")); err != nil {
		t.Fatalf("LogWrite: %v", err)
	}
	if err := w.AddCommitMarker(); err != nil {
		t.Fatalf("AddCommitMarker: %v", err)
	}
	if err := w.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if got := readAt(t, device, 0, 11); !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("device = %q, want %q", got, "hello world")
	}
}

func TestCheckpointIgnoresUnsealedTail(t *testing.T) {
	w, _, device := newWALPair(t)

	if err := w.LogWrite(0, []byte("committed!")); err != nil {
		t.Fatalf("LogWrite: %v", err)
	}
	if err := w.AddCommitMarker(); err != nil {
		t.Fatalf("AddCommitMarker: %v", err)
	}
	if err := w.LogWrite(0, []byte("uncommitted")); err != nil {
		t.Fatalf("LogWrite: %v", err)
	}
	if err := w.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if got := readAt(t, device, 0, 10); !bytes.Equal(got, []byte("committed!")) {
		t.Fatalf("device = %q, want %q", got, "committed!")
	}
}

func TestCheckpointLastWriterWins(t *testing.T) {
	w, _, device := newWALPair(t)

	for _, v := range []string{"first___", "second__", "third___"} {
		if err := w.LogWrite(4, []byte(v)); err != nil {
			t.Fatalf("LogWrite: %v", err)
		}
		if err := w.AddCommitMarker(); err != nil {
			t.Fatalf("AddCommitMarker: %v", err)
		}
	}
	if err := w.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if got := readAt(t, device, 4, 8); !bytes.Equal(got, []byte("third___")) {
		t.Fatalf("device = %q, want %q", got, "third___")
	}
}

func TestRecoverEmptyLog(t *testing.T) {
	w, wal, device := newWALPair(t)

	if err := w.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if size, _ := wal.Size(); size != 0 {
		t.Fatalf("wal size = %d, want 0", size)
	}
	if size, _ := device.Size(); size != 0 {
		t.Fatalf("device size = %d, want 0", size)
	}
}

func TestRecoverClearsMarkerlessLog(t *testing.T) {
	w, wal, device := newWALPair(t)

	if err := w.LogWrite(0, []byte("torn")); err != nil {
		t.Fatalf("LogWrite: %v", err)
	}
	if err := w.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if size, _ := wal.Size(); size != 0 {
		t.Fatalf("wal size after recover = %d, want 0", size)
	}
	if size, _ := device.Size(); size != 0 {
		t.Fatalf("device was touched by a markerless log")
	}
}

func TestRecoverReplaysSealedGroups(t *testing.T) {
	w, _, device := newWALPair(t)

	if err := w.LogWrite(0, []byte("replayed")); err != nil {
		t.Fatalf("LogWrite: %v", err)
	}
	if err := w.AddCommitMarker(); err != nil {
		t.Fatalf("AddCommitMarker: %v", err)
	}

	if err := w.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got := readAt(t, device, 0, 8); !bytes.Equal(got, []byte("replayed")) {
		t.Fatalf("device = %q, want %q", got, "replayed")
	}
}

func TestScanStopsAtBogusLength(t *testing.T) {
	w, wal, device := newWALPair(t)

	if err := w.LogWrite(0, []byte("good")); err != nil {
		t.Fatalf("LogWrite: %v", err)
	}
	if err := w.AddCommitMarker(); err != nil {
		t.Fatalf("AddCommitMarker: %v", err)
	}

	// Append a record header whose length runs far past the file end.
	size, _ := wal.Size()
	bogus := make([]byte, walRecordHeaderSize)
	binary.LittleEndian.PutUint32(bogus[0:4], 0)
	binary.LittleEndian.PutUint32(bogus[4:8], 1<<28)
	writeAt(t, wal, size, bogus)
	w.end = -1

	if err := w.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got := readAt(t, device, 0, 4); !bytes.Equal(got, []byte("good")) {
		t.Fatalf("device = %q, want %q", got, "good")
	}
}

func TestClearResetsAppendPosition(t *testing.T) {
	w, wal, _ := newWALPair(t)

	if err := w.LogWrite(0, []byte("one")); err != nil {
		t.Fatalf("LogWrite: %v", err)
	}
	if err := w.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := w.LogWrite(0, []byte("two")); err != nil {
		t.Fatalf("LogWrite: %v", err)
	}
	if size, _ := wal.Size(); size != walRecordHeaderSize+3 {
		t.Fatalf("wal size = %d, want %d", size, walRecordHeaderSize+3)
	}
}
