package storage

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

func newAtomicPair(t *testing.T) (*AtomicFile, *SimFile, *SimFile) {
	t.Helper()
	device := NewSimFile(32, rand.New(rand.NewSource(1)))
	wal := NewSimFile(32, rand.New(rand.NewSource(2)))
	return NewAtomicFile(device, wal), device, wal
}

func TestTransactionRoundTrip(t *testing.T) {
	a, _, _ := newAtomicPair(t)

	if err := a.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := a.JournalWrite(0, []byte("hello")); err != nil {
		t.Fatalf("JournalWrite: %v", err)
	}
	if err := a.JournalWrite(5, []byte(" world")); err != nil {
		t.Fatalf("JournalWrite: %v", err)
	}

	// Journaled writes are not readable before checkpoint.
	if err := a.Read(make([]byte, 5), 0); err != ErrOutOfBounds {
		t.Fatalf("Read before checkpoint err = %v, want ErrOutOfBounds", err)
	}

	if err := a.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := a.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	got := make([]byte, 11)
	if err := a.Read(got, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("Read = %q, want %q", got, "hello world")
	}
}

func TestTransactionStateErrors(t *testing.T) {
	a, _, _ := newAtomicPair(t)

	if err := a.JournalWrite(0, []byte("x")); err != ErrNoTransaction {
		t.Fatalf("JournalWrite outside tx err = %v, want ErrNoTransaction", err)
	}
	if err := a.Commit(); err != ErrNoTransaction {
		t.Fatalf("Commit outside tx err = %v, want ErrNoTransaction", err)
	}
	if err := a.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := a.Begin(); err != ErrTransactionOpen {
		t.Fatalf("nested Begin err = %v, want ErrTransactionOpen", err)
	}
	if err := a.SafeShutdown(); err != ErrTransactionOpen {
		t.Fatalf("SafeShutdown inside tx err = %v, want ErrTransactionOpen", err)
	}
}

func TestAbortDiscardsTransaction(t *testing.T) {
	a, _, _ := newAtomicPair(t)

	if err := a.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := a.JournalWrite(0, []byte("discard me")); err != nil {
		t.Fatalf("JournalWrite: %v", err)
	}
	if err := a.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	if err := a.Begin(); err != nil {
		t.Fatalf("Begin after abort: %v", err)
	}
	if err := a.JournalWrite(0, []byte("keep")); err != nil {
		t.Fatalf("JournalWrite: %v", err)
	}
	if err := a.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := a.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	got := make([]byte, 4)
	if err := a.Read(got, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("keep")) {
		t.Fatalf("Read = %q, want %q", got, "keep")
	}
}

func TestAtomicWriteBatch(t *testing.T) {
	a, _, _ := newAtomicPair(t)

	writes := []Write{
		{Offset: 0, Data: []byte("aaaa")},
		{Offset: 8, Data: []byte("bbbb")},
		{Offset: 0, Data: []byte("cccc")},
	}
	if err := a.AtomicWrite(writes); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	got := make([]byte, 12)
	if err := a.Read(got, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("cccc\x00\x00\x00\x00bbbb")) {
		t.Fatalf("Read = %q", got)
	}
}

func TestCrashBeforeCommitLosesNothingDurable(t *testing.T) {
	a, device, wal := newAtomicPair(t)

	if err := a.AtomicWrite([]Write{{Offset: 0, Data: []byte("stable__")}}); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	if err := a.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := a.JournalWrite(0, []byte("doomed__")); err != nil {
		t.Fatalf("JournalWrite: %v", err)
	}

	// Power loss before Commit: the journaled records were never
	// synced, so they vanish.
	device.CrashDropPending()
	wal.CrashDropPending()

	a2 := NewAtomicFile(device, wal)
	if err := a2.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	got := make([]byte, 8)
	if err := a2.Read(got, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("stable__")) {
		t.Fatalf("Read = %q, want %q", got, "stable__")
	}
}

func TestCrashAfterCommitReplaysOnRecover(t *testing.T) {
	a, device, wal := newAtomicPair(t)

	if err := a.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := a.JournalWrite(0, []byte("survives")); err != nil {
		t.Fatalf("JournalWrite: %v", err)
	}
	if err := a.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Power loss after Commit but before Checkpoint: the sealed log is
	// durable and must be replayed.
	device.CrashDropPending()
	wal.CrashDropPending()

	a2 := NewAtomicFile(device, wal)
	if err := a2.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	got := make([]byte, 8)
	if err := a2.Read(got, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("survives")) {
		t.Fatalf("Read = %q, want %q", got, "survives")
	}

	// Recovery also resets the log.
	if size, _ := wal.Size(); size != 0 {
		t.Fatalf("wal size after recover = %d, want 0", size)
	}
}

func TestRecoverIsIdempotent(t *testing.T) {
	a, device, wal := newAtomicPair(t)

	if err := a.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := a.JournalWrite(0, []byte("once")); err != nil {
		t.Fatalf("JournalWrite: %v", err)
	}
	if err := a.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	device.CrashDropPending()
	wal.CrashDropPending()

	for i := 0; i < 3; i++ {
		a2 := NewAtomicFile(device, wal)
		if err := a2.Recover(); err != nil {
			t.Fatalf("Recover #%d: %v", i, err)
		}
		got := make([]byte, 4)
		if err := a2.Read(got, 0); err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !bytes.Equal(got, []byte("once")) {
			t.Fatalf("Read = %q, want %q", got, "once")
		}
		if err := a2.SafeShutdown(); err != nil {
			t.Fatalf("SafeShutdown: %v", err)
		}
	}
}

func TestRandomizedCrashDuringTransaction(t *testing.T) {
	for seed := int64(0); seed < 25; seed++ {
		t.Run(fmt.Sprintf("seed%d", seed), func(t *testing.T) {
			device := NewSimFile(32, rand.New(rand.NewSource(seed)))
			wal := NewSimFile(32, rand.New(rand.NewSource(seed+1000)))
			a := NewAtomicFile(device, wal)

			if err := a.AtomicWrite([]Write{{Offset: 0, Data: []byte("baseline")}}); err != nil {
				t.Fatalf("AtomicWrite: %v", err)
			}

			// Crash mid-transaction, before the commit marker is
			// durable. Whatever random prefix of the log survives,
			// recovery must leave the baseline intact.
			if err := a.Begin(); err != nil {
				t.Fatalf("Begin: %v", err)
			}
			if err := a.JournalWrite(0, []byte("halfdone")); err != nil {
				t.Fatalf("JournalWrite: %v", err)
			}
			device.CrashBasic()
			wal.CrashBasic()

			a2 := NewAtomicFile(device, wal)
			if err := a2.Recover(); err != nil {
				t.Fatalf("Recover: %v", err)
			}
			got := make([]byte, 8)
			if err := a2.Read(got, 0); err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !bytes.Equal(got, []byte("baseline")) {
				t.Fatalf("Read = %q, want %q", got, "baseline")
			}
		})
	}
}
