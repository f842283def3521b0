package main

import (
	"path/filepath"
	"testing"

	"github.com/quilldb/quill/internal/storage/engine"
)

func TestRun_NoArgs(t *testing.T) {
	exitCode := run([]string{"quill"})
	if exitCode != 1 {
		t.Errorf("expected exit code 1 for no args, got %d", exitCode)
	}
}

func TestRun_Help(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"help command", []string{"quill", "help"}},
		{"short flag", []string{"quill", "-h"}},
		{"long flag", []string{"quill", "--help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exitCode := run(tt.args)
			if exitCode != 0 {
				t.Errorf("expected exit code 0 for help, got %d", exitCode)
			}
		})
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	exitCode := run([]string{"quill", "unknown"})
	if exitCode != 1 {
		t.Errorf("expected exit code 1 for unknown command, got %d", exitCode)
	}
}

func TestRun_Version(t *testing.T) {
	exitCode := run([]string{"quill", "version"})
	if exitCode != 0 {
		t.Errorf("expected exit code 0 for version, got %d", exitCode)
	}
}

func TestRun_InspectAndDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	e, err := engine.Open(engine.Options{Path: path, BlockSize: 64, Order: 3})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := e.Put("a", []byte("alpha")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if code := run([]string{"quill", "inspect", "-path", path, "-block-size", "64"}); code != 0 {
		t.Errorf("inspect exit code = %d, want 0", code)
	}
	if code := run([]string{"quill", "dump", "-path", path, "-block-size", "64", "-order", "3", "-entries"}); code != 0 {
		t.Errorf("dump exit code = %d, want 0", code)
	}
}
