package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/quilldb/quill/internal/config"
	"github.com/quilldb/quill/internal/storage/engine"
)

// dumpCmd handles the dump command.
func dumpCmd(args []string) int {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	path := fs.String("path", "quill.db", "Path to the data file")
	blockSize := fs.Int("block-size", config.DefaultBlockSize, "Block size the file was created with")
	order := fs.Int("order", config.DefaultOrder, "Index order the store was created with")
	entries := fs.Bool("entries", false, "Also list every document id and size")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *help || *helpLong {
		printDumpUsage(os.Stdout)
		return 0
	}

	e, err := engine.Open(engine.Options{
		Path:      *path,
		BlockSize: *blockSize,
		Order:     *order,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		return 1
	}
	defer e.Close()

	if err := e.DumpIndex(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error dumping index: %v\n", err)
		return 1
	}
	if *entries {
		fmt.Println()
		err := e.Scan("", "", func(id string, doc []byte) error {
			fmt.Printf("%s  %d bytes\n", id, len(doc))
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning: %v\n", err)
			return 1
		}
	}
	return 0
}
