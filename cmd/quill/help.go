package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage information to the given writer.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `quill - Embeddable crash-safe document store

Usage:
  quill <command> [options]

Commands:
  inspect     Show store header, free list and block statistics
  dump        Print the primary index and its entries
  version     Show version information

Use "quill <command> -h" for more information about a command.
`)
}

// printInspectUsage prints the inspect command usage.
func printInspectUsage(w io.Writer) {
	fmt.Fprint(w, `Show store header, free list and block statistics

Usage:
  quill inspect [options]

Options:
  -path string
        Path to the data file (default "quill.db")
  -block-size int
        Block size the file was created with (default 4096)
  -config string
        Path to configuration file (overrides the flags above)
  -h, -help
        Show this help message
`)
}

// printDumpUsage prints the dump command usage.
func printDumpUsage(w io.Writer) {
	fmt.Fprint(w, `Print the primary index and its entries

Usage:
  quill dump [options]

Options:
  -path string
        Path to the data file (default "quill.db")
  -block-size int
        Block size the file was created with (default 4096)
  -order int
        Index order the store was created with (default 64)
  -entries
        Also list every document id and size
  -h, -help
        Show this help message
`)
}

// printVersionUsage prints the version command usage.
func printVersionUsage(w io.Writer) {
	fmt.Fprint(w, `Show version information

Usage:
  quill version [options]

Options:
  -short
        Show only version number
  -h, -help
        Show this help message
`)
}
