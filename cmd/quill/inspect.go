package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/quilldb/quill/internal/config"
	"github.com/quilldb/quill/internal/storage"
)

// inspectCmd handles the inspect command.
func inspectCmd(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	path := fs.String("path", "quill.db", "Path to the data file")
	blockSize := fs.Int("block-size", config.DefaultBlockSize, "Block size the file was created with")
	cfgPath := fs.String("config", "", "Path to configuration file")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *help || *helpLong {
		printInspectUsage(os.Stdout)
		return 0
	}
	if *cfgPath != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
		*path = cfg.Storage.Path
		*blockSize = cfg.Storage.BlockSize
	}

	data := storage.NewOSFile(*path)
	wal := storage.NewOSFile(*path + ".wal")
	af := storage.NewAtomicFile(data, wal)
	if err := af.Recover(); err != nil {
		fmt.Fprintf(os.Stderr, "Error recovering %s: %v\n", *path, err)
		return 1
	}
	defer af.SafeShutdown()

	fbf, err := storage.NewFreeBlockFile(af, *blockSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := fbf.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening block file: %v\n", err)
		return 1
	}

	size, err := af.Size()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	free, err := fbf.FreeBlockCount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error walking free list: %v\n", err)
		return 1
	}

	fmt.Printf("File:         %s\n", *path)
	fmt.Printf("Size:         %d bytes\n", size)
	fmt.Printf("Block size:   %d\n", fbf.BlockSize())
	fmt.Printf("Blocks:       %d\n", fbf.BlockCount())
	fmt.Printf("Free blocks:  %d\n", free)

	header := fbf.ReadHeader()
	fmt.Printf("Header bytes: %d\n", len(header))
	if len(header) >= 4 {
		root := binary.LittleEndian.Uint32(header)
		if root == storage.NoBlock {
			fmt.Printf("Index root:   none\n")
		} else {
			fmt.Printf("Index root:   block %d\n", root)
		}
	}
	return 0
}
