//go:build !unix && !windows

// Package srcmap memory-maps `.code` source files for ingestion by the
// assembler driver, falling back to a plain read on platforms without an
// mmap syscall.
package srcmap

import "os"

// Map reads the entire file when mmap is not available.
func Map(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return data, func() error { return nil }, nil
}
