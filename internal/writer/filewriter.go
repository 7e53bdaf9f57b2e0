// Package writer exposes atomic-write sinks for the artifacts cmd/asm
// produces: a compiled unit's `.boc` bag-of-cells file and its
// `*.dbg.json` debug map.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileWriter writes an artifact to a filesystem path atomically via a
// temp file plus rename, so a failed or interrupted write never leaves
// a truncated file at Path.
type FileWriter struct {
	Path string
}

// Write writes buf to the configured path atomically.
func (w *FileWriter) Write(buf []byte) error {
	dir := filepath.Dir(w.Path)
	tmpFile, err := os.CreateTemp(dir, ".cellasm-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(buf); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmpFile = nil // don't clean up in defer

	if err := os.Rename(tmpPath, w.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
