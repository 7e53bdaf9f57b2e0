package writer

// MemWriter captures a written artifact in memory, for tests that exercise
// cmd/asm's output plumbing without touching the filesystem.
type MemWriter struct {
	Buf []byte
}

// Write stores a copy of buf.
func (w *MemWriter) Write(buf []byte) error {
	w.Buf = append(w.Buf[:0], buf...)
	return nil
}
