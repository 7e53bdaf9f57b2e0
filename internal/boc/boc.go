// Package boc implements a simplified, self-documented "bag of cells"
// container for a compiled cell DAG. It is explicitly NOT a
// bit-for-bit implementation of the TVM/TON BoC wire format. It exists
// so `cmd/asm` has something concrete to write to `<prefix>.boc` and
// read back, round-tripping a compiled program losslessly.
//
// Layout: a 4-byte magic, a uint32 cell count, then each cell in
// postorder (children before parents) as: uint16 bit count, the
// zero-padded payload bytes, a uint8 reference count, and that many
// uint32 indices into the cells already written. The last cell written
// is the root.
package boc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mbarlow/cellasm/internal/buf"
	"github.com/mbarlow/cellasm/pkg/cell"
)

// Magic identifies this container format. It intentionally does not
// match any byte sequence used by the real TON BoC format.
var Magic = [4]byte{'C', 'B', 'O', 'C'}

// ErrBadMagic is returned by Read when the input does not start with Magic.
var ErrBadMagic = errors.New("boc: bad magic")

// Write serializes root's full cell DAG to w.
func Write(w io.Writer, root *cell.Cell) error {
	bw := bufio.NewWriter(w)

	order, indexOf := postorder(root)

	if _, err := bw.Write(Magic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(order))); err != nil {
		return err
	}
	for _, c := range order {
		if err := binary.Write(bw, binary.BigEndian, uint16(c.BitsUsed())); err != nil {
			return err
		}
		if _, err := bw.Write(c.Bytes()); err != nil {
			return err
		}
		refs := c.References()
		if err := bw.WriteByte(byte(len(refs))); err != nil {
			return err
		}
		for _, r := range refs {
			if err := binary.Write(bw, binary.BigEndian, uint32(indexOf[r.Hash()])); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// postorder walks root's DAG and returns a slice with every distinct
// cell (deduplicated by hash) appearing after all of its children, plus
// a lookup from hash to that cell's index in the slice.
func postorder(root *cell.Cell) ([]*cell.Cell, map[cell.Hash]int) {
	indexOf := make(map[cell.Hash]int)
	var order []*cell.Cell

	var visit func(c *cell.Cell)
	visit = func(c *cell.Cell) {
		if _, seen := indexOf[c.Hash()]; seen {
			return
		}
		for _, r := range c.References() {
			visit(r)
		}
		indexOf[c.Hash()] = len(order)
		order = append(order, c)
	}
	visit(root)
	return order, indexOf
}

// Read deserializes a cell DAG written by Write, returning its root. The
// whole input is buffered up front and parsed with bounds-checked slice
// accesses (internal/buf) rather than threading io errors through every
// field read, since a truncated or adversarial container must never
// panic on an out-of-range slice.
func Read(r io.Reader) (*cell.Cell, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("boc: reading input: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*cell.Cell, error) {
	if !buf.Has(data, 0, 4) {
		return nil, fmt.Errorf("boc: reading magic: %w", io.ErrUnexpectedEOF)
	}
	var magic [4]byte
	copy(magic[:], data[:4])
	if magic != Magic {
		return nil, ErrBadMagic
	}
	off := 4

	if !buf.Has(data, off, 4) {
		return nil, fmt.Errorf("boc: reading cell count: %w", io.ErrUnexpectedEOF)
	}
	count := buf.U32BE(data[off:])
	off += 4

	cells := make([]*cell.Cell, count)
	for i := uint32(0); i < count; i++ {
		if !buf.Has(data, off, 2) {
			return nil, fmt.Errorf("boc: cell %d: reading bit count: %w", i, io.ErrUnexpectedEOF)
		}
		bits := buf.U16BE(data[off:])
		off += 2

		payload, ok := buf.Slice(data, off, (int(bits)+7)/8)
		if !ok {
			return nil, fmt.Errorf("boc: cell %d: reading payload: %w", i, io.ErrUnexpectedEOF)
		}
		off += len(payload)

		if !buf.Has(data, off, 1) {
			return nil, fmt.Errorf("boc: cell %d: reading ref count: %w", i, io.ErrUnexpectedEOF)
		}
		refCount := int(data[off])
		off++

		b := cell.NewBuilder()
		if err := appendPackedBits(b, payload, int(bits)); err != nil {
			return nil, fmt.Errorf("boc: cell %d: %w", i, err)
		}
		for j := 0; j < refCount; j++ {
			if !buf.Has(data, off, 4) {
				return nil, fmt.Errorf("boc: cell %d: reading ref %d: %w", i, j, io.ErrUnexpectedEOF)
			}
			idx := buf.U32BE(data[off:])
			off += 4
			if idx >= i {
				return nil, fmt.Errorf("boc: cell %d: ref %d points forward (index %d)", i, j, idx)
			}
			if err := b.AppendReference(cells[idx]); err != nil {
				return nil, fmt.Errorf("boc: cell %d: %w", i, err)
			}
		}
		cells[i] = b.Finalize()
	}
	if count == 0 {
		return nil, fmt.Errorf("boc: empty container has no root")
	}
	return cells[count-1], nil
}

func appendPackedBits(b *cell.Builder, data []byte, bits int) error {
	full := bits / 8
	if full > 0 {
		if err := b.AppendBytes(data[:full]); err != nil {
			return err
		}
	}
	rem := bits % 8
	if rem == 0 {
		return nil
	}
	last := data[full]
	return b.AppendBits(uint64(last>>uint(8-rem)), rem)
}
