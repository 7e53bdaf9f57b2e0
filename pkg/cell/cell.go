// Package cell implements the immutable bit-addressable cell and its
// mutable builder counterpart: the program representation that the
// assembler emits into and the disassembler reads back from.
//
// A Cell holds up to MaxPayloadBits of opcode payload and up to MaxRefs
// ordered references to child cells. Cells are content-addressed: two
// cells with identical payload and identical child hashes hash equal and
// may be shared within a tree. Nothing here mutates a finalized Cell;
// construction happens exclusively through Builder.
package cell

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxPayloadBits is the largest bit length a single cell's payload may hold.
	MaxPayloadBits = 1023

	// MaxRefs is the largest number of child references a single cell may hold.
	MaxRefs = 4
)

// ErrBitOverflow is returned when an append would exceed MaxPayloadBits.
var ErrBitOverflow = errors.New("cell: payload would exceed 1023 bits")

// ErrRefOverflow is returned when an append would exceed MaxRefs.
var ErrRefOverflow = errors.New("cell: reference count would exceed 4")

// Hash is the 256-bit content hash identifying a Cell.
type Hash [32]byte

// String renders the hash as lowercase hex, matching the *.dbg.json key format.
func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Cell is an immutable node of the program DAG: a bit-packed payload plus
// up to MaxRefs child cells, identified by a deterministic content hash.
type Cell struct {
	bits int
	data []byte // data is packed MSB-first; the final byte is zero-padded past bits.
	refs []*Cell
	hash Hash
}

// BitsUsed reports the number of significant payload bits in c.
func (c *Cell) BitsUsed() int { return c.bits }

// RefsCount reports the number of child references c holds.
func (c *Cell) RefsCount() int { return len(c.refs) }

// Reference returns the i-th child cell, or an error if i is out of range.
func (c *Cell) Reference(i int) (*Cell, error) {
	if i < 0 || i >= len(c.refs) {
		return nil, fmt.Errorf("cell: reference index %d out of range (have %d)", i, len(c.refs))
	}
	return c.refs[i], nil
}

// References returns the child cells in order. The returned slice must not be mutated.
func (c *Cell) References() []*Cell { return c.refs }

// Hash returns c's deterministic 256-bit content hash.
func (c *Cell) Hash() Hash { return c.hash }

// Bytes returns the payload packed MSB-first, zero-padded to a whole
// number of bytes. It is the spine's "flat concatenation of bits" when c
// has no leading partial byte from an enclosing context.
func (c *Cell) Bytes() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// HexString renders Bytes as lowercase hex, for diagnostics and tests.
func (c *Cell) HexString() string {
	return fmt.Sprintf("%x", c.Bytes())
}

func computeHash(bits int, data []byte, refs []*Cell) Hash {
	h := sha256.New()
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(bits))
	h.Write(lenBuf[:])
	h.Write(data)
	for _, r := range refs {
		rh := r.Hash()
		h.Write(rh[:])
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
