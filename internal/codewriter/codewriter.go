// Package codewriter implements the spine-chaining cell/debug-tree
// writer at the heart of code emission.
//
// A Writer holds two parallel stacks — builders and debug nodes — that
// grow as instructions overflow the current cell and collapse back into
// a single root (cell, node) pair on Finalize.
package codewriter

import (
	"errors"
	"fmt"

	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/mbarlow/cellasm/pkg/debug"
)

// ErrNotFitInSlice is returned when a single instruction's opcode bytes
// exceed cell.MaxPayloadBits even in a brand-new, empty builder.
var ErrNotFitInSlice = errors.New("codewriter: instruction does not fit in an empty cell")

// ErrReservedSlot is returned when an instruction's references cannot be
// appended while leaving one reference slot free, even in a fresh
// builder: one slot is always held back for the spine-chaining reference
// Finalize attaches. A builder that merely lacks free slots is not an
// error; the writer moves on to a fresh builder first.
var ErrReservedSlot = errors.New("codewriter: fewer than two reference slots free for a composite instruction")

// Writer accumulates instructions into a chain of builders, starting a
// new one whenever the current one overflows, and tracks the parallel
// debug tree in lockstep.
type Writer struct {
	builders []*cell.Builder
	nodes    []*debug.Node
}

// New returns a Writer with a single empty builder/node pair.
func New() *Writer {
	return &Writer{
		builders: []*cell.Builder{cell.NewBuilder()},
		nodes:    []*debug.Node{debug.NewNode()},
	}
}

func (w *Writer) last() (*cell.Builder, *debug.Node) {
	n := len(w.builders)
	return w.builders[n-1], w.nodes[n-1]
}

func (w *Writer) pushFresh() (*cell.Builder, *debug.Node) {
	b := cell.NewBuilder()
	n := debug.NewNode()
	w.builders = append(w.builders, b)
	w.nodes = append(w.nodes, n)
	return b, n
}

// WriteCommand appends a plain instruction's opcode bytes to the
// current builder, starting a fresh builder first if they would not
// fit. node carries the instruction's own offset-to-position entries
// (offset 0 for a simple mnemonic; more for an instruction that embeds
// an inlined body) and is merged into the current debug node at the bit
// offset the first byte lands on, its children becoming the current
// node's next children.
func (w *Writer) WriteCommand(command []byte, node *debug.Node) error {
	return w.WriteCommandWithRefs(command, nil, node)
}

// WriteCommandWithRefs is WriteCommand for instructions that embed a
// compiled body whose references must travel with the bits (PUSHCONT's
// inline form, `.inline` of a fragment whose body ends in a composite):
// the bytes and refs are appended to the same builder together, so
// node's children stay aligned with the appended references. The
// reserved spine slot still applies: refs may only be appended while at
// least one reference slot remains free afterwards.
func (w *Writer) WriteCommandWithRefs(command []byte, refs []*cell.Cell, node *debug.Node) error {
	b, n := w.last()
	if len(command)*8 > b.BitsFree() || (len(refs) > 0 && b.RefsFree() <= len(refs)) {
		b, n = w.pushFresh()
	}
	offset := b.BitsUsed()
	if err := b.AppendBytes(command); err != nil {
		return fmt.Errorf("codewriter: %w", ErrNotFitInSlice)
	}
	if len(refs) > 0 && b.RefsFree() <= len(refs) {
		return fmt.Errorf("codewriter: %w", ErrReservedSlot)
	}
	for _, ref := range refs {
		if err := b.AppendReference(ref); err != nil {
			return fmt.Errorf("codewriter: %w", err)
		}
	}
	if err := n.InlineNode(offset, node); err != nil {
		return fmt.Errorf("codewriter: %w", err)
	}
	return nil
}

// WriteCompositeCommand appends opcode (which may be empty, for a
// second reference of a multi-reference instruction such as
// IFREFELSEREF) plus one child reference to the current builder. It
// enforces the reserved-reference-slot invariant: at least two
// reference slots must be free before the append, since Finalize always
// needs one slot to attach the next builder in the spine. Failing that
// precondition (or lacking bit capacity for opcode) does not fail the
// instruction outright: a fresh builder/node pair is pushed and the
// emit is retried there once, only failing with NotFitInSlice if the
// fresh builder can't hold it either.
//
// childCell and childNode come from a nested block's own Writer.Finalize
// call and are consumed: callers must not reuse them.
func (w *Writer) WriteCompositeCommand(opcode []byte, childCell *cell.Cell, childNode *debug.Node, pos debug.Pos) error {
	b, n := w.last()
	if b.RefsFree() <= 1 || len(opcode)*8 > b.BitsFree() {
		b, n = w.pushFresh()
		if b.RefsFree() <= 1 {
			return fmt.Errorf("codewriter: %w", ErrReservedSlot)
		}
	}

	offset := b.BitsUsed()
	if err := b.AppendBytes(opcode); err != nil {
		return fmt.Errorf("codewriter: %w", ErrNotFitInSlice)
	}

	if err := b.AppendReference(childCell); err != nil {
		return fmt.Errorf("codewriter: %w", err)
	}
	if len(opcode) > 0 {
		n.Set(offset, pos)
	}
	if err := n.AppendNode(childNode); err != nil {
		return fmt.Errorf("codewriter: %w", err)
	}
	return nil
}

// Finalize collapses the builder/node stacks into a single root (cell,
// node) pair: each builder absorbs the one after it as its final
// reference, working from the back of the spine to the front.
func (w *Writer) Finalize() (*cell.Cell, *debug.Node, error) {
	for i := len(w.builders) - 1; i > 0; i-- {
		poppedCell := w.builders[i].Finalize()
		poppedNode := w.nodes[i]

		prevBuilder := w.builders[i-1]
		if prevBuilder.RefsFree() < 1 {
			return nil, nil, fmt.Errorf("codewriter: spine link %d: %w", i, cell.ErrRefOverflow)
		}
		if err := prevBuilder.AppendReference(poppedCell); err != nil {
			return nil, nil, fmt.Errorf("codewriter: spine link %d: %w", i, err)
		}
		if err := w.nodes[i-1].AppendNode(poppedNode); err != nil {
			return nil, nil, fmt.Errorf("codewriter: spine link %d: %w", i, err)
		}
	}
	root := w.builders[0].Finalize()
	return root, w.nodes[0], nil
}
