// Package opcode is the dispatch interface between the assembler driver
// and individual mnemonic handlers. The full per-mnemonic opcode table
// runs to hundreds of entries; this package ships the Handler contract
// plus the subset covering every emission mechanism the writer has:
// plain instructions (NOP, DROP), the integer codec (PUSHINT), a
// fixed-argument instruction (THROW), continuation embedding
// (PUSHCONT), single/double reference composite instructions (CALLREF,
// IFREF, IFREFELSEREF), and the builder primitives the computed-cell
// interpreter understands (NEWC, ENDC, STREF, STONE, STZERO).
package opcode

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/mbarlow/cellasm/internal/fragment"
	"github.com/mbarlow/cellasm/internal/intcodec"
	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/mbarlow/cellasm/pkg/debug"
)

// ErrOutOfRange is returned when a mnemonic's operand encodes to more
// bytes than its short form's header field can address.
var ErrOutOfRange = errors.New("opcode: operand out of range for this instruction's short form")

// Args is what the driver hands a Handler for one source instruction:
// its operand text (split on whitespace/commas) and any brace-delimited
// nested blocks that followed it, in source order.
type Args struct {
	Mnemonic string
	Operands []string
	Blocks   [][]debug.Line
	Pos      debug.Pos
}

// Emitter is the subset of the assembler's writer that a Handler may
// drive. CompileBlock recursively compiles a nested `{ ... }` body
// (used by continuation-taking instructions) via the driver's own entry
// point, so a block's mnemonics are resolved through the same registry.
type Emitter interface {
	WriteCommand(command []byte, node *debug.Node) error
	WriteCommandWithRefs(command []byte, refs []*cell.Cell, node *debug.Node) error
	WriteCompositeCommand(opcode []byte, childCell *cell.Cell, childNode *debug.Node, pos debug.Pos) error
	CompileBlock(lines []debug.Line) (*cell.Cell, *debug.Node, error)
}

// Handler emits the effect of one mnemonic occurrence against e.
type Handler func(e Emitter, args Args) error

// Registry maps upper-cased mnemonics to their Handler.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds mnemonic (matched case-insensitively by the driver,
// which upper-cases before lookup) to h.
func (r *Registry) Register(mnemonic string, h Handler) {
	r.handlers[strings.ToUpper(mnemonic)] = h
}

// Lookup returns the Handler bound to mnemonic, if any.
func (r *Registry) Lookup(mnemonic string) (Handler, bool) {
	h, ok := r.handlers[strings.ToUpper(mnemonic)]
	return h, ok
}

// NewDefaultRegistry returns a Registry pre-populated with this
// package's representative mnemonic subset.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("NOP", plain(0x00))
	r.Register("DROP", plain(0x30))
	r.Register("NEWC", plain(0xC8))
	r.Register("ENDC", plain(0xC9))
	r.Register("STREF", plain(0xCC))
	r.Register("STZERO", plain2(0xCF, 0x81))
	r.Register("STONE", plain2(0xCF, 0x93))
	r.Register("PUSHINT", handlePUSHINT)
	r.Register("THROW", handleTHROW)
	r.Register("CALLREF", handleCALLREF)
	r.Register("PUSHCONT", handlePUSHCONT)
	r.Register("PUSHSLICE", handlePUSHSLICE)
	r.Register("IFREF", handleIFREF)
	r.Register("IFELSE", handleIFELSE)
	r.Register("IFELSEREF", handleIFELSEREF)
	r.Register("IFREFELSE", handleIFREFELSE)
	r.Register("IFREFELSEREF", handleIFREFELSEREF)
	return r
}

// plain builds a Handler for a fixed single-byte instruction with no
// operands; plain2 the same for a fixed two-byte instruction.
func plain(b byte) Handler {
	return func(e Emitter, a Args) error {
		return e.WriteCommand([]byte{b}, debug.NewNodeFrom(a.Pos))
	}
}

func plain2(hi, lo byte) Handler {
	return func(e Emitter, a Args) error {
		return e.WriteCommand([]byte{hi, lo}, debug.NewNodeFrom(a.Pos))
	}
}

// PUSHINT picks the shortest of its encodings: the one-byte form
// 0x70|x for -5..10 (x is a 4-bit two's-complement nibble), the
// two-byte 0x80 form for any other signed byte, the three-byte 0x81
// form for any other signed 16-bit value, and the general big-endian
// variable-length form (opcode 0x82 followed by intcodec.Encode's
// output) for everything else.
func handlePUSHINT(e Emitter, a Args) error {
	if len(a.Operands) != 1 {
		return fmt.Errorf("opcode: PUSHINT wants exactly one operand, got %d", len(a.Operands))
	}
	n, ok := new(big.Int).SetString(a.Operands[0], 10)
	if !ok {
		return fmt.Errorf("opcode: PUSHINT operand %q is not an integer", a.Operands[0])
	}

	if n.IsInt64() {
		v := n.Int64()
		switch {
		case v >= -5 && v <= 10:
			return e.WriteCommand([]byte{0x70 | (byte(v) & 0x0F)}, debug.NewNodeFrom(a.Pos))
		case v >= -128 && v <= 127:
			return e.WriteCommand([]byte{0x80, byte(int8(v))}, debug.NewNodeFrom(a.Pos))
		case v >= -32768 && v <= 32767:
			return e.WriteCommand([]byte{0x81, byte(uint16(v) >> 8), byte(uint16(v))}, debug.NewNodeFrom(a.Pos))
		}
	}

	data, ok := intcodec.Encode(n)
	if !ok {
		return fmt.Errorf("opcode: PUSHINT %s: %w", n.String(), intcodec.ErrOverflow)
	}
	return e.WriteCommand(append([]byte{0x82}, data...), debug.NewNodeFrom(a.Pos))
}

func handleTHROW(e Emitter, a Args) error {
	if len(a.Operands) != 1 {
		return fmt.Errorf("opcode: THROW wants exactly one operand, got %d", len(a.Operands))
	}
	n, err := strconv.Atoi(a.Operands[0])
	if err != nil || n < 0 || n > 255 {
		return fmt.Errorf("opcode: THROW operand %q must be an integer in 0..255", a.Operands[0])
	}
	return e.WriteCommand([]byte{0xF2, 0xC0, byte(n)}, debug.NewNodeFrom(a.Pos))
}

func handleCALLREF(e Emitter, a Args) error {
	if len(a.Blocks) != 1 {
		return fmt.Errorf("opcode: CALLREF wants exactly one { } block, got %d", len(a.Blocks))
	}
	childCell, childNode, err := e.CompileBlock(a.Blocks[0])
	if err != nil {
		return err
	}
	return e.WriteCompositeCommand([]byte{0xDB, 0x3C}, childCell, childNode, a.Pos)
}

// PUSHCONT embeds its compiled body in the current cell whenever it
// fits, so the body's bits, references, and debug offsets all land
// inline:
//
//   - r == 0 and at most 15 body bytes: one header byte 0x90|l, then
//     the body bytes;
//   - up to 3 references and at most 125 body bytes: two header bytes
//     carrying r and l, then the body bytes, with the body's references
//     appended to the current cell;
//   - anything larger: the by-reference PUSHREFCONT composite form.
//
// The body's debug node is inlined after the header bits, so its
// offsets shift into the enclosing cell and its children follow the
// absorbed references.
func handlePUSHCONT(e Emitter, a Args) error {
	if len(a.Blocks) != 1 {
		return fmt.Errorf("opcode: PUSHCONT wants exactly one { } block, got %d", len(a.Blocks))
	}
	childCell, childNode, err := e.CompileBlock(a.Blocks[0])
	if err != nil {
		return err
	}

	// The long inline header's length field addresses up to 127 body
	// bytes, but header+body must also fit a 1023-bit cell, which caps
	// the body at 125 bytes.
	r := childCell.RefsCount()
	l := childCell.BitsUsed() / 8
	if childCell.BitsUsed()%8 != 0 || r > 3 || l > 125 {
		return e.WriteCompositeCommand([]byte{0x8A}, childCell, childNode, a.Pos)
	}

	var command []byte
	if r == 0 && l <= 15 {
		command = append([]byte{0x90 | byte(l)}, childCell.Bytes()...)
	} else {
		command = append([]byte{0x8E | byte(r>>1), byte(r&1)<<7 | byte(l)}, childCell.Bytes()...)
	}
	headerBits := 8 * (len(command) - l)

	node := debug.NewNodeFrom(a.Pos)
	if err := node.InlineNode(headerBits, childNode); err != nil {
		return err
	}
	return e.WriteCommandWithRefs(command, childCell.References(), node)
}

// PUSHSLICE's short form (opcode 0x8B) embeds a slice literal's raw
// bits directly after the opcode byte rather than by reference: the
// combined byte immediately after the opcode packs a 4-bit header —
// the count of bytes following it, i.e. (total bytes used by header +
// data) minus one — in its upper nibble, with the slice's own bits
// (as produced by fragment.ParseSliceBits, terminator included unless
// the literal ends in `_`) packed MSB-first starting at its lower
// nibble and continuing, zero-padded, into as many further bytes as
// needed. The header nibble can only express 0..15 additional bytes,
// so slices whose packed form would need a 17th byte are OutOfRange;
// the distinct long-form opcode (0x8D) for those is not implemented.
func handlePUSHSLICE(e Emitter, a Args) error {
	if len(a.Operands) != 1 {
		return fmt.Errorf("opcode: PUSHSLICE wants exactly one operand, got %d", len(a.Operands))
	}
	bits, err := fragment.ParseSliceBits(a.Operands[0])
	if err != nil {
		return err
	}
	totalBits := 4 + len(bits)
	totalBytes := (totalBits + 7) / 8
	if totalBytes > 16 {
		return fmt.Errorf("opcode: PUSHSLICE %s: %w", a.Operands[0], ErrOutOfRange)
	}
	header := byte(totalBytes - 1)
	packed := make([]byte, 0, 4+len(bits))
	for i := 3; i >= 0; i-- {
		packed = append(packed, (header>>uint(i))&1)
	}
	packed = append(packed, bits...)
	return e.WriteCommand(append([]byte{0x8B}, fragment.PackBits(packed)...), debug.NewNodeFrom(a.Pos))
}

func handleIFREF(e Emitter, a Args) error {
	if len(a.Blocks) != 1 {
		return fmt.Errorf("opcode: IFREF wants exactly one { } block, got %d", len(a.Blocks))
	}
	childCell, childNode, err := e.CompileBlock(a.Blocks[0])
	if err != nil {
		return err
	}
	return e.WriteCompositeCommand([]byte{0xE3, 0x00}, childCell, childNode, a.Pos)
}

// IFELSE's real form consumes two continuations already sitting on the
// data stack (e.g. from prior PUSHCONTs) rather than braces of its own,
// so unlike the other IF-family handlers here it takes no blocks.
func handleIFELSE(e Emitter, a Args) error {
	if len(a.Blocks) != 0 {
		return fmt.Errorf("opcode: IFELSE takes no { } blocks, got %d", len(a.Blocks))
	}
	return e.WriteCommand([]byte{0xE2}, debug.NewNodeFrom(a.Pos))
}

// IFELSEREF and IFREFELSE are simplified here to both consume their
// continuation by reference (like IFREFELSEREF), rather than the
// asymmetric inline-then/by-ref-else (and vice versa) forms that would
// pack one branch into the opcode stream the way PUSHCONT's inline
// form does. The opcode bytes themselves (0xE3 0x0E / 0xE3 0x0D) are
// the real TVM values for these mnemonics.
func handleIFELSEREF(e Emitter, a Args) error {
	if len(a.Blocks) != 2 {
		return fmt.Errorf("opcode: IFELSEREF wants exactly two { } blocks, got %d", len(a.Blocks))
	}
	return emitTwoRefComposite(e, a, []byte{0xE3, 0x0E})
}

func handleIFREFELSE(e Emitter, a Args) error {
	if len(a.Blocks) != 2 {
		return fmt.Errorf("opcode: IFREFELSE wants exactly two { } blocks, got %d", len(a.Blocks))
	}
	return emitTwoRefComposite(e, a, []byte{0xE3, 0x0D})
}

func emitTwoRefComposite(e Emitter, a Args, opcode []byte) error {
	thenCell, thenNode, err := e.CompileBlock(a.Blocks[0])
	if err != nil {
		return err
	}
	elseCell, elseNode, err := e.CompileBlock(a.Blocks[1])
	if err != nil {
		return err
	}
	if err := e.WriteCompositeCommand(opcode, thenCell, thenNode, a.Pos); err != nil {
		return err
	}
	return e.WriteCompositeCommand(nil, elseCell, elseNode, a.Pos)
}

func handleIFREFELSEREF(e Emitter, a Args) error {
	if len(a.Blocks) != 2 {
		return fmt.Errorf("opcode: IFREFELSEREF wants exactly two { } blocks, got %d", len(a.Blocks))
	}
	return emitTwoRefComposite(e, a, []byte{0xE3, 0x0F})
}
