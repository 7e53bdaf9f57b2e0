package asm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mbarlow/cellasm/internal/codewriter"
	"github.com/mbarlow/cellasm/internal/fragment"
	"github.com/mbarlow/cellasm/internal/lexer"
	"github.com/mbarlow/cellasm/internal/opcode"
	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/mbarlow/cellasm/pkg/debug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var mnemonicCaser = cases.Upper(language.Und)

// driver implements opcode.Emitter against a single codewriter.Writer,
// dispatching each parsed instruction either to the directive handlers
// below or, for ordinary mnemonics, to a registered opcode.Handler. A
// fresh driver is spun up per nested `{ ... }` block (CompileBlock),
// sharing the parent's registry and fragment table but not its writer,
// since each block closes out its own spine.
type driver struct {
	filename  string
	registry  *opcode.Registry
	fragments *fragment.Table
	writer    *codewriter.Writer

	// locOverride, once set by a ".loc" directive, supplies the position
	// recorded for every subsequent instruction in this driver's block
	// instead of the token's own lexed Position.
	locOverride *debug.Pos
}

func newDriver(filename string, registry *opcode.Registry, fragments *fragment.Table) *driver {
	return &driver{
		filename:  filename,
		registry:  registry,
		fragments: fragments,
		writer:    codewriter.New(),
	}
}

func (d *driver) WriteCommand(command []byte, node *debug.Node) error {
	return d.writer.WriteCommand(command, node)
}

func (d *driver) WriteCommandWithRefs(command []byte, refs []*cell.Cell, node *debug.Node) error {
	return d.writer.WriteCommandWithRefs(command, refs, node)
}

func (d *driver) WriteCompositeCommand(op []byte, childCell *cell.Cell, childNode *debug.Node, pos debug.Pos) error {
	return d.writer.WriteCompositeCommand(op, childCell, childNode, pos)
}

// CompileBlock implements opcode.Emitter for block-taking instructions
// (CALLREF, PUSHCONT, IFREFELSEREF): it re-lexes a nested block's lines
// (each still tagged with its absolute position in the enclosing file)
// and compiles them with a child driver that shares this driver's
// registry and fragment table but closes out its own spine.
func (d *driver) CompileBlock(lines []debug.Line) (*cell.Cell, *debug.Node, error) {
	insts, err := lexer.LexLines(lines)
	if err != nil {
		return nil, nil, err
	}
	child := newDriver(d.filename, d.registry, d.fragments)
	if err := child.run(insts); err != nil {
		return nil, nil, err
	}
	return child.writer.Finalize()
}

// run dispatches every top-level instruction in insts in order.
func (d *driver) run(insts []lexer.Instruction) error {
	for _, inst := range insts {
		if err := d.dispatch(inst); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) dispatch(inst lexer.Instruction) error {
	pos := d.posFor(inst)

	if strings.HasPrefix(inst.Mnemonic, ".") {
		if err := d.dispatchDirective(inst, pos); err != nil {
			return &CompileError{Pos: inst.Pos, Err: err}
		}
		return nil
	}

	name := mnemonicCaser.String(inst.Mnemonic)
	h, ok := d.registry.Lookup(name)
	if !ok {
		return &CompileError{Pos: inst.Pos, Err: fmt.Errorf("%w: %s", ErrUnknownMnemonic, inst.Mnemonic)}
	}
	args := opcode.Args{
		Mnemonic: name,
		Operands: inst.Operands,
		Blocks:   blocksToLines(inst.Blocks),
		Pos:      pos,
	}
	if err := h(d, args); err != nil {
		return &CompileError{Pos: inst.Pos, Err: err}
	}
	return nil
}

func (d *driver) posFor(inst lexer.Instruction) debug.Pos {
	if d.locOverride != nil {
		return *d.locOverride
	}
	return debug.NewPos(inst.Pos.Filename, inst.Pos.Line)
}

// instructionLines reconstructs the []debug.Line form CompileBlock
// expects from a nested block's already-parsed instructions: one line
// per instruction (mnemonic plus comma-joined operands), with a brace
// pair around each of its own nested blocks in turn.
func instructionLines(insts []lexer.Instruction) []debug.Line {
	var out []debug.Line
	for _, inst := range insts {
		p := debug.NewPos(inst.Pos.Filename, inst.Pos.Line)
		text := inst.Mnemonic
		if len(inst.Operands) > 0 {
			text += " " + strings.Join(inst.Operands, ", ")
		}
		out = append(out, debug.Line{Text: text, Pos: p})
		for _, block := range inst.Blocks {
			out = append(out, debug.Line{Text: "{", Pos: p})
			out = append(out, instructionLines(block)...)
			out = append(out, debug.Line{Text: "}", Pos: p})
		}
	}
	return out
}

func blocksToLines(blocks [][]lexer.Instruction) [][]debug.Line {
	out := make([][]debug.Line, len(blocks))
	for i, b := range blocks {
		out[i] = instructionLines(b)
	}
	return out
}

// dispatchDirective implements the "."-prefixed directive mini-language:
// .fragment, .inline, .loc, .code-dict-cell, .library-cell, and
// .inline-computed-cell. These sit outside the opcode.Registry/Handler
// contract because they manipulate the fragment table and driver state
// rather than emitting a single mnemonic's bytes.
func (d *driver) dispatchDirective(inst lexer.Instruction, pos debug.Pos) error {
	switch strings.ToLower(inst.Mnemonic) {
	case ".fragment":
		return d.directiveFragment(inst)
	case ".inline":
		return d.directiveInline(inst, pos)
	case ".loc":
		return d.directiveLoc(inst)
	case ".code-dict-cell":
		return d.directiveCodeDict(inst, pos)
	case ".library-cell":
		return d.directiveLibraryCell(inst, pos)
	case ".inline-computed-cell":
		return d.directiveInlineComputedCell(inst, pos)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownDirective, inst.Mnemonic)
	}
}

// .fragment <name> { ... } compiles its single block and registers the
// result under name for later ".inline name" directives. The body's
// top-level mnemonic sequence travels along so ".inline-computed-cell"
// can re-interpret it as a builder program.
func (d *driver) directiveFragment(inst lexer.Instruction) error {
	if len(inst.Operands) != 1 {
		return fmt.Errorf("asm: .fragment wants exactly one name operand, got %d", len(inst.Operands))
	}
	if len(inst.Blocks) != 1 {
		return fmt.Errorf("asm: .fragment wants exactly one { } block, got %d", len(inst.Blocks))
	}
	c, n, err := d.CompileBlock(instructionLines(inst.Blocks[0]))
	if err != nil {
		return err
	}
	ops := make([]string, 0, len(inst.Blocks[0]))
	for _, bi := range inst.Blocks[0] {
		ops = append(ops, mnemonicCaser.String(bi.Mnemonic))
	}
	_, err = d.fragments.Define(inst.Operands[0], c, n, ops)
	return err
}

// .inline <name> splices a previously defined fragment's bytes directly
// into the current builder: no reference to the fragment itself is
// emitted, and the fragment's own debug node travels with the bits, so its per-offset
// positions (including any .loc remapping recorded inside the body)
// and its reference subtrees land in the calling cell unchanged. Only
// byte-aligned fragments (Bits % 8 == 0) are supported; a fragment
// ending mid-byte would need a bit-level WriteCommand variant the
// Emitter contract doesn't expose.
func (d *driver) directiveInline(inst lexer.Instruction, pos debug.Pos) error {
	if len(inst.Operands) != 1 {
		return fmt.Errorf("asm: .inline wants exactly one name operand, got %d", len(inst.Operands))
	}
	f, err := d.fragments.Lookup(inst.Operands[0])
	if err != nil {
		return err
	}
	if f.Bits%8 != 0 {
		return fmt.Errorf("asm: .inline %s: fragment ends mid-byte (%d bits), not byte-aligned", inst.Operands[0], f.Bits)
	}
	return d.WriteCommandWithRefs(f.Flat, f.Cell.References(), f.Node)
}

// .loc <filename> <line> overrides the debug position recorded for
// every subsequent instruction in this driver's block, matching an
// assembler's `#line`-style source remapping directive.
func (d *driver) directiveLoc(inst lexer.Instruction) error {
	if len(inst.Operands) != 2 {
		return fmt.Errorf("asm: .loc wants exactly two operands (filename, line), got %d", len(inst.Operands))
	}
	line, err := parseDecimal(inst.Operands[1])
	if err != nil {
		return fmt.Errorf("asm: .loc line %q: %w", inst.Operands[1], err)
	}
	p := debug.NewPos(inst.Operands[0], line)
	d.locOverride = &p
	return nil
}

// .code-dict-cell N, { key_ = fragmentName, ... } builds a Hashmap N X
// dictionary cell keyed by N-bit values, one per already-`.fragment`-
// defined name in the block, then attaches the dictionary's root edge
// as a bare reference of the current cell: no opcode bytes are emitted,
// so a unit that is nothing but a .code-dict-cell finalizes to a
// zero-bit root with one reference. Debug offsets recorded inside each
// fragment persist through the dictionary's nodes into the
// content-hash-keyed debug map.
func (d *driver) directiveCodeDict(inst lexer.Instruction, pos debug.Pos) error {
	if len(inst.Operands) != 1 {
		return fmt.Errorf("asm: .code-dict-cell wants exactly one bit-width operand, got %d", len(inst.Operands))
	}
	width, err := parseDecimal(inst.Operands[0])
	if err != nil {
		return fmt.Errorf("asm: .code-dict-cell bit width %q: %w", inst.Operands[0], err)
	}
	if len(inst.Blocks) != 1 {
		return fmt.Errorf("asm: .code-dict-cell wants exactly one { } block, got %d", len(inst.Blocks))
	}
	entries, err := d.codeDictEntries(inst.Blocks[0], width)
	if err != nil {
		return err
	}
	root, rootNode, err := fragment.BuildCodeDict(entries, width)
	if err != nil {
		return err
	}
	return d.WriteCompositeCommand(nil, root, rootNode, pos)
}

// codeDictEntries regroups a .code-dict-cell block's flat instruction
// list into `key = name` pairs. The lexer tokenizes "key_ = foo," as
// three instructions ("key_", "=", "foo") since "=" is never
// operand-shaped — but "foo"'s own operand-collection loop does not
// stop there: the following entry's key literal ("xab_" in
// "foo, xab_ = baz,") starts with a digit or 'x' and so reads as
// operand-shaped, so the lexer folds it into foo's own Operands[0]
// instead of starting a new instruction. Every entry but the last is
// therefore a (key, "=", name-carrying-next-key) run of instructions,
// with the next key recovered from the name instruction's Operands
// rather than from a following instruction of its own; no lexer change
// is needed to recover the grouping here.
func (d *driver) codeDictEntries(block []lexer.Instruction, width int) ([]fragment.DictEntry, error) {
	if len(block) == 0 || len(block[0].Operands) != 0 {
		return nil, fmt.Errorf("asm: .code-dict-cell block: expected a key literal, got %d tokens", len(block))
	}
	var entries []fragment.DictEntry
	key := block[0].Mnemonic
	i := 1
	for {
		if i+1 >= len(block) {
			return nil, fmt.Errorf("asm: .code-dict-cell block: entry for key %q is missing its %q fragmentName", key, "=")
		}
		eq, name := block[i], block[i+1]
		if eq.Mnemonic != "=" {
			return nil, fmt.Errorf("asm: .code-dict-cell entry %q: expected %q, got %q", key, "=", eq.Mnemonic)
		}
		bits, err := fragment.ParseDictKeyBits(key)
		if err != nil {
			return nil, err
		}
		if len(bits) != width {
			return nil, fmt.Errorf("asm: .code-dict-cell key %q has %d bits, want %d", key, len(bits), width)
		}
		f, err := d.fragments.Lookup(name.Mnemonic)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fragment.DictEntry{Key: bits, Value: f.Cell, ValueNode: f.Node})

		i += 2
		switch len(name.Operands) {
		case 0:
			if i != len(block) {
				return nil, fmt.Errorf("asm: .code-dict-cell block: unexpected trailing tokens after key %q", key)
			}
			return entries, nil
		case 1:
			key = name.Operands[0]
		default:
			return nil, fmt.Errorf("asm: .code-dict-cell entry %q: unexpected extra operand %q", name.Mnemonic, name.Operands[1])
		}
	}
}

// .library-cell <hex> wraps a plain (non-slice-literal) hex byte string
// naming an external code hash as a leaf cell and attaches it as a bare
// reference of the current cell, carrying an empty debug node: the
// referenced code was compiled elsewhere, so there are no positions to
// record for it.
func (d *driver) directiveLibraryCell(inst lexer.Instruction, pos debug.Pos) error {
	if len(inst.Operands) != 1 {
		return fmt.Errorf("asm: .library-cell wants exactly one hex operand, got %d", len(inst.Operands))
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(inst.Operands[0], "0x"))
	if err != nil {
		return fmt.Errorf("asm: .library-cell %q: %w", inst.Operands[0], err)
	}
	c, err := fragment.NewLibraryCell(raw)
	if err != nil {
		return err
	}
	return d.WriteCompositeCommand(nil, c, debug.NewNode(), pos)
}

// .inline-computed-cell <name>, <seed> runs the named, previously
// defined fragment as a builder program (fragment.RunComputedCell)
// against a synthetic builder seeded from seed (a "0x"-prefixed or bare
// nibble string) and attaches the frozen result as a bare reference of
// the current cell. Only the computed cell's contents matter, so it
// carries an empty debug node.
func (d *driver) directiveInlineComputedCell(inst lexer.Instruction, pos debug.Pos) error {
	if len(inst.Operands) != 2 {
		return fmt.Errorf("asm: .inline-computed-cell wants exactly two operands (name, seed), got %d", len(inst.Operands))
	}
	if len(inst.Blocks) != 0 {
		return fmt.Errorf("asm: .inline-computed-cell takes no { } blocks, got %d", len(inst.Blocks))
	}
	name := inst.Operands[0]
	f, err := d.fragments.Lookup(name)
	if err != nil {
		return err
	}
	seed, seedBits, err := decodeNibbleSeed(inst.Operands[1])
	if err != nil {
		return fmt.Errorf("asm: .inline-computed-cell %s: %w", name, err)
	}
	c, err := fragment.RunComputedCell(seed, seedBits, f.Ops)
	if err != nil {
		return err
	}
	return d.WriteCompositeCommand(nil, c, debug.NewShapeNode(c), pos)
}

// decodeNibbleSeed parses a "0x"-prefixed (or bare) hex string into its
// raw nibble bit count and zero-padded bytes, without the implicit
// terminator bit ParseSliceBits adds for slice literals: a computed
// cell's seed is exact payload, not a truncatable dictionary key.
func decodeNibbleSeed(s string) ([]byte, int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, 0, nil
	}
	bits := make([]byte, 0, len(s)*4)
	for _, r := range s {
		v, err := hexNibble(r)
		if err != nil {
			return nil, 0, err
		}
		for i := 3; i >= 0; i-- {
			bits = append(bits, byte((v>>uint(i))&1))
		}
	}
	return fragment.PackBits(bits), len(bits), nil
}

func hexNibble(r rune) (int, error) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), nil
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10, nil
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", r)
	}
}

func parseDecimal(s string) (int, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("empty integer")
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid digit %q", r)
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}
