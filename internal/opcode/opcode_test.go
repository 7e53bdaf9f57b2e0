package opcode_test

import (
	"testing"

	"github.com/mbarlow/cellasm/internal/opcode"
	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/mbarlow/cellasm/pkg/debug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEmitter captures WriteCommand/WriteCompositeCommand calls
// without building real cells, enough to assert handlers request the
// right opcode bytes.
type recordingEmitter struct {
	commands   [][]byte
	refCounts  []int
	nodes      []*debug.Node
	composites [][]byte
	blocks     func(lines []debug.Line) (*cell.Cell, *debug.Node, error)
}

func (r *recordingEmitter) WriteCommand(op []byte, node *debug.Node) error {
	return r.WriteCommandWithRefs(op, nil, node)
}

func (r *recordingEmitter) WriteCommandWithRefs(op []byte, refs []*cell.Cell, node *debug.Node) error {
	r.commands = append(r.commands, append([]byte(nil), op...))
	r.refCounts = append(r.refCounts, len(refs))
	r.nodes = append(r.nodes, node)
	return nil
}

func (r *recordingEmitter) WriteCompositeCommand(op []byte, _ *cell.Cell, _ *debug.Node, _ debug.Pos) error {
	r.composites = append(r.composites, append([]byte(nil), op...))
	return nil
}

func (r *recordingEmitter) CompileBlock(lines []debug.Line) (*cell.Cell, *debug.Node, error) {
	return r.blocks(lines)
}

func leafBlock() (*cell.Cell, *debug.Node, error) {
	c := cell.NewBuilder().Finalize()
	return c, debug.NewNode(), nil
}

// builtBlock returns a CompileBlock stub yielding a cell with the given
// payload bytes and one leaf reference per refs.
func builtBlock(t *testing.T, payload []byte, refs int) func([]debug.Line) (*cell.Cell, *debug.Node, error) {
	t.Helper()
	return func([]debug.Line) (*cell.Cell, *debug.Node, error) {
		b := cell.NewBuilder()
		require.NoError(t, b.AppendBytes(payload))
		n := debug.NewNodeFrom(debug.NewPos("t", 2))
		for i := 0; i < refs; i++ {
			require.NoError(t, b.AppendReference(cell.NewBuilder().Finalize()))
			require.NoError(t, n.AppendNode(debug.NewNode()))
		}
		return b.Finalize(), n, nil
	}
}

func TestNOPEmitsSingleZeroByte(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, ok := reg.Lookup("nop")
	require.True(t, ok)

	e := &recordingEmitter{}
	require.NoError(t, h(e, opcode.Args{Mnemonic: "NOP", Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0x00}}, e.commands)
}

func TestBuilderPrimitiveOpcodes(t *testing.T) {
	cases := []struct {
		mnemonic string
		want     []byte
	}{
		{"NEWC", []byte{0xC8}},
		{"ENDC", []byte{0xC9}},
		{"STREF", []byte{0xCC}},
		{"STZERO", []byte{0xCF, 0x81}},
		{"STONE", []byte{0xCF, 0x93}},
	}
	reg := opcode.NewDefaultRegistry()
	for _, tc := range cases {
		h, ok := reg.Lookup(tc.mnemonic)
		require.True(t, ok, tc.mnemonic)
		e := &recordingEmitter{}
		require.NoError(t, h(e, opcode.Args{Mnemonic: tc.mnemonic, Pos: debug.NewPos("t", 1)}))
		assert.Equal(t, [][]byte{tc.want}, e.commands, tc.mnemonic)
	}
}

func TestPUSHINTTinyForm(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHINT")
	e := &recordingEmitter{}
	require.NoError(t, h(e, opcode.Args{Operands: []string{"7"}, Pos: debug.NewPos("t", 1)}))
	require.NoError(t, h(e, opcode.Args{Operands: []string{"-5"}, Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0x77}, {0x7B}}, e.commands)
}

func TestPUSHINTByteForm(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHINT")
	e := &recordingEmitter{}
	require.NoError(t, h(e, opcode.Args{Operands: []string{"15"}, Pos: debug.NewPos("t", 1)}))
	require.NoError(t, h(e, opcode.Args{Operands: []string{"-100"}, Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0x80, 0x0F}, {0x80, 0x9C}}, e.commands)
}

func TestPUSHINTShortForm(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHINT")
	e := &recordingEmitter{}
	require.NoError(t, h(e, opcode.Args{Operands: []string{"1000"}, Pos: debug.NewPos("t", 1)}))
	require.NoError(t, h(e, opcode.Args{Operands: []string{"-1000"}, Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0x81, 0x03, 0xE8}, {0x81, 0xFC, 0x18}}, e.commands)
}

func TestPUSHINTBigForm(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHINT")
	e := &recordingEmitter{}
	require.NoError(t, h(e, opcode.Args{Operands: []string{"12345678"}, Pos: debug.NewPos("t", 1)}))
	require.Len(t, e.commands, 1)
	assert.Equal(t, byte(0x82), e.commands[0][0])
	assert.Equal(t, []byte{0x08, 0xBC, 0x61, 0x4E}, e.commands[0][1:])
}

func TestTHROWEncodesOperandAsTrailingByte(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("THROW")
	e := &recordingEmitter{}
	require.NoError(t, h(e, opcode.Args{Operands: []string{"100"}, Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0xF2, 0xC0, 0x64}}, e.commands)
}

func TestCALLREFOpcodeAndBlockCount(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("CALLREF")
	e := &recordingEmitter{blocks: func([]debug.Line) (*cell.Cell, *debug.Node, error) { return leafBlock() }}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}}, Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0xDB, 0x3C}}, e.composites)
}

func TestPUSHCONTShortInlineForm(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHCONT")
	e := &recordingEmitter{blocks: builtBlock(t, []byte{0x00}, 0)}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}}, Pos: debug.NewPos("t", 1)}))

	// One NOP body, no references: header 0x90|1 then the body byte.
	require.Len(t, e.commands, 1)
	assert.Equal(t, []byte{0x91, 0x00}, e.commands[0])
	assert.Equal(t, 0, e.refCounts[0])

	// The instruction's own position at 0, the body's shifted past the
	// 8-bit header.
	offsets := e.nodes[0].Offsets()
	assert.Equal(t, debug.NewPos("t", 1), offsets[0])
	assert.Equal(t, debug.NewPos("t", 2), offsets[8])
}

func TestPUSHCONTInlineFormWithReference(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHCONT")
	e := &recordingEmitter{blocks: builtBlock(t, []byte{0x00, 0xDB, 0x3C}, 1)}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}}, Pos: debug.NewPos("t", 1)}))

	// r=1, l=3: two header bytes 0x8E 0x83 then the body bytes, with
	// the body's single reference absorbed into the current cell.
	require.Len(t, e.commands, 1)
	assert.Equal(t, []byte{0x8E, 0x83, 0x00, 0xDB, 0x3C}, e.commands[0])
	assert.Equal(t, 1, e.refCounts[0])
	require.Len(t, e.nodes[0].Children(), 1)

	offsets := e.nodes[0].Offsets()
	assert.Equal(t, debug.NewPos("t", 1), offsets[0])
	assert.Equal(t, debug.NewPos("t", 2), offsets[16])
}

func TestPUSHCONTLongInlineFormBoundary(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHCONT")
	big := make([]byte, 125) // the largest body header+body can fit in one cell
	e := &recordingEmitter{blocks: builtBlock(t, big, 0)}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}}, Pos: debug.NewPos("t", 1)}))
	require.Len(t, e.commands, 1)
	assert.Equal(t, []byte{0x8E, 0x7D}, e.commands[0][:2])
	assert.Len(t, e.commands[0], 127)
}

func TestPUSHCONTFallsBackToReferenceForm(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHCONT")

	// Four references exceed what the inline header's 2-bit field can
	// carry, so the body goes by reference.
	e := &recordingEmitter{blocks: builtBlock(t, []byte{0x00}, 4)}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}}, Pos: debug.NewPos("t", 1)}))
	assert.Empty(t, e.commands)
	assert.Equal(t, [][]byte{{0x8A}}, e.composites)

	// So does a body one byte past the single-cell inline budget.
	e = &recordingEmitter{blocks: builtBlock(t, make([]byte, 126), 0)}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}}, Pos: debug.NewPos("t", 1)}))
	assert.Empty(t, e.commands)
	assert.Equal(t, [][]byte{{0x8A}}, e.composites)
}

func TestIFREFELSEREFEmitsTwoComposites(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("IFREFELSEREF")
	e := &recordingEmitter{blocks: func([]debug.Line) (*cell.Cell, *debug.Node, error) { return leafBlock() }}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}, {}}, Pos: debug.NewPos("t", 1)}))
	require.Len(t, e.composites, 2)
	assert.Equal(t, []byte{0xE3, 0x0F}, e.composites[0])
	assert.Nil(t, e.composites[1])
}

func TestPUSHSLICEShortFormWithImplicitTerminator(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHSLICE")
	e := &recordingEmitter{}
	require.NoError(t, h(e, opcode.Args{Operands: []string{"x5"}, Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0x8B, 0x15, 0x80}}, e.commands)
}

func TestPUSHSLICEShortFormSuppressedTerminator(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHSLICE")
	e := &recordingEmitter{}
	require.NoError(t, h(e, opcode.Args{Operands: []string{"x5_"}, Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0x8B, 0x05}}, e.commands)
}

func TestIFREFEmitsSingleComposite(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("IFREF")
	e := &recordingEmitter{blocks: func([]debug.Line) (*cell.Cell, *debug.Node, error) { return leafBlock() }}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}}, Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0xE3, 0x00}}, e.composites)
}

func TestIFELSETakesNoBlocksAndEmitsPlainCommand(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("IFELSE")
	e := &recordingEmitter{}
	require.NoError(t, h(e, opcode.Args{Pos: debug.NewPos("t", 1)}))
	assert.Equal(t, [][]byte{{0xE2}}, e.commands)

	err := h(e, opcode.Args{Blocks: [][]debug.Line{{}}, Pos: debug.NewPos("t", 1)})
	assert.Error(t, err)
}

func TestIFELSEREFEmitsTwoComposites(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("IFELSEREF")
	e := &recordingEmitter{blocks: func([]debug.Line) (*cell.Cell, *debug.Node, error) { return leafBlock() }}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}, {}}, Pos: debug.NewPos("t", 1)}))
	require.Len(t, e.composites, 2)
	assert.Equal(t, []byte{0xE3, 0x0E}, e.composites[0])
	assert.Nil(t, e.composites[1])
}

func TestIFREFELSEEmitsTwoComposites(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("IFREFELSE")
	e := &recordingEmitter{blocks: func([]debug.Line) (*cell.Cell, *debug.Node, error) { return leafBlock() }}
	require.NoError(t, h(e, opcode.Args{Blocks: [][]debug.Line{{}, {}}, Pos: debug.NewPos("t", 1)}))
	require.Len(t, e.composites, 2)
	assert.Equal(t, []byte{0xE3, 0x0D}, e.composites[0])
	assert.Nil(t, e.composites[1])
}

func TestPUSHINTRejectsWrongOperandCount(t *testing.T) {
	reg := opcode.NewDefaultRegistry()
	h, _ := reg.Lookup("PUSHINT")
	e := &recordingEmitter{}
	err := h(e, opcode.Args{Operands: []string{}, Pos: debug.NewPos("t", 1)})
	assert.Error(t, err)
}
