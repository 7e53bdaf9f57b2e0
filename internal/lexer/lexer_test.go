package lexer_test

import (
	"testing"

	"github.com/mbarlow/cellasm/internal/lexer"
	"github.com/mbarlow/cellasm/pkg/debug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexFlatInstructions(t *testing.T) {
	src := "NOP\nDROP\n"
	insts, err := lexer.Lex("t.code", src)
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "NOP", insts[0].Mnemonic)
	assert.Equal(t, 1, insts[0].Pos.Line)
	assert.Equal(t, "DROP", insts[1].Mnemonic)
	assert.Equal(t, 2, insts[1].Pos.Line)
}

func TestLexOperandOnSameLine(t *testing.T) {
	insts, err := lexer.Lex("t.code", "PUSHINT 7\n")
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, []string{"7"}, insts[0].Operands)
}

func TestLexMultiLineCommentBug(t *testing.T) {
	src := "PUSHINT 7; comment\nPUSHINT\n 15\nDROP; tail\n"
	insts, err := lexer.Lex("t.code", src)
	require.NoError(t, err)
	require.Len(t, insts, 3)

	assert.Equal(t, "PUSHINT", insts[0].Mnemonic)
	assert.Equal(t, []string{"7"}, insts[0].Operands)
	assert.Equal(t, 1, insts[0].Pos.Line)

	assert.Equal(t, "PUSHINT", insts[1].Mnemonic)
	assert.Equal(t, []string{"15"}, insts[1].Operands)
	assert.Equal(t, 2, insts[1].Pos.Line, "mnemonic's own line wins even though the operand is on the next line")

	assert.Equal(t, "DROP", insts[2].Mnemonic)
	assert.Equal(t, 4, insts[2].Pos.Line)
}

func TestLexNestedBlocks(t *testing.T) {
	src := "NOP\nPUSHCONT {\n    NOP\n    CALLREF {\n        NOP\n    }\n}\n"
	insts, err := lexer.Lex("t.code", src)
	require.NoError(t, err)
	require.Len(t, insts, 2)

	assert.Equal(t, "NOP", insts[0].Mnemonic)
	assert.Equal(t, 1, insts[0].Pos.Line)

	pc := insts[1]
	assert.Equal(t, "PUSHCONT", pc.Mnemonic)
	assert.Equal(t, 2, pc.Pos.Line)
	require.Len(t, pc.Blocks, 1)
	require.Len(t, pc.Blocks[0], 2)
	assert.Equal(t, "NOP", pc.Blocks[0][0].Mnemonic)
	assert.Equal(t, "CALLREF", pc.Blocks[0][1].Mnemonic)
	require.Len(t, pc.Blocks[0][1].Blocks, 1)
	require.Len(t, pc.Blocks[0][1].Blocks[0], 1)
	assert.Equal(t, "NOP", pc.Blocks[0][1].Blocks[0][0].Mnemonic)
}

func TestLexTwoBlockInstruction(t *testing.T) {
	src := "IFREFELSEREF {\n    THROW 100\n} {\n    THROW 200\n}\n"
	insts, err := lexer.Lex("t.code", src)
	require.NoError(t, err)
	require.Len(t, insts, 1)
	require.Len(t, insts[0].Blocks, 2)
	assert.Equal(t, "THROW", insts[0].Blocks[0][0].Mnemonic)
	assert.Equal(t, "THROW", insts[0].Blocks[1][0].Mnemonic)
}

func TestLexDirectiveWithIdentifierOperands(t *testing.T) {
	insts, err := lexer.Lex("t.code", ".inline-computed-cell foo, 0x0\n")
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, ".inline-computed-cell", insts[0].Mnemonic)
	assert.Equal(t, []string{"foo", "0x0"}, insts[0].Operands)
}

func TestLexLinesKeepsAbsolutePositions(t *testing.T) {
	// A re-lexed block body keeps the line numbers (and filename) the
	// lines carried in the enclosing file, not a fresh 1-based count.
	lines := []debug.Line{
		{Text: "NOP", Pos: debug.NewPos("outer.code", 3)},
		{Text: "DROP", Pos: debug.NewPos("outer.code", 5)},
	}
	insts, err := lexer.LexLines(lines)
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "outer.code", insts[0].Pos.Filename)
	assert.Equal(t, 3, insts[0].Pos.Line)
	assert.Equal(t, 5, insts[1].Pos.Line)
}

func TestLexHexSliceLiteralOperand(t *testing.T) {
	insts, err := lexer.Lex("t.code", "PUSHSLICE x5_\n")
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, []string{"x5_"}, insts[0].Operands)
}
