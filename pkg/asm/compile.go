// Package asm is the facade tying internal/lexer, internal/opcode,
// internal/codewriter, and internal/fragment together into the
// assembler's public entry points: CompileCode/CompileCodeDebuggable for
// one-shot use, and Engine/Unit for building several named units that
// share a fragment table.
package asm

import (
	"github.com/mbarlow/cellasm/internal/fragment"
	"github.com/mbarlow/cellasm/internal/lexer"
	"github.com/mbarlow/cellasm/internal/opcode"
	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/mbarlow/cellasm/pkg/debug"
)

// CompileCode compiles text (using "<input>" as its nominal filename)
// into a root Cell, discarding debug information.
func CompileCode(text string) (*cell.Cell, error) {
	c, _, err := compile("<input>", text, opcode.NewDefaultRegistry(), fragment.NewTable())
	return c, err
}

// CompileCodeDebuggable compiles text and additionally returns the
// content-addressed debug map collected from the resulting cell/node
// pair, ready for *.dbg.json serialization.
func CompileCodeDebuggable(text, filename string) (*cell.Cell, *debug.Info, error) {
	c, n, err := compile(filename, text, opcode.NewDefaultRegistry(), fragment.NewTable())
	if err != nil {
		return nil, nil, err
	}
	info, err := debug.Collect(c, n)
	if err != nil {
		return nil, nil, err
	}
	return c, info, nil
}

func compile(filename, text string, registry *opcode.Registry, fragments *fragment.Table) (*cell.Cell, *debug.Node, error) {
	insts, err := lexer.Lex(filename, text)
	if err != nil {
		return nil, nil, err
	}
	d := newDriver(filename, registry, fragments)
	if err := d.run(insts); err != nil {
		return nil, nil, err
	}
	return d.writer.Finalize()
}
