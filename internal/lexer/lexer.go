// Package lexer tokenizes assembler source text into mnemonic
// instructions and brace-delimited nested blocks, tagging each
// instruction with the Position of the source line its mnemonic token
// started on — including when an instruction's operands spill across
// several physical lines, in which case the mnemonic's own line wins.
package lexer

import (
	"fmt"
	"strings"

	"github.com/mbarlow/cellasm/pkg/debug"
)

// Position locates a token in source text: 1-based line and column,
// plus the originating filename. Distinct from debug.Pos: Position is
// the lexer-facing, pre-compile form; debug.Pos is what ends up
// attached to emitted bits.
type Position struct {
	Filename string
	Line     int
	Column   int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// Instruction is one parsed mnemonic occurrence: its operand text
// (everything between the mnemonic and the next `;`, `{`, or end of
// statement, whitespace/comma-split) and any immediately following
// brace-delimited nested blocks, recursively tokenized.
type Instruction struct {
	Mnemonic string
	Operands []string
	Blocks   [][]Instruction
	Pos      Position
}

// Lex tokenizes src (the full text of a unit, comment-and-blank-line
// aware) into a flat top-level instruction list with nested blocks
// attached to their owning instruction.
func Lex(filename, src string) ([]Instruction, error) {
	return lexLines(splitLines(filename, src))
}

// LexLines tokenizes pre-positioned source lines, preserving each
// line's own filename and line number. This is how nested `{ ... }`
// blocks re-enter the lexer without losing their absolute positions in
// the enclosing file: the driver hands back the block's lines tagged
// with the positions they were first lexed at.
func LexLines(lines []debug.Line) ([]Instruction, error) {
	in := make([]line, len(lines))
	for i, l := range lines {
		in[i] = line{text: l.Text, filename: l.Pos.Filename, number: l.Pos.Line}
	}
	return lexLines(in)
}

func lexLines(lines []line) ([]Instruction, error) {
	toks, err := tokenize(lines)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseBlock()
}

type line struct {
	text     string
	filename string
	number   int // 1-based
}

func splitLines(filename, src string) []line {
	raw := strings.Split(src, "\n")
	out := make([]line, len(raw))
	for i, t := range raw {
		out[i] = line{text: t, filename: filename, number: i + 1}
	}
	return out
}

// rawToken is a single lexical atom: a bare word, or one of `{`/`}`.
type rawToken struct {
	text string
	pos  Position
}

// tokenize strips `;`-to-end-of-line comments, splits on whitespace,
// and treats `{`/`}` as standalone tokens even when not
// whitespace-separated from their neighbours.
func tokenize(lines []line) ([]rawToken, error) {
	var out []rawToken
	for _, ln := range lines {
		text := ln.text
		if idx := strings.IndexByte(text, ';'); idx >= 0 {
			text = text[:idx]
		}
		searchFrom := 0
		for _, word := range splitWords(text) {
			start := searchFrom + strings.Index(text[searchFrom:], word.text)
			col := start + 1
			for _, piece := range splitBraces(word.text) {
				piece = strings.TrimSuffix(piece, ",")
				if piece == "" {
					continue
				}
				out = append(out, rawToken{
					text: piece,
					pos:  Position{Filename: ln.filename, Line: ln.number, Column: col},
				})
			}
			searchFrom = start + len(word.text)
		}
	}
	return out, nil
}

type word struct{ text string }

func splitWords(s string) []word {
	fields := strings.Fields(s)
	out := make([]word, len(fields))
	for i, f := range fields {
		out[i] = word{text: f}
	}
	return out
}

// splitBraces breaks a token like "foo{bar}" or "{" into its
// brace-delimited pieces, since the grammar allows `{`/`}` to abut an
// operand with no intervening space (e.g. `PUSHCONT{` in compact
// source).
func splitBraces(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '}' {
			if i > start {
				out = append(out, s[start:i])
			}
			out = append(out, s[i:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

type parser struct {
	toks []rawToken
	pos  int
}

func (p *parser) peek() (rawToken, bool) {
	if p.pos >= len(p.toks) {
		return rawToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (rawToken, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

// parseBlock parses instructions up to (but not consuming) a closing
// `}`, or to end of input at the top level.
func (p *parser) parseBlock() ([]Instruction, error) {
	var out []Instruction
	for {
		t, ok := p.peek()
		if !ok || t.text == "}" {
			return out, nil
		}
		inst, err := p.parseInstruction()
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
}

func (p *parser) parseInstruction() (Instruction, error) {
	mnemTok, ok := p.next()
	if !ok {
		return Instruction{}, fmt.Errorf("lexer: unexpected end of input")
	}
	inst := Instruction{Mnemonic: mnemTok.text, Pos: mnemTok.pos}

	if strings.HasPrefix(inst.Mnemonic, ".") {
		// Directives (.fragment, .inline, .loc, ...) take
		// identifier-shaped operands too, so they are simply
		// everything else on the directive's own source line.
		for {
			t, ok := p.peek()
			if !ok || t.text == "{" || t.text == "}" || t.pos.Line != mnemTok.pos.Line {
				break
			}
			p.next()
			inst.Operands = append(inst.Operands, t.text)
		}
	} else {
		// Operand tokens are collected by shape, not by source line:
		// this is what lets an operand spill onto the following
		// physical line (`PUSHINT` alone on one line, its value on
		// the next) while still reporting the mnemonic's own line as
		// the instruction's Pos.
		for {
			t, ok := p.peek()
			if !ok || t.text == "{" || t.text == "}" || !isOperandShaped(t.text) {
				break
			}
			p.next()
			inst.Operands = append(inst.Operands, t.text)
		}
	}

	for {
		t, ok := p.peek()
		if !ok || t.text != "{" {
			return inst, nil
		}
		p.next()
		body, err := p.parseBlock()
		if err != nil {
			return Instruction{}, err
		}
		closer, ok := p.next()
		if !ok || closer.text != "}" {
			return Instruction{}, fmt.Errorf("lexer: %s: unterminated block", mnemTok.pos)
		}
		inst.Blocks = append(inst.Blocks, body)
	}
}

// isOperandShaped reports whether s looks like an operand literal
// (decimal integer or hex slice literal) rather than a mnemonic or
// directive keyword.
func isOperandShaped(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '-' {
		i = 1
	}
	if i >= len(s) {
		return false
	}
	if s[i] >= '0' && s[i] <= '9' {
		return true
	}
	return s[i] == 'x'
}
