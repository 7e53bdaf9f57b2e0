package asm

import (
	"errors"
	"fmt"

	"github.com/mbarlow/cellasm/internal/lexer"
)

// ErrUnknownMnemonic is returned when a non-directive token has no
// Handler registered for it.
var ErrUnknownMnemonic = errors.New("asm: unknown mnemonic")

// ErrUnknownDirective is returned for a "."-prefixed token this driver
// does not implement.
var ErrUnknownDirective = errors.New("asm: unknown directive")

// CompileError wraps a compile-time failure with the source Position it
// occurred at; callers use errors.Is/errors.As against the wrapped
// cause.
type CompileError struct {
	Pos lexer.Position
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Pos, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
