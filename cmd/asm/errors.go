package main

import "errors"

// Sentinel causes mapped to the command's fixed exit codes: 1 usage,
// 2 extra arguments, 3 read error, 4 compile error, 5 BoC write error,
// 6 debug-map write error. Mirrors pkg/asm's own sentinel-error style.
var (
	ErrUsage      = errors.New("asm: usage: asm <code_file> [<boc_out> [<dbgmap_out>]]")
	ErrExtraArgs  = errors.New("asm: too many arguments")
	ErrReadSource = errors.New("asm: reading source file")
	ErrCompile    = errors.New("asm: compile error")
	ErrWriteBoc   = errors.New("asm: writing bag-of-cells output")
	ErrWriteDbg   = errors.New("asm: writing debug map output")
)

// exitCode maps a runAsm error to its documented numeric exit code.
// Any non-nil error not matching a known sentinel (defensive only; every
// path runAsm can take wraps one of the above) falls back to 1.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 1
	case errors.Is(err, ErrExtraArgs):
		return 2
	case errors.Is(err, ErrReadSource):
		return 3
	case errors.Is(err, ErrCompile):
		return 4
	case errors.Is(err, ErrWriteBoc):
		return 5
	case errors.Is(err, ErrWriteDbg):
		return 6
	default:
		return 1
	}
}
