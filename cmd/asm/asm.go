package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mbarlow/cellasm/internal/boc"
	"github.com/mbarlow/cellasm/internal/srcmap"
	"github.com/mbarlow/cellasm/internal/writer"
	"github.com/mbarlow/cellasm/pkg/asm"
	"github.com/spf13/cobra"
)

// runAsm implements the whole `asm <code_file> [<boc_out> [<dbgmap_out>]]`
// contract: read the source, compile it, and write the two output
// artifacts, returning a sentinel-wrapped error identifying which stage
// failed so main can translate it to the documented exit code table.
func runAsm(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return ErrUsage
	}
	if len(args) > 3 {
		return ErrExtraArgs
	}

	codePath := args[0]
	bocPath := defaultOutputPath(codePath, ".boc")
	if len(args) >= 2 {
		bocPath = args[1]
	}
	dbgPath := defaultOutputPath(codePath, ".dbg.json")
	if len(args) >= 3 {
		dbgPath = args[2]
	}

	data, cleanup, err := srcmap.Map(codePath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReadSource, codePath, err)
	}
	defer cleanup()

	root, info, err := asm.CompileCodeDebuggable(string(data), codePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCompile, err)
	}

	var bocBuf bytes.Buffer
	if err := boc.Write(&bocBuf, root); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteBoc, err)
	}
	if err := (&writer.FileWriter{Path: bocPath}).Write(bocBuf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteBoc, err)
	}

	dbgData, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteDbg, err)
	}
	if err := (&writer.FileWriter{Path: dbgPath}).Write(dbgData); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteDbg, err)
	}

	cmd.Printf("wrote %s and %s\n", bocPath, dbgPath)
	return nil
}

// defaultOutputPath swaps codePath's extension for suffix, e.g.
// "prog.code" -> "prog.boc" / "prog.dbg.json".
func defaultOutputPath(codePath, suffix string) string {
	base := strings.TrimSuffix(codePath, filepath.Ext(codePath))
	return base + suffix
}
