package main

import (
	"github.com/spf13/cobra"
)

// rootCmd is deliberately thin: the CLI promises an exact positional
// argument contract and exit-code table, so argument counting and every
// failure path are handled by runAsm rather than cobra's own Args
// validator and default os.Exit(1)-on-error behavior.
var rootCmd = &cobra.Command{
	Use:   "asm <code_file> [<boc_out> [<dbgmap_out>]]",
	Short: "Compile cell-assembly source into a bag-of-cells program",
	Long: `asm compiles a cell-assembly source file into a compiled bag-of-cells
program and a parallel debug map.

  asm prog.code                 writes prog.boc and prog.dbg.json
  asm prog.code out.boc         writes out.boc and prog.dbg.json
  asm prog.code out.boc out.dbg.json`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsm(cmd, args)
	},
}

func init() {
	rootCmd.Version = "0.1.0"
}
