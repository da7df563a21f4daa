// Package cli wires the nanowasm command-line tool: a cobra command tree
// over the nanowasm package, with logrus for structured startup/trap
// logging and fatih/color for highlighting trap output at a terminal.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "nanowasm",
	Short: "A minimal WebAssembly v1 interpreter",
	Long: `nanowasm loads a .wasm binary, instantiates it, and calls an exported
function. run wires a small WASI fd_write surface to stdout/stderr and
calls _start; call instantiates without WASI.

Examples:
  nanowasm run ./hello.wasm
  nanowasm call ./math.wasm add 2 3`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(runCmd, callCmd)
}
