package cli

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nanowasm/nanowasm"
	"github.com/nanowasm/nanowasm/imports/wasi_snapshot_preview1"
)

var runCmd = &cobra.Command{
	Use:   "run <module.wasm>",
	Short: "Instantiate a module and call its _start export",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]
	moduleBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	logrus.WithField("module", path).Debug("instantiating")
	handler := wasi_snapshot_preview1.NewHandler(os.Stdout, os.Stderr)
	rt, err := nanowasm.InstantiateWithWASI(moduleBytes, handler)
	if err != nil {
		return err
	}

	if _, err := rt.Call(context.Background(), "_start", nil); err != nil {
		color.Red("trap: %v", err)
		return err
	}
	return nil
}
