package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nanowasm/nanowasm"
	"github.com/nanowasm/nanowasm/api"
)

var callCmd = &cobra.Command{
	Use:   "call <module.wasm> <function> [args...]",
	Short: "Instantiate a module and call one exported function with i32 arguments",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	path, fn, rest := args[0], args[1], args[2:]

	moduleBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	values := make([]api.Value, len(rest))
	for i, s := range rest {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return fmt.Errorf("argument %d (%q): %w", i, s, err)
		}
		values[i] = api.I32(int32(n))
	}

	rt, err := nanowasm.Instantiate(moduleBytes)
	if err != nil {
		return err
	}

	result, err := rt.Call(context.Background(), fn, values)
	if err != nil {
		color.Red("trap: %v", err)
		return err
	}
	if result != nil {
		fmt.Println(result.String())
	}
	return nil
}
