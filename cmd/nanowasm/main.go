// Command nanowasm loads a WebAssembly binary and runs its _start export.
// It is a thin collaborator around the library, not part of the core's
// contract (§1) — logging, colorized trap output, and flag parsing all
// live here, never inside internal/ or api.
package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nanowasm/nanowasm/cmd/nanowasm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logrus.WithError(err).Error("nanowasm: fatal")
		os.Exit(1)
	}
}
