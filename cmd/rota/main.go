// Command rota is the fair-rotation assignment engine CLI.
package main

import (
	"os"

	"github.com/hsk98/rota/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Cobra printing is silenced; report once here with the right code.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(cli.GetExitCode(err))
	}
}
