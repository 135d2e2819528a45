package main

import (
	"fmt"
	"os"

	"github.com/roach88/mapsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mapsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
