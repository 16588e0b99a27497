package main

import (
	"fmt"
	"os"

	"github.com/Zyzzyva0381/dynamic-diffuser/cmd"
)

// main entry point to the diffuser controller
func main() {
	rootCommand := cmd.GetRootCommand()
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
