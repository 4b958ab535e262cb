package main

import (
	"fmt"
	"os"

	"github.com/platinummonkey/membership/pkg/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	rootCmd := cli.NewRootCommand(app)

	if err := rootCmd.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
