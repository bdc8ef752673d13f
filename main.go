// Package main is the entry point of the triage CLI.
package main

import (
	"fmt"
	"os"

	"triage/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
