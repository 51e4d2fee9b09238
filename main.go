// Package main is the entry point for the tsgate transport stream relay.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/tsgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
