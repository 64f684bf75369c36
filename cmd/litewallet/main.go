// Main entry point for the light wallet CLI
package main

import (
	"context"
	"os"

	"github.com/spectrum-chain/litewallet/core/cli"
)

// Version information
const (
	Version = "1.0.0"
)

func main() {
	if err := cli.NewCLI(Version).Run(context.Background(), os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
