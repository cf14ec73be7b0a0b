// Package main provides the command-line entry point of the HLA matching engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hla-matching-engine/internal/setup"
)

func main() {
	// Cancel long generations and searches on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := setup.NewCLI(os.Stdout, os.Stderr)
	if err := cli.Run(ctx, os.Args[1:]); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
