// Package main is pipelinectl, an operator CLI for the dispatch pipeline: it
// reads stored records, peeks at the failure queue and runs the whole
// pipeline in one process for local development.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
