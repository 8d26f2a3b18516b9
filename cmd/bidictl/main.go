// Command bidictl talks to WebDriver BiDi remote ends from the shell and can
// run an in-process remote end for local experiments.
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

	gs := newGlobalState(os.Stdout, os.Stderr, os.LookupEnv)
	if err := newRootCommand(gs).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
