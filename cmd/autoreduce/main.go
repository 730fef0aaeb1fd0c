package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/autoreduction/autosubmit/cmd/autoreduce/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Errors are already printed by the printer package
	if err := commands.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
