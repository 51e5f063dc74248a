package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/cmd"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/exitcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		fmt.Fprintln(os.Stderr, "\nOperation cancelled")
		stop()
		exitcode.Exit(exitcode.Interrupted)
	}

	code := exitcode.DetermineExitCode(err)
	fmt.Fprintf(os.Stderr, "Error: %v\n%s (exit %d)\n", err, exitcode.Description(code), code)
	stop()
	exitcode.ExitWithError(err)
}
