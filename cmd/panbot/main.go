// Package main is the command line of the pan tracking robot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyber-run/OpenMV-H7/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args, logging.NewLogger("panbot"))
	stop()
	os.Exit(code)
}

// runMain runs the app and returns the process exit code, logging the error that ended it.
func runMain(ctx context.Context, args []string, logger logging.Logger) int {
	err := newApp().RunContext(ctx, args)
	if err == nil {
		return 0
	}
	logger.Errorw("exiting", "error", err)
	//nolint:errcheck
	_ = logger.Sync()
	return 1
}
