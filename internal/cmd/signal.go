package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// signalContext cancels the returned context on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
