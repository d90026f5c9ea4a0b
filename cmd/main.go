package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taskflow/internal/apiclient"
	"taskflow/internal/config"
	"taskflow/internal/normalize"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := NewRootCmd(config.Init).ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "error:", describe(err))
		}
		os.Exit(1)
	}
}

// describe returns the short user-facing text for API errors and the error
// itself for everything else (bad flags, unreadable config and so on).
func describe(err error) string {
	var (
		ve    *apiclient.ValidationError
		nf    *apiclient.NotFoundError
		ae    *apiclient.AuthError
		re    *apiclient.RemoteError
		shape *normalize.ShapeError
	)
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &ae) || errors.As(err, &re) || errors.As(err, &shape) {
		return apiclient.UserMessage(err)
	}
	return err.Error()
}
