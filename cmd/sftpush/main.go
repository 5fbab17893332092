package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"sftpush/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := app.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	if err == nil {
		return
	}
	var exitErr *app.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(1)
}
