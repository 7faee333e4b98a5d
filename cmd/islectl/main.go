package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pixil98/go-isleborn/cmd/islectl/command"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
