package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/starter/app"
	"github.com/dmitrymomot/starter/core/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx)
	if err != nil {
		slog.Error("failed to initialize application", logger.Error(err))
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		slog.Error("application stopped with error", logger.Error(err))
		os.Exit(1)
	}
}
