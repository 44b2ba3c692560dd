package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacesedan/moodjournal/config"
	"github.com/spacesedan/moodjournal/internal/logging"
)

func main() {
	config.LoadEnv(config.AppEnv())
	logging.InitLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("[Main] Command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
