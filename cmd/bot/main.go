package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"task_tracker/internal/bot"
	"task_tracker/internal/config"
	"task_tracker/internal/logger"
)

func main() {
	cfg := config.LoadBot()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	b, err := bot.NewLinkBot(cfg.BotToken, cfg.ConfirmURL, cfg.RequestLimit)
	if err != nil {
		logger.Fatal("failed to start link bot", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go b.Start()
	logger.Info("link bot running", "confirm_url", cfg.ConfirmURL)

	<-ctx.Done()
	b.Stop()
}
