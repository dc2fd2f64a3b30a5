package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/eyev0/wakeupbot/internal/app"
	"github.com/eyev0/wakeupbot/internal/config"
	"github.com/eyev0/wakeupbot/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("wakeupbot: config: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString("wakeupbot: logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("init failed", zap.Error(err))
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatal("bot stopped with error", zap.Error(err))
	}
}
