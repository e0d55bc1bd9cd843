package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/app"
	"github.com/iliyamo/dose-reminder/internal/config"
	"github.com/iliyamo/dose-reminder/internal/logger"
)

func main() {
	boot, err := logger.New("info")
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	cfg, err := config.Load(boot)
	if err != nil {
		boot.Error("config error", zap.Error(err))
		_ = boot.Sync()
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		boot.Error("logger init error", zap.Error(err))
		_ = boot.Sync()
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("app init failed", zap.Error(err))
	}
	if err := application.Run(ctx); err != nil {
		log.Fatal("app run failed", zap.Error(err))
	}
}
