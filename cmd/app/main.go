package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"imgfilter/internal/app"
	"imgfilter/internal/config"
	"imgfilter/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	logger, logs := logging.Configure(false)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logs.SetEnabled(cfg.Filter.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger, logs, app.Options{
		ConfigPath: *configPath,
		HTTP:       true,
		Consumer:   true,
	}); err != nil {
		logger.Error("app stopped", "error", err)
		os.Exit(1)
	}
}
