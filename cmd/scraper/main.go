package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"imgfilter/internal/config"
	"imgfilter/internal/logging"
	"imgfilter/internal/queue"
	"imgfilter/internal/scraper"
	"imgfilter/internal/worker"
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

	if len(cfg.Scraper.Feeds) == 0 {
		logger.Error("scraper.feeds is empty, nothing to do")
		os.Exit(1)
	}

	publisher, err := queue.NewKafka(cfg.Queue.Brokers, cfg.Queue.RequestTopic)
	if err != nil {
		logger.Error("failed to create queue", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	w := worker.NewScraper(scraper.NewFeed(), publisher, cfg.Scraper.Feeds, cfg.Scraper.Interval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("scraper started", "feeds", len(cfg.Scraper.Feeds), "interval", cfg.Scraper.Interval)
	w.Start(ctx)
	logger.Info("shutting down")
}
