package worker

import (
	"context"
	"log/slog"
	"time"

	"imgfilter/internal/domain"
	"imgfilter/internal/queue"
	"imgfilter/internal/scraper"
)

// Scraper polls every source on an interval and publishes a classify event
// for each image it has not published before.
type Scraper struct {
	scraper   scraper.Scraper
	publisher queue.EventPublisher
	sources   []string
	interval  time.Duration
	seen      map[string]bool
	logger    *slog.Logger
}

func NewScraper(s scraper.Scraper, p queue.EventPublisher, sources []string, interval time.Duration, logger *slog.Logger) *Scraper {
	return &Scraper{
		scraper:   s,
		publisher: p,
		sources:   sources,
		interval:  interval,
		seen:      make(map[string]bool),
		logger:    logger,
	}
}

func (w *Scraper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.scrapeAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scrapeAll(ctx)
		}
	}
}

func (w *Scraper) scrapeAll(ctx context.Context) {
	for _, source := range w.sources {
		requests, err := w.scraper.Scrape(ctx, source)
		if err != nil {
			w.logger.Error("scrape failed", "source", source, "error", err)
			continue
		}

		newCount := 0
		dupCount := 0

		for _, req := range requests {
			if w.seen[req.ID] {
				dupCount++
				continue
			}

			ev := domain.Event{
				Type:      domain.EventClassify,
				ID:        req.ID,
				URL:       req.URL,
				SessionID: req.SessionID,
			}
			if err := w.publisher.PublishEvent(ctx, ev); err != nil {
				w.logger.Error("publish failed", "id", req.ID, "error", err)
				continue
			}
			w.seen[req.ID] = true
			newCount++
			w.logger.Debug("image queued", "source", source, "url", truncate(req.URL, 80))
		}

		w.logger.Info("scrape done", "source", source, "new", newCount, "duplicates", dupCount, "seen_total", len(w.seen))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
