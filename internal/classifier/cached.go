package classifier

import (
	"context"
	"log/slog"
	"time"
)

// Cache stores raw predictions by image URL.
type Cache interface {
	GetPredictions(ctx context.Context, url string) (Predictions, bool, error)
	SetPredictions(ctx context.Context, url string, p Predictions, ttl time.Duration) error
}

// Cached serves predictions from cache when present. Cache errors are logged
// and fall through to the wrapped classifier.
type Cached struct {
	inner  Classifier
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCached(inner Classifier, cache Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *Cached) Classify(ctx context.Context, url string) (Predictions, error) {
	p, ok, err := c.cache.GetPredictions(ctx, url)
	if err != nil {
		c.logger.Warn("prediction cache read failed", "url", url, "error", err)
	}
	if ok {
		c.logger.Debug("prediction cache hit", "url", url)
		return p, nil
	}

	p, err = c.inner.Classify(ctx, url)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetPredictions(ctx, url, p, c.ttl); err != nil {
		c.logger.Warn("prediction cache write failed", "url", url, "error", err)
	}
	return p, nil
}
