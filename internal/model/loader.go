package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	retry "github.com/sethvargo/go-retry"

	"imgfilter/internal/classifier"
)

// LoadFunc brings up the classifier, e.g. by waiting for the inference
// server to report its weights are loaded.
type LoadFunc func(ctx context.Context) (classifier.Classifier, error)

type LoadOptions struct {
	Attempts      uint64
	Backoff       time.Duration
	Strictness    float64
	UnsafeClasses []string
}

// Load retries load until it succeeds or attempts run out, then wraps the
// classifier in a Model.
func Load(ctx context.Context, load LoadFunc, opts LoadOptions, logger *slog.Logger) (*Model, error) {
	if opts.Attempts == 0 {
		opts.Attempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}

	var (
		c       classifier.Classifier
		attempt int
	)
	b := retry.WithMaxRetries(opts.Attempts-1, retry.NewConstant(opts.Backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		var err error
		c, err = load(ctx)
		if err != nil {
			logger.Warn("model load failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load model after %d attempts: %w", attempt, err)
	}

	logger.Info("model loaded", "attempts", attempt)
	return New(c, opts.Strictness, opts.UnsafeClasses, logger)
}
