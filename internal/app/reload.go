package app

import (
	"context"
	"log/slog"
	"sync"

	"imgfilter/internal/config"
	"imgfilter/internal/domain"
	"imgfilter/internal/redis"
	"imgfilter/internal/settings"
)

// filterReloader pushes edits of the config file's filter section through
// the bridge. Only fields that changed in the file since the last load are
// applied, so values set at runtime through the API or Redis survive
// unrelated edits.
type filterReloader struct {
	mu     sync.Mutex
	last   domain.Settings
	bridge *settings.Bridge
	store  *redis.SettingsStore
	logger *slog.Logger
}

func newFilterReloader(initial domain.Settings, bridge *settings.Bridge, store *redis.SettingsStore, logger *slog.Logger) *filterReloader {
	return &filterReloader{
		last:   initial,
		bridge: bridge,
		store:  store,
		logger: logger,
	}
}

func (r *filterReloader) reload(ctx context.Context, c *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := c.Filter.Settings()
	u := next.Diff(r.last)
	r.last = next
	if u.Empty() {
		return
	}

	st, err := r.bridge.Apply(u)
	if err != nil {
		r.logger.Warn("reloaded settings rejected", "error", err)
		return
	}

	if r.store != nil {
		if err := r.store.Publish(ctx, st); err != nil {
			r.logger.Error("publish settings", "error", err)
		}
	}
}
