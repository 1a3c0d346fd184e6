package config

import (
	"log/slog"

	"github.com/knadh/koanf/providers/file"
)

// Watcher re-reads the config file whenever it changes on disk.
type Watcher struct {
	path   string
	file   *file.File
	logger *slog.Logger
}

func NewWatcher(path string, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:   path,
		file:   file.Provider(path),
		logger: logger,
	}
}

// Watch calls onChange with each successfully reloaded config. Invalid
// edits are logged and skipped.
func (w *Watcher) Watch(onChange func(*Config)) error {
	return w.file.Watch(func(event any, err error) {
		if err != nil {
			w.logger.Warn("config watch failed", "path", w.path, "error", err)
			return
		}

		cfg, err := Load(w.path)
		if err != nil {
			w.logger.Warn("config reload rejected", "path", w.path, "error", err)
			return
		}

		w.logger.Info("config reloaded", "path", w.path)
		onChange(cfg)
	})
}

func (w *Watcher) Close() error {
	return w.file.Unwatch()
}
