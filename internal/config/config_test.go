package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgfilter/internal/model"
)

const sample = `
server:
  port: ":9090"
filter:
  concurrency: 2
  filter_strictness: 75
  logging: true
  dispatch_timeout: 15s
model:
  endpoint: http://inference:8501
  unsafe_classes: [Porn]
queue:
  brokers: [kafka-1:9092, kafka-2:9092]
scraper:
  feeds: [https://example.com/feed.xml]
  interval: 1m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Filter.Concurrency)
	assert.Equal(t, 75.0, cfg.Filter.FilterStrictness)
	assert.True(t, cfg.Filter.Logging)
	assert.Equal(t, 15*time.Second, cfg.Filter.DispatchTimeout)
	assert.Equal(t, 1024, cfg.Filter.EndedSessionMemory, "default kept")
	assert.Equal(t, "http://inference:8501", cfg.Model.Endpoint)
	assert.Equal(t, []string{"Porn"}, cfg.Model.UnsafeClasses)
	assert.Equal(t, 30*time.Second, cfg.Model.Timeout, "default kept")
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Queue.Brokers)
	assert.Equal(t, "imgfilter.requests", cfg.Queue.RequestTopic)
	assert.Equal(t, time.Minute, cfg.Scraper.Interval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("IMGFILTER_FILTER__CONCURRENCY", "9")
	t.Setenv("IMGFILTER_FILTER__FILTER_STRICTNESS", "0")
	t.Setenv("IMGFILTER_STORAGE__DSN", "postgres://localhost/imgfilter")
	t.Setenv("IMGFILTER_NOTIFIER__TELEGRAM_CHAT_IDS", "1,2")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Filter.Concurrency)
	assert.Equal(t, 0.0, cfg.Filter.FilterStrictness)
	assert.Equal(t, "postgres://localhost/imgfilter", cfg.Storage.DSN)
	assert.Equal(t, []string{"1", "2"}, cfg.Notifier.TelegramChatIDs)
}

func TestLoadEnvKeepsCommasInScalars(t *testing.T) {
	dsn := "postgres://localhost/imgfilter?options=-c%20search_path=a,b"
	t.Setenv("IMGFILTER_STORAGE__DSN", dsn)
	t.Setenv("IMGFILTER_SCRAPER__FEEDS", "https://a.example/rss,https://b.example/rss")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, dsn, cfg.Storage.DSN)
	assert.Equal(t, []string{"https://a.example/rss", "https://b.example/rss"}, cfg.Scraper.Feeds)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default().Filter, cfg.Filter)
	assert.Equal(t, model.DefaultUnsafeClasses, cfg.Model.UnsafeClasses)
}

func TestLoadRejectsInvalidFilter(t *testing.T) {
	_, err := Load(writeConfig(t, "filter:\n  concurrency: 0\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "filter:\n  filter_strictness: 140\n"))
	assert.ErrorIs(t, err, model.ErrInvalidStrictness)
}

func TestWatcherReloads(t *testing.T) {
	path := writeConfig(t, sample)

	w := NewWatcher(path, discardLogger())
	var got atomic.Pointer[Config]
	require.NoError(t, w.Watch(func(cfg *Config) { got.Store(cfg) }))
	defer w.Close()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("filter:\n  concurrency: 7\n"), 0o644))

	require.Eventually(t, func() bool {
		cfg := got.Load()
		return cfg != nil && cfg.Filter.Concurrency == 7
	}, 5*time.Second, 10*time.Millisecond)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
