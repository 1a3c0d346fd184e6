package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"imgfilter/internal/domain"
	"imgfilter/internal/model"
	"imgfilter/internal/settings"
)

const EnvPrefix = "IMGFILTER_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Filter   FilterConfig   `koanf:"filter"`
	Model    ModelConfig    `koanf:"model"`
	Cache    CacheConfig    `koanf:"cache"`
	Redis    RedisConfig    `koanf:"redis"`
	Queue    QueueConfig    `koanf:"queue"`
	Storage  StorageConfig  `koanf:"storage"`
	Notifier NotifierConfig `koanf:"notifier"`
	Scraper  ScraperConfig  `koanf:"scraper"`
}

type ServerConfig struct {
	Port string `koanf:"port"`
}

// FilterConfig holds the live-tunable settings plus scheduler limits that
// only take effect at startup.
type FilterConfig struct {
	Concurrency        int           `koanf:"concurrency"`
	FilterStrictness   float64       `koanf:"filter_strictness"`
	Logging            bool          `koanf:"logging"`
	DispatchTimeout    time.Duration `koanf:"dispatch_timeout"`
	EndedSessionMemory int           `koanf:"ended_session_memory"`
}

func (f FilterConfig) Settings() domain.Settings {
	return domain.Settings{
		Concurrency:      f.Concurrency,
		FilterStrictness: f.FilterStrictness,
		Logging:          f.Logging,
	}
}

type ModelConfig struct {
	Endpoint      string        `koanf:"endpoint"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxImageBytes int64         `koanf:"max_image_bytes"`
	UnsafeClasses []string      `koanf:"unsafe_classes"`
	LoadAttempts  uint64        `koanf:"load_attempts"`
	LoadBackoff   time.Duration `koanf:"load_backoff"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type RedisConfig struct {
	Addr            string `koanf:"addr"`
	SettingsKey     string `koanf:"settings_key"`
	SettingsChannel string `koanf:"settings_channel"`
}

type QueueConfig struct {
	Brokers      []string `koanf:"brokers"`
	RequestTopic string   `koanf:"request_topic"`
	VerdictTopic string   `koanf:"verdict_topic"`
	GroupID      string   `koanf:"group_id"`
}

type StorageConfig struct {
	DSN string `koanf:"dsn"`
}

type NotifierConfig struct {
	TelegramToken   string   `koanf:"telegram_token"`
	TelegramChatIDs []string `koanf:"telegram_chat_ids"`
}

type ScraperConfig struct {
	Feeds    []string      `koanf:"feeds"`
	Interval time.Duration `koanf:"interval"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: ":8080"},
		Filter: FilterConfig{
			Concurrency:        4,
			FilterStrictness:   90,
			EndedSessionMemory: 1024,
		},
		Model: ModelConfig{
			Endpoint:      "http://localhost:8501",
			Timeout:       30 * time.Second,
			MaxImageBytes: 10 << 20,
			LoadAttempts:  5,
			LoadBackoff:   200 * time.Millisecond,
		},
		Redis: RedisConfig{
			SettingsKey:     "imgfilter:settings",
			SettingsChannel: "imgfilter:settings:updates",
		},
		Queue: QueueConfig{
			RequestTopic: "imgfilter.requests",
			VerdictTopic: "imgfilter.verdicts",
			GroupID:      "imgfilter",
		},
		Scraper: ScraperConfig{Interval: 5 * time.Minute},
	}
}

// Load reads path (a missing file is fine) and overlays IMGFILTER_*
// environment variables, where "__" separates nested keys:
// IMGFILTER_FILTER__CONCURRENCY=8.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", transformEnv), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	if len(cfg.Model.UnsafeClasses) == 0 {
		cfg.Model.UnsafeClasses = model.DefaultUnsafeClasses
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// listKeys are the settings whose environment values are comma separated.
var listKeys = map[string]bool{
	"queue.brokers":              true,
	"scraper.feeds":              true,
	"model.unsafe_classes":       true,
	"notifier.telegram_chat_ids": true,
}

func transformEnv(k, v string) (string, any) {
	k = strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	k = strings.ReplaceAll(k, "__", ".")
	if listKeys[k] {
		return k, strings.Split(v, ",")
	}
	return k, v
}

func (c *Config) Validate() error {
	if err := settings.Validate(c.Filter.Settings()); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if c.Filter.DispatchTimeout < 0 {
		return fmt.Errorf("filter: dispatch_timeout must not be negative")
	}
	if c.Model.Endpoint == "" {
		return fmt.Errorf("model: endpoint is required")
	}
	return nil
}
