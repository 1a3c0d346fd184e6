package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"imgfilter/internal/domain"
)

// SettingsStore keeps the current settings in a hash and fans updates out
// over pub/sub so every replica reconfigures together.
type SettingsStore struct {
	c       *Client
	key     string
	channel string
	logger  *slog.Logger
}

func (c *Client) Settings(key, channel string, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{c: c, key: key, channel: channel, logger: logger}
}

func (s *SettingsStore) Save(ctx context.Context, st domain.Settings) error {
	return s.c.rdb.HSet(ctx, s.key,
		"concurrency", st.Concurrency,
		"filter_strictness", st.FilterStrictness,
		"logging", st.Logging,
	).Err()
}

// Load returns the stored settings, or false when nothing has been saved.
func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, bool, error) {
	fields, err := s.c.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return domain.Settings{}, false, err
	}
	if len(fields) == 0 {
		return domain.Settings{}, false, nil
	}

	var st domain.Settings
	if st.Concurrency, err = strconv.Atoi(fields["concurrency"]); err != nil {
		return domain.Settings{}, false, fmt.Errorf("concurrency: %w", err)
	}
	if st.FilterStrictness, err = strconv.ParseFloat(fields["filter_strictness"], 64); err != nil {
		return domain.Settings{}, false, fmt.Errorf("filter_strictness: %w", err)
	}
	if st.Logging, err = strconv.ParseBool(fields["logging"]); err != nil {
		return domain.Settings{}, false, fmt.Errorf("logging: %w", err)
	}
	return st, true, nil
}

// Publish stores st and broadcasts it to subscribers.
func (s *SettingsStore) Publish(ctx context.Context, st domain.Settings) error {
	if err := s.Save(ctx, st); err != nil {
		return err
	}

	data, err := json.Marshal(st.Update())
	if err != nil {
		return err
	}
	return s.c.rdb.Publish(ctx, s.channel, data).Err()
}

// Subscribe calls apply for every update received until ctx is done.
// Malformed messages are logged and skipped.
func (s *SettingsStore) Subscribe(ctx context.Context, apply func(domain.SettingsUpdate) error) error {
	ps := s.c.rdb.Subscribe(ctx, s.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return err
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var u domain.SettingsUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				s.logger.Warn("malformed settings update", "error", err)
				continue
			}
			if err := apply(u); err != nil {
				s.logger.Warn("settings update rejected", "error", err)
			}
		}
	}
}
