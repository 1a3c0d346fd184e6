package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgfilter/internal/classifier"
	"imgfilter/internal/domain"
)

func newClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPredictionCache(t *testing.T) {
	c, mr := newClient(t)
	ctx := context.Background()

	_, ok, err := c.GetPredictions(ctx, "http://img/a.png")
	require.NoError(t, err)
	assert.False(t, ok)

	preds := classifier.Predictions{{ClassName: "Sexy", Probability: 0.4}}
	require.NoError(t, c.SetPredictions(ctx, "http://img/a.png", preds, time.Minute))

	got, ok, err := c.GetPredictions(ctx, "http://img/a.png")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, preds, got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.GetPredictions(ctx, "http://img/a.png")
	require.NoError(t, err)
	assert.False(t, ok, "entry expires with its ttl")
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(addr)
	assert.Error(t, err)
}

func TestSettingsSaveLoad(t *testing.T) {
	c, _ := newClient(t)
	store := c.Settings("test:settings", "test:settings:updates", discardLogger())
	ctx := context.Background()

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := domain.Settings{Concurrency: 3, FilterStrictness: 72.5, Logging: true}
	require.NoError(t, store.Save(ctx, want))

	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSettingsPublishSubscribe(t *testing.T) {
	c, _ := newClient(t)
	store := c.Settings("test:settings", "test:settings:updates", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		updates []domain.SettingsUpdate
	)
	done := make(chan error, 1)
	go func() {
		done <- store.Subscribe(ctx, func(u domain.SettingsUpdate) error {
			mu.Lock()
			defer mu.Unlock()
			updates = append(updates, u)
			if u.Concurrency != nil && *u.Concurrency == 0 {
				return errors.New("invalid")
			}
			return nil
		})
	}()

	want := domain.Settings{Concurrency: 5, FilterStrictness: 60}
	require.Eventually(t, func() bool {
		if err := store.Publish(context.Background(), want); err != nil {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return len(updates) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	got := domain.Settings{}.Merge(updates[0])
	mu.Unlock()
	assert.Equal(t, want, got)

	saved, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, saved)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
