// Package settings pushes reconfiguration events into the scheduler, the
// model and the log switch.
package settings

import (
	"fmt"
	"log/slog"
	"sync"

	"imgfilter/internal/domain"
	"imgfilter/internal/model"
	"imgfilter/internal/scheduler"
)

type ConcurrencySetter interface {
	SetConcurrency(n int) error
}

type ThresholdSetter interface {
	SetThreshold(strictness float64) error
}

type LogSwitch interface {
	SetEnabled(enabled bool)
}

type Bridge struct {
	mu        sync.Mutex
	current   domain.Settings
	scheduler ConcurrencySetter
	model     ThresholdSetter
	logs      LogSwitch
	logger    *slog.Logger
}

func NewBridge(initial domain.Settings, s ConcurrencySetter, logs LogSwitch, logger *slog.Logger) (*Bridge, error) {
	if err := Validate(initial); err != nil {
		return nil, err
	}
	return &Bridge{
		current:   initial,
		scheduler: s,
		logs:      logs,
		logger:    logger,
	}, nil
}

// AttachModel hands the bridge the model once it has loaded and applies the
// current strictness to it.
func (b *Bridge) AttachModel(m ThresholdSetter) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := m.SetThreshold(b.current.FilterStrictness); err != nil {
		return err
	}
	b.model = m
	return nil
}

func (b *Bridge) Current() domain.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Apply validates the whole update before touching anything, so an invalid
// field leaves every setting as it was.
func (b *Bridge) Apply(u domain.SettingsUpdate) (domain.Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.current.Merge(u)
	if err := Validate(next); err != nil {
		return b.current, err
	}

	if next.Concurrency != b.current.Concurrency {
		if err := b.scheduler.SetConcurrency(next.Concurrency); err != nil {
			return b.current, err
		}
	}
	if b.model != nil && next.FilterStrictness != b.current.FilterStrictness {
		if err := b.model.SetThreshold(next.FilterStrictness); err != nil {
			return b.current, err
		}
	}
	if next.Logging != b.current.Logging {
		b.logs.SetEnabled(next.Logging)
	}

	if next != b.current {
		b.logger.Info("settings applied",
			"concurrency", next.Concurrency,
			"filter_strictness", next.FilterStrictness,
			"logging", next.Logging,
		)
	}
	b.current = next
	return next, nil
}

func Validate(s domain.Settings) error {
	if s.Concurrency < 1 {
		return fmt.Errorf("%w: got %d", scheduler.ErrInvalidConcurrency, s.Concurrency)
	}
	return model.ValidateStrictness(s.FilterStrictness)
}
