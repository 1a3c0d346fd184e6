package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"imgfilter/internal/classifier"
	"imgfilter/internal/domain"
)

var ErrInvalidStrictness = errors.New("filter strictness must be within [0, 100]")

// DefaultUnsafeClasses are the model classes whose probabilities count
// towards blocking an image.
var DefaultUnsafeClasses = []string{"Porn", "Hentai", "Sexy"}

// Model turns classifier scores into verdicts against the current strictness.
type Model struct {
	classifier classifier.Classifier
	unsafe     map[string]struct{}
	strictness atomic.Uint64 // math.Float64bits of the strictness in [0, 100]
	logger     *slog.Logger
}

func New(c classifier.Classifier, strictness float64, unsafeClasses []string, logger *slog.Logger) (*Model, error) {
	if len(unsafeClasses) == 0 {
		unsafeClasses = DefaultUnsafeClasses
	}
	m := &Model{
		classifier: c,
		unsafe:     make(map[string]struct{}, len(unsafeClasses)),
		logger:     logger,
	}
	for _, name := range unsafeClasses {
		m.unsafe[name] = struct{}{}
	}
	if err := m.SetThreshold(strictness); err != nil {
		return nil, err
	}
	return m, nil
}

// SetThreshold replaces the strictness for classifications started after it
// returns. Out of range values leave the current strictness in place.
func (m *Model) SetThreshold(strictness float64) error {
	if err := ValidateStrictness(strictness); err != nil {
		return err
	}
	m.strictness.Store(math.Float64bits(strictness))
	return nil
}

func ValidateStrictness(strictness float64) error {
	if math.IsNaN(strictness) || strictness < 0 || strictness > 100 {
		return fmt.Errorf("%w: got %v", ErrInvalidStrictness, strictness)
	}
	return nil
}

func (m *Model) Strictness() float64 {
	return math.Float64frombits(m.strictness.Load())
}

// Threshold is the unsafe score at or above which an image is blocked.
func (m *Model) Threshold() float64 {
	return m.Strictness() / 100
}

func (m *Model) UnsafeScore(p classifier.Predictions) float64 {
	return p.Sum(m.unsafe)
}

// Classify never returns an error: classifier failures, including panics,
// become a verdict with Error set and Blocked false.
func (m *Model) Classify(ctx context.Context, req domain.Request) (v domain.Verdict) {
	threshold := m.Threshold()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("classifier panicked", "url", req.URL, "panic", r)
			v = domain.Failed(req.URL, fmt.Errorf("classifier panic: %v", r))
		}
	}()

	preds, err := m.classifier.Classify(ctx, req.URL)
	if err != nil {
		m.logger.Debug("classify failed", "url", req.URL, "error", err)
		return domain.Failed(req.URL, err)
	}

	score := m.UnsafeScore(preds)
	blocked := score >= threshold
	m.logger.Debug("classified", "url", req.URL, "score", score, "threshold", threshold, "blocked", blocked)

	return domain.Verdict{Blocked: blocked, URL: req.URL}
}
