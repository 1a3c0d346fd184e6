package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgfilter/internal/classifier"
)

func TestLoadRetriesUntilReady(t *testing.T) {
	calls := 0
	load := func(ctx context.Context) (classifier.Classifier, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("weights not ready")
		}
		return stubClassifier{}, nil
	}

	m, err := Load(context.Background(), load, LoadOptions{Backoff: time.Millisecond, Strictness: 90}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 90.0, m.Strictness())
}

func TestLoadGivesUp(t *testing.T) {
	calls := 0
	errLoad := errors.New("no model")
	load := func(ctx context.Context) (classifier.Classifier, error) {
		calls++
		return nil, errLoad
	}

	_, err := Load(context.Background(), load, LoadOptions{Attempts: 4, Backoff: time.Millisecond}, testLogger())
	assert.ErrorIs(t, err, errLoad)
	assert.Equal(t, 4, calls)
}
