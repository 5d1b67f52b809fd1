package retrylimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (s statusErr) Error() string   { return "status" }
func (s statusErr) StatusCode() int { return int(s) }

func fastConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestRetryUntilSuccess(t *testing.T) {
	calls := 0
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil, fastConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestFatalStopsImmediately(t *testing.T) {
	calls := 0
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		return &FatalError{Err: errors.New("unauthorized")}
	}, nil, fastConfig())
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, calls)
}

func TestMaxAttempts(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 4
	calls := 0
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		return errors.New("nope")
	}, nil, cfg)
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.MaxAttempts = 0
	err := WithRetryConfig(ctx, func() error {
		cancel()
		return errors.New("down")
	}, nil, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiterAdapts(t *testing.T) {
	lim := NewAdaptiveLimiter(8, 1, 10, 1, 0.5)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return base }

	lim.RateLimited()
	assert.Equal(t, 4.0, lim.CurrentLimit())
	lim.Success()
	assert.Equal(t, 4.0, lim.CurrentLimit(), "no increase right after an error")

	lim.now = func() time.Time { return base.Add(time.Minute) }
	for i := 0; i < 20; i++ {
		lim.Success()
	}
	assert.Equal(t, 10.0, lim.CurrentLimit(), "capped at max")

	for i := 0; i < 20; i++ {
		lim.RateLimited()
	}
	assert.Equal(t, 1.0, lim.CurrentLimit(), "floored at min")
}

func TestClassifier(t *testing.T) {
	assert.True(t, DefaultClassifier(statusErr(429)))
	assert.True(t, DefaultClassifier(statusErr(503)))
	assert.False(t, DefaultClassifier(statusErr(401)))
	assert.False(t, DefaultClassifier(errors.New("plain")))
}
