package upstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("transient")

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestRetryWithCheck_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	got, err := RetryWithCheck(context.Background(), fastRetry(), func() (int, error) {
		calls++
		if calls < 3 {
			return calls, errTransient
		}
		return calls, nil
	}, func(err error) bool { return errors.Is(err, errTransient) })

	assert.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithCheck_ReturnsLastValue(t *testing.T) {
	calls := 0
	got, err := RetryWithCheck(context.Background(), fastRetry(), func() (int, error) {
		calls++
		return calls * 10, errTransient
	}, func(error) bool { return true })

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 30, got)
}

func TestRetryWithCheck_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	_, err := RetryWithCheck(context.Background(), fastRetry(), func() (int, error) {
		calls++
		return 0, permanent
	}, func(err error) bool { return errors.Is(err, errTransient) })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryWithCheck_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastRetry()
	cfg.InitialDelay = time.Hour
	calls := 0
	_, err := RetryWithCheck(ctx, cfg, func() (int, error) {
		calls++
		return 0, errTransient
	}, func(error) bool { return true })

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}
