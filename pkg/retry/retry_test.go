package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("connection refused")

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	var notified []error
	err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errUnavailable
		}
		return nil
	}, func(err error, delay time.Duration) {
		notified = append(notified, err)
		assert.LessOrEqual(t, delay, 5*time.Millisecond)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, notified, 2)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func(context.Context) error {
		calls++
		return errUnavailable
	}, nil)

	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 3, calls)
}

func TestDo_ZeroAttemptsCallsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(0), func(context.Context) error {
		calls++
		return errUnavailable
	}, nil)

	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	badAuth := errors.New("WRONGPASS invalid password")
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return Permanent(badAuth)
	}, nil)

	assert.ErrorIs(t, err, badAuth)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Config{MaxAttempts: 10, InitialDelay: time.Hour, MaxDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errUnavailable
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errUnavailable
		}
		return "PONG", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "PONG", got)
	assert.Equal(t, 2, calls)
}
