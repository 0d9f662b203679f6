package bybit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/riskcore/internal/errors"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	c := testClient()
	attempts := 0

	err := c.RetryWithConfig(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.NewConnectionError("bybit", "probe", assert.AnError)
		}
		return nil
	}, fastRetryConfig())

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	c := testClient()
	attempts := 0

	err := c.RetryWithConfig(context.Background(), func() error {
		attempts++
		return errors.New(errors.ErrorCategoryInvalidOrder, "bybit", "create_order", "bad qty")
	}, fastRetryConfig())

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	c := testClient()
	attempts := 0

	err := c.RetryWithConfig(context.Background(), func() error {
		attempts++
		return errors.NewConnectionError("bybit", "probe", assert.AnError)
	}, fastRetryConfig())

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	c := testClient()
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := c.RetryWithConfig(ctx, func() error {
		attempts++
		cancel()
		return errors.NewConnectionError("bybit", "probe", assert.AnError)
	}, fastRetryConfig())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
