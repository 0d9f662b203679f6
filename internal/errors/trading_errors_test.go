package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizeByMessage(t *testing.T) {
	tests := []struct {
		message  string
		category ErrorCategory
	}{
		{"context deadline exceeded", ErrorCategoryTimeout},
		{"read timeout on response", ErrorCategoryTimeout},
		{"connection refused", ErrorCategoryConnection},
		{"dial tcp: no such host", ErrorCategoryConnection},
		{"invalid api key", ErrorCategoryCredentials},
		{"request signature mismatch", ErrorCategoryCredentials},
		{"rate limit exceeded", ErrorCategoryRateLimit},
		{"too many requests", ErrorCategoryRateLimit},
		{"insufficient balance", ErrorCategoryInsufficientFunds},
		{"market closed for maintenance", ErrorCategoryMarketClosed},
		{"qty below minimum", ErrorCategoryInvalidOrder},
		{"something unexpected happened", ErrorCategoryTemporary},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			terr := Categorize(fmt.Errorf("%s", tt.message), "exchange", "create_order")
			assert.Equal(t, tt.category, terr.Category)
			assert.Equal(t, "exchange", terr.Component)
		})
	}
}

func TestCategorizePassesThroughTradingErrors(t *testing.T) {
	original := New(ErrorCategoryInvalidOrder, "exchange", "create_order", "bad qty")
	assert.Same(t, original, Categorize(original, "other", "other"))
	assert.Nil(t, Categorize(nil, "exchange", "create_order"))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, ErrorCategory(""), CategoryOf(nil))
	assert.Equal(t, ErrorCategoryTemporary, CategoryOf(errors.New("plain")))
	assert.Equal(t, ErrorCategoryConnection, CategoryOf(NewConnectionError("exchange", "ping", errors.New("down"))))
}

func TestRetryableDefaults(t *testing.T) {
	assert.True(t, New(ErrorCategoryConnection, "c", "o", "m").IsRetryable())
	assert.True(t, New(ErrorCategoryRateLimit, "c", "o", "m").IsRetryable())
	assert.False(t, New(ErrorCategoryInvalidOrder, "c", "o", "m").IsRetryable())
	assert.False(t, New(ErrorCategoryFatal, "c", "o", "m").IsRetryable())
	assert.False(t, New(ErrorCategoryConnection, "c", "o", "m").WithRetryable(false).IsRetryable())
}

func TestIsFatal(t *testing.T) {
	assert.True(t, NewFatalError("scheduler", "run", "stuck").IsFatal())
	assert.True(t, NewConfigurationError("config", "load", "bad value").IsFatal())
	assert.False(t, NewValidationError("engine", "cancel", "unknown order").IsFatal())
}

func TestWrapAndUnwrap(t *testing.T) {
	underlying := errors.New("socket closed")
	terr := Wrap(underlying, ErrorCategoryConnection, "exchange", "create_order")

	require.NotNil(t, terr)
	assert.True(t, errors.Is(terr, underlying))
	assert.Contains(t, terr.Error(), "CONNECTION")
	assert.Contains(t, terr.Error(), "socket closed")

	assert.Nil(t, Wrap(nil, ErrorCategoryConnection, "exchange", "create_order"))
}

func TestRetryAfter(t *testing.T) {
	terr := New(ErrorCategoryRateLimit, "exchange", "create_order", "throttled").
		WithRetryAfter(2 * time.Second)
	assert.Equal(t, 2*time.Second, terr.RetryAfter)
}
