package bybit

import (
	"fmt"
	"time"

	"github.com/quantrail/riskcore/internal/errors"
)

// APIError represents a Bybit API error with its return code
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit API error %d: %s", e.Code, e.Message)
}

// Common Bybit return codes
const (
	errCodeInvalidAPIKey       = 10003
	errCodeInvalidSignature    = 10004
	errCodeInvalidTimestamp    = 10005
	errCodeRateLimitExceeded   = 10006
	errCodeOrderNotFound       = 110001
	errCodeInvalidOrderType    = 110004
	errCodeInsufficientBalance = 110007
	errCodeSymbolNotFound      = 110009
	errCodeInvalidQuantity     = 110020
	errCodeInvalidPrice        = 110021
	errCodeMarketClosed        = 110043
)

// classify maps a Bybit return code onto the shared error taxonomy so the
// engine can react to each failure kind differently.
func classify(code int, msg, operation string) *errors.TradingError {
	apiErr := &APIError{Code: code, Message: msg}

	switch code {
	case errCodeInvalidAPIKey, errCodeInvalidSignature, errCodeInvalidTimestamp:
		return errors.Wrap(apiErr, errors.ErrorCategoryCredentials, "bybit", operation)
	case errCodeRateLimitExceeded:
		return errors.Wrap(apiErr, errors.ErrorCategoryRateLimit, "bybit", operation).
			WithRetryAfter(time.Second)
	case errCodeInsufficientBalance:
		return errors.Wrap(apiErr, errors.ErrorCategoryInsufficientFunds, "bybit", operation)
	case errCodeMarketClosed:
		return errors.Wrap(apiErr, errors.ErrorCategoryMarketClosed, "bybit", operation)
	case errCodeOrderNotFound, errCodeInvalidOrderType, errCodeSymbolNotFound,
		errCodeInvalidQuantity, errCodeInvalidPrice:
		return errors.Wrap(apiErr, errors.ErrorCategoryInvalidOrder, "bybit", operation)
	default:
		return errors.Wrap(apiErr, errors.ErrorCategoryExchange, "bybit", operation)
	}
}

// classifyTransportError wraps transport-level failures (timeouts, refused
// connections) from the HTTP client.
func classifyTransportError(err error, operation string) *errors.TradingError {
	return errors.Categorize(err, "bybit", operation)
}
