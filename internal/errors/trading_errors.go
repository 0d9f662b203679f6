package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Critical errors that should stop the process
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryCredentials   ErrorCategory = "CREDENTIALS"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Exchange-side errors the engine reacts to differently
	ErrorCategoryConnection        ErrorCategory = "CONNECTION"
	ErrorCategoryRateLimit         ErrorCategory = "RATE_LIMIT"
	ErrorCategoryInsufficientFunds ErrorCategory = "INSUFFICIENT_FUNDS"
	ErrorCategoryInvalidOrder      ErrorCategory = "INVALID_ORDER"
	ErrorCategoryMarketClosed      ErrorCategory = "MARKET_CLOSED"
	ErrorCategoryExchange          ErrorCategory = "EXCHANGE"

	// Non-critical errors that can be retried or recovered from
	ErrorCategoryTimeout    ErrorCategory = "TIMEOUT"
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	ErrorCategoryTemporary  ErrorCategory = "TEMPORARY"
)

// TradingError represents a categorized error with context
type TradingError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool

	// RetryAfter is set for rate-limit errors when the exchange
	// reports how long to back off.
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *TradingError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *TradingError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *TradingError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop the process
func (e *TradingError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal ||
		e.Category == ErrorCategoryCredentials ||
		e.Category == ErrorCategoryConfiguration
}

// New creates a new categorized trading error
func New(category ErrorCategory, component, operation, message string) *TradingError {
	return &TradingError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with trading error context
func Wrap(err error, category ErrorCategory, component, operation string) *TradingError {
	if err == nil {
		return nil
	}

	return &TradingError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

// WithRetryable sets the retryable flag
func (e *TradingError) WithRetryable(retryable bool) *TradingError {
	e.Retryable = retryable
	return e
}

// WithRetryAfter records a server-advised backoff window
func (e *TradingError) WithRetryAfter(d time.Duration) *TradingError {
	e.RetryAfter = d
	return e
}

// isRetryableCategory determines if an error category is generally retryable
func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryConnection, ErrorCategoryTimeout, ErrorCategoryTemporary, ErrorCategoryRateLimit:
		return true
	case ErrorCategoryFatal, ErrorCategoryCredentials, ErrorCategoryConfiguration,
		ErrorCategoryInsufficientFunds, ErrorCategoryInvalidOrder:
		return false
	default:
		return true
	}
}

// CategoryOf returns the category of err, or ErrorCategoryTemporary for
// errors that were never classified.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if terr, ok := err.(*TradingError); ok {
		return terr.Category
	}
	return ErrorCategoryTemporary
}

// Categorize attempts to classify a generic error by message content
func Categorize(err error, component, operation string) *TradingError {
	if err == nil {
		return nil
	}

	if terr, ok := err.(*TradingError); ok {
		return terr
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "context deadline exceeded") {
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	}

	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dns") || strings.Contains(errMsg, "dial") {
		return Wrap(err, ErrorCategoryConnection, component, operation)
	}

	if strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "authentication") ||
		strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "signature") {
		return Wrap(err, ErrorCategoryCredentials, component, operation)
	}

	if strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests") {
		return Wrap(err, ErrorCategoryRateLimit, component, operation)
	}

	if strings.Contains(errMsg, "insufficient") {
		return Wrap(err, ErrorCategoryInsufficientFunds, component, operation)
	}

	if strings.Contains(errMsg, "market closed") || strings.Contains(errMsg, "not trading") {
		return Wrap(err, ErrorCategoryMarketClosed, component, operation)
	}

	if strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "minimum") ||
		strings.Contains(errMsg, "maximum") || strings.Contains(errMsg, "precision") {
		return Wrap(err, ErrorCategoryInvalidOrder, component, operation)
	}

	return Wrap(err, ErrorCategoryTemporary, component, operation)
}

// Common error constructors

func NewConnectionError(component, operation string, err error) *TradingError {
	return Wrap(err, ErrorCategoryConnection, component, operation)
}

func NewTimeoutError(component, operation string, err error) *TradingError {
	return Wrap(err, ErrorCategoryTimeout, component, operation)
}

func NewValidationError(component, operation, message string) *TradingError {
	return New(ErrorCategoryValidation, component, operation, message).WithRetryable(false)
}

func NewConfigurationError(component, operation, message string) *TradingError {
	return New(ErrorCategoryConfiguration, component, operation, message).WithRetryable(false)
}

func NewExchangeError(component, operation string, err error) *TradingError {
	return Wrap(err, ErrorCategoryExchange, component, operation)
}

func NewFatalError(component, operation, message string) *TradingError {
	return New(ErrorCategoryFatal, component, operation, message).WithRetryable(false)
}
