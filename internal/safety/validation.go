package safety

import (
	"fmt"
	"math"
	"strings"
)

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

// Validator provides defensive sanity checks for order parameters before
// they reach the risk pipeline.
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePrice validates a price value for trading
func (v *Validator) ValidatePrice(price float64, symbol string) ValidationResult {
	if price <= 0 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid price %.8f for %s: price must be positive", price, symbol),
			Code:    "INVALID_PRICE_NEGATIVE",
		}
	}

	if math.IsNaN(price) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid price for %s: price is NaN", symbol),
			Code:    "INVALID_PRICE_NAN",
		}
	}

	if math.IsInf(price, 0) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid price for %s: price is infinite", symbol),
			Code:    "INVALID_PRICE_INF",
		}
	}

	// Reject obvious data errors before they poison position accounting
	if price > 1e10 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("suspicious price %.8f for %s: exceeds reasonable bounds", price, symbol),
			Code:    "PRICE_OUT_OF_BOUNDS",
		}
	}

	if price < 1e-8 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("suspicious price %.8f for %s: below reasonable bounds", price, symbol),
			Code:    "PRICE_TOO_SMALL",
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateQuantity validates a quantity value for trading
func (v *Validator) ValidateQuantity(quantity float64, symbol string) ValidationResult {
	if quantity <= 0 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid quantity %.8f for %s: quantity must be positive", quantity, symbol),
			Code:    "INVALID_QUANTITY_NEGATIVE",
		}
	}

	if math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid quantity for %s: quantity is not finite", symbol),
			Code:    "INVALID_QUANTITY_NOT_FINITE",
		}
	}

	if quantity > 1e12 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("suspicious quantity %.8f for %s: exceeds reasonable bounds", quantity, symbol),
			Code:    "QUANTITY_OUT_OF_BOUNDS",
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateOrderValue validates the total value of an order
func (v *Validator) ValidateOrderValue(price, quantity float64, symbol string) ValidationResult {
	if priceResult := v.ValidatePrice(price, symbol); !priceResult.Valid {
		return priceResult
	}

	if quantityResult := v.ValidateQuantity(quantity, symbol); !quantityResult.Valid {
		return quantityResult
	}

	orderValue := price * quantity

	if orderValue > 1e9 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("suspicious order value $%.2f for %s: exceeds reasonable bounds", orderValue, symbol),
			Code:    "ORDER_VALUE_TOO_LARGE",
		}
	}

	if orderValue < 0.01 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("order value $%.8f for %s: below minimum reasonable value", orderValue, symbol),
			Code:    "ORDER_VALUE_TOO_SMALL",
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateSymbol validates a trading symbol format
func (v *Validator) ValidateSymbol(symbol string) ValidationResult {
	if symbol == "" {
		return ValidationResult{
			Valid:   false,
			Message: "symbol cannot be empty",
			Code:    "SYMBOL_EMPTY",
		}
	}

	symbol = strings.TrimSpace(symbol)
	if len(symbol) < 3 || len(symbol) > 20 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("symbol '%s' length out of range", symbol),
			Code:    "SYMBOL_LENGTH_INVALID",
		}
	}

	for _, char := range symbol {
		if !((char >= 'A' && char <= 'Z') || (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9')) {
			return ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("symbol '%s' contains invalid characters: only alphanumeric allowed", symbol),
				Code:    "SYMBOL_INVALID_CHARS",
			}
		}
	}

	return ValidationResult{Valid: true}
}
