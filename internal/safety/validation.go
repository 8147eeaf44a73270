package safety

import (
	"fmt"
	"math"
	"strings"

	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
)

// Sanity ceilings for order inputs; anything above is almost certainly a unit mistake.
const (
	maxPrice     = 1e10
	maxQuantity  = 1e12
	maxSymbolLen = 32
)

// ValidationResult is the outcome of a single check. Code is stable and machine readable.
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

var passed = ValidationResult{Valid: true}

func reject(code, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Message: fmt.Sprintf(format, args...), Code: code}
}

// Err converts a failed result into a validation error for component/operation
func (r ValidationResult) Err(component, operation string) error {
	if r.Valid {
		return nil
	}
	return boterrors.NewValidationError(component, operation, r.Message).WithContext("code", r.Code)
}

// Validator checks order inputs before they reach a broker.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// positiveBounded covers the shared NaN / Inf / <=0 / ceiling checks for prices and quantities.
func positiveBounded(value, ceiling float64, field, symbol, prefix string) ValidationResult {
	switch {
	case math.IsNaN(value):
		return reject(prefix+"_NAN", "%s for %s is NaN", field, symbol)
	case math.IsInf(value, 0):
		return reject(prefix+"_INF", "%s for %s is infinite", field, symbol)
	case value <= 0:
		return reject(prefix+"_NEGATIVE", "%s %.8f for %s must be positive", field, value, symbol)
	case value > ceiling:
		return reject(strings.TrimPrefix(prefix, "INVALID_")+"_OUT_OF_BOUNDS",
			"%s %.8f for %s exceeds %.0f", field, value, symbol, ceiling)
	}
	return passed
}

func (v *Validator) ValidatePrice(price float64, symbol string) ValidationResult {
	return positiveBounded(price, maxPrice, "price", symbol, "INVALID_PRICE")
}

func (v *Validator) ValidateQuantity(quantity float64, symbol string) ValidationResult {
	return positiveBounded(quantity, maxQuantity, "quantity", symbol, "INVALID_QUANTITY")
}

// ValidateSymbol accepts equity tickers (BRK.B, M&M) and crypto pairs (BTC/USDT, BTC-USD).
func (v *Validator) ValidateSymbol(symbol string) ValidationResult {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return reject("SYMBOL_EMPTY", "symbol cannot be empty")
	}
	if len(symbol) > maxSymbolLen {
		return reject("SYMBOL_TOO_LONG", "symbol %q longer than %d characters", symbol, maxSymbolLen)
	}
	for _, r := range symbol {
		alnum := (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum && !strings.ContainsRune(".-/&_", r) {
			return reject("SYMBOL_INVALID_CHARS", "symbol %q contains %q", symbol, r)
		}
	}
	return passed
}

// ValidatePercentageRange checks a fraction lies within [min, max]. label names the field in the message.
func (v *Validator) ValidatePercentageRange(fraction, min, max float64, label string) ValidationResult {
	switch {
	case math.IsNaN(fraction):
		return reject("PERCENTAGE_NAN", "%s is NaN", label)
	case fraction < min:
		return reject("PERCENTAGE_BELOW_MIN", "%s %.4f below minimum %.4f", label, fraction, min)
	case fraction > max:
		return reject("PERCENTAGE_ABOVE_MAX", "%s %.4f above maximum %.4f", label, fraction, max)
	}
	return passed
}
