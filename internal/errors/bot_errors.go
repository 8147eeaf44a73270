package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory groups errors by how the guard reacts to them
type ErrorCategory string

const (
	// Fatal to the call that produced them
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
	ErrorCategoryValidation    ErrorCategory = "VALIDATION"
	ErrorCategoryInvariant     ErrorCategory = "INVARIANT"
	ErrorCategoryCancelled     ErrorCategory = "CANCELLED"

	// Broker side; counted and fed into circuit breakers
	ErrorCategoryNetwork   ErrorCategory = "NETWORK"
	ErrorCategoryTimeout   ErrorCategory = "TIMEOUT"
	ErrorCategoryExchange  ErrorCategory = "EXCHANGE"
	ErrorCategoryOrder     ErrorCategory = "ORDER"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
)

var retryableCategories = map[ErrorCategory]bool{
	ErrorCategoryNetwork:   true,
	ErrorCategoryTimeout:   true,
	ErrorCategoryExchange:  true,
	ErrorCategoryRateLimit: true,
	ErrorCategoryTemporary: true,
}

// BotError is an error tagged with the component and operation that raised it
type BotError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

func (e *BotError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
	if e.Underlying != nil {
		fmt.Fprintf(&b, ": %v", e.Underlying)
	}
	return b.String()
}

func (e *BotError) Unwrap() error { return e.Underlying }

func (e *BotError) IsRetryable() bool { return e.Retryable }

// IsFatal reports whether the caller must abort rather than skip or retry
func (e *BotError) IsFatal() bool {
	return e.Category == ErrorCategoryConfiguration || e.Category == ErrorCategoryInvariant
}

// WithContext attaches a key/value for logs and API responses
func (e *BotError) WithContext(key string, value interface{}) *BotError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewBotError(category ErrorCategory, component, operation, message string) *BotError {
	return &BotError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: retryableCategories[category],
	}
}

// WrapError tags err; nil stays nil
func WrapError(err error, category ErrorCategory, component, operation string) *BotError {
	if err == nil {
		return nil
	}
	be := NewBotError(category, component, operation, "operation failed")
	be.Underlying = err
	return be
}

func NewValidationError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryValidation, component, operation, message)
}

func NewConfigurationError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryConfiguration, component, operation, message)
}

func NewInvariantError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryInvariant, component, operation, message)
}

// messageRules map broker error text onto categories, first match wins
var messageRules = []struct {
	category ErrorCategory
	needles  []string
}{
	{ErrorCategoryTimeout, []string{"timeout", "deadline exceeded"}},
	{ErrorCategoryRateLimit, []string{"rate limit", "too many requests", "too many visits"}},
	{ErrorCategoryNetwork, []string{"connection", "network", "dns", "dial", "eof"}},
	{ErrorCategoryOrder, []string{"insufficient", "balance", "rejected"}},
	{ErrorCategoryValidation, []string{"invalid", "constraint", "minimum", "maximum"}},
}

// CategorizeError returns err as a BotError, classifying untyped errors by
// context sentinel, Temporary() and finally message text
func CategorizeError(err error, component, operation string) *BotError {
	if err == nil {
		return nil
	}

	var be *BotError
	if stderrors.As(err, &be) {
		return be
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return WrapError(err, ErrorCategoryCancelled, component, operation)
	case stderrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrorCategoryTimeout, component, operation)
	}

	var temp interface{ Temporary() bool }
	if stderrors.As(err, &temp) {
		if temp.Temporary() {
			return WrapError(err, ErrorCategoryTemporary, component, operation)
		}
		return WrapError(err, ErrorCategoryOrder, component, operation)
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return WrapError(err, rule.category, component, operation)
			}
		}
	}
	return WrapError(err, ErrorCategoryTemporary, component, operation)
}

// IsRetryable reports whether err, categorized on the fly, is worth retrying
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return CategorizeError(err, "", "").IsRetryable()
}

// HasCategory reports whether err wraps a BotError of the given category
func HasCategory(err error, category ErrorCategory) bool {
	var be *BotError
	return stderrors.As(err, &be) && be.Category == category
}
