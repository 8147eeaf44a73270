package bybit

import (
	"errors"
	"fmt"
	"net/http"
)

// BybitError is a non-zero retCode returned by the v5 API.
type BybitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *BybitError) Error() string {
	msg := fmt.Sprintf("bybit retCode %d: %s", e.Code, e.Message)
	if e.Details != "" {
		msg += " [" + e.Details + "]"
	}
	return msg
}

// retCodes the adapter maps onto exchange error codes.
const (
	ErrCodeInvalidAPIKey       = 10003
	ErrCodeInvalidSignature    = 10004
	ErrCodeInvalidTimestamp    = 10005
	ErrCodeRateLimitExceeded   = 10006
	ErrCodeOrderNotFound       = 110001
	ErrCodeInvalidOrderType    = 110004
	ErrCodeInsufficientBalance = 110007
	ErrCodeSymbolNotFound      = 110009
	ErrCodeInvalidQuantity     = 110020
	ErrCodeInvalidPrice        = 110021
	ErrCodeMarketClosed        = 110043
)

// transientCodes are worth another attempt after a backoff.
var transientCodes = map[int]struct{}{
	ErrCodeRateLimitExceeded:       {},
	ErrCodeInvalidTimestamp:        {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

func retCode(err error) (int, bool) {
	var be *BybitError
	if !errors.As(err, &be) {
		return 0, false
	}
	return be.Code, true
}

func hasCode(err error, code int) bool {
	c, ok := retCode(err)
	return ok && c == code
}

// IsRetryableError reports whether err carries a transient retCode.
func IsRetryableError(err error) bool {
	c, ok := retCode(err)
	if !ok {
		return false
	}
	_, transient := transientCodes[c]
	return transient
}

func IsInsufficientBalanceError(err error) bool { return hasCode(err, ErrCodeInsufficientBalance) }
func IsOrderNotFoundError(err error) bool       { return hasCode(err, ErrCodeOrderNotFound) }
func IsRateLimitError(err error) bool           { return hasCode(err, ErrCodeRateLimitExceeded) }

// NewBybitError builds a BybitError; the first detail, if any, is kept.
func NewBybitError(code int, message string, details ...string) *BybitError {
	be := &BybitError{Code: code, Message: message}
	if len(details) > 0 {
		be.Details = details[0]
	}
	return be
}

// WrapAPIError tags err with the client call that produced it.
func WrapAPIError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var be *BybitError
	if errors.As(err, &be) {
		return NewBybitError(be.Code, be.Message, operation)
	}
	return fmt.Errorf("bybit %s: %w", operation, err)
}

// ParseAPIError turns a response envelope into an error, nil on retCode 0.
func ParseAPIError(retCode int, retMsg string) error {
	if retCode == 0 {
		return nil
	}
	return NewBybitError(retCode, retMsg)
}
