package exchange

import (
	"context"
	"time"

	"github.com/ducminhle1904/tradeguard/pkg/types"
)

// Broker is the single capability interface every broker variant implements.
// The guard components never depend on a concrete broker type.
type Broker interface {
	// Name returns the broker identifier used for health tracking and rate limiting
	Name() string

	// GetAccountInfo returns account fields; an "error" key denotes failure
	GetAccountInfo(ctx context.Context) AccountInfo

	// Market data
	GetQuote(ctx context.Context, symbol string) (*Quote, error)

	// Trading operations
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrders(ctx context.Context, symbol string) ([]Order, error)
}

// AccountInfo is the loosely typed account snapshot returned by GetAccountInfo
type AccountInfo map[string]interface{}

// ErrorKey is the key whose presence marks an AccountInfo as failed
const ErrorKey = "error"

// Err returns the error message carried by the snapshot, if any
func (a AccountInfo) Err() (string, bool) {
	if a == nil {
		return "nil account info", true
	}
	v, ok := a[ErrorKey]
	if !ok {
		return "", false
	}
	switch e := v.(type) {
	case string:
		if e != "" {
			return e, true
		}
	case error:
		if e != nil {
			return e.Error(), true
		}
	}
	return "unknown error", true
}

// AccountError builds an AccountInfo that carries only an error
func AccountError(err error) AccountInfo {
	return AccountInfo{ErrorKey: err.Error()}
}

// Quote represents a point-in-time quote from a broker
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid,omitempty"`
	Ask       float64   `json:"ask,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderRequest represents parameters for placing orders
type OrderRequest struct {
	Symbol        string          `json:"symbol"`
	Side          types.Side      `json:"side"`
	Quantity      float64         `json:"quantity"`
	OrderType     types.OrderType `json:"order_type"`
	Price         float64         `json:"price,omitempty"` // For limit orders
	Market        types.Market    `json:"market,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
}

// OrderStatus represents the lifecycle state of a broker order
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Order represents order information returned by brokers
type Order struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          types.Side      `json:"side"`
	OrderType     types.OrderType `json:"order_type"`
	Quantity      float64         `json:"quantity"`
	Price         float64         `json:"price"`
	FilledQty     float64         `json:"filled_qty"`
	AvgPrice      float64         `json:"avg_price"`
	Status        OrderStatus     `json:"status"`
	CreatedTime   time.Time       `json:"created_time"`
	UpdatedTime   time.Time       `json:"updated_time"`
}

// ExchangeError represents standardized errors from brokers
type ExchangeError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	IsRetryable bool   `json:"is_retryable"`
}

func (e *ExchangeError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Temporary reports whether retrying the call may succeed
func (e *ExchangeError) Temporary() bool {
	return e.IsRetryable
}

// Common error types
var (
	ErrInsufficientBalance = &ExchangeError{
		Code:        "INSUFFICIENT_BALANCE",
		Message:     "Insufficient balance for trade",
		IsRetryable: false,
	}
	ErrInvalidSymbol = &ExchangeError{
		Code:        "INVALID_SYMBOL",
		Message:     "Invalid trading symbol",
		IsRetryable: false,
	}
	ErrOrderNotFound = &ExchangeError{
		Code:        "ORDER_NOT_FOUND",
		Message:     "Order not found",
		IsRetryable: false,
	}
	ErrRateLimited = &ExchangeError{
		Code:        "RATE_LIMITED",
		Message:     "Rate limit exceeded",
		IsRetryable: true,
	}
	ErrBrokerUnavailable = &ExchangeError{
		Code:        "BROKER_UNAVAILABLE",
		Message:     "Broker connection unavailable",
		IsRetryable: true,
	}
)
