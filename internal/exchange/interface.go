package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/tradeguard/pkg/types"
)

// PriceFetcher returns the latest price for a symbol. Implementations are
// called from background goroutines and must be safe for concurrent use.
type PriceFetcher interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceFetcherFunc adapts a function to PriceFetcher
type PriceFetcherFunc func(ctx context.Context, symbol string) (float64, error)

// GetPrice calls f
func (f PriceFetcherFunc) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}

// FirstPrice asks each source in order and returns the first positive price.
// The last error is returned when every source fails.
type FirstPrice []PriceFetcher

func (f FirstPrice) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var lastErr error
	for _, src := range f {
		price, err := src.GetPrice(ctx, symbol)
		if err == nil && price > 0 {
			return price, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no price source for %s", symbol)
	}
	return 0, lastErr
}

// ExecutionStatus is the outcome of an execution callback
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

// ExecutionRequest describes an order the guard wants executed
type ExecutionRequest struct {
	Symbol    string          `json:"symbol"`
	Side      types.Side      `json:"side"`
	Quantity  float64         `json:"quantity"`
	OrderType types.OrderType `json:"order_type"`
	Price     float64         `json:"price,omitempty"`
	Market    types.Market    `json:"market,omitempty"`
	// IdempotencyKey is forwarded as the client order id so a retried
	// request cannot produce a second fill
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ExecutionResult is the structured result of an execution; transient broker
// failures travel in Error rather than as a Go error
type ExecutionResult struct {
	Status    ExecutionStatus `json:"status"`
	OrderID   string          `json:"order_id,omitempty"`
	FillPrice float64         `json:"fill_price,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// OK reports whether the execution succeeded
func (r ExecutionResult) OK() bool {
	return r.Status == ExecutionSuccess
}

// ExecutionCallback places an order on behalf of the guard
type ExecutionCallback interface {
	Execute(ctx context.Context, req ExecutionRequest) ExecutionResult
}

// ExecutionFunc adapts a function to ExecutionCallback
type ExecutionFunc func(ctx context.Context, req ExecutionRequest) ExecutionResult

// Execute calls f
func (f ExecutionFunc) Execute(ctx context.Context, req ExecutionRequest) ExecutionResult {
	return f(ctx, req)
}

// BrokerProbe is the lightweight liveness call used by the health monitor
type BrokerProbe interface {
	GetAccountInfo(ctx context.Context) AccountInfo
}

// BrokerProbeFunc adapts a function to BrokerProbe
type BrokerProbeFunc func(ctx context.Context) AccountInfo

// GetAccountInfo calls f
func (f BrokerProbeFunc) GetAccountInfo(ctx context.Context) AccountInfo {
	return f(ctx)
}

// VolatilitySignal supplies an external market volatility index (VIX style)
type VolatilitySignal interface {
	Volatility(ctx context.Context, market types.Market) (float64, error)
}

// VolatilityFunc adapts a function to VolatilitySignal
type VolatilityFunc func(ctx context.Context, market types.Market) (float64, error)

// Volatility calls f
func (f VolatilityFunc) Volatility(ctx context.Context, market types.Market) (float64, error) {
	return f(ctx, market)
}
