package exchange

import (
	"context"
	"fmt"
	"time"
)

// BrokerCallbacks adapts a Broker to the narrow callback interfaces consumed
// by the guard components
type BrokerCallbacks struct {
	broker Broker
}

// Callbacks wraps b as a PriceFetcher, ExecutionCallback and BrokerProbe
func Callbacks(b Broker) *BrokerCallbacks {
	return &BrokerCallbacks{broker: b}
}

// GetPrice returns the last traded price from the broker quote
func (c *BrokerCallbacks) GetPrice(ctx context.Context, symbol string) (float64, error) {
	quote, err := c.broker.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if quote == nil || quote.Price <= 0 {
		return 0, fmt.Errorf("no price available for %s", symbol)
	}
	return quote.Price, nil
}

// Execute places the order and folds any failure into the result
func (c *BrokerCallbacks) Execute(ctx context.Context, req ExecutionRequest) ExecutionResult {
	start := time.Now()
	order, err := c.broker.PlaceOrder(ctx, OrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		OrderType:     req.OrderType,
		Price:         req.Price,
		Market:        req.Market,
		ClientOrderID: req.IdempotencyKey,
	})
	elapsed := time.Since(start)

	if err != nil {
		return ExecutionResult{Status: ExecutionError, Error: err.Error(), Duration: elapsed}
	}
	if order == nil {
		return ExecutionResult{Status: ExecutionError, Error: "broker returned no order", Duration: elapsed}
	}
	if order.Status == OrderStatusRejected || order.Status == OrderStatusCancelled {
		return ExecutionResult{
			Status:   ExecutionError,
			OrderID:  order.OrderID,
			Error:    fmt.Sprintf("order %s", order.Status),
			Duration: elapsed,
		}
	}

	fill := order.AvgPrice
	if fill <= 0 {
		fill = order.Price
	}
	return ExecutionResult{
		Status:    ExecutionSuccess,
		OrderID:   order.OrderID,
		FillPrice: fill,
		Duration:  elapsed,
	}
}

// GetAccountInfo forwards the probe to the broker
func (c *BrokerCallbacks) GetAccountInfo(ctx context.Context) AccountInfo {
	return c.broker.GetAccountInfo(ctx)
}

var (
	_ PriceFetcher      = (*BrokerCallbacks)(nil)
	_ ExecutionCallback = (*BrokerCallbacks)(nil)
	_ BrokerProbe       = (*BrokerCallbacks)(nil)
)
