package bybit

import (
	"context"
	"fmt"
	"time"
)

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// OrderType represents the type of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// TimeInForce represents how long an order remains active
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // Good Till Cancelled
	TimeInForceIOC TimeInForce = "IOC" // Immediate Or Cancel
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// Order represents a trading order
type Order struct {
	OrderID     string      `json:"orderId"`
	OrderLinkID string      `json:"orderLinkId"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	OrderType   OrderType   `json:"orderType"`
	Qty         float64     `json:"qty"`
	Price       float64     `json:"price"`
	OrderStatus OrderStatus `json:"orderStatus"`
	CumExecQty  float64     `json:"cumExecQty"`
	AvgPrice    float64     `json:"avgPrice"`
	CreatedTime time.Time   `json:"createdTime"`
	UpdatedTime time.Time   `json:"updatedTime"`
}

// PlaceOrderParams holds parameters for placing an order
type PlaceOrderParams struct {
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	OrderType   OrderType   `json:"orderType"`
	Qty         string      `json:"qty"`
	Price       string      `json:"price,omitempty"`       // Price for limit orders
	TimeInForce TimeInForce `json:"timeInForce,omitempty"` // GTC, IOC
	OrderLinkID string      `json:"orderLinkId,omitempty"` // Client order id, deduplicated by Bybit
	ReduceOnly  bool        `json:"reduceOnly,omitempty"`
}

func (p PlaceOrderParams) validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if p.Side == "" {
		return fmt.Errorf("side is required")
	}
	if p.OrderType == "" {
		return fmt.Errorf("orderType is required")
	}
	if p.Qty == "" {
		return fmt.Errorf("qty is required")
	}
	if p.OrderType == OrderTypeLimit && p.Price == "" {
		return fmt.Errorf("price is required for limit orders")
	}
	return nil
}

func (p PlaceOrderParams) apiParams(category string) map[string]interface{} {
	params := map[string]interface{}{
		"category":  category,
		"symbol":    p.Symbol,
		"side":      string(p.Side),
		"orderType": string(p.OrderType),
		"qty":       p.Qty,
	}
	if p.Price != "" {
		params["price"] = p.Price
	}
	if p.OrderType == OrderTypeLimit && p.TimeInForce == "" {
		params["timeInForce"] = string(TimeInForceGTC)
	} else if p.TimeInForce != "" {
		params["timeInForce"] = string(p.TimeInForce)
	}
	if p.OrderLinkID != "" {
		params["orderLinkId"] = p.OrderLinkID
	}
	if p.ReduceOnly {
		params["reduceOnly"] = true
	}
	return params
}

// PlaceOrder places a new order
func (c *Client) PlaceOrder(ctx context.Context, params PlaceOrderParams) (*Order, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params.apiParams(c.category)).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	order, err := parseOrderResponse(result)
	if err != nil {
		return nil, WrapAPIError("place order", err)
	}

	order.Symbol = params.Symbol
	order.Side = params.Side
	order.OrderType = params.OrderType
	order.Qty = parseFloat64(params.Qty)
	order.Price = parseFloat64(params.Price)
	order.OrderStatus = OrderStatusNew
	return order, nil
}

// CancelOrder cancels an existing order
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	var ack struct {
		OrderID string `json:"orderId"`
	}
	return WrapAPIError("cancel order", decodeResult(result, &ack))
}

// GetOpenOrders retrieves open orders
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := map[string]interface{}{
		"category": c.category,
	}
	if symbol != "" {
		params["symbol"] = symbol
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}

	orders, err := parseOrdersResponse(result)
	if err != nil {
		return nil, WrapAPIError("open orders", err)
	}
	return orders, nil
}

// parseOrderResponse parses the order placement acknowledgement
func parseOrderResponse(response interface{}) (*Order, error) {
	var ack struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := decodeResult(response, &ack); err != nil {
		return nil, err
	}
	if ack.OrderID == "" {
		return nil, fmt.Errorf("missing orderId in response")
	}

	now := time.Now()
	return &Order{
		OrderID:     ack.OrderID,
		OrderLinkID: ack.OrderLinkID,
		CreatedTime: now,
		UpdatedTime: now,
	}, nil
}

// parseOrdersResponse parses the orders list API response
func parseOrdersResponse(response interface{}) ([]Order, error) {
	var orderListResult struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			Symbol      string `json:"symbol"`
			Price       string `json:"price"`
			Qty         string `json:"qty"`
			Side        string `json:"side"`
			OrderStatus string `json:"orderStatus"`
			AvgPrice    string `json:"avgPrice"`
			CumExecQty  string `json:"cumExecQty"`
			OrderType   string `json:"orderType"`
			CreatedTime string `json:"createdTime"`
			UpdatedTime string `json:"updatedTime"`
		} `json:"list"`
	}

	if err := decodeResult(response, &orderListResult); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(orderListResult.List))
	for _, o := range orderListResult.List {
		orders = append(orders, Order{
			OrderID:     o.OrderID,
			OrderLinkID: o.OrderLinkID,
			Symbol:      o.Symbol,
			Side:        OrderSide(o.Side),
			OrderType:   OrderType(o.OrderType),
			Qty:         parseFloat64(o.Qty),
			Price:       parseFloat64(o.Price),
			OrderStatus: OrderStatus(o.OrderStatus),
			CumExecQty:  parseFloat64(o.CumExecQty),
			AvgPrice:    parseFloat64(o.AvgPrice),
			CreatedTime: parseTimestamp(o.CreatedTime),
			UpdatedTime: parseTimestamp(o.UpdatedTime),
		})
	}

	return orders, nil
}
