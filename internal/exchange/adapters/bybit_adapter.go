package adapters

import (
	"context"
	"strings"

	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/exchange/bybit"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

// bybitAPI is the subset of the Bybit client the adapter calls
type bybitAPI interface {
	GetTicker(ctx context.Context, symbol string) (*bybit.Ticker, error)
	GetWalletBalance(ctx context.Context, accountType bybit.AccountType, coins ...string) (*bybit.WalletInfo, error)
	PlaceOrder(ctx context.Context, params bybit.PlaceOrderParams) (*bybit.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]bybit.Order, error)
	GetEnvironment() string
}

// BybitBroker implements exchange.Broker on top of the Bybit unified API
type BybitBroker struct {
	name   string
	client bybitAPI
}

// NewBybitBroker creates a new Bybit broker instance
func NewBybitBroker(name string, config *exchange.BybitConfig) (*BybitBroker, error) {
	if config == nil {
		return nil, &exchange.ExchangeError{
			Code:        "MISSING_CONFIG",
			Message:     "Bybit configuration is required",
			IsRetryable: false,
		}
	}

	client := bybit.NewClient(bybit.Config{
		APIKey:    config.APIKey,
		APISecret: config.APISecret,
		Category:  config.Category,
		Testnet:   config.Testnet,
		Demo:      config.Demo,
	})

	return &BybitBroker{name: name, client: client}, nil
}

// Name returns the broker identifier
func (b *BybitBroker) Name() string {
	return b.name
}

// GetAccountInfo uses the unified wallet balance as the liveness probe
func (b *BybitBroker) GetAccountInfo(ctx context.Context) exchange.AccountInfo {
	wallet, err := b.client.GetWalletBalance(ctx, bybit.AccountTypeUnified)
	if err != nil {
		return exchange.AccountError(convertError(err))
	}

	balances := make(map[string]float64, len(wallet.Coin))
	for _, c := range wallet.Coin {
		balances[c.Coin] = c.AvailableToTrade
	}

	return exchange.AccountInfo{
		"broker":            b.name,
		"environment":       b.client.GetEnvironment(),
		"account_type":      wallet.AccountType,
		"total_equity":      wallet.TotalEquity,
		"available_balance": wallet.TotalAvailableBalance,
		"balances":          balances,
	}
}

// GetQuote retrieves the latest ticker for a symbol
func (b *BybitBroker) GetQuote(ctx context.Context, symbol string) (*exchange.Quote, error) {
	ticker, err := b.client.GetTicker(ctx, symbol)
	if err != nil {
		return nil, convertError(err)
	}
	return &exchange.Quote{
		Symbol:    symbol,
		Price:     ticker.LastPrice,
		Bid:       ticker.Bid,
		Ask:       ticker.Ask,
		Timestamp: ticker.Time,
	}, nil
}

// PlaceOrder places a market or limit order; ClientOrderID maps to orderLinkId
func (b *BybitBroker) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	params := bybit.PlaceOrderParams{
		Symbol:      req.Symbol,
		Side:        convertOrderSide(req.Side),
		OrderType:   bybit.OrderTypeMarket,
		Qty:         bybit.FormatFloat(req.Quantity),
		OrderLinkID: req.ClientOrderID,
	}
	if req.OrderType == types.OrderTypeLimit {
		params.OrderType = bybit.OrderTypeLimit
		params.Price = bybit.FormatFloat(req.Price)
	}

	order, err := b.client.PlaceOrder(ctx, params)
	if err != nil {
		return nil, convertError(err)
	}

	result := convertOrder(*order)
	result.Side = req.Side
	result.OrderType = req.OrderType
	return &result, nil
}

// CancelOrder cancels an open order
func (b *BybitBroker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return convertError(b.client.CancelOrder(ctx, symbol, orderID))
}

// GetOrders returns the open orders for symbol
func (b *BybitBroker) GetOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	orders, err := b.client.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, convertError(err)
	}

	result := make([]exchange.Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, convertOrder(o))
	}
	return result, nil
}

// Helper functions

func convertOrderSide(side types.Side) bybit.OrderSide {
	if side == types.SideSell {
		return bybit.OrderSideSell
	}
	return bybit.OrderSideBuy
}

func convertOrder(o bybit.Order) exchange.Order {
	side := types.SideBuy
	if o.Side == bybit.OrderSideSell {
		side = types.SideSell
	}
	orderType := types.OrderTypeMarket
	if o.OrderType == bybit.OrderTypeLimit {
		orderType = types.OrderTypeLimit
	}

	var status exchange.OrderStatus
	switch o.OrderStatus {
	case bybit.OrderStatusFilled:
		status = exchange.OrderStatusFilled
	case bybit.OrderStatusCancelled:
		status = exchange.OrderStatusCancelled
	case bybit.OrderStatusRejected:
		status = exchange.OrderStatusRejected
	default:
		status = exchange.OrderStatusNew
	}

	return exchange.Order{
		OrderID:       o.OrderID,
		ClientOrderID: o.OrderLinkID,
		Symbol:        o.Symbol,
		Side:          side,
		OrderType:     orderType,
		Quantity:      o.Qty,
		Price:         o.Price,
		FilledQty:     o.CumExecQty,
		AvgPrice:      o.AvgPrice,
		Status:        status,
		CreatedTime:   o.CreatedTime,
		UpdatedTime:   o.UpdatedTime,
	}
}

// convertError converts Bybit-specific errors to our standard error format
func convertError(err error) error {
	if err == nil {
		return nil
	}

	if exchangeErr, ok := err.(*exchange.ExchangeError); ok {
		return exchangeErr
	}

	switch {
	case bybit.IsRateLimitError(err):
		return &exchange.ExchangeError{
			Code:        "RATE_LIMIT_EXCEEDED",
			Message:     "Bybit API rate limit exceeded",
			Details:     err.Error(),
			IsRetryable: true,
		}
	case bybit.IsInsufficientBalanceError(err):
		return &exchange.ExchangeError{
			Code:        "INSUFFICIENT_BALANCE",
			Message:     "Insufficient balance for trade",
			Details:     err.Error(),
			IsRetryable: false,
		}
	case bybit.IsOrderNotFoundError(err):
		return &exchange.ExchangeError{
			Code:        "ORDER_NOT_FOUND",
			Message:     "Order not found",
			Details:     err.Error(),
			IsRetryable: false,
		}
	case bybit.IsRetryableError(err):
		return &exchange.ExchangeError{
			Code:        "EXCHANGE_UNAVAILABLE",
			Message:     "Bybit temporarily unavailable",
			Details:     err.Error(),
			IsRetryable: true,
		}
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection") {
		return &exchange.ExchangeError{
			Code:        "NETWORK_ERROR",
			Message:     "Network error talking to Bybit",
			Details:     err.Error(),
			IsRetryable: true,
		}
	}

	return &exchange.ExchangeError{
		Code:        "UNKNOWN_ERROR",
		Message:     "Unknown error from Bybit",
		Details:     err.Error(),
		IsRetryable: false,
	}
}

var _ exchange.Broker = (*BybitBroker)(nil)
