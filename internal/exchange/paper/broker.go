package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

// Broker is an in-memory simulated broker. Market orders fill immediately at
// the current price; limit orders rest until cancelled.
type Broker struct {
	name     string
	slippage float64

	mu        sync.Mutex
	cash      float64
	prices    map[string]float64
	positions map[string]float64
	orders    []exchange.Order
	byClient  map[string]int // client order id -> index in orders
	latency   time.Duration

	probeErr   string
	orderFails int
	orderErr   error
	calls      map[string]int
}

// New creates a simulated broker from config
func New(name string, cfg *exchange.PaperConfig) *Broker {
	b := &Broker{
		name:      name,
		cash:      100000,
		prices:    make(map[string]float64),
		positions: make(map[string]float64),
		byClient:  make(map[string]int),
		calls:     make(map[string]int),
	}
	if cfg != nil {
		if cfg.Cash > 0 {
			b.cash = cfg.Cash
		}
		for s, p := range cfg.Prices {
			b.prices[s] = p
		}
		b.slippage = cfg.Slippage
	}
	return b
}

// Name returns the broker identifier
func (b *Broker) Name() string {
	return b.name
}

// SetPrice sets the current price for a symbol
func (b *Broker) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// SetLatency makes every call sleep for d
func (b *Broker) SetLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency = d
}

// SetProbeError makes GetAccountInfo report msg until cleared with ""
func (b *Broker) SetProbeError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeErr = msg
}

// FailOrders makes the next n PlaceOrder calls return err
func (b *Broker) FailOrders(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderFails = n
	b.orderErr = err
}

// Calls returns how many times the named method has been invoked
func (b *Broker) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// Position returns the signed position in symbol
func (b *Broker) Position(symbol string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[symbol]
}

func (b *Broker) enter(ctx context.Context, method string) error {
	b.mu.Lock()
	b.calls[method]++
	latency := b.latency
	b.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(latency):
		}
	}
	return ctx.Err()
}

// GetAccountInfo returns cash, marked-to-market equity and positions, or an error entry when a probe failure is injected
func (b *Broker) GetAccountInfo(ctx context.Context) exchange.AccountInfo {
	if err := b.enter(ctx, "GetAccountInfo"); err != nil {
		return exchange.AccountError(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.probeErr != "" {
		return exchange.AccountInfo{exchange.ErrorKey: b.probeErr}
	}

	equity := b.cash
	positions := make(map[string]float64, len(b.positions))
	for s, q := range b.positions {
		positions[s] = q
		equity += q * b.prices[s]
	}
	return exchange.AccountInfo{
		"broker":    b.name,
		"cash":      b.cash,
		"equity":    equity,
		"positions": positions,
	}
}

// GetQuote returns the configured price for symbol
func (b *Broker) GetQuote(ctx context.Context, symbol string) (*exchange.Quote, error) {
	if err := b.enter(ctx, "GetQuote"); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	price, ok := b.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", exchange.ErrInvalidSymbol, symbol)
	}
	return &exchange.Quote{Symbol: symbol, Price: price, Bid: price, Ask: price, Timestamp: time.Now()}, nil
}

// PlaceOrder fills market orders at the current price. A repeated client
// order id returns the original order without a second fill.
func (b *Broker) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	if err := b.enter(ctx, "PlaceOrder"); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if req.ClientOrderID != "" {
		if idx, ok := b.byClient[req.ClientOrderID]; ok {
			existing := b.orders[idx]
			return &existing, nil
		}
	}

	if b.orderFails > 0 {
		b.orderFails--
		return nil, b.orderErr
	}

	if !req.Side.Valid() || req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid order: side=%s quantity=%.8f", req.Side, req.Quantity)
	}

	price, ok := b.prices[req.Symbol]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("%w: %s", exchange.ErrInvalidSymbol, req.Symbol)
	}

	now := time.Now()
	order := exchange.Order{
		OrderID:       uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		OrderType:     req.OrderType,
		Quantity:      req.Quantity,
		Price:         req.Price,
		Status:        exchange.OrderStatusNew,
		CreatedTime:   now,
		UpdatedTime:   now,
	}

	if req.OrderType != types.OrderTypeLimit {
		fill := price
		if req.Side == types.SideBuy {
			fill *= 1 + b.slippage
		} else {
			fill *= 1 - b.slippage
		}
		cost := fill * req.Quantity
		if req.Side == types.SideBuy {
			if cost > b.cash {
				return nil, exchange.ErrInsufficientBalance
			}
			b.cash -= cost
			b.positions[req.Symbol] += req.Quantity
		} else {
			b.cash += cost
			b.positions[req.Symbol] -= req.Quantity
		}
		order.Price = price
		order.AvgPrice = fill
		order.FilledQty = req.Quantity
		order.Status = exchange.OrderStatusFilled
	}

	b.orders = append(b.orders, order)
	if req.ClientOrderID != "" {
		b.byClient[req.ClientOrderID] = len(b.orders) - 1
	}

	result := order
	return &result, nil
}

// CancelOrder cancels a resting order
func (b *Broker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := b.enter(ctx, "CancelOrder"); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.orders {
		o := &b.orders[i]
		if o.OrderID != orderID || (symbol != "" && o.Symbol != symbol) {
			continue
		}
		if o.Status != exchange.OrderStatusNew {
			return fmt.Errorf("order %s is %s", orderID, o.Status)
		}
		o.Status = exchange.OrderStatusCancelled
		o.UpdatedTime = time.Now()
		return nil
	}
	return exchange.ErrOrderNotFound
}

// GetOrders returns every order for symbol (all symbols when empty), newest first
func (b *Broker) GetOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	if err := b.enter(ctx, "GetOrders"); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []exchange.Order
	for _, o := range b.orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedTime.After(out[j].CreatedTime) })
	return out, nil
}

var _ exchange.Broker = (*Broker)(nil)
