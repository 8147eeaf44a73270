package exchange

import (
	"context"

	"github.com/ducminhle1904/tradeguard/internal/safety"
)

type rateLimitedBroker struct {
	Broker
	limiter *safety.RateLimiter
}

// RateLimited wraps b so every call first waits on the broker's token bucket
func RateLimited(b Broker, limiter *safety.RateLimiter) Broker {
	if limiter == nil {
		return b
	}
	return &rateLimitedBroker{Broker: b, limiter: limiter}
}

func (r *rateLimitedBroker) GetAccountInfo(ctx context.Context) AccountInfo {
	if err := r.limiter.Wait(ctx, r.Name()); err != nil {
		return AccountError(err)
	}
	return r.Broker.GetAccountInfo(ctx)
}

func (r *rateLimitedBroker) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := r.limiter.Wait(ctx, r.Name()); err != nil {
		return nil, err
	}
	return r.Broker.GetQuote(ctx, symbol)
}

func (r *rateLimitedBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := r.limiter.Wait(ctx, r.Name()); err != nil {
		return nil, err
	}
	return r.Broker.PlaceOrder(ctx, req)
}

func (r *rateLimitedBroker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := r.limiter.Wait(ctx, r.Name()); err != nil {
		return err
	}
	return r.Broker.CancelOrder(ctx, symbol, orderID)
}

func (r *rateLimitedBroker) GetOrders(ctx context.Context, symbol string) ([]Order, error) {
	if err := r.limiter.Wait(ctx, r.Name()); err != nil {
		return nil, err
	}
	return r.Broker.GetOrders(ctx, symbol)
}
