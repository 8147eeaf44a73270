package exchange_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/exchange/paper"
	"github.com/ducminhle1904/tradeguard/internal/safety"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

func TestCallbacksAdaptBroker(t *testing.T) {
	ctx := context.Background()
	b := paper.New("simulated", &exchange.PaperConfig{Cash: 5000, Prices: map[string]float64{"INFY": 1500}})
	cb := exchange.Callbacks(b)

	price, err := cb.GetPrice(ctx, "INFY")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, price)

	_, err = cb.GetPrice(ctx, "TCS")
	assert.Error(t, err)

	res := cb.Execute(ctx, exchange.ExecutionRequest{Symbol: "INFY", Side: types.SideBuy, Quantity: 2, OrderType: types.OrderTypeMarket, IdempotencyKey: "k1"})
	assert.True(t, res.OK())
	assert.Equal(t, 1500.0, res.FillPrice)
	assert.NotEmpty(t, res.OrderID)

	b.FailOrders(1, errors.New("timeout"))
	res = cb.Execute(ctx, exchange.ExecutionRequest{Symbol: "INFY", Side: types.SideSell, Quantity: 2, OrderType: types.OrderTypeMarket})
	assert.False(t, res.OK())
	assert.Equal(t, "timeout", res.Error)

	_, failed := cb.GetAccountInfo(ctx).Err()
	assert.False(t, failed)
}

func TestRateLimitedBroker(t *testing.T) {
	b := paper.New("simulated", &exchange.PaperConfig{Prices: map[string]float64{"BTCUSDT": 60000}})
	limiter := safety.NewRateLimiter(1, 1)
	rl := exchange.RateLimited(b, limiter)

	_, err := rl.GetQuote(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	// Bucket is empty and the context cannot wait a full second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rl.GetQuote(ctx, "BTCUSDT")
	assert.Error(t, err)
	assert.Equal(t, 1, b.Calls("GetQuote"))

	assert.Same(t, b, exchange.RateLimited(b, nil))
}

func TestAccountInfoErr(t *testing.T) {
	msg, failed := exchange.AccountInfo{"error": "auth expired"}.Err()
	assert.True(t, failed)
	assert.Equal(t, "auth expired", msg)

	_, failed = exchange.AccountInfo{"cash": 1.0}.Err()
	assert.False(t, failed)

	_, failed = exchange.AccountInfo(nil).Err()
	assert.True(t, failed)

	msg, failed = exchange.AccountInfo{"error": errors.New("timeout")}.Err()
	assert.True(t, failed)
	assert.Equal(t, "timeout", msg)

	// the key alone marks failure, whatever it holds
	for _, v := range []interface{}{nil, "", 503} {
		msg, failed = exchange.AccountInfo{"error": v, "cash": 1.0}.Err()
		assert.True(t, failed, "error=%v", v)
		assert.Equal(t, "unknown error", msg)
	}
}

func TestFirstPrice(t *testing.T) {
	streamErr := errors.New("no stream price for AAPL yet")
	missing := exchange.PriceFetcherFunc(func(ctx context.Context, symbol string) (float64, error) { return 0, streamErr })
	rest := exchange.PriceFetcherFunc(func(ctx context.Context, symbol string) (float64, error) { return 187.5, nil })

	price, err := exchange.FirstPrice{missing, rest}.GetPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 187.5, price)

	_, err = exchange.FirstPrice{missing}.GetPrice(context.Background(), "AAPL")
	assert.ErrorIs(t, err, streamErr)

	_, err = exchange.FirstPrice{}.GetPrice(context.Background(), "AAPL")
	assert.ErrorContains(t, err, "no price source")
}
