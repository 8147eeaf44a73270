package risk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGate(t *testing.T, mutate func(*Limits), opts ...Option) (*Gate, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	limits := DefaultLimits()
	if mutate != nil {
		mutate(&limits)
	}
	g, err := NewGate(limits, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return g, clock
}

func buy(symbol string, qty, price, pv float64, market types.Market) TradeRequest {
	return TradeRequest{Symbol: symbol, Action: types.SideBuy, Quantity: qty, Price: price, PortfolioValue: pv, Market: market}
}

func TestDailyTradeLimit(t *testing.T) {
	g, _ := newTestGate(t, func(l *Limits) { l.MaxDailyTrades = 5 })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req := buy("BTCUSDT", 0.01, 1000, 100000, types.MarketCrypto)
		require.True(t, g.CanTrade(ctx, req).Allowed, "trade %d", i+1)
		g.RecordTrade(req)
	}

	d := g.CanTrade(ctx, buy("BTCUSDT", 0.01, 1000, 100000, types.MarketCrypto))
	assert.False(t, d.Allowed)
	assert.Equal(t, LimitDailyTrades, d.LimitType)
	assert.Contains(t, d.Reason, "Daily trade limit")
}

func TestPositionSizeLimit(t *testing.T) {
	g, _ := newTestGate(t, nil)

	d := g.CanTrade(context.Background(), buy("ETHUSDT", 20, 100, 10000, types.MarketCrypto))
	assert.False(t, d.Allowed)
	assert.Equal(t, LimitPositionSize, d.LimitType)
	assert.InDelta(t, 0.20, d.Value, 1e-12)
	assert.InDelta(t, 0.10, d.Limit, 1e-12)
}

func TestCheckOrdering(t *testing.T) {
	ctx := context.Background()

	t.Run("daily loss", func(t *testing.T) {
		g, _ := newTestGate(t, nil)
		g.RecordPnL(-500)
		d := g.CanTrade(ctx, buy("AAA", 1, 10, 10000, types.MarketCrypto))
		assert.Equal(t, LimitDailyLoss, d.LimitType)
	})

	t.Run("daily trades wins over position size", func(t *testing.T) {
		g, _ := newTestGate(t, func(l *Limits) { l.MaxDailyTrades = 1 })
		g.RecordTrade(buy("AAA", 1, 10, 10000, types.MarketCrypto))
		d := g.CanTrade(ctx, buy("AAA", 500, 10, 10000, types.MarketCrypto))
		assert.Equal(t, LimitDailyTrades, d.LimitType)
	})

	t.Run("balance reserve on buys only", func(t *testing.T) {
		g, _ := newTestGate(t, func(l *Limits) {
			l.MaxPositionSize = 1
			l.MaxConcentration = 1
			l.MinBalanceRequired = 0.5
		})
		d := g.CanTrade(ctx, buy("AAA", 60, 100, 10000, types.MarketCrypto))
		assert.Equal(t, LimitBalance, d.LimitType)

		sell := buy("AAA", 60, 100, 10000, types.MarketCrypto)
		sell.Action = types.SideSell
		assert.True(t, g.CanTrade(ctx, sell).Allowed)
	})

	t.Run("concentration", func(t *testing.T) {
		g, _ := newTestGate(t, nil)
		g.RecordTrade(buy("AAA", 25, 100, 10000, types.MarketNSE))
		g.RecordTrade(buy("BBB", 5, 100, 10000, types.MarketBSE))

		d := g.CanTrade(ctx, buy("CCC", 10, 100, 10000, types.MarketNSE))
		assert.Equal(t, LimitConcentration, d.LimitType)
		assert.InDelta(t, 0.35, d.Value, 1e-12)

		// Other markets are unaffected
		assert.True(t, g.CanTrade(ctx, buy("CCC", 10, 100, 10000, types.MarketBSE)).Allowed)
	})

	t.Run("portfolio risk across days", func(t *testing.T) {
		g, clock := newTestGate(t, nil)
		now := clock.Now()
		g.RecordPnLOn(now.AddDate(0, 0, -1), -1500)
		assert.True(t, g.CanTrade(ctx, buy("AAA", 1, 100, 10000, types.MarketCrypto)).Allowed)

		g.RecordPnLOn(now.AddDate(0, 0, -2), -600)
		d := g.CanTrade(ctx, buy("AAA", 1, 100, 10000, types.MarketCrypto))
		assert.Equal(t, LimitPortfolioRisk, d.LimitType)
	})

	t.Run("non-positive portfolio", func(t *testing.T) {
		g, _ := newTestGate(t, nil)
		d := g.CanTrade(ctx, buy("AAA", 1, 100, 0, types.MarketCrypto))
		assert.False(t, d.Allowed)
		assert.Equal(t, LimitBalance, d.LimitType)
	})
}

func TestVolatilityCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	var calls int32
	level := 40.0
	var sigErr error
	signal := exchange.VolatilityFunc(func(ctx context.Context, m types.Market) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return level, sigErr
	})

	g, _ := newTestGate(t, nil, WithVolatilitySignal(signal))

	d := g.CanTrade(ctx, buy("AAPL", 1, 100, 10000, types.MarketNASDAQ))
	assert.Equal(t, LimitCircuitBreaker, d.LimitType)
	assert.InDelta(t, 40.0, d.Value, 1e-12)

	// Non-US markets never consult the signal
	assert.True(t, g.CanTrade(ctx, buy("RELIANCE", 1, 100, 10000, types.MarketNSE)).Allowed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Unavailable signal fails open
	sigErr = errors.New("feed down")
	assert.True(t, g.CanTrade(ctx, buy("AAPL", 1, 100, 10000, types.MarketNYSE)).Allowed)

	// Earlier denials short-circuit before the signal
	sigErr = nil
	before := atomic.LoadInt32(&calls)
	assert.Equal(t, LimitPositionSize, g.CanTrade(ctx, buy("AAPL", 50, 100, 10000, types.MarketNYSE)).LimitType)
	assert.Equal(t, before, atomic.LoadInt32(&calls))

	level = 20
	assert.True(t, g.CanTrade(ctx, buy("AAPL", 1, 100, 10000, types.MarketNYSE)).Allowed)
}

func TestDateKeyedCountersRollOver(t *testing.T) {
	g, clock := newTestGate(t, func(l *Limits) { l.MaxDailyTrades = 2 })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		g.RecordTrade(buy("AAA", 1, 10, 10000, types.MarketCrypto))
	}
	g.RecordPnL(-100)
	assert.Equal(t, LimitDailyTrades, g.CanTrade(ctx, buy("AAA", 1, 10, 10000, types.MarketCrypto)).LimitType)

	clock.Advance(24 * time.Hour)
	assert.True(t, g.CanTrade(ctx, buy("AAA", 1, 10, 10000, types.MarketCrypto)).Allowed)

	s := g.GetSummary(10000)
	assert.Equal(t, 0, s.DailyTrades)
	assert.Equal(t, 0.0, s.DailyPnL)
	// Yesterday's loss still counts toward portfolio risk
	assert.InDelta(t, 100.0, s.PortfolioRisk, 1e-12)
}

func TestPnLRetentionWindow(t *testing.T) {
	g, clock := newTestGate(t, func(l *Limits) { l.PnLRetentionDays = 2 })

	g.RecordPnL(-100)
	clock.Advance(24 * time.Hour)
	g.RecordPnL(-50)
	assert.InDelta(t, 150.0, g.GetSummary(10000).PortfolioRisk, 1e-12)

	clock.Advance(3 * 24 * time.Hour)
	assert.Equal(t, 0.0, g.GetSummary(10000).PortfolioRisk)
}

func TestPositionTracking(t *testing.T) {
	g, _ := newTestGate(t, nil)

	g.RecordTrade(buy("AAA", 10, 100, 100000, types.MarketNYSE))
	g.RecordTrade(buy("AAA", 10, 110, 100000, types.MarketNYSE))

	s := g.GetSummary(100000)
	require.Contains(t, s.Positions, "AAA")
	assert.InDelta(t, 20.0, s.Positions["AAA"].Quantity, 1e-12)
	assert.InDelta(t, 105.0, s.Positions["AAA"].AvgPrice, 1e-12)
	assert.InDelta(t, 2100.0, s.MarketExposure["NYSE"], 1e-9)
	assert.InDelta(t, 2.1, s.ExposurePercent, 1e-9)

	sell := buy("AAA", 5, 120, 100000, types.MarketNYSE)
	sell.Action = types.SideSell
	g.RecordTrade(sell)
	s = g.GetSummary(100000)
	assert.InDelta(t, 15.0, s.Positions["AAA"].Quantity, 1e-12)
	assert.InDelta(t, 105.0, s.Positions["AAA"].AvgPrice, 1e-12)

	sell.Quantity = 15
	g.RecordTrade(sell)
	s = g.GetSummary(100000)
	assert.NotContains(t, s.Positions, "AAA")
	assert.Equal(t, 0, s.PositionsCount)

	// Invalid records are ignored
	g.RecordTrade(TradeRequest{Symbol: "BAD", Action: types.SideBuy, Quantity: 0, Price: 10})
	assert.Equal(t, 4, g.GetSummary(100000).DailyTrades)
}

func TestAdmitIsAtomic(t *testing.T) {
	g, _ := newTestGate(t, func(l *Limits) { l.MaxDailyTrades = 5 })
	ctx := context.Background()

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit(ctx, buy("AAA", 1, 10, 100000, types.MarketCrypto)).Allowed {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed)
	assert.Equal(t, 5, g.GetSummary(100000).DailyTrades)
}

func TestUpdateLimits(t *testing.T) {
	g, _ := newTestGate(t, nil)

	size := 0.25
	require.NoError(t, g.UpdateLimits(LimitUpdate{MaxPositionSize: &size}))
	assert.Equal(t, 0.25, g.Limits().MaxPositionSize)
	assert.Equal(t, 10, g.Limits().MaxDailyTrades)

	bad := 1.5
	err := g.UpdateLimits(LimitUpdate{MaxDailyLoss: &bad})
	require.Error(t, err)
	assert.True(t, boterrors.HasCategory(err, boterrors.ErrorCategoryConfiguration))
	assert.Equal(t, 0.05, g.Limits().MaxDailyLoss)

	_, err = NewGate(Limits{})
	assert.Error(t, err)
}

func TestResetAndSnapshot(t *testing.T) {
	g, clock := newTestGate(t, nil)

	g.RecordPnLOn(clock.Now().AddDate(0, 0, -3), -200)
	g.RecordPnL(50)
	g.RecordTrade(buy("AAA", 2, 100, 10000, types.MarketCrypto))

	snap := g.Snapshot()
	assert.Len(t, snap.DailyPnL, 2)
	assert.Equal(t, 1, snap.DailyTrades["2024-03-15"])

	g.ResetDailyCounts()
	s := g.GetSummary(10000)
	assert.Equal(t, 0.0, s.PortfolioRisk)
	assert.Equal(t, 50.0, s.DailyPnL)
	assert.Equal(t, 1, s.DailyTrades)

	restored, _ := newTestGate(t, nil)
	restored.Restore(snap)
	s = restored.GetSummary(10000)
	assert.InDelta(t, 200.0, s.PortfolioRisk, 1e-12)
	assert.Equal(t, 1, s.DailyTrades)
	assert.InDelta(t, 2.0, s.Positions["AAA"].Quantity, 1e-12)
}

func TestRecordExitDoesNotCountAsTrade(t *testing.T) {
	g, _ := newTestGate(t, nil)

	g.RecordTrade(buy("AAPL", 10, 100, 100000, types.MarketNASDAQ))
	g.RecordExit(TradeRequest{Symbol: "AAPL", Action: types.SideSell, Quantity: 10, Price: 97, Market: types.MarketNASDAQ})

	s := g.GetSummary(100000)
	assert.Equal(t, 1, s.DailyTrades)
	assert.Empty(t, s.Positions)
	assert.InDelta(t, 30.0, s.MarketExposure["NASDAQ"], 1e-9)
}
