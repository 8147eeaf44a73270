package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/exchange/paper"
	"github.com/ducminhle1904/tradeguard/internal/health"
	"github.com/ducminhle1904/tradeguard/internal/risk"
	"github.com/ducminhle1904/tradeguard/internal/sizing"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

type harness struct {
	broker   *paper.Broker
	gate     *risk.Gate
	brackets *bracket.Manager
	monitor  *health.Monitor
	guard    *Guard
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	broker := paper.New("paper", &exchange.PaperConfig{
		Cash:   100000,
		Prices: map[string]float64{"AAPL": 100},
	})

	monitor, err := health.NewMonitor(health.DefaultConfig())
	require.NoError(t, err)
	monitor.RegisterBroker("paper", broker)

	gate, err := risk.NewGate(risk.DefaultLimits())
	require.NoError(t, err)

	sizer, err := sizing.NewCalculator(sizing.DefaultConfig())
	require.NoError(t, err)

	brackets, err := bracket.NewManager(bracket.DefaultConfig(),
		bracket.WithExecution(exchange.Callbacks(broker)),
		bracket.WithHooks(ExitHooks(gate, monitor, "paper", nil)))
	require.NoError(t, err)

	return &harness{
		broker:   broker,
		gate:     gate,
		brackets: brackets,
		monitor:  monitor,
		guard:    NewGuard(broker, sizer, gate, brackets, monitor),
	}
}

func TestSubmitExecutesAndBrackets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.guard.Submit(ctx, TradeIntent{Symbol: "AAPL", Side: types.SideBuy, Market: types.MarketNASDAQ})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, res.Status, res.Reason)

	require.NotNil(t, res.Sizing)
	assert.Equal(t, sizing.MethodPercentage, res.Sizing.Method)
	assert.InDelta(t, 20.0, res.Sizing.Quantity, 1e-9)
	assert.True(t, res.Decision.Allowed)
	assert.InDelta(t, 100.0, res.Execution.FillPrice, 1e-9)
	assert.InDelta(t, 20.0, h.broker.Position("AAPL"), 1e-9)

	require.NotNil(t, res.Bracket)
	assert.InDelta(t, 98.0, res.Bracket.StopLoss(), 1e-9)
	assert.InDelta(t, 104.0, res.Bracket.TakeProfit(), 1e-9)
	_, ok := h.brackets.GetForSymbol("AAPL")
	assert.True(t, ok)

	summary := h.gate.GetSummary(100000)
	assert.Equal(t, 1, summary.DailyTrades)
	assert.InDelta(t, 2000.0, summary.MarketExposure[string(types.MarketNASDAQ)], 1e-9)

	stats := h.monitor.GetExecutionStats("paper", 0)["paper"]
	assert.Equal(t, 1, stats.Total)
}

func TestSubmitStopLossSizing(t *testing.T) {
	h := newHarness(t)
	cfg := sizing.DefaultConfig()
	cfg.Method = sizing.MethodRiskBased
	sizer, err := sizing.NewCalculator(cfg)
	require.NoError(t, err)
	g := NewGuard(h.broker, sizer, h.gate, h.brackets, h.monitor)

	res, err := g.Submit(context.Background(), TradeIntent{Symbol: "AAPL", Side: types.SideBuy, StopLossPct: 0.05})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, res.Status, res.Reason)

	// 1% of 100000 at risk over a 5 dollar stop, capped at 10% of the portfolio
	assert.InDelta(t, 100.0, res.Sizing.Quantity, 1e-9)
	assert.InDelta(t, 95.0, res.Bracket.StopLoss(), 1e-9)
}

func TestSubmitRiskSizingUsesDefaultBracketStop(t *testing.T) {
	h := newHarness(t)
	cfg := sizing.DefaultConfig()
	cfg.Method = sizing.MethodRiskBased
	cfg.RiskPerTrade = 0.001
	sizer, err := sizing.NewCalculator(cfg)
	require.NoError(t, err)
	g := NewGuard(h.broker, sizer, h.gate, h.brackets, h.monitor)

	res, err := g.Submit(context.Background(), TradeIntent{Symbol: "AAPL", Side: types.SideBuy})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, res.Status, res.Reason)

	// 100 dollars at risk over the 2% bracket stop of 2 dollars
	assert.Equal(t, sizing.MethodRiskBased, res.Sizing.Method)
	assert.InDelta(t, 2.0, res.Sizing.RiskPerShare, 1e-9)
	assert.InDelta(t, 50.0, res.Sizing.Quantity, 1e-9)
	require.NotNil(t, res.Bracket)
	assert.InDelta(t, 98.0, res.Bracket.StopLoss(), 1e-9)

	res, err = g.Submit(context.Background(), TradeIntent{Symbol: "AAPL", Side: types.SideBuy, NoBracket: true})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, res.Status, res.Reason)
	assert.Equal(t, sizing.MethodPercentage, res.Sizing.Method, "no stop without a bracket")
}

// disconnectingBroker cancels the submitting caller while its order is in flight
type disconnectingBroker struct {
	*paper.Broker
	cancel context.CancelFunc
}

func (b *disconnectingBroker) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	b.cancel()
	return b.Broker.PlaceOrder(ctx, req)
}

func TestSubmitSurvivesCallerCancelDuringEntry(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sizer, err := sizing.NewCalculator(sizing.DefaultConfig())
	require.NoError(t, err)
	g := NewGuard(&disconnectingBroker{Broker: h.broker, cancel: cancel}, sizer, h.gate, h.brackets, h.monitor)

	res, err := g.Submit(ctx, TradeIntent{Symbol: "AAPL", Side: types.SideBuy, Market: types.MarketNASDAQ})
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	require.Equal(t, StatusExecuted, res.Status, res.Reason)

	assert.InDelta(t, 20.0, h.broker.Position("AAPL"), 1e-9)
	require.NotNil(t, res.Bracket)
	_, ok := h.brackets.GetForSymbol("AAPL")
	assert.True(t, ok)
	assert.Equal(t, 1, h.gate.GetSummary(100000).DailyTrades)
}

func TestSubmitEntryTimeout(t *testing.T) {
	h := newHarness(t)
	sizer, err := sizing.NewCalculator(sizing.DefaultConfig())
	require.NoError(t, err)
	g := NewGuard(h.broker, sizer, h.gate, h.brackets, h.monitor, WithEntryTimeout(20*time.Millisecond))
	h.broker.SetLatency(200 * time.Millisecond)

	res, err := g.Submit(context.Background(), TradeIntent{Symbol: "AAPL", Side: types.SideBuy})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "deadline")
	assert.Equal(t, 0, h.gate.GetSummary(100000).DailyTrades)
	assert.Empty(t, h.brackets.GetActive())
}

func TestSubmitPausedOnUnhealthyBroker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.broker.SetProbeError("maintenance")
	h.monitor.CheckBrokerHealth(ctx, "paper")

	res, err := h.guard.Submit(ctx, TradeIntent{Symbol: "AAPL", Side: types.SideBuy})
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, res.Status)
	assert.Equal(t, 0, h.broker.Calls("PlaceOrder"))
	assert.Equal(t, 0, h.gate.GetSummary(100000).DailyTrades)
}

func TestSubmitRejectedByGate(t *testing.T) {
	h := newHarness(t)

	res, err := h.guard.Submit(context.Background(), TradeIntent{Symbol: "AAPL", Side: types.SideBuy, Quantity: 200})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, risk.LimitPositionSize, res.Decision.LimitType)
	assert.Nil(t, res.Sizing, "explicit quantity skips sizing")
	assert.Equal(t, 0, h.broker.Calls("PlaceOrder"))
	assert.Empty(t, h.brackets.GetActive())
}

func TestSubmitExecutionFailure(t *testing.T) {
	h := newHarness(t)
	h.broker.FailOrders(1, errors.New("exchange unavailable"))

	res, err := h.guard.Submit(context.Background(), TradeIntent{Symbol: "AAPL", Side: types.SideBuy})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "exchange unavailable")

	assert.Equal(t, 0, h.gate.GetSummary(100000).DailyTrades, "failed execution is not recorded")
	assert.Empty(t, h.brackets.GetActive())

	stats := h.monitor.GetExecutionStats("paper", 0)["paper"]
	assert.Equal(t, 1, stats.Failed)
}

func TestSubmitBracketConflictKeepsPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.guard.Submit(ctx, TradeIntent{Symbol: "AAPL", Side: types.SideBuy})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, first.Status)

	second, err := h.guard.Submit(ctx, TradeIntent{Symbol: "AAPL", Side: types.SideBuy})
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, second.Status)
	assert.Nil(t, second.Bracket)
	assert.NotEmpty(t, second.BracketError)
	assert.Equal(t, 2, h.gate.GetSummary(100000).DailyTrades)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		intent TradeIntent
	}{
		{"missing symbol", TradeIntent{Side: types.SideBuy}},
		{"bad side", TradeIntent{Symbol: "AAPL", Side: "HOLD"}},
		{"negative quantity", TradeIntent{Symbol: "AAPL", Side: types.SideBuy, Quantity: -1}},
		{"limit without price", TradeIntent{Symbol: "AAPL", Side: types.SideBuy, OrderType: types.OrderTypeLimit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.guard.Submit(ctx, tt.intent)
			require.Error(t, err)
			assert.True(t, boterrors.HasCategory(err, boterrors.ErrorCategoryValidation))
		})
	}
	assert.Equal(t, 0, h.broker.Calls("PlaceOrder"))
}

func TestSubmitUnknownSymbol(t *testing.T) {
	h := newHarness(t)

	res, err := h.guard.Submit(context.Background(), TradeIntent{Symbol: "MSFT", Side: types.SideBuy})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "MSFT")
}

func TestSubmitPortfolioValueOverride(t *testing.T) {
	h := newHarness(t)
	sizer, err := sizing.NewCalculator(sizing.DefaultConfig())
	require.NoError(t, err)
	g := NewGuard(h.broker, sizer, h.gate, nil, nil,
		WithPortfolioValue(func(context.Context) (float64, error) { return 50000, nil }))

	res, err := g.Submit(context.Background(), TradeIntent{Symbol: "AAPL", Side: types.SideBuy})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, res.Status)
	assert.InDelta(t, 10.0, res.Sizing.Quantity, 1e-9)
	assert.Nil(t, res.Bracket)
}

func TestExitHooksFeedGateAndMonitor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.guard.Submit(ctx, TradeIntent{Symbol: "AAPL", Side: types.SideBuy, Market: types.MarketNASDAQ})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, res.Status)

	h.broker.SetPrice("AAPL", 97)
	h.brackets.UpdatePrices(ctx, map[string]float64{"AAPL": 97})

	assert.Empty(t, h.brackets.GetActive())
	assert.InDelta(t, 0.0, h.broker.Position("AAPL"), 1e-9)

	summary := h.gate.GetSummary(100000)
	assert.InDelta(t, -60.0, summary.DailyPnL, 1e-9)
	assert.Equal(t, 1, summary.DailyTrades, "exits do not count as trades")
	assert.Equal(t, 0, summary.PositionsCount)

	stats := h.monitor.GetExecutionStats("paper", time.Hour)["paper"]
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Success)
}
