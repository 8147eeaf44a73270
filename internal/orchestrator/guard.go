package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/logger"
	"github.com/ducminhle1904/tradeguard/internal/risk"
	"github.com/ducminhle1904/tradeguard/internal/sizing"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

// Sizer computes order quantities
type Sizer interface {
	CalculatePositionSize(req sizing.Request) (sizing.Result, error)
}

// BracketCreator registers protective brackets for new positions
type BracketCreator interface {
	Create(req bracket.CreateRequest) (bracket.Order, error)
	DefaultStopLossPct() float64
}

// HealthGate is the part of the health monitor consulted on every order
type HealthGate interface {
	ShouldPauseTrading(broker string) bool
	RecordExecution(broker, symbol string, success bool, took time.Duration, errMsg string)
}

// TradeIntent is a trading decision to be guarded and executed
type TradeIntent struct {
	Symbol     string          `json:"symbol"`
	Side       types.Side      `json:"side"`
	Market     types.Market    `json:"market,omitempty"`
	OrderType  types.OrderType `json:"order_type,omitempty"`
	LimitPrice float64         `json:"limit_price,omitempty"`
	Quantity   float64         `json:"quantity,omitempty"` // 0 sizes the order with the position sizer

	// Bracket overrides; zero values use the bracket manager defaults
	StopLossPct           float64  `json:"stop_loss_pct,omitempty"`
	TakeProfitPct         float64  `json:"take_profit_pct,omitempty"`
	TrailingStopPct       float64  `json:"trailing_stop_pct,omitempty"`
	TrailingActivationPct *float64 `json:"trailing_activation_pct,omitempty"`
	NoBracket             bool     `json:"no_bracket,omitempty"`

	// Kelly inputs, optional
	WinRate *float64 `json:"win_rate,omitempty"`
	AvgWin  *float64 `json:"avg_win,omitempty"`
	AvgLoss *float64 `json:"avg_loss,omitempty"`
}

// SubmitStatus is the outcome of Submit
type SubmitStatus string

const (
	StatusExecuted SubmitStatus = "executed"
	StatusRejected SubmitStatus = "rejected"
	StatusPaused   SubmitStatus = "paused"
	StatusFailed   SubmitStatus = "failed"
)

// SubmitResult reports every stage a submission went through
type SubmitResult struct {
	Status       SubmitStatus             `json:"status"`
	Reason       string                   `json:"reason,omitempty"`
	Price        float64                  `json:"price"`
	Sizing       *sizing.Result           `json:"sizing,omitempty"`
	Decision     risk.Decision            `json:"decision"`
	Execution    exchange.ExecutionResult `json:"execution"`
	Bracket      *bracket.Order           `json:"bracket,omitempty"`
	BracketError string                   `json:"bracket_error,omitempty"`
}

const defaultEntryTimeout = 30 * time.Second

// PortfolioValueFunc returns the current portfolio value
type PortfolioValueFunc func(ctx context.Context) (float64, error)

// Guard runs a trade intent through health, sizing, risk admission, execution
// and bracket registration against one broker
type Guard struct {
	broker   exchange.Broker
	calls    *exchange.BrokerCallbacks
	sizer    Sizer
	gate     risk.Gatekeeper
	brackets BracketCreator
	health   HealthGate
	logger   *logger.Logger
	value    PortfolioValueFunc

	// entries run detached from the caller, bounded by this
	entryTimeout time.Duration

	// serializes check-then-record so concurrent submissions cannot overshoot limits
	submitMutex sync.Mutex
}

// Option configures a Guard
type Option func(*Guard)

// WithLogger sets the guard logger
func WithLogger(l *logger.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithPortfolioValue overrides how the portfolio value is obtained
func WithPortfolioValue(fn PortfolioValueFunc) Option {
	return func(g *Guard) { g.value = fn }
}

// WithEntryTimeout bounds how long an entry order may take once submitted
func WithEntryTimeout(d time.Duration) Option {
	return func(g *Guard) { g.entryTimeout = d }
}

// NewGuard wires the guard components around broker. brackets and health may be nil.
func NewGuard(broker exchange.Broker, sizer Sizer, gate risk.Gatekeeper, brackets BracketCreator, health HealthGate, opts ...Option) *Guard {
	g := &Guard{
		broker:   broker,
		calls:    exchange.Callbacks(broker),
		sizer:    sizer,
		gate:     gate,
		brackets: brackets,
		health:   health,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Nop()
	}
	if g.value == nil {
		g.value = g.accountValue
	}
	if g.entryTimeout <= 0 {
		g.entryTimeout = defaultEntryTimeout
	}
	return g
}

// PortfolioValue returns the value sizing and admission are computed against
func (g *Guard) PortfolioValue(ctx context.Context) (float64, error) {
	return g.value(ctx)
}

// accountValue reads the portfolio value from the broker account snapshot
func (g *Guard) accountValue(ctx context.Context) (float64, error) {
	info := g.broker.GetAccountInfo(ctx)
	if msg, failed := info.Err(); failed {
		return 0, fmt.Errorf("account info unavailable: %s", msg)
	}
	for _, key := range []string{"total_equity", "equity", "portfolio_value", "cash"} {
		if v, ok := info[key].(float64); ok && v > 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("account info carries no portfolio value")
}

// Submit guards and executes one trade intent. Guard refusals are reported in
// the result; only malformed intents return an error.
func (g *Guard) Submit(ctx context.Context, intent TradeIntent) (SubmitResult, error) {
	intent.Symbol = strings.TrimSpace(intent.Symbol)
	if intent.Symbol == "" {
		return SubmitResult{}, boterrors.NewValidationError("guard", "submit", "symbol is required")
	}
	side, err := types.ParseSide(string(intent.Side))
	if err != nil {
		return SubmitResult{}, boterrors.NewValidationError("guard", "submit", err.Error())
	}
	intent.Side = side
	if intent.Quantity < 0 {
		return SubmitResult{}, boterrors.NewValidationError("guard", "submit", "quantity must not be negative")
	}
	if intent.OrderType == "" {
		intent.OrderType = types.OrderTypeMarket
	}
	if intent.OrderType == types.OrderTypeLimit && intent.LimitPrice <= 0 {
		return SubmitResult{}, boterrors.NewValidationError("guard", "submit", "limit orders need a positive limit price")
	}

	brokerName := g.broker.Name()
	if g.health != nil && g.health.ShouldPauseTrading(brokerName) {
		g.logger.Warning("Trading paused on %s, skipping %s %s", brokerName, intent.Side, intent.Symbol)
		return SubmitResult{Status: StatusPaused, Reason: fmt.Sprintf("broker %s is unhealthy", brokerName)}, nil
	}

	price := intent.LimitPrice
	if price <= 0 {
		p, err := g.calls.GetPrice(ctx, intent.Symbol)
		if err != nil {
			return SubmitResult{Status: StatusFailed, Reason: fmt.Sprintf("no price for %s: %v", intent.Symbol, err)}, nil
		}
		price = p
	}

	portfolio, err := g.value(ctx)
	if err != nil {
		return SubmitResult{Status: StatusFailed, Price: price, Reason: err.Error()}, nil
	}

	res := SubmitResult{Price: price}
	quantity := intent.Quantity
	if quantity == 0 {
		sized, err := g.size(intent, price, portfolio)
		if err != nil {
			return SubmitResult{}, err
		}
		res.Sizing = &sized
		quantity = sized.Quantity
	}
	if quantity <= 0 {
		res.Status = StatusRejected
		res.Reason = "position size is zero"
		return res, nil
	}

	req := risk.TradeRequest{
		Symbol:         intent.Symbol,
		Action:         intent.Side,
		Quantity:       quantity,
		Price:          price,
		PortfolioValue: portfolio,
		Market:         intent.Market,
	}

	g.submitMutex.Lock()
	defer g.submitMutex.Unlock()

	res.Decision = g.gate.CanTrade(ctx, req)
	if !res.Decision.Allowed {
		g.logger.Warning("Trade rejected: %s %s %.6f (%s: %s)", intent.Side, intent.Symbol, quantity, res.Decision.LimitType, res.Decision.Reason)
		res.Status = StatusRejected
		res.Reason = res.Decision.Reason
		return res, nil
	}

	// A caller that goes away after the broker accepts the order must not
	// leave the fill unrecorded and unprotected.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.entryTimeout)
	defer cancel()
	res.Execution = g.calls.Execute(execCtx, exchange.ExecutionRequest{
		Symbol:         intent.Symbol,
		Side:           intent.Side,
		Quantity:       quantity,
		OrderType:      intent.OrderType,
		Price:          intent.LimitPrice,
		Market:         intent.Market,
		IdempotencyKey: "entry-" + uuid.NewString(),
	})
	if g.health != nil {
		g.health.RecordExecution(brokerName, intent.Symbol, res.Execution.OK(), res.Execution.Duration, res.Execution.Error)
	}
	if !res.Execution.OK() {
		g.logger.Error("Execution failed for %s %s: %s", intent.Side, intent.Symbol, res.Execution.Error)
		res.Status = StatusFailed
		res.Reason = res.Execution.Error
		return res, nil
	}

	fill := res.Execution.FillPrice
	if fill <= 0 {
		fill = price
	}
	req.Price = fill
	g.gate.RecordTrade(req)
	res.Status = StatusExecuted

	if g.brackets == nil || intent.NoBracket {
		return res, nil
	}

	o, err := g.brackets.Create(bracket.CreateRequest{
		Symbol:                intent.Symbol,
		Market:                intent.Market,
		EntryPrice:            fill,
		Quantity:              quantity,
		Side:                  intent.Side,
		StopLossPct:           intent.StopLossPct,
		TakeProfitPct:         intent.TakeProfitPct,
		TrailingStopPct:       intent.TrailingStopPct,
		TrailingActivationPct: intent.TrailingActivationPct,
	})
	if err != nil {
		g.logger.Critical("Position %s %s opened without bracket: %v", intent.Side, intent.Symbol, err)
		res.BracketError = err.Error()
		return res, nil
	}
	res.Bracket = &o
	return res, nil
}

func (g *Guard) size(intent TradeIntent, price, portfolio float64) (sizing.Result, error) {
	req := sizing.Request{
		PortfolioValue: portfolio,
		Price:          price,
		WinRate:        intent.WinRate,
		AvgWin:         intent.AvgWin,
		AvgLoss:        intent.AvgLoss,
	}
	if pct := g.stopLossPct(intent); pct > 0 {
		stop := price * (1 - pct)
		if intent.Side == types.SideSell {
			stop = price * (1 + pct)
		}
		req.StopLoss = &stop
	}
	return g.sizer.CalculatePositionSize(req)
}

// stopLossPct is the stop the bracket will be placed at, so risk-based sizing
// and the protective order agree. Unbracketed intents only use an explicit stop.
func (g *Guard) stopLossPct(intent TradeIntent) float64 {
	if intent.StopLossPct > 0 || g.brackets == nil || intent.NoBracket {
		return intent.StopLossPct
	}
	return g.brackets.DefaultStopLossPct()
}

// ExitRecorder is the part of the risk gate that absorbs bracket exits
type ExitRecorder interface {
	RecordPnL(pnl float64)
	RecordExit(req risk.TradeRequest)
}

// ExitHooks feeds bracket exits back into the risk gate and the health monitor
func ExitHooks(gate ExitRecorder, health HealthGate, brokerName string, log *logger.Logger) bracket.Hooks {
	if log == nil {
		log = logger.Nop()
	}
	return bracket.Hooks{
		OnExit: func(ev bracket.ExitEvent) {
			o := ev.Order
			if health != nil && ev.Attempts > 0 {
				health.RecordExecution(brokerName, o.Symbol, ev.Err == nil, ev.Result.Duration, ev.Result.Error)
			}
			if ev.Err != nil {
				return
			}
			gate.RecordPnL(ev.PnL)
			gate.RecordExit(risk.TradeRequest{
				Symbol:   o.Symbol,
				Action:   o.Side.Opposite(),
				Quantity: o.Quantity,
				Price:    o.ExitPrice,
				Market:   o.Market,
			})
			log.Info("Bracket %s closed by %s, realized P&L %.2f", o.ID, ev.Reason, ev.PnL)
		},
	}
}
