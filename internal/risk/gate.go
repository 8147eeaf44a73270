package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/logger"
	"github.com/ducminhle1904/tradeguard/internal/metrics"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

const dateLayout = "2006-01-02"

// positionEpsilon is the quantity below which a position is considered flat
const positionEpsilon = 1e-9

// Gate implements per-trade admission control against configurable limits.
// All counters are keyed by calendar date; stale days are pruned on access.
type Gate struct {
	logger     *logger.Logger
	metrics    *metrics.Metrics
	volatility exchange.VolatilitySignal
	now        func() time.Time

	mutex          sync.Mutex
	limits         Limits
	dailyTrades    map[string]int
	dailyPnL       map[string]float64
	marketExposure map[string]float64
	positions      map[string]*Position
}

// Option configures a Gate
type Option func(*Gate)

// WithLogger sets the gate logger
func WithLogger(l *logger.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithVolatilitySignal enables the volatility circuit breaker check
func WithVolatilitySignal(s exchange.VolatilitySignal) Option {
	return func(g *Gate) { g.volatility = s }
}

// WithClock overrides time.Now, used to pick the calendar date
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a new risk gate
func NewGate(limits Limits, opts ...Option) (*Gate, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	g := &Gate{
		limits:         limits,
		now:            time.Now,
		dailyTrades:    make(map[string]int),
		dailyPnL:       make(map[string]float64),
		marketExposure: make(map[string]float64),
		positions:      make(map[string]*Position),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Nop()
	}
	return g, nil
}

func (g *Gate) today() string {
	return g.now().Format(dateLayout)
}

// pruneLocked drops stale trade-count days and P&L days outside the retention window
func (g *Gate) pruneLocked(today string) {
	for date := range g.dailyTrades {
		if date != today {
			delete(g.dailyTrades, date)
		}
	}

	if g.limits.PnLRetentionDays <= 0 {
		return
	}
	cutoff := g.now().AddDate(0, 0, -g.limits.PnLRetentionDays).Format(dateLayout)
	for date := range g.dailyPnL {
		if date < cutoff {
			delete(g.dailyPnL, date)
		}
	}
}

// evaluateLocked runs every check except the volatility signal, in order
func (g *Gate) evaluateLocked(req TradeRequest, today string) Decision {
	l := g.limits
	pv := req.PortfolioValue

	if pv <= 0 {
		return deny(LimitBalance, "Portfolio value must be positive", pv, 0)
	}

	if trades := g.dailyTrades[today]; trades >= l.MaxDailyTrades {
		return deny(LimitDailyTrades,
			fmt.Sprintf("Daily trade limit reached (%d)", l.MaxDailyTrades),
			float64(trades), float64(l.MaxDailyTrades))
	}

	dailyLoss := 0.0
	if pnl := g.dailyPnL[today]; pnl < 0 {
		dailyLoss = -pnl
	}
	if dailyLoss >= pv*l.MaxDailyLoss {
		return deny(LimitDailyLoss,
			fmt.Sprintf("Daily loss limit reached (%.1f%%)", l.MaxDailyLoss*100),
			dailyLoss/pv, l.MaxDailyLoss)
	}

	tradeValue := req.Value()
	positionSize := tradeValue / pv
	if positionSize > l.MaxPositionSize {
		return deny(LimitPositionSize,
			fmt.Sprintf("Position size exceeds limit (%.1f%%)", l.MaxPositionSize*100),
			positionSize, l.MaxPositionSize)
	}

	if req.Action == types.SideBuy && tradeValue > pv*(1-l.MinBalanceRequired) {
		return deny(LimitBalance,
			fmt.Sprintf("Insufficient balance (must keep %.1f%% reserve)", l.MinBalanceRequired*100),
			tradeValue, pv*(1-l.MinBalanceRequired))
	}

	projected := g.marketExposure[string(req.Market)]
	if req.Action == types.SideBuy {
		projected += tradeValue
	} else {
		projected -= tradeValue
	}
	if concentration := projected / pv; concentration > l.MaxConcentration {
		return deny(LimitConcentration,
			fmt.Sprintf("Market concentration limit exceeded (%.1f%%)", l.MaxConcentration*100),
			concentration, l.MaxConcentration)
	}

	if totalRisk := g.totalLossLocked(); totalRisk >= pv*l.MaxPortfolioRisk {
		return deny(LimitPortfolioRisk,
			fmt.Sprintf("Portfolio risk limit reached (%.1f%%)", l.MaxPortfolioRisk*100),
			totalRisk/pv, l.MaxPortfolioRisk)
	}

	return allow()
}

func (g *Gate) totalLossLocked() float64 {
	total := 0.0
	for _, pnl := range g.dailyPnL {
		if pnl < 0 {
			total -= pnl
		}
	}
	return total
}

// checkVolatility consults the external signal. An unavailable signal allows the trade.
func (g *Gate) checkVolatility(ctx context.Context, limits Limits, market types.Market) Decision {
	if g.volatility == nil || !limits.volatilityApplies(market) {
		return allow()
	}

	value, err := g.volatility.Volatility(ctx, market)
	if err != nil {
		g.logger.Warning("Volatility signal unavailable for %s, allowing trade: %v", market, err)
		return allow()
	}
	if value > limits.VolatilityThreshold {
		return deny(LimitCircuitBreaker,
			fmt.Sprintf("Circuit breaker active: high volatility (%.2f)", value),
			value, limits.VolatilityThreshold)
	}
	return allow()
}

// CanTrade checks whether a trade is allowed. It is advisory: nothing is
// reserved, so a concurrent caller may pass the same limit before RecordTrade.
func (g *Gate) CanTrade(ctx context.Context, req TradeRequest) Decision {
	g.mutex.Lock()
	today := g.today()
	g.pruneLocked(today)
	decision := g.evaluateLocked(req, today)
	limits := g.limits
	g.mutex.Unlock()

	if decision.Allowed {
		decision = g.checkVolatility(ctx, limits, req.Market)
	}
	g.report(req, decision)
	return decision
}

// Admit checks the trade and records it in the same critical section when
// allowed, so concurrent callers cannot both pass a limit.
func (g *Gate) Admit(ctx context.Context, req TradeRequest) Decision {
	g.mutex.Lock()
	today := g.today()
	g.pruneLocked(today)
	decision := g.evaluateLocked(req, today)
	limits := g.limits
	g.mutex.Unlock()

	if !decision.Allowed {
		g.report(req, decision)
		return decision
	}

	// The volatility probe may block, so it runs unlocked and the local
	// checks are repeated before the trade is recorded.
	if decision = g.checkVolatility(ctx, limits, req.Market); !decision.Allowed {
		g.report(req, decision)
		return decision
	}

	g.mutex.Lock()
	today = g.today()
	decision = g.evaluateLocked(req, today)
	if decision.Allowed {
		g.recordLocked(req, today)
	}
	g.mutex.Unlock()

	g.report(req, decision)
	if decision.Allowed {
		g.metrics.RecordTrade(string(req.Market), string(req.Action), req.Value())
	}
	return decision
}

func (g *Gate) report(req TradeRequest, d Decision) {
	g.metrics.RecordDecision(d.Allowed, string(d.LimitType))
	if !d.Allowed {
		g.logger.Warning("Trade denied: %s %s %.6f @ %.4f [%s] %s",
			req.Action, req.Symbol, req.Quantity, req.Price, d.LimitType, d.Reason)
	}
}

// RecordTrade records an executed trade for risk tracking
func (g *Gate) RecordTrade(req TradeRequest) {
	if req.Quantity <= 0 || req.Price <= 0 || !req.Action.Valid() {
		g.logger.Warning("Ignoring invalid trade record: %s %s %.6f @ %.4f", req.Action, req.Symbol, req.Quantity, req.Price)
		return
	}

	g.mutex.Lock()
	today := g.today()
	g.pruneLocked(today)
	g.recordLocked(req, today)
	g.mutex.Unlock()

	g.metrics.RecordTrade(string(req.Market), string(req.Action), req.Value())
	g.logger.Trade("Recorded %s %s %.6f @ %.4f (%s)", req.Action, req.Symbol, req.Quantity, req.Price, req.Market)
}

func (g *Gate) recordLocked(req TradeRequest, today string) {
	g.dailyTrades[today]++

	value := req.Value()
	market := string(req.Market)
	pos, exists := g.positions[req.Symbol]

	if req.Action == types.SideBuy {
		g.marketExposure[market] += value
		if !exists {
			g.positions[req.Symbol] = &Position{Quantity: req.Quantity, AvgPrice: req.Price}
			return
		}
		total := pos.Quantity + req.Quantity
		pos.AvgPrice = (pos.AvgPrice*pos.Quantity + req.Price*req.Quantity) / total
		pos.Quantity = total
		return
	}

	g.marketExposure[market] -= value
	if !exists {
		return
	}
	pos.Quantity -= req.Quantity
	if pos.Quantity <= positionEpsilon {
		delete(g.positions, req.Symbol)
	}
}

// RecordExit applies a protective exit to exposure and positions without
// counting it against the daily trade limit
func (g *Gate) RecordExit(req TradeRequest) {
	if req.Quantity <= 0 || req.Price <= 0 || !req.Action.Valid() {
		g.logger.Warning("Ignoring invalid exit record: %s %s %.6f @ %.4f", req.Action, req.Symbol, req.Quantity, req.Price)
		return
	}

	g.mutex.Lock()
	g.pruneLocked(g.today())
	market := string(req.Market)
	if req.Action == types.SideBuy {
		g.marketExposure[market] += req.Value()
	} else {
		g.marketExposure[market] -= req.Value()
		if pos, ok := g.positions[req.Symbol]; ok {
			pos.Quantity -= req.Quantity
			if pos.Quantity <= positionEpsilon {
				delete(g.positions, req.Symbol)
			}
		}
	}
	g.mutex.Unlock()

	g.logger.Trade("Recorded exit %s %s %.6f @ %.4f", req.Action, req.Symbol, req.Quantity, req.Price)
}

// RecordPnL accumulates realized P&L for today
func (g *Gate) RecordPnL(pnl float64) {
	g.RecordPnLOn(g.now(), pnl)
}

// RecordPnLOn accumulates realized P&L for the calendar date of at
func (g *Gate) RecordPnLOn(at time.Time, pnl float64) {
	date := at.Format(dateLayout)

	g.mutex.Lock()
	g.dailyPnL[date] += pnl
	today := g.today()
	g.pruneLocked(today)
	current := g.dailyPnL[today]
	g.mutex.Unlock()

	g.metrics.SetDailyPnL(current)
}

// ResetDailyCounts keeps only today's counters
func (g *Gate) ResetDailyCounts() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	today := g.today()
	trades := g.dailyTrades[today]
	pnl, hasPnL := g.dailyPnL[today]

	g.dailyTrades = map[string]int{today: trades}
	g.dailyPnL = make(map[string]float64)
	if hasPnL {
		g.dailyPnL[today] = pnl
	}
	g.logger.Info("Daily risk counters reset for %s", today)
}

// GetSummary returns current risk counters relative to portfolioValue
func (g *Gate) GetSummary(portfolioValue float64) Summary {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	today := g.today()
	g.pruneLocked(today)

	s := Summary{
		Date:            today,
		DailyTrades:     g.dailyTrades[today],
		MaxDailyTrades:  g.limits.MaxDailyTrades,
		DailyPnL:        g.dailyPnL[today],
		MaxDailyLossPct: g.limits.MaxDailyLoss * 100,
		MarketExposure:  make(map[string]float64, len(g.marketExposure)),
		Positions:       make(map[string]Position, len(g.positions)),
		PositionsCount:  len(g.positions),
		PortfolioRisk:   g.totalLossLocked(),
	}
	for m, v := range g.marketExposure {
		s.MarketExposure[m] = v
		s.TotalExposure += v
	}
	for sym, p := range g.positions {
		s.Positions[sym] = *p
	}
	if portfolioValue > 0 {
		s.DailyPnLPercent = s.DailyPnL / portfolioValue * 100
		s.ExposurePercent = s.TotalExposure / portfolioValue * 100
	}
	return s
}

// Limits returns the current limits
func (g *Gate) Limits() Limits {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.limits
}

// UpdateLimits applies a partial update. The update is rejected as a whole if the result is invalid.
func (g *Gate) UpdateLimits(update LimitUpdate) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	next := update.apply(g.limits)
	if err := next.Validate(); err != nil {
		return err
	}
	g.limits = next
	g.logger.Info("Risk limits updated: position=%.3f trades=%d daily_loss=%.3f portfolio_risk=%.3f concentration=%.3f reserve=%.3f",
		next.MaxPositionSize, next.MaxDailyTrades, next.MaxDailyLoss, next.MaxPortfolioRisk, next.MaxConcentration, next.MinBalanceRequired)
	return nil
}

// Snapshot returns a copy of the gate counters for persistence
func (g *Gate) Snapshot() State {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.pruneLocked(g.today())

	st := State{
		DailyTrades:    make(map[string]int, len(g.dailyTrades)),
		DailyPnL:       make(map[string]float64, len(g.dailyPnL)),
		MarketExposure: make(map[string]float64, len(g.marketExposure)),
		Positions:      make(map[string]Position, len(g.positions)),
	}
	for k, v := range g.dailyTrades {
		st.DailyTrades[k] = v
	}
	for k, v := range g.dailyPnL {
		st.DailyPnL[k] = v
	}
	for k, v := range g.marketExposure {
		st.MarketExposure[k] = v
	}
	for k, v := range g.positions {
		st.Positions[k] = *v
	}
	return st
}

// Restore replaces the gate counters with a persisted snapshot
func (g *Gate) Restore(st State) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.dailyTrades = make(map[string]int, len(st.DailyTrades))
	for k, v := range st.DailyTrades {
		g.dailyTrades[k] = v
	}
	g.dailyPnL = make(map[string]float64, len(st.DailyPnL))
	for k, v := range st.DailyPnL {
		g.dailyPnL[k] = v
	}
	g.marketExposure = make(map[string]float64, len(st.MarketExposure))
	for k, v := range st.MarketExposure {
		g.marketExposure[k] = v
	}
	g.positions = make(map[string]*Position, len(st.Positions))
	for k, v := range st.Positions {
		p := v
		g.positions[k] = &p
	}
	g.pruneLocked(g.today())

	markets := make([]string, 0, len(g.marketExposure))
	for m := range g.marketExposure {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	g.logger.Info("Restored risk state: %d positions, markets %v", len(g.positions), markets)
}
