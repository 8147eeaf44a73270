package risk

import (
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

// LimitType names the check that denied a trade
type LimitType string

const (
	LimitNone           LimitType = ""
	LimitDailyTrades    LimitType = "daily_trades"
	LimitDailyLoss      LimitType = "daily_loss"
	LimitPositionSize   LimitType = "position_size"
	LimitBalance        LimitType = "balance"
	LimitConcentration  LimitType = "concentration"
	LimitPortfolioRisk  LimitType = "portfolio_risk"
	LimitCircuitBreaker LimitType = "circuit_breaker"
)

// TradeRequest is a proposed (or executed) trade
type TradeRequest struct {
	Symbol         string       `json:"symbol"`
	Action         types.Side   `json:"action"`
	Quantity       float64      `json:"quantity"`
	Price          float64      `json:"price"`
	PortfolioValue float64      `json:"portfolio_value"`
	Market         types.Market `json:"market"`
}

// Value returns the notional value of the trade
func (r TradeRequest) Value() float64 {
	return r.Quantity * r.Price
}

// Decision is the result of an admission check
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	LimitType LimitType `json:"limit_type,omitempty"`
	Value     float64   `json:"value,omitempty"` // Observed value for ratio checks
	Limit     float64   `json:"limit,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true, Reason: "All risk checks passed"}
}

func deny(limit LimitType, reason string, value, threshold float64) Decision {
	return Decision{Reason: reason, LimitType: limit, Value: value, Limit: threshold}
}

// Position is the weighted-average position tracked per symbol
type Position struct {
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

// Summary is a point-in-time view of risk counters
type Summary struct {
	Date            string              `json:"date"`
	DailyTrades     int                 `json:"daily_trades"`
	MaxDailyTrades  int                 `json:"max_daily_trades"`
	DailyPnL        float64             `json:"daily_pnl"`
	DailyPnLPercent float64             `json:"daily_pnl_percent"`
	MaxDailyLossPct float64             `json:"max_daily_loss"`
	MarketExposure  map[string]float64  `json:"market_exposure"`
	Positions       map[string]Position `json:"positions"`
	PositionsCount  int                 `json:"positions_count"`
	TotalExposure   float64             `json:"total_exposure"`
	ExposurePercent float64             `json:"exposure_percent"`
	PortfolioRisk   float64             `json:"portfolio_risk"`
}

// State is the persisted form of the gate counters
type State struct {
	DailyTrades    map[string]int      `json:"daily_trades"`
	DailyPnL       map[string]float64  `json:"daily_pnl"`
	MarketExposure map[string]float64  `json:"market_exposure"`
	Positions      map[string]Position `json:"positions"`
}
