package risk

import (
	"fmt"

	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

// Limits contains all admission control configuration
type Limits struct {
	MaxPositionSize    float64 `json:"max_position_size" yaml:"max_position_size"`       // 10% max position per trade
	MaxDailyTrades     int     `json:"max_daily_trades" yaml:"max_daily_trades"`         // Trades per calendar day
	MaxDailyLoss       float64 `json:"max_daily_loss" yaml:"max_daily_loss"`             // 5% max daily loss
	MaxPortfolioRisk   float64 `json:"max_portfolio_risk" yaml:"max_portfolio_risk"`     // 20% cumulative loss across tracked days
	MaxConcentration   float64 `json:"max_concentration" yaml:"max_concentration"`       // 30% per market
	MinBalanceRequired float64 `json:"min_balance_required" yaml:"min_balance_required"` // 10% reserve kept on buys

	// Volatility circuit breaker
	VolatilityThreshold float64        `json:"volatility_threshold" yaml:"volatility_threshold"`
	VolatilityMarkets   []types.Market `json:"volatility_markets" yaml:"volatility_markets"`

	// Days of P&L kept for the portfolio risk check, 0 keeps everything until ResetDailyCounts
	PnLRetentionDays int `json:"pnl_retention_days" yaml:"pnl_retention_days"`
}

// DefaultLimits returns default risk limits
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:     0.10,
		MaxDailyTrades:      10,
		MaxDailyLoss:        0.05,
		MaxPortfolioRisk:    0.20,
		MaxConcentration:    0.30,
		MinBalanceRequired:  0.10,
		VolatilityThreshold: 35,
		VolatilityMarkets:   []types.Market{types.MarketNYSE, types.MarketNASDAQ, types.MarketAMEX},
	}
}

// Validate rejects inconsistent limits
func (l Limits) Validate() error {
	fractions := []struct {
		name  string
		value float64
	}{
		{"max_position_size", l.MaxPositionSize},
		{"max_daily_loss", l.MaxDailyLoss},
		{"max_portfolio_risk", l.MaxPortfolioRisk},
		{"max_concentration", l.MaxConcentration},
	}
	for _, f := range fractions {
		if f.value <= 0 || f.value > 1 {
			return boterrors.NewConfigurationError("risk", "validate", fmt.Sprintf("%s must be within (0, 1], got %v", f.name, f.value))
		}
	}
	if l.MinBalanceRequired < 0 || l.MinBalanceRequired >= 1 {
		return boterrors.NewConfigurationError("risk", "validate",
			fmt.Sprintf("min_balance_required must be within [0, 1), got %v", l.MinBalanceRequired))
	}
	if l.MaxDailyTrades <= 0 {
		return boterrors.NewConfigurationError("risk", "validate", "max_daily_trades must be positive")
	}
	if l.VolatilityThreshold < 0 {
		return boterrors.NewConfigurationError("risk", "validate", "volatility_threshold must not be negative")
	}
	if l.PnLRetentionDays < 0 {
		return boterrors.NewConfigurationError("risk", "validate", "pnl_retention_days must not be negative")
	}
	return nil
}

func (l Limits) volatilityApplies(market types.Market) bool {
	if l.VolatilityThreshold <= 0 {
		return false
	}
	for _, m := range l.VolatilityMarkets {
		if m == market {
			return true
		}
	}
	return false
}

// LimitUpdate is a partial update; nil fields keep their current value
type LimitUpdate struct {
	MaxPositionSize     *float64 `json:"max_position_size,omitempty"`
	MaxDailyTrades      *int     `json:"max_daily_trades,omitempty"`
	MaxDailyLoss        *float64 `json:"max_daily_loss,omitempty"`
	MaxPortfolioRisk    *float64 `json:"max_portfolio_risk,omitempty"`
	MaxConcentration    *float64 `json:"max_concentration,omitempty"`
	MinBalanceRequired  *float64 `json:"min_balance_required,omitempty"`
	VolatilityThreshold *float64 `json:"volatility_threshold,omitempty"`
}

func (u LimitUpdate) apply(l Limits) Limits {
	if u.MaxPositionSize != nil {
		l.MaxPositionSize = *u.MaxPositionSize
	}
	if u.MaxDailyTrades != nil {
		l.MaxDailyTrades = *u.MaxDailyTrades
	}
	if u.MaxDailyLoss != nil {
		l.MaxDailyLoss = *u.MaxDailyLoss
	}
	if u.MaxPortfolioRisk != nil {
		l.MaxPortfolioRisk = *u.MaxPortfolioRisk
	}
	if u.MaxConcentration != nil {
		l.MaxConcentration = *u.MaxConcentration
	}
	if u.MinBalanceRequired != nil {
		l.MinBalanceRequired = *u.MinBalanceRequired
	}
	if u.VolatilityThreshold != nil {
		l.VolatilityThreshold = *u.VolatilityThreshold
	}
	return l
}
