package sizing

import (
	"fmt"
	"math"
	"strings"
	"sync"

	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
)

// Method selects how a position is sized
type Method string

const (
	MethodFixed      Method = "fixed"
	MethodPercentage Method = "percentage"
	MethodRiskBased  Method = "risk_based"
	MethodKelly      Method = "kelly"
)

// KellyFraction is the share of the full Kelly bet actually used
const KellyFraction = 0.25

// ParseMethod converts a config string into a Method
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MethodFixed, MethodPercentage, MethodRiskBased, MethodKelly:
		return m, nil
	}
	return "", boterrors.NewConfigurationError("sizing", "parse_method", fmt.Sprintf("unknown sizing method %q", s))
}

// Config is the sizing policy. Fractions are of portfolio value.
type Config struct {
	Method          Method  `json:"method" yaml:"method"`
	FixedAmount     float64 `json:"fixed_amount" yaml:"fixed_amount"`
	Percentage      float64 `json:"percentage" yaml:"percentage"`
	RiskPerTrade    float64 `json:"risk_per_trade" yaml:"risk_per_trade"`
	MaxPositionSize float64 `json:"max_position_size" yaml:"max_position_size"`
	MinPositionSize float64 `json:"min_position_size" yaml:"min_position_size"`
}

// DefaultConfig returns the default sizing policy
func DefaultConfig() Config {
	return Config{
		Method:          MethodPercentage,
		FixedAmount:     1000,
		Percentage:      0.02,
		RiskPerTrade:    0.01,
		MaxPositionSize: 0.10,
		MinPositionSize: 0.01,
	}
}

// Validate checks the policy for consistency
func (c Config) Validate() error {
	if _, err := ParseMethod(string(c.Method)); err != nil {
		return err
	}
	if c.FixedAmount < 0 {
		return boterrors.NewConfigurationError("sizing", "validate", "fixed_amount must not be negative")
	}
	for name, v := range map[string]float64{
		"percentage":        c.Percentage,
		"risk_per_trade":    c.RiskPerTrade,
		"max_position_size": c.MaxPositionSize,
		"min_position_size": c.MinPositionSize,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return boterrors.NewConfigurationError("sizing", "validate", fmt.Sprintf("%s must be within [0, 1], got %v", name, v))
		}
	}
	if c.MinPositionSize > c.MaxPositionSize {
		return boterrors.NewConfigurationError("sizing", "validate",
			fmt.Sprintf("min_position_size %.4f exceeds max_position_size %.4f", c.MinPositionSize, c.MaxPositionSize))
	}
	return nil
}

// Request carries the inputs for one sizing decision. Optional inputs are nil when unknown.
type Request struct {
	PortfolioValue float64
	Price          float64
	StopLoss       *float64
	WinRate        *float64
	AvgWin         *float64
	AvgLoss        *float64
}

// Result is a sizing decision
type Result struct {
	Method         Method  `json:"method"`
	DollarAmount   float64 `json:"dollar_amount"`
	Quantity       float64 `json:"quantity"`
	PctOfPortfolio float64 `json:"percentage_of_portfolio"`

	// Risk-based diagnostics
	RiskAmount   float64 `json:"risk_amount,omitempty"`
	RiskPerShare float64 `json:"risk_per_share,omitempty"`

	// Kelly diagnostics
	KellyPct     float64 `json:"kelly_percentage,omitempty"`
	WinRate      float64 `json:"win_rate,omitempty"`
	WinLossRatio float64 `json:"win_loss_ratio,omitempty"`
}

// Calculator sizes positions according to a swappable policy
type Calculator struct {
	mu     sync.RWMutex
	config Config
}

// NewCalculator creates a new position sizer
func NewCalculator(config Config) (*Calculator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{config: config}, nil
}

// Config returns the current policy
func (c *Calculator) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// UpdateConfig replaces the policy after validating it
func (c *Calculator) UpdateConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.config = config
	c.mu.Unlock()
	return nil
}

// CalculatePositionSize sizes a position. The only error is an unknown method;
// missing optional inputs fall back to percentage sizing.
func (c *Calculator) CalculatePositionSize(req Request) (Result, error) {
	cfg := c.Config()

	switch cfg.Method {
	case MethodFixed:
		return cfg.fixed(req), nil
	case MethodPercentage:
		return cfg.percentage(req), nil
	case MethodRiskBased:
		return cfg.riskBased(req), nil
	case MethodKelly:
		return cfg.kelly(req), nil
	default:
		return Result{}, boterrors.NewConfigurationError("sizing", "calculate", fmt.Sprintf("unknown sizing method %q", cfg.Method))
	}
}

func quantityFor(dollars, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return dollars / price
}

func pctOf(dollars, portfolio float64) float64 {
	if portfolio <= 0 {
		return 0
	}
	return dollars / portfolio
}

func (c Config) clamp(pct float64) float64 {
	return math.Max(c.MinPositionSize, math.Min(pct, c.MaxPositionSize))
}

func (c Config) fixed(req Request) Result {
	dollars := math.Min(c.FixedAmount, req.PortfolioValue*c.MaxPositionSize)
	return Result{
		Method:         MethodFixed,
		DollarAmount:   dollars,
		Quantity:       quantityFor(dollars, req.Price),
		PctOfPortfolio: pctOf(dollars, req.PortfolioValue),
	}
}

func (c Config) percentage(req Request) Result {
	pct := c.clamp(c.Percentage)
	dollars := req.PortfolioValue * pct
	return Result{
		Method:         MethodPercentage,
		DollarAmount:   dollars,
		Quantity:       quantityFor(dollars, req.Price),
		PctOfPortfolio: pct,
	}
}

func (c Config) riskBased(req Request) Result {
	if req.StopLoss == nil || *req.StopLoss <= 0 || req.Price <= 0 {
		return c.percentage(req)
	}

	riskPerShare := math.Abs(req.Price - *req.StopLoss)
	if riskPerShare == 0 {
		return c.percentage(req)
	}

	riskAmount := req.PortfolioValue * c.RiskPerTrade
	quantity := riskAmount / riskPerShare
	dollars := quantity * req.Price

	maxDollars := req.PortfolioValue * c.MaxPositionSize
	if dollars > maxDollars {
		dollars = maxDollars
		quantity = dollars / req.Price
	}

	return Result{
		Method:         MethodRiskBased,
		DollarAmount:   dollars,
		Quantity:       quantity,
		PctOfPortfolio: pctOf(dollars, req.PortfolioValue),
		RiskAmount:     riskAmount,
		RiskPerShare:   riskPerShare,
	}
}

func (c Config) kelly(req Request) Result {
	if req.WinRate == nil || req.AvgWin == nil || req.AvgLoss == nil {
		return c.percentage(req)
	}

	avgLoss := math.Abs(*req.AvgLoss)
	if avgLoss == 0 || *req.AvgWin <= 0 {
		return c.percentage(req)
	}

	winRate := *req.WinRate
	ratio := *req.AvgWin / avgLoss
	kellyPct := c.clamp((winRate - (1-winRate)/ratio) * KellyFraction)
	dollars := req.PortfolioValue * kellyPct

	return Result{
		Method:         MethodKelly,
		DollarAmount:   dollars,
		Quantity:       quantityFor(dollars, req.Price),
		PctOfPortfolio: kellyPct,
		KellyPct:       kellyPct,
		WinRate:        winRate,
		WinLossRatio:   ratio,
	}
}

// Float returns a pointer to v, for filling optional Request fields
func Float(v float64) *float64 {
	return &v
}
