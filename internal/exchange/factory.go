package exchange

import "time"

// BrokerConfig holds configuration for creating broker instances
type BrokerConfig struct {
	Name      string       `json:"name" yaml:"name"`                       // Identifier used by health/risk (e.g. "alpaca-main")
	Kind      string       `json:"kind" yaml:"kind"`                       // Integration: bybit, paper
	RateLimit float64      `json:"rate_limit" yaml:"rate_limit"`           // Requests per second, 0 = unlimited
	Burst     int          `json:"burst" yaml:"burst"`                     // Token bucket burst
	Bybit     *BybitConfig `json:"bybit,omitempty" yaml:"bybit,omitempty"` // Bybit-specific config
	Paper     *PaperConfig `json:"paper,omitempty" yaml:"paper,omitempty"` // Simulated broker config
}

// BybitConfig holds Bybit-specific configuration
type BybitConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	APISecret string `json:"api_secret" yaml:"api_secret"`
	Category  string `json:"category" yaml:"category"` // spot, linear
	Testnet   bool   `json:"testnet" yaml:"testnet"`
	Demo      bool   `json:"demo" yaml:"demo"`

	// Stream feeds bracket monitoring from the public tickers stream, REST stays the fallback
	Stream       bool          `json:"stream" yaml:"stream"`
	StreamURL    string        `json:"stream_url,omitempty" yaml:"stream_url,omitempty"`
	StreamMaxAge time.Duration `json:"stream_max_age,omitempty" yaml:"stream_max_age,omitempty"`
}

// PaperConfig holds configuration for the simulated broker
type PaperConfig struct {
	Cash     float64            `json:"cash" yaml:"cash"`
	Prices   map[string]float64 `json:"prices" yaml:"prices"`
	Slippage float64            `json:"slippage" yaml:"slippage"` // Fraction applied against the taker
}
