package adapters

import (
	"fmt"
	"strings"

	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/exchange/paper"
	"github.com/ducminhle1904/tradeguard/internal/safety"
)

// Factory creates broker instances based on configuration
type Factory struct {
	limiter *safety.RateLimiter
}

// NewFactory creates a new broker factory. Brokers it builds share limiter,
// each with its own bucket; a nil limiter disables throttling.
func NewFactory(limiter *safety.RateLimiter) *Factory {
	return &Factory{limiter: limiter}
}

// GetSupportedKinds returns the broker integrations the factory can build
func (f *Factory) GetSupportedKinds() []string {
	return []string{"bybit", "paper"}
}

// CreateBroker creates a broker instance based on the provided configuration
func (f *Factory) CreateBroker(config exchange.BrokerConfig) (exchange.Broker, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	var broker exchange.Broker
	switch strings.ToLower(strings.TrimSpace(config.Kind)) {
	case "bybit":
		adapter, err := NewBybitBroker(config.Name, config.Bybit)
		if err != nil {
			return nil, &exchange.ExchangeError{
				Code:        "ADAPTER_CREATION_FAILED",
				Message:     "Failed to create Bybit adapter",
				Details:     err.Error(),
				IsRetryable: false,
			}
		}
		broker = adapter
	case "paper":
		broker = paper.New(config.Name, config.Paper)
	}

	if f.limiter != nil {
		f.limiter.Configure(config.Name, config.RateLimit, config.Burst)
		broker = exchange.RateLimited(broker, f.limiter)
	}
	return broker, nil
}

// ValidateConfig validates the broker configuration
func (f *Factory) ValidateConfig(config exchange.BrokerConfig) error {
	if strings.TrimSpace(config.Name) == "" {
		return &exchange.ExchangeError{
			Code:        "MISSING_BROKER_NAME",
			Message:     "Broker name is required",
			IsRetryable: false,
		}
	}

	switch strings.ToLower(strings.TrimSpace(config.Kind)) {
	case "bybit":
		return f.validateBybitConfig(config.Bybit)
	case "paper":
		return nil
	default:
		return &exchange.ExchangeError{
			Code:        "UNSUPPORTED_BROKER",
			Message:     fmt.Sprintf("Broker kind '%s' is not supported", config.Kind),
			Details:     fmt.Sprintf("Supported kinds: %v", f.GetSupportedKinds()),
			IsRetryable: false,
		}
	}
}

// validateBybitConfig validates Bybit-specific configuration
func (f *Factory) validateBybitConfig(config *exchange.BybitConfig) error {
	if config == nil {
		return &exchange.ExchangeError{
			Code:        "MISSING_BYBIT_CONFIG",
			Message:     "Bybit configuration is required",
			IsRetryable: false,
		}
	}

	if config.APIKey == "" {
		return &exchange.ExchangeError{
			Code:        "MISSING_API_KEY",
			Message:     "Bybit API key is required",
			Details:     "Set BYBIT_API_KEY environment variable or provide in config",
			IsRetryable: false,
		}
	}

	if config.APISecret == "" {
		return &exchange.ExchangeError{
			Code:        "MISSING_API_SECRET",
			Message:     "Bybit API secret is required",
			Details:     "Set BYBIT_API_SECRET environment variable or provide in config",
			IsRetryable: false,
		}
	}

	if config.Testnet && config.Demo {
		return &exchange.ExchangeError{
			Code:        "INVALID_ENVIRONMENT_CONFIG",
			Message:     "Cannot use both testnet and demo mode simultaneously",
			Details:     "Choose either testnet OR demo mode, not both",
			IsRetryable: false,
		}
	}

	return nil
}
