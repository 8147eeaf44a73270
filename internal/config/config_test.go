package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
	"github.com/ducminhle1904/tradeguard/internal/sizing"
	"github.com/ducminhle1904/tradeguard/internal/state"
)

const sampleYAML = `
environment: production
log_level: debug
sizing:
  method: risk_based
  risk_per_trade: 0.015
risk:
  max_daily_trades: 4
  volatility_markets: [NYSE]
brackets:
  check_interval: 2s
  exit_retry:
    max_retries: 5
health:
  recovery_timeout: 90s
brokers:
  - name: main
    kind: bybit
    rate_limit: 5
    burst: 2
  - name: sim
    kind: paper
    paper:
      cash: 5000
primary_broker: sim
storage:
  backend: redis
  redis_addr: redis:6379
  key_prefix: "tg:"
  snapshot_interval: 30s
notifications:
  min_level: error
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "key")
	t.Setenv("BYBIT_API_SECRET", "secret")

	cfg, err := Load(writeFile(t, "guard.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, sizing.MethodRiskBased, cfg.Sizing.Method)
	assert.InDelta(t, 0.015, cfg.Sizing.RiskPerTrade, 1e-9)
	assert.InDelta(t, 0.10, cfg.Sizing.MaxPositionSize, 1e-9, "unset fields keep defaults")

	assert.Equal(t, 4, cfg.Risk.MaxDailyTrades)
	assert.InDelta(t, 0.05, cfg.Risk.MaxDailyLoss, 1e-9)
	require.Len(t, cfg.Risk.VolatilityMarkets, 1)

	assert.Equal(t, 2*time.Second, cfg.Brackets.CheckInterval)
	assert.Equal(t, 5, cfg.Brackets.ExitRetry.MaxRetries)
	assert.Equal(t, 90*time.Second, cfg.Health.RecoveryTimeout)
	assert.Equal(t, uint32(5), cfg.Health.MaxConsecutiveFailures)

	require.Len(t, cfg.Brokers, 2)
	require.NotNil(t, cfg.Brokers[0].Bybit)
	assert.Equal(t, "key", cfg.Brokers[0].Bybit.APIKey)
	assert.Equal(t, "secret", cfg.Brokers[0].Bybit.APISecret)
	assert.Equal(t, "sim", cfg.Primary().Name)
	assert.InDelta(t, 5000.0, cfg.Primary().Paper.Cash, 1e-9)

	assert.Equal(t, state.BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, "tg:", cfg.Storage.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.Storage.SnapshotInterval)
	assert.Equal(t, "error", cfg.Notifications.MinLevel)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "paper", cfg.Primary().Kind)
	assert.Equal(t, state.BackendFile, cfg.Storage.Backend)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADEGUARD_LOG_LEVEL", "warn")
	t.Setenv("TRADEGUARD_SERVER_ADDR", ":9999")
	t.Setenv("TRADEGUARD_SNAPSHOT_INTERVAL", "15s")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Storage.SnapshotInterval)
	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, "42", cfg.Notifications.TelegramChatID)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, "test.env", "TRADEGUARD_TEST_VALUE=from-file\n")
	t.Setenv("TRADEGUARD_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("TRADEGUARD_TEST_VALUE"))

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("TRADEGUARD_TEST_VALUE"))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown sizing method", func(c *Config) { c.Sizing.Method = "martingale" }},
		{"min above max", func(c *Config) { c.Sizing.MinPositionSize = 0.5 }},
		{"risk fraction above one", func(c *Config) { c.Risk.MaxDailyLoss = 1.5 }},
		{"no brokers", func(c *Config) { c.Brokers = nil }},
		{"unknown broker kind", func(c *Config) { c.Brokers[0].Kind = "binance" }},
		{"duplicate broker", func(c *Config) { c.Brokers = append(c.Brokers, c.Brokers[0]) }},
		{"unknown primary", func(c *Config) { c.PrimaryBroker = "ghost" }},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "s3" }},
		{"zero snapshot interval", func(c *Config) { c.Storage.SnapshotInterval = 0 }},
		{"zero bracket interval", func(c *Config) { c.Brackets.CheckInterval = 0 }},
		{"bad notification level", func(c *Config) { c.Notifications.MinLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, boterrors.HasCategory(err, boterrors.ErrorCategoryConfiguration))
		})
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "brokers: [unclosed"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
