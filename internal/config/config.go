package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	boterrors "github.com/ducminhle1904/tradeguard/internal/errors"
	"github.com/ducminhle1904/tradeguard/internal/exchange"
	"github.com/ducminhle1904/tradeguard/internal/health"
	"github.com/ducminhle1904/tradeguard/internal/risk"
	"github.com/ducminhle1904/tradeguard/internal/sizing"
	"github.com/ducminhle1904/tradeguard/internal/state"
)

// Config represents the complete configuration of a guard process
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogDir      string `yaml:"log_dir"`

	Sizing   sizing.Config  `yaml:"sizing"`
	Risk     risk.Limits    `yaml:"risk"`
	Brackets bracket.Config `yaml:"brackets"`
	Health   health.Config  `yaml:"health"`

	// Brokers to monitor; orders go to PrimaryBroker, or the first entry when unset
	Brokers       []exchange.BrokerConfig `yaml:"brokers"`
	PrimaryBroker string                  `yaml:"primary_broker"`

	Storage       StorageConfig      `yaml:"storage"`
	Server        ServerConfig       `yaml:"server"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// StorageConfig selects the snapshot store and how often it is written
type StorageConfig struct {
	state.StoreConfig `yaml:",inline"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
}

// ServerConfig holds status server settings
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// NotificationConfig holds notification configuration
type NotificationConfig struct {
	Enabled        bool   `yaml:"enabled"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	MinLevel       string `yaml:"min_level"` // info, warning, error, critical
}

// Default returns a configuration that runs against a single paper broker
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		LogDir:      "logs",
		Sizing:      sizing.DefaultConfig(),
		Risk:        risk.DefaultLimits(),
		Brackets:    bracket.DefaultConfig(),
		Health:      health.DefaultConfig(),
		Brokers: []exchange.BrokerConfig{
			{Name: "paper", Kind: "paper", Paper: &exchange.PaperConfig{Cash: 100000}},
		},
		Storage: StorageConfig{
			StoreConfig:      state.DefaultStoreConfig(),
			SnapshotInterval: time.Minute,
		},
		Server: ServerConfig{
			Enabled:      true,
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Notifications: NotificationConfig{MinLevel: "warning"},
	}
}

// LoadEnv loads .env style files. A missing file is skipped; with no
// arguments ./.env is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, boterrors.NewConfigurationError("config", "load", fmt.Sprintf("failed to read %s: %v", path, err))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, boterrors.NewConfigurationError("config", "load", fmt.Sprintf("failed to parse %s: %v", path, err))
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment
func (c *Config) ApplyEnv() {
	c.LogLevel = getEnv("TRADEGUARD_LOG_LEVEL", c.LogLevel)
	c.Server.Addr = getEnv("TRADEGUARD_SERVER_ADDR", c.Server.Addr)
	c.Storage.RedisAddr = getEnv("TRADEGUARD_REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.Password = getEnv("TRADEGUARD_REDIS_PASSWORD", c.Storage.Password)
	c.Storage.SnapshotInterval = getEnvDuration("TRADEGUARD_SNAPSHOT_INTERVAL", c.Storage.SnapshotInterval)

	for i := range c.Brokers {
		b := &c.Brokers[i]
		if strings.ToLower(b.Kind) != "bybit" {
			continue
		}
		if b.Bybit == nil {
			b.Bybit = &exchange.BybitConfig{Category: "linear", Demo: true}
		}
		if b.Bybit.APIKey == "" {
			b.Bybit.APIKey = os.Getenv("BYBIT_API_KEY")
		}
		if b.Bybit.APISecret == "" {
			b.Bybit.APISecret = os.Getenv("BYBIT_API_SECRET")
		}
	}

	c.Notifications.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notifications.TelegramToken)
	c.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notifications.TelegramChatID)
	if c.Notifications.TelegramToken != "" && c.Notifications.TelegramChatID != "" {
		c.Notifications.Enabled = getEnvBool("TRADEGUARD_NOTIFICATIONS", true)
	}
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs,
		c.Sizing.Validate(),
		c.Risk.Validate(),
		c.Brackets.Validate(),
		c.Health.Validate(),
	)

	if len(c.Brokers) == 0 {
		errs = append(errs, configError("at least one broker is required"))
	}
	seen := make(map[string]bool, len(c.Brokers))
	for _, b := range c.Brokers {
		switch {
		case strings.TrimSpace(b.Name) == "":
			errs = append(errs, configError("broker name is required"))
		case seen[b.Name]:
			errs = append(errs, configError(fmt.Sprintf("duplicate broker name %q", b.Name)))
		}
		seen[b.Name] = true

		switch strings.ToLower(b.Kind) {
		case "bybit", "paper":
		default:
			errs = append(errs, configError(fmt.Sprintf("broker %s: unknown kind %q", b.Name, b.Kind)))
		}
		if b.RateLimit < 0 {
			errs = append(errs, configError(fmt.Sprintf("broker %s: rate_limit must not be negative", b.Name)))
		}
	}
	if c.PrimaryBroker != "" && !seen[c.PrimaryBroker] {
		errs = append(errs, configError(fmt.Sprintf("primary_broker %q is not configured", c.PrimaryBroker)))
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "", state.BackendFile, state.BackendRedis:
	default:
		errs = append(errs, configError(fmt.Sprintf("unknown storage backend %q", c.Storage.Backend)))
	}
	if c.Storage.SnapshotInterval <= 0 {
		errs = append(errs, configError("storage.snapshot_interval must be positive"))
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, configError("server.addr is required when the server is enabled"))
	}

	switch health.AlertLevel(strings.ToLower(c.Notifications.MinLevel)) {
	case "", health.AlertInfo, health.AlertWarning, health.AlertError, health.AlertCritical:
	default:
		errs = append(errs, configError(fmt.Sprintf("unknown notification level %q", c.Notifications.MinLevel)))
	}

	return errors.Join(errs...)
}

// Primary returns the broker orders are sent to
func (c *Config) Primary() exchange.BrokerConfig {
	for _, b := range c.Brokers {
		if b.Name == c.PrimaryBroker {
			return b
		}
	}
	if len(c.Brokers) > 0 {
		return c.Brokers[0]
	}
	return exchange.BrokerConfig{}
}

func configError(msg string) error {
	return boterrors.NewConfigurationError("config", "validate", msg)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
