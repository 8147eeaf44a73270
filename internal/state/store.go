package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/ducminhle1904/tradeguard/internal/logger"
)

// Store is a minimal key/value store for guard snapshots
type Store interface {
	// Get returns the value for key and false when the key does not exist
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Backend names accepted by Open
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// StoreConfig selects and configures a store backend
type StoreConfig struct {
	Backend   string `json:"backend" yaml:"backend"`
	Path      string `json:"path" yaml:"path"`
	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`
	RedisDB   int    `json:"redis_db" yaml:"redis_db"`
	Password  string `json:"-" yaml:"redis_password"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultStoreConfig persists to ./state on disk
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:   BackendFile,
		Path:      "state",
		RedisAddr: "localhost:6379",
		KeyPrefix: "tradeguard:",
	}
}

// Open builds the configured store
func Open(ctx context.Context, cfg StoreConfig, log *logger.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		return NewFileStore(cfg.Path, log)
	case BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.Password,
			Prefix:   cfg.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
