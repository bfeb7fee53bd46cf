package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/config"
)

// DefaultTTL applies when Set is called without a positive ttl and no other default is configured.
const DefaultTTL = 5 * time.Minute

// Store is the query result cache. Values are opaque encoded payloads.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Invalidate deletes every key containing pattern and reports how many were removed.
	Invalidate(ctx context.Context, pattern string) (int, error)
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (Stats, error)
}

// ErrCacheMiss indicates the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Stats is a snapshot of cache accounting.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Sets          int64   `json:"sets"`
	Invalidations int64   `json:"invalidations"`
	Total         int64   `json:"total"`
	HitRate       float64 `json:"hitRate"`
	CurrentSize   int     `json:"currentSize"`
}

// hitRate returns hits/(hits+misses) as a percentage rounded to two decimals.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return math.Round(float64(hits)/float64(total)*100*100) / 100
}

// Module provides the cache store to the Fx graph and exports its stats as metrics.
var Module = fx.Options(
	fx.Provide(NewStore),
	fx.Invoke(RegisterMetrics),
)

// NewStore initialises the configured cache store (memory, redis or noop).
func NewStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Cache.Driver {
	case "noop":
		if logger != nil {
			logger.Info("query cache disabled; using noop store")
		}
		return noopStore{}, nil
	case "memory":
		if logger != nil {
			logger.Info("query cache in memory", zap.Duration("default_ttl", cfg.Cache.DefaultTTL))
		}
		return NewMemory(WithDefaultTTL(cfg.Cache.DefaultTTL)), nil
	case "redis":
		return newRedisStore(lc, cfg.Cache, logger)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

type noopStore struct{}

func (noopStore) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (noopStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (noopStore) Invalidate(context.Context, string) (int, error) {
	return 0, nil
}

func (noopStore) Clear(context.Context) error {
	return nil
}

func (noopStore) Keys(context.Context) ([]string, error) {
	return []string{}, nil
}

func (noopStore) Stats(context.Context) (Stats, error) {
	return Stats{}, nil
}
