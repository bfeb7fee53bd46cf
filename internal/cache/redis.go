package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/config"
)

const scanBatch = 200

// redisStore shares cached query results between instances. Expiry is redis-native, so
// an expired key reads as a plain miss and never counts as an invalidation.
type redisStore struct {
	client     goredis.UniversalClient
	prefix     string
	defaultTTL time.Duration

	hits          atomic.Int64
	misses        atomic.Int64
	sets          atomic.Int64
	invalidations atomic.Int64
}

func newRedisStore(lc fx.Lifecycle, cfg config.Cache, logger *zap.Logger) (Store, error) {
	opts := &goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := goredis.NewClient(opts)
	store := NewRedis(client, cfg.KeyPrefix, cfg.DefaultTTL)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			if logger != nil {
				logger.Info("redis query cache connected", zap.String("addr", cfg.Redis.Addr))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if logger != nil {
				logger.Info("closing redis query cache")
			}
			return client.Close()
		},
	})

	return store, nil
}

// NewRedis wraps an existing client. Every key is stored under prefix.
func NewRedis(client goredis.UniversalClient, prefix string, defaultTTL time.Duration) Store {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &redisStore{client: client, prefix: prefix, defaultTTL: defaultTTL}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		s.misses.Add(1)
		return nil, ErrCacheMiss
	}
	res, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		s.misses.Add(1)
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	s.hits.Add(1)
	return res, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return err
	}
	s.sets.Add(1)
	return nil
}

func (s *redisStore) Invalidate(ctx context.Context, pattern string) (int, error) {
	keys, err := s.scan(ctx, escapeGlob(s.prefix)+"*"+escapeGlob(pattern)+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	s.invalidations.Add(removed)
	return int(removed), nil
}

// Clear deletes every prefixed key and resets the counters.
func (s *redisStore) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx, escapeGlob(s.prefix)+"*")
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	s.hits.Store(0)
	s.misses.Store(0)
	s.sets.Store(0)
	s.invalidations.Store(0)
	return nil
}

func (s *redisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.scan(ctx, escapeGlob(s.prefix)+"*")
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, s.prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *redisStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.scan(ctx, escapeGlob(s.prefix)+"*")
	if err != nil {
		return Stats{}, err
	}
	hits, misses := s.hits.Load(), s.misses.Load()
	return Stats{
		Hits:          hits,
		Misses:        misses,
		Sets:          s.sets.Load(),
		Invalidations: s.invalidations.Load(),
		Total:         hits + misses,
		HitRate:       hitRate(hits, misses),
		CurrentSize:   len(keys),
	}, nil
}

func (s *redisStore) scan(ctx context.Context, match string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", match, err)
	}
	return keys, nil
}

// escapeGlob quotes redis MATCH metacharacters so pattern is matched literally.
func escapeGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
