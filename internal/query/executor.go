// Package query runs tenant-scoped SQL through the connection registry and the query cache.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/cache"
	"github.com/Additional-Code/storefront/internal/database"
)

var queryTracer = otel.Tracer("github.com/Additional-Code/storefront/query")

// Module provides the executor to Fx.
var Module = fx.Provide(NewExecutor)

// Executor is the single entry point for tenant reads.
type Executor struct {
	registry *database.Registry
	cache    cache.Store
	logger   *zap.Logger
}

// Params defines dependencies for constructing Executor.
type Params struct {
	fx.In

	Registry *database.Registry
	Cache    cache.Store
	Logger   *zap.Logger `optional:"true"`
}

// NewExecutor wires an Executor.
func NewExecutor(p Params) *Executor {
	return &Executor{registry: p.Registry, cache: p.Cache, logger: p.Logger}
}

type options struct {
	cache bool
	ttl   time.Duration
	key   string
}

// Option tunes a single Execute call.
type Option func(*options)

// WithCache serves the result from the cache when present and stores it otherwise.
func WithCache() Option {
	return func(o *options) { o.cache = true }
}

// WithTTL overrides the cache ttl for this call and implies WithCache.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.cache = true
		o.ttl = ttl
	}
}

// WithCacheKey shares a cache slot between equivalent queries and implies WithCache.
func WithCacheKey(key string) Option {
	return func(o *options) {
		o.cache = true
		o.key = key
	}
}

// CacheKey is the default slot for a query: tenant, query text and encoded args.
func CacheKey(tenantID, query string, args []any) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", args))
	}
	return tenantID + ":" + query + ":" + string(encoded)
}

// DB returns the tenant's handle.
func (e *Executor) DB(ctx context.Context, tenantID string) (*bun.DB, error) {
	return e.registry.Get(ctx, tenantID)
}

// Cache exposes the underlying store for administrative use.
func (e *Executor) Cache() cache.Store {
	return e.cache
}

// Execute scans the rows of query into dest, which must be a pointer to a slice or
// struct bun can scan into. Cached payloads are JSON encodings of dest. Calls passing
// bun.In arguments should set WithCacheKey, since those do not encode into the default key.
func (e *Executor) Execute(ctx context.Context, tenantID string, dest any, query string, args []any, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := queryTracer.Start(ctx, "Executor.Execute", trace.WithAttributes(
		attribute.String("tenant", tenantID),
		attribute.Bool("cache", o.cache),
	))
	defer span.End()

	if !o.cache || e.cache == nil {
		return e.run(ctx, span, tenantID, dest, query, args)
	}

	key := o.key
	if key == "" {
		key = CacheKey(tenantID, query, args)
	}
	return e.cached(ctx, key, o.ttl, dest, func() error {
		return e.run(ctx, span, tenantID, dest, query, args)
	})
}

func (e *Executor) run(ctx context.Context, span trace.Span, tenantID string, dest any, query string, args []any) error {
	db, err := e.registry.Get(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		return err
	}

	if err := db.NewRaw(query, args...).Scan(ctx, dest); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return fmt.Errorf("tenant %s query: %w", tenantID, err)
	}
	return nil
}

// cached decodes dest from key when present; otherwise it runs load and stores the JSON
// encoding of dest. Cache failures degrade to a live load.
func (e *Executor) cached(ctx context.Context, key string, ttl time.Duration, dest any, load func() error) error {
	if e.cache == nil {
		return load()
	}

	payload, err := e.cache.Get(ctx, key)
	switch {
	case err == nil:
		if err := json.Unmarshal(payload, dest); err == nil {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.hit", true))
			return nil
		}
		e.warn("cached payload undecodable", key, err)
	case !errors.Is(err, cache.ErrCacheMiss):
		e.warn("query cache read failed", key, err)
	}

	if err := load(); err != nil {
		return err
	}

	encoded, err := json.Marshal(dest)
	if err != nil {
		e.warn("query result not encodable", key, err)
		return nil
	}
	if err := e.cache.Set(ctx, key, encoded, ttl); err != nil {
		e.warn("query cache write failed", key, err)
	}
	return nil
}

// Transaction hands the tenant's handle to fn and returns its result. Atomicity of
// multi-statement writes is fn's responsibility (e.g. db.RunInTx).
func Transaction[T any](ctx context.Context, e *Executor, tenantID string, fn func(context.Context, *bun.DB) (T, error)) (T, error) {
	db, err := e.registry.Get(ctx, tenantID)
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx, db)
}

// Invalidate removes every cached entry whose key contains pattern.
func (e *Executor) Invalidate(ctx context.Context, pattern string) {
	if e.cache == nil {
		return
	}
	removed, err := e.cache.Invalidate(ctx, pattern)
	if err != nil {
		e.warn("query cache invalidation failed", pattern, err)
		return
	}
	if e.logger != nil && removed > 0 {
		e.logger.Debug("query cache invalidated", zap.String("pattern", pattern), zap.Int("removed", removed))
	}
}

// InvalidateProducts drops the tenant's cached product reads. Matching is by
// substring, so tenants whose id ends in tenantID lose theirs as well.
func (e *Executor) InvalidateProducts(ctx context.Context, tenantID string) {
	e.Invalidate(ctx, tenantID+":product")
}

// InvalidateSections drops the tenant's cached section reads.
func (e *Executor) InvalidateSections(ctx context.Context, tenantID string) {
	e.Invalidate(ctx, tenantID+":section")
}

// InvalidateOrders drops the tenant's cached order lookups.
func (e *Executor) InvalidateOrders(ctx context.Context, tenantID string) {
	e.Invalidate(ctx, tenantID+":order")
}

func (e *Executor) warn(msg, key string, err error) {
	if e.logger != nil {
		e.logger.Warn(msg, zap.String("key", key), zap.Error(err))
	}
}
