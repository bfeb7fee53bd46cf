// Package testutil builds throwaway tenant environments backed by in-memory SQLite.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/cache"
	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/database"
	"github.com/Additional-Code/storefront/internal/migration"
	"github.com/Additional-Code/storefront/internal/query"
)

var envSeq atomic.Int64

// Env is a registry, cache and executor wired the way the application wires them.
type Env struct {
	Config   config.Config
	Registry *database.Registry
	Cache    *cache.Memory
	Executor *query.Executor
	Migrator *migration.Migrator
	Logger   *zap.Logger
}

// Config returns a sqlite configuration whose tenant databases are private to one Env.
// Each tenant maps to a named shared-cache memory database that lives as long as the
// registry keeps its single connection open.
func Config() config.Config {
	n := envSeq.Add(1)
	return config.Config{
		Cache: config.Cache{
			Enabled:    true,
			Driver:     "memory",
			DefaultTTL: cache.DefaultTTL,
		},
		Database: config.Database{
			Driver:         "sqlite",
			DSNTemplate:    fmt.Sprintf("file:env%d-{tenant}?mode=memory&cache=shared", n),
			MaxOpenConns:   1,
			MaxIdleConns:   1,
			ConnectTimeout: 5 * time.Second,
		},
		Checkout: config.Checkout{MaxIdentifierAttempts: 10},
	}
}

// NewEnv builds an Env and closes its connections when the test ends.
func NewEnv(t testing.TB, opts ...database.Option) *Env {
	t.Helper()

	cfg := Config()
	logger := zap.NewNop()

	registry := database.NewRegistry(cfg.Database, append([]database.Option{database.WithLogger(logger)}, opts...)...)
	t.Cleanup(func() { _ = registry.CloseAll() })

	store := cache.NewMemory()
	exec := query.NewExecutor(query.Params{Registry: registry, Cache: store, Logger: logger})

	mig, err := migration.New(cfg, registry, logger)
	require.NoError(t, err)

	return &Env{
		Config:   cfg,
		Registry: registry,
		Cache:    store,
		Executor: exec,
		Migrator: mig,
		Logger:   logger,
	}
}

// Tenant migrates the tenant's schema and returns its handle.
func (e *Env) Tenant(t testing.TB, tenantID string) *bun.DB {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, e.Migrator.Up(ctx, tenantID))

	db, err := e.Registry.Get(ctx, tenantID)
	require.NoError(t, err)
	return db
}

// Count returns the number of rows in table.
func Count(t testing.TB, db bun.IDB, table string) int {
	t.Helper()

	n, err := db.NewSelect().Table(table).Count(context.Background())
	require.NoError(t, err)
	return n
}
