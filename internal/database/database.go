package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/tenant"
)

// ErrUnavailable wraps every failure to open or reach a tenant database.
var ErrUnavailable = errors.New("tenant database unavailable")

// Opener creates the handle for a tenant. It is called at most once per concurrent
// burst of first requests for the same tenant.
type Opener func(ctx context.Context, tenantID string) (*bun.DB, error)

// Registry memoizes one bun handle per tenant.
type Registry struct {
	open   Opener
	logger *zap.Logger

	mu      sync.Mutex
	conns   map[string]*bun.DB
	pending map[string]struct{}
	epoch   uint64
	resets  map[string]uint64
	group   singleflight.Group
}

// generation identifies the registry state a creation started in. Close bumps the
// tenant counter and CloseAll bumps the epoch; a creation that finishes in a later
// generation is discarded.
type generation struct {
	epoch, tenant uint64
}

func (r *Registry) generationLocked(tenantID string) generation {
	return generation{epoch: r.epoch, tenant: r.resets[tenantID]}
}

// Option customises a Registry.
type Option func(*Registry)

// WithOpener replaces the config-driven opener.
func WithOpener(open Opener) Option {
	return func(r *Registry) {
		if open != nil {
			r.open = open
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Module registers the tenant registry with Fx and closes every handle on stop.
var Module = fx.Provide(NewModule)

// NewModule builds the registry from configuration and ties it to the Fx lifecycle.
func NewModule(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *Registry {
	reg := NewRegistry(cfg.Database, WithLogger(logger))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return reg.CloseAll()
		},
	})
	return reg
}

// NewRegistry constructs a registry that opens handles according to cfg.
func NewRegistry(cfg config.Database, opts ...Option) *Registry {
	r := &Registry{
		conns:   make(map[string]*bun.DB),
		pending: make(map[string]struct{}),
		resets:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.open == nil {
		r.open = configOpener(cfg, r.logger)
	}
	return r
}

// Get returns the tenant's handle, creating it on first use. Concurrent callers for a
// tenant without a handle share a single creation effort and its outcome. The creation
// is detached from the first caller's cancellation; the connect timeout bounds it.
func (r *Registry) Get(ctx context.Context, tenantID string) (*bun.DB, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return nil, fmt.Errorf("%w: %q", err, tenantID)
	}

	if db, ok := r.lookup(tenantID); ok {
		return db, nil
	}

	v, err, _ := r.group.Do(tenantID, func() (any, error) {
		r.mu.Lock()
		if db, ok := r.conns[tenantID]; ok {
			r.mu.Unlock()
			return db, nil
		}
		gen := r.generationLocked(tenantID)
		r.pending[tenantID] = struct{}{}
		r.mu.Unlock()

		db, err := r.open(context.WithoutCancel(ctx), tenantID)

		r.mu.Lock()
		current := r.generationLocked(tenantID) == gen
		if current {
			delete(r.pending, tenantID)
		}
		if err == nil && current {
			r.conns[tenantID] = db
		}
		r.mu.Unlock()

		if err != nil {
			if r.logger != nil {
				r.logger.Error("tenant database connect failed", zap.String("tenant", tenantID), zap.Error(err))
			}
			return nil, fmt.Errorf("%w: tenant %s: %w", ErrUnavailable, tenantID, err)
		}
		if !current {
			_ = db.Close()
			if r.logger != nil {
				r.logger.Warn("tenant database closed while connecting", zap.String("tenant", tenantID))
			}
			return nil, fmt.Errorf("%w: tenant %s: registry closed while connecting", ErrUnavailable, tenantID)
		}
		if r.logger != nil {
			r.logger.Info("tenant database connected", zap.String("tenant", tenantID))
		}
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bun.DB), nil
}

func (r *Registry) lookup(tenantID string) (*bun.DB, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	db, ok := r.conns[tenantID]
	return db, ok
}

// Close drops and closes the tenant's handle. Unknown tenants are ignored.
func (r *Registry) Close(tenantID string) error {
	r.mu.Lock()
	db, ok := r.conns[tenantID]
	delete(r.conns, tenantID)
	delete(r.pending, tenantID)
	r.resets[tenantID]++
	r.mu.Unlock()
	r.group.Forget(tenantID)

	if !ok {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close tenant %s: %w", tenantID, err)
	}
	return nil
}

// CloseAll closes every memoized handle and forgets in-flight creations. Handles
// from creations that finish afterwards are closed rather than memoized.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	conns, pending := r.conns, r.pending
	r.conns = make(map[string]*bun.DB)
	r.pending = make(map[string]struct{})
	r.epoch++
	r.mu.Unlock()

	for id := range pending {
		r.group.Forget(id)
	}
	var closeErr error
	for id, db := range conns {
		r.group.Forget(id)
		if err := db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close tenant %s: %w", id, err))
		}
	}
	return closeErr
}

// Tenants lists tenants with a live handle, sorted.
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// DSN substitutes the tenant id and auth token into template. It has no side effects.
func DSN(template, tenantID, authToken string) string {
	return strings.NewReplacer("{tenant}", tenantID, "{token}", authToken).Replace(template)
}

func configOpener(cfg config.Database, logger *zap.Logger) Opener {
	return func(ctx context.Context, tenantID string) (*bun.DB, error) {
		dial, err := selectDialect(cfg.Driver)
		if err != nil {
			return nil, err
		}

		sqldb, err := openSQLDB(cfg.Driver, DSN(cfg.DSNTemplate, tenantID, cfg.AuthToken))
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		applyPoolSettings(sqldb, cfg)

		db := bun.NewDB(sqldb, dial)
		if cfg.Debug {
			db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
			if logger != nil {
				logger.Debug("bun query logging enabled", zap.String("tenant", tenantID))
			}
		}

		if err := pingContext(ctx, db, cfg.ConnectTimeout); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
		return db, nil
	}
}

func selectDialect(driver string) (schema.Dialect, error) {
	switch driver {
	case "postgres":
		return pgdialect.New(), nil
	case "mysql":
		return mysqldialect.New(), nil
	case "sqlite":
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func openSQLDB(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}

	switch driver {
	case "postgres":
		connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
		return sql.OpenDB(connector), nil
	case "mysql":
		return sql.Open("mysql", dsn)
	case "sqlite":
		return sql.Open(sqliteshim.ShimName, dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

func applyPoolSettings(db *sql.DB, cfg config.Database) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
}

func pingContext(ctx context.Context, db *bun.DB, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.DB.PingContext(pingCtx)
}
