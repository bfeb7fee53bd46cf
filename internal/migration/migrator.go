package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/database"
)

//go:embed sql/*.sql
var embedded embed.FS

// Module provides the tenant migrator to Fx.
var Module = fx.Provide(New)

// Migrator applies the embedded schema to tenant databases.
type Migrator struct {
	registry *database.Registry
	dialect  goose.Dialect
	fsys     fs.FS
	logger   *zap.Logger
}

// New constructs a goose-backed migrator for the configured driver.
func New(cfg config.Config, registry *database.Registry, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	fsys, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, err
	}

	return &Migrator{
		registry: registry,
		dialect:  dialect,
		fsys:     fsys,
		logger:   logger,
	}, nil
}

func (m *Migrator) provider(ctx context.Context, tenantID string) (*goose.Provider, error) {
	db, err := m.registry.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(m.dialect, db.DB, m.fsys)
}

// Up applies all pending migrations to the tenant database.
func (m *Migrator) Up(ctx context.Context, tenantID string) error {
	p, err := m.provider(ctx, tenantID)
	if err != nil {
		return err
	}

	results, err := p.Up(ctx)
	if err != nil {
		if isNoMigrationErr(err) {
			m.log().Info("no migrations to apply", zap.String("tenant", tenantID))

			return nil
		}
		return fmt.Errorf("migrate tenant %s: %w", tenantID, err)
	}

	m.log().Info("migrations applied", zap.String("tenant", tenantID), zap.Int("count", len(results)))

	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, tenantID string, steps int, all bool) error {
	p, err := m.provider(ctx, tenantID)
	if err != nil {
		return err
	}

	if all {
		if _, err := p.DownTo(ctx, 0); err != nil {
			if isNoMigrationErr(err) {
				m.log().Info("no migrations to rollback", zap.String("tenant", tenantID))

				return nil
			}
			return err
		}
		m.log().Info("migrations rolled back", zap.String("tenant", tenantID), zap.String("mode", "all"))

		return nil
	}

	if steps <= 0 {
		steps = 1
	}

	for i := 0; i < steps; i++ {
		if _, err := p.Down(ctx); err != nil {
			if isNoMigrationErr(err) {
				m.log().Info("no migrations to rollback", zap.String("tenant", tenantID))

				return nil
			}
			return err
		}
	}

	m.log().Info("migrations rolled back", zap.String("tenant", tenantID), zap.Int("steps", steps))

	return nil
}

func (m *Migrator) log() *zap.Logger {
	if m.logger == nil {
		return zap.NewNop()
	}
	return m.logger
}

func gooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case "postgres", "pg":
		return goose.DialectPostgres, nil
	case "mysql":
		return goose.DialectMySQL, nil
	case "sqlite", "sqlite3":
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no migrations")
}
