package shop

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/Additional-Code/storefront/internal/entity"
	"github.com/Additional-Code/storefront/internal/query"
)

// Module provides the shop repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository manages the tenant's own shop record.
type Repository struct {
	exec *query.Executor
	now  func() time.Time
}

// NewRepository wires a shop repository.
func NewRepository(exec *query.Executor) *Repository {
	return &Repository{exec: exec, now: time.Now}
}

// DefaultName is the display name given to bootstrapped shops.
func DefaultName(tenantID string) string {
	return "Shop " + strings.ToUpper(tenantID)
}

// Ensure creates the tenant's shop row when it does not exist yet and reports whether
// this call created it. A concurrent insert of the same row is ignored.
func (r *Repository) Ensure(ctx context.Context, tenantID string) (bool, error) {
	db, err := r.exec.DB(ctx, tenantID)
	if err != nil {
		return false, err
	}

	exists, err := db.NewSelect().Model((*entity.Shop)(nil)).Where("id = ?", tenantID).Exists(ctx)
	if err != nil || exists {
		return false, err
	}

	res, err := db.NewInsert().
		Model(&entity.Shop{ID: tenantID, Name: DefaultName(tenantID), CreatedAt: r.now().UTC()}).
		Ignore().
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
