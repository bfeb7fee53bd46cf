package product

import (
	"context"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/Additional-Code/storefront/internal/entity"
	"github.com/Additional-Code/storefront/internal/query"
)

// Module provides the product repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository reads products for pricing. Reads are never cached: checkout must see
// current prices.
type Repository struct {
	exec *query.Executor
}

// NewRepository wires a product repository.
func NewRepository(exec *query.Executor) *Repository {
	return &Repository{exec: exec}
}

// FindByIDs loads the pricing fields of every product in ids with a single query.
// Unknown ids are simply absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, tenantID string, ids []string) ([]entity.Product, error) {
	products := make([]entity.Product, 0, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	err := r.exec.Execute(ctx, tenantID, &products,
		`SELECT id, title, price, image FROM products WHERE id IN (?)`,
		[]any{bun.In(ids)},
	)
	return products, err
}
