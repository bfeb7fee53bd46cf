package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/storefront/internal/entity"
	"github.com/Additional-Code/storefront/internal/query"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/storefront/repository/order")

// LookupTTL bounds how long an order lookup is served from the cache.
const LookupTTL = time.Minute

// closedStatuses are excluded from buyer lookups.
var closedStatuses = []string{"cancelled", "delivered"}

// Repository encapsulates tenant-scoped access to orders and their child rows.
type Repository struct {
	exec *query.Executor
}

// NewRepository wires a repository on top of the query executor.
func NewRepository(exec *query.Executor) *Repository {
	return &Repository{exec: exec}
}

// IDExists reports whether an order with id is already stored.
func (r *Repository) IDExists(ctx context.Context, tenantID, id string) (bool, error) {
	return r.exists(ctx, tenantID, "id = ?", id)
}

// CodeExists reports whether an order with the public code is already stored.
func (r *Repository) CodeExists(ctx context.Context, tenantID, code string) (bool, error) {
	return r.exists(ctx, tenantID, "order_code = ?", code)
}

func (r *Repository) exists(ctx context.Context, tenantID, where string, arg any) (bool, error) {
	db, err := r.exec.DB(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return db.NewSelect().Model((*entity.Order)(nil)).Where(where, arg).Exists(ctx)
}

// Create writes the order header, its status history and its line items in one
// transaction. Nothing is persisted when any insert fails.
func (r *Repository) Create(ctx context.Context, tenantID string, order *entity.Order, history *entity.OrderStatusHistory, items []entity.OrderProduct) error {
	if order == nil || history == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(
		attribute.String("tenant", tenantID),
		attribute.String("order.code", order.OrderCode),
		attribute.Int("order.items", len(items)),
	))
	defer span.End()

	_, err := query.Transaction(ctx, r.exec, tenantID, func(ctx context.Context, db *bun.DB) (struct{}, error) {
		return struct{}{}, db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
			if _, err := tx.NewInsert().Model(history).Exec(ctx); err != nil {
				return fmt.Errorf("insert status history: %w", err)
			}
			if len(items) == 0 {
				return nil
			}
			if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
				return fmt.Errorf("insert order products: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
	}
	return err
}

// Lookup returns the open orders matching the code or the buyer phone, newest first.
// Results are cached per tenant under the order namespace.
func (r *Repository) Lookup(ctx context.Context, tenantID, orderCode, buyerPhone string) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Lookup", trace.WithAttributes(attribute.String("tenant", tenantID)))
	defer span.End()

	orders := make([]entity.Order, 0)
	err := r.exec.Execute(ctx, tenantID, &orders,
		`SELECT * FROM orders
		 WHERE (order_code = ? OR buyer_phone = ?) AND status NOT IN (?)
		 ORDER BY created_at DESC`,
		[]any{orderCode, buyerPhone, bun.In(closedStatuses)},
		query.WithCacheKey(fmt.Sprintf("%s:order:lookup:%s:%s", tenantID, orderCode, buyerPhone)),
		query.WithTTL(LookupTTL),
	)
	return orders, err
}

// Items returns the line items of the given orders, grouped by order id.
func (r *Repository) Items(ctx context.Context, tenantID string, orderIDs []string) (map[string][]entity.OrderProduct, error) {
	grouped := make(map[string][]entity.OrderProduct, len(orderIDs))
	if len(orderIDs) == 0 {
		return grouped, nil
	}

	items := make([]entity.OrderProduct, 0)
	err := r.exec.Execute(ctx, tenantID, &items,
		`SELECT * FROM order_products WHERE order_id IN (?) ORDER BY order_id, id`,
		[]any{bun.In(orderIDs)},
		query.WithCacheKey(fmt.Sprintf("%s:order:items:%s", tenantID, strings.Join(orderIDs, ","))),
		query.WithTTL(LookupTTL),
	)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		grouped[item.OrderID] = append(grouped[item.OrderID], item)
	}
	return grouped, nil
}
