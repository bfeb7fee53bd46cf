package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/storefront/internal/entity"
	"github.com/Additional-Code/storefront/internal/repository/order"
	"github.com/Additional-Code/storefront/internal/testutil"
)

func newOrder(id, code, phone, status string, at time.Time) (*entity.Order, *entity.OrderStatusHistory, []entity.OrderProduct) {
	o := &entity.Order{
		ID:            id,
		OrderCode:     code,
		Status:        status,
		PaymentStatus: entity.PaymentStatusPending,
		PaymentMethod: "COD",
		CreatedAt:     at,
		BuyerName:     "Nguyen Van A",
		BuyerAddress:  "12 Ly Thuong Kiet, Ha Noi",
		BuyerPhone:    phone,
		Price:         100000,
		FinalPrice:    100000,
		ShopID:        "shop1",
	}
	h := &entity.OrderStatusHistory{ID: id + "-h", OrderID: id, Status: status, UpdatedBy: "system", CreatedAt: at}
	items := []entity.OrderProduct{
		{ID: id + "-i1", OrderID: id, ProductID: "p1", Quantity: 1, ListedPrice: 100000, SalesPrice: 100000, ItemName: "Linen shirt"},
	}
	return o, h, items
}

func TestCreate_WritesAllRows(t *testing.T) {
	env := testutil.NewEnv(t)
	db := env.Tenant(t, "shop1")
	repo := order.NewRepository(env.Executor)
	ctx := context.Background()

	o, h, items := newOrder("o1", "ORD-20250301-1234", "0901234567", entity.OrderStatusNew, testutil.Epoch)
	require.NoError(t, repo.Create(ctx, "shop1", o, h, items))

	assert.Equal(t, 1, testutil.Count(t, db, "orders"))
	assert.Equal(t, 1, testutil.Count(t, db, "order_status_history"))
	assert.Equal(t, 1, testutil.Count(t, db, "order_products"))

	exists, err := repo.IDExists(ctx, "shop1", "o1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.CodeExists(ctx, "shop1", "ORD-20250301-1234")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.CodeExists(ctx, "shop1", "ORD-20250301-9999")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreate_RollsBackOnFailure(t *testing.T) {
	env := testutil.NewEnv(t)
	db := env.Tenant(t, "shop1")
	repo := order.NewRepository(env.Executor)
	ctx := context.Background()

	o, h, items := newOrder("o1", "ORD-20250301-1234", "0901234567", entity.OrderStatusNew, testutil.Epoch)
	require.NoError(t, repo.Create(ctx, "shop1", o, h, items))

	// same code, new id: the UNIQUE constraint rejects the header
	dup, dupHistory, dupItems := newOrder("o2", "ORD-20250301-1234", "0901234567", entity.OrderStatusNew, testutil.Epoch)
	require.Error(t, repo.Create(ctx, "shop1", dup, dupHistory, dupItems))

	// header succeeds but the item insert collides with an existing primary key
	o3, h3, items3 := newOrder("o3", "ORD-20250301-5678", "0901234567", entity.OrderStatusNew, testutil.Epoch)
	items3[0].ID = "o1-i1"
	require.Error(t, repo.Create(ctx, "shop1", o3, h3, items3))

	assert.Equal(t, 1, testutil.Count(t, db, "orders"))
	assert.Equal(t, 1, testutil.Count(t, db, "order_status_history"))
	assert.Equal(t, 1, testutil.Count(t, db, "order_products"))
}

func TestLookup(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Tenant(t, "shop1")
	repo := order.NewRepository(env.Executor)
	ctx := context.Background()

	for i, spec := range []struct {
		id, code, status string
	}{
		{"o1", "ORD-20250301-1001", entity.OrderStatusNew},
		{"o2", "ORD-20250301-1002", "delivered"},
		{"o3", "ORD-20250301-1003", "shipping"},
		{"o4", "ORD-20250301-1004", "cancelled"},
	} {
		o, h, items := newOrder(spec.id, spec.code, "0901234567", spec.status, testutil.Epoch.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.Create(ctx, "shop1", o, h, items))
	}

	byPhone, err := repo.Lookup(ctx, "shop1", "", "0901234567")
	require.NoError(t, err)
	require.Len(t, byPhone, 2)
	assert.Equal(t, "o3", byPhone[0].ID, "newest first")
	assert.Equal(t, "o1", byPhone[1].ID)

	byCode, err := repo.Lookup(ctx, "shop1", "ORD-20250301-1001", "")
	require.NoError(t, err)
	require.Len(t, byCode, 1)
	assert.Equal(t, "o1", byCode[0].ID)

	closed, err := repo.Lookup(ctx, "shop1", "ORD-20250301-1002", "")
	require.NoError(t, err)
	assert.Empty(t, closed)

	items, err := repo.Items(ctx, "shop1", []string{"o1", "o3"})
	require.NoError(t, err)
	assert.Len(t, items["o1"], 1)
	assert.Len(t, items["o3"], 1)

	keys, err := env.Cache.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "shop1:order:lookup::0901234567")
	assert.Contains(t, keys, "shop1:order:items:o1,o3")
}
