package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/database"
	"github.com/Additional-Code/storefront/internal/dto"
	"github.com/Additional-Code/storefront/internal/entity"
	"github.com/Additional-Code/storefront/internal/messaging"
	orderrepo "github.com/Additional-Code/storefront/internal/repository/order"
	productrepo "github.com/Additional-Code/storefront/internal/repository/product"
	shoprepo "github.com/Additional-Code/storefront/internal/repository/shop"
	service "github.com/Additional-Code/storefront/internal/service/order"
	"github.com/Additional-Code/storefront/internal/testutil"
	"github.com/Additional-Code/storefront/pkg/errorbank"
)

// 05:00 on 2 March in Ha Noi is still 1 March in UTC.
var checkoutTime = time.Date(2025, 3, 2, 5, 0, 0, 0, time.FixedZone("ICT", 7*3600))

type stubIDs struct {
	mu    sync.Mutex
	codes []string
	ids   []string
}

func (s *stubIDs) OrderCode(time.Time) string { return s.next(&s.codes) }
func (s *stubIDs) OrderID() string            { return s.next(&s.ids) }

// next pops the head of list, repeating the last value once exhausted.
func (s *stubIDs) next(list *[]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := (*list)[0]
	if len(*list) > 1 {
		*list = (*list)[1:]
	}
	return v
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, _ []byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, value)
	return nil
}

func (f *fakePublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakePublisher) Topic() string { return "orders.events" }

type setup struct {
	env       *testutil.Env
	cfg       config.Config
	ids       service.IDGenerator
	publisher messaging.Client
}

type option func(*setup)

func withIDs(ids service.IDGenerator) option { return func(s *setup) { s.ids = ids } }

func withPublisher(p messaging.Client) option {
	return func(s *setup) {
		s.publisher = p
		s.cfg.Messaging.Enabled = true
		s.cfg.Messaging.Kafka.Topic = p.Topic()
	}
}

func withMaxAttempts(n int) option {
	return func(s *setup) { s.cfg.Checkout.MaxIdentifierAttempts = n }
}

func newService(env *testutil.Env, opts ...option) *service.Service {
	s := &setup{env: env, cfg: env.Config}
	for _, opt := range opts {
		opt(s)
	}
	return service.NewService(service.Params{
		Orders:    orderrepo.NewRepository(env.Executor),
		Products:  productrepo.NewRepository(env.Executor),
		Shops:     shoprepo.NewRepository(env.Executor),
		Executor:  env.Executor,
		Config:    s.cfg,
		Logger:    env.Logger,
		Publisher: s.publisher,
		IDs:       s.ids,
		Clock:     func() time.Time { return checkoutTime },
	})
}

func validRequest(method string, lines ...dto.CheckoutLine) dto.CheckoutRequest {
	return dto.CheckoutRequest{
		BuyerName:     "Trần Thị Bình",
		BuyerAddress:  "12 Lý Thường Kiệt, Hà Nội",
		BuyerPhone:    "0901234567",
		BuyerEmail:    "binh@example.com",
		ShippingFee:   15000,
		PaymentMethod: method,
		Products:      lines,
	}
}

func appError(t *testing.T, err error) *errorbank.AppError {
	t.Helper()
	var appErr *errorbank.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr
}

func TestCheckout_ExampleScenario(t *testing.T) {
	env := testutil.NewEnv(t)
	db := env.Tenant(t, "shop1")
	testutil.Catalog(t, db)
	ctx := context.Background()

	svc := newService(env)
	res, err := svc.Checkout(ctx, "shop1", validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: 2, Variant: "S"}))
	require.NoError(t, err)

	assert.Equal(t, int64(200000), res.Price)
	assert.Equal(t, int64(215000), res.FinalPrice)
	assert.Equal(t, entity.PaymentStatusPending, res.PaymentStatus)
	assert.Equal(t, entity.OrderStatusNew, res.Status)
	assert.Regexp(t, `^ORD-20250301-[1-9]\d{3}$`, res.OrderCode)
	assert.NotEmpty(t, res.OrderID)

	var stored entity.Order
	require.NoError(t, db.NewSelect().Model(&stored).Where("id = ?", res.OrderID).Scan(ctx))
	assert.Equal(t, res.OrderCode, stored.OrderCode)
	assert.Equal(t, "shop1", stored.ShopID)
	assert.Equal(t, int64(15000), stored.ShippingFee)
	assert.Zero(t, stored.Tax)
	assert.Zero(t, stored.Discounted)

	var history []entity.OrderStatusHistory
	require.NoError(t, db.NewSelect().Model(&history).Where("order_id = ?", res.OrderID).Scan(ctx))
	require.Len(t, history, 1)
	assert.Equal(t, entity.OrderStatusNew, history[0].Status)
	assert.Equal(t, "system", history[0].UpdatedBy)

	var items []entity.OrderProduct
	require.NoError(t, db.NewSelect().Model(&items).Where("order_id = ?", res.OrderID).Scan(ctx))
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, int64(100000), items[0].ListedPrice)
	assert.Equal(t, int64(100000), items[0].SalesPrice)
	assert.Equal(t, "Linen shirt", items[0].ItemName)
	assert.Equal(t, "S", items[0].ItemVariant)

	var shops []entity.Shop
	require.NoError(t, db.NewSelect().Model(&shops).Scan(ctx))
	require.Len(t, shops, 1)
	assert.Equal(t, "Shop SHOP1", shops[0].Name)
}

func TestCheckout_PaymentStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.Catalog(t, env.Tenant(t, "shop1"))
	svc := newService(env)

	for method, want := range map[string]string{
		"COD":     entity.PaymentStatusPending,
		"VietQR":  entity.PaymentStatusPaid,
		"Payoo":   entity.PaymentStatusPaid,
		"Fundiin": entity.PaymentStatusPaid,
	} {
		res, err := svc.Checkout(context.Background(), "shop1", validRequest(method, dto.CheckoutLine{ID: "p2", Quantity: 1}))
		require.NoError(t, err, method)
		assert.Equal(t, want, res.PaymentStatus, method)
		assert.Equal(t, entity.OrderStatusNew, res.Status, method)
	}
}

func TestCheckout_TotalsAcrossLines(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.Catalog(t, env.Tenant(t, "shop1"))
	svc := newService(env)

	req := validRequest("VietQR",
		dto.CheckoutLine{ID: "p1", Quantity: 1},
		dto.CheckoutLine{ID: "p2", Quantity: 3},
		dto.CheckoutLine{ID: "p1", Quantity: 1, Variant: "M"},
	)
	req.ShippingFee = 0

	res, err := svc.Checkout(context.Background(), "shop1", req)
	require.NoError(t, err)
	assert.Equal(t, int64(100000+150000+100000), res.Price)
	assert.Equal(t, res.Price, res.FinalPrice)
}

func TestCheckout_UnknownProductAbortsWithoutWrites(t *testing.T) {
	env := testutil.NewEnv(t)
	db := env.Tenant(t, "shop1")
	testutil.Catalog(t, db)
	svc := newService(env)

	_, err := svc.Checkout(context.Background(), "shop1", validRequest("COD",
		dto.CheckoutLine{ID: "p1", Quantity: 1},
		dto.CheckoutLine{ID: "ghost", Quantity: 1},
		dto.CheckoutLine{ID: "ghost", Quantity: 2},
		dto.CheckoutLine{ID: "phantom", Quantity: 1},
	))
	require.Error(t, err)

	appErr := appError(t, err)
	assert.Equal(t, errorbank.KindNotFound, appErr.Kind())
	assert.Equal(t, []string{"ghost", "phantom"}, appErr.Details()["missing_ids"])

	assert.Zero(t, testutil.Count(t, db, "orders"))
	assert.Zero(t, testutil.Count(t, db, "order_status_history"))
	assert.Zero(t, testutil.Count(t, db, "order_products"))
}

func TestCheckout_ValidationNeverTouchesDatabase(t *testing.T) {
	var opened atomic.Int32
	env := testutil.NewEnv(t, database.WithOpener(func(context.Context, string) (*bun.DB, error) {
		opened.Add(1)
		return nil, errors.New("unexpected connect")
	}))
	svc := newService(env)

	req := dto.CheckoutRequest{
		BuyerName:     "A",
		BuyerAddress:  "x",
		BuyerPhone:    "123",
		PaymentMethod: "Cash",
		Products:      []dto.CheckoutLine{{ID: "", Quantity: 0}},
	}
	_, err := svc.Checkout(context.Background(), "shop1", req)
	require.Error(t, err)

	appErr := appError(t, err)
	assert.Equal(t, errorbank.KindBadRequest, appErr.Kind())

	violations, ok := appErr.Details()["violations"].([]errorbank.Violation)
	require.True(t, ok)
	fields := make([]string, len(violations))
	for i, v := range violations {
		fields[i] = v.Field
	}
	assert.Equal(t, []string{
		"buyerName", "buyerAddress", "buyerPhone", "paymentMethod",
		"products[0].id", "products[0].quantity",
	}, fields)

	_, err = svc.Checkout(context.Background(), "shop1", validRequest("COD"))
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, appError(t, err).Kind())

	assert.Zero(t, opened.Load())
}

func TestCheckout_LengthsCountCharactersNotBytes(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.Catalog(t, env.Tenant(t, "shop1"))
	svc := newService(env)

	// 100 runes, 200 bytes
	req := validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: 1})
	req.BuyerName = strings.Repeat("Ă", 100)
	_, err := svc.Checkout(context.Background(), "shop1", req)
	require.NoError(t, err)

	req.BuyerName += "Ă"
	_, err = svc.Checkout(context.Background(), "shop1", req)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, appError(t, err).Kind())
}

func TestCheckout_RetriesIdentifierCollisions(t *testing.T) {
	env := testutil.NewEnv(t)
	db := env.Tenant(t, "shop1")
	testutil.Catalog(t, db)
	ctx := context.Background()

	ids := &stubIDs{
		codes: []string{"ORD-20250301-1111", "ORD-20250301-1111", "ORD-20250301-2222"},
		ids:   []string{"order-a", "order-a", "order-b"},
	}
	svc := newService(env, withIDs(ids))

	first, err := svc.Checkout(ctx, "shop1", validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, "ORD-20250301-1111", first.OrderCode)
	assert.Equal(t, "order-a", first.OrderID)

	second, err := svc.Checkout(ctx, "shop1", validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, "ORD-20250301-2222", second.OrderCode)
	assert.Equal(t, "order-b", second.OrderID)

	assert.Equal(t, 2, testutil.Count(t, db, "orders"))
}

func TestCheckout_ExhaustedIdentifiersConflict(t *testing.T) {
	env := testutil.NewEnv(t)
	db := env.Tenant(t, "shop1")
	testutil.Catalog(t, db)
	ctx := context.Background()

	ids := &stubIDs{codes: []string{"ORD-20250301-1111"}, ids: []string{"order-a", "order-b"}}
	svc := newService(env, withIDs(ids), withMaxAttempts(3))

	_, err := svc.Checkout(ctx, "shop1", validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: 1}))
	require.NoError(t, err)

	_, err = svc.Checkout(ctx, "shop1", validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: 1}))
	require.Error(t, err)
	appErr := appError(t, err)
	assert.Equal(t, errorbank.KindConflict, appErr.Kind())
	assert.Equal(t, 3, appErr.Details()["attempts"])

	assert.Equal(t, 1, testutil.Count(t, db, "orders"))
}

func TestCheckout_RejectsOutOfRangeTotals(t *testing.T) {
	env := testutil.NewEnv(t)
	db := env.Tenant(t, "shop1")
	testutil.Catalog(t, db)
	pricey := testutil.Product("pricey", "Gold watch", math.MaxInt64/3, 9)
	testutil.Insert(t, db, &pricey)
	svc := newService(env)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, "shop1", validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: math.MaxInt/100000 + 1}))
	require.Error(t, err)
	appErr := appError(t, err)
	assert.Equal(t, errorbank.KindBadRequest, appErr.Kind())
	violations, ok := appErr.Details()["violations"].([]errorbank.Violation)
	require.True(t, ok)
	require.Len(t, violations, 1)
	assert.Equal(t, "products[0].quantity", violations[0].Field)

	_, err = svc.Checkout(ctx, "shop1", validRequest("COD", dto.CheckoutLine{ID: "pricey", Quantity: 4}))
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, appError(t, err).Kind())

	req := validRequest("COD", dto.CheckoutLine{ID: "pricey", Quantity: 3})
	req.ShippingFee = math.MaxInt64
	_, err = svc.Checkout(ctx, "shop1", req)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, appError(t, err).Kind())

	assert.Zero(t, testutil.Count(t, db, "orders"))
}

func TestCheckout_TransactionFailureLeavesNothing(t *testing.T) {
	env := testutil.NewEnv(t)
	db := env.Tenant(t, "shop1")
	testutil.Catalog(t, db)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "DROP TABLE order_products")
	require.NoError(t, err)

	svc := newService(env)
	_, err = svc.Checkout(ctx, "shop1", validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: 1}))
	require.Error(t, err)

	appErr := appError(t, err)
	assert.Equal(t, errorbank.KindInternal, appErr.Kind())
	assert.Equal(t, "transaction_failed", appErr.Details()["reason"])
	assert.False(t, appErr.Public())

	assert.Zero(t, testutil.Count(t, db, "orders"))
	assert.Zero(t, testutil.Count(t, db, "order_status_history"))
}

func TestCheckout_SequentialOrdersAreUnique(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.Catalog(t, env.Tenant(t, "shop1"))
	svc := newService(env)

	ids := map[string]bool{}
	codes := map[string]bool{}
	for i := 0; i < 25; i++ {
		res, err := svc.Checkout(context.Background(), "shop1", validRequest("COD", dto.CheckoutLine{ID: "p3", Quantity: 1}))
		require.NoError(t, err)
		assert.False(t, ids[res.OrderID], "duplicate id %s", res.OrderID)
		assert.False(t, codes[res.OrderCode], "duplicate code %s", res.OrderCode)
		ids[res.OrderID] = true
		codes[res.OrderCode] = true
	}
}

func TestCheckout_PublishesEventAndInvalidatesLookups(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.Catalog(t, env.Tenant(t, "shop1"))
	ctx := context.Background()

	pub := &fakePublisher{}
	svc := newService(env, withPublisher(pub))

	before, err := svc.Lookup(ctx, "shop1", "", "0901234567")
	require.NoError(t, err)
	assert.Empty(t, before)

	res, err := svc.Checkout(ctx, "shop1", validRequest("Payoo", dto.CheckoutLine{ID: "p1", Quantity: 1}))
	require.NoError(t, err)

	after, err := svc.Lookup(ctx, "shop1", "", "0901234567")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, res.OrderID, after[0].Order.ID)
	require.Len(t, after[0].Items, 1)
	assert.Equal(t, "p1", after[0].Items[0].ProductID)

	require.Len(t, pub.payloads, 1)
	var event service.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &event))
	assert.Equal(t, res.OrderID, event.ID)
	assert.Equal(t, res.OrderCode, event.Code)
	assert.Equal(t, "shop1", event.Tenant)
	assert.Equal(t, entity.PaymentStatusPaid, event.PaymentStatus)
}

func TestCheckout_UnconsumedMemoryBusDoesNotBlock(t *testing.T) {
	env := testutil.NewEnv(t)
	db := env.Tenant(t, "shop1")
	testutil.Catalog(t, db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc := newService(env, withPublisher(messaging.NewMemory("orders.events", 2)))
	for range 3 {
		_, err := svc.Checkout(ctx, "shop1", validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: 1}))
		require.NoError(t, err)
	}
	assert.NoError(t, ctx.Err())
	assert.Equal(t, 3, testutil.Count(t, db, "orders"))
}

func TestLookup_RequiresCodeOrPhone(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)

	_, err := svc.Lookup(context.Background(), "shop1", "", "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, appError(t, err).Kind())
}

func TestCheckout_ConnectionFailureIsUnavailable(t *testing.T) {
	env := testutil.NewEnv(t, database.WithOpener(func(context.Context, string) (*bun.DB, error) {
		return nil, errors.New("dial tcp: i/o timeout")
	}))
	svc := newService(env)

	_, err := svc.Checkout(context.Background(), "shop1", validRequest("COD", dto.CheckoutLine{ID: "p1", Quantity: 1}))
	require.Error(t, err)
	appErr := appError(t, err)
	assert.Equal(t, errorbank.KindUnavailable, appErr.Kind())
	assert.ErrorIs(t, err, database.ErrUnavailable)
}
