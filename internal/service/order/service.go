package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/database"
	"github.com/Additional-Code/storefront/internal/dto"
	"github.com/Additional-Code/storefront/internal/entity"
	"github.com/Additional-Code/storefront/internal/messaging"
	"github.com/Additional-Code/storefront/internal/query"
	orderrepo "github.com/Additional-Code/storefront/internal/repository/order"
	productrepo "github.com/Additional-Code/storefront/internal/repository/product"
	shoprepo "github.com/Additional-Code/storefront/internal/repository/shop"
	"github.com/Additional-Code/storefront/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/storefront/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/storefront/service/order")
)

const (
	historyNote      = "Order created"
	historyUpdatedBy = "system"
)

// Service runs checkout and buyer order lookups for a tenant.
type Service struct {
	orders      *orderrepo.Repository
	products    *productrepo.Repository
	shops       *shoprepo.Repository
	exec        *query.Executor
	ids         IDGenerator
	now         func() time.Time
	maxAttempts int
	logger      *zap.Logger
	publisher   messaging.Client
	messaging   messagingConfig
	created     metric.Int64Counter
	revenue     metric.Int64Counter
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders    *orderrepo.Repository
	Products  *productrepo.Repository
	Shops     *shoprepo.Repository
	Executor  *query.Executor
	Config    config.Config
	Logger    *zap.Logger      `optional:"true"`
	Publisher messaging.Client `optional:"true"`
	IDs       IDGenerator      `optional:"true"`
	Clock     func() time.Time `optional:"true"`
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	s := &Service{
		orders:      p.Orders,
		products:    p.Products,
		shops:       p.Shops,
		exec:        p.Executor,
		ids:         p.IDs,
		now:         p.Clock,
		maxAttempts: p.Config.Checkout.MaxIdentifierAttempts,
		logger:      p.Logger,
		publisher:   p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
	}
	if s.ids == nil {
		s.ids = RandomIDs{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 10
	}
	s.created, _ = serviceMeter.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders stored by checkout"),
	)
	s.revenue, _ = serviceMeter.Int64Counter("storefront.orders.final_price",
		metric.WithDescription("Sum of final prices of stored orders"),
	)
	return s
}

// Checkout validates the request, prices it from the catalog and stores the order,
// its first status history row and its line items atomically.
func (s *Service) Checkout(ctx context.Context, tenantID string, req dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Checkout", trace.WithAttributes(
		attribute.String("tenant", tenantID),
		attribute.String("order.payment_method", req.PaymentMethod),
		attribute.Int("order.lines", len(req.Products)),
	))
	defer span.End()

	if violations := validate(req); len(violations) > 0 {
		span.SetStatus(codes.Error, "invalid request")
		return nil, errorbank.BadRequest("invalid order data", errorbank.WithViolations(violations))
	}

	created, err := s.shops.Ensure(ctx, tenantID)
	if err != nil {
		return nil, s.fail(span, tenantID, "failed to prepare shop", err)
	}
	if created {
		s.log().Info("shop bootstrapped", zap.String("tenant", tenantID), zap.String("name", shoprepo.DefaultName(tenantID)))
	}

	ids := distinctIDs(req.Products)
	found, err := s.products.FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, s.fail(span, tenantID, "failed to load products", err)
	}
	catalog := make(map[string]entity.Product, len(found))
	for _, p := range found {
		catalog[p.ID] = p
	}
	missing := make([]string, 0)
	for _, id := range ids {
		if _, ok := catalog[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		span.SetStatus(codes.Error, "unknown products")
		return nil, errorbank.NotFound("some products do not exist", errorbank.WithDetail("missing_ids", missing))
	}

	price, finalPrice, ok := priceLines(req.Products, catalog, req.ShippingFee)
	if !ok {
		span.SetStatus(codes.Error, "total out of range")
		return nil, errorbank.BadRequest("order total is out of range")
	}

	code, err := s.unique(ctx, tenantID, "code", func() string { return s.ids.OrderCode(s.now()) }, s.orders.CodeExists)
	if err != nil {
		return nil, s.fail(span, tenantID, "failed to allocate order code", err)
	}
	orderID, err := s.unique(ctx, tenantID, "id", s.ids.OrderID, s.orders.IDExists)
	if err != nil {
		return nil, s.fail(span, tenantID, "failed to allocate order id", err)
	}

	now := s.now().UTC()
	items := make([]entity.OrderProduct, 0, len(req.Products))
	for _, line := range req.Products {
		p := catalog[line.ID]
		items = append(items, entity.OrderProduct{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			ProductID:   line.ID,
			Quantity:    line.Quantity,
			ListedPrice: p.Price,
			SalesPrice:  p.Price,
			ItemName:    p.Title,
			ItemVariant: line.Variant,
			ItemMedia:   line.Image,
		})
	}

	order := &entity.Order{
		ID:              orderID,
		OrderCode:       code,
		Status:          entity.OrderStatusNew,
		PaymentStatus:   paymentStatus(req.PaymentMethod),
		PaymentMethod:   req.PaymentMethod,
		CreatedAt:       now,
		BuyerName:       req.BuyerName,
		BuyerEmail:      req.BuyerEmail,
		BuyerAddress:    req.BuyerAddress,
		BuyerPhone:      req.BuyerPhone,
		BuyerNotes:      req.BuyerNotes,
		ShippingDetails: req.ShippingDetails,
		Price:           price,
		ShippingFee:     req.ShippingFee,
		FinalPrice:      finalPrice,
		ShopID:          tenantID,
	}
	history := &entity.OrderStatusHistory{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Status:    entity.OrderStatusNew,
		Note:      historyNote,
		UpdatedBy: historyUpdatedBy,
		CreatedAt: now,
	}

	if err := s.orders.Create(ctx, tenantID, order, history, items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
		s.log().Error("order transaction failed",
			zap.String("tenant", tenantID),
			zap.String("order.code", code),
			zap.Error(err),
		)
		if errors.Is(err, database.ErrUnavailable) {
			return nil, errorbank.Unavailable("shop database unavailable", errorbank.WithCause(err))
		}
		return nil, errorbank.Internal("failed to create order",
			errorbank.WithCause(err),
			errorbank.WithDetail("reason", "transaction_failed"),
		)
	}

	s.log().Info("order created",
		zap.String("tenant", tenantID),
		zap.String("order.id", orderID),
		zap.String("order.code", code),
		zap.Int64("order.final_price", order.FinalPrice),
	)

	attrs := metric.WithAttributes(
		attribute.String("tenant", tenantID),
		attribute.String("payment_method", order.PaymentMethod),
	)
	s.created.Add(ctx, 1, attrs)
	s.revenue.Add(ctx, order.FinalPrice, attrs)

	s.exec.InvalidateOrders(ctx, tenantID)
	s.publishOrderCreated(ctx, tenantID, order)

	return &dto.CheckoutResponse{
		OrderID:       order.ID,
		OrderCode:     order.OrderCode,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Price:         order.Price,
		FinalPrice:    order.FinalPrice,
	}, nil
}

// LookupResult is an order together with its purchased lines.
type LookupResult struct {
	Order entity.Order
	Items []entity.OrderProduct
}

// Lookup finds the buyer's open orders by order code or phone number, newest first.
func (s *Service) Lookup(ctx context.Context, tenantID, orderCode, buyerPhone string) ([]LookupResult, error) {
	if orderCode == "" && buyerPhone == "" {
		return nil, errorbank.BadRequest("order code or buyer phone is required")
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.Lookup", trace.WithAttributes(attribute.String("tenant", tenantID)))
	defer span.End()

	orders, err := s.orders.Lookup(ctx, tenantID, orderCode, buyerPhone)
	if err != nil {
		return nil, s.fail(span, tenantID, "failed to look up orders", err)
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.orders.Items(ctx, tenantID, ids)
	if err != nil {
		return nil, s.fail(span, tenantID, "failed to load order items", err)
	}

	results := make([]LookupResult, len(orders))
	for i, o := range orders {
		results[i] = LookupResult{Order: o, Items: items[o.ID]}
	}
	return results, nil
}

// fail maps a dependency error onto an application error, keeping AppErrors as they are.
func (s *Service) fail(span trace.Span, tenantID, message string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, message)

	var appErr *errorbank.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	s.log().Error(message, zap.String("tenant", tenantID), zap.Error(err))
	if errors.Is(err, database.ErrUnavailable) {
		return errorbank.Unavailable("shop database unavailable", errorbank.WithCause(err))
	}
	return errorbank.Internal(message, errorbank.WithCause(err))
}

func (s *Service) publishOrderCreated(ctx context.Context, tenantID string, order *entity.Order) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := OrderCreatedEvent{
		ID:            order.ID,
		Code:          order.OrderCode,
		Tenant:        tenantID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		FinalPrice:    order.FinalPrice,
		CreatedAt:     order.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.log().Error("marshal order created", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(tenantID+":"+order.ID), payload); err != nil {
		s.log().Error("publish order created", zap.String("tenant", tenantID), zap.String("topic", s.messaging.topic), zap.Error(err))
	}
}

func (s *Service) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

// OrderCreatedEvent is emitted when a new order is persisted.
type OrderCreatedEvent struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Tenant        string    `json:"tenant"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	FinalPrice    int64     `json:"finalPrice"`
	CreatedAt     time.Time `json:"createdAt"`
}
