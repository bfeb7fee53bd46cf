package order

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/messaging"
	"github.com/Additional-Code/storefront/internal/query"
	ordersvc "github.com/Additional-Code/storefront/internal/service/order"
	"github.com/Additional-Code/storefront/internal/tenant"
	"github.com/Additional-Code/storefront/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/storefront/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderCreatedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewOrderCreatedHandler drops the cached order lookups of the tenant an order was
// placed in. Another node may have served the checkout, so this node's cache would
// otherwise keep answering lookups without the new order until the entries expire.
func NewOrderCreatedHandler(logger *zap.Logger, cfg config.Config, exec *query.Executor) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.created", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		var event ordersvc.OrderCreatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order created", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		if event.Tenant == "" {
			event.Tenant = msg.Headers[messaging.TenantHeader]
		}
		if err := tenant.Validate(event.Tenant); err != nil {
			err = fmt.Errorf("order created %s: %w", event.ID, err)
			logger.Error("order created event without tenant", zap.String("id", event.ID), zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid tenant")
			return err
		}
		span.SetAttributes(attribute.String("tenant", event.Tenant), attribute.String("order.code", event.Code))

		exec.InvalidateOrders(ctx, event.Tenant)

		logger.Info("order created event processed",
			zap.String("tenant", event.Tenant),
			zap.String("id", event.ID),
			zap.String("code", event.Code),
			zap.String("payment_status", event.PaymentStatus),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
