package order

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/dto"
	"github.com/Additional-Code/storefront/internal/presentation/http/response"
	service "github.com/Additional-Code/storefront/internal/service/order"
	"github.com/Additional-Code/storefront/internal/tenant"
	"github.com/Additional-Code/storefront/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/storefront/transport/http/order")

// CSRFCookie is the double-submit cookie checked against the csrfToken form field.
const CSRFCookie = "csrfToken"

// Handler exposes checkout and order lookup over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler, cfg config.Config) {
	checkout := e.Group("/checkout", tenant.Middleware())
	if cfg.HTTP.CSRFEnabled {
		checkout.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
			TokenLookup:    "form:csrfToken,header:" + echo.HeaderXCSRFToken,
			CookieName:     CSRFCookie,
			CookiePath:     "/",
			CookieHTTPOnly: true,
			CookieSameSite: http.SameSiteStrictMode,
		}))
	}
	checkout.GET("/token", h.token)
	checkout.POST("", h.checkout)

	e.GET("/orders/lookup", h.lookup, tenant.Middleware())
}

// token hands out the CSRF token issued for this browser.
func (h *Handler) token(c echo.Context) error {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return response.New(c).WithData(map[string]string{"csrfToken": token}).Build()
}

func (h *Handler) checkout(c echo.Context) error {
	b := response.New(c)
	shopID, _ := tenant.FromContext(c)

	req, err := bindCheckout(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.checkout", trace.WithAttributes(
		attribute.String("tenant", shopID),
	))
	defer span.End()

	res, err := h.svc.Checkout(ctx, shopID, req)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(res).Build()
}

// bindCheckout accepts JSON bodies and form posts. Forms carry the product lines as a
// JSON string in the "products" field.
func bindCheckout(c echo.Context) (dto.CheckoutRequest, error) {
	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return req, errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return req, nil
	}
	raw := c.FormValue("products")
	if raw == "" {
		return req, nil
	}
	if err := json.Unmarshal([]byte(raw), &req.Products); err != nil {
		return req, errorbank.BadRequest("invalid product data", errorbank.WithCause(err))
	}
	return req, nil
}

func (h *Handler) lookup(c echo.Context) error {
	b := response.New(c)
	shopID, _ := tenant.FromContext(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.lookup", trace.WithAttributes(
		attribute.String("tenant", shopID),
	))
	defer span.End()

	results, err := h.svc.Lookup(ctx, shopID, strings.TrimSpace(c.QueryParam("orderCode")), strings.TrimSpace(c.QueryParam("buyerPhone")))
	if err != nil {
		return b.WithError(err).Build()
	}

	orders := make([]dto.OrderResponse, len(results))
	for i, r := range results {
		orders[i] = toDTO(r)
	}
	return b.WithData(orders).WithMeta("count", len(orders)).Build()
}

func toDTO(r service.LookupResult) dto.OrderResponse {
	items := make([]dto.OrderItemResponse, len(r.Items))
	for i, item := range r.Items {
		items[i] = dto.OrderItemResponse{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			SalesPrice:  item.SalesPrice,
			ItemName:    item.ItemName,
			ItemVariant: item.ItemVariant,
			ItemMedia:   item.ItemMedia,
		}
	}
	return dto.OrderResponse{
		ID:            r.Order.ID,
		OrderCode:     r.Order.OrderCode,
		Status:        r.Order.Status,
		PaymentStatus: r.Order.PaymentStatus,
		PaymentMethod: r.Order.PaymentMethod,
		BuyerName:     r.Order.BuyerName,
		Price:         r.Order.Price,
		ShippingFee:   r.Order.ShippingFee,
		FinalPrice:    r.Order.FinalPrice,
		CreatedAt:     r.Order.CreatedAt,
		Items:         items,
	}
}
