package catalog

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/storefront/internal/database"
	"github.com/Additional-Code/storefront/internal/presentation/http/response"
	"github.com/Additional-Code/storefront/internal/query"
	"github.com/Additional-Code/storefront/internal/tenant"
	"github.com/Additional-Code/storefront/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/storefront/transport/http/catalog")

// Handler serves product and section reads through the query executor.
type Handler struct {
	exec *query.Executor
}

// NewHandler constructs a catalog Handler.
func NewHandler(exec *query.Executor) *Handler {
	return &Handler{exec: exec}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	products := e.Group("/products", tenant.Middleware())
	products.GET("", h.filter)
	products.GET("/by-path", h.byPath)
	products.GET("/related", h.related)
	products.GET("/:id", h.detail)

	sections := e.Group("/sections", tenant.Middleware())
	sections.GET("", h.sections)
	sections.GET("/:id/products", h.sectionProducts)
}

func (h *Handler) filter(c echo.Context) error {
	b := response.New(c)
	shopID, _ := tenant.FromContext(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "catalog.filter", trace.WithAttributes(attribute.String("tenant", shopID)))
	defer span.End()

	page, err := h.exec.FilterProducts(ctx, shopID, query.ProductFilter{
		Section:  c.QueryParam("section"),
		Search:   c.QueryParam("search"),
		MinPrice: int64(intParam(c, "minPrice", 0)),
		MaxPrice: int64(intParam(c, "maxPrice", 0)),
		Sort:     c.QueryParam("sort"),
		Skip:     intParam(c, "skip", 0),
		Take:     intParam(c, "take", 0),
	})
	if err != nil {
		return b.WithError(queryError(err)).Build()
	}
	return b.WithData(page.Products).
		WithMeta("total", page.Total).
		WithMeta("page", page.Page).
		WithMeta("pageSize", page.PageSize).
		WithMeta("totalPages", page.TotalPages).
		Build()
}

func (h *Handler) detail(c echo.Context) error {
	b := response.New(c)
	shopID, _ := tenant.FromContext(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "catalog.detail", trace.WithAttributes(
		attribute.String("tenant", shopID),
		attribute.String("product.id", id),
	))
	defer span.End()

	detail, err := h.exec.ProductWithDetails(ctx, shopID, id)
	if err != nil {
		return b.WithError(queryError(err)).Build()
	}
	if detail == nil {
		return b.WithError(errorbank.NotFound("product not found")).Build()
	}
	return b.WithData(detail).Build()
}

func (h *Handler) byPath(c echo.Context) error {
	b := response.New(c)
	shopID, _ := tenant.FromContext(c)
	path := c.QueryParam("path")
	if path == "" {
		return b.WithError(errorbank.BadRequest("path is required")).Build()
	}

	product, err := h.exec.ProductByPath(c.Request().Context(), shopID, path)
	if err != nil {
		return b.WithError(queryError(err)).Build()
	}
	if product == nil {
		return b.WithError(errorbank.NotFound("product not found")).Build()
	}
	return b.WithData(product).Build()
}

func (h *Handler) related(c echo.Context) error {
	b := response.New(c)
	shopID, _ := tenant.FromContext(c)

	var sectionIDs []string
	for _, id := range strings.Split(c.QueryParam("sectionIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			sectionIDs = append(sectionIDs, id)
		}
	}

	products, err := h.exec.RelatedProducts(c.Request().Context(), shopID, sectionIDs, c.QueryParam("productId"), intParam(c, "take", 0))
	if err != nil {
		return b.WithError(queryError(err)).Build()
	}
	return b.WithData(products).WithMeta("count", len(products)).Build()
}

func (h *Handler) sections(c echo.Context) error {
	b := response.New(c)
	shopID, _ := tenant.FromContext(c)

	sections, err := h.exec.SectionsWithProducts(c.Request().Context(), shopID)
	if err != nil {
		return b.WithError(queryError(err)).Build()
	}
	return b.WithData(sections).Build()
}

func (h *Handler) sectionProducts(c echo.Context) error {
	b := response.New(c)
	shopID, _ := tenant.FromContext(c)
	limit := intParam(c, "limit", 0)

	products, err := h.exec.ProductsBySection(c.Request().Context(), shopID, c.Param("id"), limit)
	if err != nil {
		return b.WithError(queryError(err)).Build()
	}
	return b.WithPagination(limit, len(products)).WithData(products).Build()
}

func intParam(c echo.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return fallback
	}
	return v
}

// queryError classifies executor failures for clients.
func queryError(err error) error {
	if errors.Is(err, database.ErrUnavailable) {
		return errorbank.Unavailable("shop database unavailable", errorbank.WithCause(err))
	}
	return errorbank.Internal("failed to load catalog", errorbank.WithCause(err))
}
