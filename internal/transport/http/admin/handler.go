package admin

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/storefront/internal/cache"
	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/database"
	"github.com/Additional-Code/storefront/internal/presentation/http/response"
	"github.com/Additional-Code/storefront/pkg/errorbank"
)

// Handler exposes query cache introspection and invalidation, and the log level, for
// operators.
type Handler struct {
	store    cache.Store
	registry *database.Registry
	level    zap.AtomicLevel
	logger   *zap.Logger
}

// NewHandler constructs an admin Handler.
func NewHandler(store cache.Store, registry *database.Registry, level zap.AtomicLevel, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, registry: registry, level: level, logger: logger}
}

// Register routes with provided Echo instance. When an admin token is configured every
// route requires it as a bearer token.
func Register(e *echo.Echo, h *Handler, cfg config.Config) {
	g := e.Group("/admin")
	if token := cfg.HTTP.AdminToken; token != "" {
		g.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
			},
			ErrorHandler: func(err error, c echo.Context) error {
				return response.New(c).WithError(errorbank.Unauthorized("admin token required", errorbank.WithCause(err))).Build()
			},
		}))
	}

	g.GET("/cache", h.overview)
	g.GET("/cache/stats", h.stats)
	g.GET("/cache/keys", h.keys)
	g.DELETE("/cache", h.invalidate)

	g.GET("/log-level", h.logLevel)
	g.PUT("/log-level", h.setLogLevel)
}

func (h *Handler) overview(c echo.Context) error {
	b := response.New(c)
	ctx := c.Request().Context()

	stats, err := h.store.Stats(ctx)
	if err != nil {
		return b.WithError(cacheError(err)).Build()
	}
	keys, err := h.store.Keys(ctx)
	if err != nil {
		return b.WithError(cacheError(err)).Build()
	}

	return b.WithData(map[string]any{
		"stats":   stats,
		"keys":    keys,
		"tenants": h.registry.Tenants(),
		"actions": map[string]string{
			"clear":      "DELETE /admin/cache",
			"invalidate": "DELETE /admin/cache?pattern=<substring>",
		},
	}).Build()
}

func (h *Handler) stats(c echo.Context) error {
	b := response.New(c)
	stats, err := h.store.Stats(c.Request().Context())
	if err != nil {
		return b.WithError(cacheError(err)).Build()
	}
	return b.WithData(stats).Build()
}

func (h *Handler) keys(c echo.Context) error {
	b := response.New(c)
	keys, err := h.store.Keys(c.Request().Context())
	if err != nil {
		return b.WithError(cacheError(err)).Build()
	}
	return b.WithData(keys).WithMeta("count", len(keys)).Build()
}

// invalidate clears the whole cache, or only keys containing ?pattern= when given.
func (h *Handler) invalidate(c echo.Context) error {
	b := response.New(c)
	ctx := c.Request().Context()

	pattern := c.QueryParam("pattern")
	if pattern == "" {
		if err := h.store.Clear(ctx); err != nil {
			return b.WithError(cacheError(err)).Build()
		}
		h.logger.Info("query cache cleared")
		return b.WithData(map[string]any{"cleared": true}).Build()
	}

	removed, err := h.store.Invalidate(ctx, pattern)
	if err != nil {
		return b.WithError(cacheError(err)).Build()
	}
	h.logger.Info("query cache invalidated", zap.String("pattern", pattern), zap.Int("removed", removed))
	return b.WithStatus(http.StatusOK).WithData(map[string]any{
		"pattern": pattern,
		"removed": removed,
	}).Build()
}

type levelPayload struct {
	Level string `json:"level"`
}

func (h *Handler) logLevel(c echo.Context) error {
	return response.New(c).WithData(levelPayload{Level: h.level.String()}).Build()
}

func (h *Handler) setLogLevel(c echo.Context) error {
	b := response.New(c)

	var req levelPayload
	if err := c.Bind(&req); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	level, err := zapcore.ParseLevel(req.Level)
	if err != nil {
		return b.WithError(errorbank.BadRequest("unknown log level", errorbank.WithDetail("level", req.Level))).Build()
	}

	previous := h.level.Level()
	h.level.SetLevel(level)
	h.logger.Warn("log level changed", zap.Stringer("from", previous), zap.Stringer("to", level))
	return b.WithData(levelPayload{Level: level.String()}).Build()
}

func cacheError(err error) error {
	return errorbank.Internal("cache unavailable", errorbank.WithCause(err))
}
