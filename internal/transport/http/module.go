package http

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/storefront/internal/transport/http/admin"
	"github.com/Additional-Code/storefront/internal/transport/http/catalog"
	ordertransport "github.com/Additional-Code/storefront/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	catalog.Module,
	admin.Module,
)
