package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/storefront/internal/cache"
	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/database"
	"github.com/Additional-Code/storefront/internal/logger"
	"github.com/Additional-Code/storefront/internal/messaging"
	"github.com/Additional-Code/storefront/internal/migration"
	"github.com/Additional-Code/storefront/internal/observability"
	"github.com/Additional-Code/storefront/internal/query"
	repositoryorder "github.com/Additional-Code/storefront/internal/repository/order"
	repositoryproduct "github.com/Additional-Code/storefront/internal/repository/product"
	repositoryshop "github.com/Additional-Code/storefront/internal/repository/shop"
	grpcserver "github.com/Additional-Code/storefront/internal/server/grpc"
	httpserver "github.com/Additional-Code/storefront/internal/server/http"
	serviceorder "github.com/Additional-Code/storefront/internal/service/order"
	transporthttp "github.com/Additional-Code/storefront/internal/transport/http"
	"github.com/Additional-Code/storefront/internal/worker"
	workerorder "github.com/Additional-Code/storefront/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	query.Module,
	migration.Module,
	repositoryorder.Module,
	repositoryproduct.Module,
	repositoryshop.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP transport and the gRPC health endpoint on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
