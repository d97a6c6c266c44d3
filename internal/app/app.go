package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/orderhub/internal/cache"
	"github.com/Additional-Code/orderhub/internal/config"
	"github.com/Additional-Code/orderhub/internal/database"
	"github.com/Additional-Code/orderhub/internal/event"
	"github.com/Additional-Code/orderhub/internal/logger"
	"github.com/Additional-Code/orderhub/internal/messaging"
	"github.com/Additional-Code/orderhub/internal/observability"
	repositoryorder "github.com/Additional-Code/orderhub/internal/repository/order"
	grpcserver "github.com/Additional-Code/orderhub/internal/server/grpc"
	httpserver "github.com/Additional-Code/orderhub/internal/server/http"
	serviceorder "github.com/Additional-Code/orderhub/internal/service/order"
	"github.com/Additional-Code/orderhub/internal/tenant"
	transporthttp "github.com/Additional-Code/orderhub/internal/transport/http"
	"github.com/Additional-Code/orderhub/internal/worker"
	workerorder "github.com/Additional-Code/orderhub/internal/worker/order"
)

// Core provides the foundational modules shared across executables: storage,
// messaging, the event publisher and the order lifecycle engine.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	event.Module,
	repositoryorder.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP API and the gRPC health endpoint on top of the core modules.
var HTTP = fx.Options(
	Core,
	tenant.Module,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker consumes payment and shipment events.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
