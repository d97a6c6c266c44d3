package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/internal/config"
	"github.com/Additional-Code/orderhub/internal/database"
	applog "github.com/Additional-Code/orderhub/internal/logger"
	"github.com/Additional-Code/orderhub/internal/observability"
	"github.com/Additional-Code/orderhub/internal/presentation/http/response"
	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// Params defines dependencies for the Echo router.
type Params struct {
	fx.In

	Config        config.Config
	Observability *observability.Manager
	Database      *database.Connections
	Logger        *zap.Logger
}

// NewEcho configures the Echo router with tracing, metrics, validation and the
// health endpoint.
func NewEcho(p Params) *echo.Echo {
	var reg prometheus.Registerer
	if p.Observability != nil && p.Observability.MetricsEnabled() {
		reg = p.Observability.Registerer()
	}
	e := New(p.Logger, reg)

	if p.Observability != nil && p.Observability.TracingEnabled() {
		e.Use(otelecho.Middleware(p.Config.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		if p.Database != nil {
			if err := p.Database.Ping(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if p.Observability != nil && p.Observability.MetricsEnabled() && p.Observability.MetricsHandler() != nil {
		e.GET(p.Config.Observability.PrometheusPath, echo.WrapHandler(p.Observability.MetricsHandler()))
	}

	return e
}

// New builds a bare router with the request validator, the envelope error
// handler and, when reg is non-nil, HTTP metrics.
func New(logger *zap.Logger, reg prometheus.Registerer) *echo.Echo {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = errorHandler(logger)

	if reg != nil {
		e.Use(newHTTPMetrics(reg).middleware())
	}
	return e
}

// errorHandler renders unhandled errors, including echo's own routing errors,
// with the standard envelope.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			err = fromHTTPError(he)
		}
		appErr := errorbank.From(err)
		if appErr.StatusCode() >= http.StatusInternalServerError {
			applog.WithTrace(c.Request().Context(), logger).Error("http request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		if buildErr := response.New(c).WithError(appErr).Build(); buildErr != nil {
			logger.Warn("failed to write error response", zap.Error(buildErr))
		}
	}
}

func fromHTTPError(he *echo.HTTPError) error {
	msg := fmt.Sprint(he.Message)
	switch he.Code {
	case http.StatusNotFound:
		return errorbank.NotFound("route not found")
	case http.StatusMethodNotAllowed:
		return errorbank.New(errorbank.KindMethodNotAllowed, "method not allowed")
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return errorbank.Validation(msg, errorbank.WithCause(he))
	default:
		return errorbank.Internal(msg, errorbank.WithCause(he))
	}
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:    addr,
		Handler: e,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
