package order

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderhub/internal/dto"
	"github.com/Additional-Code/orderhub/internal/entity"
	"github.com/Additional-Code/orderhub/internal/presentation/http/response"
	service "github.com/Additional-Code/orderhub/internal/service/order"
	"github.com/Additional-Code/orderhub/internal/tenant"
	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

// HeaderUserID carries the caller's user id when the create body omits it.
const HeaderUserID = "X-User-ID"

var httpTracer = otel.Tracer("github.com/Additional-Code/orderhub/transport/http/order")

// dateLayouts are accepted for startDate/endDate. Values without an offset are UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the order routes under /orders and /market/:tenant/orders,
// both behind the tenant middleware.
func Register(e *echo.Echo, h *Handler, resolver *tenant.Resolver) {
	h.mount(e.Group("/orders", resolver.Middleware()))
	h.mount(e.Group("/market/:tenant/orders", resolver.Middleware()))
}

func (h *Handler) mount(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.listAll)
	g.GET("/date-range", h.listByDateRange)
	g.GET("/number/:orderNumber", h.getByNumber)
	g.GET("/user/:userId", h.listByUser)
	g.GET("/status/:status", h.listByStatus)
	g.GET("/count/status/:status", h.countByStatus)
	g.GET("/:id", h.getByID)
	g.PUT("/:id/status", h.updateStatus)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/payment", h.processPayment)
	g.POST("/:id/shipment", h.confirmShipment)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)
	tenantID, err := tenantFrom(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.Validation("invalid payload", errorbank.WithCause(err))).Build()
	}
	if strings.TrimSpace(payload.UserID) == "" {
		payload.UserID = c.Request().Header.Get(HeaderUserID)
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int("order.items", len(payload.Items)),
	))
	defer span.End()

	order, err := h.svc.Create(ctx, tenantID, toCommand(payload))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	tenantID, err := tenantFrom(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", id),
	))
	defer span.End()

	order, err := h.svc.GetByID(ctx, tenantID, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) getByNumber(c echo.Context) error {
	b := response.New(c)
	tenantID, err := tenantFrom(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByNumber")
	defer span.End()

	order, err := h.svc.GetByNumber(ctx, tenantID, c.Param("orderNumber"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) listAll(c echo.Context) error {
	return h.list(c, "orders.listAll", func(ctx context.Context, tenantID string) ([]entity.Order, error) {
		return h.svc.ListAll(ctx, tenantID)
	})
}

func (h *Handler) listByUser(c echo.Context) error {
	userID := c.Param("userId")
	return h.list(c, "orders.listByUser", func(ctx context.Context, tenantID string) ([]entity.Order, error) {
		return h.svc.ListByUser(ctx, tenantID, userID)
	})
}

func (h *Handler) listByStatus(c echo.Context) error {
	status, err := parseStatus(c.Param("status"))
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return h.list(c, "orders.listByStatus", func(ctx context.Context, tenantID string) ([]entity.Order, error) {
		return h.svc.ListByStatus(ctx, tenantID, status)
	})
}

func (h *Handler) listByDateRange(c echo.Context) error {
	start, err := parseDate("startDate", c.QueryParam("startDate"))
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	end, err := parseDate("endDate", c.QueryParam("endDate"))
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return h.list(c, "orders.listByDateRange", func(ctx context.Context, tenantID string) ([]entity.Order, error) {
		return h.svc.ListByDateRange(ctx, tenantID, start, end)
	})
}

func (h *Handler) list(c echo.Context, op string, fetch func(context.Context, string) ([]entity.Order, error)) error {
	b := response.New(c)
	tenantID, err := tenantFrom(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), op, trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	orders, err := fetch(ctx, tenantID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrders(orders)).WithMeta("count", len(orders)).Build()
}

func (h *Handler) countByStatus(c echo.Context) error {
	b := response.New(c)
	tenantID, err := tenantFrom(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	status, err := parseStatus(c.Param("status"))
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.countByStatus")
	defer span.End()

	n, err := h.svc.CountByStatus(ctx, tenantID, status)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(n).WithMeta("status", string(status)).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)
	tenantID, err := tenantFrom(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.UpdateStatusRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.Validation("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}
	status, err := parseStatus(payload.Status)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateStatus", trace.WithAttributes(
		attribute.String("order.id", c.Param("id")),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	order, err := h.svc.UpdateStatus(ctx, tenantID, c.Param("id"), status, payload.Reason)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)
	tenantID, err := tenantFrom(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(
		attribute.String("order.id", c.Param("id")),
	))
	defer span.End()

	order, err := h.svc.Cancel(ctx, tenantID, c.Param("id"), c.QueryParam("reason"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) processPayment(c echo.Context) error {
	b := response.New(c)
	tenantID, err := tenantFrom(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.ProcessPaymentRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.Validation("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.processPayment", trace.WithAttributes(
		attribute.String("order.id", c.Param("id")),
	))
	defer span.End()

	order, err := h.svc.ProcessPayment(ctx, tenantID, c.Param("id"), payload.PaymentID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) confirmShipment(c echo.Context) error {
	b := response.New(c)
	tenantID, err := tenantFrom(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.ConfirmShipmentRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.Validation("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.confirmShipment", trace.WithAttributes(
		attribute.String("order.id", c.Param("id")),
	))
	defer span.End()

	order, err := h.svc.ConfirmShipment(ctx, tenantID, c.Param("id"), payload.TrackingNumber)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func tenantFrom(c echo.Context) (string, error) {
	info, ok := tenant.FromContext(c.Request().Context())
	if !ok || info.ID == "" {
		return "", errorbank.Validation("tenant could not be resolved")
	}
	return info.ID, nil
}

func parseStatus(raw string) (entity.OrderStatus, error) {
	status, ok := entity.ParseOrderStatus(raw)
	if !ok {
		return "", errorbank.Validation("unknown order status", errorbank.WithDetail("status", raw))
	}
	return status, nil
}

func parseDate(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errorbank.Validation(name + " is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errorbank.Validation(name+" is not a valid date",
		errorbank.WithDetail(name, raw),
		errorbank.WithDetail("formats", []string{"RFC3339", "2006-01-02T15:04:05"}),
	)
}

func toCommand(p dto.CreateOrderRequest) service.CreateCommand {
	items := make([]service.CreateItem, len(p.Items))
	for i, it := range p.Items {
		items[i] = service.CreateItem{
			ProductID:   it.ProductID,
			VendorID:    it.VendorID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			VariantName: it.VariantName,
			ImageURL:    it.ImageURL,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Discount:    it.Discount,
			Tax:         it.Tax,
		}
	}
	return service.CreateCommand{
		UserID:          p.UserID,
		Items:           items,
		ShippingAddress: p.ShippingAddress,
		BillingAddress:  p.BillingAddress,
		PaymentMethod:   p.PaymentMethod,
		Notes:           p.Notes,
		Currency:        p.Currency,
		ShippingCost:    p.ShippingCost,
		Tax:             p.Tax,
		Discount:        p.Discount,
	}
}
