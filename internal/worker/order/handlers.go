package order

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/internal/entity"
	"github.com/Additional-Code/orderhub/internal/messaging"
	ordersvc "github.com/Additional-Code/orderhub/internal/service/order"
	"github.com/Additional-Code/orderhub/internal/worker"
	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

// Inbound topics, before the configured prefix.
const (
	TopicPaymentCompleted  = "payment.completed"
	TopicShipmentConfirmed = "shipment.confirmed"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/orderhub/worker/order")

// Lifecycle is the part of the order service driven by inbound events.
type Lifecycle interface {
	ProcessPayment(ctx context.Context, tenantID, id, paymentID string) (*entity.Order, error)
	ConfirmShipment(ctx context.Context, tenantID, id, trackingNumber string) (*entity.Order, error)
}

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		func(svc *ordersvc.Service) Lifecycle { return svc },
		fx.Annotate(
			NewPaymentCompletedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			NewShipmentConfirmedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// PaymentCompleted is published by the payment service once a charge is captured.
type PaymentCompleted struct {
	TenantID  string `json:"tenant_id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

// ShipmentConfirmed is published by the fulfilment service when a parcel leaves.
type ShipmentConfirmed struct {
	TenantID       string `json:"tenant_id"`
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number"`
}

// NewPaymentCompletedHandler applies captured payments to orders.
func NewPaymentCompletedHandler(svc Lifecycle, logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.payment_completed", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		var event PaymentCompleted
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("dropping undecodable payment event", zap.Int64("offset", msg.Offset), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		if event.TenantID == "" {
			event.TenantID = string(msg.Key)
		}
		span.SetAttributes(attribute.String("tenant.id", event.TenantID), attribute.String("order.id", event.OrderID))

		_, err := svc.ProcessPayment(ctx, event.TenantID, event.OrderID, event.PaymentID)
		return settle(span, logger.With(
			zap.String("topic", msg.Topic),
			zap.String("tenant_id", event.TenantID),
			zap.String("order_id", event.OrderID),
			zap.String("payment_id", event.PaymentID),
		), "payment applied", err)
	}

	return worker.HandlerRegistration{Topic: TopicPaymentCompleted, Handler: handler}
}

// NewShipmentConfirmedHandler marks orders shipped.
func NewShipmentConfirmedHandler(svc Lifecycle, logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.shipment_confirmed", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		var event ShipmentConfirmed
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("dropping undecodable shipment event", zap.Int64("offset", msg.Offset), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		if event.TenantID == "" {
			event.TenantID = string(msg.Key)
		}
		span.SetAttributes(attribute.String("tenant.id", event.TenantID), attribute.String("order.id", event.OrderID))

		_, err := svc.ConfirmShipment(ctx, event.TenantID, event.OrderID, strings.TrimSpace(event.TrackingNumber))
		return settle(span, logger.With(
			zap.String("topic", msg.Topic),
			zap.String("tenant_id", event.TenantID),
			zap.String("order_id", event.OrderID),
			zap.String("tracking_number", event.TrackingNumber),
		), "shipment applied", err)
	}

	return worker.HandlerRegistration{Topic: TopicShipmentConfirmed, Handler: handler}
}

// settle decides whether a message is acknowledged. Outcomes that a redelivery
// cannot change are logged and acknowledged; anything else is returned so the
// message stays uncommitted.
func settle(span trace.Span, logger *zap.Logger, done string, err error) error {
	switch {
	case err == nil:
		logger.Info(done)
		return nil
	case errorbank.IsKind(err, errorbank.KindNotFound),
		errorbank.IsKind(err, errorbank.KindInvalidState),
		errorbank.IsKind(err, errorbank.KindValidation):
		logger.Warn("event rejected; acknowledging", zap.Error(err))
		return nil
	default:
		logger.Error("event processing failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "processing failed")
		return err
	}
}
