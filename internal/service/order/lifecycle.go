package order

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/internal/entity"
	"github.com/Additional-Code/orderhub/internal/event"
	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

// change is what a mutation wants persisted and announced.
type change struct {
	skip  bool
	kind  event.Kind
	extra map[string]any
}

// mutate loads the order under a row lock, applies fn and saves the result in one
// transaction. The event, if any, is published after commit.
func (s *Service) mutate(ctx context.Context, op, tenantID, id string, fn func(*entity.Order) (change, error)) (*entity.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := serviceTracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", id),
	))
	defer span.End()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var (
		result  *entity.Order
		outcome change
	)
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByIDForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		outcome, err = fn(order)
		if err != nil {
			return err
		}
		result = order
		if outcome.skip {
			return nil
		}
		order.Touch(s.clock())
		return s.repo.Save(ctx, order)
	})
	if err != nil {
		if !errorbank.IsKind(err, errorbank.KindInvalidState) && !errorbank.IsKind(err, errorbank.KindValidation) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "mutation failed")
		}
		return nil, s.mapRepoError(err, "failed to update order", errorbank.WithDetail("id", id))
	}
	if outcome.skip {
		return result, nil
	}

	s.invalidate(ctx, tenantID, id)
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("order.status", string(result.Status)),
	))
	if outcome.kind != "" {
		s.publish(ctx, outcome.kind, result, outcome.extra)
	}
	return result, nil
}

// UpdateStatus moves the order to status if the transition table allows it.
// Moving to the current status is a no-op and publishes nothing.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id string, status entity.OrderStatus, reason string) (*entity.Order, error) {
	if !status.Valid() {
		return nil, invalidStatus(status)
	}
	reason = strings.TrimSpace(reason)

	return s.mutate(ctx, "OrderService.UpdateStatus", tenantID, id, func(order *entity.Order) (change, error) {
		old := order.Status
		if old == status {
			return change{skip: true}, nil
		}
		if !old.CanTransitionTo(status) {
			return change{}, illegalTransition(old, status)
		}

		switch status {
		case entity.OrderStatusCancelled:
			order.MarkCancelled(s.clock(), reason)
		case entity.OrderStatusDelivered:
			order.Status = status
			order.FulfillmentStatus = entity.FulfillmentFulfilled
		case entity.OrderStatusRefunded:
			order.Status = status
			order.PaymentStatus = entity.PaymentStatusRefunded
		default:
			order.Status = status
		}

		s.logger.Info("order status changed",
			zap.String("tenant_id", tenantID),
			zap.String("order_id", id),
			zap.String("old_status", string(old)),
			zap.String("new_status", string(status)),
		)
		extra := map[string]any{
			"old_status": string(old),
			"new_status": string(status),
		}
		if reason != "" {
			extra["reason"] = reason
		}
		return change{kind: event.KindStatusChanged, extra: extra}, nil
	})
}

// Cancel cancels the order. Delivered, cancelled and refunded orders are rejected.
func (s *Service) Cancel(ctx context.Context, tenantID, id, reason string) (*entity.Order, error) {
	reason = strings.TrimSpace(reason)

	return s.mutate(ctx, "OrderService.Cancel", tenantID, id, func(order *entity.Order) (change, error) {
		if !order.Status.Cancellable() {
			return change{}, errorbank.InvalidState("order cannot be cancelled",
				errorbank.WithDetail("status", string(order.Status)))
		}
		order.MarkCancelled(s.clock(), reason)

		s.logger.Info("order cancelled",
			zap.String("tenant_id", tenantID),
			zap.String("order_id", id),
			zap.String("reason", reason),
		)
		return change{kind: event.KindCancelled, extra: map[string]any{"reason": reason}}, nil
	})
}

// ProcessPayment records a captured payment. The order advances to the configured
// post-payment status when the transition table allows it; an order that already
// moved past that point keeps its status.
func (s *Service) ProcessPayment(ctx context.Context, tenantID, id, paymentID string) (*entity.Order, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errorbank.Validation("payment id is required")
	}
	target := s.opts.PaymentTarget

	return s.mutate(ctx, "OrderService.ProcessPayment", tenantID, id, func(order *entity.Order) (change, error) {
		if order.PaymentStatus == entity.PaymentStatusPaid || order.PaymentStatus == entity.PaymentStatusRefunded {
			return change{}, errorbank.InvalidState("order is already paid",
				errorbank.WithDetail("paymentStatus", string(order.PaymentStatus)))
		}
		if order.Status.Terminal() {
			return change{}, errorbank.InvalidState("order cannot accept payment",
				errorbank.WithDetail("status", string(order.Status)))
		}

		old := order.Status
		order.PaymentStatus = entity.PaymentStatusPaid
		order.PaymentID = paymentID
		if old != target && old.CanTransitionTo(target) {
			order.Status = target
		}

		s.logger.Info("order payment processed",
			zap.String("tenant_id", tenantID),
			zap.String("order_id", id),
			zap.String("payment_id", paymentID),
		)
		if order.Status == old {
			return change{}, nil
		}
		return change{kind: event.KindStatusChanged, extra: map[string]any{
			"old_status": string(old),
			"new_status": string(order.Status),
			"payment_id": paymentID,
		}}, nil
	})
}

// ConfirmShipment marks the order shipped and records the tracking number.
func (s *Service) ConfirmShipment(ctx context.Context, tenantID, id, trackingNumber string) (*entity.Order, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, errorbank.Validation("tracking number is required")
	}

	return s.mutate(ctx, "OrderService.ConfirmShipment", tenantID, id, func(order *entity.Order) (change, error) {
		if order.Status == entity.OrderStatusShipped {
			return change{}, errorbank.InvalidState("order is already shipped",
				errorbank.WithDetail("trackingNumber", order.TrackingNumber))
		}
		if !order.Status.CanTransitionTo(entity.OrderStatusShipped) {
			return change{}, illegalTransition(order.Status, entity.OrderStatusShipped)
		}
		order.Status = entity.OrderStatusShipped
		order.TrackingNumber = trackingNumber

		s.logger.Info("order shipped",
			zap.String("tenant_id", tenantID),
			zap.String("order_id", id),
			zap.String("tracking_number", trackingNumber),
		)
		return change{kind: event.KindShipped, extra: map[string]any{"tracking_number": trackingNumber}}, nil
	})
}

func illegalTransition(from, to entity.OrderStatus) error {
	allowed := from.AllowedTransitions()
	names := make([]string, len(allowed))
	for i, st := range allowed {
		names[i] = string(st)
	}
	return errorbank.InvalidState("status transition not allowed",
		errorbank.WithDetail("from", string(from)),
		errorbank.WithDetail("to", string(to)),
		errorbank.WithDetail("allowed", names),
	)
}
