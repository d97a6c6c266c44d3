// Package event publishes order domain events to the message bus.
//
// Publishing is fire-and-forget: the payload is captured synchronously, then sent
// from a background goroutine bounded by its own timeout. Failures never reach the
// caller; they are logged, counted and handed to an optional ResultHook.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/internal/config"
	"github.com/Additional-Code/orderhub/internal/entity"
	"github.com/Additional-Code/orderhub/internal/messaging"
)

// Kind identifies an order event. It doubles as the topic name.
type Kind string

const (
	KindCreated       Kind = "order.created"
	KindStatusChanged Kind = "order.status.changed"
	KindCancelled     Kind = "order.cancelled"
	KindShipped       Kind = "order.shipped"
)

// Result describes the outcome of one publish attempt.
type Result struct {
	Kind     Kind
	TenantID string
	OrderID  string
	Err      error
}

// ResultHook observes publish outcomes. It runs on the publishing goroutine.
type ResultHook func(Result)

// PublishError wraps a failed delivery.
type PublishError struct {
	Kind    Kind
	OrderID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s for order %s: %v", e.Kind, e.OrderID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher sends order events without blocking callers.
type Publisher struct {
	client  messaging.Client
	logger  *zap.Logger
	timeout time.Duration
	hook    ResultHook
	now     func() time.Time

	wg       sync.WaitGroup
	failures metric.Int64Counter
}

// Params defines dependencies for constructing Publisher.
type Params struct {
	fx.In

	Client messaging.Client
	Config config.Config
	Logger *zap.Logger
	Hook   ResultHook `optional:"true"`
}

// Module provides the publisher and drains it on shutdown.
var Module = fx.Module("event",
	fx.Provide(NewPublisher),
	fx.Invoke(func(lc fx.Lifecycle, p *Publisher) {
		lc.Append(fx.Hook{OnStop: p.Drain})
	}),
)

// NewPublisher wires a Publisher from Fx parameters.
func NewPublisher(p Params) *Publisher {
	return New(p.Client, p.Logger, p.Config.Orders.PublishTimeout, p.Hook)
}

// New constructs a Publisher. A nil hook is allowed.
func New(client messaging.Client, logger *zap.Logger, timeout time.Duration, hook ResultHook) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	failures, _ := otel.Meter("github.com/Additional-Code/orderhub/event").Int64Counter(
		"orders.events.publish_failures",
		metric.WithDescription("Order events that could not be delivered"),
	)
	return &Publisher{
		client:   client,
		logger:   logger,
		timeout:  timeout,
		hook:     hook,
		now:      time.Now,
		failures: failures,
	}
}

// Publish snapshots the order into an event payload and sends it asynchronously.
// extra fields are merged into the payload; they never replace the base fields.
func (p *Publisher) Publish(ctx context.Context, kind Kind, order *entity.Order, extra map[string]any) {
	if p == nil || p.client == nil || order == nil {
		return
	}
	payload := p.payload(kind, order, extra)
	tenantID, orderID := order.TenantID, order.ID

	value, err := json.Marshal(payload)
	if err != nil {
		p.report(ctx, Result{Kind: kind, TenantID: tenantID, OrderID: orderID,
			Err: &PublishError{Kind: kind, OrderID: orderID, Err: err}})
		return
	}

	sendCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(sendCtx, p.timeout)
		defer cancel()

		res := Result{Kind: kind, TenantID: tenantID, OrderID: orderID}
		msg := messaging.Message{
			Topic: string(kind),
			Key:   []byte(tenantID),
			Value: value,
			Headers: map[string]string{
				messaging.HeaderEventType: string(kind),
				messaging.HeaderTenantID:  tenantID,
			},
		}
		if err := p.client.Publish(ctx, msg); err != nil {
			res.Err = &PublishError{Kind: kind, OrderID: orderID, Err: err}
		}
		p.report(ctx, res)
	}()
}

// Drain waits for in-flight publishes or until ctx is done.
func (p *Publisher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) report(ctx context.Context, res Result) {
	if res.Err != nil {
		p.logger.Error("order event publish failed",
			zap.String("event_type", string(res.Kind)),
			zap.String("tenant_id", res.TenantID),
			zap.String("order_id", res.OrderID),
			zap.Error(res.Err),
		)
		if p.failures != nil {
			p.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(res.Kind))))
		}
	} else {
		p.logger.Debug("order event published",
			zap.String("event_type", string(res.Kind)),
			zap.String("order_id", res.OrderID),
		)
	}
	if p.hook != nil {
		p.hook(res)
	}
}

func (p *Publisher) payload(kind Kind, order *entity.Order, extra map[string]any) map[string]any {
	payload := map[string]any{
		"event_type":     string(kind),
		"tenant_id":      order.TenantID,
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"status":         string(order.Status),
		"payment_status": string(order.PaymentStatus),
		"timestamp":      p.now().UnixMilli(),
	}
	if kind == KindCreated {
		payload["customer_id"] = order.UserID
		payload["total_amount"] = order.Total.StringFixed(2)
		payload["currency"] = order.Currency
	}
	for k, v := range extra {
		if _, exists := payload[k]; exists {
			continue
		}
		payload[k] = v
	}
	return payload
}
