package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Additional-Code/orderhub/internal/config"
	"github.com/Additional-Code/orderhub/internal/messaging"
)

// HandlerRegistration binds message topics to handlers.
type HandlerRegistration struct {
	Topic   string
	Handler messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine fans inbound messages out to topic handlers.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	cfg      config.Config
	handlers map[string]messaging.Handler
	timeout  time.Duration
	outcomes metric.Int64Counter

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewEngine constructs the worker Engine. Registrations with an empty topic or
// nil handler are ignored; a later registration for a topic replaces an earlier one.
func NewEngine(p Params) *Engine {
	handlers := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Topic == "" || r.Handler == nil {
			continue
		}
		handlers[r.Topic] = r.Handler
	}

	outcomes, _ := otel.Meter("github.com/Additional-Code/orderhub/worker").Int64Counter(
		"orders.worker.messages",
		metric.WithDescription("Inbound messages by topic and outcome"),
	)

	return &Engine{
		client:   p.Client,
		logger:   p.Logger,
		cfg:      p.Config,
		handlers: handlers,
		timeout:  p.Config.Orders.OperationTimeout,
		outcomes: outcomes,
	}
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

func (e *Engine) start(context.Context) error {
	switch {
	case !e.cfg.Messaging.Enabled || !e.cfg.Messaging.Workers.Enabled:
		e.logger.Info("worker engine disabled")
		return nil
	case len(e.handlers) == 0:
		e.logger.Info("worker engine has no handlers; skipping")
		return nil
	}

	for _, topic := range e.client.Topics() {
		if _, ok := e.handlers[topic]; !ok {
			e.logger.Warn("consuming topic without a handler", zap.String("topic", topic))
		}
	}

	concurrency := max(e.cfg.Messaging.Workers.Concurrency, 1)

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.group = &errgroup.Group{}
	for i := 0; i < concurrency; i++ {
		workerID := i
		e.group.Go(func() error {
			e.consumeLoop(runCtx, workerID)
			return nil
		})
	}

	e.logger.Info("worker engine started", zap.Int("workers", concurrency))
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		e.logger.Info("worker engine stopped")
		return err
	}
}

func (e *Engine) consumeLoop(ctx context.Context, workerID int) {
	const maxBackoff = 30 * time.Second
	backoff := time.Second
	log := e.logger.With(zap.Int("worker", workerID))

	for ctx.Err() == nil {
		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			log.Debug("processing message", zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset))
			return e.Dispatch(msgCtx, msg)
		})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		log.Error("consume loop error", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Dispatch routes msg to the handler registered for its topic. Messages on
// unknown topics are acknowledged. A panicking handler is reported as an error so
// the message is not committed.
func (e *Engine) Dispatch(ctx context.Context, msg messaging.Message) (err error) {
	handler, ok := e.handlers[msg.Topic]
	if !ok {
		e.logger.Warn("no handler for topic", zap.String("topic", msg.Topic))
		e.record(ctx, msg.Topic, "unrouted")
		return nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("message handler panicked",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler for %s panicked: %v", msg.Topic, r)
		}
		if err != nil {
			e.record(ctx, msg.Topic, "failed")
		} else {
			e.record(ctx, msg.Topic, "handled")
		}
	}()
	return handler(ctx, msg)
}

func (e *Engine) record(ctx context.Context, topic, outcome string) {
	if e.outcomes == nil {
		return
	}
	e.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", outcome),
	))
}
