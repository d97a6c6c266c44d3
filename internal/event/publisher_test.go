package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/orderhub/internal/entity"
	"github.com/Additional-Code/orderhub/internal/messaging"
)

type sent struct {
	topic   string
	key     string
	headers map[string]string
	value   map[string]any
}

type fakeClient struct {
	mu    sync.Mutex
	sent  []sent
	err   error
	block chan struct{}
}

func (f *fakeClient) Publish(ctx context.Context, msg messaging.Message) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{topic: msg.Topic, key: string(msg.Key), headers: msg.Headers, value: decoded})
	return nil
}

func (f *fakeClient) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeClient) Topics() []string { return nil }

func (f *fakeClient) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sent, len(f.sent))
	copy(out, f.sent)
	return out
}

func sampleOrder() *entity.Order {
	return &entity.Order{
		ID:            "o-1",
		TenantID:      "acme",
		UserID:        "u-1",
		OrderNumber:   "ORD-1-ABCDEFGH",
		Status:        entity.OrderStatusPending,
		PaymentStatus: entity.PaymentStatusPending,
		Total:         decimal.RequireFromString("28"),
		Currency:      "RUB",
	}
}

func TestPublishCreatedPayload(t *testing.T) {
	client := &fakeClient{}
	p := New(client, zap.NewNop(), time.Second, nil)
	p.now = func() time.Time { return time.UnixMilli(1700000000123) }

	p.Publish(context.Background(), KindCreated, sampleOrder(), nil)
	require.NoError(t, p.Drain(context.Background()))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "order.created", msgs[0].topic)
	assert.Equal(t, "acme", msgs[0].key)
	assert.Equal(t, map[string]string{
		messaging.HeaderEventType: "order.created",
		messaging.HeaderTenantID:  "acme",
	}, msgs[0].headers)
	assert.Equal(t, map[string]any{
		"event_type":     "order.created",
		"tenant_id":      "acme",
		"order_id":       "o-1",
		"order_number":   "ORD-1-ABCDEFGH",
		"status":         "PENDING",
		"payment_status": "PENDING",
		"timestamp":      float64(1700000000123),
		"customer_id":    "u-1",
		"total_amount":   "28.00",
		"currency":       "RUB",
	}, msgs[0].value)
}

func TestPublishExtraDoesNotOverrideBaseFields(t *testing.T) {
	client := &fakeClient{}
	p := New(client, zap.NewNop(), time.Second, nil)

	p.Publish(context.Background(), KindStatusChanged, sampleOrder(), map[string]any{
		"old_status": "PENDING",
		"new_status": "CONFIRMED",
		"tenant_id":  "evil",
	})
	require.NoError(t, p.Drain(context.Background()))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "acme", msgs[0].value["tenant_id"])
	assert.Equal(t, "PENDING", msgs[0].value["old_status"])
	assert.Equal(t, "CONFIRMED", msgs[0].value["new_status"])
	assert.NotContains(t, msgs[0].value, "customer_id")
}

func TestPublishFailureIsReportedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	client := &fakeClient{err: errors.New("broker down")}

	var mu sync.Mutex
	var results []Result
	hook := func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}

	p := New(client, zap.New(core), time.Second, hook)
	p.Publish(context.Background(), KindCancelled, sampleOrder(), map[string]any{"reason": "changed mind"})
	require.NoError(t, p.Drain(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	var pubErr *PublishError
	require.ErrorAs(t, results[0].Err, &pubErr)
	assert.Equal(t, KindCancelled, pubErr.Kind)
	assert.Equal(t, "o-1", results[0].OrderID)
	assert.Equal(t, 1, logs.FilterMessage("order event publish failed").Len())
}

func TestPublishDoesNotBlockCaller(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	p := New(client, zap.NewNop(), time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	p.Publish(ctx, KindShipped, sampleOrder(), map[string]any{"tracking_number": "TRK-1"})
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	cancel()
	close(client.block)
	require.NoError(t, p.Drain(context.Background()))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "TRK-1", msgs[0].value["tracking_number"])
}

func TestPublishTimeout(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	results := make(chan Result, 1)
	p := New(client, zap.NewNop(), 20*time.Millisecond, func(r Result) { results <- r })

	p.Publish(context.Background(), KindCreated, sampleOrder(), nil)

	select {
	case r := <-results:
		assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not time out")
	}
	require.NoError(t, p.Drain(context.Background()))
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), KindCreated, sampleOrder(), nil)
	})
}
