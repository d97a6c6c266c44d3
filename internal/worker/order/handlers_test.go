package order

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/orderhub/internal/entity"
	"github.com/Additional-Code/orderhub/internal/messaging"
	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

type call struct {
	tenantID, id, ref string
}

type fakeLifecycle struct {
	payments  []call
	shipments []call
	err       error
}

func (f *fakeLifecycle) ProcessPayment(_ context.Context, tenantID, id, paymentID string) (*entity.Order, error) {
	f.payments = append(f.payments, call{tenantID, id, paymentID})
	if f.err != nil {
		return nil, f.err
	}
	return &entity.Order{ID: id, TenantID: tenantID}, nil
}

func (f *fakeLifecycle) ConfirmShipment(_ context.Context, tenantID, id, trackingNumber string) (*entity.Order, error) {
	f.shipments = append(f.shipments, call{tenantID, id, trackingNumber})
	if f.err != nil {
		return nil, f.err
	}
	return &entity.Order{ID: id, TenantID: tenantID}, nil
}

func TestPaymentCompletedHandler(t *testing.T) {
	svc := &fakeLifecycle{}
	reg := NewPaymentCompletedHandler(svc, zap.NewNop())
	assert.Equal(t, TopicPaymentCompleted, reg.Topic)

	err := reg.Handler(context.Background(), messaging.Message{
		Topic: TopicPaymentCompleted,
		Value: []byte(`{"tenant_id":"acme","order_id":"o-1","payment_id":"pay-1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []call{{"acme", "o-1", "pay-1"}}, svc.payments)
}

func TestPaymentCompletedFallsBackToKeyForTenant(t *testing.T) {
	svc := &fakeLifecycle{}
	reg := NewPaymentCompletedHandler(svc, zap.NewNop())

	err := reg.Handler(context.Background(), messaging.Message{
		Topic: TopicPaymentCompleted,
		Key:   []byte("globex"),
		Value: []byte(`{"order_id":"o-2","payment_id":"pay-2"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []call{{"globex", "o-2", "pay-2"}}, svc.payments)
}

func TestShipmentConfirmedHandler(t *testing.T) {
	svc := &fakeLifecycle{}
	reg := NewShipmentConfirmedHandler(svc, zap.NewNop())
	assert.Equal(t, TopicShipmentConfirmed, reg.Topic)

	err := reg.Handler(context.Background(), messaging.Message{
		Topic: TopicShipmentConfirmed,
		Value: []byte(`{"tenant_id":"acme","order_id":"o-1","tracking_number":" TRK-1 "}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []call{{"acme", "o-1", "TRK-1"}}, svc.shipments)
}

func TestHandlersAcknowledgeFinalOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"not found", errorbank.NotFound("order not found"), false},
		{"invalid state", errorbank.InvalidState("order is already paid"), false},
		{"validation", errorbank.Validation("payment id is required"), false},
		{"internal", errorbank.Internal("failed to update order"), true},
		{"plain error", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			svc := &fakeLifecycle{err: tt.err}
			reg := NewPaymentCompletedHandler(svc, zap.New(core))

			err := reg.Handler(context.Background(), messaging.Message{
				Topic: TopicPaymentCompleted,
				Value: []byte(`{"tenant_id":"acme","order_id":"o-1","payment_id":"pay-1"}`),
			})
			if tt.wantErr {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, 1, logs.FilterMessage("event processing failed").Len())
			} else {
				assert.NoError(t, err)
				assert.Equal(t, 1, logs.FilterMessage("event rejected; acknowledging").Len())
			}
		})
	}
}

func TestUndecodableMessageIsDropped(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := &fakeLifecycle{}
	reg := NewShipmentConfirmedHandler(svc, zap.New(core))

	err := reg.Handler(context.Background(), messaging.Message{Topic: TopicShipmentConfirmed, Value: []byte(`{not json`)})
	assert.NoError(t, err)
	assert.Empty(t, svc.shipments)
	assert.Equal(t, 1, logs.FilterMessage("dropping undecodable shipment event").Len())
}
