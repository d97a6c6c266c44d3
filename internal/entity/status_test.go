package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPending, OrderStatusRefunded, false},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusPaid, OrderStatusRefunded, true},
		{OrderStatusProcessing, OrderStatusPending, false},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusRefunded, true},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusRefunded, OrderStatusPaid, false},
		{OrderStatusShipped, OrderStatusShipped, true},
		{OrderStatus("LOST"), OrderStatus("LOST"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTerminalAndCancellable(t *testing.T) {
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.True(t, OrderStatusRefunded.Terminal())
	assert.False(t, OrderStatusDelivered.Terminal())

	assert.True(t, OrderStatusPending.Cancellable())
	assert.True(t, OrderStatusShipped.Cancellable())
	assert.False(t, OrderStatusDelivered.Cancellable())
	assert.False(t, OrderStatusCancelled.Cancellable())
	assert.False(t, OrderStatusRefunded.Cancellable())
}

func TestParseOrderStatus(t *testing.T) {
	status, ok := ParseOrderStatus(" shipped ")
	require.True(t, ok)
	assert.Equal(t, OrderStatusShipped, status)

	_, ok = ParseOrderStatus("teleported")
	assert.False(t, ok)
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := OrderStatusPending.AllowedTransitions()
	next[0] = OrderStatusRefunded

	assert.Equal(t, OrderStatusConfirmed, OrderStatusPending.AllowedTransitions()[0])
}

func TestTouchIsMonotonic(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	order := &Order{UpdatedAt: base}

	order.Touch(base.Add(-time.Hour))
	assert.True(t, order.UpdatedAt.After(base))

	later := base.Add(time.Hour)
	order.Touch(later)
	assert.Equal(t, later, order.UpdatedAt)
}

func TestAddressRoundTrip(t *testing.T) {
	addr := &Address{
		FullName:     "Ivan Petrov",
		Phone:        "+7 900 000 00 00",
		AddressLine1: "Lenina 1",
		City:         "Kazan",
		PostalCode:   "420000",
		Country:      "RU",
		Extra:        map[string]any{"entrance": "2"},
	}

	raw, err := EncodeAddress(addr)
	require.NoError(t, err)

	decoded, err := DecodeAddress(raw)
	require.NoError(t, err)
	assert.Equal(t, addr, decoded)

	empty, err := EncodeAddress(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	none, err := DecodeAddress("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEncodeAddressRejectsUnsupportedValues(t *testing.T) {
	_, err := EncodeAddress(&Address{Extra: map[string]any{"callback": func() {}}})
	assert.Error(t, err)
}
