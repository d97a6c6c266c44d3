package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "ORD", cfg.Orders.NumberPrefix)
	assert.Equal(t, 3, cfg.Orders.NumberAttempts)
	assert.Equal(t, "PAID", cfg.Orders.PaymentTargetStatus)
	assert.Equal(t, "RUB", cfg.Orders.DefaultCurrency)
	assert.Equal(t, "default", cfg.Tenant.DefaultID)
	assert.True(t, cfg.Tenant.AllowDefault)
	assert.Equal(t, "/market/", cfg.Tenant.MarketPrefix)
	assert.Equal(t, []string{"payment.completed", "shipment.confirmed"}, cfg.Messaging.Kafka.ConsumeTopics)
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
}

func TestNewOrdersOverrides(t *testing.T) {
	t.Setenv("ORDERS_NUMBER_PREFIX", " SHOP ")
	t.Setenv("ORDERS_PAYMENT_TARGET_STATUS", "confirmed")
	t.Setenv("ORDERS_DEFAULT_CURRENCY", "usd")
	t.Setenv("ORDERS_PUBLISH_TIMEOUT", "250ms")
	t.Setenv("TENANT_MARKET_PREFIX", "shops")
	t.Setenv("KAFKA_CONSUME_TOPICS", "payment.completed, ,shipment.confirmed")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "SHOP", cfg.Orders.NumberPrefix)
	assert.Equal(t, "CONFIRMED", cfg.Orders.PaymentTargetStatus)
	assert.Equal(t, "USD", cfg.Orders.DefaultCurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Orders.PublishTimeout)
	assert.Equal(t, "/shops/", cfg.Tenant.MarketPrefix)
	assert.Equal(t, []string{"payment.completed", "shipment.confirmed"}, cfg.Messaging.Kafka.ConsumeTopics)
}

func TestNewRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"payment target", "ORDERS_PAYMENT_TARGET_STATUS", "SHIPPED"},
		{"currency", "ORDERS_DEFAULT_CURRENCY", "EURO"},
		{"cache driver", "CACHE_DRIVER", "memcached"},
		{"messaging driver", "MESSAGING_DRIVER", "nats"},
		{"http port", "HTTP_PORT", "-1"},
		{"sample ratio", "OBS_TRACE_SAMPLE_RATIO", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := New()
			assert.Error(t, err)
		})
	}
}

func TestNewDisabledMessagingUsesNoop(t *testing.T) {
	t.Setenv("MESSAGING_ENABLED", "false")
	t.Setenv("CACHE_ENABLED", "false")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "noop", cfg.Messaging.Driver)
	assert.Equal(t, "noop", cfg.Cache.Driver)
}

func TestNewBlankOrMalformedValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("CACHE_DEFAULT_TTL", "soon")
	t.Setenv("CACHE_KEY_PREFIX", "   ")
	t.Setenv("CACHE_DRIVER", " memory ")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, "orderhub:", cfg.Cache.KeyPrefix)
	assert.Equal(t, "memory", cfg.Cache.Driver)
}
