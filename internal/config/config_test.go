package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "cinetix")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "cinetix")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_x")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")
}

func TestNewDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Postgres.MaxConns)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, 10*time.Minute, cfg.Tickets.HoldWindow)
	assert.Equal(t, 500, cfg.Tickets.SweepBatch)
	assert.Equal(t, "none", cfg.Notify.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, 100, cfg.RateLimit.Global)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.GlobalWindow)
}

func TestNewOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TICKET_HOLD_WINDOW", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("NOTIFY_DRIVER", "KAFKA")
	t.Setenv("PAYMENT_CURRENCY", "EUR")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Tickets.HoldWindow)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, "kafka", cfg.Notify.Driver)
	assert.Equal(t, "eur", cfg.Stripe.Currency)
}

func TestNewRejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "http")
	_, err := New()
	require.ErrorContains(t, err, "SERVER_PORT")

	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("NOTIFY_DRIVER", "smtp")
	_, err = New()
	require.ErrorContains(t, err, "NOTIFY_DRIVER")
}

func TestNewRequiresSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")

	_, err := New()
	require.ErrorContains(t, err, "JWT_SECRET")
}
