package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/token", cfg.Issuer.TokenPath)
	assert.Equal(t, 4, cfg.Issuer.PinLength)
	assert.True(t, cfg.Issuer.UserPinRequired)
	assert.Equal(t, 200*time.Second, cfg.TTL.Offer)
	assert.Equal(t, 300*time.Second, cfg.TTL.CNonce)
	assert.Equal(t, 60*time.Second, cfg.Ledger.Timeout)
	assert.False(t, cfg.LedgerEnabled())
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "pass.es.uva.titulacion", cfg.Pass.TypeIdentifier)
	assert.False(t, cfg.RateLimit.Disabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.RateLimit.Token)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ISSUER_BASE_URL", "https://issuer.uva.es/")
	t.Setenv("PIN_LENGTH", "6")
	t.Setenv("USER_PIN_REQUIRED", "false")
	t.Setenv("LEDGER_TIMEOUT", "15")
	t.Setenv("OFFER_TTL", "2m")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("LEDGER_RPC_URL", "http://127.0.0.1:8545")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://issuer.uva.es", cfg.Issuer.BaseURL)
	assert.Equal(t, 6, cfg.Issuer.PinLength)
	assert.False(t, cfg.Issuer.UserPinRequired)
	assert.Equal(t, 15*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.TTL.Offer)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.LedgerEnabled())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("PIN_LENGTH", "four")
	t.Setenv("TOKEN_PATH", "token")
	t.Setenv("LEDGER_TIMEOUT", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PIN_LENGTH")
	assert.Contains(t, err.Error(), "TOKEN_PATH")
	assert.Contains(t, err.Error(), "LEDGER_TIMEOUT")
}

func TestFromEnvRejectsNonPositiveDurations(t *testing.T) {
	t.Setenv("JANITOR_INTERVAL", "0")
	t.Setenv("OFFER_TTL", "-5s")
	t.Setenv("TOKEN_TTL", "0s")
	t.Setenv("CNONCE_TTL", "0")
	t.Setenv("LEDGER_TIMEOUT", "-1")

	_, err := FromEnv()
	require.Error(t, err)
	for _, key := range []string{"JANITOR_INTERVAL", "OFFER_TTL", "TOKEN_TTL", "CNONCE_TTL", "LEDGER_TIMEOUT"} {
		assert.Contains(t, err.Error(), key+" must be positive")
	}
}

func TestWriteTimeoutOutlastsRecordTimeout(t *testing.T) {
	var cfg Server

	cfg.Ledger.Timeout = 60 * time.Second
	assert.Equal(t, 90*time.Second, cfg.RecordTimeout())
	assert.Equal(t, 105*time.Second, cfg.WriteTimeout())

	cfg.Ledger.Timeout = 5 * time.Minute
	assert.Greater(t, cfg.WriteTimeout(), cfg.RecordTimeout())

	cfg.Ledger.Timeout = time.Second
	assert.Equal(t, 90*time.Second, cfg.WriteTimeout())
}
