package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.IncrementOffersCreated()
	m.IncrementOffersCreated()
	m.IncrementRevocation("revoked")
	m.IncrementRevocation("already_revoked")
	m.IncrementRevocation("revoked")
	m.AddJanitorSwept("offer", 3)
	m.IncrementRateLimited("token")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OffersCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Revocations.WithLabelValues("revoked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Revocations.WithLabelValues("already_revoked")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.JanitorSwept.WithLabelValues("offer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("token")))
}

func TestCircuitGauge(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.SetLedgerCircuitOpen(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerCircuitOpen))
	m.SetLedgerCircuitOpen(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LedgerCircuitOpen))
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegisterer(prometheus.NewRegistry())
		NewWithRegisterer(prometheus.NewRegistry())
	})
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.ObserveLedgerCall("isRevoked", 20*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.LedgerLatency))
}
