package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the issuer.
type Metrics struct {
	RequestLatency     *prometheus.HistogramVec
	OffersCreated      prometheus.Counter
	TokensIssued       prometheus.Counter
	TokenFailures      *prometheus.CounterVec
	CredentialsIssued  prometheus.Counter
	CredentialFailures *prometheus.CounterVec
	Revocations        *prometheus.CounterVec
	LedgerLatency      *prometheus.HistogramVec
	LedgerCircuitOpen  prometheus.Gauge
	RevocationCache    *prometheus.CounterVec
	JanitorSwept       *prometheus.CounterVec
	AuditEvents        *prometheus.CounterVec
	RateLimited        *prometheus.CounterVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "titulaciones_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		OffersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "titulaciones_offers_created_total",
			Help: "Credential offers created",
		}),
		TokensIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "titulaciones_tokens_issued_total",
			Help: "Access tokens issued for redeemed pre-authorized codes",
		}),
		TokenFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "titulaciones_token_failures_total",
			Help: "Token exchanges rejected, by reason",
		}, []string{"reason"}),
		CredentialsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "titulaciones_credentials_issued_total",
			Help: "Verifiable credentials signed and returned",
		}),
		CredentialFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "titulaciones_credential_failures_total",
			Help: "Credential requests rejected, by reason",
		}, []string{"reason"}),
		Revocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "titulaciones_revocations_total",
			Help: "Revocation attempts by outcome",
		}, []string{"outcome"}),
		LedgerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "titulaciones_ledger_call_duration_seconds",
			Help:    "Latency of revocation registry calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
		LedgerCircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "titulaciones_ledger_circuit_open",
			Help: "1 when the registry circuit breaker is open",
		}),
		RevocationCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "titulaciones_revocation_cache_total",
			Help: "Revocation status cache lookups by result",
		}, []string{"result"}),
		JanitorSwept: f.NewCounterVec(prometheus.CounterOpts{
			Name: "titulaciones_janitor_swept_total",
			Help: "Expired entries removed by the janitor",
		}, []string{"kind"}),
		AuditEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "titulaciones_audit_events_total",
			Help: "Audit events emitted by result",
		}, []string{"result"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "titulaciones_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by endpoint class",
		}, []string{"class"}),
	}
}

func (m *Metrics) ObserveRequestLatency(route, method string, d time.Duration) {
	m.RequestLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) IncrementOffersCreated() {
	m.OffersCreated.Inc()
}

func (m *Metrics) IncrementTokensIssued() {
	m.TokensIssued.Inc()
}

func (m *Metrics) IncrementTokenFailure(reason string) {
	m.TokenFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementCredentialsIssued() {
	m.CredentialsIssued.Inc()
}

func (m *Metrics) IncrementCredentialFailure(reason string) {
	m.CredentialFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementRevocation(outcome string) {
	m.Revocations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLedgerCall(op string, d time.Duration) {
	m.LedgerLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) SetLedgerCircuitOpen(open bool) {
	if open {
		m.LedgerCircuitOpen.Set(1)
		return
	}
	m.LedgerCircuitOpen.Set(0)
}

func (m *Metrics) IncrementRevocationCache(result string) {
	m.RevocationCache.WithLabelValues(result).Inc()
}

func (m *Metrics) AddJanitorSwept(kind string, n int) {
	m.JanitorSwept.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncrementAuditEvent(result string) {
	m.AuditEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementRateLimited(class string) {
	m.RateLimited.WithLabelValues(class).Inc()
}
