package revocation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"titulaciones/internal/platform/metrics"
	dErrors "titulaciones/pkg/domain-errors"
	"titulaciones/pkg/platform/circuit"
	"titulaciones/pkg/platform/sentinel"
	"titulaciones/pkg/requestcontext"
)

const defaultTimeout = 60 * time.Second

// Outcomes reported to metrics and logs.
const (
	OutcomeRevoked        = "revoked"
	OutcomeAlreadyRevoked = "already_revoked"
	OutcomeRaceTolerated  = "race_tolerated"
	OutcomeUnavailable    = "unavailable"
	OutcomeRejected       = "rejected"
)

// Ledger checks and sets revocation status on the registry. Revoke is
// idempotent; concurrent calls for one hash share a single registry round.
type Ledger struct {
	registry Registry
	cache    StatusCache
	breaker  *circuit.Breaker
	group    singleflight.Group
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures the ledger.
type Option func(*Ledger)

// WithTimeout bounds every registry interaction, confirmation wait included.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithCache adds a revoked-status cache in front of the registry.
func WithCache(c StatusCache) Option {
	return func(l *Ledger) {
		l.cache = c
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Ledger) {
		l.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// NewLedger wraps registry.
func NewLedger(registry Registry, opts ...Option) *Ledger {
	l := &Ledger{
		registry: registry,
		breaker:  circuit.New("revocation-registry"),
		timeout:  defaultTimeout,
		logger:   slog.Default(),
		tracer:   otel.Tracer("titulaciones/internal/revocation"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// IsRevoked is a read-only status query.
func (l *Ledger) IsRevoked(ctx context.Context, hash ContentHash) (bool, error) {
	ctx, span := l.tracer.Start(ctx, "revocation.is_revoked",
		trace.WithAttributes(attribute.String("revocation.hash", hash.String())))
	defer span.End()

	if l.cachedRevoked(ctx, hash) {
		span.SetAttributes(attribute.Bool("revocation.cache_hit", true))
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	revoked, err := l.readStatus(ctx, hash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status read failed")
		return false, err
	}
	if revoked {
		l.remember(ctx, hash)
	}
	return revoked, nil
}

// Revoke marks hash revoked. When the registry already reports it revoked no
// transaction is submitted. A reverted submission is still success when a
// follow-up read shows the hash revoked (another writer won the race).
func (l *Ledger) Revoke(ctx context.Context, hash ContentHash) (*Receipt, error) {
	// The shared call outlives any single caller; each caller still honours
	// its own ctx while waiting.
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(hash.String(), func() (any, error) {
		return l.revoke(shared, hash)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		receipt := *res.Val.(*Receipt)
		return &receipt, nil
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeLedgerDown, "revocation still pending, retry later")
	}
}

func (l *Ledger) revoke(ctx context.Context, hash ContentHash) (*Receipt, error) {
	ctx, span := l.tracer.Start(ctx, "revocation.revoke",
		trace.WithAttributes(attribute.String("revocation.hash", hash.String())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	receipt, outcome, err := l.revokeOnce(ctx, hash)
	span.SetAttributes(attribute.String("revocation.outcome", outcome))
	l.countRevocation(outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		l.logger.ErrorContext(ctx, "revocation failed",
			"request_id", requestcontext.RequestID(ctx),
			"hash", hash.String(),
			"outcome", outcome,
			"error", err,
		)
		return nil, err
	}

	l.remember(ctx, hash)
	l.logger.InfoContext(ctx, "revocation settled",
		"request_id", requestcontext.RequestID(ctx),
		"hash", hash.String(),
		"outcome", outcome,
		"tx", receipt.TxHash,
	)
	return receipt, nil
}

func (l *Ledger) revokeOnce(ctx context.Context, hash ContentHash) (*Receipt, string, error) {
	revoked, err := l.readStatus(ctx, hash)
	if err != nil {
		return nil, OutcomeUnavailable, err
	}
	if revoked {
		return &Receipt{Hash: hash.String(), AlreadyRevoked: true}, OutcomeAlreadyRevoked, nil
	}

	if !l.allow() {
		return nil, OutcomeUnavailable, dErrors.New(dErrors.CodeLedgerDown, "revocation registry unavailable, retry later")
	}
	start := time.Now()
	receipt, err := l.registry.RevokeTitulacion(ctx, hash)
	l.observe("revokeTitulacion", start)

	switch {
	case err == nil:
		l.success()
		if receipt == nil {
			receipt = &Receipt{}
		}
		receipt.Hash = hash.String()
		return receipt, OutcomeRevoked, nil
	case errors.Is(err, sentinel.ErrRejected):
		l.success()
		revoked, readErr := l.readStatus(ctx, hash)
		if readErr == nil && revoked {
			return &Receipt{Hash: hash.String(), AlreadyRevoked: true}, OutcomeRaceTolerated, nil
		}
		return nil, OutcomeRejected, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "revocation transaction reverted")
	default:
		l.failure()
		return nil, OutcomeUnavailable, connectivityError(err)
	}
}

func (l *Ledger) readStatus(ctx context.Context, hash ContentHash) (bool, error) {
	if !l.allow() {
		return false, dErrors.New(dErrors.CodeLedgerDown, "revocation registry unavailable, retry later")
	}
	start := time.Now()
	revoked, err := l.registry.IsRevoked(ctx, hash)
	l.observe("isRevoked", start)
	if err != nil {
		l.failure()
		return false, connectivityError(err)
	}
	l.success()
	return revoked, nil
}

func connectivityError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeLedgerDown, "revocation registry timed out, retry later")
	}
	return dErrors.Wrap(err, dErrors.CodeLedgerDown, "revocation registry unreachable, retry later")
}

func (l *Ledger) cachedRevoked(ctx context.Context, hash ContentHash) bool {
	if l.cache == nil {
		return false
	}
	revoked, err := l.cache.IsRevoked(ctx, hash)
	if err != nil {
		l.logger.WarnContext(ctx, "revocation cache read failed",
			"hash", hash.String(),
			"error", err,
		)
		l.countCache("error")
		return false
	}
	if revoked {
		l.countCache("hit")
	} else {
		l.countCache("miss")
	}
	return revoked
}

func (l *Ledger) remember(ctx context.Context, hash ContentHash) {
	if l.cache == nil {
		return
	}
	if err := l.cache.MarkRevoked(ctx, hash); err != nil {
		l.logger.WarnContext(ctx, "revocation cache write failed",
			"hash", hash.String(),
			"error", err,
		)
	}
}

func (l *Ledger) allow() bool {
	return l.breaker == nil || l.breaker.Allow()
}

func (l *Ledger) success() {
	if l.breaker == nil {
		return
	}
	l.breaker.RecordSuccess()
	if l.metrics != nil {
		l.metrics.SetLedgerCircuitOpen(false)
	}
}

func (l *Ledger) failure() {
	if l.breaker == nil {
		return
	}
	if l.breaker.RecordFailure() {
		l.logger.Warn("revocation registry circuit opened", "breaker", l.breaker.Name())
		if l.metrics != nil {
			l.metrics.SetLedgerCircuitOpen(true)
		}
	}
}

func (l *Ledger) observe(op string, start time.Time) {
	if l.metrics != nil {
		l.metrics.ObserveLedgerCall(op, time.Since(start))
	}
}

func (l *Ledger) countRevocation(outcome string) {
	if l.metrics != nil {
		l.metrics.IncrementRevocation(outcome)
	}
}

func (l *Ledger) countCache(result string) {
	if l.metrics != nil {
		l.metrics.IncrementRevocationCache(result)
	}
}
