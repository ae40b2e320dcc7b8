// Package janitor removes expired offer sessions and c_nonces.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"titulaciones/internal/platform/metrics"
)

// Sweeper deletes entries that expired as of now and reports how many.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type Janitor struct {
	sweepers map[string]Sweeper
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Janitor; sweepers is keyed by the kind reported in metrics.
func New(sweepers map[string]Sweeper, logger *slog.Logger, m *metrics.Metrics) *Janitor {
	return &Janitor{sweepers: sweepers, logger: logger, metrics: m}
}

// Run sweeps every interval until ctx is cancelled. Sweep failures are logged
// and retried on the next tick.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.SweepAt(ctx, time.Now())
		case <-ctx.Done():
			return nil
		}
	}
}

// SweepAt runs every sweeper once against now and returns the total removed.
func (j *Janitor) SweepAt(ctx context.Context, now time.Time) int {
	total := 0
	for kind, s := range j.sweepers {
		n, err := s.DeleteExpired(ctx, now)
		if err != nil {
			j.logger.WarnContext(ctx, "janitor sweep failed", "kind", kind, "error", err)
			continue
		}
		if n == 0 {
			continue
		}
		total += n
		if j.metrics != nil {
			j.metrics.AddJanitorSwept(kind, n)
		}
		j.logger.DebugContext(ctx, "janitor swept expired entries", "kind", kind, "count", n)
	}
	return total
}
