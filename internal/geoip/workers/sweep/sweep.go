// Package sweep evicts expired entries from the in-process GeoIP cache.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"docverify/internal/geoip/metrics"
)

type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Worker struct {
	cache    Sweeper
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(cache Sweeper, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{cache: cache, interval: interval, logger: logger, metrics: m}
}

// Run sweeps on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) int {
	n, err := w.cache.Sweep(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "geoip_sweep_failed", "error", err)
		return 0
	}
	if n > 0 {
		w.metrics.AddSweepEvicted(n)
		w.logger.DebugContext(ctx, "geoip_sweep", "evicted", n)
	}
	return n
}
