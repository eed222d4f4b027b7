package worker

import (
	"context"
	"log/slog"
	"time"
)

// runScheduler requests a tick over every source each interval. An
// interval is skipped while the pool is saturated.
func (w *Worker) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.ticksChan <- &tickRequest{origin: "schedule"}:
			default:
				w.logger.Debug("Pool busy, skipping scheduled tick")
			}
		}
	}
}

// runSweeper deletes expired cache entries each interval
func (w *Worker) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.sweeper.SweepCache(ctx)
			if err != nil {
				w.logger.Warn("Cache sweep failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				w.logger.Info("Expired cache entries removed", slog.Int64("count", n))
			}
		}
	}
}
