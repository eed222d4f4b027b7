package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N goroutines that execute tick requests
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned", slog.Int("worker_count", w.concurrency))
}

// workerLoop is the main processing loop for each pool goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping", slog.String("worker_name", workerName))
			return

		case req := <-w.ticksChan:
			err := w.runTick(ctx, workerName, req)
			if req.done != nil {
				req.done(err)
			}
		}
	}
}

func (w *Worker) runTick(ctx context.Context, workerName string, req *tickRequest) error {
	report, err := w.runner.Tick(ctx, req.sources...)
	if err != nil {
		w.logger.Error("Runner tick failed",
			slog.String("worker_name", workerName),
			slog.String("origin", req.origin),
			slog.Any("error", err),
		)
		return err
	}

	w.logger.Info("Runner tick completed",
		slog.String("worker_name", workerName),
		slog.String("origin", req.origin),
		slog.Int("processed", report.Processed),
		slog.Bool("ok", report.OK),
	)
	return nil
}
